package checkpoint

import (
	"time"

	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
)

// #region record
// Record is one stored chain checkpoint. Versions of a chain form a
// parent-linked history; each chain has one active version.
type Record struct {
	VersionID string
	ParentID  string
	mcmc.ChainState
	CreatedAt time.Time
}

// #endregion record

// #region topology
// NodeRow is a model node as saved with SaveTopology.
type NodeRow struct {
	ID   int
	Name string
	Kind string
}

// EdgeRow is a parent to child edge by node name.
type EdgeRow struct {
	Parent string
	Child  string
}

// #endregion topology
