package checkpoint

import (
	"errors"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
	"github.com/danielpatrickdp/bayesgraph/internal/dist"
	"github.com/danielpatrickdp/bayesgraph/internal/fn"
	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
	"github.com/danielpatrickdp/bayesgraph/internal/value"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func chainState(chain string, gen int, x string) mcmc.ChainState {
	return mcmc.ChainState{
		ChainID:      chain,
		Generation:   gen,
		Seed:         1<<63 + 5,
		Heat:         0.5,
		RNGState:     []byte{1, 2, 3, 4},
		Values:       map[string]string{"x": x},
		Tuning:       map[string]float64{"sliding(x)#0": 0.75},
		LogPosterior: -3.25,
	}
}

func TestCheckpointAndGetCurrent(t *testing.T) {
	s := tempDB(t)

	if _, err := s.GetCurrent("c0"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any checkpoint, got %v", err)
	}

	want := chainState("c0", 10, "0.5")
	if err := s.Checkpoint(want); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	cur, err := s.GetCurrent("c0")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.VersionID == "" {
		t.Fatal("expected non-empty version ID")
	}
	if cur.ParentID != "" {
		t.Fatalf("expected empty parent, got %s", cur.ParentID)
	}
	if diff := cmp.Diff(want, cur.ChainState); diff != "" {
		t.Fatalf("stored state mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckpointChainsParents(t *testing.T) {
	s := tempDB(t)

	if err := s.Checkpoint(chainState("c0", 10, "0.5")); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	v1, _ := s.GetCurrent("c0")
	if err := s.Checkpoint(chainState("c0", 20, "0.75")); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	v2, _ := s.GetCurrent("c0")

	if v2.ParentID != v1.VersionID {
		t.Fatalf("expected parent %s, got %s", v1.VersionID, v2.ParentID)
	}
	if v2.Generation != 20 || v2.Values["x"] != "0.75" {
		t.Fatalf("unexpected current: gen %d x %s", v2.Generation, v2.Values["x"])
	}
}

func TestChainsAreIndependent(t *testing.T) {
	s := tempDB(t)
	s.Checkpoint(chainState("cold", 5, "1"))
	s.Checkpoint(chainState("hot", 5, "2"))

	chains, err := s.Chains()
	if err != nil {
		t.Fatalf("Chains: %v", err)
	}
	if diff := cmp.Diff([]string{"cold", "hot"}, chains); diff != "" {
		t.Fatalf("chains (-want +got):\n%s", diff)
	}
	hot, _ := s.GetCurrent("hot")
	if hot.ParentID != "" {
		t.Fatal("first checkpoint of a chain must not link to another chain")
	}
}

func TestRollback(t *testing.T) {
	s := tempDB(t)
	s.Checkpoint(chainState("c0", 10, "0.5"))
	v1, _ := s.GetCurrent("c0")
	s.Checkpoint(chainState("c0", 20, "0.75"))

	if err := s.Rollback("c0", v1.VersionID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	cur, _ := s.GetCurrent("c0")
	if cur.VersionID != v1.VersionID {
		t.Fatalf("expected %s after rollback, got %s", v1.VersionID, cur.VersionID)
	}
}

func TestRollbackRejectsUnknownAndForeignVersions(t *testing.T) {
	s := tempDB(t)
	s.Checkpoint(chainState("a", 1, "0"))
	s.Checkpoint(chainState("b", 1, "0"))
	b, _ := s.GetCurrent("b")

	if err := s.Rollback("a", "nonexistent-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Rollback("a", b.VersionID); err == nil {
		t.Fatal("expected error rolling chain a to a version of chain b")
	}
}

func TestListVersions(t *testing.T) {
	s := tempDB(t)
	s.Checkpoint(chainState("a", 1, "0"))
	s.Checkpoint(chainState("a", 2, "0"))
	s.Checkpoint(chainState("b", 1, "0"))

	all, err := s.ListVersions("", 10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(all))
	}

	a, err := s.ListVersions("a", 10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(a) != 2 || a[0].Generation != 2 {
		t.Fatalf("expected 2 versions of a, newest first, got %+v", a)
	}

	limited, _ := s.ListVersions("", 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit 1, got %d", len(limited))
	}
}

func TestCommitRequiresChainID(t *testing.T) {
	s := tempDB(t)
	if err := s.Commit(Record{VersionID: "v"}); err == nil {
		t.Fatal("expected error for empty chain id")
	}
}

func TestTopologyRoundTrip(t *testing.T) {
	s := tempDB(t)
	floats := value.Float[float64]{}
	g := dag.NewGraph()
	one, _ := dag.NewConstant[float64](g, "one", floats, 1)
	x, _ := dag.NewStochastic[float64](g, "x", floats, dist.Exponential(one), 1)
	dag.NewDeterministic[float64](g, "y", floats, fn.Exp(x))

	if err := s.SaveTopology(g); err != nil {
		t.Fatalf("SaveTopology: %v", err)
	}
	// saving twice replaces rather than duplicates
	if err := s.SaveTopology(g); err != nil {
		t.Fatalf("SaveTopology again: %v", err)
	}

	nodes, edges, err := s.Topology()
	if err != nil {
		t.Fatalf("Topology: %v", err)
	}
	wantNodes := []NodeRow{
		{ID: 0, Name: "one", Kind: "constant"},
		{ID: 1, Name: "x", Kind: "stochastic"},
		{ID: 2, Name: "y", Kind: "deterministic"},
	}
	if diff := cmp.Diff(wantNodes, nodes); diff != "" {
		t.Fatalf("nodes (-want +got):\n%s", diff)
	}
	wantEdges := []EdgeRow{{Parent: "one", Child: "x"}, {Parent: "x", Child: "y"}}
	if diff := cmp.Diff(wantEdges, edges); diff != "" {
		t.Fatalf("edges (-want +got):\n%s", diff)
	}
}

func TestResumeFromStore(t *testing.T) {
	s := tempDB(t)
	build := func() *mcmc.Chain {
		floats := value.Float[float64]{}
		g := dag.NewGraph()
		zero, _ := dag.NewConstant[float64](g, "zero", floats, 0)
		one, _ := dag.NewConstant[float64](g, "one", floats, 1)
		x, _ := dag.NewStochastic[float64](g, "x", floats, dist.Normal(zero, one), 0)
		g.KeepAll()
		m, err := mcmc.NewMove(&shift{node: x}, 1, nil, false)
		if err != nil {
			t.Fatalf("NewMove: %v", err)
		}
		c, err := mcmc.NewChain(g, []*mcmc.Move{m}, mcmc.ChainOptions{ID: "c0", Seed: 4, Checkpointer: s,
			Config: mcmc.ChainConfig{CheckpointEvery: 5}})
		if err != nil {
			t.Fatalf("NewChain: %v", err)
		}
		return c
	}

	a := build()
	if _, err := a.Run(t.Context(), 10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	cur, err := s.GetCurrent("c0")
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.Generation != 10 {
		t.Fatalf("expected checkpoint at generation 10, got %d", cur.Generation)
	}

	b := build()
	if err := b.Resume(cur.ChainState); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	lpA, _ := a.LogPosterior()
	lpB, _ := b.LogPosterior()
	if lpA != lpB {
		t.Fatalf("resumed log posterior %v, want %v", lpB, lpA)
	}
}

// shift is a minimal symmetric proposal for store tests.
type shift struct{ node *dag.StochasticNode[float64] }

func (p *shift) Name() string        { return "shift" }
func (p *shift) Targets() []dag.Node { return []dag.Node{p.node} }
func (p *shift) Propose(rng *rand.Rand) (float64, error) {
	v, _ := p.node.Value()
	return 0, p.node.SetValue(v + rng.Float64() - 0.5)
}
func (p *shift) Undo() error                             { return nil }
func (p *shift) Tune(float64)                            {}
func (p *shift) TuningParameter() float64                { return 1 }
func (p *shift) SetTuningParameter(float64)              {}
func (p *shift) Clone(*dag.Graph) (mcmc.Proposal, error) { return p, nil }
