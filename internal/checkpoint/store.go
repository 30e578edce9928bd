// Package checkpoint persists chain states and model topology in SQLite.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/bayesgraph/internal/dag"
	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
)

// ErrNotFound is returned when a chain or version has no stored row.
var ErrNotFound = errors.New("checkpoint not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	chain_id      TEXT NOT NULL,
	generation    INTEGER NOT NULL,
	seed          INTEGER NOT NULL,
	heat          REAL NOT NULL,
	rng_state     BLOB,
	node_values   TEXT NOT NULL,
	tuning        TEXT NOT NULL,
	log_posterior REAL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (parent_id) REFERENCES checkpoints(version_id)
);

CREATE INDEX IF NOT EXISTS checkpoints_chain ON checkpoints(chain_id, generation);

CREATE TABLE IF NOT EXISTS active_checkpoint (
	chain_id      TEXT PRIMARY KEY,
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES checkpoints(version_id)
);

CREATE TABLE IF NOT EXISTS move_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	chain_id      TEXT NOT NULL,
	generation    INTEGER NOT NULL,
	move          TEXT NOT NULL,
	heat          REAL NOT NULL,
	action        TEXT NOT NULL,
	veto          TEXT,
	ln_ratio      REAL,
	tuning        REAL,
	reason        TEXT,
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS model_nodes (
	id            INTEGER PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	kind          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS model_edges (
	parent        TEXT NOT NULL,
	child         TEXT NOT NULL,
	PRIMARY KEY (parent, child)
);
`

// #endregion schema

// #region store-struct
// Store manages versioned chain checkpoints in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations. The pool is held to
// one connection so MC3 chains can share a store.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region commit
// Checkpoint stores st as a new version whose parent is the chain's active
// version, and makes it active.
func (s *Store) Checkpoint(st mcmc.ChainState) error {
	rec := Record{
		VersionID:  uuid.New().String(),
		ChainState: st,
		CreatedAt:  time.Now().UTC(),
	}
	cur, err := s.GetCurrent(st.ChainID)
	switch {
	case err == nil:
		rec.ParentID = cur.VersionID
	case !errors.Is(err, ErrNotFound):
		return err
	}
	return s.Commit(rec)
}

// Commit inserts a version and updates the chain's active pointer
// atomically.
func (s *Store) Commit(rec Record) error {
	if rec.ChainID == "" {
		return errors.New("commit: empty chain id")
	}
	values, err := json.Marshal(rec.Values)
	if err != nil {
		return fmt.Errorf("marshal values: %w", err)
	}
	tuning, err := json.Marshal(rec.Tuning)
	if err != nil {
		return fmt.Errorf("marshal tuning: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO checkpoints (version_id, parent_id, chain_id, generation, seed, heat, rng_state, node_values, tuning, log_posterior, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), rec.ChainID, rec.Generation, int64(rec.Seed), rec.Heat,
		rec.RNGState, string(values), string(tuning), rec.LogPosterior, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_checkpoint (chain_id, version_id) VALUES (?, ?)
		 ON CONFLICT(chain_id) DO UPDATE SET version_id = excluded.version_id`,
		rec.ChainID, rec.VersionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	return tx.Commit()
}

// #endregion commit

// #region read
const selectColumns = `SELECT version_id, parent_id, chain_id, generation, seed, heat, rng_state, node_values, tuning, log_posterior, created_at FROM checkpoints`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var parentID sql.NullString
	var seed int64
	var values, tuning, created string
	var lnP sql.NullFloat64

	if err := row.Scan(&rec.VersionID, &parentID, &rec.ChainID, &rec.Generation, &seed, &rec.Heat,
		&rec.RNGState, &values, &tuning, &lnP, &created); err != nil {
		return Record{}, err
	}
	rec.ParentID = parentID.String
	rec.Seed = uint64(seed)
	rec.LogPosterior = lnP.Float64
	if err := json.Unmarshal([]byte(values), &rec.Values); err != nil {
		return Record{}, fmt.Errorf("unmarshal values: %w", err)
	}
	if err := json.Unmarshal([]byte(tuning), &rec.Tuning); err != nil {
		return Record{}, fmt.Errorf("unmarshal tuning: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return rec, nil
}

// GetCurrent reads the active version of a chain.
func (s *Store) GetCurrent(chainID string) (Record, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_checkpoint WHERE chain_id = ?`, chainID).Scan(&versionID)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("chain %s: %w", chainID, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// GetVersion retrieves a specific version by ID.
func (s *Store) GetVersion(id string) (Record, error) {
	rec, err := scanRecord(s.db.QueryRow(selectColumns+` WHERE version_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// ListVersions returns the most recent versions, newest first. An empty
// chainID lists every chain.
func (s *Store) ListVersions(chainID string, limit int) ([]Record, error) {
	query := selectColumns + ` WHERE (? = '' OR chain_id = ?) ORDER BY created_at DESC, rowid DESC LIMIT ?`
	rows, err := s.db.Query(query, chainID, chainID, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Chains lists chain IDs with an active version.
func (s *Store) Chains() ([]string, error) {
	rows, err := s.db.Query(`SELECT chain_id FROM active_checkpoint ORDER BY chain_id`)
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// #endregion read

// #region rollback
// Rollback sets a chain's active pointer to one of its earlier versions.
func (s *Store) Rollback(chainID, targetVersionID string) error {
	var owner string
	err := s.db.QueryRow(
		`SELECT chain_id FROM checkpoints WHERE version_id = ?`, targetVersionID,
	).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("version %s: %w", targetVersionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if owner != chainID {
		return fmt.Errorf("version %s belongs to chain %s, not %s", targetVersionID, owner, chainID)
	}

	_, err = s.db.Exec(`UPDATE active_checkpoint SET version_id = ? WHERE chain_id = ?`, targetVersionID, chainID)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region topology
// SaveTopology replaces the stored node and edge tables with g's.
func (s *Store) SaveTopology(g *dag.Graph) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM model_edges`); err != nil {
		return fmt.Errorf("clear edges: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM model_nodes`); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}
	for id, n := range g.All() {
		if _, err := tx.Exec(`INSERT INTO model_nodes (id, name, kind) VALUES (?, ?, ?)`,
			int(id), n.Name(), n.Kind().String()); err != nil {
			return fmt.Errorf("insert node %s: %w", n.Name(), err)
		}
	}
	for _, e := range g.Edges() {
		p, err := g.Node(e.Parent)
		if err != nil {
			return err
		}
		c, err := g.Node(e.Child)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO model_edges (parent, child) VALUES (?, ?)`,
			p.Name(), c.Name()); err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}
	return tx.Commit()
}

// Topology reads the saved nodes and edges.
func (s *Store) Topology() ([]NodeRow, []EdgeRow, error) {
	rows, err := s.db.Query(`SELECT id, name, kind FROM model_nodes ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()
	var nodes []NodeRow
	for rows.Next() {
		var n NodeRow
		if err := rows.Scan(&n.ID, &n.Name, &n.Kind); err != nil {
			return nil, nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	erows, err := s.db.Query(`SELECT parent, child FROM model_edges ORDER BY parent, child`)
	if err != nil {
		return nil, nil, fmt.Errorf("list edges: %w", err)
	}
	defer erows.Close()
	var edges []EdgeRow
	for erows.Next() {
		var e EdgeRow
		if err := erows.Scan(&e.Parent, &e.Child); err != nil {
			return nil, nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return nodes, edges, erows.Err()
}

// #endregion topology

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
