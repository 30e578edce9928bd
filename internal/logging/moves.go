package logging

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/bayesgraph/internal/mcmc"
)

// #region log-decision
// LogDecision writes a move entry to the move_log table.
func LogDecision(db *sql.DB, entry MoveEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO move_log (chain_id, generation, move, heat, action, veto, ln_ratio, tuning, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ChainID,
		entry.Generation,
		entry.Move,
		entry.Heat,
		entry.Action,
		nullIfEmpty(entry.Veto),
		nullIfNonFinite(entry.LnRatio),
		entry.Tuning,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region move-log
// MoveLog records every move outcome of a chain. It is the chain's
// decision sink.
type MoveLog struct {
	db *sql.DB
}

// NewMoveLog writes to db, which must carry the move_log table.
func NewMoveLog(db *sql.DB) *MoveLog {
	return &MoveLog{db: db}
}

// RecordDecision stores one move outcome.
func (l *MoveLog) RecordDecision(rec mcmc.DecisionRecord) error {
	d := rec.Result.Decision
	return LogDecision(l.db, MoveEntry{
		ChainID:    rec.ChainID,
		Generation: rec.Generation,
		Move:       rec.Result.Move,
		Heat:       rec.Heat,
		Action:     string(d.Action),
		Veto:       string(d.Veto),
		LnRatio:    d.LnRatio,
		Tuning:     rec.Result.Tuning,
		Reason:     d.Reason,
	})
}

// Entries returns the newest entries of a chain, newest first. A NULL
// ratio reads back as NaN.
func (l *MoveLog) Entries(chainID string, limit int) ([]MoveEntry, error) {
	rows, err := l.db.Query(
		`SELECT chain_id, generation, move, heat, action, veto, ln_ratio, tuning, reason, created_at
		 FROM move_log WHERE chain_id = ? ORDER BY id DESC LIMIT ?`, chainID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list moves: %w", err)
	}
	defer rows.Close()

	var out []MoveEntry
	for rows.Next() {
		var e MoveEntry
		var veto, reason sql.NullString
		var lnRatio, tuning sql.NullFloat64
		var created string
		if err := rows.Scan(&e.ChainID, &e.Generation, &e.Move, &e.Heat, &e.Action, &veto, &lnRatio, &tuning, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Veto = veto.String
		e.Reason = reason.String
		e.Tuning = tuning.Float64
		e.LnRatio = math.NaN()
		if lnRatio.Valid {
			e.LnRatio = lnRatio.Float64
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// AcceptanceByMove returns accepted/tried per move name for a chain.
func (l *MoveLog) AcceptanceByMove(chainID string) (map[string]float64, error) {
	rows, err := l.db.Query(
		`SELECT move, AVG(CASE WHEN action = 'accept' THEN 1.0 ELSE 0.0 END)
		 FROM move_log WHERE chain_id = ? GROUP BY move`, chainID,
	)
	if err != nil {
		return nil, fmt.Errorf("acceptance: %w", err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var move string
		var rate float64
		if err := rows.Scan(&move, &rate); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out[move] = rate
	}
	return out, rows.Err()
}

// #endregion move-log

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfNonFinite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// #endregion helpers
