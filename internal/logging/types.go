package logging

import "time"

// #region move-entry
// MoveEntry is a single row in the move_log table.
type MoveEntry struct {
	ChainID    string
	Generation int
	Move       string
	Heat       float64
	Action     string // "accept" | "reject"
	Veto       string // empty unless the move was vetoed
	LnRatio    float64
	Tuning     float64
	Reason     string
	CreatedAt  time.Time
}

// #endregion move-entry
