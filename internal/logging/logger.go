// Package logging builds the process logger and records move outcomes in
// the move_log table.
package logging

import (
	"io"
	"log/slog"

	slogmulti "github.com/samber/slog-multi"
)

var level = new(slog.LevelVar)

// SetLevel parses a level name such as "debug" or "WARN" and applies it to
// every logger built by NewLogger.
func SetLevel(name string) error {
	return level.UnmarshalText([]byte(name))
}

// NewLogger writes text records to terminal and, when jsonOut is non-nil,
// JSON records to jsonOut as well.
func NewLogger(terminal, jsonOut io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	handlers := []slog.Handler{slog.NewTextHandler(terminal, opts)}
	if jsonOut != nil {
		handlers = append(handlers, slog.NewJSONHandler(jsonOut, opts))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}
