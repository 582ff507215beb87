// Package logging configures the stderr diagnostic logger.
//
// The record stream on stdout is reserved for events; diagnostics always go
// to stderr so the two never mix.
package logging

import (
	"io"
	"log/slog"
)

// New builds a JSON slog logger writing to w. verbose lowers the level to
// Debug; the default level is Info.
func New(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
