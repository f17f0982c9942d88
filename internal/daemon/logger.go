package daemon

import (
	"io"
	"log/slog"

	"rsmu-go/errcode"
	"rsmu-go/services/config"
)

// NewLogger builds the daemon logger from the log section. level, when
// non-empty, overrides the configured level.
func NewLogger(lc config.Log, level string, w io.Writer) (*slog.Logger, error) {
	if level != "" {
		lc.Level = level
	}
	lvl, err := lc.ParseLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch lc.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, errcode.Invalid("log", "unknown format "+lc.Format)
	}
}
