package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nhle/task-cadence/internal/model"
)

// newLogger builds the process logger from the log section of the config.
func newLogger(cfg model.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format %q: want text or json", cfg.Format)
	}
}
