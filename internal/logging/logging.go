// Package logging builds the slog logger shared across the analysis service.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/safetycheck/safetycheck/internal/config"
)

// serviceName tags every log line so aggregated streams can be filtered
// down to this service.
const serviceName = "safetycheck"

// New constructs a slog.Logger configured according to the provided settings,
// writing to stdout.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter constructs the logger against an explicit sink. Tests use it
// to capture output.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	handler, err := buildHandler(cfg, w)
	if err != nil {
		return nil, err
	}

	return slog.New(handler).With("service", serviceName), nil
}

func buildHandler(cfg config.LoggingConfig, w io.Writer) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	switch cfg.Format {
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	case "text":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}
}
