// Package log provides the process-wide structured logger, grounded on
// xg2g's internal/log: a single zerolog.Logger configured once at startup,
// with component- and context-scoped child loggers for request/job fields.
package log

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string // "debug", "info", "warn", "error"; defaults to "info"
	Output  io.Writer
	Service string
	Version string
}

var (
	mu   sync.RWMutex
	base zerolog.Logger
)

func init() {
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Configure initializes the global logger. Call once at process startup.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stdout
	}

	ctx := zerolog.New(writer).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	base = ctx.Logger()
}

// Base returns the process-wide logger.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// WithComponent returns a child logger tagged with a component name, the
// way xg2g scopes loggers per package (e.g. "flexscan", "jobqueue").
func WithComponent(name string) zerolog.Logger {
	return Base().With().Str("component", name).Logger()
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying logger as the scoped logger
// retrievable via FromContext.
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or the base logger if
// none was attached.
func FromContext(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return Base()
}
