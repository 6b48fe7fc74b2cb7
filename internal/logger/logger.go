// Package logger builds the zerolog logger and carries request-scoped
// fields through a context.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config configures Build.
type Config struct {
	Level     string
	Console   bool
	Component string
}

type ctxKey string

const (
	ctxLayerKey  ctxKey = "layer_id"
	ctxImportKey ctxKey = "import_id"
)

// Build returns the root logger writing to out (stderr when nil).
func Build(cfg Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.TimestampFieldName = "timestamp"
	zerolog.MessageFieldName = "msg"

	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level := zerolog.InfoLevel
	switch strings.ToLower(strings.TrimSpace(cfg.Level)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger()
}

// WithLayer tags ctx with a layer id.
func WithLayer(ctx context.Context, layerID string) context.Context {
	if layerID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxLayerKey, layerID)
}

// WithImport tags ctx with an import id.
func WithImport(ctx context.Context, importID string) context.Context {
	if importID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxImportKey, importID)
}

// FromContext returns a child of parent carrying the fields set on ctx.
func FromContext(ctx context.Context, parent zerolog.Logger) zerolog.Logger {
	w := parent.With()
	if s, ok := ctx.Value(ctxLayerKey).(string); ok {
		w = w.Str("layer_id", s)
	}
	if s, ok := ctx.Value(ctxImportKey).(string); ok {
		w = w.Str("import_id", s)
	}
	return w.Logger()
}
