// Package telemetry provides the structured logging and metrics
// ambient stack: a zerolog.Logger wrapper in the style of the xg2g
// example's internal/log package, and the prometheus counters §7 names
// as the layer's user-visible surface.
package telemetry

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ctxKey string

const streamIDKey ctxKey = "stream_id"

// New builds a process-wide zerolog.Logger writing to stderr at the
// given level ("debug", "info", "warn", "error"; defaults to "info").
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// WithStream tags ctx with a stream correlation ID, used to group log
// lines from one decoder-owner/video-output-worker pair.
func WithStream(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, streamIDKey, id.String())
}

// StreamID extracts the correlation ID set by WithStream, or "" if none.
func StreamID(ctx context.Context) string {
	v, _ := ctx.Value(streamIDKey).(string)
	return v
}

// LoggerWithStream returns a child logger annotated with ctx's stream
// ID field, if any.
func LoggerWithStream(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	if id := StreamID(ctx); id != "" {
		return l.With().Str("stream_id", id).Logger()
	}
	return l
}
