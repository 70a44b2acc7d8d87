// Package logger builds the zerolog loggers used across the storefront services.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// logger fields
const (
	SERVICE   = "svc"
	COMPONENT = "component"
	REQUEST   = "request_id"
	TRACE     = "trace_id"
	SPAN      = "span_id"
	ORDER     = "order_id"
	USER      = "user_id"
	EVENT     = "event"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

// New returns a JSON logger writing to stdout tagged with svc=service.
func New(service, level string) zerolog.Logger {
	return NewWithWriter(os.Stdout, service, level)
}

func NewWithWriter(w io.Writer, service, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Str(SERVICE, service).
		Logger()
}

// ParseLevel falls back to info for empty or unknown levels.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Component derives a child logger for one part of the service.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str(COMPONENT, name).Logger()
}

// FromContext enriches l with the request id and the active span, when present.
func FromContext(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	c := l.With()
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		c = c.Str(REQUEST, reqID)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		c = c.Str(TRACE, sc.TraceID().String()).Str(SPAN, sc.SpanID().String())
	}
	return c.Logger()
}
