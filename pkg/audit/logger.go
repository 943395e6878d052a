package audit

import (
	"context"

	"github.com/tidemark-dev/authority/pkg/observability"
)

// Logger records audit events. Implementations must be safe for
// concurrent use.
type Logger interface {
	Log(ctx context.Context, event *Event) error
	Close() error
}

type contextKey struct{}

// WithLogger stores an audit logger in the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext retrieves the audit logger from the context, or nil if
// none is set.
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextKey{}).(Logger); ok {
		return logger
	}
	return nil
}

// SlogLogger writes audit events through the structured application
// logger. It is the default sink when no file logger is configured.
type SlogLogger struct {
	log *observability.Logger
}

// NewSlogLogger creates an audit logger backed by the given structured
// logger.
func NewSlogLogger(log *observability.Logger) *SlogLogger {
	return &SlogLogger{log: log}
}

func (s *SlogLogger) Log(_ context.Context, event *Event) error {
	entry := s.log.WithFields(map[string]any{
		"audit_id":  event.ID,
		"type":      string(event.Type),
		"principal": event.Principal,
		"status":    string(event.Status),
	})
	if event.Actor != "" {
		entry = entry.WithField("actor", event.Actor)
	}
	if event.Role != "" {
		entry = entry.WithField("role", event.Role)
	}
	entry.Info(event.Message)
	return nil
}

func (s *SlogLogger) Close() error { return nil }

// NopLogger discards all events.
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }
