package query

import (
	"context"
	"log"
	"log/slog"
)

// Logger receives events produced by connections and pools.
type Logger interface {
	Report(event LogEvent)
}

// SlogLogger reports events through a slog.Logger.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func NewSlogLogger(logger *slog.Logger) SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{
		logger: logger,
		ctx:    context.Background(),
	}
}

func (l *SlogLogger) WithContext(ctx context.Context) SlogLogger {
	return SlogLogger{
		logger: l.logger,
		ctx:    ctx,
	}
}

func (l SlogLogger) Report(event LogEvent) {
	attrs := append(event.LogAttrs(), slog.String("event", event.EventName()))
	l.logger.LogAttrs(l.ctx, event.LogLevel(), event.Message(), attrs...)
}

// SimpleLogger prints warnings and errors with the standard logger.
type SimpleLogger struct{}

func (l SimpleLogger) Report(event LogEvent) {
	if event.LogLevel() < slog.LevelWarn {
		return
	}
	log.Printf("[%s] %s [event=%s]", event.LogLevel(), event.Message(), event.EventName())

	for _, attr := range event.LogAttrs() {
		if attr.Key == "error" {
			log.Printf("  Error: %v", attr.Value.Any())
		}
	}
}

type nopLogger struct{}

func (nopLogger) Report(LogEvent) {}

// NopLogger returns a logger that drops every event.
func NopLogger() Logger {
	return nopLogger{}
}
