package query

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tarantool/go-iproto"
)

type LogEvent interface {
	EventName() string
	Message() string
	LogLevel() slog.Level
	LogAttrs() []slog.Attr
}

// BaseEvent carries the attributes shared by all events.
type BaseEvent struct {
	Component string
	EventTime time.Time
}

// NewBaseEvent stamps an event of component with the current time.
func NewBaseEvent(component string) BaseEvent {
	return BaseEvent{
		Component: component,
		EventTime: time.Now(),
	}
}

// Attrs returns the shared attributes.
func (e BaseEvent) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("component", e.Component),
		slog.Time("event_time", e.EventTime),
	}
}

type RequestEvent struct {
	BaseEvent
	Type      iproto.Type
	Statement string
	Duration  time.Duration
	Error     error
}

func (e RequestEvent) EventName() string { return "request" }
func (e RequestEvent) Message() string {
	if e.Error != nil {
		return fmt.Sprintf("Request failed: %s", e.Statement)
	}
	return e.Statement
}
func (e RequestEvent) LogLevel() slog.Level { return slog.LevelDebug }
func (e RequestEvent) LogAttrs() []slog.Attr {
	attrs := e.Attrs()
	attrs = append(attrs,
		slog.String("request_type", e.Type.String()),
		slog.Duration("duration", e.Duration),
	)
	if e.Error != nil {
		attrs = append(attrs, slog.String("error", e.Error.Error()))
	}
	return attrs
}

type SelfHealEvent struct {
	BaseEvent
	Statement string
	Error     error
}

func (e SelfHealEvent) EventName() string { return "self_heal" }
func (e SelfHealEvent) Message() string {
	return "Enabling encode_invalid_as_nil after an encoding failure"
}
func (e SelfHealEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e SelfHealEvent) LogAttrs() []slog.Attr {
	attrs := e.Attrs()
	attrs = append(attrs,
		slog.String("statement", e.Statement),
		slog.String("error", e.Error.Error()),
	)
	return attrs
}

type SelfHealFailedEvent struct {
	BaseEvent
	Error error
}

func (e SelfHealFailedEvent) EventName() string { return "self_heal_failed" }
func (e SelfHealFailedEvent) Message() string {
	return fmt.Sprintf("Failed to enable encode_invalid_as_nil: %s", e.Error)
}
func (e SelfHealFailedEvent) LogLevel() slog.Level { return slog.LevelError }
func (e SelfHealFailedEvent) LogAttrs() []slog.Attr {
	attrs := e.Attrs()
	attrs = append(attrs, slog.String("error", e.Error.Error()))
	return attrs
}
