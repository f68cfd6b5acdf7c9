package pool

import (
	"fmt"
	"log/slog"

	query "github.com/ice-blockchain/go-tarantool-query"
)

const component = "query.pool"

type EndpointFailedEvent struct {
	query.BaseEvent
	Role     Role
	Endpoint string
	Pass     int
	Error    error
}

func (e EndpointFailedEvent) EventName() string { return "endpoint_failed" }
func (e EndpointFailedEvent) Message() string {
	return fmt.Sprintf("Failed to open %s endpoint %s", e.Role, e.Endpoint)
}
func (e EndpointFailedEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e EndpointFailedEvent) LogAttrs() []slog.Attr {
	attrs := e.Attrs()
	attrs = append(attrs,
		slog.String("role", e.Role.String()),
		slog.String("endpoint", e.Endpoint),
		slog.Int("pass", e.Pass),
		slog.String("error", e.Error.Error()),
	)
	return attrs
}

type EndpointBoundEvent struct {
	query.BaseEvent
	Role     Role
	Endpoint string
}

func (e EndpointBoundEvent) EventName() string { return "endpoint_bound" }
func (e EndpointBoundEvent) Message() string {
	return fmt.Sprintf("Bound %s to %s", e.Role, e.Endpoint)
}
func (e EndpointBoundEvent) LogLevel() slog.Level { return slog.LevelInfo }
func (e EndpointBoundEvent) LogAttrs() []slog.Attr {
	attrs := e.Attrs()
	attrs = append(attrs,
		slog.String("role", e.Role.String()),
		slog.String("endpoint", e.Endpoint),
	)
	return attrs
}

type PoolExhaustedEvent struct {
	query.BaseEvent
	Role  Role
	Error error
}

func (e PoolExhaustedEvent) EventName() string { return "pool_exhausted" }
func (e PoolExhaustedEvent) Message() string {
	return fmt.Sprintf("No %s endpoint is reachable", e.Role)
}
func (e PoolExhaustedEvent) LogLevel() slog.Level { return slog.LevelError }
func (e PoolExhaustedEvent) LogAttrs() []slog.Attr {
	attrs := e.Attrs()
	attrs = append(attrs,
		slog.String("role", e.Role.String()),
		slog.String("error", e.Error.Error()),
	)
	return attrs
}

type ReplicaFallbackEvent struct {
	query.BaseEvent
	Error error
}

func (e ReplicaFallbackEvent) EventName() string { return "replica_fallback" }
func (e ReplicaFallbackEvent) Message() string {
	return "No replica is reachable, falling back to master"
}
func (e ReplicaFallbackEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e ReplicaFallbackEvent) LogAttrs() []slog.Attr {
	attrs := e.Attrs()
	attrs = append(attrs, slog.String("error", e.Error.Error()))
	return attrs
}

type StatusCacheErrorEvent struct {
	query.BaseEvent
	Endpoint string
	Error    error
}

func (e StatusCacheErrorEvent) EventName() string { return "status_cache_error" }
func (e StatusCacheErrorEvent) Message() string {
	return fmt.Sprintf("Status cache failed for %s", e.Endpoint)
}
func (e StatusCacheErrorEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e StatusCacheErrorEvent) LogAttrs() []slog.Attr {
	attrs := e.Attrs()
	attrs = append(attrs,
		slog.String("endpoint", e.Endpoint),
		slog.String("error", e.Error.Error()),
	)
	return attrs
}
