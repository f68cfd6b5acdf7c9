// Package query is a query layer over a Tarantool master/replica set.
//
// Main features:
//
// - Resolution of space and index names through the system catalog, cached
// in both directions.
//
// - Compilation of conditions into select requests.
//
// - Read/write routing through a Router, a single self-heal retry on msgpack
// encoding failures and normalization of select/call/eval result shapes.
//
// See the pool sub-package for the failover Router.
package query

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Opts configure a Connection.
type Opts struct {
	// HandleTransientEncodingErrors enables the self-heal retry: on an
	// "unsupported Lua type" error the connection turns on
	// encode_invalid_as_nil on the server and repeats the request once.
	HandleTransientEncodingErrors bool `yaml:"handle_transient_encoding_errors"`
	// DebugStringMaxFieldLength truncates long strings in rendered
	// statements. See RenderOpts.MaxFieldLength.
	DebugStringMaxFieldLength int `yaml:"debug_string_max_field_length"`
	// ValidateGetUniqueness makes QueryGet check the index uniqueness
	// before sending the request instead of relying on the server error.
	ValidateGetUniqueness bool `yaml:"validate_get_uniqueness"`
	// Logger receives request and self-heal events. Nil drops them.
	Logger Logger `yaml:"-"`
	// Registerer registers the connection metrics. Nil skips registration.
	Registerer prometheus.Registerer `yaml:"-"`
}

type connMetrics struct {
	requests *prometheus.CounterVec
	selfHeal *prometheus.CounterVec
}

func newConnMetrics(reg prometheus.Registerer) *connMetrics {
	factory := promauto.With(reg)
	return &connMetrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarantool_query",
			Name:      "requests_total",
			Help:      "Requests executed by type and outcome.",
		}, []string{"type", "outcome"}),
		selfHeal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tarantool_query",
			Name:      "self_heal_total",
			Help:      "Self-heal attempts after encoding failures by outcome.",
		}, []string{"outcome"}),
	}
}

// Connection is a logical connection to a master/replica set. It is safe
// for concurrent use.
type Connection struct {
	router   Router
	resolver *Resolver
	opts     Opts
	logger   Logger
	metrics  *connMetrics
}

// NewConnection creates a connection on top of router.
func NewConnection(router Router, opts Opts) *Connection {
	conn := &Connection{
		router:  router,
		opts:    opts,
		logger:  opts.Logger,
		metrics: newConnMetrics(opts.Registerer),
	}
	if conn.logger == nil {
		conn.logger = NopLogger()
	}
	conn.resolver = NewResolver(conn)
	return conn
}

// Resolver returns the metadata resolver of the connection.
func (conn *Connection) Resolver() *Resolver {
	return conn.resolver
}

// Router returns the router the connection sends requests through.
func (conn *Connection) Router() Router {
	return conn.router
}

// Do routes and executes req and returns the raw response body.
func (conn *Connection) Do(ctx context.Context, req Request) ([]interface{}, error) {
	resp, err := conn.execute(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// NewCommand wraps req into a Command.
func (conn *Connection) NewCommand(req Request) *Command {
	return &Command{conn: conn, req: req, fallbackToMaster: true}
}

// Select resolves space and compiles cond into a select request.
func (conn *Connection) Select(ctx context.Context, space interface{}, cond Condition,
	opts SelectOpts) (*Select, error) {
	spaceID, err := conn.resolver.ResolveSpace(ctx, space)
	if err != nil {
		return nil, err
	}
	return CompileSelect(ctx, cond, opts, conn.resolver, spaceID)
}

// Render formats req for logs using cached names.
func (conn *Connection) Render(req Request) string {
	return Render(req, RenderOpts{
		MaxFieldLength: conn.opts.DebugStringMaxFieldLength,
		Names:          conn.resolver.CachedNames(),
	})
}

// Close closes the router if it can be closed and flushes the resolver
// caches, since a reopened connection may see a different schema.
func (conn *Connection) Close() error {
	conn.resolver.Flush()
	if closer, ok := conn.router.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (conn *Connection) route(ctx context.Context, req Request, fallbackToMaster bool) (Handle, error) {
	if IsReadOnly(req) {
		return conn.router.Replica(ctx, fallbackToMaster)
	}
	return conn.router.Master(ctx)
}

func (conn *Connection) execute(ctx context.Context, req Request, fallbackToMaster bool) (*Response, error) {
	if err := Validate(req); err != nil {
		conn.metrics.requests.WithLabelValues(req.Type().String(), "invalid").Inc()
		return nil, fmt.Errorf("invalid %s request: %w", req.Type(), err)
	}
	handle, err := conn.route(ctx, req, fallbackToMaster)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := handle.Do(ctx, req)
	if err != nil && IsTransientEncodingError(err) {
		data, err = conn.selfHeal(ctx, handle, req, err)
	}
	conn.report(req, start, err)
	if err != nil {
		return nil, err
	}
	return &Response{Type: req.Type(), Data: data}, nil
}

// selfHeal runs the encode_invalid_as_nil remedy on the handle that failed
// and repeats req exactly once. The encoding error may come from the data
// itself, so the retry is never repeated.
func (conn *Connection) selfHeal(ctx context.Context, handle Handle, req Request,
	cause error) ([]interface{}, error) {
	if !conn.opts.HandleTransientEncodingErrors {
		conn.metrics.selfHeal.WithLabelValues("disabled").Inc()
		return nil, selfHealDisabledError(&TransientEncodingError{Err: cause})
	}

	conn.logger.Report(SelfHealEvent{
		BaseEvent: NewBaseEvent("query.connection"),
		Statement: conn.Render(req),
		Error:     cause,
	})
	if _, err := handle.Do(ctx, &Eval{Expr: encodeInvalidAsNilExpr}); err != nil {
		conn.metrics.selfHeal.WithLabelValues("remedy_failed").Inc()
		conn.logger.Report(SelfHealFailedEvent{
			BaseEvent: NewBaseEvent("query.connection"),
			Error:     err,
		})
		return nil, selfHealFailedError(cause, err)
	}

	data, err := handle.Do(ctx, req)
	if err != nil {
		conn.metrics.selfHeal.WithLabelValues("retry_failed").Inc()
		return nil, selfHealRetryFailedError(cause, err)
	}
	conn.metrics.selfHeal.WithLabelValues("healed").Inc()
	return data, nil
}

func (conn *Connection) report(req Request, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	conn.metrics.requests.WithLabelValues(req.Type().String(), outcome).Inc()

	if _, ok := conn.logger.(nopLogger); ok {
		return
	}
	conn.logger.Report(RequestEvent{
		BaseEvent: NewBaseEvent("query.connection"),
		Type:      req.Type(),
		Statement: conn.Render(req),
		Duration:  time.Since(start),
		Error:     err,
	})
}
