package query

import (
	"context"

	"github.com/tarantool/go-tarantool/v2"
	_ "github.com/tarantool/go-tarantool/v2/uuid"
)

// Doer is an interface that performs requests synchronously and returns the
// raw response body.
type Doer interface {
	// Do performs a request and waits for its result.
	Do(ctx context.Context, req Request) ([]interface{}, error)
}

// Handle is an open channel to a single instance. It is owned by the pool
// slot that opened it.
type Handle interface {
	Doer
	Close() error
}

// Router picks a live handle for a request.
type Router interface {
	// Master returns a handle bound to a writable instance.
	Master(ctx context.Context) (Handle, error)
	// Replica returns a handle bound to a read replica. With
	// fallbackToMaster a master handle is returned when no replica is
	// configured or reachable.
	Replica(ctx context.Context, fallbackToMaster bool) (Handle, error)
}

// ConnHandle adapts a connector connection to Handle. The connector
// multiplexes requests, so concurrent callers may share one ConnHandle.
//
// Decimal, datetime and UUID extension values are decoded into
// decimal.Decimal, datetime.Datetime and uuid.UUID.
type ConnHandle struct {
	conn *tarantool.Connection
}

// NewConnHandle wraps an established connection.
func NewConnHandle(conn *tarantool.Connection) *ConnHandle {
	return &ConnHandle{conn: conn}
}

// Do sends req over the connection and waits for the response data.
func (h *ConnHandle) Do(ctx context.Context, req Request) ([]interface{}, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	return h.conn.Do(req.Wire(ctx)).Get()
}

// Close closes the underlying connection.
func (h *ConnHandle) Close() error {
	return h.conn.Close()
}

// ConnectedNow reports if the underlying connection is established.
func (h *ConnHandle) ConnectedNow() bool {
	return h.conn.ConnectedNow()
}
