// Package box wraps box.* server calls used by migration tooling: instance
// info, space/index DDL and users.
package box

import (
	query "github.com/ice-blockchain/go-tarantool-query"
)

// Box is a helper that wraps box.* requests.
type Box struct {
	conn     query.Doer
	resolver Resolver
}

// New returns a helper sending requests through conn. The resolver is used
// to turn space and index references into ids and is flushed after every
// DDL request. It is usually conn.Resolver() of a query.Connection.
func New(conn query.Doer, resolver Resolver) *Box {
	return &Box{
		conn:     conn,
		resolver: resolver,
	}
}

// Schema returns schema-related operations.
func (b *Box) Schema() *Schema {
	return NewSchema(b.conn, b.resolver)
}
