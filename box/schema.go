package box

import (
	"context"
	"fmt"

	query "github.com/ice-blockchain/go-tarantool-query"
)

// Resolver turns space and index references into ids and drops cached
// names after schema changes. *query.Resolver implements it.
type Resolver interface {
	ResolveSpace(ctx context.Context, space interface{}) (uint32, error)
	ResolveIndex(ctx context.Context, spaceID uint32, index interface{}) (uint32, error)
	FlushSpaceCache()
	FlushIndexCache(spaceID uint32)
}

// Schema represents the schema-related operations in Tarantool.
//
// The box.schema functions return space and index objects holding Lua
// functions. The server encodes them only with encode_invalid_as_nil, so
// the connection should run with query.Opts.HandleTransientEncodingErrors
// or the server must be configured accordingly.
type Schema struct {
	conn     query.Doer
	resolver Resolver
}

// NewSchema creates a new Schema sending requests through conn.
func NewSchema(conn query.Doer, resolver Resolver) *Schema {
	return &Schema{conn: conn, resolver: resolver}
}

// User returns user-related schema operations.
func (s *Schema) User() *SchemaUser {
	return NewSchemaUser(s.conn)
}

// FieldFormat describes a field of a space format.
type FieldFormat struct {
	Name       string `msgpack:"name"`
	Type       string `msgpack:"type"`
	IsNullable bool   `msgpack:"is_nullable,omitempty"`
}

// SpaceOptions are passed to box.schema.space.create.
type SpaceOptions struct {
	// IfNotExists - if true, prevents an error if the space already exists.
	IfNotExists bool          `msgpack:"if_not_exists,omitempty"`
	Engine      string        `msgpack:"engine,omitempty"`
	ID          uint32        `msgpack:"id,omitempty"`
	FieldCount  uint32        `msgpack:"field_count,omitempty"`
	Temporary   bool          `msgpack:"temporary,omitempty"`
	Format      []FieldFormat `msgpack:"format,omitempty"`
}

// IndexPart is a key part of an index. Field is 1-based as in Lua.
type IndexPart struct {
	Field      uint32 `msgpack:"field"`
	Type       string `msgpack:"type"`
	IsNullable bool   `msgpack:"is_nullable,omitempty"`
}

// IndexOptions are passed to box.schema.index.create.
type IndexOptions struct {
	// IfNotExists - if true, prevents an error if the index already exists.
	IfNotExists bool        `msgpack:"if_not_exists,omitempty"`
	Type        string      `msgpack:"type,omitempty"`
	ID          uint32      `msgpack:"id,omitempty"`
	Unique      *bool       `msgpack:"unique,omitempty"`
	Parts       []IndexPart `msgpack:"parts,omitempty"`
}

// NewSpaceCreateRequest returns a call of box.schema.space.create.
func NewSpaceCreateRequest(name string, options SpaceOptions) *query.Call {
	return &query.Call{
		Function: "box.schema.space.create",
		Args:     []interface{}{name, options},
		RouteAs:  query.RW,
	}
}

// NewSpaceDropRequest returns a call of box.schema.space.drop.
func NewSpaceDropRequest(spaceID uint32) *query.Call {
	return &query.Call{
		Function: "box.schema.space.drop",
		Args:     []interface{}{spaceID},
		RouteAs:  query.RW,
	}
}

// NewIndexCreateRequest returns a call of box.schema.index.create.
func NewIndexCreateRequest(spaceID uint32, name string, options IndexOptions) *query.Call {
	return &query.Call{
		Function: "box.schema.index.create",
		Args:     []interface{}{spaceID, name, options},
		RouteAs:  query.RW,
	}
}

// NewIndexDropRequest returns a call of box.schema.index.drop.
func NewIndexDropRequest(spaceID, indexID uint32) *query.Call {
	return &query.Call{
		Function: "box.schema.index.drop",
		Args:     []interface{}{spaceID, indexID},
		RouteAs:  query.RW,
	}
}

// CreateSpace creates a space and returns its id.
func (s *Schema) CreateSpace(ctx context.Context, name string, options SpaceOptions) (uint32, error) {
	_, err := s.conn.Do(ctx, NewSpaceCreateRequest(name, options))
	s.resolver.FlushSpaceCache()
	if err != nil {
		return 0, fmt.Errorf("failed to create space '%s': %w", name, err)
	}
	return s.resolver.ResolveSpace(ctx, name)
}

// DropSpace drops a space given by name or id.
func (s *Schema) DropSpace(ctx context.Context, space interface{}) error {
	spaceID, err := s.resolver.ResolveSpace(ctx, space)
	if err != nil {
		return err
	}
	_, err = s.conn.Do(ctx, NewSpaceDropRequest(spaceID))
	s.resolver.FlushSpaceCache()
	s.resolver.FlushIndexCache(spaceID)
	if err != nil {
		return fmt.Errorf("failed to drop space #%d: %w", spaceID, err)
	}
	return nil
}

// CreateIndex creates an index in a space given by name or id and returns
// the index id.
func (s *Schema) CreateIndex(ctx context.Context, space interface{}, name string,
	options IndexOptions) (uint32, error) {
	spaceID, err := s.resolver.ResolveSpace(ctx, space)
	if err != nil {
		return 0, err
	}
	_, err = s.conn.Do(ctx, NewIndexCreateRequest(spaceID, name, options))
	s.resolver.FlushIndexCache(spaceID)
	if err != nil {
		return 0, fmt.Errorf("failed to create index '%s' in space #%d: %w", name, spaceID, err)
	}
	return s.resolver.ResolveIndex(ctx, spaceID, name)
}

// DropIndex drops an index. Both space and index may be a name or an id.
func (s *Schema) DropIndex(ctx context.Context, space, index interface{}) error {
	spaceID, err := s.resolver.ResolveSpace(ctx, space)
	if err != nil {
		return err
	}
	indexID, err := s.resolver.ResolveIndex(ctx, spaceID, index)
	if err != nil {
		return err
	}
	_, err = s.conn.Do(ctx, NewIndexDropRequest(spaceID, indexID))
	s.resolver.FlushIndexCache(spaceID)
	if err != nil {
		return fmt.Errorf("failed to drop index #%d in space #%d: %w", indexID, spaceID, err)
	}
	return nil
}
