package box

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	query "github.com/ice-blockchain/go-tarantool-query"
	"github.com/ice-blockchain/go-tarantool-query/test_helpers"
)

type stubResolver struct {
	spaces       map[string]uint32
	indexes      map[string]uint32
	spaceFlushes int
	indexFlushes []uint32
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		spaces:  map[string]uint32{"users": 512},
		indexes: map[string]uint32{"primary": 0, "email": 1},
	}
}

func (r *stubResolver) ResolveSpace(_ context.Context, space interface{}) (uint32, error) {
	switch space := space.(type) {
	case string:
		if id, ok := r.spaces[space]; ok {
			return id, nil
		}
		return 0, &query.UnknownSpaceError{Space: space}
	case uint32:
		return space, nil
	case int:
		return uint32(space), nil
	}
	return 0, errors.New("bad space reference")
}

func (r *stubResolver) ResolveIndex(_ context.Context, spaceID uint32, index interface{}) (uint32, error) {
	switch index := index.(type) {
	case string:
		if id, ok := r.indexes[index]; ok {
			return id, nil
		}
		return 0, &query.UnknownIndexError{Index: index, SpaceID: spaceID}
	case uint32:
		return index, nil
	case int:
		return uint32(index), nil
	}
	return 0, errors.New("bad index reference")
}

func (r *stubResolver) FlushSpaceCache() {
	r.spaceFlushes++
}

func (r *stubResolver) FlushIndexCache(spaceID uint32) {
	r.indexFlushes = append(r.indexFlushes, spaceID)
}

func TestSchemaNotNil(t *testing.T) {
	s := NewSchema(nil, nil)
	require.NotNil(t, s)
	require.NotNil(t, s.User())
}

func TestSchemaCreateSpace(t *testing.T) {
	ctx := context.Background()
	handle := test_helpers.NewMockHandle(t, []interface{}{map[interface{}]interface{}{"id": uint64(512)}})
	resolver := newStubResolver()

	id, err := NewSchema(handle, resolver).CreateSpace(ctx, "users", SpaceOptions{IfNotExists: true})
	require.NoError(t, err)
	assert.Equal(t, uint32(512), id)
	assert.Equal(t, 1, resolver.spaceFlushes)

	reqs := handle.Requests()
	require.Len(t, reqs, 1)
	call := reqs[0].(*query.Call)
	assert.Equal(t, "box.schema.space.create", call.Function)
	assert.Equal(t, []interface{}{"users", SpaceOptions{IfNotExists: true}}, call.Args)
	assert.False(t, query.IsReadOnly(call))
}

func TestSchemaCreateSpaceError(t *testing.T) {
	ctx := context.Background()
	serverErr := errors.New("Space 'users' already exists")
	handle := test_helpers.NewMockHandle(t, serverErr)
	resolver := newStubResolver()

	_, err := NewSchema(handle, resolver).CreateSpace(ctx, "users", SpaceOptions{})
	require.ErrorIs(t, err, serverErr)
	assert.Contains(t, err.Error(), "Space 'users' already exists")
	assert.Equal(t, 1, resolver.spaceFlushes)
}

func TestSchemaCreateIndex(t *testing.T) {
	ctx := context.Background()
	handle := test_helpers.NewMockHandle(t, []interface{}{})
	resolver := newStubResolver()
	unique := true

	id, err := NewSchema(handle, resolver).CreateIndex(ctx, "users", "email", IndexOptions{
		Unique: &unique,
		Parts:  []IndexPart{{Field: 2, Type: "string"}},
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
	assert.Equal(t, []uint32{512}, resolver.indexFlushes)

	call := handle.Requests()[0].(*query.Call)
	assert.Equal(t, "box.schema.index.create", call.Function)
	assert.Equal(t, uint32(512), call.Args[0])
	assert.Equal(t, "email", call.Args[1])
}

func TestSchemaDropSpace(t *testing.T) {
	ctx := context.Background()
	handle := test_helpers.NewMockHandle(t, []interface{}{})
	resolver := newStubResolver()

	require.NoError(t, NewSchema(handle, resolver).DropSpace(ctx, "users"))
	assert.Equal(t, 1, resolver.spaceFlushes)
	assert.Equal(t, []uint32{512}, resolver.indexFlushes)

	call := handle.Requests()[0].(*query.Call)
	assert.Equal(t, "box.schema.space.drop", call.Function)
	assert.Equal(t, []interface{}{uint32(512)}, call.Args)
}

func TestSchemaDropIndex(t *testing.T) {
	ctx := context.Background()
	handle := test_helpers.NewMockHandle(t, []interface{}{})
	resolver := newStubResolver()

	require.NoError(t, NewSchema(handle, resolver).DropIndex(ctx, "users", "email"))
	assert.Equal(t, []uint32{512}, resolver.indexFlushes)

	call := handle.Requests()[0].(*query.Call)
	assert.Equal(t, "box.schema.index.drop", call.Function)
	assert.Equal(t, []interface{}{uint32(512), uint32(1)}, call.Args)
}

func TestSchemaDropUnknownSpace(t *testing.T) {
	ctx := context.Background()
	handle := test_helpers.NewMockHandle(t)
	resolver := newStubResolver()

	err := NewSchema(handle, resolver).DropSpace(ctx, "missing")
	var unknown *query.UnknownSpaceError
	require.ErrorAs(t, err, &unknown)
	assert.Empty(t, handle.Requests())
	assert.Zero(t, resolver.spaceFlushes)
}
