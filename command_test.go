package query_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarantool/go-tarantool/v2"

	. "github.com/ice-blockchain/go-tarantool-query"
	"github.com/ice-blockchain/go-tarantool-query/test_helpers"
)

func TestCommandNormalizationIdempotence(t *testing.T) {
	ctx := context.Background()
	requests := map[string]Request{
		"select": &Select{SpaceID: usersSpaceID},
		"call":   &Call{Function: "users.all"},
		"eval":   &Eval{Expr: "return box.space.users:select()", RouteAs: ANY},
	}

	for name, req := range requests {
		t.Run(name, func(t *testing.T) {
			data := logicalRows
			if _, ok := req.(*Select); !ok {
				data = []interface{}{logicalRows}
			}
			replica := test_helpers.NewMockHandle(t, data, data, data, data)
			conn := NewConnection(test_helpers.NewMockRouter(nil, replica), Opts{})
			cmd := conn.NewCommand(req)

			rows, err := cmd.QueryAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, logicalRows, rows)

			row, found, err := cmd.QueryOne(ctx)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, logicalRows[0], row)

			column, err := cmd.QueryColumn(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, []interface{}{"alice", "bob"}, column)

			value, found, err := cmd.QueryScalar(ctx)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, uint64(1), value)
		})
	}
}

func TestCommandNoResult(t *testing.T) {
	ctx := context.Background()
	replica := test_helpers.NewMockHandle(t, []interface{}{}, []interface{}{nil})
	conn := NewConnection(test_helpers.NewMockRouter(nil, replica), Opts{})

	row, found, err := conn.NewCommand(&Select{SpaceID: usersSpaceID}).QueryOne(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, row)

	value, found, err := conn.NewCommand(&Call{Function: "users.find"}).QueryScalar(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestCommandQueryGet(t *testing.T) {
	ctx := context.Background()
	tuple := []interface{}{uint64(1), "alice", uint64(30)}
	replica := test_helpers.NewMockHandle(t, []interface{}{tuple})
	conn := NewConnection(test_helpers.NewMockRouter(nil, replica), Opts{})
	sel := &Select{SpaceID: usersSpaceID, IndexID: 1, Key: []interface{}{"a@b"}, Limit: 5,
		Iterator: tarantool.IterGe}

	row, found, err := conn.NewCommand(sel).QueryGet(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tuple, row)

	reqs := replica.Requests()
	require.Len(t, reqs, 1)
	eval, ok := reqs[0].(*Eval)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(eval.Expr, "box.space[s].index[i]:get(k)"))
	assert.Equal(t, []interface{}{usersSpaceID, uint32(1), []interface{}{"a@b"}}, eval.Args)
	assert.Equal(t, ANY, eval.RouteAs)
}

func TestCommandQueryGetNotFound(t *testing.T) {
	ctx := context.Background()
	replica := test_helpers.NewMockHandle(t, []interface{}{})
	conn := NewConnection(test_helpers.NewMockRouter(nil, replica), Opts{})

	_, found, err := conn.NewCommand(&Select{SpaceID: usersSpaceID, Key: []interface{}{42}}).QueryGet(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCommandSelectOnlyOperations(t *testing.T) {
	ctx := context.Background()
	conn := NewConnection(test_helpers.NewMockRouter(nil, nil), Opts{})
	cmd := conn.NewCommand(&Call{Function: "users.all"})

	_, _, err := cmd.QueryGet(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
	_, err = cmd.Count(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
	_, _, err = cmd.Max(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
	_, _, err = cmd.Min(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
	_, _, err = cmd.Random(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
}

func TestCommandQueryGetValidatesUniqueness(t *testing.T) {
	ctx := context.Background()
	catalog := newUsersCatalog()
	tuple := []interface{}{uint64(1), "alice", uint64(30)}
	replica := catalogHandle(t, catalog)
	conn := NewConnection(test_helpers.NewMockRouter(nil, replica), Opts{ValidateGetUniqueness: true})

	_, _, err := conn.NewCommand(&Select{SpaceID: usersSpaceID, IndexID: 2, Key: []interface{}{30}}).QueryGet(ctx)
	require.ErrorIs(t, err, ErrNotSupported)
	assert.Contains(t, err.Error(), "non-unique index 'age'")

	// Scripted responses would be consumed by the catalog selects first.
	replica = test_helpers.NewMockHandle(t)
	replica.Fallback = func(req Request) ([]interface{}, error) {
		if data, ok := catalog.Answer(req); ok {
			return data, nil
		}
		return []interface{}{tuple}, nil
	}
	conn = NewConnection(test_helpers.NewMockRouter(nil, replica), Opts{ValidateGetUniqueness: true})
	row, found, err := conn.NewCommand(&Select{SpaceID: usersSpaceID, IndexID: 1, Key: []interface{}{"a@b"}}).
		QueryGet(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tuple, row)
}

func TestCommandCount(t *testing.T) {
	ctx := context.Background()
	replica := test_helpers.NewMockHandle(t, []interface{}{uint64(3)})
	conn := NewConnection(test_helpers.NewMockRouter(nil, replica), Opts{})
	sel := &Select{SpaceID: usersSpaceID, IndexID: 2, Key: []interface{}{18}, Iterator: tarantool.IterGe}

	n, err := conn.NewCommand(sel).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	eval := replica.Requests()[0].(*Eval)
	assert.Contains(t, eval.Expr, ":count(k, {iterator = it})")
	assert.Equal(t, []interface{}{usersSpaceID, uint32(2), []interface{}{18}, "GE"}, eval.Args)
}

func TestCommandAggregatesInheritRouting(t *testing.T) {
	ctx := context.Background()
	master := test_helpers.NewMockHandle(t, []interface{}{int64(7)})
	replica := test_helpers.NewMockHandle(t)
	conn := NewConnection(test_helpers.NewMockRouter(master, replica), Opts{})

	n, err := conn.NewCommand(&Select{SpaceID: usersSpaceID, RouteAs: RW}).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), n)
	assert.Empty(t, replica.Requests())
	require.Len(t, master.Requests(), 1)
	assert.Equal(t, RW, master.Requests()[0].(*Eval).RouteAs)
}

func TestCommandMaxMin(t *testing.T) {
	ctx := context.Background()
	oldest := []interface{}{uint64(3), "carol", uint64(41)}
	youngest := []interface{}{uint64(2), "bob", uint64(25)}
	replica := test_helpers.NewMockHandle(t, []interface{}{oldest}, []interface{}{youngest})
	conn := NewConnection(test_helpers.NewMockRouter(nil, replica), Opts{})
	cmd := conn.NewCommand(&Select{SpaceID: usersSpaceID, IndexID: 2})

	row, found, err := cmd.Max(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, oldest, row)

	row, found, err = cmd.Min(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, youngest, row)

	reqs := replica.Requests()
	assert.Contains(t, reqs[0].(*Eval).Expr, ":max(k)")
	assert.Contains(t, reqs[1].(*Eval).Expr, ":min(k)")
	assert.Equal(t, []interface{}{usersSpaceID, uint32(2), []interface{}{}}, reqs[1].(*Eval).Args)
}

func TestCommandRandom(t *testing.T) {
	ctx := context.Background()
	tuple := []interface{}{uint64(1), "alice", uint64(30)}
	replica := test_helpers.NewMockHandle(t, []interface{}{tuple}, []interface{}{tuple})
	conn := NewConnection(test_helpers.NewMockRouter(nil, replica), Opts{})
	cmd := conn.NewCommand(&Select{SpaceID: usersSpaceID})

	row, found, err := cmd.RandomSeed(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tuple, row)

	_, found, err = cmd.Random(ctx)
	require.NoError(t, err)
	require.True(t, found)

	reqs := replica.Requests()
	assert.Contains(t, reqs[0].(*Eval).Expr, ":random(seed)")
	assert.Equal(t, []interface{}{usersSpaceID, uint32(0), uint32(7)}, reqs[0].(*Eval).Args)
	assert.IsType(t, uint32(0), reqs[1].(*Eval).Args[2])
}

func TestCommandString(t *testing.T) {
	conn := NewConnection(test_helpers.NewMockRouter(nil, nil), Opts{DebugStringMaxFieldLength: 3})
	cmd := conn.NewCommand(&Call{Function: "users.find", Args: []interface{}{"alice"}})

	assert.Equal(t, "CALL users.find('ali...')", cmd.String())
	assert.Equal(t, &Call{Function: "users.find", Args: []interface{}{"alice"}}, cmd.Request())
}
