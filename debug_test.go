package query_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarantool/go-tarantool/v2"
	tntdecimal "github.com/tarantool/go-tarantool/v2/decimal"

	. "github.com/ice-blockchain/go-tarantool-query"
)

func TestRenderGrammar(t *testing.T) {
	cases := []struct {
		name     string
		req      Request
		expected string
	}{
		{
			"select",
			&Select{SpaceID: 512, IndexID: 0, Key: []interface{}{1}, Iterator: tarantool.IterEq},
			"box.space[512].index[0]:select({1}, {iterator=EQ})",
		},
		{
			"select paged",
			&Select{SpaceID: 512, IndexID: 2, Key: []interface{}{30, "bob"}, Iterator: tarantool.IterGe,
				Limit: 10, Offset: 20},
			"box.space[512].index[2]:select({30, 'bob'}, {iterator=GE, limit=10, offset=20})",
		},
		{
			"select unlimited",
			&Select{SpaceID: 512, Limit: 0xFFFFFFFF, Iterator: tarantool.IterReq},
			"box.space[512].index[0]:select({}, {iterator=REQ})",
		},
		{
			"insert",
			&Insert{SpaceID: 512, Tuple: []interface{}{1, "alice", true, nil}},
			"box.space[512]:insert({1, 'alice', true, nil})",
		},
		{
			"replace",
			&Replace{SpaceID: 512, Tuple: []interface{}{1, 2.5}},
			"box.space[512]:replace({1, 2.5})",
		},
		{
			"update",
			&Update{SpaceID: 512, IndexID: 1, Key: []interface{}{"a@b"}, Ops: []Op{
				{Operator: OpAdd, Field: 2, Arg: 1},
				{Operator: OpSplice, Field: 1, Arg: SpliceArg{Pos: 1, Len: 2, Replace: "xy"}},
			}},
			"box.space[512].index[1]:update({'a@b'}, {{'+', 2, 1}, {':', 1, 1, 2, 'xy'}})",
		},
		{
			"upsert",
			&Upsert{SpaceID: 512, Tuple: []interface{}{1}, Ops: []Op{{Operator: OpAssign, Field: 1, Arg: "x"}}},
			"box.space[512]:upsert({1}, {{'=', 1, 'x'}})",
		},
		{
			"delete",
			&Delete{SpaceID: 512, Key: []interface{}{1}},
			"box.space[512].index[0]:delete({1})",
		},
		{
			"call",
			&Call{Function: "app.find", Args: []interface{}{1, "a"}},
			"CALL app.find(1, 'a')",
		},
		{
			"eval",
			&Eval{Expr: "return 1"},
			"EVAL return 1",
		},
		{
			"eval args",
			&Eval{Expr: "return ...", Args: []interface{}{1, []interface{}{2, 3}}},
			"EVAL return ... | args: {1, {2, 3}}",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Render(tc.req, RenderOpts{}))
		})
	}
}

func TestRenderValues(t *testing.T) {
	id := uuid.MustParse("69360e9b-4641-4ec3-ab51-297f46749849")
	tuple := []interface{}{
		map[string]interface{}{"b": "x", "a": 1},
		map[interface{}]interface{}{uint64(1): false},
		decimal.RequireFromString("1.5"),
		tntdecimal.MakeDecimal(decimal.RequireFromString("2.25")),
		id,
		"it's",
		[]byte("raw"),
		[]int{1, 2},
	}

	assert.Equal(t,
		"box.space[512]:insert({{a = 1, b = 'x'}, {[1] = false}, 1.5, 2.25, "+
			"'69360e9b-4641-4ec3-ab51-297f46749849', 'it\\'s', 'raw', {1, 2}})",
		Render(&Insert{SpaceID: 512, Tuple: tuple}, RenderOpts{}))
}

func TestRenderTypedNilPointers(t *testing.T) {
	var name *string
	tuple := []interface{}{1, (*uuid.UUID)(nil), (*decimal.Decimal)(nil), (*tntdecimal.Decimal)(nil), name}

	assert.Equal(t, "box.space[512]:insert({1, nil, nil, nil, nil})",
		Render(&Insert{SpaceID: 512, Tuple: tuple}, RenderOpts{}))

	id := uuid.MustParse("69360e9b-4641-4ec3-ab51-297f46749849")
	assert.Equal(t, "box.space[512]:insert({'69360e9b-4641-4ec3-ab51-297f46749849'})",
		Render(&Insert{SpaceID: 512, Tuple: []interface{}{&id}}, RenderOpts{}))
}

func TestRenderEscapesBackslashes(t *testing.T) {
	cases := []struct {
		value    string
		expected string
	}{
		{`a\`, `'a\\'`},
		{`a\'`, `'a\\\''`},
		{`C:\tmp`, `'C:\\tmp'`},
	}

	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			assert.Equal(t, "box.space[512]:insert({"+tc.expected+"})",
				Render(&Insert{SpaceID: 512, Tuple: []interface{}{tc.value}}, RenderOpts{}))
		})
	}
}

func TestRenderTruncation(t *testing.T) {
	long := strings.Repeat("a", 200)
	req := &Insert{SpaceID: 512, Tuple: []interface{}{long}}

	assert.Equal(t, "box.space[512]:insert({'"+strings.Repeat("a", 128)+"...'})",
		Render(req, RenderOpts{}))
	assert.Equal(t, "box.space[512]:insert({'aaaaa...'})",
		Render(req, RenderOpts{MaxFieldLength: 5}))
	assert.Equal(t, "box.space[512]:insert({'"+long+"'})",
		Render(req, RenderOpts{MaxFieldLength: -1}))
	assert.Equal(t, "box.space[512]:insert({'abc'})",
		Render(&Insert{SpaceID: 512, Tuple: []interface{}{"abc"}}, RenderOpts{MaxFieldLength: 3}))
}

func TestRenderNames(t *testing.T) {
	ctx := context.Background()
	resolver := NewResolver(newUsersCatalog())
	req := &Select{SpaceID: usersSpaceID, IndexID: 2, Key: []interface{}{30}, Iterator: tarantool.IterGt}

	// Nothing is cached yet: ids are rendered without a round trip.
	assert.Equal(t, "box.space[512].index[2]:select({30}, {iterator=GT})",
		Render(req, RenderOpts{Names: resolver.CachedNames()}))

	assert.Equal(t, "box.space.users.index.age:select({30}, {iterator=GT})",
		Render(req, RenderOpts{Names: resolver.Names(ctx)}))
	assert.Equal(t, "box.space.users:insert({1})",
		Render(&Insert{SpaceID: usersSpaceID, Tuple: []interface{}{1}}, RenderOpts{Names: resolver.CachedNames()}))

	// Unknown ids fall back to numbers.
	assert.Equal(t, "box.space.users.index[9]:delete({1})",
		Render(&Delete{SpaceID: usersSpaceID, IndexID: 9, Key: []interface{}{1}},
			RenderOpts{Names: resolver.Names(ctx)}))
}

func TestRenderNil(t *testing.T) {
	require.Equal(t, "<nil request>", Render(nil, RenderOpts{}))
}

func TestIteratorName(t *testing.T) {
	assert.Equal(t, "EQ", IteratorName(tarantool.IterEq))
	assert.Equal(t, "REQ", IteratorName(tarantool.IterReq))
	assert.Equal(t, "ALL", IteratorName(tarantool.IterAll))
	assert.Equal(t, "LT", IteratorName(tarantool.IterLt))
	assert.Equal(t, "LE", IteratorName(tarantool.IterLe))
	assert.Equal(t, "GE", IteratorName(tarantool.IterGe))
	assert.Equal(t, "GT", IteratorName(tarantool.IterGt))
}
