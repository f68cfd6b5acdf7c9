package query

import (
	"context"
	"fmt"
	"math/rand"
)

// Command executes a single request and shapes its result.
type Command struct {
	conn             *Connection
	req              Request
	fallbackToMaster bool
}

// Request returns the wrapped request.
func (cmd *Command) Request() Request {
	return cmd.req
}

// FallbackToMaster sets whether a read-only request may be sent to a master
// when no replica is configured or reachable.
// Note: default value is true.
func (cmd *Command) FallbackToMaster(fallback bool) *Command {
	cmd.fallbackToMaster = fallback
	return cmd
}

// String renders the request for logs.
func (cmd *Command) String() string {
	return cmd.conn.Render(cmd.req)
}

// Execute sends the request and returns the raw response.
func (cmd *Command) Execute(ctx context.Context) (*Response, error) {
	return cmd.conn.execute(ctx, cmd.req, cmd.fallbackToMaster)
}

// QueryAll returns all rows. The extra level call and eval wrap their
// results into is removed.
func (cmd *Command) QueryAll(ctx context.Context) ([]interface{}, error) {
	resp, err := cmd.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return resp.All(), nil
}

// QueryOne returns the first row. found is false on an empty result.
func (cmd *Command) QueryOne(ctx context.Context) (row interface{}, found bool, err error) {
	resp, err := cmd.Execute(ctx)
	if err != nil {
		return nil, false, err
	}
	row, found = resp.One()
	return row, found, nil
}

// QueryColumn returns the field at position field of every row.
func (cmd *Command) QueryColumn(ctx context.Context, field int) ([]interface{}, error) {
	resp, err := cmd.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Column(field), nil
}

// QueryScalar returns the first field of the first row.
func (cmd *Command) QueryScalar(ctx context.Context) (value interface{}, found bool, err error) {
	resp, err := cmd.Execute(ctx)
	if err != nil {
		return nil, false, err
	}
	value, found = resp.Scalar()
	return value, found, nil
}

// QueryGet turns a select into a point lookup with index:get(). Offset,
// limit and iterator are ignored. It fails with ErrNotSupported for any
// request other than a select.
func (cmd *Command) QueryGet(ctx context.Context) (row interface{}, found bool, err error) {
	sel, err := cmd.selectRequest("get")
	if err != nil {
		return nil, false, err
	}
	if cmd.conn.opts.ValidateGetUniqueness {
		index, err := cmd.conn.resolver.Index(ctx, sel.SpaceID, sel.IndexID)
		if err != nil {
			return nil, false, err
		}
		if !index.Unique {
			return nil, false, fmt.Errorf("%w: get on non-unique index '%s' in space #%d",
				ErrNotSupported, index.Name, sel.SpaceID)
		}
	}
	return cmd.aggregate(sel, getExpr, sel.SpaceID, sel.IndexID, keyOrEmpty(sel.Key)).QueryOne(ctx)
}

// Count returns the number of tuples matching the select key and iterator.
func (cmd *Command) Count(ctx context.Context) (uint64, error) {
	sel, err := cmd.selectRequest("count")
	if err != nil {
		return 0, err
	}
	value, found, err := cmd.aggregate(sel, countExpr,
		sel.SpaceID, sel.IndexID, keyOrEmpty(sel.Key), IteratorName(sel.Iterator)).QueryScalar(ctx)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	n, ok := toUint64(value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result %v (%T)", value, value)
	}
	return n, nil
}

// Max returns the tuple with the largest key of the select index.
func (cmd *Command) Max(ctx context.Context) (row interface{}, found bool, err error) {
	sel, err := cmd.selectRequest("max")
	if err != nil {
		return nil, false, err
	}
	return cmd.aggregate(sel, maxExpr, sel.SpaceID, sel.IndexID, keyOrEmpty(sel.Key)).QueryOne(ctx)
}

// Min returns the tuple with the smallest key of the select index.
func (cmd *Command) Min(ctx context.Context) (row interface{}, found bool, err error) {
	sel, err := cmd.selectRequest("min")
	if err != nil {
		return nil, false, err
	}
	return cmd.aggregate(sel, minExpr, sel.SpaceID, sel.IndexID, keyOrEmpty(sel.Key)).QueryOne(ctx)
}

// Random returns a random tuple of the select index using a generated seed.
func (cmd *Command) Random(ctx context.Context) (row interface{}, found bool, err error) {
	return cmd.RandomSeed(ctx, rand.Uint32())
}

// RandomSeed returns a random tuple of the select index for seed.
func (cmd *Command) RandomSeed(ctx context.Context, seed uint32) (row interface{}, found bool, err error) {
	sel, err := cmd.selectRequest("random")
	if err != nil {
		return nil, false, err
	}
	return cmd.aggregate(sel, randomExpr, sel.SpaceID, sel.IndexID, seed).QueryOne(ctx)
}

func (cmd *Command) selectRequest(op string) (*Select, error) {
	sel, ok := cmd.req.(*Select)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires a select, got %s", ErrNotSupported, op, cmd.req.Type())
	}
	return sel, nil
}

// aggregate builds a command evaluating expr that keeps the routing of the
// select it was derived from.
func (cmd *Command) aggregate(sel *Select, expr string, args ...interface{}) *Command {
	mode := RW
	if IsReadOnly(sel) {
		mode = ANY
	}
	return &Command{
		conn:             cmd.conn,
		req:              &Eval{Expr: expr, Args: args, RouteAs: mode},
		fallbackToMaster: cmd.fallbackToMaster,
	}
}

func toUint64(v interface{}) (uint64, bool) {
	switch v := v.(type) {
	case uint64:
		return v, true
	case uint32:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint:
		return uint64(v), true
	case int64:
		return uint64(v), v >= 0
	case int32:
		return uint64(v), v >= 0
	case int16:
		return uint64(v), v >= 0
	case int8:
		return uint64(v), v >= 0
	case int:
		return uint64(v), v >= 0
	case float64:
		return uint64(v), v >= 0
	default:
		return 0, false
	}
}
