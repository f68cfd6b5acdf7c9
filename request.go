package query

import (
	"context"
	"fmt"

	"github.com/tarantool/go-iproto"
	"github.com/tarantool/go-tarantool/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Mode overrides the read/write classification of a request.
type Mode uint32

const (
	Auto Mode = iota // Classify by request type.
	RW               // The request must be executed on a master.
	ANY              // The request may be executed on a replica.
)

// Request is a wire-protocol request that can be routed and executed.
type Request interface {
	// Type returns the IPROTO type of the request.
	Type() iproto.Type
	// Mode returns the routing override of the request.
	Mode() Mode
	// Wire builds a connector request bound to ctx.
	Wire(ctx context.Context) tarantool.Request
}

// IsReadOnly reports whether req may be routed to a replica.
//
//	  Request   Default
//	---------- ---------
//	| select  | replica |
//	| call    | replica |
//	| insert  | master  |
//	| replace | master  |
//	| update  | master  |
//	| upsert  | master  |
//	| delete  | master  |
//	| eval    | master  |
func IsReadOnly(req Request) bool {
	switch req.Mode() {
	case RW:
		return false
	case ANY:
		return true
	}
	switch req.Type() {
	case iproto.IPROTO_SELECT, iproto.IPROTO_CALL:
		return true
	default:
		return false
	}
}

// Select is a compiled or hand-built select request.
type Select struct {
	SpaceID  uint32
	IndexID  uint32
	Key      []interface{}
	Offset   uint32
	Limit    uint32 // 0 means no limit.
	Iterator tarantool.Iter
	RouteAs  Mode
}

func (req *Select) Type() iproto.Type { return iproto.IPROTO_SELECT }
func (req *Select) Mode() Mode        { return req.RouteAs }

// Wire builds a connector select request.
func (req *Select) Wire(ctx context.Context) tarantool.Request {
	limit := req.Limit
	if limit == 0 {
		limit = unlimited
	}
	return tarantool.NewSelectRequest(req.SpaceID).
		Index(req.IndexID).
		Offset(req.Offset).
		Limit(limit).
		Iterator(req.Iterator).
		Key(keyOrEmpty(req.Key)).
		Context(ctx)
}

// Insert inserts a tuple into a space.
type Insert struct {
	SpaceID uint32
	Tuple   []interface{}
	RouteAs Mode
}

func (req *Insert) Type() iproto.Type { return iproto.IPROTO_INSERT }
func (req *Insert) Mode() Mode        { return req.RouteAs }

// Wire builds a connector insert request.
func (req *Insert) Wire(ctx context.Context) tarantool.Request {
	return tarantool.NewInsertRequest(req.SpaceID).Tuple(keyOrEmpty(req.Tuple)).Context(ctx)
}

// Replace inserts or replaces a tuple in a space.
type Replace struct {
	SpaceID uint32
	Tuple   []interface{}
	RouteAs Mode
}

func (req *Replace) Type() iproto.Type { return iproto.IPROTO_REPLACE }
func (req *Replace) Mode() Mode        { return req.RouteAs }

// Wire builds a connector replace request.
func (req *Replace) Wire(ctx context.Context) tarantool.Request {
	return tarantool.NewReplaceRequest(req.SpaceID).Tuple(keyOrEmpty(req.Tuple)).Context(ctx)
}

// Update applies operations to the tuple found by key.
type Update struct {
	SpaceID uint32
	IndexID uint32
	Key     []interface{}
	Ops     []Op
	RouteAs Mode
}

func (req *Update) Type() iproto.Type { return iproto.IPROTO_UPDATE }
func (req *Update) Mode() Mode        { return req.RouteAs }

// Validate checks the update operations.
func (req *Update) Validate() error {
	return ValidateOps(req.Ops)
}

// Wire builds a connector update request. A request with invalid
// operations fails to encode instead of sending a subset of them.
func (req *Update) Wire(ctx context.Context) tarantool.Request {
	ops, err := buildOperations(req.Ops)
	wire := tarantool.NewUpdateRequest(req.SpaceID).
		Index(req.IndexID).
		Key(keyOrEmpty(req.Key)).
		Operations(ops).
		Context(ctx)
	if err != nil {
		return rejectedRequest{Request: wire, err: err}
	}
	return wire
}

// Upsert inserts a tuple or applies operations to an existing one.
type Upsert struct {
	SpaceID uint32
	Tuple   []interface{}
	Ops     []Op
	RouteAs Mode
}

func (req *Upsert) Type() iproto.Type { return iproto.IPROTO_UPSERT }
func (req *Upsert) Mode() Mode        { return req.RouteAs }

// Validate checks the upsert operations.
func (req *Upsert) Validate() error {
	return ValidateOps(req.Ops)
}

// Wire builds a connector upsert request. A request with invalid
// operations fails to encode instead of sending a subset of them.
func (req *Upsert) Wire(ctx context.Context) tarantool.Request {
	ops, err := buildOperations(req.Ops)
	wire := tarantool.NewUpsertRequest(req.SpaceID).
		Tuple(keyOrEmpty(req.Tuple)).
		Operations(ops).
		Context(ctx)
	if err != nil {
		return rejectedRequest{Request: wire, err: err}
	}
	return wire
}

// Delete removes the tuple found by key.
type Delete struct {
	SpaceID uint32
	IndexID uint32
	Key     []interface{}
	RouteAs Mode
}

func (req *Delete) Type() iproto.Type { return iproto.IPROTO_DELETE }
func (req *Delete) Mode() Mode        { return req.RouteAs }

// Wire builds a connector delete request.
func (req *Delete) Wire(ctx context.Context) tarantool.Request {
	return tarantool.NewDeleteRequest(req.SpaceID).
		Index(req.IndexID).
		Key(keyOrEmpty(req.Key)).
		Context(ctx)
}

// Call invokes a stored function.
type Call struct {
	Function string
	Args     []interface{}
	RouteAs  Mode
}

func (req *Call) Type() iproto.Type { return iproto.IPROTO_CALL }
func (req *Call) Mode() Mode        { return req.RouteAs }

// Wire builds a connector call request.
func (req *Call) Wire(ctx context.Context) tarantool.Request {
	return tarantool.NewCallRequest(req.Function).Args(keyOrEmpty(req.Args)).Context(ctx)
}

// Eval evaluates a Lua expression.
type Eval struct {
	Expr    string
	Args    []interface{}
	RouteAs Mode
}

func (req *Eval) Type() iproto.Type { return iproto.IPROTO_EVAL }
func (req *Eval) Mode() Mode        { return req.RouteAs }

// Wire builds a connector eval request.
func (req *Eval) Wire(ctx context.Context) tarantool.Request {
	return tarantool.NewEvalRequest(req.Expr).Args(keyOrEmpty(req.Args)).Context(ctx)
}

// keyOrEmpty keeps nil tuples from being encoded as msgpack nil.
func keyOrEmpty(key []interface{}) []interface{} {
	if key == nil {
		return []interface{}{}
	}
	return key
}

// Update operators.
const (
	OpAdd    = "+"
	OpSub    = "-"
	OpAnd    = "&"
	OpOr     = "|"
	OpXor    = "^"
	OpAssign = "="
	OpInsert = "!"
	OpDelete = "#"
	OpSplice = ":"
)

// Op is a single update operation on a tuple field.
type Op struct {
	Operator string
	Field    int
	Arg      interface{}
}

// SpliceArg is the argument of a splice (":") operation.
type SpliceArg struct {
	Pos     int
	Len     int
	Replace string
}

// ValidateOps checks that every operator is known and that splice
// operations carry a SpliceArg.
func ValidateOps(ops []Op) error {
	for i, op := range ops {
		switch op.Operator {
		case OpAdd, OpSub, OpAnd, OpOr, OpXor, OpAssign, OpInsert, OpDelete:
		case OpSplice:
			if _, ok := op.Arg.(SpliceArg); !ok {
				return fmt.Errorf("operation %d: splice requires SpliceArg, got %T", i, op.Arg)
			}
		default:
			return fmt.Errorf("operation %d: unknown operator %q", i, op.Operator)
		}
	}
	return nil
}

// validator is implemented by requests that can be checked before they
// are sent.
type validator interface {
	Validate() error
}

// Validate returns the validation error of req, if req can be validated.
func Validate(req Request) error {
	if v, ok := req.(validator); ok {
		return v.Validate()
	}
	return nil
}

// rejectedRequest fails body encoding, so the connector never writes it.
type rejectedRequest struct {
	tarantool.Request
	err error
}

func (r rejectedRequest) Body(tarantool.SchemaResolver, *msgpack.Encoder) error {
	return r.err
}

func buildOperations(ops []Op) (*tarantool.Operations, error) {
	if err := ValidateOps(ops); err != nil {
		return tarantool.NewOperations(), err
	}
	res := tarantool.NewOperations()
	for _, op := range ops {
		switch op.Operator {
		case OpAdd:
			res = res.Add(op.Field, op.Arg)
		case OpSub:
			res = res.Subtract(op.Field, op.Arg)
		case OpAnd:
			res = res.BitwiseAnd(op.Field, op.Arg)
		case OpOr:
			res = res.BitwiseOr(op.Field, op.Arg)
		case OpXor:
			res = res.BitwiseXor(op.Field, op.Arg)
		case OpAssign:
			res = res.Assign(op.Field, op.Arg)
		case OpInsert:
			res = res.Insert(op.Field, op.Arg)
		case OpDelete:
			res = res.Delete(op.Field, op.Arg)
		case OpSplice:
			arg := op.Arg.(SpliceArg)
			res = res.Splice(op.Field, arg.Pos, arg.Len, arg.Replace)
		}
	}
	return res, nil
}
