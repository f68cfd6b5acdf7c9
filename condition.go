package query

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tarantool/go-tarantool/v2"
)

// Operator is a comparison operator of a condition.
type Operator int

const (
	Eq Operator = iota
	Lt
	Le
	Ge
	Gt
)

var operatorTokens = map[string]Operator{
	"=":  Eq,
	"<":  Lt,
	"<=": Le,
	">=": Ge,
	">":  Gt,
}

// ParseOperator converts a token ("=", "<", "<=", ">=", ">") into an Operator.
func ParseOperator(token string) (Operator, error) {
	op, ok := operatorTokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: unknown operator %q", ErrInvalidCondition, token)
	}
	return op, nil
}

// String returns the operator token.
func (op Operator) String() string {
	switch op {
	case Eq:
		return "="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Ge:
		return ">="
	case Gt:
		return ">"
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

// IndexRef references an index by name or by id.
type IndexRef struct {
	name   string
	id     uint32
	byName bool
}

// IndexName references an index by its name.
func IndexName(name string) IndexRef {
	return IndexRef{name: name, byName: true}
}

// IndexID references an index by its id.
func IndexID(id uint32) IndexRef {
	return IndexRef{id: id}
}

func (ref IndexRef) String() string {
	if ref.byName {
		return ref.name
	}
	return fmt.Sprint(ref.id)
}

type conditionKind int

const (
	emptyCondition conditionKind = iota
	exactCondition
	rangeCondition
	indexedRangeCondition
)

// Condition is a closed set of select restrictions:
//
//   - Empty: no key restriction on the primary index;
//   - Exact: exact primary key lookup;
//   - Range: operator over the primary index;
//   - IndexedRange: operator over a named or numbered index.
//
// The zero value is Empty.
type Condition struct {
	kind  conditionKind
	op    Operator
	index IndexRef
	key   []interface{}
}

// Empty returns a condition without key restriction.
func Empty() Condition {
	return Condition{}
}

// Exact returns a primary key lookup. Several values form a composite key.
func Exact(key ...interface{}) Condition {
	return Condition{kind: exactCondition, op: Eq, key: key}
}

// Range returns an operator condition over the primary index.
func Range(op Operator, key ...interface{}) Condition {
	return Condition{kind: rangeCondition, op: op, key: key}
}

// IndexedRange returns an operator condition over the given index. An
// empty key scans the whole index in its order.
func IndexedRange(op Operator, index IndexRef, key ...interface{}) Condition {
	return Condition{kind: indexedRangeCondition, op: op, index: index, key: key}
}

// IsEmpty reports whether the condition has no key restriction.
func (c Condition) IsEmpty() bool {
	return c.kind == emptyCondition
}

// Operator returns the comparison operator; it is Eq for Empty and Exact.
func (c Condition) Operator() Operator {
	return c.op
}

// Key returns the key tuple of the condition.
func (c Condition) Key() []interface{} {
	return c.key
}

// Index returns the referenced index and whether the condition names one.
func (c Condition) Index() (IndexRef, bool) {
	return c.index, c.kind == indexedRangeCondition
}

// ParseCondition accepts the loosely typed condition shapes:
//
//	nil, []interface{}{}            -> Empty
//	5, "a", []interface{}{1, 2}     -> Exact
//	[]interface{}{">", 5}           -> Range
//	[]interface{}{"=", "idx", key}  -> IndexedRange
//
// Keys are scalars or tuples; maps are rejected.
func ParseCondition(v interface{}) (Condition, error) {
	if v == nil {
		return Empty(), nil
	}
	if c, ok := v.(Condition); ok {
		return c, nil
	}
	if isMap(v) {
		return Condition{}, fmt.Errorf("%w: associative keys are not supported", ErrInvalidCondition)
	}
	list, ok := asList(v)
	if !ok {
		return Exact(v), nil
	}
	if len(list) == 0 {
		return Empty(), nil
	}

	token, ok := list[0].(string)
	if !ok {
		return Exact(list...), nil
	}
	op, err := ParseOperator(token)
	if err != nil {
		// A tuple that starts with a plain string is a composite key.
		return Exact(list...), nil
	}

	switch len(list) {
	case 2:
		key, err := keyTuple(list[1])
		if err != nil {
			return Condition{}, err
		}
		return Range(op, key...), nil
	case 3:
		var ref IndexRef
		if name, ok := list[1].(string); ok {
			ref = IndexName(name)
		} else if id, ok := toUint32(list[1]); ok {
			ref = IndexID(id)
		} else {
			return Condition{}, fmt.Errorf("%w: index must be a name or a uint32 id, got %T(%v)",
				ErrInvalidCondition, list[1], list[1])
		}
		key, err := keyTuple(list[2])
		if err != nil {
			return Condition{}, err
		}
		return IndexedRange(op, ref, key...), nil
	default:
		return Condition{}, fmt.Errorf("%w: operator %q expects a key and an optional index, got %d values",
			ErrInvalidCondition, token, len(list)-1)
	}
}

// keyTuple wraps a scalar into a single-element tuple.
func keyTuple(v interface{}) ([]interface{}, error) {
	if isMap(v) {
		return nil, fmt.Errorf("%w: associative keys are not supported", ErrInvalidCondition)
	}
	if list, ok := asList(v); ok {
		return list, nil
	}
	return []interface{}{v}, nil
}

func isMap(v interface{}) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Map
}

// asList converts any slice or array except []byte into []interface{}.
func asList(v interface{}) ([]interface{}, bool) {
	if list, ok := v.([]interface{}); ok {
		return list, true
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	list := make([]interface{}, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}

// Fragment is the part of a select request produced by Compile.
type Fragment struct {
	IndexID  uint32
	Key      []interface{}
	Iterator tarantool.Iter
}

var rangeIterators = map[Operator]tarantool.Iter{
	Lt: tarantool.IterLt,
	Le: tarantool.IterLe,
	Ge: tarantool.IterGe,
	Gt: tarantool.IterGt,
}

// Compile turns a condition into the index, key and iterator of a select on
// spaceID. desc only affects equality conditions, which are scanned with
// IterReq.
func Compile(ctx context.Context, cond Condition, desc bool, resolver IndexResolver,
	spaceID uint32) (Fragment, error) {
	frag := Fragment{Key: cond.key}
	if frag.Key == nil {
		frag.Key = []interface{}{}
	}

	if cond.op == Eq {
		frag.Iterator = tarantool.IterEq
		if desc {
			frag.Iterator = tarantool.IterReq
		}
	} else {
		iter, ok := rangeIterators[cond.op]
		if !ok {
			return Fragment{}, fmt.Errorf("%w: unknown operator %s", ErrInvalidCondition, cond.op)
		}
		frag.Iterator = iter
	}

	if cond.kind != indexedRangeCondition {
		return frag, nil
	}
	if !cond.index.byName {
		frag.IndexID = cond.index.id
		return frag, nil
	}
	if resolver == nil {
		return Fragment{}, fmt.Errorf("%w: index %q requires a resolver", ErrInvalidCondition, cond.index.name)
	}
	id, err := resolver.ResolveIndexID(ctx, spaceID, cond.index.name)
	if err != nil {
		return Fragment{}, err
	}
	frag.IndexID = id
	return frag, nil
}

// SelectOpts are the ordering and paging options of a compiled select.
type SelectOpts struct {
	Desc   bool
	Offset uint32
	Limit  uint32
}

// CompileSelect compiles cond into a complete select request on spaceID.
func CompileSelect(ctx context.Context, cond Condition, opts SelectOpts, resolver IndexResolver,
	spaceID uint32) (*Select, error) {
	frag, err := Compile(ctx, cond, opts.Desc, resolver, spaceID)
	if err != nil {
		return nil, err
	}
	return &Select{
		SpaceID:  spaceID,
		IndexID:  frag.IndexID,
		Key:      frag.Key,
		Offset:   opts.Offset,
		Limit:    opts.Limit,
		Iterator: frag.Iterator,
	}, nil
}
