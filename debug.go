package query

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tarantool/go-tarantool/v2"
	"github.com/tarantool/go-tarantool/v2/datetime"
	tntdecimal "github.com/tarantool/go-tarantool/v2/decimal"
)

// RenderOpts tune Render.
type RenderOpts struct {
	// MaxFieldLength truncates longer strings. Zero means the default
	// of 128 characters, a negative value disables truncation.
	MaxFieldLength int
	// Names renders space and index names instead of ids when set.
	Names NameLookup
}

var iteratorNames = map[tarantool.Iter]string{
	tarantool.IterEq:  "EQ",
	tarantool.IterReq: "REQ",
	tarantool.IterAll: "ALL",
	tarantool.IterLt:  "LT",
	tarantool.IterLe:  "LE",
	tarantool.IterGe:  "GE",
	tarantool.IterGt:  "GT",
}

// IteratorName returns the upper-case name of an iterator.
func IteratorName(iter tarantool.Iter) string {
	if name, ok := iteratorNames[iter]; ok {
		return name
	}
	return strconv.FormatUint(uint64(iter), 10)
}

// Render formats req as a Lua-like statement for logs. The result is not
// meant to be executed.
func Render(req Request, opts RenderOpts) string {
	r := renderer{opts: opts}
	if r.opts.MaxFieldLength == 0 {
		r.opts.MaxFieldLength = defaultMaxFieldWidth
	}

	switch req := req.(type) {
	case *Select:
		var b strings.Builder
		b.WriteString(r.index(req.SpaceID, req.IndexID))
		b.WriteString(":select(")
		b.WriteString(r.tuple(req.Key))
		b.WriteString(", {iterator=")
		b.WriteString(IteratorName(req.Iterator))
		if req.Limit != 0 && req.Limit != unlimited {
			fmt.Fprintf(&b, ", limit=%d", req.Limit)
		}
		if req.Offset != 0 {
			fmt.Fprintf(&b, ", offset=%d", req.Offset)
		}
		b.WriteString("})")
		return b.String()
	case *Insert:
		return r.space(req.SpaceID) + ":insert(" + r.tuple(req.Tuple) + ")"
	case *Replace:
		return r.space(req.SpaceID) + ":replace(" + r.tuple(req.Tuple) + ")"
	case *Update:
		return r.index(req.SpaceID, req.IndexID) + ":update(" + r.tuple(req.Key) + ", " + r.ops(req.Ops) + ")"
	case *Upsert:
		return r.space(req.SpaceID) + ":upsert(" + r.tuple(req.Tuple) + ", " + r.ops(req.Ops) + ")"
	case *Delete:
		return r.index(req.SpaceID, req.IndexID) + ":delete(" + r.tuple(req.Key) + ")"
	case *Call:
		return "CALL " + req.Function + "(" + r.list(req.Args) + ")"
	case *Eval:
		if len(req.Args) == 0 {
			return "EVAL " + req.Expr
		}
		return "EVAL " + req.Expr + " | args: " + r.tuple(req.Args)
	case nil:
		return "<nil request>"
	default:
		return fmt.Sprintf("<%s request>", req.Type())
	}
}

type renderer struct {
	opts RenderOpts
}

func (r renderer) space(id uint32) string {
	if r.opts.Names != nil {
		if name, ok := r.opts.Names.SpaceName(id); ok {
			return "box.space." + name
		}
	}
	return fmt.Sprintf("box.space[%d]", id)
}

func (r renderer) index(spaceID, id uint32) string {
	if r.opts.Names != nil {
		if name, ok := r.opts.Names.IndexName(spaceID, id); ok {
			return r.space(spaceID) + ".index." + name
		}
	}
	return fmt.Sprintf("%s.index[%d]", r.space(spaceID), id)
}

func (r renderer) tuple(values []interface{}) string {
	return "{" + r.list(values) + "}"
}

func (r renderer) list(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = r.value(v)
	}
	return strings.Join(parts, ", ")
}

func (r renderer) ops(ops []Op) string {
	parts := make([]string, len(ops))
	for i, op := range ops {
		if arg, ok := op.Arg.(SpliceArg); ok {
			parts[i] = fmt.Sprintf("{'%s', %d, %d, %d, %s}",
				op.Operator, op.Field, arg.Pos, arg.Len, r.value(arg.Replace))
			continue
		}
		parts[i] = fmt.Sprintf("{'%s', %d, %s}", op.Operator, op.Field, r.value(op.Arg))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (r renderer) str(s string) string {
	if r.opts.MaxFieldLength > 0 && len([]rune(s)) > r.opts.MaxFieldLength {
		s = string([]rune(s)[:r.opts.MaxFieldLength]) + "..."
	}
	return "'" + quoteEscaper.Replace(s) + "'"
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func (r renderer) value(v interface{}) string {
	// A typed nil pointer satisfies fmt.Stringer through value receivers
	// and would panic on the call.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return "nil"
	}
	switch v := v.(type) {
	case nil:
		return "nil"
	case string:
		return r.str(v)
	case []byte:
		return r.str(string(v))
	case bool:
		return strconv.FormatBool(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case decimal.Decimal:
		return v.String()
	case tntdecimal.Decimal:
		return v.Decimal.String()
	case datetime.Datetime:
		return r.str(v.ToTime().Format(time.RFC3339Nano))
	case uuid.UUID:
		return r.str(v.String())
	case []interface{}:
		return r.tuple(v)
	case map[string]interface{}:
		return r.mapping(reflect.ValueOf(v))
	case map[interface{}]interface{}:
		return r.mapping(reflect.ValueOf(v))
	case fmt.Stringer:
		return r.str(v.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		list, _ := asList(v)
		return r.tuple(list)
	case reflect.Map:
		return r.mapping(rv)
	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return r.value(rv.Elem().Interface())
	default:
		return fmt.Sprint(v)
	}
}

// mapping renders entries as "key = value" sorted by rendered key so
// the output is stable.
func (r renderer) mapping(rv reflect.Value) string {
	parts := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key().Interface()
		var k string
		if s, ok := key.(string); ok {
			k = s
		} else {
			k = "[" + r.value(key) + "]"
		}
		parts = append(parts, k+" = "+r.value(iter.Value().Interface()))
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ", ") + "}"
}
