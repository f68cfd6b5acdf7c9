package query

import (
	"fmt"

	"github.com/tarantool/go-iproto"
	"github.com/vmihailenco/msgpack/v5"
)

// Response is the raw body of a response together with the type of the
// request that produced it.
//
// Select responses are a list of rows. Call and eval responses are a list of
// returned values, so a function returning a table of rows produces one
// extra level of nesting. The accessors hide that difference.
type Response struct {
	Type iproto.Type
	Data []interface{}
}

func (resp *Response) wrapsResult() bool {
	return resp.Type == iproto.IPROTO_CALL || resp.Type == iproto.IPROTO_EVAL
}

// All returns the rows of the response.
func (resp *Response) All() []interface{} {
	if resp.wrapsResult() && len(resp.Data) == 1 {
		if inner, ok := resp.Data[0].([]interface{}); ok {
			return inner
		}
	}
	return resp.Data
}

// One returns the first row. ok is false if there is none.
func (resp *Response) One() (interface{}, bool) {
	if len(resp.Data) == 0 {
		return nil, false
	}
	first := resp.Data[0]
	if first == nil {
		return nil, false
	}
	rows, ok := first.([]interface{})
	if !ok || !isRowOfRows(rows) {
		return first, true
	}
	if len(rows) == 0 {
		return nil, false
	}
	return rows[0], true
}

// Scalar returns the first field of the first row.
func (resp *Response) Scalar() (interface{}, bool) {
	row, ok := resp.One()
	if !ok {
		return nil, false
	}
	fields, isTuple := row.([]interface{})
	if !isTuple {
		return row, true
	}
	if len(fields) == 0 {
		return nil, false
	}
	return fields[0], true
}

// Column returns the field at position field of every row. Rows that are
// too short or are not tuples contribute nil.
func (resp *Response) Column(field int) []interface{} {
	rows := resp.All()
	column := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.([]interface{})
		if !ok {
			if field == 0 {
				column = append(column, row)
			} else {
				column = append(column, nil)
			}
			continue
		}
		if field < 0 || field >= len(fields) {
			column = append(column, nil)
			continue
		}
		column = append(column, fields[field])
	}
	return column
}

// DecodeTyped decodes the normalized rows into res, which is usually a
// pointer to a slice of structs with msgpack tags.
func (resp *Response) DecodeTyped(res interface{}) error {
	body, err := msgpack.Marshal(resp.All())
	if err != nil {
		return fmt.Errorf("failed to encode response rows: %w", err)
	}
	if err := msgpack.Unmarshal(body, res); err != nil {
		return fmt.Errorf("failed to decode response rows into %T: %w", res, err)
	}
	return nil
}

// isRowOfRows reports whether every element of rows is itself a tuple.
// An empty list counts as an empty set of rows.
func isRowOfRows(rows []interface{}) bool {
	for _, row := range rows {
		if _, ok := row.([]interface{}); !ok {
			return false
		}
	}
	return true
}
