package test_helpers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	query "github.com/ice-blockchain/go-tarantool-query"
)

const (
	VSpaceID = 281
	VIndexID = 289
)

var errUnexpectedRequest = errors.New("unexpected request")

// CatalogIndex is an index entry served by Catalog.
type CatalogIndex struct {
	ID     uint32
	Name   string
	Unique bool
}

// CatalogSpace is a space entry served by Catalog.
type CatalogSpace struct {
	ID      uint32
	Name    string
	Indexes []CatalogIndex
}

// Catalog answers selects on _vspace and _vindex the way a server does
// and counts them.
type Catalog struct {
	mutex  sync.Mutex
	spaces []CatalogSpace
	calls  int
}

// NewCatalog creates a catalog of spaces.
func NewCatalog(spaces ...CatalogSpace) *Catalog {
	return &Catalog{spaces: spaces}
}

// Calls returns the number of catalog selects answered.
func (c *Catalog) Calls() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.calls
}

// Do implements query.Doer. Only catalog selects are accepted.
func (c *Catalog) Do(_ context.Context, req query.Request) ([]interface{}, error) {
	data, ok := c.Answer(req)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnexpectedRequest, query.Render(req, query.RenderOpts{}))
	}
	return data, nil
}

// Answer returns the catalog rows for req and false if req is not a catalog
// select.
func (c *Catalog) Answer(req query.Request) ([]interface{}, bool) {
	sel, ok := req.(*query.Select)
	if !ok || (sel.SpaceID != VSpaceID && sel.SpaceID != VIndexID) {
		return nil, false
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.calls++

	if sel.SpaceID == VSpaceID {
		for _, space := range c.spaces {
			if matches(sel.Key, 0, space.ID, space.Name) {
				return []interface{}{spaceTuple(space)}, true
			}
		}
		return []interface{}{}, true
	}

	if len(sel.Key) < 2 {
		return []interface{}{}, true
	}
	for _, space := range c.spaces {
		if !matches(sel.Key, 0, space.ID, "") {
			continue
		}
		for _, index := range space.Indexes {
			if matches(sel.Key, 1, index.ID, index.Name) {
				return []interface{}{indexTuple(space.ID, index)}, true
			}
		}
	}
	return []interface{}{}, true
}

func matches(key []interface{}, pos int, id uint32, name string) bool {
	if len(key) <= pos {
		return false
	}
	switch v := key[pos].(type) {
	case string:
		return name != "" && v == name
	case uint32:
		return v == id
	case int:
		return v >= 0 && uint32(v) == id
	case uint64:
		return v == uint64(id)
	default:
		return false
	}
}

func spaceTuple(space CatalogSpace) []interface{} {
	return []interface{}{
		uint64(space.ID), uint64(1), space.Name, "memtx", uint64(0),
		map[interface{}]interface{}{}, []interface{}{},
	}
}

func indexTuple(spaceID uint32, index CatalogIndex) []interface{} {
	return []interface{}{
		uint64(spaceID), uint64(index.ID), index.Name, "tree",
		map[interface{}]interface{}{"unique": index.Unique},
		[]interface{}{[]interface{}{uint64(0), "unsigned"}},
	}
}

// IsEncodeInvalidAsNil reports whether req is the self-heal remedy.
func IsEncodeInvalidAsNil(req query.Request) bool {
	eval, ok := req.(*query.Eval)
	return ok && strings.Contains(eval.Expr, "encode_invalid_as_nil")
}
