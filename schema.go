package query

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/tarantool/go-tarantool/v2"
	"golang.org/x/sync/singleflight"
)

// SpaceDescriptor identifies a space.
type SpaceDescriptor struct {
	ID   uint32
	Name string
}

// IndexDescriptor identifies an index inside a space.
type IndexDescriptor struct {
	SpaceID uint32
	ID      uint32
	Name    string
	Unique  bool
}

// NameLookup maps numeric ids back to names. Lookups never fail: ok is
// false when the name is not known.
type NameLookup interface {
	SpaceName(id uint32) (string, bool)
	IndexName(spaceID, id uint32) (string, bool)
}

// IndexResolver resolves index names inside a space.
type IndexResolver interface {
	ResolveIndexID(ctx context.Context, spaceID uint32, name string) (uint32, error)
}

type nameCache struct {
	ids    map[string]uint32
	names  map[uint32]string
	unique map[uint32]bool
}

func newNameCache() *nameCache {
	return &nameCache{
		ids:    make(map[string]uint32),
		names:  make(map[uint32]string),
		unique: make(map[uint32]bool),
	}
}

func (c *nameCache) put(id uint32, name string) {
	c.ids[name] = id
	c.names[id] = name
}

// Resolver resolves space and index names to ids and back through the
// _vspace and _vindex system spaces. Results are cached in both
// directions until flushed.
type Resolver struct {
	doer Doer

	mutex   sync.RWMutex
	spaces  *nameCache
	indexes map[uint32]*nameCache

	group singleflight.Group
}

// NewResolver creates a resolver issuing catalog selects through doer.
func NewResolver(doer Doer) *Resolver {
	return &Resolver{
		doer:    doer,
		spaces:  newNameCache(),
		indexes: make(map[uint32]*nameCache),
	}
}

// ResolveSpaceID returns the id of the space with the given name.
func (r *Resolver) ResolveSpaceID(ctx context.Context, name string) (uint32, error) {
	r.mutex.RLock()
	id, ok := r.spaces.ids[name]
	r.mutex.RUnlock()
	if ok {
		return id, nil
	}

	desc, err := r.loadSpace(ctx, "n:"+name, catalogNameIndex, name)
	if err != nil {
		return 0, err
	}
	return desc.ID, nil
}

// ResolveSpaceName returns the name of the space with the given id.
func (r *Resolver) ResolveSpaceName(ctx context.Context, id uint32) (string, error) {
	r.mutex.RLock()
	name, ok := r.spaces.names[id]
	r.mutex.RUnlock()
	if ok {
		return name, nil
	}

	desc, err := r.loadSpace(ctx, "i:"+strconv.FormatUint(uint64(id), 10), catalogPrimaryIndex, id)
	if err != nil {
		return "", err
	}
	return desc.Name, nil
}

// ResolveIndexID returns the id of the named index of a space.
func (r *Resolver) ResolveIndexID(ctx context.Context, spaceID uint32, name string) (uint32, error) {
	r.mutex.RLock()
	var id uint32
	var ok bool
	if cache := r.indexes[spaceID]; cache != nil {
		id, ok = cache.ids[name]
	}
	r.mutex.RUnlock()
	if ok {
		return id, nil
	}

	desc, err := r.loadIndex(ctx, spaceID, catalogNameIndex, name)
	if err != nil {
		return 0, err
	}
	return desc.ID, nil
}

// ResolveIndexName returns the name of an index of a space by its id.
func (r *Resolver) ResolveIndexName(ctx context.Context, spaceID, id uint32) (string, error) {
	r.mutex.RLock()
	var name string
	var ok bool
	if cache := r.indexes[spaceID]; cache != nil {
		name, ok = cache.names[id]
	}
	r.mutex.RUnlock()
	if ok {
		return name, nil
	}

	desc, err := r.loadIndex(ctx, spaceID, catalogPrimaryIndex, id)
	if err != nil {
		return "", err
	}
	return desc.Name, nil
}

// ResolveSpace accepts a space name or any integer id and returns the id.
// Integer ids are passed through without a catalog lookup.
func (r *Resolver) ResolveSpace(ctx context.Context, space interface{}) (uint32, error) {
	if name, ok := space.(string); ok {
		return r.ResolveSpaceID(ctx, name)
	}
	if id, ok := toUint32(space); ok {
		return id, nil
	}
	if isInteger(space) {
		return 0, fmt.Errorf("space id %v is out of the uint32 range", space)
	}
	return 0, fmt.Errorf("unexpected type of space param: %T", space)
}

// ResolveIndex accepts an index name or any integer id and returns the id.
func (r *Resolver) ResolveIndex(ctx context.Context, spaceID uint32, index interface{}) (uint32, error) {
	if name, ok := index.(string); ok {
		return r.ResolveIndexID(ctx, spaceID, name)
	}
	if id, ok := toUint32(index); ok {
		return id, nil
	}
	if isInteger(index) {
		return 0, fmt.Errorf("index id %v is out of the uint32 range", index)
	}
	return 0, fmt.Errorf("unexpected type of index param: %T", index)
}

// Space resolves a space reference into its descriptor.
func (r *Resolver) Space(ctx context.Context, space interface{}) (SpaceDescriptor, error) {
	id, err := r.ResolveSpace(ctx, space)
	if err != nil {
		return SpaceDescriptor{}, err
	}
	name, err := r.ResolveSpaceName(ctx, id)
	if err != nil {
		return SpaceDescriptor{}, err
	}
	return SpaceDescriptor{ID: id, Name: name}, nil
}

// Index resolves an index reference into its descriptor.
func (r *Resolver) Index(ctx context.Context, spaceID uint32, index interface{}) (IndexDescriptor, error) {
	id, err := r.ResolveIndex(ctx, spaceID, index)
	if err != nil {
		return IndexDescriptor{}, err
	}
	name, err := r.ResolveIndexName(ctx, spaceID, id)
	if err != nil {
		return IndexDescriptor{}, err
	}
	var unique bool
	r.mutex.RLock()
	if cache := r.indexes[spaceID]; cache != nil {
		unique = cache.unique[id]
	}
	r.mutex.RUnlock()
	return IndexDescriptor{SpaceID: spaceID, ID: id, Name: name, Unique: unique}, nil
}

// FlushSpaceCache drops every cached space entry. It must be called after
// space DDL.
func (r *Resolver) FlushSpaceCache() {
	r.mutex.Lock()
	r.spaces = newNameCache()
	r.mutex.Unlock()
}

// FlushIndexCache drops the cached indexes of a space. It must be called
// after index DDL.
func (r *Resolver) FlushIndexCache(spaceID uint32) {
	r.mutex.Lock()
	delete(r.indexes, spaceID)
	r.mutex.Unlock()
}

// Flush drops all cached entries.
func (r *Resolver) Flush() {
	r.mutex.Lock()
	r.spaces = newNameCache()
	r.indexes = make(map[uint32]*nameCache)
	r.mutex.Unlock()
}

// CachedNames returns a lookup that only consults the cache.
func (r *Resolver) CachedNames() NameLookup {
	return cachedNames{r}
}

// Names returns a lookup that resolves misses through the catalog and
// reports unknown names on any error.
func (r *Resolver) Names(ctx context.Context) NameLookup {
	return liveNames{r: r, ctx: ctx}
}

func (r *Resolver) loadSpace(ctx context.Context, flightKey string, index uint32,
	key interface{}) (SpaceDescriptor, error) {
	v, err, _ := r.group.Do("space/"+flightKey, func() (interface{}, error) {
		data, err := r.doer.Do(ctx, &Select{
			SpaceID:  vspaceSpID,
			IndexID:  index,
			Key:      []interface{}{key},
			Limit:    1,
			Iterator: tarantool.IterEq,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve space %v: %w", quoteIdent(key), err)
		}
		if len(data) == 0 {
			return nil, &UnknownSpaceError{Space: key}
		}
		row, ok := data[0].([]interface{})
		if !ok || len(row) <= vspaceNameField {
			return nil, fmt.Errorf("unexpected _vspace tuple: %v", data[0])
		}
		id, ok := toUint32(row[vspaceIDField])
		name, nameOk := row[vspaceNameField].(string)
		if !ok || !nameOk {
			return nil, fmt.Errorf("unexpected _vspace tuple: %v", row)
		}

		r.mutex.Lock()
		r.spaces.put(id, name)
		r.mutex.Unlock()
		return SpaceDescriptor{ID: id, Name: name}, nil
	})
	if err != nil {
		return SpaceDescriptor{}, err
	}
	return v.(SpaceDescriptor), nil
}

func (r *Resolver) loadIndex(ctx context.Context, spaceID uint32, index uint32,
	key interface{}) (IndexDescriptor, error) {
	flightKey := fmt.Sprintf("index/%d/%d/%v", spaceID, index, key)
	v, err, _ := r.group.Do(flightKey, func() (interface{}, error) {
		data, err := r.doer.Do(ctx, &Select{
			SpaceID:  vindexSpID,
			IndexID:  index,
			Key:      []interface{}{spaceID, key},
			Limit:    1,
			Iterator: tarantool.IterEq,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve index %v in space #%d: %w",
				quoteIdent(key), spaceID, err)
		}
		if len(data) == 0 {
			return nil, &UnknownIndexError{Index: key, SpaceID: spaceID}
		}
		row, ok := data[0].([]interface{})
		if !ok || len(row) <= vindexNameField {
			return nil, fmt.Errorf("unexpected _vindex tuple: %v", data[0])
		}
		id, ok := toUint32(row[vindexIDField])
		name, nameOk := row[vindexNameField].(string)
		if !ok || !nameOk {
			return nil, fmt.Errorf("unexpected _vindex tuple: %v", row)
		}
		desc := IndexDescriptor{SpaceID: spaceID, ID: id, Name: name}
		if len(row) > vindexOptsField {
			desc.Unique = decodeUnique(row[vindexOptsField])
		}

		r.mutex.Lock()
		cache, ok := r.indexes[spaceID]
		if !ok {
			cache = newNameCache()
			r.indexes[spaceID] = cache
		}
		cache.put(id, name)
		cache.unique[id] = desc.Unique
		r.mutex.Unlock()
		return desc, nil
	})
	if err != nil {
		return IndexDescriptor{}, err
	}
	return v.(IndexDescriptor), nil
}

// decodeUnique reads the unique flag from _vindex options. Old schemas
// store it as a number, new ones as a map.
func decodeUnique(opts interface{}) bool {
	switch opts := opts.(type) {
	case map[interface{}]interface{}:
		unique, _ := opts["unique"].(bool)
		return unique
	case map[string]interface{}:
		unique, _ := opts["unique"].(bool)
		return unique
	default:
		n, ok := toUint32(opts)
		return ok && n > 0
	}
}

type cachedNames struct {
	r *Resolver
}

func (c cachedNames) SpaceName(id uint32) (string, bool) {
	c.r.mutex.RLock()
	defer c.r.mutex.RUnlock()
	name, ok := c.r.spaces.names[id]
	return name, ok
}

func (c cachedNames) IndexName(spaceID, id uint32) (string, bool) {
	c.r.mutex.RLock()
	defer c.r.mutex.RUnlock()
	cache := c.r.indexes[spaceID]
	if cache == nil {
		return "", false
	}
	name, ok := cache.names[id]
	return name, ok
}

type liveNames struct {
	r   *Resolver
	ctx context.Context
}

func (l liveNames) SpaceName(id uint32) (string, bool) {
	name, err := l.r.ResolveSpaceName(l.ctx, id)
	return name, err == nil
}

func (l liveNames) IndexName(spaceID, id uint32) (string, bool) {
	name, err := l.r.ResolveIndexName(l.ctx, spaceID, id)
	return name, err == nil
}

// toUint32 converts any integer that fits into uint32.
func toUint32(v interface{}) (uint32, bool) {
	switch v := v.(type) {
	case uint:
		return uint32(v), uint64(v) <= math.MaxUint32
	case uint64:
		return uint32(v), v <= math.MaxUint32
	case uint32:
		return v, true
	case uint16:
		return uint32(v), true
	case uint8:
		return uint32(v), true
	case int:
		return uint32(v), v >= 0 && int64(v) <= math.MaxUint32
	case int64:
		return uint32(v), v >= 0 && v <= math.MaxUint32
	case int32:
		return uint32(v), v >= 0
	case int16:
		return uint32(v), v >= 0
	case int8:
		return uint32(v), v >= 0
	default:
		return 0, false
	}
}

func isInteger(v interface{}) bool {
	switch v.(type) {
	case uint, uint64, uint32, uint16, uint8, int, int64, int32, int16, int8:
		return true
	}
	return false
}
