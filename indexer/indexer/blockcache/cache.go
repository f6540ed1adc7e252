package blockcache

import (
	"fmt"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
)

// Cache shadows the address partitions for one flush interval. The first
// touch of an address reads or creates it; later touches hit the cache. A
// move between loaded and empty only moves the entry between the two maps;
// the durable partitions change at Flush.
type Cache struct {
	store *entity.Store

	loaded map[entity.AddressKey]*WithSource[entity.LoadedAddressData]
	empty  map[entity.AddressKey]*WithSource[entity.EmptyAddressData]
}

func NewCache(store *entity.Store) *Cache {
	c := &Cache{store: store}
	c.Clear()
	return c
}

// Clear drops every cached entry without writing it.
func (c *Cache) Clear() {
	c.loaded = make(map[entity.AddressKey]*WithSource[entity.LoadedAddressData])
	c.empty = make(map[entity.AddressKey]*WithSource[entity.EmptyAddressData])
}

func (c *Cache) Len() int {
	return len(c.loaded) + len(c.empty)
}

// Peek returns the cached state of key without touching the store.
func (c *Cache) Peek(key entity.AddressKey) (*entity.LoadedAddressData, *entity.EmptyAddressData, bool) {
	if ws, ok := c.loaded[key]; ok {
		v := ws.Value
		return &v, nil, true
	}
	if ws, ok := c.empty[key]; ok {
		v := ws.Value
		return nil, &v, true
	}
	return nil, nil, false
}

// GetOrCreateForReceive returns the address that is about to receive, moving
// it out of the empty map or partition if needed.
func (c *Cache) GetOrCreateForReceive(key entity.AddressKey) (*entity.LoadedAddressData, TrackingStatus, error) {
	if ws, ok := c.loaded[key]; ok {
		return &ws.Value, trackingStatus(ws.Source, ws.Value.UTXOCount), nil
	}

	if ws, ok := c.empty[key]; ok {
		delete(c.empty, key)
		loaded := &WithSource[entity.LoadedAddressData]{
			Value:  ws.Value.Reactivate(),
			Source: ws.Source,
		}
		c.loaded[key] = loaded
		return &loaded.Value, WasEmpty, nil
	}

	idx, ok, err := c.store.Indirection.Get(key, database.PushedOrRead)
	if err != nil {
		return nil, Tracked, err
	}
	if !ok {
		ws := &WithSource[entity.LoadedAddressData]{Source: NewSource()}
		c.loaded[key] = ws
		return &ws.Value, New, nil
	}

	switch idx.Partition {
	case entity.Loaded:
		v, err := c.readLoaded(key, idx)
		if err != nil {
			return nil, Tracked, err
		}
		ws := &WithSource[entity.LoadedAddressData]{Value: v, Source: FromLoaded(idx.Index)}
		c.loaded[key] = ws
		return &ws.Value, trackingStatus(ws.Source, v.UTXOCount), nil

	default:
		v, ok, err := c.store.Empty.Get(idx.Index, database.PushedOrRead)
		if err != nil {
			return nil, Tracked, err
		}
		if !ok {
			return nil, Tracked, fmt.Errorf("address %s points at free slot %s", key, idx)
		}
		ws := &WithSource[entity.LoadedAddressData]{Value: v.Reactivate(), Source: FromEmpty(idx.Index)}
		c.loaded[key] = ws
		return &ws.Value, WasEmpty, nil
	}
}

func (c *Cache) readLoaded(key entity.AddressKey, idx entity.AddressIndex) (entity.LoadedAddressData, error) {
	v, ok, err := c.store.Loaded.Get(idx.Index, database.PushedOrRead)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("address %s points at free slot %s", key, idx)
	}
	return v, nil
}

// GetForSend returns an address that spends an output. The address must
// hold a balance, anything else means the stores are corrupt.
func (c *Cache) GetForSend(key entity.AddressKey) (*entity.LoadedAddressData, error) {
	if ws, ok := c.loaded[key]; ok {
		return &ws.Value, nil
	}

	idx, ok, err := c.store.Indirection.Get(key, database.PushedOrRead)
	if err != nil {
		return nil, err
	}
	if _, emptied := c.empty[key]; emptied || !ok || idx.Partition != entity.Loaded {
		common.Log.Panicf("address %s must exist for send: indirection %v found %v, emptied in cache %v",
			key, spew.Sdump(idx), ok, emptied)
	}

	v, err := c.readLoaded(key, idx)
	if err != nil {
		return nil, err
	}
	ws := &WithSource[entity.LoadedAddressData]{Value: v, Source: FromLoaded(idx.Index)}
	c.loaded[key] = ws
	return &ws.Value, nil
}

// MoveToEmpty moves a cached address whose outputs are all spent to the
// empty map.
func (c *Cache) MoveToEmpty(key entity.AddressKey) {
	ws, ok := c.loaded[key]
	if !ok || !ws.Value.IsEmpty() {
		common.Log.Panicf("move to empty of address %s not loaded in cache or still holding outputs: %s",
			key, spew.Sdump(ws))
	}
	delete(c.loaded, key)
	c.empty[key] = &WithSource[entity.EmptyAddressData]{
		Value:  ws.Value.ToEmpty(),
		Source: ws.Source,
	}
}

func sortAddressKeys(keys []entity.AddressKey) []entity.AddressKey {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].TypeIndex < keys[j].TypeIndex
	})
	return keys
}

func keysOf[V any](m map[entity.AddressKey]V) []entity.AddressKey {
	keys := make([]entity.AddressKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return sortAddressKeys(keys)
}

// Drain moves every cached entry into the pending layer of the store and
// empties the cache. Slots freed by moves are released before any insert so
// inserts reuse them, and inserts fill holes before growing a partition.
func (c *Cache) Drain() error {
	loadedKeys := keysOf(c.loaded)
	emptyKeys := keysOf(c.empty)

	// Deletions.
	for _, key := range loadedKeys {
		src := c.loaded[key].Source
		if idx, ok := src.Index(); ok && src.IsFromEmpty() {
			if err := c.store.Empty.Delete(idx); err != nil {
				return err
			}
		}
	}
	for _, key := range emptyKeys {
		src := c.empty[key].Source
		if idx, ok := src.Index(); ok && src.IsFromLoaded() {
			if err := c.store.Loaded.Delete(idx); err != nil {
				return err
			}
		}
	}

	// Updates in place.
	for _, key := range loadedKeys {
		ws := c.loaded[key]
		if idx, ok := ws.Source.Index(); ok && ws.Source.IsFromLoaded() {
			if err := c.store.Loaded.Update(idx, ws.Value); err != nil {
				return err
			}
		}
	}
	for _, key := range emptyKeys {
		ws := c.empty[key]
		if idx, ok := ws.Source.Index(); ok && ws.Source.IsFromEmpty() {
			if err := c.store.Empty.Update(idx, ws.Value); err != nil {
				return err
			}
		}
	}

	// Inserts.
	moved := make(map[entity.AddressKey]entity.AddressIndex)
	for _, key := range loadedKeys {
		ws := c.loaded[key]
		if ws.Source.IsFromLoaded() {
			continue
		}
		idx, err := c.store.Loaded.FillFirstHoleOrPush(ws.Value)
		if err != nil {
			return err
		}
		moved[key] = entity.AddressIndex{Partition: entity.Loaded, Index: idx}
	}
	for _, key := range emptyKeys {
		ws := c.empty[key]
		if ws.Source.IsFromEmpty() {
			continue
		}
		idx, err := c.store.Empty.FillFirstHoleOrPush(ws.Value)
		if err != nil {
			return err
		}
		moved[key] = entity.AddressIndex{Partition: entity.Empty, Index: idx}
	}

	// Indirection.
	for _, key := range keysOf(moved) {
		c.store.Indirection.Set(key, moved[key])
	}

	common.Log.Debugf("block cache drained %d loaded, %d empty, %d moved",
		len(loadedKeys), len(emptyKeys), len(moved))
	c.Clear()
	return nil
}

// Flush drains the cache and flushes the entity store under stamp.
func (c *Cache) Flush(stamp database.Stamp) error {
	if err := c.Drain(); err != nil {
		return err
	}
	return c.store.Flush(stamp)
}
