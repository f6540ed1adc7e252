package entity

import (
	"errors"
	"sync"

	"github.com/decred/dcrd/lru"
	"github.com/sat20-labs/cohortd/database"
)

// DefaultAbsentCacheSize bounds the set of keys known to be unassigned.
const DefaultAbsentCacheSize = 1 << 16

// Indirection maps an AddressKey to its AddressIndex. There is one record
// per key; a move between partitions overwrites it.
//
// Most keys seen in a block for the first time have never been assigned, so
// the writer remembers misses and skips the store for them.
type Indirection struct {
	vec *database.Vec

	absentSize uint
	mtx        sync.Mutex
	absent     *lru.Cache
}

func NewIndirection(vec *database.Vec, absentSize uint) *Indirection {
	t := &Indirection{vec: vec, absentSize: absentSize}
	t.resetAbsent()
	return t
}

func (t *Indirection) resetAbsent() {
	cache := lru.NewCache(t.absentSize)
	t.mtx.Lock()
	t.absent = &cache
	t.mtx.Unlock()
}

func (t *Indirection) absentCache() *lru.Cache {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.absent
}

func (t *Indirection) Name() string {
	return t.vec.Name()
}

// Get resolves key. Only PushedOrRead lookups use and fill the miss cache,
// since a SingleShot miss says nothing about buffered writes.
func (t *Indirection) Get(key AddressKey, policy database.ReadPolicy) (AddressIndex, bool, error) {
	absent := t.absentCache()
	if policy == database.PushedOrRead && absent.Contains(key) {
		return AddressIndex{}, false, nil
	}

	data, err := t.vec.Get(key.Bytes(), policy)
	if errors.Is(err, database.ErrNotFound) {
		if policy == database.PushedOrRead {
			absent.Add(key)
		}
		return AddressIndex{}, false, nil
	}
	if err != nil {
		return AddressIndex{}, false, err
	}
	idx, err := AddressIndexFromBytes(data)
	if err != nil {
		return AddressIndex{}, false, err
	}
	return idx, true, nil
}

// Set points key at idx.
func (t *Indirection) Set(key AddressKey, idx AddressIndex) {
	t.absentCache().Delete(key)
	t.vec.Put(key.Bytes(), idx.Bytes())
}

func (t *Indirection) Stamp() database.Stamp {
	return t.vec.Stamp()
}

func (t *Indirection) Flush(stamp database.Stamp) error {
	return t.vec.Flush(stamp)
}

func (t *Indirection) RollbackBefore(target database.Stamp) (database.Stamp, error) {
	t.resetAbsent()
	return t.vec.RollbackBefore(target)
}

func (t *Indirection) Reset() error {
	t.resetAbsent()
	return t.vec.Reset()
}

// Range walks every durable record in key order.
func (t *Indirection) Range(fn func(key AddressKey, idx AddressIndex) error) error {
	return t.vec.Range(nil, func(k, v []byte) error {
		key, err := AddressKeyFromBytes(k)
		if err != nil {
			return err
		}
		idx, err := AddressIndexFromBytes(v)
		if err != nil {
			return err
		}
		return fn(key, idx)
	})
}
