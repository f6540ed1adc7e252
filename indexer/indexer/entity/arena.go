package entity

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sat20-labs/cohortd/database"
)

var (
	arenaLenKey   = []byte("l")
	arenaHolesKey = []byte("h")
)

// ErrNoSlot is returned when an index is beyond the arena or sits in a hole.
var ErrNoSlot = errors.New("no live slot at index")

func slotKey(idx uint64) []byte {
	return append([]byte{'i'}, database.Uint64Key(idx)...)
}

// Arena is a densely indexed store of T with a free list. Deleting a slot
// leaves a hole that the next insert fills before the arena grows, so indices
// of live entries never move. Length and holes live in the same column as
// the slots and roll back with them.
type Arena[T any] struct {
	vec *database.Vec

	mtx   sync.RWMutex
	len   uint64
	holes []uint64 // ascending
}

func NewArena[T any](vec *database.Vec) (*Arena[T], error) {
	a := &Arena[T]{vec: vec}
	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

// Reload rereads length and holes from the durable layer.
func (a *Arena[T]) Reload() error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	a.len = 0
	a.holes = nil

	data, err := a.vec.Get(arenaLenKey, database.SingleShot)
	switch {
	case errors.Is(err, database.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	a.len = database.KeyToUint64(data)

	holes, err := database.GetValue[[]uint64](a.vec, arenaHolesKey, database.SingleShot)
	switch {
	case errors.Is(err, database.ErrNotFound):
	case err != nil:
		return err
	default:
		a.holes = holes
	}
	return nil
}

func (a *Arena[T]) Name() string {
	return a.vec.Name()
}

// Len is the number of slots, live or not.
func (a *Arena[T]) Len() uint64 {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return a.len
}

// Holes returns a copy of the free list.
func (a *Arena[T]) Holes() []uint64 {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return append([]uint64(nil), a.holes...)
}

// Live is the number of occupied slots.
func (a *Arena[T]) Live() uint64 {
	a.mtx.RLock()
	defer a.mtx.RUnlock()
	return a.len - uint64(len(a.holes))
}

func (a *Arena[T]) holeAt(idx uint64) (int, bool) {
	i := sort.Search(len(a.holes), func(i int) bool { return a.holes[i] >= idx })
	return i, i < len(a.holes) && a.holes[i] == idx
}

func (a *Arena[T]) isLive(idx uint64) bool {
	if idx >= a.len {
		return false
	}
	_, hole := a.holeAt(idx)
	return !hole
}

// Get returns the entry at idx. The bool is false for holes and indices
// past the end.
func (a *Arena[T]) Get(idx uint64, policy database.ReadPolicy) (T, bool, error) {
	v, err := database.GetValue[T](a.vec, slotKey(idx), policy)
	if errors.Is(err, database.ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Update overwrites a live slot.
func (a *Arena[T]) Update(idx uint64, v T) error {
	a.mtx.RLock()
	live := a.isLive(idx)
	a.mtx.RUnlock()
	if !live {
		return fmt.Errorf("%s: update %d: %w", a.vec.Name(), idx, ErrNoSlot)
	}
	return database.PutValue(a.vec, slotKey(idx), v)
}

// Delete frees a live slot.
func (a *Arena[T]) Delete(idx uint64) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if idx >= a.len {
		return fmt.Errorf("%s: delete %d: %w", a.vec.Name(), idx, ErrNoSlot)
	}
	i, hole := a.holeAt(idx)
	if hole {
		return fmt.Errorf("%s: delete %d twice: %w", a.vec.Name(), idx, ErrNoSlot)
	}
	a.holes = append(a.holes, 0)
	copy(a.holes[i+1:], a.holes[i:])
	a.holes[i] = idx
	a.vec.Delete(slotKey(idx))
	return nil
}

// FillFirstHoleOrPush stores v in the lowest free slot, or appends it.
func (a *Arena[T]) FillFirstHoleOrPush(v T) (uint64, error) {
	data, err := database.EncodeValue(v)
	if err != nil {
		return 0, err
	}

	a.mtx.Lock()
	defer a.mtx.Unlock()

	var idx uint64
	if len(a.holes) > 0 {
		idx = a.holes[0]
		a.holes = a.holes[1:]
	} else {
		idx = a.len
		a.len++
	}
	a.vec.Put(slotKey(idx), data)
	return idx, nil
}

// Stamp returns the stamp of the underlying column.
func (a *Arena[T]) Stamp() database.Stamp {
	return a.vec.Stamp()
}

// Flush writes length and holes next to the slots and flushes the column.
func (a *Arena[T]) Flush(stamp database.Stamp) error {
	a.mtx.RLock()
	a.vec.Put(arenaLenKey, database.Uint64Key(a.len))
	err := database.PutValue(a.vec, arenaHolesKey, a.holes)
	a.mtx.RUnlock()
	if err != nil {
		return err
	}
	return a.vec.Flush(stamp)
}

func (a *Arena[T]) RollbackBefore(target database.Stamp) (database.Stamp, error) {
	s, err := a.vec.RollbackBefore(target)
	if err != nil {
		return s, err
	}
	return s, a.Reload()
}

func (a *Arena[T]) Reset() error {
	if err := a.vec.Reset(); err != nil {
		return err
	}
	return a.Reload()
}
