package database

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	metaStamp   = "stamp"
	metaVersion = "version"
	metaUndo    = "undo/"

	resetChunk = 10000
)

type undoEntry struct {
	Key     []byte
	Value   []byte
	Existed bool
}

// undoRecord restores a column to Prev. It is written before the data of the
// flush it belongs to.
type undoRecord struct {
	Prev    Stamp
	Entries []undoEntry
}

type pendingValue struct {
	value   []byte
	deleted bool
}

// Vec is a named, versioned column inside a DB. Writes are buffered until
// Flush, which makes them durable under a stamp and keeps an undo record so
// the column can be rolled back to an earlier stamp.
//
// A Vec has a single writer. Readers may run concurrently with Put/Delete.
type Vec struct {
	backend    Backend
	name       string
	version    uint32
	keep       int
	prefix     []byte
	dataPrefix []byte
	metaPrefix []byte

	mtx     sync.RWMutex
	stamp   Stamp
	undo    []Stamp // ascending
	pending map[string]pendingValue
}

func newVec(backend Backend, name string, version uint32, keep int) (*Vec, error) {
	prefix := append([]byte(name), 0)
	v := &Vec{
		backend:    backend,
		name:       name,
		version:    version,
		keep:       keep,
		prefix:     prefix,
		dataPrefix: append(bytes.Clone(prefix), 'd'),
		metaPrefix: append(bytes.Clone(prefix), 'm'),
		pending:    make(map[string]pendingValue),
	}

	stored, err := backend.Get(v.metaKey(metaVersion))
	switch {
	case errors.Is(err, ErrNotFound):
		if err := v.writeVersion(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case KeyToUint64(stored) != uint64(version):
		log.Warnf("column %s has version %d, want %d, resetting", name,
			KeyToUint64(stored), version)
		if err := v.reset(); err != nil {
			return nil, err
		}
	}

	if err := v.load(); err != nil {
		return nil, err
	}
	if err := v.undoInterrupted(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vec) Name() string {
	return v.name
}

func (v *Vec) Version() uint32 {
	return v.version
}

// Stamp returns the stamp of the last completed flush.
func (v *Vec) Stamp() Stamp {
	v.mtx.RLock()
	defer v.mtx.RUnlock()
	return v.stamp
}

// PendingLen returns the number of buffered writes.
func (v *Vec) PendingLen() int {
	v.mtx.RLock()
	defer v.mtx.RUnlock()
	return len(v.pending)
}

func (v *Vec) dataKey(key []byte) []byte {
	dk := make([]byte, 0, len(v.dataPrefix)+len(key))
	dk = append(dk, v.dataPrefix...)
	return append(dk, key...)
}

func (v *Vec) metaKey(suffix string) []byte {
	mk := make([]byte, 0, len(v.metaPrefix)+len(suffix))
	mk = append(mk, v.metaPrefix...)
	return append(mk, suffix...)
}

func (v *Vec) undoKey(s Stamp) []byte {
	return append(v.metaKey(metaUndo), Uint64Key(uint64(s))...)
}

func (v *Vec) writeVersion() error {
	return v.backend.Write([]Op{{
		Key:   v.metaKey(metaVersion),
		Value: Uint64Key(uint64(v.version)),
	}})
}

func (v *Vec) load() error {
	stamp, err := v.backend.Get(v.metaKey(metaStamp))
	switch {
	case errors.Is(err, ErrNotFound):
		v.stamp = 0
	case err != nil:
		return err
	default:
		v.stamp = Stamp(KeyToUint64(stamp))
	}

	v.undo = v.undo[:0]
	undoPrefix := v.metaKey(metaUndo)
	return v.backend.Scan(undoPrefix, nil, func(key, _ []byte) error {
		v.undo = append(v.undo, Stamp(KeyToUint64(key[len(undoPrefix):])))
		return nil
	})
}

func (v *Vec) readUndo(s Stamp) (*undoRecord, error) {
	data, err := v.backend.Get(v.undoKey(s))
	if err != nil {
		return nil, fmt.Errorf("column %s: undo record %d: %w", v.name, s, err)
	}
	rec, err := DecodeValue[undoRecord](data)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (v *Vec) restoreOps(rec *undoRecord) []Op {
	ops := make([]Op, 0, len(rec.Entries))
	for _, e := range rec.Entries {
		if e.Existed {
			ops = append(ops, Op{Key: v.dataKey(e.Key), Value: e.Value})
		} else {
			ops = append(ops, Op{Key: v.dataKey(e.Key), Delete: true})
		}
	}
	return ops
}

// undoInterrupted reverts flushes whose undo record made it to disk but whose
// stamp did not.
func (v *Vec) undoInterrupted() error {
	for i := len(v.undo) - 1; i >= 0 && v.undo[i] > v.stamp; i-- {
		s := v.undo[i]
		log.Warnf("column %s: reverting interrupted flush %d (stamp %d)",
			v.name, s, v.stamp)
		rec, err := v.readUndo(s)
		if err != nil {
			return err
		}
		if err := v.backend.Write(v.restoreOps(rec)); err != nil {
			return err
		}
		if err := v.backend.Write([]Op{{Key: v.undoKey(s), Delete: true}}); err != nil {
			return err
		}
		v.undo = v.undo[:i]
	}
	return nil
}

// Get returns the value under key.
func (v *Vec) Get(key []byte, policy ReadPolicy) ([]byte, error) {
	if policy == PushedOrRead {
		v.mtx.RLock()
		p, ok := v.pending[string(key)]
		v.mtx.RUnlock()
		if ok {
			if p.deleted {
				return nil, ErrNotFound
			}
			return bytes.Clone(p.value), nil
		}
	}
	return v.backend.Get(v.dataKey(key))
}

func (v *Vec) Has(key []byte, policy ReadPolicy) (bool, error) {
	_, err := v.Get(key, policy)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Put buffers a write until the next Flush.
func (v *Vec) Put(key, value []byte) {
	v.mtx.Lock()
	v.pending[string(key)] = pendingValue{value: bytes.Clone(value)}
	v.mtx.Unlock()
}

// Delete buffers a removal until the next Flush.
func (v *Vec) Delete(key []byte) {
	v.mtx.Lock()
	v.pending[string(key)] = pendingValue{deleted: true}
	v.mtx.Unlock()
}

// KV is one entry of a WriteBatch.
type KV struct {
	Key   []byte
	Value []byte
}

// WriteBatch buffers several puts at once.
func (v *Vec) WriteBatch(kvs []KV) {
	v.mtx.Lock()
	for _, kv := range kvs {
		v.pending[string(kv.Key)] = pendingValue{value: bytes.Clone(kv.Value)}
	}
	v.mtx.Unlock()
}

// Discard drops all buffered writes.
func (v *Vec) Discard() {
	v.mtx.Lock()
	v.pending = make(map[string]pendingValue)
	v.mtx.Unlock()
}

// Range walks durable entries with key >= start in key order.
func (v *Vec) Range(start []byte, fn func(key, value []byte) error) error {
	return v.backend.Scan(v.dataPrefix, v.dataKey(start), func(key, value []byte) error {
		return fn(key[len(v.dataPrefix):], value)
	})
}

// Flush makes buffered writes durable under stamp. The stamp is written even
// when nothing is buffered so that every column of a store advances together.
//
// The undo record goes first, then the data, then the stamp. A crash before
// the stamp lands is reverted by the next open.
func (v *Vec) Flush(stamp Stamp) error {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	if stamp <= v.stamp {
		return fmt.Errorf("column %s: flush %d over %d: %w", v.name, stamp,
			v.stamp, ErrStampNotIncreasing)
	}

	keys := make([]string, 0, len(v.pending))
	for k := range v.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rec := undoRecord{Prev: v.stamp, Entries: make([]undoEntry, 0, len(keys))}
	ops := make([]Op, 0, len(keys))
	for _, k := range keys {
		dk := v.dataKey([]byte(k))
		prev, err := v.backend.Get(dk)
		switch {
		case err == nil:
			rec.Entries = append(rec.Entries, undoEntry{Key: []byte(k), Value: prev, Existed: true})
		case errors.Is(err, ErrNotFound):
			rec.Entries = append(rec.Entries, undoEntry{Key: []byte(k)})
		default:
			return err
		}
		p := v.pending[k]
		ops = append(ops, Op{Key: dk, Value: p.value, Delete: p.deleted})
	}

	data, err := EncodeValue(rec)
	if err != nil {
		return err
	}
	if err := v.backend.Write([]Op{{Key: v.undoKey(stamp), Value: data}}); err != nil {
		return fmt.Errorf("column %s: write undo: %w", v.name, err)
	}
	if len(ops) > 0 {
		if err := v.backend.Write(ops); err != nil {
			return fmt.Errorf("column %s: write data: %w", v.name, err)
		}
	}

	undo := append(v.undo, stamp)
	meta := []Op{{Key: v.metaKey(metaStamp), Value: Uint64Key(uint64(stamp))}}
	if extra := len(undo) - v.keep; extra > 0 {
		for _, s := range undo[:extra] {
			meta = append(meta, Op{Key: v.undoKey(s), Delete: true})
		}
		undo = append(undo[:0:0], undo[extra:]...)
	}
	if err := v.backend.Write(meta); err != nil {
		return fmt.Errorf("column %s: write stamp: %w", v.name, err)
	}

	v.undo = undo
	v.stamp = stamp
	v.pending = make(map[string]pendingValue)
	return nil
}

// CanRollbackTo reports whether the kept undo history reaches target.
func (v *Vec) CanRollbackTo(target Stamp) bool {
	v.mtx.RLock()
	defer v.mtx.RUnlock()
	_, err := v.rollbackPlan(target)
	return err == nil
}

func (v *Vec) rollbackPlan(target Stamp) ([]Stamp, error) {
	if target >= v.stamp {
		return nil, nil
	}
	var plan []Stamp
	for i := len(v.undo) - 1; i >= 0 && v.undo[i] > target; i-- {
		plan = append(plan, v.undo[i])
	}
	if len(plan) == 0 || plan[0] != v.stamp {
		return nil, ErrRollbackUnavailable
	}
	rec, err := v.readUndo(plan[len(plan)-1])
	if err != nil {
		return nil, err
	}
	if rec.Prev > target {
		return nil, ErrRollbackUnavailable
	}
	return plan, nil
}

// RollbackBefore undoes flushes newer than target and returns the resulting
// stamp, which is the newest flushed stamp <= target. Buffered writes are
// dropped.
func (v *Vec) RollbackBefore(target Stamp) (Stamp, error) {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	v.pending = make(map[string]pendingValue)

	plan, err := v.rollbackPlan(target)
	if err != nil {
		return v.stamp, fmt.Errorf("column %s: rollback from %d to %d: %w",
			v.name, v.stamp, target, err)
	}

	for _, s := range plan {
		rec, err := v.readUndo(s)
		if err != nil {
			return v.stamp, err
		}
		// Lowering the stamp first turns a crash below into an
		// interrupted flush that the next open reverts.
		err = v.backend.Write([]Op{{Key: v.metaKey(metaStamp), Value: Uint64Key(uint64(rec.Prev))}})
		if err != nil {
			return v.stamp, err
		}
		v.stamp = rec.Prev
		if err := v.backend.Write(v.restoreOps(rec)); err != nil {
			return v.stamp, err
		}
		if err := v.backend.Write([]Op{{Key: v.undoKey(s), Delete: true}}); err != nil {
			return v.stamp, err
		}
		v.undo = v.undo[:len(v.undo)-1]
	}

	if len(plan) > 0 {
		log.Debugf("column %s rolled back to %d", v.name, v.stamp)
	}
	return v.stamp, nil
}

// Reset removes every entry, the stamp and the undo history.
func (v *Vec) Reset() error {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	return v.reset()
}

func (v *Vec) reset() error {
	var keys [][]byte
	err := v.backend.Scan(v.prefix, nil, func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	for len(keys) > 0 {
		n := min(len(keys), resetChunk)
		ops := make([]Op, 0, n)
		for _, k := range keys[:n] {
			ops = append(ops, Op{Key: k, Delete: true})
		}
		if err := v.backend.Write(ops); err != nil {
			return err
		}
		keys = keys[n:]
	}

	v.stamp = 0
	v.undo = nil
	v.pending = make(map[string]pendingValue)
	return v.writeVersion()
}
