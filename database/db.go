package database

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultKeepHistory is the number of flushes a column can be rolled back
// through.
const DefaultKeepHistory = 12

// DB is one backend holding any number of Vec columns.
type DB struct {
	backend Backend
	dbType  string
	path    string
	keep    int

	mtx  sync.Mutex
	vecs map[string]*Vec
}

// Open opens or creates the database at path with the named driver.
func Open(dbType, path string, keepHistory int) (*DB, error) {
	backend, err := openBackend(dbType, path)
	if err != nil {
		return nil, err
	}
	if keepHistory < 1 {
		keepHistory = 1
	}
	log.Infof("opened %s database at %s", dbType, path)
	return &DB{
		backend: backend,
		dbType:  dbType,
		path:    path,
		keep:    keepHistory,
		vecs:    make(map[string]*Vec),
	}, nil
}

func (db *DB) Type() string {
	return db.dbType
}

func (db *DB) Path() string {
	return db.path
}

// OpenVec returns the named column. A column stored under another version is
// reset.
func (db *DB) OpenVec(name string, version uint32) (*Vec, error) {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	if v, ok := db.vecs[name]; ok {
		if v.version != version {
			return nil, fmt.Errorf("column %s already open with version %d: %w",
				name, v.version, ErrVersionMismatch)
		}
		return v, nil
	}
	v, err := newVec(db.backend, name, version, db.keep)
	if err != nil {
		return nil, fmt.Errorf("open column %s: %w", name, err)
	}
	db.vecs[name] = v
	return v, nil
}

// Vecs returns the open columns ordered by name.
func (db *DB) Vecs() []*Vec {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	vecs := make([]*Vec, 0, len(db.vecs))
	for _, v := range db.vecs {
		vecs = append(vecs, v)
	}
	sort.Slice(vecs, func(i, j int) bool { return vecs[i].name < vecs[j].name })
	return vecs
}

// Flush flushes every open column under stamp.
func (db *DB) Flush(stamp Stamp) error {
	for _, v := range db.Vecs() {
		if err := v.Flush(stamp); err != nil {
			return err
		}
	}
	return nil
}

// MinStamp returns the lowest stamp among open columns, 0 if none are open.
func (db *DB) MinStamp() Stamp {
	vecs := db.Vecs()
	if len(vecs) == 0 {
		return 0
	}
	s := vecs[0].Stamp()
	for _, v := range vecs[1:] {
		s = min(s, v.Stamp())
	}
	return s
}

// RollbackBefore rolls every open column back and returns the lowest
// resulting stamp.
func (db *DB) RollbackBefore(target Stamp) (Stamp, error) {
	result := target
	for _, v := range db.Vecs() {
		s, err := v.RollbackBefore(target)
		if err != nil {
			return 0, err
		}
		result = min(result, s)
	}
	return result, nil
}

// Reset clears every open column.
func (db *DB) Reset() error {
	for _, v := range db.Vecs() {
		if err := v.Reset(); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) Compact() error {
	return db.backend.Compact()
}

func (db *DB) Close() error {
	log.Infof("closing %s database at %s", db.dbType, db.path)
	return db.backend.Close()
}
