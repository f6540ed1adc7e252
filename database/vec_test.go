package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, dbType, path string, keep int) *DB {
	t.Helper()
	db, err := Open(dbType, path, keep)
	require.NoError(t, err)
	return db
}

func forEachDriver(t *testing.T, fn func(t *testing.T, dbType string)) {
	for _, dbType := range SupportedDrivers() {
		t.Run(dbType, func(t *testing.T) {
			fn(t, dbType)
		})
	}
}

func TestSupportedDrivers(t *testing.T) {
	assert.Equal(t, []string{"badger", "bolt", "leveldb"}, SupportedDrivers())

	_, err := Open("nosuchdb", t.TempDir(), 1)
	assert.ErrorIs(t, err, ErrDbUnknownType)
}

func TestReadPolicies(t *testing.T) {
	forEachDriver(t, func(t *testing.T, dbType string) {
		db := openTestDB(t, dbType, t.TempDir(), 4)
		defer db.Close()

		vec, err := db.OpenVec("v", 1)
		require.NoError(t, err)

		vec.Put([]byte("a"), []byte("1"))
		got, err := vec.Get([]byte("a"), PushedOrRead)
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), got)

		_, err = vec.Get([]byte("a"), SingleShot)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, vec.Flush(1))
		got, err = vec.Get([]byte("a"), SingleShot)
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), got)

		vec.Delete([]byte("a"))
		_, err = vec.Get([]byte("a"), PushedOrRead)
		assert.ErrorIs(t, err, ErrNotFound)
		ok, err := vec.Has([]byte("a"), SingleShot)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestFlushStampMustIncrease(t *testing.T) {
	forEachDriver(t, func(t *testing.T, dbType string) {
		db := openTestDB(t, dbType, t.TempDir(), 4)
		defer db.Close()

		vec, err := db.OpenVec("v", 1)
		require.NoError(t, err)
		require.NoError(t, vec.Flush(5))
		assert.ErrorIs(t, vec.Flush(5), ErrStampNotIncreasing)
		assert.ErrorIs(t, vec.Flush(3), ErrStampNotIncreasing)
		assert.Equal(t, Stamp(5), vec.Stamp())
	})
}

func TestRollbackBefore(t *testing.T) {
	forEachDriver(t, func(t *testing.T, dbType string) {
		dir := t.TempDir()
		db := openTestDB(t, dbType, dir, 4)

		vec, err := db.OpenVec("v", 1)
		require.NoError(t, err)

		vec.Put([]byte("k"), []byte("s2"))
		require.NoError(t, vec.Flush(2))
		vec.Put([]byte("k"), []byte("s4"))
		vec.Put([]byte("n"), []byte("new"))
		require.NoError(t, vec.Flush(4))
		vec.Delete([]byte("k"))
		require.NoError(t, vec.Flush(6))

		// 5 is not a flushed stamp, so the column lands on 4.
		s, err := vec.RollbackBefore(5)
		require.NoError(t, err)
		assert.Equal(t, Stamp(4), s)
		got, err := vec.Get([]byte("k"), SingleShot)
		require.NoError(t, err)
		assert.Equal(t, []byte("s4"), got)

		// Rolling back again to the same target changes nothing.
		s, err = vec.RollbackBefore(5)
		require.NoError(t, err)
		assert.Equal(t, Stamp(4), s)

		s, err = vec.RollbackBefore(2)
		require.NoError(t, err)
		assert.Equal(t, Stamp(2), s)
		ok, err := vec.Has([]byte("n"), SingleShot)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, db.Close())

		// The rolled back state survives a reopen.
		db = openTestDB(t, dbType, dir, 4)
		defer db.Close()
		vec, err = db.OpenVec("v", 1)
		require.NoError(t, err)
		assert.Equal(t, Stamp(2), vec.Stamp())
		got, err = vec.Get([]byte("k"), SingleShot)
		require.NoError(t, err)
		assert.Equal(t, []byte("s2"), got)
	})
}

func TestRollbackUnavailable(t *testing.T) {
	forEachDriver(t, func(t *testing.T, dbType string) {
		db := openTestDB(t, dbType, t.TempDir(), 2)
		defer db.Close()

		vec, err := db.OpenVec("v", 1)
		require.NoError(t, err)
		for s := Stamp(1); s <= 5; s++ {
			vec.Put([]byte("k"), Uint64Key(uint64(s)))
			require.NoError(t, vec.Flush(s))
		}

		assert.True(t, vec.CanRollbackTo(3))
		assert.False(t, vec.CanRollbackTo(2))

		_, err = vec.RollbackBefore(1)
		assert.ErrorIs(t, err, ErrRollbackUnavailable)
		assert.Equal(t, Stamp(5), vec.Stamp())

		s, err := vec.RollbackBefore(3)
		require.NoError(t, err)
		assert.Equal(t, Stamp(3), s)
	})
}

func TestInterruptedFlushIsReverted(t *testing.T) {
	forEachDriver(t, func(t *testing.T, dbType string) {
		dir := t.TempDir()
		db := openTestDB(t, dbType, dir, 4)

		vec, err := db.OpenVec("v", 1)
		require.NoError(t, err)
		vec.Put([]byte("k"), []byte("old"))
		require.NoError(t, vec.Flush(1))

		// Simulate a crash after the undo record and data landed but
		// before the stamp did.
		rec := undoRecord{Prev: 1, Entries: []undoEntry{
			{Key: []byte("k"), Value: []byte("old"), Existed: true},
			{Key: []byte("fresh")},
		}}
		data, err := EncodeValue(rec)
		require.NoError(t, err)
		require.NoError(t, db.backend.Write([]Op{
			{Key: vec.undoKey(2), Value: data},
			{Key: vec.dataKey([]byte("k")), Value: []byte("torn")},
			{Key: vec.dataKey([]byte("fresh")), Value: []byte("x")},
		}))
		require.NoError(t, db.Close())

		db = openTestDB(t, dbType, dir, 4)
		defer db.Close()
		vec, err = db.OpenVec("v", 1)
		require.NoError(t, err)

		assert.Equal(t, Stamp(1), vec.Stamp())
		got, err := vec.Get([]byte("k"), SingleShot)
		require.NoError(t, err)
		assert.Equal(t, []byte("old"), got)
		ok, err := vec.Has([]byte("fresh"), SingleShot)
		require.NoError(t, err)
		assert.False(t, ok)

		// The next flush can reuse stamp 2.
		require.NoError(t, vec.Flush(2))
	})
}

func TestVersionMismatchResets(t *testing.T) {
	forEachDriver(t, func(t *testing.T, dbType string) {
		dir := t.TempDir()
		db := openTestDB(t, dbType, dir, 4)

		vec, err := db.OpenVec("v", 1)
		require.NoError(t, err)
		other, err := db.OpenVec("w", 1)
		require.NoError(t, err)
		vec.Put([]byte("k"), []byte("x"))
		other.Put([]byte("k"), []byte("y"))
		require.NoError(t, db.Flush(3))
		require.NoError(t, db.Close())

		db = openTestDB(t, dbType, dir, 4)
		defer db.Close()
		vec, err = db.OpenVec("v", 2)
		require.NoError(t, err)
		assert.Equal(t, Stamp(0), vec.Stamp())
		ok, err := vec.Has([]byte("k"), SingleShot)
		require.NoError(t, err)
		assert.False(t, ok)

		other, err = db.OpenVec("w", 1)
		require.NoError(t, err)
		assert.Equal(t, Stamp(3), other.Stamp())
		assert.Equal(t, Stamp(0), db.MinStamp())
	})
}

func TestRange(t *testing.T) {
	forEachDriver(t, func(t *testing.T, dbType string) {
		db := openTestDB(t, dbType, t.TempDir(), 4)
		defer db.Close()

		vec, err := db.OpenVec("v", 1)
		require.NoError(t, err)
		neighbour, err := db.OpenVec("v2", 1)
		require.NoError(t, err)
		for i := uint64(0); i < 5; i++ {
			vec.Put(Uint64Key(i), Uint64Key(i*10))
		}
		neighbour.Put(Uint64Key(9), []byte("other"))
		require.NoError(t, db.Flush(1))

		var keys []uint64
		err = vec.Range(Uint64Key(2), func(key, value []byte) error {
			keys = append(keys, KeyToUint64(key))
			assert.Equal(t, KeyToUint64(key)*10, KeyToUint64(value))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []uint64{2, 3, 4}, keys)
	})
}
