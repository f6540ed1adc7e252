package entity

import (
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/sat20-labs/cohortd/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, dir string) (*database.DB, *Store) {
	t.Helper()
	db, err := database.Open("badger", dir, 4)
	require.NoError(t, err)
	store, err := Open(db)
	require.NoError(t, err)
	return db, store
}

func TestArenaFillsHolesBeforeGrowing(t *testing.T) {
	db, store := openTestStore(t, t.TempDir())
	defer db.Close()
	arena := store.Empty

	for i := 0; i < 4; i++ {
		idx, err := arena.FillFirstHoleOrPush(EmptyAddressData{Transfered: 10})
		require.NoError(t, err)
		assert.Equal(t, uint64(i), idx)
	}

	require.NoError(t, arena.Delete(2))
	require.NoError(t, arena.Delete(0))
	assert.Equal(t, []uint64{0, 2}, arena.Holes())
	assert.ErrorIs(t, arena.Delete(2), ErrNoSlot)
	assert.ErrorIs(t, arena.Update(0, EmptyAddressData{}), ErrNoSlot)

	_, ok, err := arena.Get(2, database.PushedOrRead)
	require.NoError(t, err)
	assert.False(t, ok)

	idx, err := arena.FillFirstHoleOrPush(EmptyAddressData{Transfered: 20})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), idx)
	idx, err = arena.FillFirstHoleOrPush(EmptyAddressData{Transfered: 30})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), idx)
	idx, err = arena.FillFirstHoleOrPush(EmptyAddressData{Transfered: 40})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), idx)

	assert.Equal(t, uint64(5), arena.Len())
	assert.Equal(t, uint64(5), arena.Live())
}

func TestArenaRollbackRestoresHoles(t *testing.T) {
	dir := t.TempDir()
	db, store := openTestStore(t, dir)
	arena := store.Loaded

	for i := 0; i < 3; i++ {
		_, err := arena.FillFirstHoleOrPush(LoadedAddressData{Received: 100, UTXOCount: 1})
		require.NoError(t, err)
	}
	require.NoError(t, arena.Flush(1))

	require.NoError(t, arena.Delete(1))
	require.NoError(t, arena.Update(0, LoadedAddressData{Received: 5, UTXOCount: 1}))
	require.NoError(t, arena.Flush(2))
	assert.Equal(t, []uint64{1}, arena.Holes())

	s, err := arena.RollbackBefore(1)
	require.NoError(t, err)
	assert.Equal(t, database.Stamp(1), s)
	assert.Empty(t, arena.Holes())
	assert.Equal(t, uint64(3), arena.Len())

	v, ok, err := arena.Get(0, database.SingleShot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 100, v.Received)
	require.NoError(t, db.Close())

	db, store = openTestStore(t, dir)
	defer db.Close()
	assert.Equal(t, uint64(3), store.Loaded.Len())
	assert.Equal(t, database.Stamp(1), store.Loaded.Stamp())
}

func TestIndirectionRemembersMisses(t *testing.T) {
	db, store := openTestStore(t, t.TempDir())
	defer db.Close()
	table := store.Indirection

	key := AddressKey{Type: txscript.WitnessV0PubKeyHashTy, TypeIndex: 7}
	_, ok, err := table.Get(key, database.PushedOrRead)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, table.absentCache().Contains(key))

	table.Set(key, AddressIndex{Partition: Loaded, Index: 3})
	assert.False(t, table.absentCache().Contains(key))

	idx, ok, err := table.Get(key, database.PushedOrRead)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, AddressIndex{Partition: Loaded, Index: 3}, idx)

	_, ok, err = table.Get(key, database.SingleShot)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, table.Flush(1))
	idx, ok, err = table.Get(key, database.SingleShot)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), idx.Index)

	table.Set(key, AddressIndex{Partition: Empty, Index: 0})
	require.NoError(t, table.Flush(2))

	var seen []AddressIndex
	require.NoError(t, table.Range(func(k AddressKey, idx AddressIndex) error {
		assert.Equal(t, key, k)
		seen = append(seen, idx)
		return nil
	}))
	assert.Equal(t, []AddressIndex{{Partition: Empty, Index: 0}}, seen)
}

func TestUtxoTable(t *testing.T) {
	db, store := openTestStore(t, t.TempDir())
	defer db.Close()
	utxos := store.Utxos

	entry := UtxoEntry{Value: 5000, Type: txscript.PubKeyHashTy, TypeIndex: 42}
	utxos.Put(10, entry)
	utxos.Put(11, UtxoEntry{Value: 1, Type: txscript.NonStandardTy})

	got, ok, err := utxos.Get(10, database.PushedOrRead)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry, got)

	key, ok := got.AddressKey()
	assert.True(t, ok)
	assert.Equal(t, AddressKey{Type: txscript.PubKeyHashTy, TypeIndex: 42}, key)

	_, ok = UtxoEntry{Type: txscript.MultiSigTy}.AddressKey()
	assert.False(t, ok)

	require.NoError(t, utxos.Flush(1))
	utxos.Delete(10)
	_, ok, err = utxos.Get(10, database.PushedOrRead)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = utxos.Get(10, database.SingleShot)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadedAddressSendAndReceive(t *testing.T) {
	var a LoadedAddressData
	a.Receive(500, 1, 10000)
	a.Receive(100, 1, 20000)
	assert.EqualValues(t, 600, a.Balance())
	assert.InDelta(t, 0.07, float64(a.RealizedCap), 1e-9)

	cost := a.Send(500, 1)
	assert.InDelta(t, 0.07*5/6, float64(cost), 1e-9)
	assert.False(t, a.IsEmpty())
	assert.EqualValues(t, 100, a.Balance())

	a.Send(100, 1)
	assert.True(t, a.IsEmpty())
	assert.Zero(t, a.Balance())
	assert.Zero(t, a.RealizedCap)

	assert.Panics(t, func() { a.Send(1, 1) })

	e := a.ToEmpty()
	assert.EqualValues(t, 600, e.Transfered)
	back := e.Reactivate()
	assert.Zero(t, back.Balance())
	assert.True(t, back.IsEmpty())
}
