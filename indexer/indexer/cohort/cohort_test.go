package cohort

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketOf(t *testing.T) {
	tests := []struct {
		amount btcutil.Amount
		want   string
	}{
		{1, "1sat_10sats"},
		{9, "1sat_10sats"},
		{10, "10sats_100sats"},
		{99, "10sats_100sats"},
		{100, "100sats_1ksats"},
		{500, "100sats_1ksats"},
		{999, "100sats_1ksats"},
		{1000, "1ksats_10ksats"},
		{btcutil.SatoshiPerBitcoin - 1, "10msats_1btc"},
		{btcutil.SatoshiPerBitcoin, "1btc_10btc"},
		{21e6 * btcutil.SatoshiPerBitcoin, "100kbtc+"},
	}
	for _, test := range tests {
		b := BucketOf(test.amount)
		if b == NoBucket || bucketName(b) != test.want {
			t.Errorf("BucketOf(%d): got %d, want %s", test.amount, b, test.want)
		}
	}
	if b := BucketOf(0); b != NoBucket {
		t.Errorf("BucketOf(0): got %d, want no bucket", b)
	}
}

func TestBucketOfIsMonotone(t *testing.T) {
	prev := BucketOf(0)
	for a := btcutil.Amount(1); a < 1e9; a = a*3 + 1 {
		b := BucketOf(a)
		require.GreaterOrEqual(t, b, prev)
		lo, hi := BucketRange(b)
		require.True(t, a >= lo && (hi == 0 || a < hi), "amount %d outside [%d,%d)", a, lo, hi)
		prev = b
	}
}

func TestAgeBands(t *testing.T) {
	tests := []struct {
		days int64
		band string
		term int
	}{
		{0, "0d_1d", TermShort},
		{1, "1d_1w", TermShort},
		{6, "1d_1w", TermShort},
		{7, "1w_1m", TermShort},
		{154, "3m_6m", TermShort},
		{155, "3m_6m", TermLong},
		{365, "1y_2y", TermLong},
		{6000, "15y+", TermLong},
	}
	for _, test := range tests {
		age := test.days * secondsPerDay
		if got := ageBandName(AgeBandOf(age)); got != test.band {
			t.Errorf("AgeBandOf(%dd): got %s, want %s", test.days, got, test.band)
		}
		if got := TermOf(age); got != test.term {
			t.Errorf("TermOf(%dd): got %d, want %d", test.days, got, test.term)
		}
	}
	assert.Equal(t, 0, AgeBandOf(-100))

	boundaries := AgeBoundarySeconds()
	assert.Equal(t, int64(secondsPerDay), boundaries[0])
	assert.Contains(t, boundaries, int64(ShortTermDays*secondsPerDay))
	assert.Len(t, boundaries, NumAgeBands)
}

func TestDistribution(t *testing.T) {
	d := NewDistribution()
	d.Add(common.Dollars(10).Cents(), 100)
	d.Add(common.Dollars(20).Cents(), 300)
	d.Add(common.Dollars(30).Cents(), 600)

	assert.Equal(t, common.Dollars(10), d.Percentile(0))
	assert.Equal(t, common.Dollars(10), d.Percentile(0.1))
	assert.Equal(t, common.Dollars(20), d.Percentile(0.4))
	assert.Equal(t, common.Dollars(30), d.Percentile(0.5))
	assert.Equal(t, common.Dollars(30), d.Percentile(1))

	u := d.Unrealized(20)
	assert.EqualValues(t, 100, u.SupplyInProfit)
	assert.EqualValues(t, 600, u.SupplyInLoss)
	assert.InDelta(t, 10*100e-8, float64(u.Profit), 1e-12)
	assert.InDelta(t, 10*600e-8, float64(u.Loss), 1e-12)

	d.Remove(common.Dollars(20).Cents(), 300)
	assert.EqualValues(t, 700, d.Total)
	assert.Len(t, d.Amounts, 2)
	assert.Panics(t, func() { d.Remove(common.Dollars(10).Cents(), 101) })
}

func TestUTXOStateUnderflowPanics(t *testing.T) {
	s := NewState("utxo_test")
	s.Increment(common.Supply{Value: 500, UTXOCount: 1}, 100)
	assert.Panics(t, func() {
		s.Decrement(common.Supply{Value: 501, UTXOCount: 1}, 100)
	})
	assert.Panics(t, func() {
		s.Decrement(common.Supply{Value: 500, UTXOCount: 1}, 200)
	}, "nothing was acquired at 200")

	s.Send(common.Supply{Value: 500, UTXOCount: 1}, 100, 150)
	assert.Zero(t, s.EntityCount)
	assert.Zero(t, s.Supply.Value)
	assert.Zero(t, s.Realized.Cap)
	assert.InDelta(t, 50*500e-8, float64(s.Realized.Profit), 1e-12)
}

func addrKey(i uint32) entity.AddressKey {
	return entity.AddressKey{Type: txscript.WitnessV0PubKeyHashTy, TypeIndex: i}
}

// Block 1 pays A 500 sats. In block 2 A spends that output, sending 400 to
// B and 100 back to itself. Buckets are lower-inclusive, so A keeps 100 sats
// and stays in 100sats_1ksats next to B.
func TestTwoAddressScenario(t *testing.T) {
	set := NewSet()
	g := set.Address
	a, b := addrKey(1), addrKey(2)
	bucket, ok := set.Get("addr_amount_100sats_1ksats")
	require.True(t, ok)

	var dataA entity.LoadedAddressData
	dataA.Receive(500, 1, 10)
	g.Apply(a, nil, &dataA)
	assert.EqualValues(t, 1, bucket.EntityCount)
	assert.EqualValues(t, 500, bucket.Supply.Value)

	// Received first, then sent, as the processor orders them.
	var dataB entity.LoadedAddressData
	dataB.Receive(400, 1, 20)
	g.Apply(b, nil, &dataB)

	before := dataA
	dataA.Receive(100, 1, 20)
	g.Apply(a, &before, &dataA)

	before = dataA
	cost := dataA.Send(500, 1)
	g.Realize(a, &before, cost, common.Dollars(20).Mul(500))
	g.Apply(a, &before, &dataA)

	assert.EqualValues(t, 2, bucket.EntityCount)
	assert.EqualValues(t, 500, bucket.Supply.Value)
	assert.EqualValues(t, 2, g.All.EntityCount)
	assert.Zero(t, g.Empty.EntityCount)
	assert.Greater(t, float64(bucket.Realized.Profit), 0.0)
}

func TestEmptiedAddressLeavesValueCohorts(t *testing.T) {
	set := NewSet()
	g := set.Address
	key := addrKey(1)

	var data entity.LoadedAddressData
	data.Receive(500, 1, 10)
	g.Apply(key, nil, &data)

	before := data
	data.Send(500, 1)
	require.True(t, data.IsEmpty())
	g.Apply(key, &before, nil)
	g.Empty.AddEntity()

	for _, st := range set.States() {
		if st == g.Empty {
			assert.EqualValues(t, 1, st.EntityCount)
			continue
		}
		assert.Zero(t, st.EntityCount, st.Name)
		assert.Zero(t, st.Supply.Value, st.Name)
	}

	g.Empty.RemoveEntity(key)
	assert.Panics(t, func() { g.Empty.RemoveEntity(key) })
}

func TestApplyMovesBetweenBuckets(t *testing.T) {
	set := NewSet()
	g := set.Address
	key := addrKey(3)

	var data entity.LoadedAddressData
	data.Receive(5_000, 1, 1)
	g.Apply(key, nil, &data)
	before := data
	data.Receive(50_000, 1, 1)
	g.Apply(key, &before, &data)

	small, _ := set.Get("addr_amount_1ksats_10ksats")
	large, _ := set.Get("addr_amount_10ksats_100ksats")
	assert.Zero(t, small.EntityCount)
	assert.Zero(t, small.Supply.Value)
	assert.EqualValues(t, 1, large.EntityCount)
	assert.EqualValues(t, 55_000, large.Supply.Value)
	assert.EqualValues(t, 1, g.All.EntityCount)
	assert.EqualValues(t, 2, g.Type[txscript.WitnessV0PubKeyHashTy].Supply.UTXOCount)

	// Subtracting an address the cohort never counted is corruption.
	var ghost entity.LoadedAddressData
	ghost.Receive(7_000, 1, 1)
	assert.Panics(t, func() { g.Apply(addrKey(4), &ghost, nil) })
}

func TestCompositeCohorts(t *testing.T) {
	set := NewSet()
	for _, value := range []btcutil.Amount{50, 5_000, btcutil.SatoshiPerBitcoin, 3 * btcutil.SatoshiPerBitcoin} {
		b := NewUTXOBatch()
		b.Add(value, txscript.PubKeyHashTy)
		set.UTXO.Receive(b, 1, 0, TermShort)
	}

	above, ok := set.Get("utxo_amount_above_1btc")
	require.True(t, ok)
	assert.EqualValues(t, 2, above.EntityCount)
	assert.EqualValues(t, 4*btcutil.SatoshiPerBitcoin, above.Supply.Value)

	under, ok := set.Get("utxo_amount_under_1btc")
	require.True(t, ok)
	assert.EqualValues(t, 5_050, under.Supply.Value)

	assert.Equal(t, set.UTXO.All.Supply.Value, above.Supply.Value+under.Supply.Value)

	_, ok = set.Get("no_such_cohort")
	assert.False(t, ok)
	assert.Contains(t, set.Names(), "utxo_age_above_1y")
}

func TestShiftMovesBetweenBands(t *testing.T) {
	set := NewSet()
	b := NewUTXOBatch()
	b.Add(2_000, txscript.WitnessV0PubKeyHashTy)
	b.Add(3_000, txscript.WitnessV0PubKeyHashTy)
	set.UTXO.Receive(b, 40, AgeBandOf(0), TermOf(0))

	age := int64(400 * secondsPerDay)
	set.UTXO.Shift(b.Total, 40, AgeBandOf(0), AgeBandOf(age), TermOf(0), TermOf(age))

	assert.True(t, set.UTXO.Age[0].Supply.IsZero())
	assert.Equal(t, b.Total, set.UTXO.Age[AgeBandOf(age)].Supply)
	assert.True(t, set.UTXO.Term[TermShort].Supply.IsZero())
	assert.Equal(t, b.Total, set.UTXO.Term[TermLong].Supply)
	assert.Equal(t, b.Total, set.UTXO.All.Supply)

	// Staying inside the band is a no-op.
	before := set.UTXO.Age[AgeBandOf(age)].Clone()
	set.UTXO.Shift(b.Total, 40, AgeBandOf(age), AgeBandOf(age+secondsPerDay), TermLong, TermLong)
	assert.Equal(t, before, set.UTXO.Age[AgeBandOf(age)])
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db, err := database.Open("bolt", dir, 4)
	require.NoError(t, err)

	set := NewSet()
	store, err := OpenSnapshots(db, set)
	require.NoError(t, err)

	b := NewUTXOBatch()
	b.Add(700, txscript.WitnessV1TaprootTy)
	set.UTXO.Receive(b, 42, 0, TermShort)
	var data entity.LoadedAddressData
	data.Receive(700, 1, 42)
	set.Address.Apply(entity.AddressKey{Type: txscript.WitnessV1TaprootTy}, nil, &data)
	require.NoError(t, store.Save(set, 3))
	require.NoError(t, db.Close())

	db, err = database.Open("bolt", dir, 4)
	require.NoError(t, err)
	defer db.Close()
	loaded := NewSet()
	store, err = OpenSnapshots(db, loaded)
	require.NoError(t, err)
	require.NoError(t, store.Import(loaded))

	for i, st := range set.States() {
		assert.Equal(t, st, loaded.States()[i], st.Name)
	}

	// A stamped column without a state cannot be imported.
	col := store.Columns()[0]
	col.Delete(stateKey)
	require.NoError(t, col.Flush(4))
	assert.ErrorIs(t, store.Import(NewSet()), ErrMissingSnapshot)
}

func TestCloneIsDeep(t *testing.T) {
	set := NewSet()
	b := NewUTXOBatch()
	b.Add(10, txscript.PubKeyTy)
	set.UTXO.Receive(b, 1, 0, TermShort)

	c := set.Clone()
	set.UTXO.Receive(b, 2, 0, TermShort)

	assert.EqualValues(t, 1, c.UTXO.All.EntityCount)
	assert.EqualValues(t, 10, c.UTXO.All.Distribution.Total)
	assert.EqualValues(t, 2, set.UTXO.All.EntityCount)
	got, ok := c.Get("utxo_type_p2pk")
	require.True(t, ok)
	assert.EqualValues(t, 1, got.EntityCount)
}
