package indexer

import (
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainSource serves a fixed chain where block h pays h*1000 sats to
// address h%4 and nothing is spent.
type chainSource struct {
	blocks []*common.Block
}

func newChainSource(tip int) *chainSource {
	s := &chainSource{}
	var prev chainhash.Hash
	for h := 0; h <= tip; h++ {
		b := &common.Block{
			Height:        h,
			Timestamp:     time.Unix(1600000000, 0).Add(time.Duration(h) * time.Hour),
			Hash:          chainhash.DoubleHashH([]byte(fmt.Sprint(h))),
			PrevBlockHash: prev,
			Transactions: []*common.Transaction{{
				TxIndex: uint64(h),
				Inputs:  []*common.Input{{Coinbase: true}},
				Outputs: []*common.Output{{
					Type:      txscript.WitnessV1TaprootTy,
					TypeIndex: uint32(h % 4),
					Value:     btcutil.Amount(h * 1000),
				}},
			}},
		}
		s.blocks = append(s.blocks, b)
		prev = b.Hash
	}
	return s
}

func (s *chainSource) GetBlockCount() (int, error) {
	return len(s.blocks) - 1, nil
}

func (s *chainSource) GetBlockHash(height int) (*chainhash.Hash, error) {
	h := s.blocks[height].Hash
	return &h, nil
}

func (s *chainSource) GetBlock(height int) (*common.Block, error) {
	return s.blocks[height], nil
}

type flatPrice common.Dollars

func (p flatPrice) Price(int, time.Time) common.Dollars {
	return common.Dollars(p)
}

func TestIndexerMgrSyncsAndServes(t *testing.T) {
	interrupt := make(chan struct{})
	mgr := newIndexerMgr(&Config{
		DataDir:         t.TempDir(),
		PeriodFlushToDB: 4,
		Workers:         2,
		SyncInterval:    20 * time.Millisecond,
		Source:          newChainSource(9),
		Prices:          flatPrice(30000),
	}, interrupt)
	require.NoError(t, mgr.Init())
	assert.Equal(t, -1, mgr.GetSyncHeight())

	require.NoError(t, mgr.Start())
	require.Eventually(t, func() bool {
		return mgr.GetSyncHeight() == 9
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, 9, mgr.GetChainTip())
	summary, err := mgr.GetCohort("addr_type_p2tr")
	require.NoError(t, err)
	assert.EqualValues(t, 4, summary.EntityCount)
	assert.EqualValues(t, 45000, summary.Supply.Value)
	assert.InDelta(t, 30000, float64(summary.RealizedPrice), 1e-6)

	p50, err := mgr.GetCohortPercentile("utxo_all", 0.5)
	require.NoError(t, err)
	assert.Equal(t, common.Dollars(30000), p50)

	stats, err := mgr.GetBlockStats(9)
	require.NoError(t, err)
	assert.EqualValues(t, 9000, stats.Subsidy)

	loaded, _, err := mgr.GetAddress(entity.AddressKey{Type: txscript.WitnessV1TaprootTy, TypeIndex: 1})
	require.NoError(t, err)
	require.NotNil(t, loaded)
	// Heights 1, 5 and 9.
	assert.EqualValues(t, 15000, loaded.Balance())

	close(interrupt)
	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("indexer did not exit")
	}
}

func TestParsePercentile(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"50%", 0.5, true},
		{"12.5%", 0.125, true},
		{"0.25", 0.25, true},
		{"1", 1, true},
		{"101%", 0, false},
		{"1.5", 0, false},
		{"-1", 0, false},
		{"abc", 0, false},
	}
	for _, test := range tests {
		got, err := ParsePercentile(test.in)
		if !test.ok {
			assert.Error(t, err, test.in)
			continue
		}
		require.NoError(t, err, test.in)
		assert.InDelta(t, test.want, got, 1e-9, test.in)
	}
}
