package rpcserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/txscript"
	"github.com/sat20-labs/cohortd/indexer/common"
	base_indexer "github.com/sat20-labs/cohortd/indexer/indexer/base"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
	"github.com/sat20-labs/cohortd/indexer/rpcserver/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	tip, height int
}

func (f *fakeIndexer) Start() error { return nil }
func (f *fakeIndexer) Stop()        {}

func (f *fakeIndexer) GetSyncHeight() int { return f.height }
func (f *fakeIndexer) GetChainTip() int   { return f.tip }

func (f *fakeIndexer) GetStats() *base_indexer.SyncStats {
	return &base_indexer.SyncStats{ChainTip: f.tip, SyncHeight: f.height}
}

func (f *fakeIndexer) CohortNames() []string {
	return []string{"addr_all", "utxo_all"}
}

func (f *fakeIndexer) GetCohort(name string) (*base_indexer.CohortSummary, error) {
	if name != "utxo_all" {
		return nil, fmt.Errorf("%s: %w", name, base_indexer.ErrUnknownCohort)
	}
	return &base_indexer.CohortSummary{
		Name:   name,
		Height: f.height,
		Supply: common.Supply{Value: 5000, UTXOCount: 2},
	}, nil
}

func (f *fakeIndexer) GetCohortPercentile(name string, p float64) (common.Dollars, error) {
	if _, err := f.GetCohort(name); err != nil {
		return 0, err
	}
	return common.Dollars(p * 100), nil
}

func (f *fakeIndexer) GetBlockStats(height int) (*common.BlockStats, error) {
	if height > f.height {
		return nil, base_indexer.ErrNotSynced
	}
	return &common.BlockStats{Height: height, Fees: 10}, nil
}

func (f *fakeIndexer) GetAddress(key entity.AddressKey) (*entity.LoadedAddressData, *entity.EmptyAddressData, error) {
	switch {
	case key.Type == txscript.WitnessV1TaprootTy && key.TypeIndex == 1:
		return &entity.LoadedAddressData{Received: 700, Sent: 200, UTXOCount: 1}, nil, nil
	case key.Type == txscript.PubKeyHashTy && key.TypeIndex == 0:
		return nil, &entity.EmptyAddressData{Transfered: 300}, nil
	}
	return nil, nil, nil
}

func get(t *testing.T, r http.Handler, path string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	return w.Code
}

func TestRoutes(t *testing.T) {
	idx := &fakeIndexer{tip: 12, height: 10}
	r := NewRpc(idx).newEngine("/api", io.Discard)

	var health wire.HealthStatusResp
	assert.Equal(t, 201, get(t, r, "/api/health", &health))
	assert.Equal(t, "syncing", health.Status)
	idx.height = 11
	assert.Equal(t, 200, get(t, r, "/api/health", &health))
	assert.Equal(t, "ok", health.Status)

	var height wire.BestHeightResp
	get(t, r, "/api/height", &height)
	assert.Equal(t, 11, height.Data["height"])

	var names wire.CohortNamesResp
	get(t, r, "/api/cohorts", &names)
	assert.Equal(t, 2, names.Total)

	var cohort wire.CohortResp
	get(t, r, "/api/cohort/utxo_all", &cohort)
	require.Equal(t, 0, cohort.Code)
	assert.EqualValues(t, 5000, cohort.Data.Supply.Value)

	get(t, r, "/api/cohort/nope", &cohort)
	assert.Equal(t, -1, cohort.Code)
	assert.Contains(t, cohort.Msg, "unknown cohort")

	var pct wire.PercentileResp
	get(t, r, "/api/cohort/utxo_all/percentile/25%25", &pct)
	require.Equal(t, 0, pct.Code, pct.Msg)
	assert.InDelta(t, 25, float64(pct.Data.Price), 1e-9)
	get(t, r, "/api/cohort/utxo_all/percentile/0.5", &pct)
	assert.InDelta(t, 0.5, pct.Data.Percentile, 1e-9)
	get(t, r, "/api/cohort/utxo_all/percentile/150%25", &pct)
	assert.Equal(t, -1, pct.Code)

	var block wire.BlockStatsResp
	get(t, r, "/api/block/3", &block)
	require.Equal(t, 0, block.Code)
	assert.EqualValues(t, 10, block.Data.Fees)
	get(t, r, "/api/block/99", &block)
	assert.Equal(t, -1, block.Code)
	get(t, r, "/api/block/x", &block)
	assert.Equal(t, -1, block.Code)

	var addr wire.AddressResp
	get(t, r, "/api/address/witness_v1_taproot/1", &addr)
	require.Equal(t, 0, addr.Code, addr.Msg)
	assert.EqualValues(t, 500, addr.Data.Balance)
	get(t, r, "/api/address/pubkeyhash/0", &addr)
	require.Equal(t, 0, addr.Code, addr.Msg)
	assert.True(t, addr.Data.Empty)
	assert.EqualValues(t, 300, addr.Data.Sent)
	get(t, r, "/api/address/pubkeyhash/5", &addr)
	assert.Equal(t, -1, addr.Code)
	get(t, r, "/api/address/nulldata/0", &addr)
	assert.Equal(t, -1, addr.Code)
}
