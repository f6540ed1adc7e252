package base

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/cohort"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
	"github.com/sat20-labs/cohortd/indexer/indexer/processor"
)

var (
	ErrUnknownCohort = errors.New("unknown cohort")
	ErrNotSynced     = errors.New("height not synced")
)

// RpcIndexer is the read-only view served to the rpc layer. It holds a copy
// of the cohorts taken at a flush and reads the stores with SingleShot, so
// it never observes a block that is not durable. Store reads hold the read
// side of the commit mutex, so a flush or rollback is never seen half done.
type RpcIndexer struct {
	stats    *SyncStats
	cohorts  *cohort.Set
	series   *processor.Series
	entities *entity.Store
	price    common.Dollars
	mutex    *sync.RWMutex
}

// NewRpcIndexer copies the committed state of base. Call it right after a
// flush, from the update callback or with no commit in progress.
func NewRpcIndexer(base *BaseIndexer) *RpcIndexer {
	r := &RpcIndexer{
		stats:    base.stats.Clone(),
		cohorts:  base.proc.Cohorts().Clone(),
		series:   base.proc.Series(),
		entities: base.proc.Entities(),
		mutex:    base.mutex,
	}
	if stats, err := r.blockStats(r.stats.SyncHeight); err == nil {
		r.price = stats.Price
	}
	return r
}

func (r *RpcIndexer) GetSyncHeight() int {
	return r.stats.SyncHeight
}

func (r *RpcIndexer) GetChainTip() int {
	return r.stats.ChainTip
}

func (r *RpcIndexer) GetStats() *SyncStats {
	return r.stats.Clone()
}

func (r *RpcIndexer) CohortNames() []string {
	return r.cohorts.Names()
}

// CohortSummary is a cohort with the figures derived at the latest price.
type CohortSummary struct {
	Name          string            `json:"name"`
	Height        int               `json:"height"`
	EntityCount   uint64            `json:"entityCount"`
	Supply        common.Supply     `json:"supply"`
	Realized      cohort.Realized   `json:"realized"`
	RealizedPrice common.Dollars    `json:"realizedPrice"`
	Price         common.Dollars    `json:"price"`
	Unrealized    cohort.Unrealized `json:"unrealized"`
}

func (r *RpcIndexer) GetCohort(name string) (*CohortSummary, error) {
	st, ok := r.cohorts.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownCohort)
	}
	return &CohortSummary{
		Name:          st.Name,
		Height:        r.stats.SyncHeight,
		EntityCount:   st.EntityCount,
		Supply:        st.Supply,
		Realized:      st.Realized,
		RealizedPrice: st.Price(),
		Price:         r.price,
		Unrealized:    st.Distribution.Unrealized(r.price),
	}, nil
}

// GetCohortPercentile returns the acquisition price below which p (0..1) of
// the cohort's supply was acquired.
func (r *RpcIndexer) GetCohortPercentile(name string, p float64) (common.Dollars, error) {
	st, ok := r.cohorts.Get(name)
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, ErrUnknownCohort)
	}
	return st.Distribution.Percentile(p), nil
}

func (r *RpcIndexer) GetBlockStats(height int) (*common.BlockStats, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.blockStats(height)
}

func (r *RpcIndexer) blockStats(height int) (*common.BlockStats, error) {
	if height < 0 || height > r.stats.SyncHeight {
		return nil, fmt.Errorf("%d: %w", height, ErrNotSynced)
	}
	stats, err := r.series.GetBlockStats(height, database.SingleShot)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return nil, fmt.Errorf("%d: %w", height, ErrNotSynced)
	}
	return stats, nil
}

// GetAddress returns the durable record of an address, loaded or empty.
// Both are nil for an address never seen.
func (r *RpcIndexer) GetAddress(key entity.AddressKey) (*entity.LoadedAddressData, *entity.EmptyAddressData, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.entities.GetAddress(key, database.SingleShot)
}
