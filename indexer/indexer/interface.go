package indexer

import (
	"github.com/sat20-labs/cohortd/indexer/common"
	base_indexer "github.com/sat20-labs/cohortd/indexer/indexer/base"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
)

// interface for RPC. Every call reads the instance published at the last
// flush. Store reads inside the instance take the read side of b.mutex.

func (b *IndexerMgr) service() *base_indexer.RpcIndexer {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.rpcService
}

func (b *IndexerMgr) GetSyncHeight() int {
	return b.service().GetSyncHeight()
}

func (b *IndexerMgr) GetChainTip() int {
	return b.service().GetChainTip()
}

func (b *IndexerMgr) GetStats() *base_indexer.SyncStats {
	return b.service().GetStats()
}

func (b *IndexerMgr) CohortNames() []string {
	return b.service().CohortNames()
}

func (b *IndexerMgr) GetCohort(name string) (*base_indexer.CohortSummary, error) {
	return b.service().GetCohort(name)
}

func (b *IndexerMgr) GetCohortPercentile(name string, p float64) (common.Dollars, error) {
	return b.service().GetCohortPercentile(name, p)
}

func (b *IndexerMgr) GetBlockStats(height int) (*common.BlockStats, error) {
	return b.service().GetBlockStats(height)
}

func (b *IndexerMgr) GetAddress(key entity.AddressKey) (*entity.LoadedAddressData, *entity.EmptyAddressData, error) {
	return b.service().GetAddress(key)
}
