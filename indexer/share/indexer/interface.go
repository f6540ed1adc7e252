package indexer

import (
	"github.com/sat20-labs/cohortd/indexer/common"
	base_indexer "github.com/sat20-labs/cohortd/indexer/indexer/base"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
)

// Indexer is what the rpc layer reads. Every answer reflects the last flush.
type Indexer interface {
	Start() error
	Stop()

	GetSyncHeight() int
	GetChainTip() int
	GetStats() *base_indexer.SyncStats

	CohortNames() []string
	GetCohort(name string) (*base_indexer.CohortSummary, error)
	// p in 0..1
	GetCohortPercentile(name string, p float64) (common.Dollars, error)
	GetBlockStats(height int) (*common.BlockStats, error)
	GetAddress(key entity.AddressKey) (*entity.LoadedAddressData, *entity.EmptyAddressData, error)
}

var shareIndexer Indexer

func InitIndexer(idx Indexer) {
	shareIndexer = idx
}

func ShareIndexer() Indexer {
	return shareIndexer
}
