package base

import (
	"github.com/sat20-labs/cohortd/indexer/common"
)

// fetchBlock returns nil when the source keeps failing.
func (b *BaseIndexer) fetchBlock(height int) *common.Block {
	block, err := b.getBlock(height)
	if err != nil {
		common.Log.Errorf("GetBlock %d failed. %v", height, err)
		return nil
	}
	if block.Height != height {
		common.Log.Errorf("GetBlock %d returned block %d", height, block.Height)
		return nil
	}
	return block
}

// spawnBlockFetcher prefetches blocks [start, end] into blocks. It stops
// after the first failed fetch, which it reports as nil.
func (b *BaseIndexer) spawnBlockFetcher(start, end int, blocks chan<- *common.Block, stopChan <-chan struct{}) {
	for height := start; height <= end; height++ {
		block := b.fetchBlock(height)
		select {
		case blocks <- block:
		case <-stopChan:
			return
		}
		if block == nil {
			return
		}
	}
}
