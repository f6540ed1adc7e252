package base

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sat20-labs/cohortd/indexer/common"
)

// The source is retried with a growing delay. Only used while syncing.
const maxRetry = 10

func retry[T any](what string, fn func() (T, error)) (T, error) {
	v, err := fn()
	for n := 1; err != nil && n < maxRetry; n++ {
		common.Log.Infof("%s failed: %v. try again ...", what, err)
		time.Sleep(time.Duration(n) * time.Second)
		v, err = fn()
	}
	return v, err
}

func (b *BaseIndexer) getBlockCount() (int, error) {
	return retry("GetBlockCount", b.source.GetBlockCount)
}

func (b *BaseIndexer) getBlockHash(height int) (*chainhash.Hash, error) {
	return retry("GetBlockHash", func() (*chainhash.Hash, error) {
		return b.source.GetBlockHash(height)
	})
}

func (b *BaseIndexer) getBlock(height int) (*common.Block, error) {
	return retry("GetBlock", func() (*common.Block, error) {
		return b.source.GetBlock(height)
	})
}
