package base

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/processor"
	"github.com/sat20-labs/cohortd/indexer/indexer/recovery"
)

type BlockProcCallback func(*common.Block, *common.BlockStats)
type UpdateDBCallback func()

// BaseIndexer drives the processor along the chain of a block source. It
// flushes periodically and detects reorgs from the stored block hashes.
type BaseIndexer struct {
	proc   *processor.Processor
	source common.BlockSource
	stats  *SyncStats // durable state

	lastHeight       int // processed, maybe not flushed
	lastHash         chainhash.Hash
	prevBlockHashMap map[int]chainhash.Hash // the last keepBlockHistory blocks

	// config
	periodFlushToDB  int
	keepBlockHistory int
	maxIndexHeight   int

	blockprocCB BlockProcCallback
	updateDBCB  UpdateDBCallback

	// mutex is held for writing while the stores change durably and the
	// update callback runs. Readers of the stores hold it for reading.
	mutex *sync.RWMutex

	reorgHeight int // set when a sync pass returns SYNC_REORG
}

const BLOCK_PREFETCH = 12

func NewBaseIndexer(
	proc *processor.Processor,
	source common.BlockSource,
	maxIndexHeight int,
	periodFlushToDB int,
	mutex *sync.RWMutex,
) *BaseIndexer {
	if periodFlushToDB <= 0 {
		periodFlushToDB = 12
	}
	if mutex == nil {
		mutex = new(sync.RWMutex)
	}
	return &BaseIndexer{
		proc:             proc,
		source:           source,
		stats:            &SyncStats{SyncHeight: -1, ChainTip: -1},
		lastHeight:       -1,
		prevBlockHashMap: make(map[int]chainhash.Hash),
		periodFlushToDB:  periodFlushToDB,
		keepBlockHistory: 12,
		maxIndexHeight:   maxIndexHeight,
		mutex:            mutex,
		reorgHeight:      -1,
	}
}

// Init runs recovery, loads the sync position from the processor and
// publishes it through the update callback.
func (b *BaseIndexer) Init(cb1 BlockProcCallback, cb2 UpdateDBCallback) recovery.StartState {
	b.blockprocCB = cb1
	b.updateDBCB = cb2

	b.mutex.Lock()
	defer b.mutex.Unlock()

	start := b.proc.Recover(recovery.NoLimit)
	common.Log.Infof("BaseIndexer start state: %s", start)
	b.reset()
	b.publish()
	return start
}

func (b *BaseIndexer) publish() {
	if b.updateDBCB != nil {
		b.updateDBCB()
	}
}

// reset reloads the sync position after recovery. Everything processed is
// durable at this point.
func (b *BaseIndexer) reset() {
	b.lastHeight = b.proc.Height()
	b.lastHash = chainhash.Hash{}
	b.prevBlockHashMap = make(map[int]chainhash.Hash)

	for h := max(b.lastHeight-b.keepBlockHistory+1, 0); h <= b.lastHeight; h++ {
		stats, err := b.proc.Series().GetBlockStats(h, database.SingleShot)
		if err != nil || stats == nil {
			common.Log.Panicf("BaseIndexer.reset-> no block stats at height %d: %v", h, err)
		}
		hash, err := chainhash.NewHashFromStr(stats.Hash)
		if err != nil {
			common.Log.Panicf("BaseIndexer.reset-> bad hash %s at height %d: %v", stats.Hash, h, err)
		}
		b.prevBlockHashMap[h] = *hash
		if h == b.lastHeight {
			b.lastHash = *hash
			b.updateStats(stats)
		}
	}
	if b.lastHeight < 0 {
		b.stats.SyncHeight = -1
		b.stats.SyncBlockHash = ""
	}
	common.Log.Infof("BaseIndexer.reset-> height %d, hash %s", b.lastHeight, b.lastHash)
}

func (b *BaseIndexer) updateStats(stats *common.BlockStats) {
	b.stats.SyncHeight = stats.Height
	b.stats.SyncBlockHash = stats.Hash
	b.stats.Supply = int64(stats.Supply)
	b.stats.UtxoCount = stats.UTXOCount
	b.stats.AddressCount = b.proc.Cohorts().Address.All.EntityCount
}

func (b *BaseIndexer) forceUpdateDB() {
	if b.lastHeight == b.stats.SyncHeight {
		return
	}
	startTime := time.Now()

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := b.proc.Flush(); err != nil {
		common.Log.Panicf("BaseIndexer.forceUpdateDB-> flush at height %d failed: %v", b.lastHeight, err)
	}
	stats, err := b.proc.Series().GetBlockStats(b.lastHeight, database.SingleShot)
	if err != nil || stats == nil {
		common.Log.Panicf("BaseIndexer.forceUpdateDB-> no block stats at height %d: %v", b.lastHeight, err)
	}
	b.updateStats(stats)
	b.publish()
	common.Log.Infof("forceUpdateDB sync to height %d, takes %v", b.stats.SyncHeight, time.Since(startTime))
}

// UpdateDB flushes whatever was processed since the last flush.
func (b *BaseIndexer) UpdateDB() {
	b.forceUpdateDB()
}

func (b *BaseIndexer) forceMajeure() {
	common.Log.Info("Graceful shutdown received, flushing db...")
	b.forceUpdateDB()
}

// handleReorg returns the lowest height whose stored hash differs from the
// source. When the fork is older than the kept hashes, the oldest kept height
// is returned and the next pass walks further back.
func (b *BaseIndexer) handleReorg(currentBlock *common.Block) int {
	common.Log.Warnf("BaseIndexer.handleReorg-> reorg detected at height %d", currentBlock.Height)

	reorgHeight := max(b.lastHeight-b.keepBlockHistory+1, 0)
	for i := reorgHeight; i <= b.lastHeight; i++ {
		blockHash, ok := b.prevBlockHashMap[i]
		if !ok {
			continue
		}
		hash, err := b.getBlockHash(i)
		if err != nil {
			common.Log.Errorf("GetBlockHash %d failed. %v", i, err)
			continue
		}
		if !hash.IsEqual(&blockHash) {
			common.Log.Warnf("Detected reorg at height %d", i)
			reorgHeight = i
			break
		}
	}
	return reorgHeight
}

// ReorgHeight is the fork height found by the last pass that returned
// SYNC_REORG, -1 if none.
func (b *BaseIndexer) ReorgHeight() int {
	return b.reorgHeight
}

// Rollback drops every block at or above reorgHeight and returns where
// processing resumes.
func (b *BaseIndexer) Rollback(reorgHeight int) recovery.StartState {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	start := b.proc.Recover(database.StampOf(reorgHeight - 1))
	b.reset()
	b.stats.ReorgsDetected = append(b.stats.ReorgsDetected, reorgHeight)
	b.reorgHeight = -1
	b.publish()
	common.Log.Infof("BaseIndexer.Rollback-> reorg at %d, resuming as %s", reorgHeight, start)
	return start
}

// Reload drops unflushed blocks after a failed block and resumes from the
// durable state.
func (b *BaseIndexer) Reload() recovery.StartState {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	start := b.proc.Recover(recovery.NoLimit)
	b.reset()
	b.publish()
	return start
}

// syncToBlock continues from the last processed height to height.
func (b *BaseIndexer) syncToBlock(height int, stopChan <-chan struct{}) int {
	if b.maxIndexHeight > 0 && height > b.maxIndexHeight {
		height = b.maxIndexHeight
	}
	b.stats.ChainTip = height
	if b.lastHeight >= height {
		return SYNC_OK
	}

	common.Log.Infof("BaseIndexer.SyncToBlock-> currentHeight %d, targetHeight %d", b.lastHeight, height)

	start := b.lastHeight + 1
	periodProcessedTxs := 0
	startTime := time.Now()

	blocks := make(chan *common.Block, BLOCK_PREFETCH)
	stopBlockFetcherChan := make(chan struct{})
	defer close(stopBlockFetcherChan)
	go b.spawnBlockFetcher(start, height, blocks, stopBlockFetcherChan)

	for i := start; i <= height; i++ {
		select {
		case <-stopChan:
			b.forceMajeure()
			return SYNC_STOPPED
		default:
		}

		block := <-blocks
		if block == nil {
			common.Log.Errorf("BaseIndexer.SyncToBlock-> fetch block failed %d", i)
			return SYNC_FETCH_FAILED
		}

		if i > 0 && block.PrevBlockHash != b.lastHash {
			common.Log.WithField("height", i).Warn("BaseIndexer.SyncToBlock-> reorg detected")
			b.reorgHeight = b.handleReorg(block)
			return SYNC_REORG
		}

		stats, err := b.proc.ProcessBlock(block)
		if err != nil {
			common.Log.Errorf("BaseIndexer.SyncToBlock-> process block %d failed: %v", i, err)
			return SYNC_PROCESS_FAILED
		}

		b.lastHeight = block.Height
		b.lastHash = block.Hash
		b.prevBlockHashMap[b.lastHeight] = b.lastHash
		delete(b.prevBlockHashMap, b.lastHeight-b.keepBlockHistory)

		if b.blockprocCB != nil {
			b.blockprocCB(block, stats)
		}

		if block.Height%b.periodFlushToDB == 0 {
			b.forceUpdateDB()
		}

		periodProcessedTxs += len(block.Transactions)
		if elapsedTime := time.Since(startTime); elapsedTime > 10*time.Second || i == height {
			common.Log.Infof("processed block %d (%s), %d transactions took %v",
				block.Height, block.Timestamp.Format("2006-01-02 15:04:05"), periodProcessedTxs, elapsedTime)
			startTime = time.Now()
			periodProcessedTxs = 0
		}
	}

	common.Log.Infof("BaseIndexer.SyncToBlock-> synced to block %d, flushed %d", b.lastHeight, b.stats.SyncHeight)
	return SYNC_OK
}

// SyncToChainTip processes every block up to the source's best block.
func (b *BaseIndexer) SyncToChainTip(stopChan <-chan struct{}) int {
	tip, err := b.getBlockCount()
	if err != nil {
		common.Log.Errorf("failed to get block count %v", err)
		return SYNC_FETCH_FAILED
	}
	return b.syncToBlock(tip, stopChan)
}

// GetSyncHeight is the last flushed height.
func (b *BaseIndexer) GetSyncHeight() int {
	return b.stats.SyncHeight
}

// GetHeight is the last processed height.
func (b *BaseIndexer) GetHeight() int {
	return b.lastHeight
}

func (b *BaseIndexer) GetChainTip() int {
	return b.stats.ChainTip
}

func (b *BaseIndexer) GetBlockHistory() int {
	return b.keepBlockHistory
}

func (b *BaseIndexer) GetStats() *SyncStats {
	return b.stats.Clone()
}

func (b *BaseIndexer) Processor() *processor.Processor {
	return b.proc
}
