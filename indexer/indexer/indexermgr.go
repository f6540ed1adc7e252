package indexer

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
	base_indexer "github.com/sat20-labs/cohortd/indexer/indexer/base"
	"github.com/sat20-labs/cohortd/indexer/indexer/processor"
)

// Config holds what the manager needs from the daemon configuration.
type Config struct {
	DataDir string

	EntityDBType string
	SeriesDBType string
	CohortDBType string
	KeepHistory  int

	PeriodFlushToDB int
	MaxIndexHeight  int
	Workers         int
	SyncInterval    time.Duration
	GCPeriod        int // blocks between database compactions

	Source common.BlockSource
	Prices common.PriceSource
}

func (c *Config) setDefaults() {
	if c.EntityDBType == "" {
		c.EntityDBType = "badger"
	}
	if c.SeriesDBType == "" {
		c.SeriesDBType = "leveldb"
	}
	if c.CohortDBType == "" {
		c.CohortDBType = "bolt"
	}
	if c.KeepHistory <= 0 {
		c.KeepHistory = database.DefaultKeepHistory
	}
	if c.PeriodFlushToDB <= 0 {
		c.PeriodFlushToDB = 12
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = 10 * time.Second
	}
	if c.GCPeriod <= 0 {
		c.GCPeriod = 1000
	}
}

type IndexerMgr struct {
	cfg   *Config
	dbDir string

	entityDB *database.DB
	seriesDB *database.DB
	cohortDB *database.DB
	pool     pond.Pool

	maxIndexHeight  int
	periodFlushToDB int

	mutex sync.RWMutex
	// 跑数据
	compiling *base_indexer.BaseIndexer
	// 接收前端api访问的实例，隔离内存访问
	rpcService *base_indexer.RpcIndexer

	lastGCHeight int

	bRunning  atomic.Bool
	interrupt <-chan struct{}
	exited    chan struct{}
}

var instance *IndexerMgr

func GetIndexerMgr() *IndexerMgr {
	return instance
}

func NewIndexerMgr(cfg *Config, interrupt <-chan struct{}) *IndexerMgr {
	if instance != nil {
		return instance
	}
	instance = newIndexerMgr(cfg, interrupt)
	return instance
}

func newIndexerMgr(cfg *Config, interrupt <-chan struct{}) *IndexerMgr {
	cfg.setDefaults()
	return &IndexerMgr{
		cfg:             cfg,
		dbDir:           cfg.DataDir,
		maxIndexHeight:  cfg.MaxIndexHeight,
		periodFlushToDB: cfg.PeriodFlushToDB,
		interrupt:       interrupt,
		exited:          make(chan struct{}),
	}
}

// Init opens the databases and recovers the processor to a consistent
// height.
func (b *IndexerMgr) Init() error {
	if err := b.initDB(); err != nil {
		return err
	}
	b.pool = pond.NewPool(b.cfg.Workers)

	proc, err := processor.New(b.entityDB, b.seriesDB, b.cohortDB, b.cfg.Prices, b.pool)
	if err != nil {
		b.closeDB()
		return err
	}
	b.compiling = base_indexer.NewBaseIndexer(proc, b.cfg.Source, b.maxIndexHeight, b.periodFlushToDB, &b.mutex)
	start := b.compiling.Init(b.processBlock, b.updateServiceInstance)
	common.Log.Infof("IndexerMgr initialized, %s, cohortd %s", start, common.COHORTD_VERSION)

	b.lastGCHeight = b.compiling.GetSyncHeight()
	return nil
}

func (b *IndexerMgr) Start() error {
	if b.bRunning.CompareAndSwap(false, true) {
		go b.StartDaemon(b.interrupt)
	}
	return nil
}

func (b *IndexerMgr) Stop() {
	b.bRunning.Store(false)
}

// Close releases the stores of a manager whose daemon was never started.
func (b *IndexerMgr) Close() {
	if b.bRunning.CompareAndSwap(false, true) {
		b.closeDB()
		close(b.exited)
	}
}

// Wait blocks until the daemon loop has exited and the databases are closed.
func (b *IndexerMgr) Wait() {
	<-b.exited
}

func (b *IndexerMgr) StartDaemon(stopChan <-chan struct{}) {
	defer close(b.exited)

	ticker := time.NewTicker(b.cfg.SyncInterval)
	stopIndexerChan := make(chan struct{}, 1) // 非阻塞

	common.Log.Info("IndexerMgr running...")

	var bWantExit, isRunning atomic.Bool
	done := make(chan struct{}, 1)
	tick := func() {
		if !isRunning.CompareAndSwap(false, true) {
			return
		}
		go func() {
			defer func() {
				isRunning.Store(false)
				done <- struct{}{}
			}()

			ret := b.compiling.SyncToChainTip(stopIndexerChan)
			switch {
			case ret == base_indexer.SYNC_OK:
				if b.maxIndexHeight > 0 && b.maxIndexHeight <= b.compiling.GetHeight() {
					b.updateDB()
					common.Log.Infof("reach expected height, set exit flag")
					bWantExit.Store(true)
					return
				}
				b.updateDB()
				b.dbgc()
			case ret == base_indexer.SYNC_REORG:
				b.handleReorg(b.compiling.ReorgHeight())
			case ret == base_indexer.SYNC_STOPPED:
				common.Log.Infof("IndexerMgr inner thread exit by SIGINT signal")
				bWantExit.Store(true)
			case ret == base_indexer.SYNC_PROCESS_FAILED:
				b.reload()
			}
		}()
	}

	tick()
	for !bWantExit.Load() && b.bRunning.Load() {
		select {
		case <-ticker.C:
			tick()
		case <-done:
		case <-stopChan:
			common.Log.Info("IndexerMgr got SIGINT")
			if isRunning.Load() {
				select {
				case stopIndexerChan <- struct{}{}:
				default:
				}
				for isRunning.Load() {
					time.Sleep(time.Second / 10)
				}
				common.Log.Info("IndexerMgr inner thread exited")
			}
			bWantExit.Store(true)
		}
	}
	ticker.Stop()
	for isRunning.Load() {
		time.Sleep(time.Second / 10)
	}

	// close all
	b.closeDB()
	common.Log.Info("IndexerMgr exited.")
}

func (b *IndexerMgr) processBlock(block *common.Block, stats *common.BlockStats) {
	common.Log.Debugf("IndexerMgr block %d: supply %v, fees %v, cdd %.2f",
		block.Height, stats.Supply, stats.Fees, stats.CoinDaysDestroyed)
}

// updateDB flushes every processed block. The rpc instance is refreshed by
// the flush callback.
func (b *IndexerMgr) updateDB() {
	b.compiling.UpdateDB()
	common.Log.Infof("IndexerMgr.updateDB at height %d, alloc %d MiB, sys %d MiB",
		b.compiling.GetSyncHeight(), GetAlloc(), GetSysMb())
}

func (b *IndexerMgr) dbgc() {
	if b.compiling.GetSyncHeight()-b.lastGCHeight < b.cfg.GCPeriod {
		return
	}
	b.compact()
	b.lastGCHeight = b.compiling.GetSyncHeight()
}

func (b *IndexerMgr) compact() {
	start := time.Now()
	for _, db := range b.dbs() {
		if db == nil {
			continue
		}
		if err := db.Compact(); err != nil {
			common.Log.Warnf("IndexerMgr.dbgc-> %s: %v", db.Path(), err)
		}
	}
	common.Log.Infof("dbgc completed in %v", time.Since(start))
}

func (b *IndexerMgr) closeDB() {
	b.compact()
	if b.pool != nil {
		b.pool.StopAndWait()
	}
	for _, db := range b.dbs() {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			common.Log.Errorf("IndexerMgr.closeDB-> %s: %v", db.Path(), err)
		}
	}
}

func (b *IndexerMgr) handleReorg(height int) {
	start := b.compiling.Rollback(height)
	common.Log.Infof("IndexerMgr handleReorg completed, %s.", start)
}

func (b *IndexerMgr) reload() {
	start := b.compiling.Reload()
	common.Log.Warnf("IndexerMgr reloaded after a failed block, %s.", start)
}

// updateServiceInstance publishes the committed state to readers. The base
// indexer calls it with b.mutex held for writing, at the end of the same
// section that changed the stores.
func (b *IndexerMgr) updateServiceInstance() {
	newService := base_indexer.NewRpcIndexer(b.compiling)
	b.rpcService = newService
	common.Log.Debugf("service instance %d cloned", newService.GetSyncHeight())
}
