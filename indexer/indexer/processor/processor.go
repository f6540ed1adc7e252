package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/blockcache"
	"github.com/sat20-labs/cohortd/indexer/indexer/cohort"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
	"github.com/sat20-labs/cohortd/indexer/indexer/rangelookup"
	"github.com/sat20-labs/cohortd/indexer/indexer/recovery"
)

// ErrUnexpectedBlock is returned for a block that does not extend the
// processed chain.
var ErrUnexpectedBlock = errors.New("block does not extend the processed chain")

// DefaultChunkSize is the number of inputs or transactions one worker
// resolves at a time.
const DefaultChunkSize = 512

// Processor applies blocks one at a time to the entity store and the cohort
// states. It owns every piece of state it mutates; callers serialize
// ProcessBlock and Flush.
type Processor struct {
	entities  *entity.Store
	cache     *blockcache.Cache
	cohorts   *cohort.Set
	snapshots *cohort.SnapshotStore
	series    *Series
	prices    common.PriceSource
	pool      pond.Pool
	chunkSize int

	lookup  *rangelookup.Lookup
	forks   chan *rangelookup.Lookup // idle worker lookups, kept across blocks
	heights []common.BlockState
	dirty   map[int]bool // heights whose chain state changed since the last write

	nextTxIndex     uint64
	nextOutputIndex uint64
}

// New wires a processor over opened stores. Load must run, directly or
// through recovery, before the first block.
func New(
	entityDB *database.DB,
	seriesDB *database.DB,
	cohortDB *database.DB,
	prices common.PriceSource,
	pool pond.Pool,
) (*Processor, error) {
	entities, err := entity.Open(entityDB)
	if err != nil {
		return nil, err
	}
	series, err := OpenSeries(seriesDB)
	if err != nil {
		return nil, err
	}
	cohorts := cohort.NewSet()
	snapshots, err := cohort.OpenSnapshots(cohortDB, cohorts)
	if err != nil {
		return nil, err
	}

	return &Processor{
		entities:  entities,
		cache:     blockcache.NewCache(entities),
		cohorts:   cohorts,
		snapshots: snapshots,
		series:    series,
		prices:    prices,
		pool:      pool,
		chunkSize: DefaultChunkSize,
		lookup:    rangelookup.New(),
		forks:     make(chan *rangelookup.Lookup, max(pool.MaxConcurrency(), 1)),
		dirty:     make(map[int]bool),
	}, nil
}

// Stores lists every independently stamped store, entity store first and
// cohort snapshots last.
func (p *Processor) Stores() []recovery.Store {
	stores := []recovery.Store{
		p.entities.Loaded,
		p.entities.Empty,
		p.entities.Indirection,
		p.entities.Utxos,
	}
	for _, vec := range p.series.Columns() {
		stores = append(stores, vec)
	}
	for _, vec := range p.snapshots.Columns() {
		stores = append(stores, vec)
	}
	return stores
}

// Recover brings the stores to a common stamp at or below limit and loads
// the in-memory state from them.
func (p *Processor) Recover(limit database.Stamp) recovery.StartState {
	return recovery.New(p.Stores(), p.Load).Recover(limit)
}

// Load rebuilds the in-memory state from the durable stores.
func (p *Processor) Load() error {
	p.cache.Clear()
	if err := p.snapshots.Import(p.cohorts); err != nil {
		return err
	}

	p.heights = p.heights[:0]
	p.dirty = make(map[int]bool)
	p.lookup = rangelookup.New()
	p.nextTxIndex = 0
	p.nextOutputIndex = 0

	err := p.series.RangeStats(func(stats *common.BlockStats) error {
		if stats.Height != p.lookup.Len() {
			return fmt.Errorf("block stats of height %d out of order", stats.Height)
		}
		end := stats.FirstOutputIndex + uint64(stats.OutputCount)
		p.lookup.Push(stats.FirstOutputIndex, end)
		p.nextTxIndex = stats.FirstTxIndex + uint64(stats.TxCount)
		p.nextOutputIndex = end
		return nil
	})
	if err != nil {
		return err
	}

	err = p.series.RangeChainState(func(height int, state common.BlockState) error {
		if height != len(p.heights) {
			return fmt.Errorf("chain state of height %d out of order", height)
		}
		p.heights = append(p.heights, state)
		return nil
	})
	if err != nil {
		return err
	}
	if len(p.heights) != p.lookup.Len() {
		return fmt.Errorf("%d block stats but %d chain states", p.lookup.Len(), len(p.heights))
	}

	common.Log.Infof("processor loaded up to height %d, next tx %d, next output %d",
		p.Height(), p.nextTxIndex, p.nextOutputIndex)
	return nil
}

// Height is the last processed height, flushed or not.
func (p *Processor) Height() int {
	return len(p.heights) - 1
}

// Cohorts exposes the live cohort states. Only the goroutine driving the
// processor may read them; readers use a clone taken at flush.
func (p *Processor) Cohorts() *cohort.Set {
	return p.cohorts
}

func (p *Processor) Entities() *entity.Store {
	return p.entities
}

func (p *Processor) Series() *Series {
	return p.series
}

func (p *Processor) SetChunkSize(n int) {
	p.chunkSize = max(n, 1)
}

// Stamp is the stamp the next flush writes.
func (p *Processor) Stamp() database.Stamp {
	return database.StampOf(p.Height())
}

// Flush makes every block processed so far durable under one stamp. The
// entity store goes first and the cohort snapshots last.
func (p *Processor) Flush() error {
	if p.Height() < 0 {
		return nil
	}
	stamp := p.Stamp()
	if stamp <= p.entities.Loaded.Stamp() {
		return nil
	}
	start := time.Now()

	if err := p.cache.Flush(stamp); err != nil {
		return fmt.Errorf("flush entities: %w", err)
	}
	if err := p.writeChainState(); err != nil {
		return err
	}
	if err := p.series.Flush(stamp); err != nil {
		return fmt.Errorf("flush series: %w", err)
	}
	if err := p.snapshots.Save(p.cohorts, stamp); err != nil {
		return fmt.Errorf("flush cohorts: %w", err)
	}

	common.Log.Infof("flushed height %d in %v", p.Height(), time.Since(start))
	return nil
}

func (p *Processor) writeChainState() error {
	for h := range p.dirty {
		if err := p.series.PutChainState(h, p.heights[h]); err != nil {
			return err
		}
	}
	p.dirty = make(map[int]bool)
	return nil
}
