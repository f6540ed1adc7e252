package processor

import (
	"errors"
	"fmt"

	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
)

// Series holds the derived, height or tx indexed columns: the first output
// of every transaction, per block statistics and the unspent supply left at
// every height.
type Series struct {
	txFirstOutput *database.Vec
	blockStats    *database.Vec
	chainState    *database.Vec
}

func OpenSeries(db *database.DB) (*Series, error) {
	s := &Series{}
	for _, col := range []struct {
		name string
		vec  **database.Vec
	}{
		{common.DB_KEY_TXOUTPUT, &s.txFirstOutput},
		{common.DB_KEY_BLOCKSTATS, &s.blockStats},
		{common.DB_KEY_CHAINSTATE, &s.chainState},
	} {
		vec, err := db.OpenVec(col.name, common.SERIES_DB_VERSION)
		if err != nil {
			return nil, err
		}
		*col.vec = vec
	}
	return s, nil
}

func (s *Series) Columns() []*database.Vec {
	return []*database.Vec{s.txFirstOutput, s.blockStats, s.chainState}
}

func (s *Series) PutTxFirstOutput(txIndex, firstOutput uint64) {
	s.txFirstOutput.Put(database.Uint64Key(txIndex), database.Uint64Key(firstOutput))
}

func (s *Series) PutBlockStats(stats *common.BlockStats) error {
	return database.PutValue(s.blockStats, database.Uint64Key(uint64(stats.Height)), stats)
}

// GetBlockStats returns the statistics of height, nil when the height was
// never processed.
func (s *Series) GetBlockStats(height int, policy database.ReadPolicy) (*common.BlockStats, error) {
	if height < 0 {
		return nil, nil
	}
	stats, err := database.GetValue[common.BlockStats](s.blockStats, database.Uint64Key(uint64(height)), policy)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("block stats %d: %w", height, err)
	}
	return &stats, nil
}

// RangeStats walks the durable block statistics by height.
func (s *Series) RangeStats(fn func(stats *common.BlockStats) error) error {
	return s.blockStats.Range(nil, func(_, value []byte) error {
		stats, err := database.DecodeValue[common.BlockStats](value)
		if err != nil {
			return err
		}
		return fn(&stats)
	})
}

func (s *Series) PutChainState(height int, state common.BlockState) error {
	return database.PutValue(s.chainState, database.Uint64Key(uint64(height)), state)
}

// RangeChainState walks the durable chain state by height.
func (s *Series) RangeChainState(fn func(height int, state common.BlockState) error) error {
	return s.chainState.Range(nil, func(key, value []byte) error {
		state, err := database.DecodeValue[common.BlockState](value)
		if err != nil {
			return err
		}
		return fn(int(database.KeyToUint64(key)), state)
	})
}

// Flush makes the series durable under stamp.
func (s *Series) Flush(stamp database.Stamp) error {
	for _, vec := range s.Columns() {
		if err := vec.Flush(stamp); err != nil {
			return err
		}
	}
	return nil
}
