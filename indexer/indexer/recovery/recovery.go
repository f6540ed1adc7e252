package recovery

import (
	"errors"
	"fmt"
	"math"

	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
)

// ErrInconsistent reports stores that could not be brought to one stamp.
var ErrInconsistent = errors.New("stores disagree after rollback")

// NoLimit lets Recover resume from the newest stamp every store shares.
const NoLimit = database.Stamp(math.MaxUint64)

// Store is one independently stamped part of the engine's durable state.
type Store interface {
	Name() string
	Stamp() database.Stamp
	RollbackBefore(target database.Stamp) (database.Stamp, error)
	Reset() error
}

// StartState is where block processing starts. Height is the last committed
// height, -1 when starting from scratch.
type StartState struct {
	Fresh  bool
	Height int
}

func (s StartState) String() string {
	if s.Fresh {
		return "fresh"
	}
	return fmt.Sprintf("resume(%d)", s.Height)
}

// Controller decides the start height from the stamps of every store.
type Controller struct {
	stores []Store

	// load rebuilds in-memory state from the stores once they agree. A
	// failure, like a missing cohort snapshot, forces a rebuild.
	load func() error
}

func New(stores []Store, load func() error) *Controller {
	return &Controller{stores: stores, load: load}
}

// Recover rolls every store back to the newest stamp at or below limit that
// they all can reach. If any rollback fails, the stores end on different
// stamps, or load fails, every store is reset and processing starts fresh.
func (c *Controller) Recover(limit database.Stamp) StartState {
	stamp, err := c.resume(limit)
	if err == nil {
		if stamp == 0 {
			return StartState{Fresh: true, Height: -1}
		}
		common.Log.Infof("recovery: resuming after height %d", stamp.Height())
		return StartState{Height: stamp.Height()}
	}

	common.Log.Warnf("recovery: %v, rebuilding from scratch", err)
	c.fresh()
	return StartState{Fresh: true, Height: -1}
}

func (c *Controller) resume(limit database.Stamp) (database.Stamp, error) {
	target := limit
	for _, s := range c.stores {
		target = min(target, s.Stamp())
	}

	var result database.Stamp
	for i, s := range c.stores {
		got, err := s.RollbackBefore(target)
		if err != nil {
			return 0, fmt.Errorf("rollback %s to %d: %w", s.Name(), target, err)
		}
		if i > 0 && got != result {
			return 0, fmt.Errorf("%s at %d, %s at %d: %w", s.Name(), got,
				c.stores[0].Name(), result, ErrInconsistent)
		}
		result = got
	}

	if err := c.load(); err != nil {
		return 0, fmt.Errorf("load at %d: %w", result, err)
	}
	return result, nil
}

func (c *Controller) fresh() {
	for _, s := range c.stores {
		if err := s.Reset(); err != nil {
			common.Log.Panicf("recovery: reset %s failed: %v", s.Name(), err)
		}
	}
	for _, s := range c.stores {
		if stamp := s.Stamp(); stamp != 0 {
			common.Log.Panicf("recovery: %s still at %d after reset", s.Name(), stamp)
		}
	}
	if err := c.load(); err != nil {
		common.Log.Panicf("recovery: load of empty stores failed: %v", err)
	}
}
