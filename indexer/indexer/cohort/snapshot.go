package cohort

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
)

var stateKey = []byte("state")

// ErrMissingSnapshot is returned by Import when a stamped cohort column has
// no state.
var ErrMissingSnapshot = errors.New("cohort snapshot missing")

// SnapshotStore persists one column per cohort. Columns are stamped
// independently; Import only succeeds when every cohort can be read.
type SnapshotStore struct {
	db   *database.DB
	vecs []*database.Vec // parallel to Set.States
}

func OpenSnapshots(db *database.DB, set *Set) (*SnapshotStore, error) {
	s := &SnapshotStore{db: db}
	for _, st := range set.States() {
		vec, err := db.OpenVec(common.DB_KEY_COHORT+st.Name, common.COHORT_DB_VERSION)
		if err != nil {
			return nil, err
		}
		s.vecs = append(s.vecs, vec)
	}
	return s, nil
}

// Columns returns the cohort columns in Set.States order.
func (s *SnapshotStore) Columns() []*database.Vec {
	return s.vecs
}

// Save writes every state and flushes each column under stamp.
func (s *SnapshotStore) Save(set *Set, stamp database.Stamp) error {
	for i, st := range set.States() {
		vec := s.vecs[i]
		if err := database.PutValue(vec, stateKey, st); err != nil {
			return fmt.Errorf("cohort %s: %w", st.Name, err)
		}
		if err := vec.Flush(stamp); err != nil {
			return err
		}
	}
	return nil
}

// Import loads every state. A column that was never flushed yields an empty
// state.
func (s *SnapshotStore) Import(set *Set) error {
	for i, st := range set.States() {
		vec := s.vecs[i]
		if vec.Stamp() == 0 {
			*st = *NewState(st.Name)
			continue
		}
		v, err := database.GetValue[State](vec, stateKey, database.SingleShot)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("cohort %s at %v: %w", st.Name, vec.Stamp(), ErrMissingSnapshot)
		}
		if err != nil {
			return fmt.Errorf("cohort %s: %w", st.Name, err)
		}
		if v.Name != st.Name {
			return fmt.Errorf("cohort column %s holds %s", st.Name, v.Name)
		}
		if v.Distribution == nil {
			v.Distribution = NewDistribution()
		}
		if v.Distribution.Amounts == nil {
			v.Distribution.Amounts = make(map[common.Cents]btcutil.Amount)
		}
		*st = v
	}
	return nil
}
