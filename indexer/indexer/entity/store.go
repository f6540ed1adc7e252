package entity

import (
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
)

// Store groups the address partitions, the indirection table and the UTXO
// table of one database. Each part is stamped on its own.
type Store struct {
	db *database.DB

	Loaded      *Arena[LoadedAddressData]
	Empty       *Arena[EmptyAddressData]
	Indirection *Indirection
	Utxos       *UtxoTable
}

func Open(db *database.DB) (*Store, error) {
	open := func(name string) (*database.Vec, error) {
		return db.OpenVec(name, common.ENTITY_DB_VERSION)
	}

	vec, err := open(common.DB_KEY_LOADED)
	if err != nil {
		return nil, err
	}
	loaded, err := NewArena[LoadedAddressData](vec)
	if err != nil {
		return nil, err
	}

	vec, err = open(common.DB_KEY_EMPTY)
	if err != nil {
		return nil, err
	}
	empty, err := NewArena[EmptyAddressData](vec)
	if err != nil {
		return nil, err
	}

	vec, err = open(common.DB_KEY_INDIRECTION)
	if err != nil {
		return nil, err
	}
	indirection := NewIndirection(vec, DefaultAbsentCacheSize)

	vec, err = open(common.DB_KEY_UTXO)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:          db,
		Loaded:      loaded,
		Empty:       empty,
		Indirection: indirection,
		Utxos:       NewUtxoTable(vec),
	}, nil
}

// Flush writes the partitions before the indirection table so a record never
// points at an unwritten slot.
func (s *Store) Flush(stamp database.Stamp) error {
	if err := s.Loaded.Flush(stamp); err != nil {
		return err
	}
	if err := s.Empty.Flush(stamp); err != nil {
		return err
	}
	if err := s.Utxos.Flush(stamp); err != nil {
		return err
	}
	return s.Indirection.Flush(stamp)
}

// GetAddress resolves key through the indirection table. Query code passes
// SingleShot.
func (s *Store) GetAddress(key AddressKey, policy database.ReadPolicy) (*LoadedAddressData, *EmptyAddressData, error) {
	idx, ok, err := s.Indirection.Get(key, policy)
	if err != nil || !ok {
		return nil, nil, err
	}
	switch idx.Partition {
	case Loaded:
		v, ok, err := s.Loaded.Get(idx.Index, policy)
		if err != nil || !ok {
			return nil, nil, err
		}
		return &v, nil, nil
	default:
		v, ok, err := s.Empty.Get(idx.Index, policy)
		if err != nil || !ok {
			return nil, nil, err
		}
		return nil, &v, nil
	}
}

func (s *Store) Compact() error {
	return s.db.Compact()
}
