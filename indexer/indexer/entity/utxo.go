package entity

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
)

// UtxoEntry is an unspent output keyed by its global output index.
type UtxoEntry struct {
	Value     btcutil.Amount
	Type      txscript.ScriptClass
	TypeIndex uint32
}

// AddressKey returns the address the output pays, if its class has one.
func (e UtxoEntry) AddressKey() (AddressKey, bool) {
	if !common.IsAddressType(e.Type) {
		return AddressKey{}, false
	}
	return AddressKey{Type: e.Type, TypeIndex: e.TypeIndex}, true
}

func (e UtxoEntry) bytes() []byte {
	b := make([]byte, 13)
	binary.BigEndian.PutUint64(b, uint64(e.Value))
	b[8] = byte(e.Type)
	binary.BigEndian.PutUint32(b[9:], e.TypeIndex)
	return b
}

func utxoEntryFromBytes(b []byte) (UtxoEntry, error) {
	if len(b) != 13 {
		return UtxoEntry{}, fmt.Errorf("utxo entry of %d bytes", len(b))
	}
	return UtxoEntry{
		Value:     btcutil.Amount(binary.BigEndian.Uint64(b)),
		Type:      txscript.ScriptClass(b[8]),
		TypeIndex: binary.BigEndian.Uint32(b[9:]),
	}, nil
}

// UtxoTable holds every unspent output. Spending deletes the entry.
type UtxoTable struct {
	vec *database.Vec
}

func NewUtxoTable(vec *database.Vec) *UtxoTable {
	return &UtxoTable{vec: vec}
}

func (u *UtxoTable) Name() string {
	return u.vec.Name()
}

func (u *UtxoTable) Put(outputIndex uint64, e UtxoEntry) {
	u.vec.Put(database.Uint64Key(outputIndex), e.bytes())
}

func (u *UtxoTable) Get(outputIndex uint64, policy database.ReadPolicy) (UtxoEntry, bool, error) {
	data, err := u.vec.Get(database.Uint64Key(outputIndex), policy)
	if errors.Is(err, database.ErrNotFound) {
		return UtxoEntry{}, false, nil
	}
	if err != nil {
		return UtxoEntry{}, false, err
	}
	e, err := utxoEntryFromBytes(data)
	return e, err == nil, err
}

func (u *UtxoTable) Delete(outputIndex uint64) {
	u.vec.Delete(database.Uint64Key(outputIndex))
}

// Range walks the durable unspent outputs in output index order.
func (u *UtxoTable) Range(fn func(outputIndex uint64, e UtxoEntry) error) error {
	return u.vec.Range(nil, func(k, v []byte) error {
		e, err := utxoEntryFromBytes(v)
		if err != nil {
			return err
		}
		return fn(database.KeyToUint64(k), e)
	})
}

func (u *UtxoTable) Stamp() database.Stamp {
	return u.vec.Stamp()
}

func (u *UtxoTable) Flush(stamp database.Stamp) error {
	return u.vec.Flush(stamp)
}

func (u *UtxoTable) RollbackBefore(target database.Stamp) (database.Stamp, error) {
	return u.vec.RollbackBefore(target)
}

func (u *UtxoTable) Reset() error {
	return u.vec.Reset()
}
