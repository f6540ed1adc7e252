package bitcoind

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/dgraph-io/badger/v4"
	"github.com/sat20-labs/cohortd/indexer/common"
)

const (
	bookKeyHeight  = "h" // height -> first tx index | tx count
	bookKeyTx      = "t" // txid -> tx index
	bookKeyScript  = "s" // class | pkScript -> type index
	bookKeyCounter = "n" // class -> next type index
)

var errNotInBook = errors.New("not in book")

// book numbers transactions in chain order and addresses per script class.
// Heights are rewritten when a block is fetched again after a reorg. Tx and
// script entries of orphaned blocks stay behind and are never referenced by
// the active chain unless the same transaction is mined again, which
// rewrites them.
type book struct {
	db *badger.DB
}

func openBook(path string) (*book, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithLogger(common.Log).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &book{db: db}, nil
}

func (b *book) close() error {
	return b.db.Close()
}

func heightKey(height int) []byte {
	key := []byte(bookKeyHeight)
	return binary.BigEndian.AppendUint64(key, uint64(height))
}

func txKey(hash *chainhash.Hash) []byte {
	return append([]byte(bookKeyTx), hash[:]...)
}

func scriptKey(class txscript.ScriptClass, pkScript []byte) []byte {
	key := append([]byte(bookKeyScript), byte(class))
	return append(key, pkScript...)
}

func counterKey(class txscript.ScriptClass) []byte {
	return append([]byte(bookKeyCounter), byte(class))
}

func getValue(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errNotInBook
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// nextTxIndex returns the index of the first transaction at height.
func nextTxIndex(txn *badger.Txn, height int) (uint64, error) {
	if height == 0 {
		return 0, nil
	}
	value, err := getValue(txn, heightKey(height-1))
	if err != nil {
		return 0, fmt.Errorf("block %d: %w", height-1, err)
	}
	return binary.BigEndian.Uint64(value[:8]) + binary.BigEndian.Uint64(value[8:]), nil
}

func putHeight(txn *badger.Txn, height int, first uint64, count int) error {
	value := binary.BigEndian.AppendUint64(nil, first)
	value = binary.BigEndian.AppendUint64(value, uint64(count))
	return txn.Set(heightKey(height), value)
}

func putTx(txn *badger.Txn, hash *chainhash.Hash, index uint64) error {
	return txn.Set(txKey(hash), binary.BigEndian.AppendUint64(nil, index))
}

func getTx(txn *badger.Txn, hash *chainhash.Hash) (uint64, error) {
	value, err := getValue(txn, txKey(hash))
	if err != nil {
		return 0, fmt.Errorf("tx %s: %w", hash, err)
	}
	return binary.BigEndian.Uint64(value), nil
}

// typeIndex returns the index of pkScript within its class, assigning the
// next free one on first sight.
func typeIndex(txn *badger.Txn, class txscript.ScriptClass, pkScript []byte) (uint32, error) {
	key := scriptKey(class, pkScript)
	value, err := getValue(txn, key)
	if err == nil {
		return binary.BigEndian.Uint32(value), nil
	}
	if !errors.Is(err, errNotInBook) {
		return 0, err
	}

	var next uint32
	value, err = getValue(txn, counterKey(class))
	switch {
	case err == nil:
		next = binary.BigEndian.Uint32(value)
	case !errors.Is(err, errNotInBook):
		return 0, err
	}
	if err := txn.Set(key, binary.BigEndian.AppendUint32(nil, next)); err != nil {
		return 0, err
	}
	if err := txn.Set(counterKey(class), binary.BigEndian.AppendUint32(nil, next+1)); err != nil {
		return 0, err
	}
	return next, nil
}
