package bitcoind

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/dgraph-io/badger/v4"
	"github.com/sat20-labs/cohortd/indexer/common"
)

// Source turns bitcoind blocks into indexer blocks. Blocks must be fetched in
// height order: the first tx index of a block follows from the previous one.
type Source struct {
	client chainClient
	book   *book
	mtx    sync.Mutex
}

var _ common.BlockSource = (*Source)(nil)

func NewSource(client chainClient, bookPath string) (*Source, error) {
	b, err := openBook(bookPath)
	if err != nil {
		return nil, err
	}
	return &Source{client: client, book: b}, nil
}

func (s *Source) Close() error {
	return s.book.close()
}

func (s *Source) GetBlockCount() (int, error) {
	count, err := s.client.GetBlockCount()
	return int(count), err
}

func (s *Source) GetBlockHash(height int) (*chainhash.Hash, error) {
	return s.client.GetBlockHash(int64(height))
}

func (s *Source) GetBlock(height int) (*common.Block, error) {
	hash, err := s.client.GetBlockHash(int64(height))
	if err != nil {
		return nil, err
	}
	msg, err := s.client.GetBlock(hash)
	if err != nil {
		return nil, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	var block *common.Block
	err = s.book.db.Update(func(txn *badger.Txn) error {
		var err error
		block, err = convertBlock(txn, height, msg)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("convert block %d %s: %w", height, hash, err)
	}
	return block, nil
}

func convertBlock(txn *badger.Txn, height int, msg *wire.MsgBlock) (*common.Block, error) {
	first, err := nextTxIndex(txn, height)
	if err != nil {
		return nil, err
	}

	block := &common.Block{
		Timestamp:     msg.Header.Timestamp,
		Height:        height,
		Hash:          msg.BlockHash(),
		PrevBlockHash: msg.Header.PrevBlock,
		Transactions:  make([]*common.Transaction, 0, len(msg.Transactions)),
	}

	// Register every txid first so spends of earlier transactions of the
	// same block resolve.
	for i, msgTx := range msg.Transactions {
		hash := msgTx.TxHash()
		if err := putTx(txn, &hash, first+uint64(i)); err != nil {
			return nil, err
		}
	}

	for i, msgTx := range msg.Transactions {
		tx := &common.Transaction{
			TxIndex: first + uint64(i),
			Inputs:  make([]*common.Input, 0, len(msgTx.TxIn)),
			Outputs: make([]*common.Output, 0, len(msgTx.TxOut)),
		}

		if blockchain.IsCoinBaseTx(msgTx) {
			tx.Inputs = append(tx.Inputs, &common.Input{Coinbase: true})
		} else {
			for _, in := range msgTx.TxIn {
				prev, err := getTx(txn, &in.PreviousOutPoint.Hash)
				if err != nil {
					return nil, err
				}
				tx.Inputs = append(tx.Inputs, &common.Input{
					PrevTxIndex: prev,
					Vout:        in.PreviousOutPoint.Index,
				})
			}
		}

		for _, out := range msgTx.TxOut {
			output, err := convertOutput(txn, out)
			if err != nil {
				return nil, err
			}
			tx.Outputs = append(tx.Outputs, output)
		}
		block.Transactions = append(block.Transactions, tx)
	}

	if err := putHeight(txn, height, first, len(msg.Transactions)); err != nil {
		return nil, err
	}
	return block, nil
}

func convertOutput(txn *badger.Txn, out *wire.TxOut) (*common.Output, error) {
	class := txscript.GetScriptClass(out.PkScript)
	output := &common.Output{
		Type:  class,
		Value: btcutil.Amount(out.Value),
	}
	if !common.IsAddressType(class) {
		return output, nil
	}
	index, err := typeIndex(txn, class, out.PkScript)
	if err != nil {
		return nil, err
	}
	output.TypeIndex = index
	return output, nil
}
