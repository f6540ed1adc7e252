package common

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// Input references the output it spends by the global index of the
// transaction that created it and the position inside that transaction.
type Input struct {
	PrevTxIndex uint64 `json:"prevTxIndex"`
	Vout        uint32 `json:"vout"`
	Coinbase    bool   `json:"coinbase"`
}

// Output carries an opaque per-type index assigned by the parser. Two outputs
// with the same Type and TypeIndex pay the same address.
type Output struct {
	Type      txscript.ScriptClass `json:"type"`
	TypeIndex uint32               `json:"typeIndex"`
	Value     btcutil.Amount       `json:"value"`
}

type Transaction struct {
	TxIndex uint64    `json:"txIndex"`
	Inputs  []*Input  `json:"inputs"`
	Outputs []*Output `json:"outputs"`
}

type Block struct {
	Timestamp     time.Time      `json:"timestamp"`
	Height        int            `json:"height"`
	Hash          chainhash.Hash `json:"hash"`
	PrevBlockHash chainhash.Hash `json:"prevBlockHash"`
	Transactions  []*Transaction `json:"transactions"`
}

func (b *Block) OutputCount() int {
	n := 0
	for _, tx := range b.Transactions {
		n += len(tx.Outputs)
	}
	return n
}

func (b *Block) InputCount() int {
	n := 0
	for _, tx := range b.Transactions {
		for _, in := range tx.Inputs {
			if !in.Coinbase {
				n++
			}
		}
	}
	return n
}

// BlockSource is the parser side of the pipeline. GetBlockCount returns the
// height of the best block, as bitcoind does.
type BlockSource interface {
	GetBlockCount() (int, error)
	GetBlockHash(height int) (*chainhash.Hash, error)
	GetBlock(height int) (*Block, error)
}

// PriceSource returns the USD close for a block. Zero means unknown.
type PriceSource interface {
	Price(height int, timestamp time.Time) Dollars
}
