package bitcoind

import (
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	blocks []*wire.MsgBlock
}

func (c *fakeClient) GetBlockCount() (int64, error) {
	return int64(len(c.blocks) - 1), nil
}

func (c *fakeClient) GetBlockHash(height int64) (*chainhash.Hash, error) {
	if height < 0 || height >= int64(len(c.blocks)) {
		return nil, fmt.Errorf("no block %d", height)
	}
	hash := c.blocks[height].BlockHash()
	return &hash, nil
}

func (c *fakeClient) GetBlock(hash *chainhash.Hash) (*wire.MsgBlock, error) {
	for _, b := range c.blocks {
		if b.BlockHash() == *hash {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no block %s", hash)
}

func (c *fakeClient) add(txs ...*wire.MsgTx) {
	var prev chainhash.Hash
	if n := len(c.blocks); n > 0 {
		prev = c.blocks[n-1].BlockHash()
	}
	header := wire.NewBlockHeader(1, &prev, &chainhash.Hash{}, 0x1d00ffff, uint32(len(c.blocks)))
	header.Timestamp = time.Unix(1231006505+int64(len(c.blocks))*600, 0)
	block := wire.NewMsgBlock(header)
	for _, tx := range txs {
		block.AddTransaction(tx)
	}
	c.blocks = append(c.blocks, block)
}

func p2pkh(t *testing.T, seed byte) []byte {
	t.Helper()
	hash := make([]byte, 20)
	hash[0] = seed
	addr, err := btcutil.NewAddressPubKeyHash(hash, &chaincfg.MainNetParams)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script
}

func p2tr(t *testing.T, seed byte) []byte {
	t.Helper()
	key := make([]byte, 32)
	key[0] = seed
	addr, err := btcutil.NewAddressTaproot(key, &chaincfg.MainNetParams)
	require.NoError(t, err)
	script, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)
	return script
}

func coinbaseTx(tag int64, pkScript []byte, value int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	prev := wire.NewOutPoint(&chainhash.Hash{}, math.MaxUint32)
	tx.AddTxIn(wire.NewTxIn(prev, []byte{byte(tag), byte(tag >> 8)}, nil))
	tx.AddTxOut(wire.NewTxOut(value, pkScript))
	return tx
}

func spendTx(prev *wire.MsgTx, vout uint32, outs ...*wire.TxOut) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	hash := prev.TxHash()
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&hash, vout), nil, nil))
	for _, out := range outs {
		tx.AddTxOut(out)
	}
	return tx
}

func openSource(t *testing.T, client *fakeClient) *Source {
	t.Helper()
	s, err := NewSource(client, filepath.Join(t.TempDir(), "book"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConvertBlocks(t *testing.T) {
	client := &fakeClient{}
	cb0 := coinbaseTx(0, p2pkh(t, 1), 5000)
	client.add(cb0)

	cb1 := coinbaseTx(1, p2pkh(t, 1), 5000)
	spend := spendTx(cb0, 0,
		wire.NewTxOut(3000, p2tr(t, 7)),
		wire.NewTxOut(1900, p2pkh(t, 2)),
		wire.NewTxOut(0, []byte{txscript.OP_RETURN, 0x01, 0x42}),
	)
	// Spends an output of the same block.
	chained := spendTx(spend, 0, wire.NewTxOut(2900, p2tr(t, 8)))
	client.add(cb1, spend, chained)

	s := openSource(t, client)
	tip, err := s.GetBlockCount()
	require.NoError(t, err)
	assert.Equal(t, 1, tip)

	b0, err := s.GetBlock(0)
	require.NoError(t, err)
	require.Len(t, b0.Transactions, 1)
	assert.EqualValues(t, 0, b0.Transactions[0].TxIndex)
	assert.True(t, b0.Transactions[0].Inputs[0].Coinbase)
	assert.Equal(t, txscript.PubKeyHashTy, b0.Transactions[0].Outputs[0].Type)
	assert.EqualValues(t, 0, b0.Transactions[0].Outputs[0].TypeIndex)

	b1, err := s.GetBlock(1)
	require.NoError(t, err)
	assert.Equal(t, b0.Hash, b1.PrevBlockHash)
	assert.Equal(t, client.blocks[1].Header.Timestamp, b1.Timestamp)
	require.Len(t, b1.Transactions, 3)
	for i, tx := range b1.Transactions {
		assert.EqualValues(t, 1+i, tx.TxIndex)
	}

	// Same script, same index.
	assert.EqualValues(t, 0, b1.Transactions[0].Outputs[0].TypeIndex)

	outs := b1.Transactions[1].Outputs
	assert.Equal(t, txscript.WitnessV1TaprootTy, outs[0].Type)
	assert.EqualValues(t, 0, outs[0].TypeIndex)
	assert.Equal(t, txscript.PubKeyHashTy, outs[1].Type)
	assert.EqualValues(t, 1, outs[1].TypeIndex)
	assert.Equal(t, txscript.NullDataTy, outs[2].Type)
	assert.Equal(t, btcutil.Amount(1900), outs[1].Value)

	in := b1.Transactions[1].Inputs[0]
	assert.EqualValues(t, 0, in.PrevTxIndex)
	assert.EqualValues(t, 0, in.Vout)
	assert.False(t, in.Coinbase)

	in = b1.Transactions[2].Inputs[0]
	assert.EqualValues(t, 2, in.PrevTxIndex)
	assert.EqualValues(t, 1, b1.Transactions[2].Outputs[0].TypeIndex)
}

func TestFetchOutOfOrder(t *testing.T) {
	client := &fakeClient{}
	client.add(coinbaseTx(0, p2pkh(t, 1), 5000))
	client.add(coinbaseTx(1, p2pkh(t, 1), 5000))

	s := openSource(t, client)
	_, err := s.GetBlock(1)
	assert.ErrorIs(t, err, errNotInBook)
}

func TestUnknownPrevout(t *testing.T) {
	client := &fakeClient{}
	client.add(coinbaseTx(0, p2pkh(t, 1), 5000))
	orphan := coinbaseTx(99, p2pkh(t, 3), 1)
	client.add(coinbaseTx(1, p2pkh(t, 1), 5000), spendTx(orphan, 0, wire.NewTxOut(1, p2pkh(t, 4))))

	s := openSource(t, client)
	_, err := s.GetBlock(0)
	require.NoError(t, err)
	_, err = s.GetBlock(1)
	assert.ErrorIs(t, err, errNotInBook)
}

func TestRefetchAfterReorg(t *testing.T) {
	client := &fakeClient{}
	cb0 := coinbaseTx(0, p2pkh(t, 1), 5000)
	client.add(cb0)
	client.add(coinbaseTx(1, p2pkh(t, 1), 5000), spendTx(cb0, 0, wire.NewTxOut(4000, p2tr(t, 1))))

	s := openSource(t, client)
	for h := 0; h <= 1; h++ {
		_, err := s.GetBlock(h)
		require.NoError(t, err)
	}

	// Replace block 1 by a block with a single coinbase.
	client.blocks = client.blocks[:1]
	client.add(coinbaseTx(101, p2tr(t, 2), 5000))
	client.add(coinbaseTx(102, p2tr(t, 2), 5000))

	b1, err := s.GetBlock(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, b1.Transactions[0].TxIndex)
	// The orphaned block already used taproot index 0.
	assert.EqualValues(t, 1, b1.Transactions[0].Outputs[0].TypeIndex)

	b2, err := s.GetBlock(2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, b2.Transactions[0].TxIndex)
	assert.EqualValues(t, 1, b2.Transactions[0].Outputs[0].TypeIndex)
}

func TestCheckNetwork(t *testing.T) {
	client := &fakeClient{}
	client.add(coinbaseTx(0, p2pkh(t, 1), 5000))
	assert.Error(t, CheckNetwork(client, &chaincfg.MainNetParams))

	client.blocks[0] = chaincfg.RegressionNetParams.GenesisBlock
	assert.NoError(t, CheckNetwork(client, &chaincfg.RegressionNetParams))
}
