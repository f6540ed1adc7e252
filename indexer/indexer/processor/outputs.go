package processor

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/cohort"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
)

// flow is value moved to or from one address in a block.
type flow struct {
	value btcutil.Amount
	count uint32
}

func addFlow(m map[entity.AddressKey]*flow, key entity.AddressKey, value btcutil.Amount) {
	f, ok := m[key]
	if !ok {
		f = &flow{}
		m[key] = f
	}
	f.value += value
	f.count++
}

func mergeFlows(dst, src map[entity.AddressKey]*flow) {
	for key, f := range src {
		d, ok := dst[key]
		if !ok {
			dst[key] = f
			continue
		}
		d.value += f.value
		d.count += f.count
	}
}

type receivedSet struct {
	batch       *cohort.UTXOBatch
	addresses   map[entity.AddressKey]*flow
	unspendable btcutil.Amount
	total       btcutil.Amount
	coinbase    btcutil.Amount
}

func newReceivedSet() *receivedSet {
	return &receivedSet{
		batch:     cohort.NewUTXOBatch(),
		addresses: make(map[entity.AddressKey]*flow),
	}
}

func (r *receivedSet) merge(o *receivedSet) {
	r.batch.Merge(o.batch)
	mergeFlows(r.addresses, o.addresses)
	r.unspendable += o.unspendable
	r.total += o.total
	r.coinbase += o.coinbase
}

func isCoinbase(tx *common.Transaction) bool {
	return len(tx.Inputs) > 0 && tx.Inputs[0].Coinbase
}

// recordOutputs numbers every output of the block, stores the spendable ones
// in the UTXO table and sums them per address. Outputs are recorded before
// any input is resolved so that spends inside the block find them.
func (p *Processor) recordOutputs(block *common.Block) (*receivedSet, error) {
	txs := block.Transactions
	firstOutputs := make([]uint64, len(txs))
	next := p.nextOutputIndex
	for i, tx := range txs {
		firstOutputs[i] = next
		next += uint64(len(tx.Outputs))
	}

	chunks := make([]*receivedSet, (len(txs)+p.chunkSize-1)/p.chunkSize)
	err := p.forEachChunk(len(txs), func(c, lo, hi int) error {
		r := newReceivedSet()
		for i := lo; i < hi; i++ {
			tx := txs[i]
			p.series.PutTxFirstOutput(tx.TxIndex, firstOutputs[i])
			coinbase := isCoinbase(tx)

			for vout, out := range tx.Outputs {
				r.total += out.Value
				if coinbase {
					r.coinbase += out.Value
				}
				if common.IsUnspendable(out.Type) {
					r.unspendable += out.Value
					continue
				}
				p.entities.Utxos.Put(firstOutputs[i]+uint64(vout), entity.UtxoEntry{
					Value:     out.Value,
					Type:      out.Type,
					TypeIndex: out.TypeIndex,
				})
				r.batch.Add(out.Value, out.Type)
				if common.IsAddressType(out.Type) {
					addFlow(r.addresses, entity.AddressKey{Type: out.Type, TypeIndex: out.TypeIndex}, out.Value)
				}
			}
		}
		chunks[c] = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	received := newReceivedSet()
	for _, r := range chunks {
		received.merge(r)
	}

	p.lookup.Push(p.nextOutputIndex, next)
	p.nextOutputIndex = next
	p.nextTxIndex += uint64(len(txs))
	return received, nil
}

// firstOutputOf returns the output index of vout 0 of a transaction.
func (p *Processor) firstOutputOf(txIndex uint64) (uint64, error) {
	data, err := p.series.txFirstOutput.Get(database.Uint64Key(txIndex), database.PushedOrRead)
	if err != nil {
		return 0, err
	}
	return database.KeyToUint64(data), nil
}
