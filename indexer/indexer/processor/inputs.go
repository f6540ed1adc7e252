package processor

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sat20-labs/cohortd/database"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/cohort"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
)

type sentSet struct {
	byHeight  *xsync.Map[int, *cohort.UTXOBatch]
	addresses map[entity.AddressKey]*flow
	total     btcutil.Amount
}

// heights returns the creation heights of spent outputs, ascending.
func (s *sentSet) heights() []int {
	var heights []int
	s.byHeight.Range(func(h int, _ *cohort.UTXOBatch) bool {
		heights = append(heights, h)
		return true
	})
	sort.Ints(heights)
	return heights
}

func (s *sentSet) at(height int) *cohort.UTXOBatch {
	b, _ := s.byHeight.Load(height)
	return b
}

// resolveInputs finds the output spent by every input, removes it from the
// UTXO table and sums spent value per creation height and per address.
// Workers reduce locally and merge into the shared per-height map.
func (p *Processor) resolveInputs(block *common.Block) (*sentSet, error) {
	var inputs []*common.Input
	for _, tx := range block.Transactions {
		for _, in := range tx.Inputs {
			if !in.Coinbase {
				inputs = append(inputs, in)
			}
		}
	}

	sent := &sentSet{
		byHeight:  xsync.NewMap[int, *cohort.UTXOBatch](),
		addresses: make(map[entity.AddressKey]*flow),
	}
	chunkAddresses := make([]map[entity.AddressKey]*flow, (len(inputs)+p.chunkSize-1)/p.chunkSize)
	chunkTotals := make([]btcutil.Amount, len(chunkAddresses))

	err := p.forEachChunk(len(inputs), func(c, lo, hi int) error {
		lookup := p.takeLookup()
		defer p.releaseLookup(lookup)
		local := make(map[int]*cohort.UTXOBatch)
		addresses := make(map[entity.AddressKey]*flow)
		var total btcutil.Amount

		for _, in := range inputs[lo:hi] {
			first, err := p.firstOutputOf(in.PrevTxIndex)
			if err != nil {
				return fmt.Errorf("input spending tx %d: %w", in.PrevTxIndex, err)
			}
			idx := first + uint64(in.Vout)
			utxo, ok, err := p.entities.Utxos.Get(idx, database.PushedOrRead)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("output %d (tx %d vout %d) is not unspent", idx, in.PrevTxIndex, in.Vout)
			}
			height, ok := lookup.Height(idx)
			if !ok {
				return fmt.Errorf("output %d has no creation height", idx)
			}
			p.entities.Utxos.Delete(idx)

			b, ok := local[height]
			if !ok {
				b = cohort.NewUTXOBatch()
				local[height] = b
			}
			b.Add(utxo.Value, utxo.Type)
			total += utxo.Value
			if key, ok := utxo.AddressKey(); ok {
				addFlow(addresses, key, utxo.Value)
			}
		}

		for h, b := range local {
			sent.byHeight.Compute(h, func(old *cohort.UTXOBatch, loaded bool) (*cohort.UTXOBatch, xsync.ComputeOp) {
				if !loaded {
					return b, xsync.UpdateOp
				}
				old.Merge(b)
				return old, xsync.UpdateOp
			})
		}
		chunkAddresses[c] = addresses
		chunkTotals[c] = total
		return nil
	})
	if err != nil {
		return nil, err
	}

	for c := range chunkAddresses {
		mergeFlows(sent.addresses, chunkAddresses[c])
		sent.total += chunkTotals[c]
	}
	return sent, nil
}
