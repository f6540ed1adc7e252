package processor

import (
	"fmt"

	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/cohort"
)

// ProcessBlock applies one block on top of the processed chain. The block
// must be the next height and its transactions must continue the global
// transaction numbering.
func (p *Processor) ProcessBlock(block *common.Block) (*common.BlockStats, error) {
	if block.Height != p.Height()+1 {
		return nil, fmt.Errorf("block %d after height %d: %w", block.Height, p.Height(), ErrUnexpectedBlock)
	}
	for i, tx := range block.Transactions {
		if want := p.nextTxIndex + uint64(i); tx.TxIndex != want {
			return nil, fmt.Errorf("block %d tx %d has index %d, want %d: %w",
				block.Height, i, tx.TxIndex, want, ErrUnexpectedBlock)
		}
	}

	now := block.Timestamp.Unix()
	if n := len(p.heights); n > 0 && now < p.heights[n-1].Timestamp {
		common.Log.Debugf("block %d timestamp %d before previous %d, clamped",
			block.Height, now, p.heights[n-1].Timestamp)
		now = p.heights[n-1].Timestamp
	}
	price := p.prices.Price(block.Height, block.Timestamp)

	stats := &common.BlockStats{
		Height:           block.Height,
		Hash:             block.Hash.String(),
		Timestamp:        now,
		Price:            price,
		FirstTxIndex:     p.nextTxIndex,
		FirstOutputIndex: p.nextOutputIndex,
		TxCount:          len(block.Transactions),
		InputCount:       block.InputCount(),
		OutputCount:      block.OutputCount(),
	}

	received, err := p.recordOutputs(block)
	if err != nil {
		return nil, fmt.Errorf("block %d outputs: %w", block.Height, err)
	}

	// Age older heights against the new time before this height joins them.
	p.ageUTXOs(now)
	p.heights = append(p.heights, common.BlockState{
		Supply:    received.batch.Total,
		Price:     price,
		Timestamp: now,
	})
	p.dirty[block.Height] = true

	sent, err := p.resolveInputs(block)
	if err != nil {
		return nil, fmt.Errorf("block %d inputs: %w", block.Height, err)
	}

	p.cohorts.UTXO.Receive(received.batch, price, 0, cohort.TermShort)
	stats.CoinDaysDestroyed = p.spendUTXOs(sent, now, price)

	var counts addressCounts
	if err := p.processReceived(received.addresses, price, &counts); err != nil {
		return nil, fmt.Errorf("block %d received: %w", block.Height, err)
	}
	if err := p.processSent(sent.addresses, price, &counts); err != nil {
		return nil, fmt.Errorf("block %d sent: %w", block.Height, err)
	}

	stats.Fees = sent.total - (received.total - received.coinbase)
	stats.Subsidy = received.coinbase - stats.Fees
	stats.Supply = p.cohorts.UTXO.All.Supply.Value
	stats.UTXOCount = p.cohorts.UTXO.All.Supply.UTXOCount
	stats.UnspendableSupply = received.unspendable
	stats.NewAddresses = counts.created
	stats.Reactivated = counts.reactivated
	stats.Emptied = counts.emptied
	if err := p.series.PutBlockStats(stats); err != nil {
		return nil, err
	}

	common.Log.Debugf("block %d: %d txs, %d in, %d out, supply %v in %d utxos",
		block.Height, stats.TxCount, stats.InputCount, stats.OutputCount, stats.Supply, stats.UTXOCount)
	return stats, nil
}

// BlockState returns the unspent supply left from height, including
// blocks not yet flushed.
func (p *Processor) BlockState(height int) (common.BlockState, bool) {
	if height < 0 || height >= len(p.heights) {
		return common.BlockState{}, false
	}
	return p.heights[height], true
}
