package processor

import (
	"sort"

	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/blockcache"
	"github.com/sat20-labs/cohortd/indexer/indexer/cohort"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
)

const secondsPerDay = 24 * 60 * 60

var ageBoundaries = cohort.AgeBoundarySeconds()

// crossedHeights returns the heights, below len(p.heights), whose outputs
// crossed an age boundary between prevNow and now.
func (p *Processor) crossedHeights(prevNow, now int64) []int {
	if now <= prevNow {
		return nil
	}
	seen := make(map[int]bool)
	for _, d := range ageBoundaries {
		// created in (prevNow-d, now-d]
		lo := sort.Search(len(p.heights), func(i int) bool {
			return p.heights[i].Timestamp > prevNow-d
		})
		hi := sort.Search(len(p.heights), func(i int) bool {
			return p.heights[i].Timestamp > now-d
		})
		for h := lo; h < hi; h++ {
			seen[h] = true
		}
	}
	heights := make([]int, 0, len(seen))
	for h := range seen {
		heights = append(heights, h)
	}
	sort.Ints(heights)
	return heights
}

// ageUTXOs moves the unspent outputs of older heights to the age band and
// term they belong to at now.
func (p *Processor) ageUTXOs(now int64) {
	if len(p.heights) == 0 {
		return
	}
	prevNow := p.heights[len(p.heights)-1].Timestamp
	g := p.cohorts.UTXO
	for _, h := range p.crossedHeights(prevNow, now) {
		state := p.heights[h]
		from, to := prevNow-state.Timestamp, now-state.Timestamp
		g.Shift(state.Supply, state.Price,
			cohort.AgeBandOf(from), cohort.AgeBandOf(to),
			cohort.TermOf(from), cohort.TermOf(to))
	}
}

// spendUTXOs removes spent outputs from the cohorts of their creation height
// and returns the coin-days destroyed.
func (p *Processor) spendUTXOs(sent *sentSet, now int64, price common.Dollars) float64 {
	g := p.cohorts.UTXO
	var cdd float64
	for _, h := range sent.heights() {
		b := sent.at(h)
		state := &p.heights[h]
		age := now - state.Timestamp
		g.Send(b, state.Price, price, cohort.AgeBandOf(age), cohort.TermOf(age))
		state.Supply.Sub(b.Total)
		p.dirty[h] = true
		cdd += b.Total.Value.ToBTC() * float64(max(age, 0)) / secondsPerDay
	}
	return cdd
}

type addressCounts struct {
	created     int
	reactivated int
	emptied     int
}

func sortedFlowKeys(m map[entity.AddressKey]*flow) []entity.AddressKey {
	keys := make([]entity.AddressKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].TypeIndex < keys[j].TypeIndex
	})
	return keys
}

// processReceived credits every receiving address once with the sum of its
// outputs in the block.
func (p *Processor) processReceived(received map[entity.AddressKey]*flow, price common.Dollars, counts *addressCounts) error {
	g := p.cohorts.Address
	for _, key := range sortedFlowKeys(received) {
		f := received[key]
		a, status, err := p.cache.GetOrCreateForReceive(key)
		if err != nil {
			return err
		}

		var before *entity.LoadedAddressData
		switch status {
		case blockcache.Tracked:
			b := *a
			before = &b
		case blockcache.New:
			counts.created++
		case blockcache.WasEmpty:
			g.Empty.RemoveEntity(key)
			counts.reactivated++
		}

		a.Receive(f.value, f.count, price)
		g.Apply(key, before, a)
	}
	return nil
}

// processSent debits every spending address and books the realized result
// at average cost. Addresses left without outputs move to the empty
// partition.
func (p *Processor) processSent(sent map[entity.AddressKey]*flow, price common.Dollars, counts *addressCounts) error {
	g := p.cohorts.Address
	for _, key := range sortedFlowKeys(sent) {
		f := sent[key]
		a, err := p.cache.GetForSend(key)
		if err != nil {
			return err
		}

		before := *a
		cost := a.Send(f.value, f.count)
		g.Realize(key, &before, cost, price.Mul(f.value))

		if a.UTXOCount > 0 {
			g.Apply(key, &before, a)
			continue
		}
		g.Apply(key, &before, nil)
		p.cache.MoveToEmpty(key)
		g.Empty.AddEntity()
		counts.emptied++
	}
	return nil
}
