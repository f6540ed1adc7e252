package cohort

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
)

// UTXOBatch sums outputs created or spent at one height, split along the
// axes that do not depend on time.
type UTXOBatch struct {
	Total  common.Supply
	Amount []common.Supply
	Type   map[txscript.ScriptClass]common.Supply
}

func NewUTXOBatch() *UTXOBatch {
	return &UTXOBatch{
		Amount: make([]common.Supply, NumAmountBuckets),
		Type:   make(map[txscript.ScriptClass]common.Supply),
	}
}

func (b *UTXOBatch) Add(value btcutil.Amount, class txscript.ScriptClass) {
	s := common.Supply{Value: value, UTXOCount: 1}
	b.Total.Add(s)
	if bucket := BucketOf(value); bucket != NoBucket {
		b.Amount[bucket].Add(s)
	}
	t := b.Type[class]
	t.Add(s)
	b.Type[class] = t
}

func (b *UTXOBatch) Merge(o *UTXOBatch) {
	b.Total.Add(o.Total)
	for i := range o.Amount {
		b.Amount[i].Add(o.Amount[i])
	}
	for class, s := range o.Type {
		t := b.Type[class]
		t.Add(s)
		b.Type[class] = t
	}
}

// UTXOGroups are the cohorts of unspent outputs.
type UTXOGroups struct {
	All    *State
	Amount []*State
	Type   map[txscript.ScriptClass]*State
	Age    []*State
	Term   []*State
}

func newUTXOGroups() *UTXOGroups {
	g := &UTXOGroups{
		All:  NewState("utxo_all"),
		Type: make(map[txscript.ScriptClass]*State),
	}
	for b := 0; b < NumAmountBuckets; b++ {
		g.Amount = append(g.Amount, NewState("utxo_amount_"+bucketName(b)))
	}
	for _, class := range common.OutputTypes {
		if common.IsUnspendable(class) {
			continue
		}
		g.Type[class] = NewState("utxo_type_" + typeName(class))
	}
	for b := 0; b < NumAgeBands; b++ {
		g.Age = append(g.Age, NewState("utxo_age_"+ageBandName(b)))
	}
	for t := 0; t < NumTerms; t++ {
		g.Term = append(g.Term, NewState("utxo_term_"+termNames[t]))
	}
	return g
}

func (g *UTXOGroups) typeState(class txscript.ScriptClass) *State {
	s, ok := g.Type[class]
	if !ok {
		common.Log.Panicf("no utxo cohort for output type %v", class)
	}
	return s
}

// Receive adds outputs created at price whose age falls in band and term.
func (g *UTXOGroups) Receive(b *UTXOBatch, price common.Dollars, band, term int) {
	g.All.Increment(b.Total, price)
	for i, s := range b.Amount {
		if s.UTXOCount > 0 {
			g.Amount[i].Increment(s, price)
		}
	}
	for class, s := range b.Type {
		g.typeState(class).Increment(s, price)
	}
	g.Age[band].Increment(b.Total, price)
	g.Term[term].Increment(b.Total, price)
}

// Send removes outputs created at price created, spent when the price was
// current.
func (g *UTXOGroups) Send(b *UTXOBatch, created, current common.Dollars, band, term int) {
	g.All.Send(b.Total, created, current)
	for i, s := range b.Amount {
		if s.UTXOCount > 0 {
			g.Amount[i].Send(s, created, current)
		}
	}
	for class, s := range b.Type {
		g.typeState(class).Send(s, created, current)
	}
	g.Age[band].Send(b.Total, created, current)
	g.Term[term].Send(b.Total, created, current)
}

// Shift moves the unspent outputs of one height between age bands and terms.
func (g *UTXOGroups) Shift(supply common.Supply, price common.Dollars, fromBand, toBand, fromTerm, toTerm int) {
	if supply.IsZero() {
		return
	}
	if fromBand != toBand {
		g.Age[fromBand].Decrement(supply, price)
		g.Age[toBand].Increment(supply, price)
	}
	if fromTerm != toTerm {
		g.Term[fromTerm].Decrement(supply, price)
		g.Term[toTerm].Increment(supply, price)
	}
}

func (g *UTXOGroups) states() []*State {
	states := []*State{g.All}
	states = append(states, g.Amount...)
	states = append(states, sortedTypeStates(g.Type)...)
	states = append(states, g.Age...)
	return append(states, g.Term...)
}

// AddressGroups are the cohorts of addresses. An address with a balance is
// counted in All, its type and its amount bucket. An address that received
// only zero valued outputs has no amount bucket. Fully spent addresses are
// only counted in Empty.
type AddressGroups struct {
	All    *State
	Amount []*State
	Type   map[txscript.ScriptClass]*State
	Empty  *State
}

func newAddressGroups() *AddressGroups {
	g := &AddressGroups{
		All:   NewState("addr_all"),
		Type:  make(map[txscript.ScriptClass]*State),
		Empty: NewState("addr_empty"),
	}
	for b := 0; b < NumAmountBuckets; b++ {
		g.Amount = append(g.Amount, NewState("addr_amount_"+bucketName(b)))
	}
	for _, class := range common.AddressTypes {
		g.Type[class] = NewState("addr_type_" + typeName(class))
	}
	return g
}

func (g *AddressGroups) members(key entity.AddressKey, a *entity.LoadedAddressData) []*State {
	if a == nil {
		return nil
	}
	t, ok := g.Type[key.Type]
	if !ok {
		common.Log.Panicf("no address cohort for %s", key)
	}
	members := []*State{g.All, t}
	if bucket := BucketOf(a.Balance()); bucket != NoBucket {
		members = append(members, g.Amount[bucket])
	}
	return members
}

func contains(states []*State, s *State) bool {
	for _, o := range states {
		if o == s {
			return true
		}
	}
	return false
}

// Apply moves the contribution of an address from before to after. A nil
// side means the address is not counted there. Cohorts the address leaves
// are subtracted from first.
func (g *AddressGroups) Apply(key entity.AddressKey, before, after *entity.LoadedAddressData) {
	old := g.members(key, before)
	cur := g.members(key, after)

	for _, s := range old {
		if !contains(cur, s) {
			s.SubtractAddress(before)
		}
	}
	for _, s := range old {
		if contains(cur, s) {
			s.MoveAddress(before, after)
		}
	}
	for _, s := range cur {
		if !contains(old, s) {
			s.AddAddress(after)
		}
	}
}

// Realize books a spend in every cohort the address belonged to before it.
func (g *AddressGroups) Realize(key entity.AddressKey, before *entity.LoadedAddressData, cost, value common.Dollars) {
	for _, s := range g.members(key, before) {
		s.Realize(cost, value)
	}
}

func (g *AddressGroups) states() []*State {
	states := []*State{g.All}
	states = append(states, g.Amount...)
	states = append(states, sortedTypeStates(g.Type)...)
	return append(states, g.Empty)
}

func sortedTypeStates(m map[txscript.ScriptClass]*State) []*State {
	classes := make([]txscript.ScriptClass, 0, len(m))
	for class := range m {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	states := make([]*State, 0, len(classes))
	for _, class := range classes {
		states = append(states, m[class])
	}
	return states
}
