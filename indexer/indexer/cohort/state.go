package cohort

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/sat20-labs/cohortd/indexer/common"
	"github.com/sat20-labs/cohortd/indexer/indexer/entity"
)

// Realized accumulates cost basis and the value realized by spends.
type Realized struct {
	Cap            common.Dollars `json:"cap"`
	Profit         common.Dollars `json:"profit"`
	Loss           common.Dollars `json:"loss"`
	ValueCreated   common.Dollars `json:"valueCreated"`
	ValueDestroyed common.Dollars `json:"valueDestroyed"`
}

// State is the running aggregate of one cohort. Address cohorts count
// addresses; UTXO cohorts count outputs, so there EntityCount equals
// Supply.UTXOCount.
type State struct {
	Name         string
	EntityCount  uint64
	Supply       common.Supply
	Realized     Realized
	Distribution *Distribution
}

func NewState(name string) *State {
	return &State{Name: name, Distribution: NewDistribution()}
}

func (s *State) Clone() *State {
	c := *s
	c.Distribution = s.Distribution.Clone()
	return &c
}

// Merge adds o into s. Composite cohorts are built this way.
func (s *State) Merge(o *State) {
	s.EntityCount += o.EntityCount
	s.Supply.Add(o.Supply)
	s.Realized.Cap += o.Realized.Cap
	s.Realized.Profit += o.Realized.Profit
	s.Realized.Loss += o.Realized.Loss
	s.Realized.ValueCreated += o.Realized.ValueCreated
	s.Realized.ValueDestroyed += o.Realized.ValueDestroyed
	s.Distribution.Merge(o.Distribution)
}

func (s *State) underflow(what string, entities uint64, supply common.Supply, price common.Cents, context interface{}) {
	common.Log.Panicf("cohort %s underflow on %s: subtracting %d entities and %v at %v\nstate: %s\nentity: %s",
		s.Name, what, entities, spew.Sdump(supply), price,
		spew.Sdump(State{Name: s.Name, EntityCount: s.EntityCount, Supply: s.Supply, Realized: s.Realized}),
		spew.Sdump(context))
}

func (s *State) canSubtract(entities uint64, supply common.Supply, price common.Cents) bool {
	return s.EntityCount >= entities &&
		s.Supply.Value >= supply.Value &&
		s.Supply.UTXOCount >= supply.UTXOCount &&
		s.Distribution.CanRemove(price, supply.Value)
}

func (s *State) subtractCap(c common.Dollars) {
	s.Realized.Cap -= c
	// Float rounding can leave a tiny negative residue.
	if s.Realized.Cap < 0 || s.EntityCount == 0 {
		s.Realized.Cap = 0
	}
}

// Increment adds outputs acquired at price. UTXO cohorts only.
func (s *State) Increment(supply common.Supply, price common.Dollars) {
	s.EntityCount += supply.UTXOCount
	s.Supply.Add(supply)
	s.Realized.Cap += price.Mul(supply.Value)
	s.Distribution.Add(price.Cents(), supply.Value)
}

// Decrement removes outputs acquired at price. UTXO cohorts only.
func (s *State) Decrement(supply common.Supply, price common.Dollars) {
	if !s.canSubtract(supply.UTXOCount, supply, price.Cents()) {
		s.underflow("decrement", supply.UTXOCount, supply, price.Cents(), supply)
	}
	s.EntityCount -= supply.UTXOCount
	s.Supply.Sub(supply)
	s.Distribution.Remove(price.Cents(), supply.Value)
	s.subtractCap(price.Mul(supply.Value))
}

// Send removes spent outputs acquired at created and realizes their value at
// current.
func (s *State) Send(supply common.Supply, created, current common.Dollars) {
	s.Decrement(supply, created)
	s.Realize(created.Mul(supply.Value), current.Mul(supply.Value))
}

// Realize books a spend whose cost basis was cost and whose value at the
// time of the spend was value.
func (s *State) Realize(cost, value common.Dollars) {
	s.Realized.ValueCreated += value
	s.Realized.ValueDestroyed += cost
	if value > cost {
		s.Realized.Profit += value - cost
	} else {
		s.Realized.Loss += cost - value
	}
}

func addressSupply(a *entity.LoadedAddressData) common.Supply {
	return common.Supply{Value: a.Balance(), UTXOCount: uint64(a.UTXOCount)}
}

// AddAddress counts an address and its balance.
func (s *State) AddAddress(a *entity.LoadedAddressData) {
	s.EntityCount++
	s.addAddressValue(a)
}

func (s *State) addAddressValue(a *entity.LoadedAddressData) {
	s.Supply.Add(addressSupply(a))
	s.Realized.Cap += a.RealizedCap
	s.Distribution.Add(a.AvgPrice().Cents(), a.Balance())
}

// SubtractAddress removes a counted address.
func (s *State) SubtractAddress(a *entity.LoadedAddressData) {
	s.checkAddress(1, a)
	s.EntityCount--
	s.subtractAddressValue(a)
}

func (s *State) checkAddress(entities uint64, a *entity.LoadedAddressData) {
	if !s.canSubtract(max(entities, 1), addressSupply(a), a.AvgPrice().Cents()) {
		s.underflow("address", entities, addressSupply(a), a.AvgPrice().Cents(), a)
	}
}

func (s *State) subtractAddressValue(a *entity.LoadedAddressData) {
	s.Supply.Sub(addressSupply(a))
	s.Distribution.Remove(a.AvgPrice().Cents(), a.Balance())
	s.subtractCap(a.RealizedCap)
}

// MoveAddress replaces the contribution of a counted address that stays in
// the cohort.
func (s *State) MoveAddress(before, after *entity.LoadedAddressData) {
	s.checkAddress(0, before)
	s.subtractAddressValue(before)
	s.addAddressValue(after)
}

// AddEntity and RemoveEntity count entities that carry no value, such as
// empty addresses.
func (s *State) AddEntity() {
	s.EntityCount++
}

func (s *State) RemoveEntity(context interface{}) {
	if s.EntityCount == 0 {
		s.underflow("count", 1, common.Supply{}, 0, context)
	}
	s.EntityCount--
}

// Price returns the realized price, the average acquisition price of the
// supply.
func (s *State) Price() common.Dollars {
	return s.Realized.Cap.Div(s.Supply.Value)
}
