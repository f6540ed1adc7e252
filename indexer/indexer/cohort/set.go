package cohort

import "sort"

// Set holds every cohort of the engine. Cohorts are fixed at construction.
type Set struct {
	UTXO    *UTXOGroups
	Address *AddressGroups

	byName     map[string]*State
	composites map[string]func() *State
}

func NewSet() *Set {
	s := &Set{
		UTXO:    newUTXOGroups(),
		Address: newAddressGroups(),
	}
	s.index()
	return s
}

func (s *Set) index() {
	s.byName = make(map[string]*State)
	for _, st := range s.States() {
		s.byName[st.Name] = st
	}

	s.composites = make(map[string]func() *State)
	for b := 1; b < NumAmountBuckets; b++ {
		label := amountLabels[b]
		s.composites["utxo_amount_above_"+label] = func() *State {
			return merged("utxo_amount_above_"+label, s.UTXO.Amount[b:])
		}
		s.composites["utxo_amount_under_"+label] = func() *State {
			return merged("utxo_amount_under_"+label, s.UTXO.Amount[:b])
		}
		s.composites["addr_amount_above_"+label] = func() *State {
			return merged("addr_amount_above_"+label, s.Address.Amount[b:])
		}
		s.composites["addr_amount_under_"+label] = func() *State {
			return merged("addr_amount_under_"+label, s.Address.Amount[:b])
		}
	}
	for b := 1; b < NumAgeBands; b++ {
		label := ageLabels[b]
		s.composites["utxo_age_above_"+label] = func() *State {
			return merged("utxo_age_above_"+label, s.UTXO.Age[b:])
		}
		s.composites["utxo_age_under_"+label] = func() *State {
			return merged("utxo_age_under_"+label, s.UTXO.Age[:b])
		}
	}
}

func merged(name string, states []*State) *State {
	m := NewState(name)
	for _, st := range states {
		m.Merge(st)
	}
	return m
}

// States returns every stored cohort in a stable order.
func (s *Set) States() []*State {
	return append(s.UTXO.states(), s.Address.states()...)
}

// Names lists stored and composite cohorts, sorted.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName)+len(s.composites))
	for name := range s.byName {
		names = append(names, name)
	}
	for name := range s.composites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns a stored cohort, or a composite one computed from the stored
// cohorts it spans.
func (s *Set) Get(name string) (*State, bool) {
	if st, ok := s.byName[name]; ok {
		return st, true
	}
	if fn, ok := s.composites[name]; ok {
		return fn(), true
	}
	return nil, false
}

// Clone deep copies every state.
func (s *Set) Clone() *Set {
	c := NewSet()
	dst := c.States()
	for i, st := range s.States() {
		*dst[i] = *st.Clone()
	}
	return c
}

// Reset zeroes every state.
func (s *Set) Reset() {
	for _, st := range s.States() {
		*st = *NewState(st.Name)
	}
}
