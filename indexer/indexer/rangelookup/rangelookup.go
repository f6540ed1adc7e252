package rangelookup

import "sort"

// CacheSize is the number of recently hit ranges checked before searching.
const CacheSize = 8

type entry struct {
	start  uint64
	end    uint64 // exclusive, 0 with valid == false means unused
	height int
	age    uint64
	valid  bool
}

// Lookup maps a dense output index to the height that created it. Heights are
// positions in a non-decreasing sequence of first indices. Inputs of a block
// mostly spend recent outputs, so a few recently hit ranges are scanned
// before falling back to binary search.
//
// A Lookup is not safe for concurrent use. Callers resolving inputs in
// parallel give each worker its own Fork and keep it across blocks with
// Follow.
type Lookup struct {
	boundaries []uint64
	total      uint64 // first index after the last height
	cache      [CacheSize]entry
	clock      uint64

	parent *Lookup
	gen    uint64 // bumped by Truncate

	hits, misses uint64
}

func New() *Lookup {
	return &Lookup{}
}

// Push appends a height whose outputs start at firstIndex. end is the first
// index of the next height, which bounds the newest range.
func (l *Lookup) Push(firstIndex, end uint64) {
	if n := len(l.boundaries); n > 0 && firstIndex < l.boundaries[n-1] {
		panic("rangelookup: boundaries must not decrease")
	}
	l.boundaries = append(l.boundaries, firstIndex)
	l.total = end
	// The previously newest range was bounded by the old total and is
	// still correct, so the cache survives a push.
}

// Len is the number of heights.
func (l *Lookup) Len() int {
	return len(l.boundaries)
}

// Truncate keeps the first n heights.
func (l *Lookup) Truncate(n int) {
	if n >= len(l.boundaries) {
		return
	}
	// The kept last range now ends where the first dropped height began.
	l.total = l.boundaries[n]
	l.boundaries = l.boundaries[:n]
	l.cache = [CacheSize]entry{}
	l.gen++
}

func (l *Lookup) nextBoundary(i int) uint64 {
	if i+1 < len(l.boundaries) {
		return l.boundaries[i+1]
	}
	return l.total
}

// Height returns the height that created index, false if index is past the
// last pushed height.
func (l *Lookup) Height(index uint64) (int, bool) {
	if len(l.boundaries) == 0 || index >= l.total || index < l.boundaries[0] {
		return 0, false
	}

	l.clock++
	for i := range l.cache {
		e := &l.cache[i]
		if e.valid && index >= e.start && index < e.end {
			e.age = l.clock
			l.hits++
			return e.height, true
		}
	}
	l.misses++

	height := sort.Search(len(l.boundaries), func(i int) bool {
		return l.boundaries[i] > index
	}) - 1
	l.remember(height)
	return height, true
}

func (l *Lookup) remember(height int) {
	victim := 0
	for i := range l.cache {
		if !l.cache[i].valid {
			victim = i
			break
		}
		if l.cache[i].age < l.cache[victim].age {
			victim = i
		}
	}
	l.cache[victim] = entry{
		start:  l.boundaries[height],
		end:    l.nextBoundary(height),
		height: height,
		age:    l.clock,
		valid:  true,
	}
}

// Fork returns a lookup sharing the boundaries with an empty cache. The
// parent must not be pushed or truncated while forks are in use.
func (l *Lookup) Fork() *Lookup {
	return &Lookup{boundaries: l.boundaries, total: l.total, parent: l, gen: l.gen}
}

// Follow points a fork at the current boundaries of parent. Cached ranges
// survive while parent has only been pushed since the fork last followed it.
func (l *Lookup) Follow(parent *Lookup) {
	if l.parent != parent || l.gen != parent.gen || len(parent.boundaries) < len(l.boundaries) {
		l.cache = [CacheSize]entry{}
	}
	l.parent = parent
	l.gen = parent.gen
	l.boundaries = parent.boundaries
	l.total = parent.total
}

// Stats returns cache hits and misses since creation.
func (l *Lookup) Stats() (hits, misses uint64) {
	return l.hits, l.misses
}
