package blockcache

import "fmt"

type sourceKind uint8

const (
	sourceNew sourceKind = iota
	sourceLoaded
	sourceEmpty
)

// Source records where a cached address came from: created in this interval,
// or read from the loaded or empty partition at a given index.
type Source struct {
	kind  sourceKind
	index uint64
}

func NewSource() Source {
	return Source{kind: sourceNew}
}

func FromLoaded(index uint64) Source {
	return Source{kind: sourceLoaded, index: index}
}

func FromEmpty(index uint64) Source {
	return Source{kind: sourceEmpty, index: index}
}

func (s Source) IsNew() bool {
	return s.kind == sourceNew
}

func (s Source) IsFromLoaded() bool {
	return s.kind == sourceLoaded
}

func (s Source) IsFromEmpty() bool {
	return s.kind == sourceEmpty
}

// Index is the durable slot the value was read from. It is false for new
// addresses.
func (s Source) Index() (uint64, bool) {
	return s.index, s.kind != sourceNew
}

func (s Source) String() string {
	switch s.kind {
	case sourceLoaded:
		return fmt.Sprintf("loaded/%d", s.index)
	case sourceEmpty:
		return fmt.Sprintf("empty/%d", s.index)
	}
	return "new"
}

// WithSource is a cached value tagged with its Source.
type WithSource[T any] struct {
	Value  T
	Source Source
}

// TrackingStatus tells the cohort layer whether an address receiving value
// is already counted in an amount cohort.
type TrackingStatus uint8

const (
	// Tracked addresses already hold a balance and are counted.
	Tracked TrackingStatus = iota

	// New addresses have never received anything.
	New

	// WasEmpty addresses had spent everything and receive again.
	WasEmpty
)

func (s TrackingStatus) String() string {
	switch s {
	case New:
		return "new"
	case WasEmpty:
		return "was-empty"
	}
	return "tracked"
}

// Counted reports whether the address is already part of a cohort.
func (s TrackingStatus) Counted() bool {
	return s == Tracked
}

func trackingStatus(src Source, utxoCount uint32) TrackingStatus {
	switch {
	case utxoCount > 0:
		return Tracked
	case src.IsNew():
		return New
	default:
		return WasEmpty
	}
}
