package database

import "fmt"

// Stamp marks how far a column has been durably written. A column stamped S
// holds the effects of every block up to height S-1. Zero means nothing has
// been written.
type Stamp uint64

// StampOf returns the stamp written after processing height.
func StampOf(height int) Stamp {
	return Stamp(height + 1)
}

// Height is the last height covered by the stamp, -1 for the zero stamp.
func (s Stamp) Height() int {
	return int(s) - 1
}

func (s Stamp) String() string {
	return fmt.Sprintf("stamp(%d)", uint64(s))
}

// ReadPolicy selects whether reads observe buffered writes.
type ReadPolicy int

const (
	// PushedOrRead returns a buffered value when present, else the durable
	// one.
	PushedOrRead ReadPolicy = iota

	// SingleShot reads the durable layer only.
	SingleShot
)
