package database

import "errors"

var (
	// ErrNotFound is returned when a key is absent from a column.
	ErrNotFound = errors.New("key not found")

	// ErrRollbackUnavailable is returned when the undo history of a column
	// no longer reaches the requested stamp.
	ErrRollbackUnavailable = errors.New("rollback target is older than the kept undo history")

	// ErrStampNotIncreasing is returned by Flush when the stamp does not
	// advance past the column's current stamp.
	ErrStampNotIncreasing = errors.New("flush stamp must be greater than the current stamp")

	// ErrVersionMismatch is returned when a column is opened twice with
	// different versions in one process.
	ErrVersionMismatch = errors.New("column version mismatch")

	// ErrDbUnknownType is returned when there is no driver registered for
	// the requested database type.
	ErrDbUnknownType = errors.New("unknown database type")

	// ErrDbTypeRegistered is returned when two drivers attempt to register
	// with the same database type.
	ErrDbTypeRegistered = errors.New("database type already registered")
)
