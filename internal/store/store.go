// Package store persists appointments. Two implementations share the same
// semantics: GormStore backed by postgres and MemoryStore for tests and local
// runs without a database.
package store

import "errors"

var (
	// ErrNotFound is returned when no appointment has the requested id
	ErrNotFound = errors.New("appointment not found")
	// ErrConflict is returned when an active appointment already holds the slot
	ErrConflict = errors.New("slot already held by an active appointment")
	// ErrStale is returned when a conditional update found the record in a
	// different state than expected
	ErrStale = errors.New("appointment changed concurrently")
)
