package domain

import "errors"

var (
	// ErrInvalidCandidate marks a candidate missing its (source, key) identity.
	// Such items are skipped per item, never fatal to a cycle.
	ErrInvalidCandidate = errors.New("candidate missing source or key")

	// ErrStore marks storage-layer failures. Fatal to the current operation.
	ErrStore = errors.New("store failure")

	// ErrTransport marks delivery failures on both the primary and fallback
	// paths. Records stay pending and are re-selected next cycle.
	ErrTransport = errors.New("transport failure")
)
