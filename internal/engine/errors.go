package engine

import "errors"

var (
	// ErrNotInitialized is returned when an operation runs before
	// Initialize opened a source file.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrNoHeaders is returned when ingestion or search runs before
	// ParseHeaders.
	ErrNoHeaders = errors.New("headers not parsed")

	// ErrTooFewColumns is returned when the header line has fewer than
	// two columns.
	ErrTooFewColumns = errors.New("header must have at least two columns")

	// ErrIndexUnavailable is returned when Search cannot load a
	// previously persisted index snapshot. Search never runs against the
	// live in-memory index; it only ever sees committed snapshots.
	ErrIndexUnavailable = errors.New("index unavailable")
)
