package storage

import "errors"

var (
	// ErrIo indicates a short or failed page read/write.
	ErrIo = errors.New("storage: i/o error")

	// ErrCorruptHeader indicates the file header violates the format.
	ErrCorruptHeader = errors.New("storage: corrupt file header")

	// ErrCorruptTree indicates an inconsistent btree page or child pointer.
	ErrCorruptTree = errors.New("storage: corrupt btree")

	// ErrMalformedRecord indicates a record whose declared lengths exceed its payload.
	ErrMalformedRecord = errors.New("storage: malformed record")

	// ErrKeyNotFound indicates a seek miss. Cursor callers should prefer
	// the boolean result of Seek over matching on this error.
	ErrKeyNotFound = errors.New("storage: key not found")
)
