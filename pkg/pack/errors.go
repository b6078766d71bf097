package pack

import "errors"

var (
	// ErrTruncatedVarint indicates a size varint ended before its
	// terminating byte.
	ErrTruncatedVarint = errors.New("truncated size varint")

	// ErrOversizedVarint indicates a varint ran past the 10-byte ceiling
	// without terminating, which only corrupt or adversarial input does.
	ErrOversizedVarint = errors.New("size varint exceeds 10 bytes")

	// ErrInvalidHeader indicates a missing PACK signature, an unsupported
	// version, or a stream too short to hold the fixed header.
	ErrInvalidHeader = errors.New("invalid pack header")

	// ErrChecksumMismatch indicates the trailer hash does not match the
	// stream contents.
	ErrChecksumMismatch = errors.New("pack checksum mismatch")

	// ErrDeltaChainTooDeep indicates delta resolution exceeded the
	// configured depth bound.
	ErrDeltaChainTooDeep = errors.New("delta chain too deep")

	// ErrBaseNotFound indicates a ref-delta named a base object that the
	// supplied object source could not provide.
	ErrBaseNotFound = errors.New("delta base not found")

	// ErrTruncatedEntry indicates an entry's payload or header ran past
	// the end of the stream.
	ErrTruncatedEntry = errors.New("truncated pack entry")
)
