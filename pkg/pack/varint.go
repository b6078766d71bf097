package pack

import (
	"encoding/binary"
	"fmt"

	"github.com/kvasir-vcs/kvasir/pkg/object"
)

const (
	// Signature opens every pack stream.
	Signature = "PACK"

	// Version is the only pack format version this codec speaks.
	Version = 2

	// HeaderSize is the fixed byte length of the stream header.
	HeaderSize = 12

	// maxVarintBytes bounds varint decoding so corrupt input cannot make
	// the decoder walk an arbitrary distance.
	maxVarintBytes = 10
)

// EncodeSize emits n as a little-endian base-128 varint: 7 data bits per
// byte, low-order group first, high bit set on all but the last byte.
func EncodeSize(n uint64) []byte {
	out := make([]byte, 0, maxVarintBytes)
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// DecodeSize reads a varint from the front of buf, returning the value and
// the number of bytes consumed.
func DecodeSize(buf []byte) (uint64, int, error) {
	var (
		value uint64
		shift uint
	)
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, ErrTruncatedVarint
		}
		if i >= maxVarintBytes {
			return 0, 0, ErrOversizedVarint
		}
		b := buf[i]
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}
}

// EncodeHeader builds the fixed 12-byte stream header for count objects.
func EncodeHeader(count uint32) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, Signature)
	binary.BigEndian.PutUint32(buf[4:], Version)
	binary.BigEndian.PutUint32(buf[8:], count)
	return buf
}

// DecodeHeader validates the stream header and returns the object count.
func DecodeHeader(buf []byte) (uint32, error) {
	if len(buf) < HeaderSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(buf))
	}
	if string(buf[:4]) != Signature {
		return 0, fmt.Errorf("%w: bad signature %q", ErrInvalidHeader, buf[:4])
	}
	if v := binary.BigEndian.Uint32(buf[4:8]); v != Version {
		return 0, fmt.Errorf("%w: unsupported version %d", ErrInvalidHeader, v)
	}
	return binary.BigEndian.Uint32(buf[8:12]), nil
}

// encodeEntryHeader frames one entry: the lead byte carries the type code
// in bits 4-6 and the low 4 size bits, continuation bytes carry 7 size
// bits each.
func encodeEntryHeader(t object.Type, size uint64) []byte {
	out := make([]byte, 0, maxVarintBytes)
	b := byte(t)<<4 | byte(size&0x0f)
	size >>= 4
	for size > 0 {
		out = append(out, b|0x80)
		b = byte(size & 0x7f)
		size >>= 7
	}
	return append(out, b)
}

// decodeEntryHeader reads one entry header, returning the type, the
// inflated payload size, and the bytes consumed. The continuation bit
// strictly governs the byte count.
func decodeEntryHeader(buf []byte) (object.Type, uint64, int, error) {
	if len(buf) == 0 {
		return object.TypeInvalid, 0, 0, ErrTruncatedEntry
	}
	b := buf[0]
	t := object.Type(b >> 4 & 0x07)
	size := uint64(b & 0x0f)
	shift := uint(4)
	n := 1
	for b&0x80 != 0 {
		if n >= len(buf) {
			return object.TypeInvalid, 0, 0, ErrTruncatedEntry
		}
		if n >= maxVarintBytes {
			return object.TypeInvalid, 0, 0, ErrOversizedVarint
		}
		b = buf[n]
		size |= uint64(b&0x7f) << shift
		shift += 7
		n++
	}
	return t, size, n, nil
}

// encodeOfsDistance encodes the backward distance of an offset-delta entry
// using the big-endian, offset-by-one varint flavor the pack format uses
// for this one field.
func encodeOfsDistance(distance uint64) []byte {
	buf := []byte{byte(distance & 0x7f)}
	for distance >>= 7; distance > 0; distance >>= 7 {
		distance--
		buf = append([]byte{byte(distance&0x7f) | 0x80}, buf...)
	}
	return buf
}

// decodeOfsDistance reverses encodeOfsDistance, returning the distance and
// the bytes consumed.
func decodeOfsDistance(buf []byte) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, ErrTruncatedEntry
	}
	b := buf[0]
	distance := uint64(b & 0x7f)
	n := 1
	for b&0x80 != 0 {
		if n >= len(buf) {
			return 0, 0, ErrTruncatedEntry
		}
		if n >= maxVarintBytes {
			return 0, 0, ErrOversizedVarint
		}
		b = buf[n]
		distance = (distance+1)<<7 | uint64(b&0x7f)
		n++
	}
	return distance, n, nil
}
