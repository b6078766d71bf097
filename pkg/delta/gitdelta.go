package delta

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrSourceSizeMismatch indicates the delta header's source size does
	// not match the supplied base object.
	ErrSourceSizeMismatch = errors.New("delta source size mismatch")

	// ErrTargetSizeMismatch indicates the applied instructions produced a
	// different byte count than the header promised.
	ErrTargetSizeMismatch = errors.New("delta target size mismatch")

	// ErrCopyOutOfBounds indicates a copy instruction referenced bytes
	// past the end of the base object.
	ErrCopyOutOfBounds = errors.New("delta copy out of bounds")

	// ErrInvalidInstruction indicates a 0x00 instruction byte, which is
	// reserved and never legal.
	ErrInvalidInstruction = errors.New("invalid delta instruction")

	// ErrTruncatedDelta indicates the delta stream ended mid-instruction.
	ErrTruncatedDelta = errors.New("truncated delta stream")

	// ErrOversizedVarint indicates a header varint ran past the 10-byte
	// ceiling without terminating, which only corrupt input does.
	ErrOversizedVarint = errors.New("delta size varint exceeds 10 bytes")
)

const (
	// matchMin is the shortest copy worth emitting; anything shorter costs
	// more in instruction bytes than it saves.
	matchMin = 4

	// copyMax is the longest single copy instruction. A size field of zero
	// encodes exactly this length.
	copyMax = 0x10000

	// insertMax is the capacity of an insert instruction's 7-bit size field.
	insertMax = 127

	// bucketCap limits how many base offsets one window hash keeps. Highly
	// repetitive inputs would otherwise make match scanning quadratic;
	// truncating a bucket only costs compression ratio, never correctness.
	bucketCap = 64

	// preallocMax caps the output buffer reserved up front from the header's
	// target size, which is unverified input until the instructions run.
	preallocMax = 4 << 20
)

// GitDeltaEngine implements Engine with the pack-native copy/insert
// instruction format.
type GitDeltaEngine struct{}

// NewGitDeltaEngine creates the pack-native delta engine.
func NewGitDeltaEngine() *GitDeltaEngine {
	return &GitDeltaEngine{}
}

// Name returns the name of the engine.
func (e *GitDeltaEngine) Name() string {
	return "gitdelta"
}

// Diff computes a copy/insert delta transforming base into target.
func (e *GitDeltaEngine) Diff(base, target []byte) ([]byte, error) {
	return CreateDelta(base, target), nil
}

// Patch applies a copy/insert delta to base.
func (e *GitDeltaEngine) Patch(base, delta []byte) ([]byte, error) {
	return ApplyDelta(base, delta)
}

// CreateDelta builds a delta stream that ApplyDelta turns back into target
// given base. The stream is two size varints followed by copy/insert
// instructions; an empty target yields a header-only stream.
func CreateDelta(base, target []byte) []byte {
	var buf bytes.Buffer
	writeSizeVarint(&buf, uint64(len(base)))
	writeSizeVarint(&buf, uint64(len(target)))

	index := indexWindows(base)

	var pending []byte
	flush := func() {
		for len(pending) > 0 {
			n := len(pending)
			if n > insertMax {
				n = insertMax
			}
			buf.WriteByte(byte(n))
			buf.Write(pending[:n])
			pending = pending[n:]
		}
	}

	pos := 0
	for pos < len(target) {
		offset, length := longestMatch(base, target, pos, index)
		if length < matchMin {
			pending = append(pending, target[pos])
			if len(pending) == insertMax {
				flush()
			}
			pos++
			continue
		}

		flush()
		pos += length
		for length > 0 {
			n := length
			if n > copyMax {
				n = copyMax
			}
			writeCopy(&buf, uint32(offset), uint32(n))
			offset += n
			length -= n
		}
	}
	flush()

	return buf.Bytes()
}

// indexWindows maps every 4-byte window hash of base to the offsets where
// it occurs. Collisions are fine; longestMatch byte-verifies before use.
func indexWindows(base []byte) map[uint32][]int {
	if len(base) < matchMin {
		return nil
	}
	index := make(map[uint32][]int, len(base)-matchMin+1)
	for i := 0; i+matchMin <= len(base); i++ {
		h := hashWindow(base[i : i+matchMin])
		if len(index[h]) < bucketCap {
			index[h] = append(index[h], i)
		}
	}
	return index
}

// longestMatch finds the longest byte-verified match in base for the
// target suffix starting at pos. Returns length 0 when nothing of at least
// matchMin bytes exists.
func longestMatch(base, target []byte, pos int, index map[uint32][]int) (offset, length int) {
	if pos+matchMin > len(target) || index == nil {
		return 0, 0
	}
	candidates := index[hashWindow(target[pos:pos+matchMin])]
	for _, start := range candidates {
		if !bytes.Equal(base[start:start+matchMin], target[pos:pos+matchMin]) {
			continue
		}
		n := matchMin
		for start+n < len(base) && pos+n < len(target) && base[start+n] == target[pos+n] {
			n++
		}
		if n > length {
			offset, length = start, n
			if pos+length == len(target) {
				break
			}
		}
	}
	return offset, length
}

// writeCopy emits one copy instruction. Bits 0-3 of the marker flag which
// little-endian offset bytes follow, bits 4-6 which size bytes; a size of
// copyMax is expressed by omitting all size bytes.
func writeCopy(buf *bytes.Buffer, offset, size uint32) {
	cmd := byte(0x80)
	var args [7]byte
	n := 0

	for i := uint(0); i < 4; i++ {
		if b := byte(offset >> (8 * i)); b != 0 {
			cmd |= 1 << i
			args[n] = b
			n++
		}
	}
	if size != copyMax {
		for i := uint(0); i < 3; i++ {
			if b := byte(size >> (8 * i)); b != 0 {
				cmd |= 0x10 << i
				args[n] = b
				n++
			}
		}
	}

	buf.WriteByte(cmd)
	buf.Write(args[:n])
}

// ApplyDelta reconstructs the target object from base and a delta stream.
// It never mutates base; on any error no partial output is returned.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	sourceSize, n, err := readSizeVarint(delta)
	if err != nil {
		return nil, fmt.Errorf("read source size: %w", err)
	}
	delta = delta[n:]

	targetSize, n, err := readSizeVarint(delta)
	if err != nil {
		return nil, fmt.Errorf("read target size: %w", err)
	}
	delta = delta[n:]

	if sourceSize != uint64(len(base)) {
		return nil, fmt.Errorf("%w: header says %d, base is %d bytes",
			ErrSourceSizeMismatch, sourceSize, len(base))
	}

	prealloc := targetSize
	if prealloc > preallocMax {
		prealloc = preallocMax
	}
	out := make([]byte, 0, prealloc)
	for len(delta) > 0 {
		cmd := delta[0]
		delta = delta[1:]

		switch {
		case cmd&0x80 != 0:
			var offset, size uint32
			for i := uint(0); i < 4; i++ {
				if cmd&(1<<i) == 0 {
					continue
				}
				if len(delta) == 0 {
					return nil, fmt.Errorf("copy offset: %w", ErrTruncatedDelta)
				}
				offset |= uint32(delta[0]) << (8 * i)
				delta = delta[1:]
			}
			sized := false
			for i := uint(0); i < 3; i++ {
				if cmd&(0x10<<i) == 0 {
					continue
				}
				if len(delta) == 0 {
					return nil, fmt.Errorf("copy size: %w", ErrTruncatedDelta)
				}
				size |= uint32(delta[0]) << (8 * i)
				sized = true
				delta = delta[1:]
			}
			if !sized || size == 0 {
				size = copyMax
			}
			if uint64(offset)+uint64(size) > uint64(len(base)) {
				return nil, fmt.Errorf("%w: offset %d + size %d > base length %d",
					ErrCopyOutOfBounds, offset, size, len(base))
			}
			out = append(out, base[offset:offset+size]...)

		case cmd == 0:
			return nil, ErrInvalidInstruction

		default:
			n := int(cmd)
			if len(delta) < n {
				return nil, fmt.Errorf("insert of %d bytes: %w", n, ErrTruncatedDelta)
			}
			out = append(out, delta[:n]...)
			delta = delta[n:]
		}
	}

	if uint64(len(out)) != targetSize {
		return nil, fmt.Errorf("%w: produced %d bytes, header says %d",
			ErrTargetSizeMismatch, len(out), targetSize)
	}
	return out, nil
}

// writeSizeVarint emits the little-endian base-128 varint used by the
// delta header.
func writeSizeVarint(buf *bytes.Buffer, n uint64) {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

// readSizeVarint decodes a delta-header varint from the front of buf.
func readSizeVarint(buf []byte) (uint64, int, error) {
	var (
		value uint64
		shift uint
	)
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, ErrTruncatedDelta
		}
		if i >= 10 {
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

// hashWindow is an FNV-1a style mix over one 4-byte window.
func hashWindow(w []byte) uint32 {
	h := uint32(2166136261)
	for _, c := range w {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}
