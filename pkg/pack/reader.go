package pack

import (
	"bytes"
	"crypto/sha1"
	"fmt"

	"github.com/kvasir-vcs/kvasir/pkg/delta"
	"github.com/kvasir-vcs/kvasir/pkg/object"
)

// ObjectSource supplies base objects by hash. Ref-delta entries whose base
// is not part of the stream are resolved through it.
type ObjectSource interface {
	Get(hash object.Hash) (object.Object, bool, error)
}

// ObjectSink receives fully reconstructed objects, one call per object.
type ObjectSink interface {
	Put(t object.Type, data []byte) (object.Hash, error)
}

// ParserOptions tunes pack parsing.
type ParserOptions struct {
	// MaxDeltaDepth bounds delta chain resolution; matches the assembly
	// bound. Default 50.
	MaxDeltaDepth int

	// Compressor inflates entry payloads. Default ZlibCompressor.
	Compressor Compressor

	// Source resolves ref-delta bases missing from the stream. Optional;
	// without it such entries fail with ErrBaseNotFound.
	Source ObjectSource
}

// Parser decodes pack streams. Parsing is all-or-nothing: any failure
// discards every partially decoded object.
type Parser struct {
	opts ParserOptions
}

// NewParser creates a Parser, applying defaults for unset options.
func NewParser(opts ParserOptions) *Parser {
	if opts.MaxDeltaDepth <= 0 {
		opts.MaxDeltaDepth = 50
	}
	if opts.Compressor == nil {
		opts.Compressor = NewZlibCompressor()
	}
	return &Parser{opts: opts}
}

// ParseResult holds a fully decoded pack.
type ParseResult struct {
	// Objects are the reconstructed objects in entry order.
	Objects []object.Object

	// Checksum is the verified trailer hash.
	Checksum object.Hash
}

// Materialize hands every object to the sink in entry order.
func (r *ParseResult) Materialize(sink ObjectSink) error {
	for _, obj := range r.Objects {
		if _, err := sink.Put(obj.Type, obj.Data); err != nil {
			return fmt.Errorf("materialize %s: %w", obj.Hash, err)
		}
	}
	return nil
}

// rawEntry is one decoded but not yet delta-resolved entry.
type rawEntry struct {
	typ      object.Type
	payload  []byte
	offset   int64
	baseOff  int64       // ofs-delta target, valid when typ == TypeOfsDelta
	baseHash object.Hash // ref-delta target, valid when typ == TypeRefDelta
}

// resolvedEntry is a reconstructed object plus its chain depth, kept so
// later deltas against it extend the depth accounting.
type resolvedEntry struct {
	obj   object.Object
	depth int
}

// Verify recomputes the trailer hash over the stream and compares. It does
// not decode entries.
func Verify(data []byte) error {
	if len(data) < HeaderSize+object.HashSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidHeader, len(data))
	}
	if _, err := DecodeHeader(data); err != nil {
		return err
	}
	body := data[:len(data)-object.HashSize]
	trailer := data[len(data)-object.HashSize:]
	sum := sha1.Sum(body)
	if !bytes.Equal(sum[:], trailer) {
		return fmt.Errorf("%w: computed %x, trailer %x", ErrChecksumMismatch, sum, trailer)
	}
	return nil
}

// Parse decodes a complete pack stream, verifying the trailer and
// resolving every delta chain.
func (p *Parser) Parse(data []byte) (*ParseResult, error) {
	if err := Verify(data); err != nil {
		return nil, err
	}

	count, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	body := data[:len(data)-object.HashSize]
	var trailer object.Hash
	copy(trailer[:], data[len(data)-object.HashSize:])

	entries, err := p.decodeEntries(body, count)
	if err != nil {
		return nil, err
	}

	objects, err := p.resolveEntries(entries)
	if err != nil {
		return nil, err
	}

	return &ParseResult{Objects: objects, Checksum: trailer}, nil
}

// decodeEntries walks exactly count framed entries and inflates each
// payload, leaving delta resolution to a later pass.
func (p *Parser) decodeEntries(body []byte, count uint32) ([]rawEntry, error) {
	entries := make([]rawEntry, 0, count)
	offset := int64(HeaderSize)

	for i := uint32(0); i < count; i++ {
		typ, size, n, err := decodeEntryHeader(body[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d at offset %d: %w", i, offset, err)
		}
		pos := offset + int64(n)

		entry := rawEntry{typ: typ, offset: offset}
		switch {
		case typ == object.TypeOfsDelta:
			distance, m, err := decodeOfsDistance(body[pos:])
			if err != nil {
				return nil, fmt.Errorf("entry %d at offset %d: ofs-delta distance: %w", i, offset, err)
			}
			pos += int64(m)
			entry.baseOff = offset - int64(distance)
			if entry.baseOff < HeaderSize {
				return nil, fmt.Errorf("entry %d at offset %d: ofs-delta distance %d reaches before first entry", i, offset, distance)
			}
		case typ == object.TypeRefDelta:
			if int(pos)+object.HashSize > len(body) {
				return nil, fmt.Errorf("entry %d at offset %d: ref-delta base hash: %w", i, offset, ErrTruncatedEntry)
			}
			copy(entry.baseHash[:], body[pos:pos+object.HashSize])
			pos += object.HashSize
		case !typ.Concrete():
			return nil, fmt.Errorf("entry %d at offset %d: invalid type code %d", i, offset, typ)
		}

		if int(pos) >= len(body) {
			return nil, fmt.Errorf("entry %d at offset %d: %w", i, offset, ErrTruncatedEntry)
		}
		payload, consumed, err := p.opts.Compressor.InflateFrom(body[pos:])
		if err != nil {
			return nil, fmt.Errorf("entry %d at offset %d: %w", i, offset, err)
		}
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("entry %d at offset %d: header size %d, inflated %d bytes", i, offset, size, len(payload))
		}
		entry.payload = payload
		entries = append(entries, entry)
		offset = pos + int64(consumed)
	}

	if int(offset) != len(body) {
		return nil, fmt.Errorf("%d undecoded bytes after last entry", len(body)-int(offset))
	}
	return entries, nil
}

// resolveEntries turns raw entries into objects. Deltas are resolved with
// an explicit worklist instead of call-stack recursion: each pass applies
// every entry whose base is already available, and a pass without progress
// means a base is genuinely missing. Resolved bases are cached so shared
// bases decode once.
func (p *Parser) resolveEntries(entries []rawEntry) ([]object.Object, error) {
	byOffset := make(map[int64]resolvedEntry, len(entries))
	byHash := make(map[object.Hash]resolvedEntry, len(entries))
	objects := make([]object.Object, len(entries))

	resolve := func(i int, data []byte, typ object.Type, depth int) {
		obj := object.New(typ, data)
		re := resolvedEntry{obj: obj, depth: depth}
		byOffset[entries[i].offset] = re
		byHash[obj.Hash] = re
		objects[i] = obj
	}

	pending := make([]int, 0, len(entries))
	for i, e := range entries {
		if e.typ.IsDelta() {
			pending = append(pending, i)
			continue
		}
		resolve(i, e.payload, e.typ, 0)
	}

	for len(pending) > 0 {
		progress := false
		remaining := pending[:0]

		for _, i := range pending {
			e := entries[i]
			base, ok, err := p.lookupBase(e, byOffset, byHash)
			if err != nil {
				return nil, fmt.Errorf("entry at offset %d: %w", e.offset, err)
			}
			if !ok {
				remaining = append(remaining, i)
				continue
			}

			if base.depth+1 > p.opts.MaxDeltaDepth {
				return nil, fmt.Errorf("entry at offset %d: %w (depth %d, limit %d)",
					e.offset, ErrDeltaChainTooDeep, base.depth+1, p.opts.MaxDeltaDepth)
			}

			data, err := delta.ApplyDelta(base.obj.Data, e.payload)
			if err != nil {
				return nil, fmt.Errorf("entry at offset %d (base %s): %w", e.offset, base.obj.Hash, err)
			}
			resolve(i, data, base.obj.Type, base.depth+1)
			progress = true
		}

		pending = remaining
		if !progress {
			e := entries[pending[0]]
			if e.typ == object.TypeRefDelta {
				return nil, fmt.Errorf("entry at offset %d: %w: %s", e.offset, ErrBaseNotFound, e.baseHash)
			}
			return nil, fmt.Errorf("entry at offset %d: %w: no entry at offset %d", e.offset, ErrBaseNotFound, e.baseOff)
		}
	}

	return objects, nil
}

// lookupBase finds the base for a delta entry: in-stream by offset or
// hash first, then the external source for ref-deltas.
func (p *Parser) lookupBase(e rawEntry, byOffset map[int64]resolvedEntry, byHash map[object.Hash]resolvedEntry) (resolvedEntry, bool, error) {
	if e.typ == object.TypeOfsDelta {
		re, ok := byOffset[e.baseOff]
		if !ok {
			// Ofs-deltas always point backward; a missing base means the
			// referenced entry is itself an unresolved delta.
			return resolvedEntry{}, false, nil
		}
		return re, true, nil
	}

	if re, ok := byHash[e.baseHash]; ok {
		return re, true, nil
	}
	if p.opts.Source == nil {
		return resolvedEntry{}, false, nil
	}
	obj, ok, err := p.opts.Source.Get(e.baseHash)
	if err != nil {
		return resolvedEntry{}, false, fmt.Errorf("fetch base %s: %w", e.baseHash, err)
	}
	if !ok {
		return resolvedEntry{}, false, nil
	}
	return resolvedEntry{obj: obj, depth: 0}, true, nil
}
