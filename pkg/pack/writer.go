package pack

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"sort"

	"github.com/kvasir-vcs/kvasir/pkg/delta"
	"github.com/kvasir-vcs/kvasir/pkg/object"
)

// Options tunes pack assembly. The zero value is usable; NewWriter fills
// in the defaults below.
type Options struct {
	// WindowSize is how many recently emitted objects of the same type
	// are scored as delta bases for each candidate. Default 10.
	WindowSize int

	// MaxDeltaDepth caps delta chain length so reconstruction cost stays
	// bounded. Default 50.
	MaxDeltaDepth int

	// MinDeltaSize is the smallest object worth deltifying; below it the
	// entry and instruction overhead exceeds any savings. Default 50.
	MinDeltaSize int

	// SimilarityThreshold is the minimum estimator score a candidate base
	// must reach. Default 0.3.
	SimilarityThreshold float64

	// Compressor deflates entry payloads. Default ZlibCompressor.
	Compressor Compressor
}

// Result is the finished pack artifact.
type Result struct {
	// Data is the complete pack stream, trailer included.
	Data []byte

	// Checksum is the 20-byte trailer hash over everything before it.
	Checksum object.Hash

	// Objects lists the packed object hashes in entry order.
	Objects []object.Hash

	// FullCount and DeltaCount break down how entries were encoded.
	FullCount  int
	DeltaCount int
}

// Writer assembles pack streams. A Writer is stateless across Build calls;
// independent builds may run concurrently on separate Writers or the same
// one.
type Writer struct {
	opts Options
}

// NewWriter creates a Writer, applying defaults for unset options.
func NewWriter(opts Options) *Writer {
	if opts.WindowSize <= 0 {
		opts.WindowSize = 10
	}
	if opts.MaxDeltaDepth <= 0 {
		opts.MaxDeltaDepth = 50
	}
	if opts.MinDeltaSize <= 0 {
		opts.MinDeltaSize = 50
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.3
	}
	if opts.Compressor == nil {
		opts.Compressor = NewZlibCompressor()
	}
	return &Writer{opts: opts}
}

// emitted tracks one already-written entry so later objects can deltify
// against it.
type emitted struct {
	hash   object.Hash
	typ    object.Type
	data   []byte
	offset int64
	depth  int
}

// Build assembles a pack stream from the given objects. Objects are
// reordered by type precedence so that likely-similar objects sit inside
// the same candidate window; within a type the caller's order is kept.
func (w *Writer) Build(objects []object.Object) (*Result, error) {
	ordered := make([]object.Object, len(objects))
	copy(ordered, objects)
	sort.SliceStable(ordered, func(i, j int) bool {
		return typeRank(ordered[i].Type) < typeRank(ordered[j].Type)
	})

	var buf bytes.Buffer
	buf.Write(EncodeHeader(uint32(len(ordered))))

	result := &Result{Objects: make([]object.Hash, 0, len(ordered))}
	window := make(map[object.Type][]emitted)

	for _, obj := range ordered {
		if !obj.Type.Concrete() {
			return nil, fmt.Errorf("object %s: cannot pack type %s", obj.Hash, obj.Type)
		}

		offset := int64(buf.Len())
		base, deltaBytes := w.pickDelta(window[obj.Type], obj)

		var depth int
		var err error
		if base != nil {
			depth = base.depth + 1
			err = w.writeDeltaEntry(&buf, offset, base, deltaBytes)
			result.DeltaCount++
		} else {
			err = w.writeFullEntry(&buf, obj)
			result.FullCount++
		}
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", obj.Hash, err)
		}

		recent := append([]emitted{{
			hash:   obj.Hash,
			typ:    obj.Type,
			data:   obj.Data,
			offset: offset,
			depth:  depth,
		}}, window[obj.Type]...)
		if len(recent) > w.opts.WindowSize {
			recent = recent[:w.opts.WindowSize]
		}
		window[obj.Type] = recent

		result.Objects = append(result.Objects, obj.Hash)
	}

	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])

	result.Data = buf.Bytes()
	result.Checksum = object.Hash(sum)
	return result, nil
}

// pickDelta scores every window candidate and returns the best base along
// with the delta payload, or nil when storing full is the better choice.
func (w *Writer) pickDelta(candidates []emitted, obj object.Object) (*emitted, []byte) {
	if len(obj.Data) < w.opts.MinDeltaSize {
		return nil, nil
	}

	var best *emitted
	bestScore := w.opts.SimilarityThreshold
	for i := range candidates {
		c := &candidates[i]
		if c.depth+1 > w.opts.MaxDeltaDepth {
			continue
		}
		if score := Similarity(c.data, obj.Data); score >= bestScore {
			best = c
			bestScore = score
		}
	}
	if best == nil {
		return nil, nil
	}

	deltaBytes := delta.CreateDelta(best.data, obj.Data)
	if len(deltaBytes) >= len(obj.Data) {
		return nil, nil
	}
	return best, deltaBytes
}

// writeFullEntry frames and compresses an undeltified object.
func (w *Writer) writeFullEntry(buf *bytes.Buffer, obj object.Object) error {
	buf.Write(encodeEntryHeader(obj.Type, uint64(len(obj.Data))))
	compressed, err := w.opts.Compressor.Deflate(obj.Data)
	if err != nil {
		return fmt.Errorf("deflate payload: %w", err)
	}
	buf.Write(compressed)
	return nil
}

// writeDeltaEntry frames and compresses an offset-delta payload against an
// earlier in-pack base.
func (w *Writer) writeDeltaEntry(buf *bytes.Buffer, offset int64, base *emitted, deltaBytes []byte) error {
	buf.Write(encodeEntryHeader(object.TypeOfsDelta, uint64(len(deltaBytes))))
	buf.Write(encodeOfsDistance(uint64(offset - base.offset)))
	compressed, err := w.opts.Compressor.Deflate(deltaBytes)
	if err != nil {
		return fmt.Errorf("deflate delta payload: %w", err)
	}
	buf.Write(compressed)
	return nil
}

// typeRank orders commits first, then trees, blobs, and tags, so objects
// that tend to resemble each other land adjacent in the window.
func typeRank(t object.Type) int {
	switch t {
	case object.TypeCommit:
		return 0
	case object.TypeTree:
		return 1
	case object.TypeBlob:
		return 2
	case object.TypeTag:
		return 3
	default:
		return 4
	}
}
