package pack

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"testing"

	"github.com/kvasir-vcs/kvasir/pkg/delta"
	"github.com/kvasir-vcs/kvasir/pkg/object"
)

func appendChecksum(data []byte) []byte {
	sum := sha1.Sum(data)
	return append(data, sum[:]...)
}

func testObjects() []object.Object {
	commitA := object.New(object.TypeCommit, []byte("tree 1111\nparent none\nauthor alice\n\ninitial import of the data model\n"))
	commitB := object.New(object.TypeCommit, []byte("tree 2222\nparent none\nauthor alice\n\nsecond import of the data model\n"))
	tree := object.New(object.TypeTree, []byte("100644 blob aaaa readme\n100644 blob bbbb main.go\n"))
	blobA := object.New(object.TypeBlob, bytes.Repeat([]byte("func main() { run(config.Load()) }\n"), 10))
	blobB := object.New(object.TypeBlob, append(bytes.Repeat([]byte("func main() { run(config.Load()) }\n"), 10), []byte("// trailing note\n")...))
	tag := object.New(object.TypeTag, []byte("object cccc\ntype commit\ntag v1.0.0\ntagger alice\n"))

	return []object.Object{blobA, tag, commitA, tree, commitB, blobB}
}

func hashSet(objects []object.Object) map[object.Hash]bool {
	set := make(map[object.Hash]bool, len(objects))
	for _, o := range objects {
		set[o.Hash] = true
	}
	return set
}

func TestBuildParseRoundTrip(t *testing.T) {
	objects := testObjects()

	result, err := NewWriter(Options{}).Build(objects)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(result.Objects) != len(objects) {
		t.Fatalf("Build() packed %d objects, want %d", len(result.Objects), len(objects))
	}
	if result.FullCount+result.DeltaCount != len(objects) {
		t.Errorf("encoding counts %d+%d do not sum to %d", result.FullCount, result.DeltaCount, len(objects))
	}

	parsed, err := NewParser(ParserOptions{}).Parse(result.Data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.Checksum != result.Checksum {
		t.Errorf("parsed checksum %s, want %s", parsed.Checksum, result.Checksum)
	}

	want := hashSet(objects)
	got := hashSet(parsed.Objects)
	for h := range want {
		if !got[h] {
			t.Errorf("object %s missing after round trip", h)
		}
	}
	if len(got) != len(want) {
		t.Errorf("round trip produced %d distinct objects, want %d", len(got), len(want))
	}

	for _, obj := range parsed.Objects {
		if object.Compute(obj.Type, obj.Data) != obj.Hash {
			t.Errorf("object %s: reconstructed bytes do not match hash", obj.Hash)
		}
	}
}

func TestBuildDeltifiesSimilarObjects(t *testing.T) {
	base := bytes.Repeat([]byte("shared content line of reasonable length\n"), 20)
	variant := append(append([]byte{}, base...), []byte("one extra line\n")...)

	objects := []object.Object{
		object.New(object.TypeBlob, base),
		object.New(object.TypeBlob, variant),
	}

	result, err := NewWriter(Options{}).Build(objects)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.DeltaCount == 0 {
		t.Error("similar large blobs should produce at least one delta entry")
	}

	parsed, err := NewParser(ParserOptions{}).Parse(result.Data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got := hashSet(parsed.Objects)
	for _, o := range objects {
		if !got[o.Hash] {
			t.Errorf("object %s missing after round trip", o.Hash)
		}
	}
}

func TestBuildSmallObjectStoredFull(t *testing.T) {
	// Two identical tiny blobs would be perfect delta material, but both
	// sit under the minimum delta source size.
	small := object.New(object.TypeBlob, []byte("tiny blob!"))
	twin := object.New(object.TypeBlob, []byte("tiny blob?"))

	result, err := NewWriter(Options{MinDeltaSize: 50}).Build([]object.Object{small, twin})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.DeltaCount != 0 {
		t.Errorf("DeltaCount = %d, want 0 for objects under the size floor", result.DeltaCount)
	}
	if result.FullCount != 2 {
		t.Errorf("FullCount = %d, want 2", result.FullCount)
	}
}

func TestBuildRespectsMaxDeltaDepth(t *testing.T) {
	// Window of 1 forces each object to chain on its predecessor, so the
	// depth cap is what breaks the chain with a fresh full object.
	var objects []object.Object
	content := bytes.Repeat([]byte("chain link content with enough bytes to deltify\n"), 10)
	for i := 0; i < 10; i++ {
		data := append(append([]byte{}, content...), []byte(fmt.Sprintf("revision %d\n", i))...)
		objects = append(objects, object.New(object.TypeBlob, data))
	}

	result, err := NewWriter(Options{WindowSize: 1, MaxDeltaDepth: 3}).Build(objects)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if result.FullCount < 2 {
		t.Errorf("FullCount = %d, want at least 2 (depth cap must break the chain)", result.FullCount)
	}

	// Chains of at most 3 must resolve under a parse bound of 3...
	if _, err := NewParser(ParserOptions{MaxDeltaDepth: 3}).Parse(result.Data); err != nil {
		t.Fatalf("Parse() with matching depth bound error = %v", err)
	}

	// ...and must exceed a bound of 2 somewhere.
	if _, err := NewParser(ParserOptions{MaxDeltaDepth: 2}).Parse(result.Data); !errors.Is(err, ErrDeltaChainTooDeep) {
		t.Errorf("Parse() with tighter bound error = %v, want ErrDeltaChainTooDeep", err)
	}
}

func TestChecksumSensitivity(t *testing.T) {
	result, err := NewWriter(Options{}).Build(testObjects())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if err := Verify(result.Data); err != nil {
		t.Fatalf("Verify() on pristine pack error = %v", err)
	}

	for i := range result.Data {
		corrupted := append([]byte(nil), result.Data...)
		corrupted[i] ^= 0x01
		if err := Verify(corrupted); err == nil {
			t.Fatalf("Verify() accepted pack with byte %d flipped", i)
		}
	}
}

func TestParseRejectsMalformedInput(t *testing.T) {
	valid, err := NewWriter(Options{}).Build(testObjects())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	truncated := append([]byte(nil), valid.Data[:len(valid.Data)-object.HashSize]...)

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"under 12 bytes", []byte("PACK")},
		{"bad signature", bytes.Replace(append([]byte(nil), valid.Data...), []byte("PACK"), []byte("JUNK"), 1)},
		{"missing trailer", truncated},
	}

	parser := NewParser(ParserOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parser.Parse(tt.input); err == nil {
				t.Error("Parse() accepted malformed input")
			}
		})
	}
}

func TestParseObjectCountMismatch(t *testing.T) {
	result, err := NewWriter(Options{}).Build(testObjects())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Claim one more object than the stream holds; the checksum is
	// recomputed so only the count is wrong.
	data := append([]byte(nil), result.Data[:len(result.Data)-object.HashSize]...)
	copy(data[:HeaderSize], EncodeHeader(uint32(len(result.Objects))+1))
	data = appendChecksum(data)

	if _, err := NewParser(ParserOptions{}).Parse(data); err == nil {
		t.Error("Parse() accepted pack with inflated object count")
	}
}

func TestParseRefDeltaFromExternalSource(t *testing.T) {
	base := object.New(object.TypeBlob, bytes.Repeat([]byte("external base content, stored out of pack\n"), 5))
	target := object.New(object.TypeBlob, append(bytes.Repeat([]byte("external base content, stored out of pack\n"), 5), []byte("tail\n")...))

	source := &stubSource{objects: map[object.Hash]object.Object{base.Hash: base}}
	data := buildRefDeltaPack(t, base, target)

	parsed, err := NewParser(ParserOptions{Source: source}).Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parsed.Objects) != 1 {
		t.Fatalf("Parse() produced %d objects, want 1", len(parsed.Objects))
	}
	if parsed.Objects[0].Hash != target.Hash {
		t.Errorf("reconstructed %s, want %s", parsed.Objects[0].Hash, target.Hash)
	}
}

func TestParseRefDeltaMissingBase(t *testing.T) {
	base := object.New(object.TypeBlob, bytes.Repeat([]byte("external base content, stored out of pack\n"), 5))
	target := object.New(object.TypeBlob, append(bytes.Repeat([]byte("external base content, stored out of pack\n"), 5), []byte("tail\n")...))

	data := buildRefDeltaPack(t, base, target)

	if _, err := NewParser(ParserOptions{}).Parse(data); !errors.Is(err, ErrBaseNotFound) {
		t.Errorf("Parse() error = %v, want ErrBaseNotFound", err)
	}
}

func TestParseCachesSharedBase(t *testing.T) {
	// Several deltas against one base; the base must resolve once and the
	// whole pack must still decode.
	base := bytes.Repeat([]byte("cache me: the one true base of this pack\n"), 10)
	objects := []object.Object{object.New(object.TypeBlob, base)}
	for i := 0; i < 5; i++ {
		data := append(append([]byte{}, base...), byte('0'+i))
		objects = append(objects, object.New(object.TypeBlob, data))
	}

	result, err := NewWriter(Options{WindowSize: 10}).Build(objects)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	parsed, err := NewParser(ParserOptions{}).Parse(result.Data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parsed.Objects) != len(objects) {
		t.Errorf("Parse() produced %d objects, want %d", len(parsed.Objects), len(objects))
	}
}

func TestMaterialize(t *testing.T) {
	objects := testObjects()
	result, err := NewWriter(Options{}).Build(objects)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	parsed, err := NewParser(ParserOptions{}).Parse(result.Data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	sink := &stubSink{}
	if err := parsed.Materialize(sink); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if len(sink.puts) != len(objects) {
		t.Errorf("Materialize() made %d puts, want %d", len(sink.puts), len(objects))
	}
}

// buildRefDeltaPack assembles, by hand, a two-section pack whose only
// entry is a ref-delta against an out-of-pack base.
func buildRefDeltaPack(t *testing.T, base, target object.Object) []byte {
	t.Helper()
	comp := NewZlibCompressor()

	deltaBytes := delta.CreateDelta(base.Data, target.Data)
	compressed, err := comp.Deflate(deltaBytes)
	if err != nil {
		t.Fatalf("Deflate() error = %v", err)
	}

	data := EncodeHeader(1)
	data = append(data, encodeEntryHeader(object.TypeRefDelta, uint64(len(deltaBytes)))...)
	data = append(data, base.Hash[:]...)
	data = append(data, compressed...)
	return appendChecksum(data)
}

type stubSource struct {
	objects map[object.Hash]object.Object
}

func (s *stubSource) Get(hash object.Hash) (object.Object, bool, error) {
	obj, ok := s.objects[hash]
	return obj, ok, nil
}

type stubSink struct {
	puts []object.Hash
}

func (s *stubSink) Put(t object.Type, data []byte) (object.Hash, error) {
	h := object.Compute(t, data)
	s.puts = append(s.puts, h)
	return h, nil
}
