package pack

import (
	"bytes"
	"errors"
	"testing"

	"github.com/kvasir-vcs/kvasir/pkg/object"
)

func TestSizeVarintRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 42, 127, 128, 255, 16383, 16384,
		1 << 20, 1<<32 - 1, 1 << 32, 1<<53 - 1,
	}

	for _, n := range values {
		encoded := EncodeSize(n)
		got, consumed, err := DecodeSize(encoded)
		if err != nil {
			t.Fatalf("DecodeSize(%d) error = %v", n, err)
		}
		if got != n {
			t.Errorf("DecodeSize(EncodeSize(%d)) = %d", n, got)
		}
		if consumed != len(encoded) {
			t.Errorf("DecodeSize(%d) consumed %d of %d bytes", n, consumed, len(encoded))
		}
	}
}

func TestDecodeSizeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"empty input", nil, ErrTruncatedVarint},
		{"all continuation bits", []byte{0x80, 0x80, 0x80}, ErrTruncatedVarint},
		{"never terminates", bytes.Repeat([]byte{0x80}, 11), ErrOversizedVarint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeSize(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeSize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPackHeaderRoundTrip(t *testing.T) {
	header := EncodeHeader(1234)
	if len(header) != HeaderSize {
		t.Fatalf("header length = %d, want %d", len(header), HeaderSize)
	}

	count, err := DecodeHeader(header)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if count != 1234 {
		t.Errorf("DecodeHeader() count = %d, want 1234", count)
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"too short", []byte("PACK")},
		{"bad signature", append([]byte("KCAP"), make([]byte, 8)...)},
		{"bad version", append([]byte("PACK"), 0, 0, 0, 3, 0, 0, 0, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeHeader(tt.input); !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("DecodeHeader() error = %v, want ErrInvalidHeader", err)
			}
		})
	}
}

func TestEntryHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		typ  object.Type
		size uint64
	}{
		{object.TypeCommit, 0},
		{object.TypeTree, 15},
		{object.TypeBlob, 16},
		{object.TypeTag, 127},
		{object.TypeBlob, 1 << 20},
		{object.TypeOfsDelta, 300},
		{object.TypeRefDelta, 1<<40 - 1},
	}

	for _, tt := range tests {
		encoded := encodeEntryHeader(tt.typ, tt.size)
		typ, size, n, err := decodeEntryHeader(encoded)
		if err != nil {
			t.Fatalf("decodeEntryHeader(%s, %d) error = %v", tt.typ, tt.size, err)
		}
		if typ != tt.typ || size != tt.size {
			t.Errorf("decodeEntryHeader() = (%s, %d), want (%s, %d)", typ, size, tt.typ, tt.size)
		}
		if n != len(encoded) {
			t.Errorf("decodeEntryHeader() consumed %d of %d bytes", n, len(encoded))
		}
	}
}

func TestDecodeEntryHeaderTruncated(t *testing.T) {
	if _, _, _, err := decodeEntryHeader(nil); !errors.Is(err, ErrTruncatedEntry) {
		t.Errorf("decodeEntryHeader(nil) error = %v, want ErrTruncatedEntry", err)
	}
	// Lead byte promises a continuation that never arrives.
	if _, _, _, err := decodeEntryHeader([]byte{0x90 | 0x80}); !errors.Is(err, ErrTruncatedEntry) {
		t.Errorf("decodeEntryHeader() error = %v, want ErrTruncatedEntry", err)
	}
}

func TestOfsDistanceRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 129, 16511, 16512, 1 << 24, 1 << 31}

	for _, d := range values {
		encoded := encodeOfsDistance(d)
		got, n, err := decodeOfsDistance(encoded)
		if err != nil {
			t.Fatalf("decodeOfsDistance(%d) error = %v", d, err)
		}
		if got != d {
			t.Errorf("decodeOfsDistance(encodeOfsDistance(%d)) = %d", d, got)
		}
		if n != len(encoded) {
			t.Errorf("decodeOfsDistance(%d) consumed %d of %d bytes", d, n, len(encoded))
		}
	}
}
