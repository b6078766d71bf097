package object

import (
	"testing"
)

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeCommit, "commit"},
		{TypeTree, "tree"},
		{TypeBlob, "blob"},
		{TypeTag, "tag"},
		{TypeOfsDelta, "ofs-delta"},
		{TypeRefDelta, "ref-delta"},
		{TypeInvalid, "invalid"},
		{Type(5), "invalid"},
	}

	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("Type(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Type
		wantErr bool
	}{
		{"commit", "commit", TypeCommit, false},
		{"tree", "tree", TypeTree, false},
		{"blob", "blob", TypeBlob, false},
		{"tag", "tag", TypeTag, false},
		{"delta name rejected", "ofs-delta", TypeInvalid, true},
		{"unknown", "folder", TypeInvalid, true},
		{"empty", "", TypeInvalid, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseType(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("ParseType(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTypePredicates(t *testing.T) {
	for _, typ := range []Type{TypeCommit, TypeTree, TypeBlob, TypeTag} {
		if !typ.Concrete() {
			t.Errorf("%s should be concrete", typ)
		}
		if typ.IsDelta() {
			t.Errorf("%s should not be a delta", typ)
		}
	}
	for _, typ := range []Type{TypeOfsDelta, TypeRefDelta} {
		if typ.Concrete() {
			t.Errorf("%s should not be concrete", typ)
		}
		if !typ.IsDelta() {
			t.Errorf("%s should be a delta", typ)
		}
	}
}

func TestComputeKnownHash(t *testing.T) {
	// sha1("blob 13\x00Hello, World!")
	got := Compute(TypeBlob, []byte("Hello, World!"))
	want := "b45ef6fec89518d314f546fd6c3025367b721684"
	if got.String() != want {
		t.Errorf("Compute() = %s, want %s", got, want)
	}
}

func TestComputeDependsOnType(t *testing.T) {
	data := []byte("same payload")
	if Compute(TypeBlob, data) == Compute(TypeTree, data) {
		t.Error("hashes of different types over the same bytes must differ")
	}
}

func TestHashHexRoundTrip(t *testing.T) {
	h := Compute(TypeBlob, []byte("round trip me"))

	parsed, err := HashFromHex(h.String())
	if err != nil {
		t.Fatalf("HashFromHex() error = %v", err)
	}
	if parsed != h {
		t.Errorf("HashFromHex(%s) = %s", h, parsed)
	}
}

func TestHashFromHexErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too short", "abcd"},
		{"too long", "b45ef6fec89518d314f546fd6c3025367b72168400"},
		{"not hex", "zzzzf6fec89518d314f546fd6c3025367b721684"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := HashFromHex(tt.input); err == nil {
				t.Errorf("HashFromHex(%q) accepted invalid input", tt.input)
			}
		})
	}
}

func TestNewPopulatesHash(t *testing.T) {
	obj := New(TypeBlob, []byte("content"))
	if obj.Hash != Compute(TypeBlob, []byte("content")) {
		t.Error("New() hash does not match Compute()")
	}
	if obj.Hash.IsZero() {
		t.Error("New() produced the zero hash")
	}
	if !ZeroHash.IsZero() {
		t.Error("ZeroHash.IsZero() = false")
	}
}
