package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Type identifies the kind of an object, using the numeric codes that
// appear in pack entry headers.
type Type byte

const (
	TypeInvalid Type = 0
	TypeCommit  Type = 1
	TypeTree    Type = 2
	TypeBlob    Type = 3
	TypeTag     Type = 4

	// Delta encodings only ever appear inside pack streams; they are not
	// storable object types.
	TypeOfsDelta Type = 6
	TypeRefDelta Type = 7
)

// String returns the canonical lowercase name used in the hash preamble.
func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeBlob:
		return "blob"
	case TypeTag:
		return "tag"
	case TypeOfsDelta:
		return "ofs-delta"
	case TypeRefDelta:
		return "ref-delta"
	default:
		return "invalid"
	}
}

// Concrete reports whether t is a real storable object type, as opposed to
// a delta encoding or an invalid code.
func (t Type) Concrete() bool {
	return t >= TypeCommit && t <= TypeTag
}

// IsDelta reports whether t is one of the two delta encodings.
func (t Type) IsDelta() bool {
	return t == TypeOfsDelta || t == TypeRefDelta
}

// ParseType maps a canonical type name back to its code.
func ParseType(s string) (Type, error) {
	switch s {
	case "commit":
		return TypeCommit, nil
	case "tree":
		return TypeTree, nil
	case "blob":
		return TypeBlob, nil
	case "tag":
		return TypeTag, nil
	default:
		return TypeInvalid, fmt.Errorf("unknown object type: %q", s)
	}
}

// HashSize is the byte length of an object hash and of the pack trailer.
const HashSize = sha1.Size

// Hash is the content address of an object.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash, used as a sentinel for "no object".
var ZeroHash Hash

// String returns the lowercase hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero sentinel.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// HashFromHex parses a 40-character hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	if len(s) != HashSize*2 {
		return h, fmt.Errorf("invalid hash length: %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	copy(h[:], b)
	return h, nil
}

// Object is an immutable typed byte sequence addressed by its content hash.
type Object struct {
	Hash Hash
	Type Type
	Data []byte
}

// Compute hashes "{type} {length}\0{data}" and returns the content address.
func Compute(t Type, data []byte) Hash {
	h := sha1.New()
	h.Write([]byte(t.String()))
	h.Write([]byte{' '})
	h.Write([]byte(strconv.Itoa(len(data))))
	h.Write([]byte{0})
	h.Write(data)

	var sum Hash
	copy(sum[:], h.Sum(nil))
	return sum
}

// New builds an Object with its hash derived from type and data.
func New(t Type, data []byte) Object {
	return Object{Hash: Compute(t, data), Type: t, Data: data}
}
