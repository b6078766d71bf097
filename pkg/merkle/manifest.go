package merkle

import (
	"crypto/sha256"
	"fmt"

	"github.com/cbergoon/merkletree"

	"github.com/kvasir-vcs/kvasir/pkg/object"
)

// Content implements merkletree.Content over one packed object hash.
type Content struct {
	hash object.Hash
}

// NewContent wraps an object hash as tree content.
func NewContent(hash object.Hash) Content {
	return Content{hash: hash}
}

// CalculateHash implements the Content interface.
func (c Content) CalculateHash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write(c.hash[:]); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Equals implements the Content interface.
func (c Content) Equals(other merkletree.Content) (bool, error) {
	otherContent, ok := other.(Content)
	if !ok {
		return false, fmt.Errorf("type mismatch")
	}
	return c.hash == otherContent.hash, nil
}

// Manifest is a Merkle tree over the object hashes of one pack, in entry
// order. Its root attests which objects a pack carries without shipping
// the pack.
type Manifest struct {
	tree   *merkletree.MerkleTree
	hashes []object.Hash
}

// BuildManifest builds a manifest from packed object hashes.
func BuildManifest(hashes []object.Hash) (*Manifest, error) {
	if len(hashes) == 0 {
		return nil, fmt.Errorf("cannot build manifest from empty object list")
	}

	contents := make([]merkletree.Content, 0, len(hashes))
	for _, h := range hashes {
		contents = append(contents, NewContent(h))
	}

	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to build Merkle tree: %w", err)
	}

	return &Manifest{tree: tree, hashes: hashes}, nil
}

// Root returns the Merkle root of the manifest.
func (m *Manifest) Root() []byte {
	return m.tree.MerkleRoot()
}

// Contains proves membership of one object hash in the manifest.
func (m *Manifest) Contains(hash object.Hash) (bool, error) {
	return m.tree.VerifyContent(NewContent(hash))
}

// Verify rebuilds and checks the whole tree.
func (m *Manifest) Verify() (bool, error) {
	ok, err := m.tree.VerifyTree()
	if err != nil {
		return false, fmt.Errorf("failed to verify manifest: %w", err)
	}
	return ok, nil
}
