package delta

import (
	"fmt"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
)

// BsdiffEngine implements the Engine interface using bsdiff. Its patches
// are standalone artifacts and cannot be embedded in pack entries.
type BsdiffEngine struct{}

// NewBsdiffEngine creates a new bsdiff-based delta engine.
func NewBsdiffEngine() *BsdiffEngine {
	return &BsdiffEngine{}
}

// Name returns the name of the engine.
func (e *BsdiffEngine) Name() string {
	return "bsdiff"
}

// Diff computes a binary delta using bsdiff.
func (e *BsdiffEngine) Diff(base, target []byte) ([]byte, error) {
	if len(base) == 0 && len(target) == 0 {
		return []byte{}, nil
	}

	// bsdiff cannot diff against an empty base; the target itself acts as
	// the patch and Patch special-cases it symmetrically.
	if len(base) == 0 {
		return target, nil
	}

	patch, err := bsdiff.Bytes(base, target)
	if err != nil {
		return nil, fmt.Errorf("bsdiff computation failed: %w", err)
	}

	return patch, nil
}

// Patch applies a bsdiff patch to base.
func (e *BsdiffEngine) Patch(base, delta []byte) ([]byte, error) {
	if len(delta) == 0 {
		return base, nil
	}

	if len(base) == 0 {
		return delta, nil
	}

	target, err := bspatch.Bytes(base, delta)
	if err != nil {
		return nil, fmt.Errorf("bspatch application failed: %w", err)
	}

	return target, nil
}
