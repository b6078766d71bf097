package delta

import (
	"fmt"
)

// Engine defines the interface for binary delta operations.
type Engine interface {
	// Diff computes a delta that transforms base into target.
	Diff(base, target []byte) ([]byte, error)

	// Patch applies a delta to base to reproduce the target.
	Patch(base, delta []byte) ([]byte, error)

	// Name returns the name of the delta engine.
	Name() string
}

// NewEngine creates a delta engine for the named algorithm. Pack streams
// always use "gitdelta" because the copy/insert instruction format is part
// of the wire format; "bsdiff" is available for standalone patches.
func NewEngine(name string) (Engine, error) {
	switch name {
	case "gitdelta":
		return NewGitDeltaEngine(), nil
	case "bsdiff":
		return NewBsdiffEngine(), nil
	default:
		return nil, fmt.Errorf("unsupported delta engine: %s (must be 'gitdelta' or 'bsdiff')", name)
	}
}

// Stats holds statistics about a delta operation.
type Stats struct {
	BaseSize    int     // Size of the base object
	TargetSize  int     // Size of the target object
	DeltaSize   int     // Size of the delta stream
	SavingsRate float64 // 1 - delta size / target size (higher is better)
}

// ComputeStats calculates statistics for a delta operation.
func ComputeStats(base, target, delta []byte) Stats {
	stats := Stats{
		BaseSize:   len(base),
		TargetSize: len(target),
		DeltaSize:  len(delta),
	}

	if len(target) > 0 {
		stats.SavingsRate = 1 - float64(len(delta))/float64(len(target))
	}

	return stats
}
