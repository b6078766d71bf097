package config

import (
	"fmt"
	"os"
	"strconv"
)

// PackConfig holds configuration for pack assembly and parsing.
type PackConfig struct {
	// Engine specifies the delta algorithm ("gitdelta" or "bsdiff").
	// Pack streams always use gitdelta; bsdiff applies to standalone patches.
	Engine string

	// WindowSize is how many recently emitted objects are considered as
	// delta bases for each candidate.
	WindowSize int

	// MaxDeltaDepth bounds the length of delta chains, both during
	// assembly and during parse-time resolution.
	MaxDeltaDepth int

	// MinDeltaSize is the smallest object, in bytes, worth delta-encoding.
	// Below it the instruction overhead exceeds the savings.
	MinDeltaSize int

	// SimilarityThreshold is the minimum estimator score a base candidate
	// must reach before an object is deltified against it.
	SimilarityThreshold float64

	// HashAlgo specifies the hash algorithm for store CIDs ("sha256" or
	// "blake3"). Object addresses and pack trailers are always SHA-1; this
	// only affects the store's dedup index.
	HashAlgo string

	// ColdCompression enables xz wrapping of finished pack artifacts.
	ColdCompression bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *PackConfig {
	return &PackConfig{
		Engine:              "gitdelta",
		WindowSize:          10,
		MaxDeltaDepth:       50,
		MinDeltaSize:        50,
		SimilarityThreshold: 0.3,
		HashAlgo:            "sha256",
		ColdCompression:     false,
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() *PackConfig {
	cfg := DefaultConfig()

	if engine := os.Getenv("KVASIR_DELTA_ENGINE"); engine != "" {
		cfg.Engine = engine
	}

	if window := os.Getenv("KVASIR_PACK_WINDOW"); window != "" {
		if w, err := strconv.Atoi(window); err == nil {
			cfg.WindowSize = w
		}
	}

	if depth := os.Getenv("KVASIR_MAX_DELTA_DEPTH"); depth != "" {
		if d, err := strconv.Atoi(depth); err == nil {
			cfg.MaxDeltaDepth = d
		}
	}

	if min := os.Getenv("KVASIR_MIN_DELTA_SIZE"); min != "" {
		if m, err := strconv.Atoi(min); err == nil {
			cfg.MinDeltaSize = m
		}
	}

	if threshold := os.Getenv("KVASIR_SIMILARITY_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			cfg.SimilarityThreshold = t
		}
	}

	if hashAlgo := os.Getenv("KVASIR_HASH_ALGO"); hashAlgo != "" {
		cfg.HashAlgo = hashAlgo
	}

	if cold := os.Getenv("KVASIR_COLD_COMPRESSION"); cold != "" {
		cfg.ColdCompression = cold == "true" || cold == "1"
	}

	return cfg
}

// Validate checks if the configuration is valid.
func (c *PackConfig) Validate() error {
	if c.Engine != "gitdelta" && c.Engine != "bsdiff" {
		return fmt.Errorf("invalid delta engine: %s (must be 'gitdelta' or 'bsdiff')", c.Engine)
	}

	if c.WindowSize <= 0 {
		return fmt.Errorf("pack window must be positive, got: %d", c.WindowSize)
	}

	if c.MaxDeltaDepth <= 0 {
		return fmt.Errorf("max delta depth must be positive, got: %d", c.MaxDeltaDepth)
	}

	if c.MinDeltaSize < 0 {
		return fmt.Errorf("min delta size must be non-negative, got: %d", c.MinDeltaSize)
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1], got: %f", c.SimilarityThreshold)
	}

	if c.HashAlgo != "sha256" && c.HashAlgo != "blake3" {
		return fmt.Errorf("invalid hash algorithm: %s (must be 'sha256' or 'blake3')", c.HashAlgo)
	}

	return nil
}
