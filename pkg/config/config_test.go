package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine != "gitdelta" {
		t.Errorf("Expected default engine 'gitdelta', got '%s'", cfg.Engine)
	}

	if cfg.WindowSize != 10 {
		t.Errorf("Expected default window size 10, got %d", cfg.WindowSize)
	}

	if cfg.MaxDeltaDepth != 50 {
		t.Errorf("Expected default max delta depth 50, got %d", cfg.MaxDeltaDepth)
	}

	if cfg.MinDeltaSize != 50 {
		t.Errorf("Expected default min delta size 50, got %d", cfg.MinDeltaSize)
	}

	if cfg.SimilarityThreshold != 0.3 {
		t.Errorf("Expected default similarity threshold 0.3, got %f", cfg.SimilarityThreshold)
	}

	if cfg.HashAlgo != "sha256" {
		t.Errorf("Expected default hash algo 'sha256', got '%s'", cfg.HashAlgo)
	}

	if cfg.ColdCompression {
		t.Error("Expected cold compression to be off by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("KVASIR_DELTA_ENGINE", "bsdiff")
	os.Setenv("KVASIR_PACK_WINDOW", "20")
	os.Setenv("KVASIR_MAX_DELTA_DEPTH", "25")
	os.Setenv("KVASIR_MIN_DELTA_SIZE", "100")
	os.Setenv("KVASIR_SIMILARITY_THRESHOLD", "0.5")
	os.Setenv("KVASIR_HASH_ALGO", "blake3")
	os.Setenv("KVASIR_COLD_COMPRESSION", "true")
	defer func() {
		os.Unsetenv("KVASIR_DELTA_ENGINE")
		os.Unsetenv("KVASIR_PACK_WINDOW")
		os.Unsetenv("KVASIR_MAX_DELTA_DEPTH")
		os.Unsetenv("KVASIR_MIN_DELTA_SIZE")
		os.Unsetenv("KVASIR_SIMILARITY_THRESHOLD")
		os.Unsetenv("KVASIR_HASH_ALGO")
		os.Unsetenv("KVASIR_COLD_COMPRESSION")
	}()

	cfg := LoadFromEnv()

	if cfg.Engine != "bsdiff" {
		t.Errorf("Engine = %s, want bsdiff", cfg.Engine)
	}
	if cfg.WindowSize != 20 {
		t.Errorf("WindowSize = %d, want 20", cfg.WindowSize)
	}
	if cfg.MaxDeltaDepth != 25 {
		t.Errorf("MaxDeltaDepth = %d, want 25", cfg.MaxDeltaDepth)
	}
	if cfg.MinDeltaSize != 100 {
		t.Errorf("MinDeltaSize = %d, want 100", cfg.MinDeltaSize)
	}
	if cfg.SimilarityThreshold != 0.5 {
		t.Errorf("SimilarityThreshold = %f, want 0.5", cfg.SimilarityThreshold)
	}
	if cfg.HashAlgo != "blake3" {
		t.Errorf("HashAlgo = %s, want blake3", cfg.HashAlgo)
	}
	if !cfg.ColdCompression {
		t.Error("ColdCompression = false, want true")
	}
}

func TestLoadFromEnvIgnoresInvalidValues(t *testing.T) {
	os.Setenv("KVASIR_PACK_WINDOW", "not a number")
	os.Setenv("KVASIR_SIMILARITY_THRESHOLD", "also not a number")
	defer func() {
		os.Unsetenv("KVASIR_PACK_WINDOW")
		os.Unsetenv("KVASIR_SIMILARITY_THRESHOLD")
	}()

	cfg := LoadFromEnv()
	if cfg.WindowSize != 10 {
		t.Errorf("WindowSize = %d, want default 10", cfg.WindowSize)
	}
	if cfg.SimilarityThreshold != 0.3 {
		t.Errorf("SimilarityThreshold = %f, want default 0.3", cfg.SimilarityThreshold)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PackConfig)
		wantErr bool
	}{
		{"defaults are valid", func(c *PackConfig) {}, false},
		{"bsdiff engine is valid", func(c *PackConfig) { c.Engine = "bsdiff" }, false},
		{"unknown engine", func(c *PackConfig) { c.Engine = "xdelta" }, true},
		{"zero window", func(c *PackConfig) { c.WindowSize = 0 }, true},
		{"negative depth", func(c *PackConfig) { c.MaxDeltaDepth = -1 }, true},
		{"negative min size", func(c *PackConfig) { c.MinDeltaSize = -1 }, true},
		{"zero min size ok", func(c *PackConfig) { c.MinDeltaSize = 0 }, false},
		{"threshold above one", func(c *PackConfig) { c.SimilarityThreshold = 1.5 }, true},
		{"unknown hash algo", func(c *PackConfig) { c.HashAlgo = "md5" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
