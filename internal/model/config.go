package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"inferd/internal/retry"
	"inferd/pkg/types"
)

// Batch size bounds accepted by the decode runtime.
const (
	MinBatchSize = 1
	MaxBatchSize = 8192
)

// Defaults applied by DefaultConfig.
const (
	defaultBatchSize   = 512
	defaultNSeqMax     = 4
	defaultThreads     = 4
	defaultContextSize = 4096
)

// Config owns a model source plus the runtime tunables needed to load and
// serve it.
type Config struct {
	Source      types.ModelSource `json:"source" yaml:"source" toml:"source"`
	BatchSize   int               `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	NSeqMax     int               `json:"n_seq_max" yaml:"n_seq_max" toml:"n_seq_max"`
	Threads     int               `json:"threads" yaml:"threads" toml:"threads"`
	ContextSize int               `json:"context_size" yaml:"context_size" toml:"context_size"`
	Retry       retry.Config      `json:"retry" yaml:"retry" toml:"retry"`
	Debug       bool              `json:"debug" yaml:"debug" toml:"debug"`
}

// DefaultConfig returns a config for src with standard tunables.
func DefaultConfig(src types.ModelSource) Config {
	return Config{
		Source:      src,
		BatchSize:   defaultBatchSize,
		NSeqMax:     defaultNSeqMax,
		Threads:     defaultThreads,
		ContextSize: defaultContextSize,
		Retry:       retry.DefaultConfig(),
	}
}

// Validate checks the config before a load is attempted. Loads must never
// start from an invalid config.
func (c Config) Validate() error {
	if c.BatchSize < MinBatchSize || c.BatchSize > MaxBatchSize {
		return ErrInvalidConfig("batch_size",
			fmt.Sprintf("must be in [%d, %d], got %d", MinBatchSize, MaxBatchSize, c.BatchSize))
	}
	if c.NSeqMax < 1 {
		return ErrInvalidConfig("n_seq_max", fmt.Sprintf("must be >= 1, got %d", c.NSeqMax))
	}
	if c.Threads < 1 {
		return ErrInvalidConfig("threads", fmt.Sprintf("must be >= 1, got %d", c.Threads))
	}
	if c.ContextSize < 1 {
		return ErrInvalidConfig("context_size", fmt.Sprintf("must be >= 1, got %d", c.ContextSize))
	}
	return ValidateSource(c.Source)
}

// CacheKey is a deterministic digest of the identifying source fields only.
// Tunables like batch size do not change where the bytes are cached.
func (c Config) CacheKey() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s", c.Source.Kind, c.Source.Repo, c.Source.Folder, c.Source.Filename)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
