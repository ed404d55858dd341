// Package config loads the daemon's file configuration. The format follows
// the file extension; unset values are zero and replaced by defaults in main.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"inferd/pkg/types"
)

// Config holds runtime parameters for the service.
type Config struct {
	Addr     string `json:"addr" yaml:"addr" toml:"addr"`
	CacheDir string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`

	Model     ModelConfig     `json:"model" yaml:"model" toml:"model"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler" toml:"scheduler"`
	Retry     RetryConfig     `json:"retry" yaml:"retry" toml:"retry"`
	Session   SessionConfig   `json:"session" yaml:"session" toml:"session"`

	// ParallelPolicyPath points to an optional tool-parallelism policy file.
	ParallelPolicyPath string `json:"parallel_policy_path" yaml:"parallel_policy_path" toml:"parallel_policy_path"`
}

// ModelConfig selects the model and its load-time tunables.
type ModelConfig struct {
	Source      types.ModelSource `json:"source" yaml:"source" toml:"source"`
	BatchSize   int               `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	NSeqMax     int               `json:"n_seq_max" yaml:"n_seq_max" toml:"n_seq_max"`
	Threads     int               `json:"threads" yaml:"threads" toml:"threads"`
	ContextSize int               `json:"context_size" yaml:"context_size" toml:"context_size"`
	Debug       bool              `json:"debug" yaml:"debug" toml:"debug"`
}

// SchedulerConfig tunes admission and decode batching.
type SchedulerConfig struct {
	QueueSize int `json:"queue_size" yaml:"queue_size" toml:"queue_size"`
	MaxWaitMS int `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	BatchSize int `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
}

// RetryConfig tunes the fetch retry policy.
type RetryConfig struct {
	MaxRetries        int     `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	InitialDelayMS    int     `json:"initial_delay_ms" yaml:"initial_delay_ms" toml:"initial_delay_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier" toml:"backoff_multiplier"`
	MaxDelayMS        int     `json:"max_delay_ms" yaml:"max_delay_ms" toml:"max_delay_ms"`
	NoJitter          bool    `json:"no_jitter" yaml:"no_jitter" toml:"no_jitter"`
}

// SessionConfig tunes session retention.
type SessionConfig struct {
	MaxIdleMin int `json:"max_idle_min" yaml:"max_idle_min" toml:"max_idle_min"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if err := unmarshalFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadParallelPolicy reads an operator tool-parallelism policy file, using
// the same extension dispatch as Load.
func LoadParallelPolicy(path string) (types.ParallelConfig, error) {
	var pc types.ParallelConfig
	if err := unmarshalFile(path, &pc); err != nil {
		return types.ParallelConfig{}, err
	}
	return pc, nil
}

func unmarshalFile(path string, out any) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, out)
	case ".json":
		return json.Unmarshal(b, out)
	case ".toml":
		return toml.Unmarshal(b, out)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
}
