// Package retry provides a reusable retry-with-backoff wrapper for fallible
// external operations (model fetches, subprocess spawns). Errors opt into
// retry behavior via small capability interfaces; untyped errors fall back to
// a message-substring classifier.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config tunes the backoff schedule.
type Config struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries" toml:"max_retries"`
	InitialDelay      time.Duration `json:"initial_delay" yaml:"initial_delay" toml:"initial_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier" toml:"backoff_multiplier"`
	MaxDelay          time.Duration `json:"max_delay" yaml:"max_delay" toml:"max_delay"`
	UseJitter         bool          `json:"use_jitter" yaml:"use_jitter" toml:"use_jitter"`
}

// DefaultConfig returns the standard schedule: 3 retries, 1s initial delay,
// doubling up to 30s, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
		UseJitter:         true,
	}
}

// Retriable lets an error state whether another attempt may succeed.
type Retriable interface {
	Retriable() bool
}

// DelayHinter lets an error override the computed backoff delay for a given
// attempt (e.g. a server-provided Retry-After).
type DelayHinter interface {
	RetryDelay(attempt int) (time.Duration, bool)
}

// EarlyStopper lets an error abort the retry loop before MaxRetries.
type EarlyStopper interface {
	StopRetrying(attempt int) bool
}

// Manager executes operations under one backoff schedule. It owns its RNG so
// jitter is reproducible under NewSeeded and never shared across instances.
type Manager struct {
	cfg Config
	log zerolog.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// New constructs a Manager with a time-seeded RNG.
func New(cfg Config) *Manager {
	return NewSeeded(cfg, time.Now().UnixNano())
}

// NewSeeded constructs a Manager with a fixed RNG seed, for deterministic
// jitter in tests.
func NewSeeded(cfg Config, seed int64) *Manager {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Manager{
		cfg: cfg,
		log: zerolog.Nop(),
		rng: rand.New(rand.NewSource(seed)),
	}
}

// SetLogger installs a structured logger used for attempt reporting.
func (m *Manager) SetLogger(l zerolog.Logger) { m.log = l }

// Do runs op until it succeeds, fails permanently, or exhausts the schedule.
// A non-retriable error returns after one attempt. With MaxRetries = K an
// always-failing retriable op is attempted exactly K+1 times.
func Do[T any](ctx context.Context, m *Manager, name string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				m.log.Info().Str("op", name).Int("attempts", attempt).Msg("retry succeeded")
			}
			return v, nil
		}
		if !IsRetriable(err) {
			return zero, err
		}
		if attempt > m.cfg.MaxRetries {
			m.log.Warn().Str("op", name).Int("attempts", attempt).Err(err).Msg("retries exhausted")
			return zero, err
		}
		if stopEarly(err, attempt) {
			return zero, err
		}
		delay := m.delayFor(err, attempt)
		m.log.Debug().Str("op", name).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("retrying")
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}
}

// delayFor computes the sleep before the next attempt. The error's own hint
// wins; otherwise exponential growth from InitialDelay, clamped to MaxDelay.
// Jitter is computed fresh from the current base delay each attempt.
func (m *Manager) delayFor(err error, attempt int) time.Duration {
	var dh DelayHinter
	if errors.As(err, &dh) {
		if d, ok := dh.RetryDelay(attempt); ok && d > 0 {
			return d
		}
	}
	d := time.Duration(float64(m.cfg.InitialDelay) * math.Pow(m.cfg.BackoffMultiplier, float64(attempt-1)))
	if d > m.cfg.MaxDelay || d <= 0 {
		d = m.cfg.MaxDelay
	}
	if m.cfg.UseJitter {
		m.mu.Lock()
		f := m.rng.Float64()
		m.mu.Unlock()
		d += time.Duration(f * 0.25 * float64(d))
	}
	return d
}

func stopEarly(err error, attempt int) bool {
	var es EarlyStopper
	if errors.As(err, &es) {
		return es.StopRetrying(attempt)
	}
	return false
}
