package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastConfig keeps test sleeps negligible.
func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:        maxRetries,
		InitialDelay:      time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Millisecond,
		UseJitter:         false,
	}
}

type transientErr struct{ msg string }

func (e transientErr) Error() string   { return e.msg }
func (e transientErr) Retriable() bool { return true }

type permanentErr struct{ msg string }

func (e permanentErr) Error() string   { return e.msg }
func (e permanentErr) Retriable() bool { return false }

type earlyStopErr struct{ after int }

func (e earlyStopErr) Error() string            { return "giving up early" }
func (e earlyStopErr) Retriable() bool          { return true }
func (e earlyStopErr) StopRetrying(a int) bool  { return a >= e.after }

func TestDoSucceedsAfterNFailures(t *testing.T) {
	m := NewSeeded(fastConfig(3), 1)
	attempts := 0
	v, err := Do(context.Background(), m, "op", func(context.Context) (int, error) {
		attempts++
		if attempts <= 2 {
			return 0, transientErr{"flaky"}
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoNonRetriableSingleAttempt(t *testing.T) {
	m := NewSeeded(fastConfig(5), 1)
	attempts := 0
	want := permanentErr{"401 unauthorized"}
	_, err := Do(context.Background(), m, "op", func(context.Context) (string, error) {
		attempts++
		return "", want
	})
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", attempts)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected error returned unchanged, got %v", err)
	}
}

func TestDoExhaustsRetries(t *testing.T) {
	const k = 4
	m := NewSeeded(fastConfig(k), 1)
	attempts := 0
	_, err := Do(context.Background(), m, "op", func(context.Context) (int, error) {
		attempts++
		return 0, transientErr{"503 unavailable"}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != k+1 {
		t.Fatalf("expected %d attempts, got %d", k+1, attempts)
	}
}

func TestDoEarlyStop(t *testing.T) {
	m := NewSeeded(fastConfig(10), 1)
	attempts := 0
	_, err := Do(context.Background(), m, "op", func(context.Context) (int, error) {
		attempts++
		return 0, earlyStopErr{after: 2}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	// Attempt 1 fails, stop check at attempt 1 passes, attempt 2 fails,
	// stop check at attempt 2 aborts.
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDoContextCanceledDuringBackoff(t *testing.T) {
	cfg := fastConfig(3)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour
	m := NewSeeded(cfg, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := Do(ctx, m, "op", func(context.Context) (int, error) {
		return 0, transientErr{"timeout"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("backoff sleep ignored cancellation")
	}
}

func TestDelayHinterOverridesBackoff(t *testing.T) {
	m := NewSeeded(fastConfig(1), 1)
	hint := 2 * time.Millisecond
	d := m.delayFor(&StatusError{Code: 503, RetryAfter: hint}, 1)
	if d != hint {
		t.Fatalf("expected hinted delay %v, got %v", hint, d)
	}
}

func TestDelayGrowthClampedToMax(t *testing.T) {
	cfg := Config{
		MaxRetries:        10,
		InitialDelay:      10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          35 * time.Millisecond,
		UseJitter:         false,
	}
	m := NewSeeded(cfg, 1)
	if d := m.delayFor(transientErr{"x"}, 1); d != 10*time.Millisecond {
		t.Fatalf("attempt 1: expected 10ms, got %v", d)
	}
	if d := m.delayFor(transientErr{"x"}, 2); d != 20*time.Millisecond {
		t.Fatalf("attempt 2: expected 20ms, got %v", d)
	}
	if d := m.delayFor(transientErr{"x"}, 3); d != 35*time.Millisecond {
		t.Fatalf("attempt 3: expected clamp to 35ms, got %v", d)
	}
}

func TestJitterBoundedAndSeeded(t *testing.T) {
	cfg := fastConfig(1)
	cfg.InitialDelay = 100 * time.Millisecond
	cfg.MaxDelay = time.Second
	cfg.UseJitter = true
	a := NewSeeded(cfg, 7)
	b := NewSeeded(cfg, 7)
	da := a.delayFor(transientErr{"x"}, 1)
	db := b.delayFor(transientErr{"x"}, 1)
	if da != db {
		t.Fatalf("same seed must produce same jitter: %v vs %v", da, db)
	}
	if da < 100*time.Millisecond || da > 125*time.Millisecond {
		t.Fatalf("jitter out of [base, base+25%%] range: %v", da)
	}
}

func TestClassifyMessageFallback(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"server returned 500", true},
		{"gateway timeout 504", true},
		{"connection refused", true},
		{"429 too many requests", false},
		{"rate limit exceeded", false},
		{"404 not found", false},
		{"401 unauthorized", false},
		{"something entirely novel", true}, // unknown defaults to retriable
	}
	for _, c := range cases {
		if got := IsRetriable(errors.New(c.msg)); got != c.want {
			t.Fatalf("classify(%q)=%v want %v", c.msg, got, c.want)
		}
	}
}

func TestStatusErrorClassification(t *testing.T) {
	if !(&StatusError{Code: 500}).Retriable() {
		t.Fatalf("500 should be retriable")
	}
	if !(&StatusError{Code: 503}).Retriable() {
		t.Fatalf("503 should be retriable")
	}
	if (&StatusError{Code: 429}).Retriable() {
		t.Fatalf("429 must not be retriable")
	}
	if (&StatusError{Code: 404}).Retriable() {
		t.Fatalf("404 must not be retriable")
	}
}
