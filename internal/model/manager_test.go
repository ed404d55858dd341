package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inferd/internal/retry"
	"inferd/pkg/types"
)

// helper: create a fake weights file of sizeKB kilobytes
func createWeights(t *testing.T, dir, name string, sizeKB int) string {
	t.Helper()
	if sizeKB <= 0 {
		sizeKB = 1
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, make([]byte, sizeKB*1024), 0o644); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	return p
}

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffMultiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestConfigValidateBatchSizeBounds(t *testing.T) {
	dir := t.TempDir()
	createWeights(t, dir, "m.gguf", 1)
	base := DefaultConfig(types.LocalSource(dir, "m.gguf"))

	for _, bad := range []int{0, -1, 8193} {
		cfg := base
		cfg.BatchSize = bad
		err := cfg.Validate()
		if err == nil || !IsInvalidConfig(err) {
			t.Fatalf("batch_size=%d: expected invalid config, got %v", bad, err)
		}
	}
	for _, ok := range []int{1, 512, 8192} {
		cfg := base
		cfg.BatchSize = ok
		if err := cfg.Validate(); err != nil {
			t.Fatalf("batch_size=%d: expected valid, got %v", ok, err)
		}
	}
}

func TestValidateSourceRemoteRepoShape(t *testing.T) {
	cases := []struct {
		repo string
		ok   bool
	}{
		{"org/model", true},
		{"", false},
		{"no-separator", false},
		{"/name", false},
		{"org/", false},
	}
	for _, c := range cases {
		err := ValidateSource(types.RemoteSource(c.repo, "m.gguf", ""))
		if c.ok && err != nil {
			t.Fatalf("repo %q: expected valid, got %v", c.repo, err)
		}
		if !c.ok && (err == nil || !IsInvalidConfig(err)) {
			t.Fatalf("repo %q: expected invalid config, got %v", c.repo, err)
		}
	}
}

func TestValidateSourceFilenameExtension(t *testing.T) {
	err := ValidateSource(types.RemoteSource("org/model", "weights.bin", ""))
	if err == nil || !IsInvalidConfig(err) {
		t.Fatalf("expected invalid filename extension, got %v", err)
	}
}

func TestValidateSourceLocalFolderMissing(t *testing.T) {
	err := ValidateSource(types.LocalSource(filepath.Join(t.TempDir(), "nope"), ""))
	if err == nil || !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCacheKeyDeterministicAndIgnoresTunables(t *testing.T) {
	a := DefaultConfig(types.RemoteSource("org/model", "m.gguf", ""))
	b := DefaultConfig(types.RemoteSource("org/model", "m.gguf", ""))
	b.BatchSize = 8192
	b.Threads = 32
	b.Debug = true
	if a.CacheKey() != b.CacheKey() {
		t.Fatalf("tunables must not change the cache key: %s vs %s", a.CacheKey(), b.CacheKey())
	}
	c := DefaultConfig(types.RemoteSource("org/other", "m.gguf", ""))
	if a.CacheKey() == c.CacheKey() {
		t.Fatalf("different sources must hash differently")
	}
}

func TestLoadLocalFolderPicksWeights(t *testing.T) {
	dir := t.TempDir()
	createWeights(t, dir, "m.gguf", 2)
	m := New(t.TempDir(), fastRetry())
	lm, err := m.Load(context.Background(), DefaultConfig(types.LocalSource(dir, "")))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if lm.Meta.Filename != "m.gguf" {
		t.Fatalf("expected m.gguf, got %s", lm.Meta.Filename)
	}
	if !lm.Meta.CacheHit {
		t.Fatalf("local loads count as cache hits")
	}
	if lm.Meta.SizeBytes != 2048 {
		t.Fatalf("expected 2048 bytes, got %d", lm.Meta.SizeBytes)
	}
	if lm.Meta.LoadTime < 0 {
		t.Fatalf("load time not recorded")
	}
	if m.Current() != lm {
		t.Fatalf("manager should retain the loaded model")
	}
}

// fakeFetcher counts attempts and can fail with a configured error sequence.
type fakeFetcher struct {
	attempts int
	errs     []error
	payload  []byte
}

func (f *fakeFetcher) Fetch(_ context.Context, _ types.ModelSource, dest string) error {
	f.attempts++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	return os.WriteFile(dest, f.payload, 0o644)
}

func TestLoadRemoteFetchesThenHitsCache(t *testing.T) {
	cache := t.TempDir()
	m := New(cache, fastRetry())
	ff := &fakeFetcher{payload: make([]byte, 1024)}
	m.SetFetcher(ff)

	cfg := DefaultConfig(types.RemoteSource("org/model", "m.gguf", ""))
	lm, err := m.Load(context.Background(), cfg)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if lm.Meta.CacheHit {
		t.Fatalf("first load must not be a cache hit")
	}
	if ff.attempts != 1 {
		t.Fatalf("expected 1 fetch, got %d", ff.attempts)
	}

	lm2, err := m.Load(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !lm2.Meta.CacheHit {
		t.Fatalf("second load must be a cache hit")
	}
	if ff.attempts != 1 {
		t.Fatalf("cache hit must not fetch again, attempts=%d", ff.attempts)
	}
}

func TestLoadRemoteRetriesTransientFailures(t *testing.T) {
	m := New(t.TempDir(), fastRetry())
	ff := &fakeFetcher{
		payload: make([]byte, 16),
		errs:    []error{&retry.StatusError{Code: 503}, &retry.StatusError{Code: 502}, nil},
	}
	m.SetFetcher(ff)
	_, err := m.Load(context.Background(), DefaultConfig(types.RemoteSource("org/model", "m.gguf", "")))
	if err != nil {
		t.Fatalf("load should survive transient failures: %v", err)
	}
	if ff.attempts != 3 {
		t.Fatalf("expected 3 fetch attempts, got %d", ff.attempts)
	}
}

func TestLoadRemote404MapsToNotFound(t *testing.T) {
	m := New(t.TempDir(), fastRetry())
	ff := &fakeFetcher{errs: []error{&retry.StatusError{Code: 404}}}
	m.SetFetcher(ff)
	_, err := m.Load(context.Background(), DefaultConfig(types.RemoteSource("org/model", "m.gguf", "")))
	if err == nil || !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if ff.attempts != 1 {
		t.Fatalf("404 must not be retried, attempts=%d", ff.attempts)
	}
}

func TestLoadFailureRetainsPriorModel(t *testing.T) {
	dir := t.TempDir()
	createWeights(t, dir, "m.gguf", 1)
	m := New(t.TempDir(), fastRetry())
	prior, err := m.Load(context.Background(), DefaultConfig(types.LocalSource(dir, "")))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ff := &fakeFetcher{errs: []error{&retry.StatusError{Code: 404}}}
	m.SetFetcher(ff)
	_, err = m.Load(context.Background(), DefaultConfig(types.RemoteSource("org/model", "gone.gguf", "")))
	if err == nil {
		t.Fatalf("expected failure")
	}
	if m.Current() != prior {
		t.Fatalf("failed load must retain prior model")
	}
}

func TestLoadInvalidConfigRejectedBeforeWork(t *testing.T) {
	m := New(t.TempDir(), fastRetry())
	ff := &fakeFetcher{}
	m.SetFetcher(ff)
	cfg := DefaultConfig(types.RemoteSource("org/model", "m.gguf", ""))
	cfg.BatchSize = 0
	_, err := m.Load(context.Background(), cfg)
	if err == nil || !IsInvalidConfig(err) {
		t.Fatalf("expected invalid config, got %v", err)
	}
	if ff.attempts != 0 {
		t.Fatalf("validation must run before any fetch")
	}
}
