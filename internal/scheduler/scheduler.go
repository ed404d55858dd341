// Package scheduler admits generation requests against a bounded set of
// sequence slots and serializes their decode batches through the engine's
// single non-reentrant decode turn. Admission is FIFO; a request that cannot
// be admitted within the configured wait is rejected as too busy. Cancellation
// is observed at batch boundaries only, never mid-batch.
package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/engine"
	"inferd/internal/model"
)

// Config holds scheduler tunables.
type Config struct {
	// NSeqMax is the number of sequence slots decoded concurrently.
	NSeqMax int
	// QueueSize is how many requests may wait beyond the active slots.
	QueueSize int
	// MaxWait bounds how long admission may block before rejecting.
	MaxWait time.Duration
	// BatchSize is the token budget per decode batch.
	BatchSize int
	// Threads passed through to the engine.
	Threads int
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		NSeqMax:   4,
		QueueSize: 16,
		MaxWait:   5 * time.Second,
		BatchSize: 32,
		Threads:   4,
	}
}

// Scheduler owns admission and the decode loop.
type Scheduler struct {
	cfg     Config
	models  *model.Manager
	adapter engine.Adapter
	log     zerolog.Logger

	// queueCh bounds total admitted work (waiting + active); slotCh bounds
	// active sequences; decodeCh (cap 1) is the decode turn. FIFO order
	// follows from blocked channel sends waking in arrival order.
	queueCh  chan struct{}
	slotCh   chan struct{}
	decodeCh chan struct{}

	mu       sync.RWMutex
	draining bool

	// engMu guards the shared engine weights handle, loaded once per model
	// path and reused by every generation.
	engMu    sync.Mutex
	engModel engine.Model
	engPath  string
}

// New builds a scheduler over the given model manager and engine adapter.
func New(cfg Config, models *model.Manager, adapter engine.Adapter) *Scheduler {
	if cfg.NSeqMax <= 0 {
		cfg.NSeqMax = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Scheduler{
		cfg:      cfg,
		models:   models,
		adapter:  adapter,
		log:      zerolog.Nop(),
		queueCh:  make(chan struct{}, cfg.NSeqMax+cfg.QueueSize),
		slotCh:   make(chan struct{}, cfg.NSeqMax),
		decodeCh: make(chan struct{}, 1),
	}
}

// SetLogger injects a logger. Safe to call before serving traffic.
func (s *Scheduler) SetLogger(l zerolog.Logger) { s.log = l }

// SetDraining toggles admission of new work for graceful shutdown.
func (s *Scheduler) SetDraining(v bool) {
	s.mu.Lock()
	s.draining = v
	s.mu.Unlock()
}

// engineModel returns the shared weights handle for the current model,
// loading it on first use and swapping it when the model path changes. The
// old handle is closed on swap; a generation still holding it ends with an
// error from its next decode rather than crashing.
func (s *Scheduler) engineModel(cur *model.LoadedModel) (engine.Model, error) {
	s.engMu.Lock()
	defer s.engMu.Unlock()
	if s.engModel != nil && s.engPath == cur.Path {
		return s.engModel, nil
	}
	em, err := s.adapter.Load(cur.Path, cur.Meta.ContextSize)
	if err != nil {
		return nil, err
	}
	if s.engModel != nil {
		_ = s.engModel.Close()
	}
	s.engModel = em
	s.engPath = cur.Path
	return em, nil
}

// Close frees the engine weights handle. Call after draining.
func (s *Scheduler) Close() error {
	s.engMu.Lock()
	defer s.engMu.Unlock()
	if s.engModel == nil {
		return nil
	}
	err := s.engModel.Close()
	s.engModel = nil
	s.engPath = ""
	return err
}

// Status is a point-in-time view of scheduler load.
type Status struct {
	Active    int `json:"active"`
	Queued    int `json:"queued"`
	Slots     int `json:"slots"`
	QueueSize int `json:"queue_size"`
}

// Status reports current load. Counts are approximate under concurrency.
func (s *Scheduler) Status() Status {
	admitted := len(s.queueCh)
	active := len(s.slotCh)
	return Status{
		Active:    active,
		Queued:    admitted - active,
		Slots:     s.cfg.NSeqMax,
		QueueSize: s.cfg.QueueSize,
	}
}
