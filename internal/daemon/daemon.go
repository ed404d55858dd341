// Package daemon composes the model manager, scheduler, session store, and
// tool-parallelism analyzer into the one service the HTTP layer talks to.
package daemon

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/model"
	"inferd/internal/parallel"
	"inferd/internal/scheduler"
	"inferd/internal/session"
	"inferd/pkg/types"
)

// Engine states reported by /status.
const (
	StateLoading = "loading"
	StateReady   = "ready"
	StateError   = "error"
)

// Daemon is the engine facade.
type Daemon struct {
	models   *model.Manager
	sched    *scheduler.Scheduler
	sessions *session.Store
	analyzer *parallel.Analyzer
	log      zerolog.Logger
	started  time.Time

	mu      sync.RWMutex
	state   string
	lastErr string

	generations atomic.Uint64
}

// New wires the engine components together. The daemon starts in the loading
// state until LoadModel succeeds.
func New(models *model.Manager, sched *scheduler.Scheduler, sessions *session.Store, analyzer *parallel.Analyzer) *Daemon {
	return &Daemon{
		models:   models,
		sched:    sched,
		sessions: sessions,
		analyzer: analyzer,
		log:      zerolog.Nop(),
		started:  time.Now(),
		state:    StateLoading,
	}
}

// SetLogger installs a structured logger.
func (d *Daemon) SetLogger(l zerolog.Logger) {
	d.log = l
	d.models.SetLogger(l)
	d.sched.SetLogger(l)
}

// LoadModel loads the configured model and transitions the engine state.
func (d *Daemon) LoadModel(ctx context.Context, cfg model.Config) error {
	_, err := d.models.Load(ctx, cfg)
	d.mu.Lock()
	if err != nil {
		d.state = StateError
		d.lastErr = err.Error()
	} else {
		d.state = StateReady
		d.lastErr = ""
	}
	d.mu.Unlock()
	return err
}

// Ready reports whether the engine can serve generations.
func (d *Daemon) Ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state == StateReady
}

// Drain stops admitting new generations for graceful shutdown.
func (d *Daemon) Drain() { d.sched.SetDraining(true) }

// Close frees the engine weights handle. Call after Drain once in-flight
// generations have finished.
func (d *Daemon) Close() error { return d.sched.Close() }

// Generate resolves the request's session, validates it, and runs the
// generation, recording the exchange in the session history on success.
// onBatch is invoked for every decoded token batch.
func (d *Daemon) Generate(ctx context.Context, req types.GenerationRequest, onBatch func(tokens []string) error) (*types.GenerationResult, error) {
	// Message validation runs before session resolution so a rejected
	// request never leaves an empty session behind in the store.
	userMsg := session.Message{Role: "user", Content: req.Prompt}
	if err := session.ValidateMessage(userMsg); err != nil {
		return nil, err
	}
	sess := d.sessions.GetOrCreate(req.SessionID)
	req.SessionID = sess.ID
	if err := session.ValidateSession(&sess); err != nil {
		return nil, err
	}

	var b strings.Builder
	count := 0
	reason, err := d.sched.Generate(ctx, req, func(tokens []string) error {
		for _, t := range tokens {
			b.WriteString(t)
		}
		count += len(tokens)
		if onBatch != nil {
			return onBatch(tokens)
		}
		return nil
	})
	if err != nil {
		d.recordError(err)
		return nil, err
	}

	d.sessions.Append(sess.ID, userMsg)
	d.sessions.Append(sess.ID, session.Message{Role: "assistant", Content: b.String()})
	d.generations.Add(1)
	return &types.GenerationResult{
		SessionID:  sess.ID,
		Content:    b.String(),
		TokenCount: count,
		Reason:     *reason,
	}, nil
}

// Plan classifies one turn's tool calls for parallel execution.
func (d *Daemon) Plan(calls []types.ToolCall) parallel.Decision {
	return d.analyzer.Analyze(calls)
}

// Sessions lists tracked sessions.
func (d *Daemon) Sessions() []types.SessionInfo {
	all := d.sessions.List()
	out := make([]types.SessionInfo, 0, len(all))
	for _, s := range all {
		out = append(out, sessionInfo(s))
	}
	return out
}

// Session returns one session summary.
func (d *Daemon) Session(id string) (types.SessionInfo, bool) {
	s, ok := d.sessions.Get(id)
	if !ok {
		return types.SessionInfo{}, false
	}
	return sessionInfo(s), true
}

// CloseSession removes a session explicitly.
func (d *Daemon) CloseSession(id string) bool {
	return d.sessions.Close(id)
}

// Status assembles the /status view.
func (d *Daemon) Status() types.StatusResponse {
	d.mu.RLock()
	state, lastErr := d.state, d.lastErr
	d.mu.RUnlock()

	st := d.sched.Status()
	resp := types.StatusResponse{
		State:            state,
		ActiveSlots:      st.Active,
		MaxSlots:         st.Slots,
		QueueLen:         st.Queued,
		MaxQueueDepth:    st.QueueSize,
		Sessions:         d.sessions.Len(),
		LastError:        lastErr,
		UptimeSeconds:    int64(time.Since(d.started).Seconds()),
		ServerTimeUnix:   time.Now().Unix(),
		GenerationsTotal: d.generations.Load(),
	}
	if cur := d.models.Current(); cur != nil {
		src := cur.Meta.Source.Repo
		if src == "" {
			src = cur.Meta.Source.Folder
		}
		resp.Model = &types.ModelStatus{
			Source:      src,
			Filename:    cur.Meta.Filename,
			SizeBytes:   cur.Meta.SizeBytes,
			LoadTimeMS:  cur.Meta.LoadTime.Milliseconds(),
			CacheHit:    cur.Meta.CacheHit,
			ContextSize: cur.Meta.ContextSize,
		}
	}
	return resp
}

func (d *Daemon) recordError(err error) {
	d.mu.Lock()
	d.lastErr = err.Error()
	d.mu.Unlock()
}

func sessionInfo(s session.Session) types.SessionInfo {
	return types.SessionInfo{
		ID:        s.ID,
		Messages:  len(s.Messages),
		CreatedAt: s.CreatedAt.Unix(),
		LastUsed:  s.LastUsed.Unix(),
	}
}
