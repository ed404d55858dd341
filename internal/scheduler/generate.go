package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"inferd/internal/engine"
	"inferd/internal/stop"
	"inferd/pkg/types"
)

// Generate runs one generation to completion, invoking onBatch for every
// decoded token batch. It returns the terminal finish reason, or an error
// when the request never produced one (admission failure, engine failure,
// sink write failure).
//
// A context canceled between batches is not an error: the generation ends
// with a canceled finish reason at the next batch boundary.
func (s *Scheduler) Generate(ctx context.Context, req types.GenerationRequest, onBatch func(tokens []string) error) (*types.FinishReason, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrInvalidRequest("empty prompt")
	}
	if req.MaxTokens != nil && *req.MaxTokens < 0 {
		return nil, ErrInvalidRequest("max_tokens must not be negative")
	}

	release, err := s.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	cur := s.models.Current()
	if cur == nil {
		return nil, ErrNotReady("no model loaded")
	}

	em, err := s.engineModel(cur)
	if err != nil {
		return nil, err
	}
	maxTokens := 0
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	dc, err := em.Open(engine.GenParams{
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
		MaxTokens:   maxTokens,
		Seed:        req.Seed,
		Threads:     s.cfg.Threads,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = dc.Close() }()

	if err := dc.Prime(ctx, req.Prompt); err != nil {
		return nil, err
	}

	// The token-count stopper is installed only when a limit was supplied:
	// an omitted max_tokens runs to natural end, an explicit 0 stops at the
	// first batch.
	var stoppers []stop.Stopper
	if req.MaxTokens != nil {
		stoppers = append(stoppers, stop.NewMaxTokens(uint32(*req.MaxTokens)))
	}
	stoppers = append(stoppers, stop.NewStopSequences(req.Stop))

	start := time.Now()
	generated := 0
	for {
		// Cancellation is observed here, never mid-batch.
		if ctx.Err() != nil {
			return canceledReason(), nil
		}

		tokens, done, err := s.decodeStep(ctx, dc)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return canceledReason(), nil
			}
			return nil, err
		}

		if len(tokens) > 0 {
			generated += len(tokens)
			if err := onBatch(tokens); err != nil {
				return nil, err
			}
		}
		if reason := stop.Evaluate(stoppers, stop.Batch{Tokens: tokens}); reason != nil {
			s.logFinish(req, reason, generated, start)
			return reason, nil
		}
		if done {
			reason := &types.FinishReason{Kind: types.FinishStop, Message: "end of generation"}
			s.logFinish(req, reason, generated, start)
			return reason, nil
		}
	}
}

// decodeStep takes the single decode turn, runs one batch, and releases the
// turn before any stopper or sink work happens.
func (s *Scheduler) decodeStep(ctx context.Context, dc engine.DecodeContext) ([]string, bool, error) {
	select {
	case s.decodeCh <- struct{}{}:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	defer func() { <-s.decodeCh }()
	return dc.NextBatch(ctx, s.cfg.BatchSize)
}

func canceledReason() *types.FinishReason {
	return &types.FinishReason{
		Kind:    types.FinishCanceled,
		Message: "request canceled at batch boundary",
	}
}

func (s *Scheduler) logFinish(req types.GenerationRequest, reason *types.FinishReason, generated int, start time.Time) {
	s.log.Debug().
		Str("session_id", req.SessionID).
		Str("finish", string(reason.Kind)).
		Int("tokens", generated).
		Dur("elapsed", time.Since(start)).
		Msg("generation finished")
}
