// Package stop holds the pluggable stop-condition evaluators consulted by the
// scheduler after every decode batch. A stopper inspects the most recent
// batch and optionally returns a terminal FinishReason; the first stopper to
// fire wins and the remaining ones are not consulted that tick.
package stop

import "inferd/pkg/types"

// Batch is one group of tokens decoded together against the shared model.
type Batch struct {
	Tokens []string
}

// Len returns the number of tokens in the batch.
func (b Batch) Len() int { return len(b.Tokens) }

// Stopper evaluates the most recent decode batch. A nil return means keep
// generating; a non-nil FinishReason terminates the generation.
type Stopper interface {
	Evaluate(b Batch) *types.FinishReason
}

// Evaluate runs stoppers in order against the batch and returns the first
// reason produced, or nil when generation should continue.
func Evaluate(stoppers []Stopper, b Batch) *types.FinishReason {
	for _, s := range stoppers {
		if r := s.Evaluate(b); r != nil {
			return r
		}
	}
	return nil
}
