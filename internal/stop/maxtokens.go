package stop

import (
	"fmt"
	"math"

	"inferd/pkg/types"
)

// MaxTokens fires when the cumulative token count reaches or exceeds a limit.
// The running counter is uint32 and wraparound is treated as a safety abort
// rather than silently continuing with a small count.
type MaxTokens struct {
	maxTokens uint32
	generated uint32
}

// NewMaxTokens builds a token-count stopper. A zero limit fires on the first
// non-empty batch.
func NewMaxTokens(maxTokens uint32) *MaxTokens {
	return &MaxTokens{maxTokens: maxTokens}
}

// Generated returns the running token count.
func (m *MaxTokens) Generated() uint32 { return m.generated }

// Evaluate adds the batch's token count to the running total and fires when
// the total first reaches or exceeds the limit. An empty batch is a no-op.
func (m *MaxTokens) Evaluate(b Batch) *types.FinishReason {
	n := b.Len()
	if n == 0 {
		return nil
	}
	if m.maxTokens == 0 {
		return &types.FinishReason{
			Kind:    types.FinishZeroLimit,
			Message: "max_tokens is 0: stopping at first batch",
		}
	}
	prev := m.generated
	if uint64(prev)+uint64(n) > math.MaxUint32 {
		return &types.FinishReason{
			Kind:    types.FinishOverflowAbort,
			Message: fmt.Sprintf("token counter overflow (%d + %d): aborting generation", prev, n),
		}
	}
	m.generated = prev + uint32(n)
	switch {
	case m.generated == m.maxTokens:
		return &types.FinishReason{
			Kind:    types.FinishLength,
			Message: fmt.Sprintf("reached max_tokens limit of %d", m.maxTokens),
		}
	case m.generated > m.maxTokens:
		return &types.FinishReason{
			Kind:    types.FinishLengthExceeded,
			Message: fmt.Sprintf("exceeded max_tokens limit of %d (generated %d)", m.maxTokens, m.generated),
		}
	}
	return nil
}
