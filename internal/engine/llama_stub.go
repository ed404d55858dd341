//go:build !llama

package engine

// This file provides a no-CGO stub for the llama adapter. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// The real adapter lives in llama.go (tagged 'llama').

import "context"

var llamaBuilt = false

const stubMsg = "llama support not built (missing 'llama' build tag)"

type llamaAdapter struct{}

// NewLlamaAdapter returns the llama.cpp-backed adapter. Without the 'llama'
// build tag it refuses to load weights rather than mock behavior.
func NewLlamaAdapter() Adapter {
	return &llamaAdapter{}
}

func (a *llamaAdapter) Load(modelPath string, contextSize int) (Model, error) {
	return nil, ErrUnavailable(stubMsg)
}

type llamaModel struct{}

func (m *llamaModel) Open(GenParams) (DecodeContext, error) {
	return nil, ErrUnavailable(stubMsg)
}

func (m *llamaModel) Close() error { return nil }

type llamaContext struct{}

func (c *llamaContext) Prime(_ context.Context, _ string) error {
	return ErrUnavailable(stubMsg)
}

func (c *llamaContext) NextBatch(ctx context.Context, _ int) ([]string, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}
	return nil, false, ErrUnavailable(stubMsg)
}

func (c *llamaContext) Close() error { return nil }
