// Package engine is the boundary to the native inference runtime. The
// runtime is an opaque compute primitive: the scheduler only ever sees a
// DecodeContext, and the real llama.cpp backing is selected with the 'llama'
// build tag (a no-CGO stub fails fast otherwise).
package engine

import "context"

// GenParams are the sampling parameters passed when opening a decode context.
// MaxTokens <= 0 means the caller imposes no token cap.
type GenParams struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
	Seed        int64
	Threads     int
}

// Adapter loads on-disk weights into memory.
type Adapter interface {
	// Load reads the weights at modelPath once. The returned handle is
	// shared by every generation until it is closed.
	Load(modelPath string, contextSize int) (Model, error)
}

// Model is an in-memory weights handle shared across generations.
type Model interface {
	// Open prepares a decode context for one generation. The returned
	// context is non-reentrant: callers must serialize NextBatch calls.
	Open(params GenParams) (DecodeContext, error)
	// Close frees the weights. In-flight generations on this handle end
	// with an error rather than crashing.
	Close() error
}

// DecodeContext produces tokens for one primed prompt, batch by batch.
type DecodeContext interface {
	// Prime feeds the prompt. Must be called once before NextBatch.
	Prime(ctx context.Context, prompt string) error
	// NextBatch returns up to max tokens. done reports natural end of
	// generation; a done result may still carry tokens.
	NextBatch(ctx context.Context, max int) (tokens []string, done bool, err error)
	// Close releases the context's resources.
	Close() error
}

// unavailableError signals the native runtime is not present in this build.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an unavailable-runtime error.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing runtime dependency.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
