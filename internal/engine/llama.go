//go:build llama

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

type llamaAdapter struct{}

// NewLlamaAdapter returns the llama.cpp-backed adapter.
func NewLlamaAdapter() Adapter {
	return &llamaAdapter{}
}

func (a *llamaAdapter) Load(modelPath string, contextSize int) (Model, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	m, err := llama.New(modelPath, llama.SetContext(contextSize))
	if err != nil {
		return nil, err
	}
	return &llamaModel{model: m}, nil
}

// llamaModel owns one in-memory weights handle, loaded once and reused by
// every generation. The underlying llama context is non-reentrant, so Predict
// runs are serialized through mu; Close waits for an in-flight Predict.
type llamaModel struct {
	mu    sync.Mutex
	model *llama.LLama
}

func (m *llamaModel) Open(params GenParams) (DecodeContext, error) {
	return &llamaContext{
		m:      m,
		params: params,
		tokens: make(chan string, 64),
		errc:   make(chan error, 1),
		stop:   make(chan struct{}),
	}, nil
}

func (m *llamaModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}

// llamaContext bridges go-llama.cpp's callback streaming into the batch API.
// Predict runs on its own goroutine; the token callback feeds a channel that
// NextBatch drains.
type llamaContext struct {
	m       *llamaModel
	params  GenParams
	prompt  string
	tokens  chan string
	errc    chan error
	stop    chan struct{}
	started bool
	done    bool
}

func (c *llamaContext) Prime(_ context.Context, prompt string) error {
	if c.started {
		return errors.New("decode context already primed")
	}
	c.prompt = prompt
	return nil
}

func (c *llamaContext) start() {
	c.started = true
	po := predictOptions(c.params)
	go func() {
		c.m.mu.Lock()
		defer c.m.mu.Unlock()
		if c.m.model == nil {
			close(c.tokens)
			c.errc <- errors.New("model handle closed")
			return
		}
		c.m.model.SetTokenCallback(func(tok string) bool {
			select {
			case <-c.stop:
				return false
			case c.tokens <- tok:
				return true
			}
		})
		_, err := c.m.model.Predict(c.prompt, po...)
		c.m.model.SetTokenCallback(nil)
		close(c.tokens)
		c.errc <- err
	}()
}

func (c *llamaContext) NextBatch(ctx context.Context, max int) ([]string, bool, error) {
	if c.done {
		return nil, true, nil
	}
	if !c.started {
		c.start()
	}
	var out []string
	// Block for the first token, then take whatever else is ready.
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case tok, ok := <-c.tokens:
		if !ok {
			return nil, true, c.finish()
		}
		out = append(out, tok)
	}
	for len(out) < max {
		select {
		case tok, ok := <-c.tokens:
			if !ok {
				return out, true, c.finish()
			}
			out = append(out, tok)
		default:
			return out, false, nil
		}
	}
	return out, false, nil
}

// finish reaps the Predict goroutine's result once the token channel closes.
func (c *llamaContext) finish() error {
	c.done = true
	return <-c.errc
}

func (c *llamaContext) Close() error {
	close(c.stop)
	if c.started && !c.done {
		// Drain until Predict notices the callback stop and exits.
		for range c.tokens {
		}
		<-c.errc
		c.done = true
	}
	return nil
}

func predictOptions(p GenParams) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetThreads(maxi(1, p.Threads)),
	}
	if p.MaxTokens > 0 {
		po = append(po, llama.SetTokens(p.MaxTokens))
	}
	if p.Temperature > 0 {
		po = append(po, llama.SetTemperature(p.Temperature))
	}
	if p.TopP > 0 {
		po = append(po, llama.SetTopP(p.TopP))
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(int(p.Seed)))
	}
	return po
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}
