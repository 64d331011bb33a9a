package llm

import (
	"context"
	"fmt"
	"sync"

	"swvanews/internal/logger"
)

// ModelFailover ranks a primary model and its fallbacks. A model that
// succeeds becomes sticky for the process; a model the backend does not
// know is marked unavailable and skipped from then on.
type ModelFailover struct {
	mu          sync.Mutex
	models      []string
	current     string
	unavailable map[string]bool
}

// NewModelFailover builds a holder with the primary model first.
func NewModelFailover(primary string, fallbacks ...string) *ModelFailover {
	models := append([]string{primary}, fallbacks...)
	return &ModelFailover{
		models:      models,
		current:     primary,
		unavailable: make(map[string]bool),
	}
}

// Current returns the sticky model name.
func (f *ModelFailover) Current() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// candidates returns available models, sticky model first.
func (f *ModelFailover) candidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.models))
	if !f.unavailable[f.current] {
		out = append(out, f.current)
	}
	for _, m := range f.models {
		if m != f.current && !f.unavailable[m] {
			out = append(out, m)
		}
	}
	return out
}

func (f *ModelFailover) markSuccess(model string) {
	f.mu.Lock()
	f.current = model
	f.mu.Unlock()
}

func (f *ModelFailover) markUnavailable(model string) {
	f.mu.Lock()
	f.unavailable[model] = true
	f.mu.Unlock()
}

// Do runs call against models in current-first order. Invalid-model errors
// move to the next candidate; any other error is returned as-is.
func (f *ModelFailover) Do(ctx context.Context, call func(ctx context.Context, model string) (*ChatResult, error)) (*ChatResult, error) {
	candidates := f.candidates()
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no usable models remain")
	}

	var lastErr error
	for _, model := range candidates {
		result, err := call(ctx, model)
		if err == nil {
			f.markSuccess(model)
			return result, nil
		}
		if !IsInvalidModel(err) {
			return nil, err
		}
		logger.Warn("Model unavailable on backend, failing over", "model", model)
		f.markUnavailable(model)
		lastErr = err
	}
	return nil, fmt.Errorf("all models unavailable: %w", lastErr)
}
