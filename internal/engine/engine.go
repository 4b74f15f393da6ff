// Package engine defines the inference capability the gateway consumes:
// generate tokens for a prompt, optionally incrementally. The real
// llama.cpp implementation is built with the 'llama' tag; default builds
// get a fail-fast stub so CI stays CGO-free.
package engine

import "context"

// Engine is one loaded model instance. It is NOT safe for concurrent
// Generate calls; the registry's dispatch token enforces single-flight.
type Engine interface {
	// Generate produces a completion for prompt. onToken is invoked for
	// every fragment in generation order; returning an error from it
	// stops generation. Implementations must return promptly when ctx is
	// canceled.
	Generate(ctx context.Context, prompt string, params Params, onToken func(string) error) (Final, error)
	// Close frees the model.
	Close() error
}

// Options configure engine construction (one loaded instance).
type Options struct {
	ModelPath string
	CtxSize   int
	BatchSize int
	Threads   int
}

// Params are effective generation parameters for one request, already
// merged from model defaults and request overrides.
type Params struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
	Seed        int64
}

// Usage contains token accounting.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Final summarizes the generation after streaming.
type Final struct {
	Content      string
	Usage        Usage
	FinishReason string
}

// unavailableError signals the runtime is not compiled in or failed to
// initialize, so the HTTP layer can return 503 instead of 500.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an engine-unavailable error.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing/failed runtime.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
