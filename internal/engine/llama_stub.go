//go:build !llama

package engine

import "context"

// This file provides a no-CGO stub compiled when the 'llama' build tag is
// NOT set. It refuses to run inference instead of mocking output, so
// default builds fail fast with a 503-class error.

type stubEngine struct{}

// NewLlama reports the runtime as unavailable in non-llama builds.
func NewLlama(Options) (Engine, error) {
	return stubEngine{}, nil
}

func (stubEngine) Generate(ctx context.Context, _ string, _ Params, _ func(string) error) (Final, error) {
	select {
	case <-ctx.Done():
		return Final{}, ctx.Err()
	default:
	}
	return Final{}, ErrUnavailable("llama support not built (missing 'llama' build tag)")
}

func (stubEngine) Close() error { return nil }
