//go:build llama

package engine

import (
	"context"
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaEngine owns one loaded GGUF model for the lifetime of the process.
type llamaEngine struct {
	model   *llama.LLama
	threads int
}

// NewLlama loads the model at opts.ModelPath into memory.
func NewLlama(opts Options) (Engine, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(opts.CtxSize),
	}
	if opts.BatchSize > 0 {
		mo = append(mo, llama.SetNBatch(opts.BatchSize))
	}
	m, err := llama.New(opts.ModelPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaEngine{model: m, threads: opts.Threads}, nil
}

func (e *llamaEngine) Generate(ctx context.Context, prompt string, params Params, onToken func(string) error) (Final, error) {
	if e.model == nil {
		return Final{}, errors.New("llama model not initialized")
	}
	var b strings.Builder
	// Bridge token streaming to onToken and respect cancellation.
	e.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if err := onToken(tok); err != nil {
			return false
		}
		b.WriteString(tok)
		return true
	})
	po := predictOptions(params, e.threads)
	text, err := e.model.Predict(prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return Final{}, ctx.Err()
		}
		return Final{}, err
	}
	if ctx.Err() != nil {
		return Final{}, ctx.Err()
	}
	content := text
	if content == "" {
		content = b.String()
	}
	// Token counts are not exposed without deeper hooks; estimate from bytes.
	return Final{
		Content: content,
		Usage: Usage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(content) / 4,
			TotalTokens:      (len(prompt) + len(content)) / 4,
		},
		FinishReason: "stop",
	}, nil
}

func (e *llamaEngine) Close() error {
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

func predictOptions(params Params, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(maxi(1, params.MaxTokens)),
		llama.SetThreads(maxi(1, threads)),
		llama.SetTemperature(posf(float32(params.Temperature), llama.DefaultOptions.Temperature)),
		llama.SetTopP(posf(float32(params.TopP), llama.DefaultOptions.TopP)),
	}
	if params.Seed != 0 {
		po = append(po, llama.SetSeed(int(params.Seed)))
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	return po
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func posf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
