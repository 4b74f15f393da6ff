// Package registry owns the loaded model instances. Each descriptor maps
// to exactly one engine, and the per-model dispatch token guarantees at
// most one in-flight generation per engine regardless of how much global
// admission capacity exists.
package registry

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"llmgate/internal/config"
	"llmgate/internal/engine"
	"llmgate/pkg/types"
)

// Descriptor holds one model's static parameters. Immutable after load.
type Descriptor struct {
	ID           string
	Path         string
	Template     string
	SystemPrompt string
	CtxSize      int
	BatchSize    int
	Threads      int
	Temperature  float64
	TopP         float64
	MaxTokens    int
}

// Model pairs a descriptor with its exclusively-owned engine.
type Model struct {
	Desc   Descriptor
	engine engine.Engine
	// token is the per-model mutual exclusion marker: size 1, held for
	// the whole generation.
	token chan struct{}
	// lastUsed is touched under the token.
	lastUsed time.Time
}

// EngineFactory builds an engine for a descriptor. Injectable so tests
// substitute instrumented stubs.
type EngineFactory func(engine.Options) (engine.Engine, error)

// Registry resolves model ids and serializes engine access.
type Registry struct {
	models       map[string]*Model // keyed by lowercased id
	order        []string          // configured order for listings
	defaultModel string
	dispatchWait time.Duration
	log          zerolog.Logger
}

// New loads every configured model through factory. A model whose engine
// fails to construct aborts startup; the gateway never serves a partial
// registry.
func New(cfg *config.Config, factory EngineFactory, log zerolog.Logger) (*Registry, error) {
	r := &Registry{
		models:       make(map[string]*Model, len(cfg.Models)),
		defaultModel: cfg.DefaultModel,
		dispatchWait: cfg.DispatchWait.Std(),
		log:          log.With().Str("component", "registry").Logger(),
	}
	for _, mc := range cfg.Models {
		path, err := config.ExpandHome(mc.Path)
		if err != nil {
			return nil, err
		}
		eng, err := factory(engine.Options{
			ModelPath: path,
			CtxSize:   mc.CtxSize,
			BatchSize: mc.BatchSize,
			Threads:   mc.Threads,
		})
		if err != nil {
			r.closeAll()
			return nil, err
		}
		m := &Model{
			Desc: Descriptor{
				ID:           mc.ID,
				Path:         path,
				Template:     mc.Template,
				SystemPrompt: mc.SystemPrompt,
				CtxSize:      mc.CtxSize,
				BatchSize:    mc.BatchSize,
				Threads:      mc.Threads,
				Temperature:  mc.Temperature,
				TopP:         mc.TopP,
				MaxTokens:    mc.MaxTokens,
			},
			engine: eng,
			token:  make(chan struct{}, 1),
		}
		key := strings.ToLower(mc.ID)
		r.models[key] = m
		r.order = append(r.order, key)
		r.log.Info().Str("model", mc.ID).Str("path", path).Msg("model loaded")
	}
	return r, nil
}

// Resolve looks up a model id case-insensitively. An empty id falls back
// to the configured default model.
func (r *Registry) Resolve(id string) (*Model, error) {
	if id == "" {
		id = r.defaultModel
		if id == "" {
			return nil, modelNotFoundError{id: "(unspecified)"}
		}
	}
	m, ok := r.models[strings.ToLower(id)]
	if !ok {
		return nil, modelNotFoundError{id: id}
	}
	return m, nil
}

// WithDispatch runs fn while holding m's dispatch token, guaranteeing no
// other request drives the same engine concurrently. The token is
// released on every exit path. The bounded wait is short and distinct
// from global admission: a caller already holds an admission lease here.
func (r *Registry) WithDispatch(ctx context.Context, m *Model, fn func(eng engine.Engine) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(r.dispatchWait)
	defer timer.Stop()
	select {
	case m.token <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return dispatchBusyError{modelID: m.Desc.ID}
	}
	defer func() { <-m.token }()
	m.lastUsed = time.Now()
	return fn(m.engine)
}

// List returns static metadata for the configured models, in config order.
func (r *Registry) List() []types.ModelInfo {
	out := make([]types.ModelInfo, 0, len(r.order))
	for _, key := range r.order {
		m := r.models[key]
		out = append(out, types.ModelInfo{
			ID:          m.Desc.ID,
			Object:      "model",
			Template:    m.Desc.Template,
			ContextSize: m.Desc.CtxSize,
		})
	}
	return out
}

// Close frees every engine. Callers must ensure no generation is in
// flight (the HTTP server drains first).
func (r *Registry) Close() {
	r.closeAll()
}

func (r *Registry) closeAll() {
	for _, m := range r.models {
		if m.engine != nil {
			if err := m.engine.Close(); err != nil {
				r.log.Error().Err(err).Str("model", m.Desc.ID).Msg("engine close failed")
			}
		}
	}
}
