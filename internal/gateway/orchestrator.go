// Package gateway composes admission, dispatch, sessions and the engine
// into the request lifecycle: Admitting, Dispatching, Prompting,
// Generating, Persisting, Done, with leases and tokens released on every
// path out.
package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"llmgate/internal/admission"
	"llmgate/internal/engine"
	"llmgate/internal/prompt"
	"llmgate/internal/registry"
	"llmgate/internal/session"
	"llmgate/pkg/types"
)

// Emitter receives streamed chunks in generation order. An error aborts
// the stream (typically the client went away).
type Emitter interface {
	Emit(chunk types.ChatCompletionChunk) error
}

// Orchestrator drives chat completions end to end.
type Orchestrator struct {
	adm  *admission.Controller
	reg  *registry.Registry
	sess *session.Store
	// historyBudget overrides the per-model derived trim budget when > 0.
	historyBudget int
	log           zerolog.Logger
}

// New wires the orchestrator.
func New(adm *admission.Controller, reg *registry.Registry, sess *session.Store, historyBudget int, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		adm:           adm,
		reg:           reg,
		sess:          sess,
		historyBudget: historyBudget,
		log:           log.With().Str("component", "gateway").Logger(),
	}
}

// ListModels exposes the registry's static metadata for GET /v1/models.
func (o *Orchestrator) ListModels() []types.ModelInfo {
	return o.reg.List()
}

// Complete runs a buffered completion.
func (o *Orchestrator) Complete(ctx context.Context, req types.ChatCompletionRequest) (*types.ChatCompletionResponse, error) {
	var out *types.ChatCompletionResponse
	err := o.run(ctx, req, func(r result) error {
		out = &types.ChatCompletionResponse{
			ID:        r.completionID,
			Object:    "chat.completion",
			Created:   r.created.Unix(),
			Model:     r.modelID,
			SessionID: r.sessionID,
			Choices: []types.ChatChoice{{
				Message:      types.ChatMessage{Role: types.RoleAssistant, Content: r.content},
				FinishReason: r.finishReason,
			}},
			Usage: r.usage,
		}
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stream runs an incremental completion, forwarding each fragment to em as
// it is produced. The first chunk carries the session id with an empty
// delta; the final chunk carries the finish reason.
func (o *Orchestrator) Stream(ctx context.Context, req types.ChatCompletionRequest, em Emitter) error {
	return o.run(ctx, req, nil, em)
}

// result is what a finished generation hands to the buffered responder.
type result struct {
	completionID string
	created      time.Time
	modelID      string
	sessionID    string
	content      string
	finishReason string
	usage        types.Usage
}

// emitAbort marks an emitter failure so generation is not persisted.
type emitAbort struct{ cause error }

func (e emitAbort) Error() string { return "stream aborted: " + e.cause.Error() }

// run is the shared state machine. Exactly one of respond / em is set.
func (o *Orchestrator) run(ctx context.Context, req types.ChatCompletionRequest, respond func(result) error, em Emitter) error {
	// Resolving the model needs no resources; unknown ids fail before a
	// lease is consumed.
	mdl, err := o.reg.Resolve(req.Model)
	if err != nil {
		return err
	}
	modelID := mdl.Desc.ID
	log := o.log.With().Str("model", modelID).Logger()

	// Admitting.
	admitStart := time.Now()
	lease, err := o.adm.Acquire(ctx)
	if err != nil {
		if admission.IsBusy(err) {
			busyTotal.WithLabelValues("admission").Inc()
			log.Warn().Dur("waited", time.Since(admitStart)).Msg("admission saturated")
		}
		return o.mapStoreErr(err)
	}
	admissionWait.Observe(time.Since(admitStart).Seconds())
	// The lease is released on every exit path; a leaked lease silently
	// shrinks capacity until its TTL, so this defer is load-bearing.
	defer lease.Release(context.WithoutCancel(ctx))

	// Dispatching; the token is held for prompting + generation +
	// persistence so same-session appends cannot interleave.
	err = o.reg.WithDispatch(ctx, mdl, func(eng engine.Engine) error {
		return o.generate(ctx, req, mdl, eng, respond, em)
	})
	if registry.IsDispatchBusy(err) {
		busyTotal.WithLabelValues("dispatch").Inc()
		log.Warn().Msg("model dispatch saturated")
	}
	return err
}

func (o *Orchestrator) generate(ctx context.Context, req types.ChatCompletionRequest, mdl *registry.Model, eng engine.Engine, respond func(result) error, em Emitter) error {
	modelID := mdl.Desc.ID

	// Prompting: load history, validate model affinity, assemble prompt.
	sessionID := req.SessionID
	transcript, found, err := o.sess.Load(ctx, sessionID)
	if err != nil {
		o.log.Error().Err(err).Msg("session load failed")
		return storeUnavailableError{}
	}
	if found && transcript.ModelID != modelID {
		return session.ErrModelConflict(sessionID, transcript.ModelID, modelID)
	}
	if sessionID == "" {
		// Generated here, not at persist time, so a streaming response
		// can carry it in the first event.
		sessionID = uuid.NewString()
	}

	system, newTurns := splitSystem(req.Messages, mdl.Desc.SystemPrompt)
	history := turnsToMessages(transcript.Turns)
	params := effectiveParams(mdl.Desc, req)

	budget := o.historyBudget
	if budget <= 0 {
		budget = mdl.Desc.CtxSize - params.MaxTokens
	}
	history = prompt.Trim(system, history, newTurns, budget)

	msgs := make([]types.ChatMessage, 0, 1+len(history)+len(newTurns))
	if system != "" {
		msgs = append(msgs, types.ChatMessage{Role: types.RoleSystem, Content: system})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, newTurns...)
	p, err := prompt.Render(mdl.Desc.Template, msgs)
	if err != nil {
		return generationFault{cause: err}
	}

	completionID := "chatcmpl-" + strings.Split(uuid.NewString(), "-")[0]
	created := time.Now()

	// Generating. abortErr survives engines that swallow the onToken
	// error and finish early instead of failing.
	var acc strings.Builder
	var abortErr error
	onToken := func(tok string) error {
		acc.WriteString(tok)
		if em == nil {
			return nil
		}
		if err := em.Emit(deltaChunk(completionID, created, modelID, tok)); err != nil {
			abortErr = emitAbort{cause: err}
			return abortErr
		}
		return nil
	}
	if em != nil {
		// First event: session id, empty delta.
		first := deltaChunk(completionID, created, modelID, "")
		first.SessionID = sessionID
		first.Choices[0].Delta.Role = types.RoleAssistant
		if err := em.Emit(first); err != nil {
			return emitAbort{cause: err}
		}
	}
	genStart := time.Now()
	final, genErr := eng.Generate(ctx, p, params, onToken)
	generationDuration.WithLabelValues(modelID).Observe(time.Since(genStart).Seconds())
	if genErr == nil && abortErr != nil {
		genErr = abortErr
	}
	if genErr != nil {
		generationsTotal.WithLabelValues(modelID, "error").Inc()
		// No partial assistant turn is ever persisted.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ab, ok := genErr.(emitAbort); ok {
			o.log.Info().Err(ab.cause).Str("model", modelID).Msg("stream abandoned by caller")
			return ab
		}
		if engine.IsUnavailable(genErr) {
			return genErr
		}
		o.log.Error().Err(genErr).Str("model", modelID).Msg("engine fault")
		return generationFault{cause: genErr}
	}
	if ctx.Err() != nil {
		generationsTotal.WithLabelValues(modelID, "canceled").Inc()
		return ctx.Err()
	}

	content := final.Content
	if content == "" {
		content = acc.String()
	}
	finishReason := final.FinishReason
	if finishReason == "" {
		finishReason = "stop"
	}

	// Persisting: new user turns plus the assistant turn, one atomic
	// append while the dispatch token is still held.
	newSession := messagesToTurns(newTurns)
	newSession = append(newSession, session.Turn{Role: types.RoleAssistant, Content: content})
	if _, err := o.sess.Append(ctx, sessionID, modelID, transcript.Turns, newSession...); err != nil {
		o.log.Error().Err(err).Msg("session append failed")
		return storeUnavailableError{}
	}
	generationsTotal.WithLabelValues(modelID, "ok").Inc()

	if em != nil {
		last := types.ChatCompletionChunk{
			ID:      completionID,
			Object:  "chat.completion.chunk",
			Created: created.Unix(),
			Model:   modelID,
			Choices: []types.ChunkChoice{{FinishReason: &finishReason}},
		}
		if err := em.Emit(last); err != nil {
			// Persisted already; the client just missed the tail.
			return emitAbort{cause: err}
		}
		return nil
	}
	return respond(result{
		completionID: completionID,
		created:      created,
		modelID:      modelID,
		sessionID:    sessionID,
		content:      content,
		finishReason: finishReason,
		usage: types.Usage{
			PromptTokens:     final.Usage.PromptTokens,
			CompletionTokens: final.Usage.CompletionTokens,
			TotalTokens:      final.Usage.TotalTokens,
		},
	})
}

// mapStoreErr converts raw store faults from Acquire into the public
// taxonomy; busy and cancellation pass through.
func (o *Orchestrator) mapStoreErr(err error) error {
	if admission.IsBusy(err) || err == context.Canceled || err == context.DeadlineExceeded {
		return err
	}
	o.log.Error().Err(err).Msg("admission store fault")
	return storeUnavailableError{}
}

func deltaChunk(id string, created time.Time, model, tok string) types.ChatCompletionChunk {
	return types.ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created.Unix(),
		Model:   model,
		Choices: []types.ChunkChoice{{Delta: types.ChunkDelta{Content: tok}}},
	}
}

// splitSystem hoists the caller's system message (request overrides the
// model default) and returns the remaining new turns.
func splitSystem(msgs []types.ChatMessage, defaultSystem string) (string, []types.ChatMessage) {
	system := defaultSystem
	rest := make([]types.ChatMessage, 0, len(msgs))
	for i, m := range msgs {
		if i == 0 && m.Role == types.RoleSystem {
			system = m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// effectiveParams merges request overrides onto model defaults
// field by field.
func effectiveParams(d registry.Descriptor, req types.ChatCompletionRequest) engine.Params {
	p := engine.Params{
		Temperature: d.Temperature,
		TopP:        d.TopP,
		MaxTokens:   d.MaxTokens,
		Stop:        req.Stop,
		Seed:        req.Seed,
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		p.TopP = *req.TopP
	}
	if req.MaxTokens != nil {
		p.MaxTokens = *req.MaxTokens
	}
	return p
}

func turnsToMessages(turns []session.Turn) []types.ChatMessage {
	out := make([]types.ChatMessage, len(turns))
	for i, t := range turns {
		out[i] = types.ChatMessage{Role: t.Role, Content: t.Content}
	}
	return out
}

func messagesToTurns(msgs []types.ChatMessage) []session.Turn {
	out := make([]session.Turn, len(msgs))
	for i, m := range msgs {
		out[i] = session.Turn{Role: m.Role, Content: m.Content}
	}
	return out
}

// IsStreamAborted reports whether err came from the caller abandoning a
// stream mid-generation.
func IsStreamAborted(err error) bool {
	_, ok := err.(emitAbort)
	return ok
}
