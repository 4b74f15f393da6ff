// Package session externalizes conversation history to the shared store
// so multi-turn chat stays stateless at the HTTP edge.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"llmgate/internal/store"
)

// Turn is one message of a transcript.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript is the ordered history of one session. Turns are append-only;
// the slice is never reordered or rewritten.
type Transcript struct {
	ModelID   string    `json:"model_id"`
	Turns     []Turn    `json:"turns"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists transcripts keyed by session id.
type Store struct {
	st     store.Store
	prefix string
	ttl    time.Duration
}

// NewStore wraps the shared store. ttl is refreshed on every append;
// eviction past the TTL is benign (a dangling id starts a fresh session).
func NewStore(st store.Store, keyPrefix string, ttl time.Duration) *Store {
	return &Store{st: st, prefix: keyPrefix + ":session:", ttl: ttl}
}

// Load returns the transcript for id. An unknown or expired id yields an
// empty transcript with found=false, never an error; only store
// connectivity problems surface as errors.
func (s *Store) Load(ctx context.Context, id string) (Transcript, bool, error) {
	if id == "" {
		return Transcript{}, false, nil
	}
	b, ok, err := s.st.GetSession(ctx, s.prefix+id)
	if err != nil {
		return Transcript{}, false, fmt.Errorf("session load: %w", err)
	}
	if !ok {
		return Transcript{}, false, nil
	}
	var tr Transcript
	if err := json.Unmarshal(b, &tr); err != nil {
		// A corrupt record is treated like an expired one rather than
		// failing the request.
		return Transcript{}, false, nil
	}
	return tr, true, nil
}

// ValidateModel rejects reuse of an existing session id against a
// different model.
func (s *Store) ValidateModel(ctx context.Context, id, modelID string) error {
	tr, found, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if found && tr.ModelID != modelID {
		return modelConflictError{sessionID: id, have: tr.ModelID, want: modelID}
	}
	return nil
}

// Append writes base's turns plus extra as the new transcript for id,
// generating a fresh id when none was supplied. The caller holds the
// per-model dispatch token for the duration of generation, which is what
// keeps same-session appends from interleaving.
func (s *Store) Append(ctx context.Context, id, modelID string, base []Turn, extra ...Turn) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	tr := Transcript{
		ModelID:   modelID,
		Turns:     append(append([]Turn(nil), base...), extra...),
		UpdatedAt: time.Now().UTC(),
	}
	b, err := json.Marshal(tr)
	if err != nil {
		return "", fmt.Errorf("session marshal: %w", err)
	}
	if err := s.st.PutSession(ctx, s.prefix+id, b, s.ttl); err != nil {
		return "", fmt.Errorf("session append: %w", err)
	}
	return id, nil
}
