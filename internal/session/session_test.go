package session

import (
	"context"
	"testing"
	"time"

	"llmgate/internal/store"
	"llmgate/pkg/types"
)

func newTestStore() *Store {
	return NewStore(store.NewMemory(), "test", time.Hour)
}

func TestLoad_UnknownIDIsEmptyNotError(t *testing.T) {
	s := newTestStore()
	tr, found, err := s.Load(context.Background(), "no-such-session")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found || len(tr.Turns) != 0 {
		t.Fatalf("expected empty transcript, got found=%v turns=%d", found, len(tr.Turns))
	}
}

func TestAppend_RoundTripPreservesOrder(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	id, err := s.Append(ctx, "", "m1",
		nil,
		Turn{Role: types.RoleUser, Content: "A"},
		Turn{Role: types.RoleAssistant, Content: "reply A"},
	)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated session id")
	}
	tr, found, err := s.Load(ctx, id)
	if err != nil || !found {
		t.Fatalf("load: found=%v err=%v", found, err)
	}
	id2, err := s.Append(ctx, id, "m1", tr.Turns,
		Turn{Role: types.RoleUser, Content: "B"},
		Turn{Role: types.RoleAssistant, Content: "reply B"},
	)
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if id2 != id {
		t.Fatalf("append changed session id %s -> %s", id, id2)
	}
	tr, _, _ = s.Load(ctx, id)
	want := []string{"A", "reply A", "B", "reply B"}
	if len(tr.Turns) != len(want) {
		t.Fatalf("turns = %d, want %d", len(tr.Turns), len(want))
	}
	for i, w := range want {
		if tr.Turns[i].Content != w {
			t.Fatalf("turn %d = %q, want %q", i, tr.Turns[i].Content, w)
		}
	}
}

func TestValidateModel_Conflict(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	id, err := s.Append(ctx, "", "m1", nil, Turn{Role: types.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.ValidateModel(ctx, id, "m1"); err != nil {
		t.Fatalf("same model should validate: %v", err)
	}
	err = s.ValidateModel(ctx, id, "m2")
	if !IsModelConflict(err) {
		t.Fatalf("expected model conflict, got %v", err)
	}
	// The conflict must not have mutated the stored transcript.
	tr, _, _ := s.Load(ctx, id)
	if tr.ModelID != "m1" || len(tr.Turns) != 1 {
		t.Fatalf("transcript mutated by conflict: %+v", tr)
	}
}

func TestValidateModel_FreshSessionAlwaysOK(t *testing.T) {
	s := newTestStore()
	if err := s.ValidateModel(context.Background(), "dangling", "m1"); err != nil {
		t.Fatalf("dangling id should validate as fresh: %v", err)
	}
}

func TestLoad_CorruptRecordTreatedAsFresh(t *testing.T) {
	mem := store.NewMemory()
	s := NewStore(mem, "test", time.Hour)
	ctx := context.Background()
	if err := mem.PutSession(ctx, "test:session:bad", []byte("{not json"), time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, found, err := s.Load(ctx, "bad")
	if err != nil || found {
		t.Fatalf("corrupt record should read as fresh, found=%v err=%v", found, err)
	}
}
