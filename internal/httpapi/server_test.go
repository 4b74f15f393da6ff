package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"llmgate/internal/admission"
	"llmgate/internal/config"
	"llmgate/internal/engine"
	"llmgate/internal/gateway"
	"llmgate/internal/registry"
	"llmgate/internal/session"
	"llmgate/internal/store"
	"llmgate/pkg/types"
)

// scriptedEngine emits fixed fragments; optionally blocks until released.
type scriptedEngine struct {
	fragments []string
	started   chan struct{}
	release   chan struct{}
}

func (e *scriptedEngine) Generate(ctx context.Context, _ string, _ engine.Params, onToken func(string) error) (engine.Final, error) {
	if e.started != nil {
		close(e.started)
		e.started = nil
	}
	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return engine.Final{}, ctx.Err()
		}
	}
	var b strings.Builder
	for _, tok := range e.fragments {
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return engine.Final{}, err
			}
		}
		b.WriteString(tok)
	}
	return engine.Final{Content: b.String(), FinishReason: "stop"}, nil
}

func (e *scriptedEngine) Close() error { return nil }

func newTestHandler(t *testing.T, capacity int, eng engine.Engine) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Models: []config.ModelConfig{
			{ID: "m1", Path: "m1.gguf"},
			{ID: "m2", Path: "m2.gguf"},
		},
		MaxConcurrent: capacity,
		AdmitWait:     config.Duration(100 * time.Millisecond),
		DispatchWait:  config.Duration(100 * time.Millisecond),
	}
	cfg.ApplyDefaults()
	st := store.NewMemory()
	adm := admission.New(st, admission.Config{
		Capacity:     capacity,
		MaxWait:      cfg.AdmitWait.Std(),
		LeaseTTL:     time.Minute,
		ReapInterval: time.Second,
		Key:          "test:leases",
	}, zerolog.Nop())
	reg, err := registry.New(cfg, func(engine.Options) (engine.Engine, error) { return eng, nil }, zerolog.Nop())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	sess := session.NewStore(st, "test", time.Hour)
	return NewMux(gateway.New(adm, reg, sess, 0, zerolog.Nop()))
}

func postChat(h http.Handler, token string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz_NoAuthNoDependencies(t *testing.T) {
	SetAuthToken("secret")
	defer SetAuthToken("")
	h := newTestHandler(t, 1, &scriptedEngine{fragments: []string{"x"}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rr.Code)
	}
}

func TestAuth_MissingAndInvalid(t *testing.T) {
	SetAuthToken("secret")
	defer SetAuthToken("")
	h := newTestHandler(t, 1, &scriptedEngine{fragments: []string{"x"}})

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing header = %d, want 401", rr.Code)
	}

	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("wrong token = %d, want 403", rr.Code)
	}
}

func TestAuth_BearerPrefixOptional(t *testing.T) {
	SetAuthToken("secret")
	defer SetAuthToken("")
	h := newTestHandler(t, 1, &scriptedEngine{fragments: []string{"x"}})
	for _, header := range []string{"Bearer secret", "secret"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("header %q = %d, want 200", header, rr.Code)
		}
	}
}

func TestListModels(t *testing.T) {
	h := newTestHandler(t, 1, &scriptedEngine{fragments: []string{"x"}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("models = %d", rr.Code)
	}
	var resp types.ModelsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Object != "list" || len(resp.Data) != 2 || resp.Data[0].ID != "m1" {
		t.Fatalf("unexpected listing %+v", resp)
	}
}

func TestChat_BufferedHappyPath(t *testing.T) {
	h := newTestHandler(t, 1, &scriptedEngine{fragments: []string{"hello", " world"}})
	rr := postChat(h, "", `{"model":"m1","messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID == "" || resp.Model != "m1" {
		t.Fatalf("missing session/model: %+v", resp)
	}
	if resp.Choices[0].Message.Content != "hello world" {
		t.Fatalf("content = %q", resp.Choices[0].Message.Content)
	}
}

func TestChat_RequiresJSONContentType(t *testing.T) {
	h := newTestHandler(t, 1, &scriptedEngine{})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rr.Code)
	}
}

func TestChat_InvalidBodyAndMissingMessages(t *testing.T) {
	h := newTestHandler(t, 1, &scriptedEngine{})
	if rr := postChat(h, "", `{not json`); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid json = %d, want 400", rr.Code)
	}
	if rr := postChat(h, "", `{"model":"m1"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("no messages = %d, want 400", rr.Code)
	}
}

func TestChat_UnknownModel404(t *testing.T) {
	h := newTestHandler(t, 1, &scriptedEngine{})
	rr := postChat(h, "", `{"model":"ghost","messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &er); err != nil || er.Code != http.StatusNotFound {
		t.Fatalf("bad error payload %s", rr.Body.String())
	}
}

func TestChat_SessionModelConflict409(t *testing.T) {
	h := newTestHandler(t, 1, &scriptedEngine{fragments: []string{"x"}})
	rr := postChat(h, "", `{"model":"m1","messages":[{"role":"user","content":"hi"}]}`)
	var resp types.ChatCompletionResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	rr = postChat(h, "", `{"model":"m2","session_id":"`+resp.SessionID+`","messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

func TestChat_Busy429WhenSaturated(t *testing.T) {
	eng := &scriptedEngine{started: make(chan struct{}), release: make(chan struct{})}
	started := eng.started
	h := newTestHandler(t, 1, eng)
	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		firstDone <- postChat(h, "", `{"model":"m1","messages":[{"role":"user","content":"slow"}]}`)
	}()
	<-started
	rr := postChat(h, "", `{"model":"m1","messages":[{"role":"user","content":"fast"}]}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (body %s)", rr.Code, rr.Body.String())
	}
	close(eng.release)
	if first := <-firstDone; first.Code != http.StatusOK {
		t.Fatalf("first request = %d", first.Code)
	}
}

func TestChat_StreamEventsAndDoneSentinel(t *testing.T) {
	h := newTestHandler(t, 1, &scriptedEngine{fragments: []string{"a", "b"}})
	rr := postChat(h, "", `{"model":"m1","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	events := parseSSE(t, rr.Body.String())
	if events[len(events)-1] != "[DONE]" {
		t.Fatalf("missing [DONE] sentinel: %v", events)
	}
	var first types.ChatCompletionChunk
	if err := json.Unmarshal([]byte(events[0]), &first); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if first.SessionID == "" || first.Choices[0].Delta.Content != "" {
		t.Fatalf("first event must carry session id with empty delta: %+v", first)
	}
	var deltas []string
	for _, ev := range events[1 : len(events)-1] {
		var ch types.ChatCompletionChunk
		if err := json.Unmarshal([]byte(ev), &ch); err != nil {
			t.Fatalf("event %q: %v", ev, err)
		}
		if len(ch.Choices) > 0 && ch.Choices[0].Delta.Content != "" {
			deltas = append(deltas, ch.Choices[0].Delta.Content)
		}
	}
	if strings.Join(deltas, "") != "ab" {
		t.Fatalf("deltas = %v", deltas)
	}
}

func TestChat_StreamUnknownModelIsJSONError(t *testing.T) {
	h := newTestHandler(t, 1, &scriptedEngine{})
	rr := postChat(h, "", `{"model":"ghost","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 before any event is sent", rr.Code)
	}
}

func TestReadyz_ProbeFailure(t *testing.T) {
	SetReadinessProbe(func(context.Context) error { return context.DeadlineExceeded })
	defer SetReadinessProbe(nil)
	h := newTestHandler(t, 1, &scriptedEngine{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz = %d, want 503", rr.Code)
	}
}

// parseSSE extracts the data payloads from an event-stream body.
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	if len(out) == 0 {
		t.Fatalf("no SSE events in body %q", body)
	}
	return out
}
