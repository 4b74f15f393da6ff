package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"llmgate/pkg/types"
)

// sseWriter frames chat chunks as server-sent events:
//
//	data: {json}\n
//	\n
//
// terminated by data: [DONE]. It implements gateway.Emitter.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// Emit writes one chunk and flushes so fragments reach the client without
// buffering delay.
func (s *sseWriter) Emit(chunk types.ChatCompletionChunk) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.started = true
	}
	b, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Started reports whether any event reached the wire; once true, errors
// must be delivered in-band rather than as an HTTP status.
func (s *sseWriter) Started() bool { return s.started }

// writeError emits a terminal in-band error event.
func (s *sseWriter) writeError(msg, kind string) {
	payload := map[string]any{"error": map[string]string{"message": msg, "type": kind}}
	b, _ := json.Marshal(payload)
	fmt.Fprintf(s.w, "data: %s\n\n", b)
	_ = s.rc.Flush()
}

// writeDone emits the end-of-stream sentinel.
func (s *sseWriter) writeDone() {
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	_ = s.rc.Flush()
}
