package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter emits server-sent events with immediate flushing. Headers are
// written lazily on the first event so an early failure can still become a
// plain JSON error response.
type sseWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	return &sseWriter{w: w, rc: http.NewResponseController(w)}
}

// Started reports whether SSE headers have been sent. Once true, errors can
// no longer be reported with an HTTP status.
func (s *sseWriter) Started() bool {
	return s.started
}

func (s *sseWriter) begin() {
	if s.started {
		return
	}
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.started = true
}

// WriteEvent sends one named event with a JSON payload.
func (s *sseWriter) WriteEvent(name string, payload any) error {
	s.begin()
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// WriteData sends one unnamed data event with a JSON payload.
func (s *sseWriter) WriteData(payload any) error {
	s.begin()
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// WriteDone sends the OpenAI-style [DONE] sentinel.
func (s *sseWriter) WriteDone() error {
	s.begin()
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}
