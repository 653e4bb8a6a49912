package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseFrameWriter implements streamxlate.FrameWriter over an
// http.ResponseWriter, framing every event per §6.3 and flushing immediately
// so the client sees each frame as it is produced.
type sseFrameWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEFrameWriter returns ok=false when the response writer can't flush
// incrementally (the handler then falls back to a plain error response).
func newSSEFrameWriter(w http.ResponseWriter) (*sseFrameWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseFrameWriter{w: w, flusher: flusher}, true
}

// prepare writes the SSE response headers. Must be called before the first
// WriteEvent.
func (f *sseFrameWriter) prepare() {
	f.w.Header().Set("Content-Type", "text/event-stream")
	f.w.Header().Set("Cache-Control", "no-cache")
	f.w.Header().Set("Connection", "keep-alive")
	f.w.WriteHeader(http.StatusOK)
	f.flusher.Flush()
}

func (f *sseFrameWriter) WriteEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}
	if _, err := fmt.Fprintf(f.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write %s frame: %w", name, err)
	}
	f.flusher.Flush()
	return nil
}
