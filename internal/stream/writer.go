package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Writer encodes stream events as SSE data frames over a chunked response.
// Each event is one "data: <JSON>\n\n" block, flushed immediately so the
// client sees events as they are emitted. Writes must come from a single
// goroutine; the emitter loop owns the writer.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	return &Writer{w: w, flusher: flusher}, nil
}

// Send serializes one event and flushes it to the client. A write error
// means the client is gone; the session should stop.
func (w *Writer) Send(event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write stream event: %w", err)
	}
	w.flusher.Flush()
	return nil
}
