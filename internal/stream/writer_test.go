package stream

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/edoline/intervo/internal/protocol"
)

func TestWriterFrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter error = %v", err)
	}

	if err := w.Send(protocol.SkipEvent{Type: protocol.TypeSkip, Index: 2}); err != nil {
		t.Fatalf("Send error = %v", err)
	}

	body := rec.Body.String()
	if body != "data: {\"type\":\"skip\",\"index\":2}\n\n" {
		t.Fatalf("frame = %q", body)
	}
	if !rec.Flushed {
		t.Fatal("Send did not flush")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
}

func TestWriterRoundTripsThroughScanner(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter error = %v", err)
	}

	events := []any{
		protocol.InfoEvent{Type: protocol.TypeInfo, TotalSegments: 2, FullText: "A long one. Another one."},
		protocol.AudioEvent{Type: protocol.TypeAudio, Index: 0, SegmentText: "A long one.", AudioBase64: "QUJD"},
		protocol.SkipEvent{Type: protocol.TypeSkip, Index: 1},
		protocol.DoneEvent{Type: protocol.TypeDone, FullText: "A long one. Another one."},
	}
	for _, ev := range events {
		if err := w.Send(ev); err != nil {
			t.Fatalf("Send error = %v", err)
		}
	}

	s := NewScanner(strings.NewReader(rec.Body.String()))
	for i := range events {
		frame, err := s.Next()
		if err != nil {
			t.Fatalf("frame %d: Next error = %v", i, err)
		}
		if _, err := protocol.ParseStreamEvent(frame); err != nil {
			t.Fatalf("frame %d: parse error = %v", i, err)
		}
	}
}
