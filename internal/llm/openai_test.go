package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestOpenAIProviderStream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\" world.\"}}]}\n\n" +
				"data: not-json\n\n" +
				"data: [DONE]\n\n",
		))
	}))
	defer ts.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: ts.URL, APIKey: "test-key"}, zerolog.Nop())
	tokens, err := p.Stream(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("Stream error = %v", err)
	}

	var got strings.Builder
	for tok := range tokens {
		got.WriteString(tok)
	}
	if got.String() != "Hello world." {
		t.Fatalf("streamed text = %q, want %q", got.String(), "Hello world.")
	}
}

func TestOpenAIProviderStreamErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: ts.URL}, zerolog.Nop())
	if _, err := p.Stream(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for 503 response")
	}
}

func TestOpenAIProviderComplete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"A full answer."}}]}`))
	}))
	defer ts.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: ts.URL}, zerolog.Nop())
	got, err := p.Complete(context.Background(), "question")
	if err != nil {
		t.Fatalf("Complete error = %v", err)
	}
	if got != "A full answer." {
		t.Fatalf("Complete = %q", got)
	}
}

func TestMockProviderStreamsWholeReply(t *testing.T) {
	p := NewMockProvider("One two three.")
	tokens, err := p.Stream(context.Background(), "")
	if err != nil {
		t.Fatalf("Stream error = %v", err)
	}
	var got strings.Builder
	for tok := range tokens {
		got.WriteString(tok)
	}
	if got.String() != "One two three." {
		t.Fatalf("streamed text = %q", got.String())
	}
}
