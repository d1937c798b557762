package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestElevenLabsClientSynthesize(t *testing.T) {
	var gotPath string
	var gotBody elevenLabsRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Header.Get("xi-api-key") != "key-123" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte{0x01, 0x02, 0x03})
	}))
	defer ts.Close()

	c := NewElevenLabsClient(ElevenLabsConfig{APIKey: "key-123", BaseURL: ts.URL})
	audio, err := c.Synthesize(context.Background(), Request{Text: "Hello there.", VoiceID: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize error = %v", err)
	}
	if len(audio) != 3 {
		t.Fatalf("audio length = %d, want 3", len(audio))
	}
	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Fatalf("request path = %q", gotPath)
	}
	if gotBody.Text != "Hello there." {
		t.Fatalf("request text = %q", gotBody.Text)
	}
	if gotBody.ModelID != "eleven_multilingual_v2" {
		t.Fatalf("request model = %q, want default", gotBody.ModelID)
	}
}

func TestElevenLabsClientStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer ts.Close()

	c := NewElevenLabsClient(ElevenLabsConfig{BaseURL: ts.URL})
	_, err := c.Synthesize(context.Background(), Request{Text: "Hello there.", VoiceID: "voice-1"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", statusErr.Code)
	}
	if statusErr.Detail != "slow down" {
		t.Fatalf("detail = %q", statusErr.Detail)
	}
}

func TestElevenLabsClientRejectsEmptyInput(t *testing.T) {
	c := NewElevenLabsClient(ElevenLabsConfig{})

	var statusErr *StatusError
	if _, err := c.Synthesize(context.Background(), Request{VoiceID: "v"}); !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("empty text error = %v, want 400 StatusError", err)
	}
	if _, err := c.Synthesize(context.Background(), Request{Text: "Hello there."}); !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("missing voice error = %v, want 400 StatusError", err)
	}
}

func TestElevenLabsClientEmptyAudioIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewElevenLabsClient(ElevenLabsConfig{BaseURL: ts.URL})
	if _, err := c.Synthesize(context.Background(), Request{Text: "Hello there.", VoiceID: "voice-1"}); err == nil {
		t.Fatal("expected error for empty audio body")
	}
}
