package synth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/edoline/intervo/internal/reliability"
)

// RealtimeConfig configures the websocket stream-input synthesizer.
type RealtimeConfig struct {
	APIKey         string
	WSBaseURL      string
	DefaultModelID string
	OutputFormat   string
	Settings       Settings
	Dialer         *websocket.Dialer
}

// RealtimeSynthesizer speaks one segment per websocket stream: it opens the
// vendor's stream-input endpoint, sends the text, collects audio frames until
// the final marker, and closes. Used as the failover leg behind the HTTP
// client, where a fresh connection per segment is an acceptable cost.
type RealtimeSynthesizer struct {
	cfg    RealtimeConfig
	dialer *websocket.Dialer
}

func NewRealtimeSynthesizer(cfg RealtimeConfig) *RealtimeSynthesizer {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.DefaultModelID) == "" {
		cfg.DefaultModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &RealtimeSynthesizer{cfg: cfg, dialer: dialer}
}

func (s *RealtimeSynthesizer) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &StatusError{Code: http.StatusBadRequest, Detail: "empty segment text"}
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, &StatusError{Code: http.StatusBadRequest, Detail: "voice_id is required"}
	}
	modelID := req.ModelID
	if strings.TrimSpace(modelID) == "" {
		modelID = s.cfg.DefaultModelID
	}

	u, err := url.Parse(strings.TrimRight(s.cfg.WSBaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(req.VoiceID) + "/stream-input")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("model_id", modelID)
	q.Set("output_format", s.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", s.cfg.APIKey)

	conn, _, err := s.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial tts websocket: %w", err)
	}
	defer conn.Close()

	// Unblock reads when the caller gives up mid-stream.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	// Prime the stream as documented for TTS websocket flows, then send the
	// whole segment and close input so the vendor flushes everything.
	primer := map[string]any{"text": " "}
	if settings := clampSettings(s.cfg.Settings); settings != (Settings{}) {
		primer["voice_settings"] = map[string]any{
			"stability":        settings.Stability,
			"similarity_boost": settings.SimilarityBoost,
			"speed":            settings.Speed,
		}
	}
	for _, payload := range []map[string]any{
		primer,
		{"text": req.Text + " ", "try_trigger_generation": true},
		{"text": ""},
	} {
		if err := conn.WriteJSON(payload); err != nil {
			return nil, fmt.Errorf("write tts websocket: %w", err)
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	}

	var audio []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read tts websocket: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if errMsg := asString(raw["error"]); errMsg != "" {
			code := asString(raw["message_type"])
			status := http.StatusBadRequest
			if reliability.IsRetryableRealtimeMessageType(code) {
				status = http.StatusServiceUnavailable
			}
			return nil, &StatusError{Code: status, Detail: errMsg}
		}
		if chunk := asString(raw["audio"]); chunk != "" {
			decoded, err := base64.StdEncoding.DecodeString(chunk)
			if err != nil {
				continue
			}
			audio = append(audio, decoded...)
		}
		if asBool(raw["isFinal"]) || asBool(raw["is_final"]) {
			break
		}
	}

	if len(audio) == 0 {
		return nil, fmt.Errorf("vendor closed stream without audio")
	}
	return audio, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
