package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ElevenLabsConfig configures the HTTP text-to-speech client.
type ElevenLabsConfig struct {
	APIKey         string
	BaseURL        string
	DefaultModelID string
	OutputFormat   string
	Settings       Settings
	HTTPClient     *http.Client
}

// ElevenLabsClient synthesizes one segment per request against the vendor's
// HTTP endpoint. Per-attempt timeouts come from the caller's context, so the
// embedded http.Client carries no timeout of its own.
type ElevenLabsClient struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsClient(cfg ElevenLabsConfig) *ElevenLabsClient {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.DefaultModelID) == "" {
		cfg.DefaultModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &ElevenLabsClient{cfg: cfg, client: client}
}

type elevenLabsRequest struct {
	Text          string              `json:"text"`
	ModelID       string              `json:"model_id"`
	VoiceSettings *elevenLabsSettings `json:"voice_settings,omitempty"`
}

type elevenLabsSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, &StatusError{Code: http.StatusBadRequest, Detail: "empty segment text"}
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return nil, &StatusError{Code: http.StatusBadRequest, Detail: "voice_id is required"}
	}
	modelID := req.ModelID
	if strings.TrimSpace(modelID) == "" {
		modelID = c.cfg.DefaultModelID
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(req.VoiceID)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("output_format", c.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	payload := elevenLabsRequest{Text: req.Text, ModelID: modelID}
	if s := clampSettings(c.cfg.Settings); s != (Settings{}) {
		payload.VoiceSettings = &elevenLabsSettings{
			Stability:       s.Stability,
			SimilarityBoost: s.SimilarityBoost,
			Speed:           s.Speed,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Code: resp.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("vendor returned empty audio")
	}
	return audio, nil
}

// clampSettings keeps vendor knobs inside their documented ranges.
func clampSettings(s Settings) Settings {
	if s == (Settings{}) {
		return s
	}
	if s.Stability < 0 {
		s.Stability = 0
	} else if s.Stability > 1 {
		s.Stability = 1
	}
	if s.SimilarityBoost < 0 {
		s.SimilarityBoost = 0
	} else if s.SimilarityBoost > 1 {
		s.SimilarityBoost = 1
	}
	if s.Speed != 0 {
		if s.Speed < 0.7 {
			s.Speed = 0.7
		} else if s.Speed > 1.2 {
			s.Speed = 1.2
		}
	}
	return s
}
