package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the speech streaming service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string
	LogPretty        bool

	SessionInactivityTimeout time.Duration
	FirstAudioSLO            time.Duration

	SynthProvider string

	ElevenLabsAPIKey       string
	ElevenLabsBaseURL      string
	ElevenLabsWSBaseURL    string
	ElevenLabsVoiceID      string
	ElevenLabsModelID      string
	ElevenLabsOutputFormat string

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	// Segmentation and retry policy shared by both streaming paths. Only
	// the per-attempt timeout differs between the fixed-text and
	// conversation endpoints.
	MinSegmentLength       int
	SynthMaxRetries        int
	SynthBackoffBase       time.Duration
	QuestionAttemptTimeout time.Duration
	AnswerAttemptTimeout   time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "intervo"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		SynthProvider:    envOrDefault("SYNTH_PROVIDER", "auto"),

		ElevenLabsAPIKey:    trimEnv("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL:   envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		ElevenLabsWSBaseURL: envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		// Default to a calm narration voice for interview questions.
		ElevenLabsVoiceID:      envOrDefault("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModelID:      envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsOutputFormat: envOrDefault("ELEVENLABS_OUTPUT_FORMAT", "mp3_44100_128"),

		LLMBaseURL: envOrDefault("LLM_BASE_URL", "https://api.openai.com"),
		LLMAPIKey:  trimEnv("LLM_API_KEY"),
		LLMModel:   envOrDefault("LLM_MODEL", "gpt-4o-mini"),

		MinSegmentLength: 10,
		SynthMaxRetries:  2,
		SynthBackoffBase: 500 * time.Millisecond,
		// The fixed-text path can afford a longer attempt window; the
		// conversation path keeps latency tighter.
		QuestionAttemptTimeout: 10 * time.Second,
		AnswerAttemptTimeout:   8 * time.Second,

		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		FirstAudioSLO:            700 * time.Millisecond,
	}

	var err error
	cfg.LogPretty, err = boolFromEnv("APP_LOG_PRETTY", false)
	if err != nil {
		return Config{}, err
	}
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FirstAudioSLO, err = durationFromEnv("APP_FIRST_AUDIO_SLO", cfg.FirstAudioSLO)
	if err != nil {
		return Config{}, err
	}
	cfg.MinSegmentLength, err = intFromEnv("SPEECH_MIN_SEGMENT_LENGTH", cfg.MinSegmentLength)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthMaxRetries, err = intFromEnv("SYNTH_MAX_RETRIES", cfg.SynthMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthBackoffBase, err = durationFromEnv("SYNTH_BACKOFF_BASE", cfg.SynthBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.QuestionAttemptTimeout, err = durationFromEnv("SYNTH_QUESTION_ATTEMPT_TIMEOUT", cfg.QuestionAttemptTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AnswerAttemptTimeout, err = durationFromEnv("SYNTH_ANSWER_ATTEMPT_TIMEOUT", cfg.AnswerAttemptTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.MinSegmentLength <= 0 {
		return Config{}, fmt.Errorf("SPEECH_MIN_SEGMENT_LENGTH must be positive")
	}
	if cfg.SynthMaxRetries < 0 {
		return Config{}, fmt.Errorf("SYNTH_MAX_RETRIES must be >= 0")
	}
	if cfg.SynthBackoffBase <= 0 {
		return Config{}, fmt.Errorf("SYNTH_BACKOFF_BASE must be positive")
	}
	if cfg.QuestionAttemptTimeout < time.Second || cfg.AnswerAttemptTimeout < time.Second {
		return Config{}, fmt.Errorf("synthesis attempt timeouts must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
