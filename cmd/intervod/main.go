package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/edoline/intervo/internal/config"
	"github.com/edoline/intervo/internal/httpapi"
	"github.com/edoline/intervo/internal/llm"
	"github.com/edoline/intervo/internal/observability"
	"github.com/edoline/intervo/internal/session"
	"github.com/edoline/intervo/internal/synth"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLog := observability.NewLogger("info", false)
		bootLog.Fatal().Err(err).Msg("config error")
	}

	log := observability.NewLogger(cfg.LogLevel, cfg.LogPretty)
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	settings := synth.Settings{Stability: 0.5, SimilarityBoost: 0.75, Speed: 1.0}
	newHTTPSynth := func() synth.Synthesizer {
		return synth.NewElevenLabsClient(synth.ElevenLabsConfig{
			APIKey:         cfg.ElevenLabsAPIKey,
			BaseURL:        cfg.ElevenLabsBaseURL,
			DefaultModelID: cfg.ElevenLabsModelID,
			OutputFormat:   cfg.ElevenLabsOutputFormat,
			Settings:       settings,
		})
	}
	newRealtimeSynth := func() synth.Synthesizer {
		return synth.NewRealtimeSynthesizer(synth.RealtimeConfig{
			APIKey:         cfg.ElevenLabsAPIKey,
			WSBaseURL:      cfg.ElevenLabsWSBaseURL,
			DefaultModelID: cfg.ElevenLabsModelID,
			OutputFormat:   cfg.ElevenLabsOutputFormat,
			Settings:       settings,
		})
	}

	hasKey := strings.TrimSpace(cfg.ElevenLabsAPIKey) != ""
	var synthesizer synth.Synthesizer
	switch strings.ToLower(strings.TrimSpace(cfg.SynthProvider)) {
	case "elevenlabs":
		if !hasKey {
			log.Fatal().Msg("SYNTH_PROVIDER=elevenlabs but ELEVENLABS_API_KEY is not set")
		}
		synthesizer = newHTTPSynth()
		log.Info().Msg("synthesis provider: elevenlabs http")
	case "realtime":
		if !hasKey {
			log.Fatal().Msg("SYNTH_PROVIDER=realtime but ELEVENLABS_API_KEY is not set")
		}
		synthesizer = newRealtimeSynth()
		log.Info().Msg("synthesis provider: elevenlabs realtime")
	case "mock":
		synthesizer = synth.NewMock()
		log.Info().Msg("synthesis provider: mock")
	case "auto", "":
		if hasKey {
			synthesizer = synth.NewFailoverSynthesizer(newHTTPSynth(), newRealtimeSynth(), cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID)
			log.Info().Msg("synthesis provider: elevenlabs http with realtime failover")
		} else {
			synthesizer = synth.NewMock()
			log.Info().Msg("synthesis provider: mock (no elevenlabs key)")
		}
	default:
		log.Fatal().Str("provider", cfg.SynthProvider).Msg("invalid SYNTH_PROVIDER (expected auto|elevenlabs|realtime|mock)")
	}

	var provider llm.Provider
	if strings.TrimSpace(cfg.LLMAPIKey) != "" {
		provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
		}, log)
		log.Info().Str("model", cfg.LLMModel).Msg("model provider: openai-compatible")
	} else {
		provider = llm.NewMockProvider("")
		log.Info().Msg("model provider: mock (no LLM_API_KEY)")
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(h *session.Handle) {
		log.Info().Str("session_id", h.ID).Msg("session expired for inactivity")
	})

	api := httpapi.New(cfg, sessions, synthesizer, provider, metrics, log)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	log.Info().Msg("shutdown complete")
}
