package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edoline/intervo/internal/config"
	"github.com/edoline/intervo/internal/llm"
	"github.com/edoline/intervo/internal/observability"
	"github.com/edoline/intervo/internal/protocol"
	"github.com/edoline/intervo/internal/reliability"
	"github.com/edoline/intervo/internal/segment"
	"github.com/edoline/intervo/internal/session"
	"github.com/edoline/intervo/internal/stream"
	"github.com/edoline/intervo/internal/synth"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	synth    synth.Synthesizer
	llm      llm.Provider
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func New(cfg config.Config, sessions *session.Manager, synthesizer synth.Synthesizer, provider llm.Provider, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		synth:    synthesizer,
		llm:      provider,
		metrics:  metrics,
		log:      logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/speech/question", s.handleSpeakQuestion)
	r.Post("/v1/speech/answer", s.handleSpeakAnswer)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"active_streams": s.sessions.ActiveCount(),
	})
}

type questionRequest struct {
	Text      string `json:"text"`
	VoiceID   string `json:"voice_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`
}

type answerRequest struct {
	Prompt    string `json:"prompt"`
	VoiceID   string `json:"voice_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`
}

// handleSpeakQuestion streams a fixed text as ordered audio segments. The
// full text is known up front, so the info event leads the stream and every
// segment is dispatched immediately.
func (s *Server) handleSpeakQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	}

	handle, ok := s.acquireSession(w, req.ContextID)
	if !ok {
		return
	}
	defer func() { _, _ = s.sessions.Release(handle.ID) }()

	sw, err := stream.NewWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	log := s.log.With().Str("session_id", handle.ID).Str("path", "question").Logger()

	spoken := segment.Sanitize(text)
	if spoken == "" {
		spoken = text
	}
	segs := segment.Split(spoken, s.cfg.MinSegmentLength)

	if err := sw.Send(protocol.InfoEvent{
		Type:          protocol.TypeInfo,
		TotalSegments: len(segs),
		FullText:      text,
	}); err != nil {
		log.Debug().Err(err).Msg("client gone before first event")
		return
	}
	s.metrics.StreamEvents.WithLabelValues(string(protocol.TypeInfo)).Inc()

	segCh := make(chan segment.Segment, len(segs))
	for _, sg := range segs {
		segCh <- sg
	}
	close(segCh)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	disp := stream.NewDispatcher(s.synth, s.policy(s.cfg.QuestionAttemptTimeout), s.voiceFor(req.VoiceID), s.cfg.ElevenLabsModelID, log, s.metrics)
	results := disp.Dispatch(ctx, segCh)
	em := stream.NewEmitter(s.sloSend(sw, log), log, s.metrics)

	for res := range results {
		_ = s.sessions.Touch(handle.ID)
		if err := em.Observe(res); err != nil {
			log.Debug().Err(err).Msg("stream write failed, abandoning session")
			return
		}
	}
	if err := em.Finish(len(segs), text); err != nil {
		log.Debug().Err(err).Msg("stream write failed during finish")
	}
}

// handleSpeakAnswer generates a model reply and streams it as tokens plus
// ordered audio segments. Segmentation is incremental: synthesis for early
// sentences starts while the model is still producing later ones, and the
// info event is emitted only once the segment count is final.
func (s *Server) handleSpeakAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		respondError(w, http.StatusBadRequest, "empty_prompt", "prompt is required")
		return
	}

	handle, ok := s.acquireSession(w, req.ContextID)
	if !ok {
		return
	}
	defer func() { _, _ = s.sessions.Release(handle.ID) }()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tokens, err := s.llm.Stream(ctx, prompt)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "llm_unavailable", err.Error())
		return
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", err.Error())
		return
	}

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	log := s.log.With().Str("session_id", handle.ID).Str("path", "answer").Logger()

	acc := segment.NewAccumulator(s.cfg.MinSegmentLength)
	segCh := make(chan segment.Segment, 32)
	segClosed := false
	closeSegments := func() {
		if !segClosed {
			segClosed = true
			close(segCh)
		}
	}
	defer closeSegments()

	disp := stream.NewDispatcher(s.synth, s.policy(s.cfg.AnswerAttemptTimeout), s.voiceFor(req.VoiceID), s.cfg.ElevenLabsModelID, log, s.metrics)
	results := disp.Dispatch(ctx, segCh)
	em := stream.NewEmitter(s.sloSend(sw, log), log, s.metrics)

	var full strings.Builder
	total := 0

	for tokens != nil || results != nil {
		select {
		case tok, open := <-tokens:
			if !open {
				tokens = nil
				for _, sg := range acc.Flush() {
					segCh <- spokenSegment(sg)
				}
				closeSegments()
				total = acc.Count()
				if full.Len() == 0 {
					if err := sw.Send(protocol.ErrorEvent{Type: protocol.TypeError, Message: "model produced no output"}); err != nil {
						log.Debug().Err(err).Msg("stream write failed, abandoning session")
						return
					}
					s.metrics.StreamEvents.WithLabelValues(string(protocol.TypeError)).Inc()
				}
				if err := sw.Send(protocol.InfoEvent{
					Type:          protocol.TypeInfo,
					TotalSegments: total,
					FullText:      full.String(),
				}); err != nil {
					log.Debug().Err(err).Msg("stream write failed, abandoning session")
					return
				}
				s.metrics.StreamEvents.WithLabelValues(string(protocol.TypeInfo)).Inc()
				continue
			}
			full.WriteString(tok)
			if err := sw.Send(protocol.TokenEvent{Type: protocol.TypeToken, Content: tok}); err != nil {
				log.Debug().Err(err).Msg("stream write failed, abandoning session")
				return
			}
			s.metrics.StreamEvents.WithLabelValues(string(protocol.TypeToken)).Inc()
			for _, sg := range acc.Feed(tok) {
				segCh <- spokenSegment(sg)
			}
		case res, open := <-results:
			if !open {
				results = nil
				continue
			}
			_ = s.sessions.Touch(handle.ID)
			if err := em.Observe(res); err != nil {
				log.Debug().Err(err).Msg("stream write failed, abandoning session")
				return
			}
		}
	}

	if err := em.Finish(total, full.String()); err != nil {
		log.Debug().Err(err).Msg("stream write failed during finish")
	}
}

// sloSend wraps the stream writer and logs when the first audio event lands
// past the configured latency target. Called only from the session loop.
func (s *Server) sloSend(sw *stream.Writer, log zerolog.Logger) func(any) error {
	start := time.Now()
	seen := false
	return func(ev any) error {
		if !seen {
			if _, ok := ev.(protocol.AudioEvent); ok {
				seen = true
				if d := time.Since(start); s.cfg.FirstAudioSLO > 0 && d > s.cfg.FirstAudioSLO {
					log.Warn().Dur("first_audio", d).Dur("target", s.cfg.FirstAudioSLO).
						Msg("first audio exceeded latency target")
				}
			}
		}
		return sw.Send(ev)
	}
}

// acquireSession claims the request's UI context. A context with a live
// stream is rejected rather than queued; the client interrupts the old
// stream first.
func (s *Server) acquireSession(w http.ResponseWriter, contextID string) (*session.Handle, bool) {
	handle, err := s.sessions.Acquire(contextID)
	if err != nil {
		if errors.Is(err, session.ErrContextBusy) {
			respondError(w, http.StatusBadRequest, "context_busy", err.Error())
		} else {
			respondError(w, http.StatusInternalServerError, "session_error", err.Error())
		}
		return nil, false
	}
	return handle, true
}

// spokenSegment swaps in the sanitized reading of a segment. If sanitizing
// removes everything the raw text is kept so the index stays accounted for.
func spokenSegment(sg segment.Segment) segment.Segment {
	if clean := segment.Sanitize(sg.Text); clean != "" {
		sg.Text = clean
	}
	return sg
}

func (s *Server) policy(attemptTimeout time.Duration) reliability.RetryPolicy {
	p := reliability.DefaultRetryPolicy()
	p.MaxRetries = s.cfg.SynthMaxRetries
	p.BackoffBase = s.cfg.SynthBackoffBase
	p.AttemptTimeout = attemptTimeout
	return p
}

func (s *Server) voiceFor(requested string) string {
	if v := strings.TrimSpace(requested); v != "" {
		return v
	}
	return s.cfg.ElevenLabsVoiceID
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
