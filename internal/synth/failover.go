package synth

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// NewFailoverSynthesizer prefers the primary backend and switches to the
// fallback when a primary call fails. Once the fallback succeeds it stays
// active until it fails in turn; then the primary is retried.
func NewFailoverSynthesizer(primary, fallback Synthesizer, fallbackVoiceID, fallbackModelID string) *FailoverSynthesizer {
	return &FailoverSynthesizer{
		primary:         primary,
		fallback:        fallback,
		fallbackVoiceID: strings.TrimSpace(fallbackVoiceID),
		fallbackModelID: strings.TrimSpace(fallbackModelID),
	}
}

type FailoverSynthesizer struct {
	fallbackActive  atomic.Bool
	primary         Synthesizer
	fallback        Synthesizer
	fallbackVoiceID string
	fallbackModelID string
}

func (s *FailoverSynthesizer) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if s.fallbackActive.Load() {
		audio, fbErr := s.fallback.Synthesize(ctx, s.fallbackRequest(req))
		if fbErr == nil {
			return audio, nil
		}
		// Fallback failed after being active; try primary again.
		audio, prErr := s.primary.Synthesize(ctx, req)
		if prErr == nil {
			s.fallbackActive.Store(false)
			return audio, nil
		}
		return nil, fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
	}

	audio, prErr := s.primary.Synthesize(ctx, req)
	if prErr == nil {
		return audio, nil
	}
	audio, fbErr := s.fallback.Synthesize(ctx, s.fallbackRequest(req))
	if fbErr != nil {
		return nil, fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	s.fallbackActive.Store(true)
	return audio, nil
}

func (s *FailoverSynthesizer) fallbackRequest(req Request) Request {
	if s.fallbackVoiceID != "" {
		req.VoiceID = s.fallbackVoiceID
	}
	if s.fallbackModelID != "" {
		req.ModelID = s.fallbackModelID
	}
	return req
}
