package synth

import (
	"context"
	"fmt"
)

// Request describes one segment synthesis call.
type Request struct {
	Text    string
	VoiceID string
	ModelID string
}

// Settings tunes vendor-side voice rendering.
type Settings struct {
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

// Synthesizer converts one text segment into audio bytes. Implementations
// must honor ctx cancellation and return a *StatusError for non-2xx vendor
// responses so callers can classify retryability.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// StatusError reports a non-2xx vendor response.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("vendor returned status %d", e.Code)
	}
	return fmt.Sprintf("vendor returned status %d: %s", e.Code, e.Detail)
}
