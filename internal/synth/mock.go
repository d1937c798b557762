package synth

import (
	"context"
	"sync"
	"time"

	"github.com/edoline/intervo/internal/audio"
)

// Mock is a scriptable in-memory synthesizer for tests and keyless local
// runs. Without a script it returns deterministic fake audio for any text.
type Mock struct {
	mu       sync.Mutex
	attempts map[string]int

	// Script, when set, decides the outcome per request. attempt is 0-based
	// and counted per segment text.
	Script func(req Request, attempt int) ([]byte, error)
	// Delay simulates vendor latency per call.
	Delay time.Duration
}

func NewMock() *Mock {
	return &Mock{attempts: make(map[string]int)}
}

func (m *Mock) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	attempt := m.attempts[req.Text]
	m.attempts[req.Text] = attempt + 1
	script := m.Script
	m.mu.Unlock()

	if script != nil {
		return script(req, attempt)
	}
	// Deterministic playable clip: pitch follows the text, duration follows
	// its length, roughly matching spoken pace.
	freq := 220 + float64(len(req.Text)%24)*10
	dur := 80*time.Millisecond + time.Duration(len(req.Text))*8*time.Millisecond
	if dur > 2*time.Second {
		dur = 2 * time.Second
	}
	return audio.ToneWAV(freq, dur, audio.DefaultSampleRate), nil
}

// Attempts reports how many synthesis calls were made for the given text.
func (m *Mock) Attempts(text string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[text]
}
