package llm

import (
	"context"
	"strings"
	"time"
)

// Provider produces model text for the conversation path. Stream delivers
// tokens as they are generated so segmentation and synthesis can start
// before the full answer exists; the channel closes at end of output.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) (<-chan string, error)
}

// MockProvider replays a canned reply token by token. Used in tests and
// keyless local runs.
type MockProvider struct {
	Reply string
	// TokenDelay paces the replay to resemble model generation.
	TokenDelay time.Duration
}

func NewMockProvider(reply string) *MockProvider {
	if strings.TrimSpace(reply) == "" {
		reply = "Thanks for the answer. Let me ask a follow-up question next. What trade-offs did you consider?"
	}
	return &MockProvider{Reply: reply}
}

func (p *MockProvider) Complete(_ context.Context, _ string) (string, error) {
	return p.Reply, nil
}

func (p *MockProvider) Stream(ctx context.Context, _ string) (<-chan string, error) {
	words := strings.Fields(p.Reply)
	ch := make(chan string)
	go func() {
		defer close(ch)
		for i, w := range words {
			tok := w
			if i > 0 {
				tok = " " + w
			}
			if p.TokenDelay > 0 {
				select {
				case <-time.After(p.TokenDelay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- tok:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
