package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/edoline/intervo/internal/observability"
	"github.com/edoline/intervo/internal/reliability"
	"github.com/edoline/intervo/internal/segment"
	"github.com/edoline/intervo/internal/synth"
)

// Result is one settled synthesis outcome. Nil audio means the segment
// exhausted its attempts (or failed terminally) and will be skipped.
type Result struct {
	Index int
	Text  string
	Audio []byte
}

// Dispatcher fans out one concurrent synthesis per segment and settles
// every index exactly once. Failure of one segment never aborts the others;
// it resolves to nil audio instead.
type Dispatcher struct {
	synth   synth.Synthesizer
	policy  reliability.RetryPolicy
	voiceID string
	modelID string
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewDispatcher(s synth.Synthesizer, policy reliability.RetryPolicy, voiceID, modelID string, logger zerolog.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		synth:   s,
		policy:  policy,
		voiceID: voiceID,
		modelID: modelID,
		log:     logger,
		metrics: metrics,
	}
}

// Dispatch launches synthesis for every segment read from segs and delivers
// one Result per segment on the returned channel, in completion order. The
// channel closes once every dispatched attempt has settled, which is the
// signal that no further results will ever arrive.
func (d *Dispatcher) Dispatch(ctx context.Context, segs <-chan segment.Segment) <-chan Result {
	results := make(chan Result, 16)
	go func() {
		defer close(results)
		var wg sync.WaitGroup
		for seg := range segs {
			wg.Add(1)
			go func(seg segment.Segment) {
				defer wg.Done()
				audio := d.synthesize(ctx, seg)
				select {
				case results <- Result{Index: seg.Index, Text: seg.Text, Audio: audio}:
				case <-ctx.Done():
				}
			}(seg)
		}
		wg.Wait()
	}()
	return results
}

// synthesize runs the bounded retry loop for one segment. It never returns
// an error: every failure path resolves to nil audio so the emitter can
// account for the index with a skip.
func (d *Dispatcher) synthesize(ctx context.Context, seg segment.Segment) []byte {
	for attempt := 0; attempt <= d.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.policy.Backoff(attempt - 1)):
			case <-ctx.Done():
				return nil
			}
			if d.metrics != nil {
				d.metrics.SynthesisRetries.Inc()
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if d.policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d.policy.AttemptTimeout)
		}
		audio, err := d.synth.Synthesize(attemptCtx, synth.Request{
			Text:    seg.Text,
			VoiceID: d.voiceID,
			ModelID: d.modelID,
		})
		cancel()

		if err == nil && len(audio) > 0 {
			if d.metrics != nil {
				d.metrics.SynthesisOutcomes.WithLabelValues("ok").Inc()
			}
			return audio
		}
		if err == nil {
			err = errors.New("empty audio")
		}

		if ctx.Err() != nil {
			// Session is gone; nobody is waiting for this result.
			return nil
		}

		var statusErr *synth.StatusError
		if errors.As(err, &statusErr) && !d.policy.Retryable(statusErr.Code) {
			d.log.Warn().Int("index", seg.Index).Int("status", statusErr.Code).
				Msg("segment synthesis failed terminally")
			if d.metrics != nil {
				d.metrics.SynthesisOutcomes.WithLabelValues("terminal").Inc()
			}
			return nil
		}

		d.log.Warn().Int("index", seg.Index).Int("attempt", attempt).Err(err).
			Msg("segment synthesis attempt failed")
	}

	d.log.Warn().Int("index", seg.Index).Int("retries", d.policy.MaxRetries).
		Msg("segment synthesis exhausted retries")
	if d.metrics != nil {
		d.metrics.SynthesisOutcomes.WithLabelValues("exhausted").Inc()
	}
	return nil
}
