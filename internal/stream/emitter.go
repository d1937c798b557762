package stream

import (
	"encoding/base64"
	"time"

	"github.com/rs/zerolog"

	"github.com/edoline/intervo/internal/observability"
	"github.com/edoline/intervo/internal/protocol"
)

// Emitter releases settled results in strict index order. Results may settle
// in any order upstream; the emitter holds them until every lower index has
// been emitted. Not goroutine-safe: the session loop that reads dispatcher
// results owns it, matching the single-writer transport contract.
type Emitter struct {
	send    func(event any) error
	pending map[int]Result
	next    int
	started time.Time
	emitted bool
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewEmitter(send func(event any) error, logger zerolog.Logger, metrics *observability.Metrics) *Emitter {
	return &Emitter{
		send:    send,
		pending: make(map[int]Result),
		started: time.Now(),
		log:     logger,
		metrics: metrics,
	}
}

// Observe records one settled result and drains everything now in order.
// A returned error means a transport write failed; the session must stop,
// retries belong upstream in the dispatcher.
func (e *Emitter) Observe(res Result) error {
	e.pending[res.Index] = res
	return e.drain()
}

// NextIndex reports the cursor, the lowest index not yet emitted.
func (e *Emitter) NextIndex() int { return e.next }

func (e *Emitter) drain() error {
	for {
		res, ok := e.pending[e.next]
		if !ok {
			return nil
		}
		delete(e.pending, e.next)
		if res.Audio != nil {
			if err := e.send(protocol.AudioEvent{
				Type:        protocol.TypeAudio,
				Index:       res.Index,
				SegmentText: res.Text,
				AudioBase64: base64.StdEncoding.EncodeToString(res.Audio),
			}); err != nil {
				return err
			}
			if !e.emitted {
				e.emitted = true
				if e.metrics != nil {
					e.metrics.ObserveFirstAudioLatency(time.Since(e.started))
				}
			}
			e.count(protocol.TypeAudio)
		} else {
			if err := e.send(protocol.SkipEvent{Type: protocol.TypeSkip, Index: res.Index}); err != nil {
				return err
			}
			e.count(protocol.TypeSkip)
		}
		e.next++
	}
}

// Finish accounts for every index the dispatcher never settled and emits
// done. Called once all dispatch attempts have completed; any index still
// unresolved at that point is force-skipped so the stream can never hang.
func (e *Emitter) Finish(total int, fullText string) error {
	if err := e.drain(); err != nil {
		return err
	}
	for e.next < total {
		if _, ok := e.pending[e.next]; ok {
			if err := e.drain(); err != nil {
				return err
			}
			continue
		}
		e.log.Warn().Int("index", e.next).Msg("forcing skip for unresolved segment")
		if err := e.send(protocol.SkipEvent{Type: protocol.TypeSkip, Index: e.next}); err != nil {
			return err
		}
		e.count(protocol.TypeSkip)
		if e.metrics != nil {
			e.metrics.SynthesisOutcomes.WithLabelValues("safeguard").Inc()
		}
		e.next++
	}
	if err := e.send(protocol.DoneEvent{Type: protocol.TypeDone, FullText: fullText}); err != nil {
		return err
	}
	e.count(protocol.TypeDone)
	return nil
}

func (e *Emitter) count(t protocol.EventType) {
	if e.metrics != nil {
		e.metrics.StreamEvents.WithLabelValues(string(t)).Inc()
	}
}
