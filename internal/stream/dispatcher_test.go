package stream

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edoline/intervo/internal/reliability"
	"github.com/edoline/intervo/internal/segment"
	"github.com/edoline/intervo/internal/synth"
)

func fastPolicy() reliability.RetryPolicy {
	return reliability.RetryPolicy{
		MaxRetries:      2,
		AttemptTimeout:  time.Second,
		BackoffBase:     time.Millisecond,
		BackoffCap:      5 * time.Millisecond,
		RetryableStatus: reliability.IsRetryableHTTPStatus,
	}
}

func segmentChannel(texts ...string) <-chan segment.Segment {
	ch := make(chan segment.Segment, len(texts))
	for i, text := range texts {
		ch <- segment.Segment{Index: i, Text: text}
	}
	close(ch)
	return ch
}

func TestDispatcherRetriesRateLimitThenSucceeds(t *testing.T) {
	mock := synth.NewMock()
	mock.Script = func(req synth.Request, attempt int) ([]byte, error) {
		if attempt < 2 {
			return nil, &synth.StatusError{Code: http.StatusTooManyRequests}
		}
		return []byte("ok"), nil
	}
	d := NewDispatcher(mock, fastPolicy(), "v", "m", zerolog.Nop(), nil)

	results := d.Dispatch(context.Background(), segmentChannel("Two rate limits then fine."))
	res := <-results
	if res.Audio == nil {
		t.Fatal("segment resolved to skip, want audio after retries")
	}
	if got := mock.Attempts("Two rate limits then fine."); got != 3 {
		t.Fatalf("attempts = %d, want 3 (initial + 2 retries)", got)
	}
	if _, open := <-results; open {
		t.Fatal("results channel not closed after all segments settled")
	}
}

func TestDispatcherDoesNotRetryClientError(t *testing.T) {
	mock := synth.NewMock()
	mock.Script = func(synth.Request, int) ([]byte, error) {
		return nil, &synth.StatusError{Code: http.StatusBadRequest}
	}
	d := NewDispatcher(mock, fastPolicy(), "v", "m", zerolog.Nop(), nil)

	results := d.Dispatch(context.Background(), segmentChannel("A single bad request."))
	res := <-results
	if res.Audio != nil {
		t.Fatal("terminal client error must resolve to skip")
	}
	if got := mock.Attempts("A single bad request."); got != 1 {
		t.Fatalf("attempts = %d, want 1 (no retries on 4xx)", got)
	}
}

func TestDispatcherExhaustedRetriesResolveToSkip(t *testing.T) {
	mock := synth.NewMock()
	mock.Script = func(synth.Request, int) ([]byte, error) {
		return nil, &synth.StatusError{Code: http.StatusServiceUnavailable}
	}
	d := NewDispatcher(mock, fastPolicy(), "v", "m", zerolog.Nop(), nil)

	results := d.Dispatch(context.Background(), segmentChannel("Always failing upstream."))
	res := <-results
	if res.Audio != nil {
		t.Fatal("exhausted segment must resolve to skip")
	}
	if got := mock.Attempts("Always failing upstream."); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestDispatcherSettlesEverySegmentConcurrently(t *testing.T) {
	mock := synth.NewMock()
	mock.Delay = 20 * time.Millisecond
	d := NewDispatcher(mock, fastPolicy(), "v", "m", zerolog.Nop(), nil)

	texts := []string{
		"Segment number zero here.",
		"Segment number one here.",
		"Segment number two here.",
		"Segment number three here.",
		"Segment number four here.",
	}
	start := time.Now()
	results := d.Dispatch(context.Background(), segmentChannel(texts...))

	seen := make(map[int]bool)
	for res := range results {
		if seen[res.Index] {
			t.Fatalf("index %d settled twice", res.Index)
		}
		seen[res.Index] = true
	}
	if len(seen) != len(texts) {
		t.Fatalf("settled %d segments, want %d", len(seen), len(texts))
	}
	// Fan-out means total time approaches max, not sum, of per-segment latency.
	if elapsed := time.Since(start); elapsed > 5*mock.Delay {
		t.Fatalf("dispatch took %v; segments appear to run sequentially", elapsed)
	}
}

func TestDispatcherWithEmitterPartialFailureScenario(t *testing.T) {
	mock := synth.NewMock()
	mock.Script = func(req synth.Request, _ int) ([]byte, error) {
		if req.Text == "Second sentence here." {
			return nil, &synth.StatusError{Code: http.StatusInternalServerError}
		}
		return []byte("audio-" + req.Text), nil
	}
	d := NewDispatcher(mock, fastPolicy(), "v", "m", zerolog.Nop(), nil)

	segs := segment.Split("First sentence here. Second sentence here. Third sentence here.", segment.DefaultMinLength)
	if len(segs) != 3 {
		t.Fatalf("Split returned %d segments, want 3", len(segs))
	}
	segCh := make(chan segment.Segment, len(segs))
	for _, s := range segs {
		segCh <- s
	}
	close(segCh)

	var events []any
	e := NewEmitter(recordingSend(&events), zerolog.Nop(), nil)
	for res := range d.Dispatch(context.Background(), segCh) {
		if err := e.Observe(res); err != nil {
			t.Fatalf("Observe error = %v", err)
		}
	}
	if err := e.Finish(len(segs), "full"); err != nil {
		t.Fatalf("Finish error = %v", err)
	}

	got := eventSignature(t, events)
	want := []string{"audio:0", "skip:1", "audio:2", "done"}
	if !equalSig(got, want) {
		t.Fatalf("event order = %v, want %v", got, want)
	}
}

func TestDispatcherStopsRetryingWhenSessionCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := synth.NewMock()
	mock.Script = func(synth.Request, int) ([]byte, error) {
		cancel()
		return nil, &synth.StatusError{Code: http.StatusServiceUnavailable}
	}
	policy := fastPolicy()
	policy.BackoffBase = time.Minute // would hang the test if retried
	d := NewDispatcher(mock, policy, "v", "m", zerolog.Nop(), nil)

	results := d.Dispatch(ctx, segmentChannel("Cancelled mid retry loop."))
	select {
	case <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher kept retrying after cancellation")
	}
}
