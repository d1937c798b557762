package playback

import (
	"context"
	"sync"
	"time"
)

// DefaultWaitFor bounds how long playback waits for a missing index before
// treating it as implicitly skipped. Mirrors the server-side safeguard.
const DefaultWaitFor = 2 * time.Second

// Item is one decoded audio unit awaiting ordered playback.
type Item struct {
	Index int
	Text  string
	Audio []byte
}

// Player renders one item to completion. Play must respect ctx so an
// interrupted session can stop mid-utterance.
type Player interface {
	Play(ctx context.Context, item Item) error
}

// PlayerFunc adapts a function to the Player interface.
type PlayerFunc func(ctx context.Context, item Item) error

func (f PlayerFunc) Play(ctx context.Context, item Item) error { return f(ctx, item) }

// Scheduler buffers arriving audio items and plays them in strict index
// order. Items may arrive in any order; an index explicitly marked skip, or
// one that stays missing past the wait bound while higher indices are
// buffered, is passed over so a lost event can never stall playback.
//
// A Scheduler serves exactly one stream session. Interrupt kills it for
// good; late events a dead scheduler receives are ignored, so a new
// session's state can never be corrupted by the old one.
type Scheduler struct {
	mu       sync.Mutex
	player   Player
	waitFor  time.Duration
	onFinish func()

	buffer    map[int]Item
	skipped   map[int]struct{}
	next      int
	playing   bool
	doneSeen  bool
	finished  bool
	waitTimer *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(player Player, waitFor time.Duration, onFinish func()) *Scheduler {
	if waitFor <= 0 {
		waitFor = DefaultWaitFor
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		player:   player,
		waitFor:  waitFor,
		onFinish: onFinish,
		buffer:   make(map[int]Item),
		skipped:  make(map[int]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue buffers one arrived audio item and drains whatever is playable.
func (s *Scheduler) Enqueue(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || item.Index < s.next {
		return
	}
	s.buffer[item.Index] = item
	s.drainLocked()
}

// Skip marks an index as never arriving.
func (s *Scheduler) Skip(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.skipped[index] = struct{}{}
	s.drainLocked()
}

// MarkDone records that the stream has ended. Completion fires only once
// the buffer is empty and nothing is playing; done routinely arrives while
// the last item is still sounding.
func (s *Scheduler) MarkDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.doneSeen = true
	s.drainLocked()
}

// Interrupt aborts the session: stops in-progress audio, clears buffered
// state, and cancels any pending wait. The scheduler is dead afterwards.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.cancel()
	s.stopWaitLocked()
	s.buffer = make(map[int]Item)
	s.skipped = make(map[int]struct{})
	s.playing = false
	s.doneSeen = false
	s.next = 0
}

// NextIndex reports the playback cursor.
func (s *Scheduler) NextIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) drainLocked() {
	if s.playing || s.finished {
		return
	}
	for {
		if _, ok := s.skipped[s.next]; ok {
			delete(s.skipped, s.next)
			s.next++
			continue
		}
		item, ok := s.buffer[s.next]
		if !ok {
			break
		}
		delete(s.buffer, s.next)
		s.stopWaitLocked()
		s.playing = true
		go s.play(item)
		return
	}

	if s.doneSeen && len(s.buffer) == 0 {
		s.finishLocked()
		return
	}
	if len(s.buffer) > 0 && s.waitTimer == nil {
		// A higher index arrived first; give the expected one a bounded
		// grace period before advancing past it.
		expect := s.next
		s.waitTimer = time.AfterFunc(s.waitFor, func() { s.giveUpOn(expect) })
	}
}

func (s *Scheduler) play(item Item) {
	err := s.player.Play(s.ctx, item)
	_ = err // playback errors advance the cursor exactly like completion

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.playing = false
	s.next = item.Index + 1
	s.drainLocked()
}

// giveUpOn treats a still-missing index as implicitly skipped once the
// bounded wait elapses.
func (s *Scheduler) giveUpOn(expect int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitTimer = nil
	if s.finished || s.playing || s.next != expect {
		return
	}
	s.next++
	s.drainLocked()
}

func (s *Scheduler) stopWaitLocked() {
	if s.waitTimer != nil {
		s.waitTimer.Stop()
		s.waitTimer = nil
	}
}

func (s *Scheduler) finishLocked() {
	s.finished = true
	s.stopWaitLocked()
	if cb := s.onFinish; cb != nil {
		go cb()
	}
}
