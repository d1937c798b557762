package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/edoline/intervo/internal/client"
	"github.com/edoline/intervo/internal/playback"
)

type options struct {
	baseURL   string
	mode      string
	text      string
	voiceID   string
	contextID string
	playMS    int
	wait      time.Duration
	verbose   bool
}

const defaultQuestion = "Walk me through a system you designed. What were the hardest trade-offs? How did you validate the result?"

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "speechprobe: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "speechprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var waitMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "intervo base URL")
	flag.StringVar(&cfg.mode, "mode", "question", "stream to probe: question|answer")
	flag.StringVar(&cfg.text, "text", defaultQuestion, "text to speak (question mode) or prompt (answer mode)")
	flag.StringVar(&cfg.voiceID, "voice-id", "", "optional voice_id override")
	flag.StringVar(&cfg.contextID, "context-id", "speechprobe", "context_id claimed for the stream")
	flag.IntVar(&cfg.playMS, "play-ms", 0, "simulated playback duration per segment in milliseconds")
	flag.IntVar(&waitMS, "wait-ms", 30000, "timeout waiting for playback completion in milliseconds")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print per-event progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	switch cfg.mode {
	case "question", "answer":
	default:
		return options{}, fmt.Errorf("mode must be question or answer")
	}
	if strings.TrimSpace(cfg.text) == "" {
		return options{}, fmt.Errorf("text is required")
	}
	if cfg.playMS < 0 {
		cfg.playMS = 0
	}
	if waitMS < 1000 {
		waitMS = 1000
	}
	cfg.wait = time.Duration(waitMS) * time.Millisecond
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rep := newReport(time.Now())
	player := playback.PlayerFunc(func(ctx context.Context, item playback.Item) error {
		rep.observePlayed(item.Index, len(item.Audio))
		if cfg.verbose {
			fmt.Printf("speechprobe: play index=%d bytes=%d text=%q\n", item.Index, len(item.Audio), item.Text)
		}
		if cfg.playMS > 0 {
			select {
			case <-time.After(time.Duration(cfg.playMS) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	finished := make(chan struct{})
	sched := playback.NewScheduler(player, playback.DefaultWaitFor, func() { close(finished) })

	handler := client.FeedScheduler(sched,
		func(tok string) {
			rep.observeToken()
			if cfg.verbose {
				fmt.Print(tok)
			}
		},
		func(msg string) {
			fmt.Fprintf(os.Stderr, "speechprobe: stream error: %s\n", msg)
		},
	)
	userAudio := handler.OnAudio
	handler.OnAudio = func(index int, text string, audio []byte) {
		rep.observeAudio(index)
		userAudio(index, text, audio)
	}
	userSkip := handler.OnSkip
	handler.OnSkip = func(index int) {
		rep.observeSkip(index)
		userSkip(index)
	}
	handler.OnInfo = func(total int, _ string) {
		rep.observeInfo(total)
		if cfg.verbose {
			fmt.Printf("speechprobe: info total_segments=%d\n", total)
		}
	}

	c := client.New(cfg.baseURL)
	var err error
	switch cfg.mode {
	case "question":
		err = c.SpeakQuestion(ctx, client.QuestionRequest{
			Text:      cfg.text,
			VoiceID:   cfg.voiceID,
			ContextID: cfg.contextID,
		}, handler)
	case "answer":
		err = c.SpeakAnswer(ctx, client.AnswerRequest{
			Prompt:    cfg.text,
			VoiceID:   cfg.voiceID,
			ContextID: cfg.contextID,
		}, handler)
	}
	if cfg.verbose && cfg.mode == "answer" {
		fmt.Println()
	}
	if err != nil {
		return err
	}

	if err := client.WaitFinished(finished, cfg.wait); err != nil {
		return err
	}
	fmt.Println(rep.summary(time.Now()))
	return nil
}

// report aggregates stream observations for the final summary. Safe for use
// from the playback goroutine and the consume loop.
type report struct {
	mu sync.Mutex

	started    time.Time
	firstAudio time.Duration

	total     int
	tokens    int
	audio     int
	skipped   int
	played    int
	outOfSeq  int
	lastIndex int
}

func newReport(started time.Time) *report {
	return &report{started: started, lastIndex: -1, firstAudio: -1}
}

func (r *report) observeInfo(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
}

func (r *report) observeToken() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens++
}

func (r *report) observeAudio(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.firstAudio < 0 {
		r.firstAudio = time.Since(r.started)
	}
	r.audio++
	r.noteIndexLocked(index)
}

func (r *report) observeSkip(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
	r.noteIndexLocked(index)
}

func (r *report) observePlayed(_, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played++
}

func (r *report) noteIndexLocked(index int) {
	if index <= r.lastIndex {
		r.outOfSeq++
		return
	}
	r.lastIndex = index
}

func (r *report) summary(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	first := "n/a"
	if r.firstAudio >= 0 {
		first = r.firstAudio.Round(time.Millisecond).String()
	}
	return fmt.Sprintf(
		"speechprobe: segments=%d audio=%d skipped=%d played=%d tokens=%d out_of_order=%d first_audio=%s elapsed=%s",
		r.total, r.audio, r.skipped, r.played, r.tokens, r.outOfSeq,
		first, now.Sub(r.started).Round(time.Millisecond),
	)
}
