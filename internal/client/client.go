package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edoline/intervo/internal/playback"
	"github.com/edoline/intervo/internal/protocol"
	"github.com/edoline/intervo/internal/stream"
)

// Client consumes the speech streaming API. It decodes the event stream and
// hands each event to the caller; malformed frames are dropped so one bad
// event never kills an otherwise healthy stream.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Streams stay open for the whole utterance, so no client timeout.
		http: &http.Client{},
	}
}

type QuestionRequest struct {
	Text      string `json:"text"`
	VoiceID   string `json:"voice_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`
}

type AnswerRequest struct {
	Prompt    string `json:"prompt"`
	VoiceID   string `json:"voice_id,omitempty"`
	ContextID string `json:"context_id,omitempty"`
}

// Handler receives decoded stream events. Nil callbacks are skipped.
// OnAudio receives decoded audio bytes, not the wire base64.
type Handler struct {
	OnInfo  func(totalSegments int, fullText string)
	OnToken func(content string)
	OnAudio func(index int, segmentText string, audio []byte)
	OnSkip  func(index int)
	OnDone  func(fullText string)
	OnError func(message string)
}

// SpeakQuestion streams a fixed text and dispatches events until done or
// stream end.
func (c *Client) SpeakQuestion(ctx context.Context, req QuestionRequest, h Handler) error {
	return c.consume(ctx, "/v1/speech/question", req, h)
}

// SpeakAnswer streams a generated reply and dispatches events until done or
// stream end.
func (c *Client) SpeakAnswer(ctx context.Context, req AnswerRequest, h Handler) error {
	return c.consume(ctx, "/v1/speech/answer", req, h)
}

func (c *Client) consume(ctx context.Context, path string, reqBody any, h Handler) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("speech request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	sc := stream.NewScanner(resp.Body)
	for {
		frame, err := sc.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		ev, err := protocol.ParseStreamEvent(frame)
		if err != nil {
			continue
		}
		switch e := ev.(type) {
		case protocol.InfoEvent:
			if h.OnInfo != nil {
				h.OnInfo(e.TotalSegments, e.FullText)
			}
		case protocol.TokenEvent:
			if h.OnToken != nil {
				h.OnToken(e.Content)
			}
		case protocol.AudioEvent:
			audio, err := base64.StdEncoding.DecodeString(e.AudioBase64)
			if err != nil {
				// Undecodable audio is as good as absent.
				if h.OnSkip != nil {
					h.OnSkip(e.Index)
				}
				continue
			}
			if h.OnAudio != nil {
				h.OnAudio(e.Index, e.SegmentText, audio)
			}
		case protocol.SkipEvent:
			if h.OnSkip != nil {
				h.OnSkip(e.Index)
			}
		case protocol.DoneEvent:
			if h.OnDone != nil {
				h.OnDone(e.FullText)
			}
			return nil
		case protocol.ErrorEvent:
			if h.OnError != nil {
				h.OnError(e.Message)
			}
		}
	}
}

// FeedScheduler returns a Handler wired to a playback scheduler, the usual
// client-side consumption path. Tokens and errors are forwarded to the
// optional callbacks.
func FeedScheduler(sched *playback.Scheduler, onToken func(string), onError func(string)) Handler {
	return Handler{
		OnToken: onToken,
		OnError: onError,
		OnAudio: func(index int, segmentText string, audio []byte) {
			sched.Enqueue(playback.Item{Index: index, Text: segmentText, Audio: audio})
		},
		OnSkip: func(index int) {
			sched.Skip(index)
		},
		OnDone: func(string) {
			sched.MarkDone()
		},
	}
}

// WaitFinished blocks until fired signals playback completion or the timeout
// lapses. Small helper for command-line consumers.
func WaitFinished(fired <-chan struct{}, timeout time.Duration) error {
	select {
	case <-fired:
		return nil
	case <-time.After(timeout):
		return errors.New("playback did not finish in time")
	}
}
