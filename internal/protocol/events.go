package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies stream event payload variants.
type EventType string

const (
	TypeInfo  EventType = "info"
	TypeToken EventType = "token"
	TypeAudio EventType = "audio"
	TypeSkip  EventType = "skip"
	TypeDone  EventType = "done"
	TypeError EventType = "error"
)

var ErrUnsupportedType = errors.New("unsupported event type")

type Envelope struct {
	Type EventType `json:"type"`
}

// InfoEvent announces the segment count for the stream. On the fixed-text
// path it is the first event; on the conversation path it is emitted once
// segmentation of the model output is final.
type InfoEvent struct {
	Type          EventType `json:"type"`
	TotalSegments int       `json:"total_segments"`
	FullText      string    `json:"full_text"`
}

// TokenEvent carries one incremental text token on the conversation path.
type TokenEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// AudioEvent carries one synthesized segment. Indices are dense and each
// index appears exactly once across a stream, either as audio or as skip.
type AudioEvent struct {
	Type        EventType `json:"type"`
	Index       int       `json:"index"`
	SegmentText string    `json:"segment_text"`
	AudioBase64 string    `json:"audio_base64"`
}

// SkipEvent signals that audio for an index will never arrive.
type SkipEvent struct {
	Type  EventType `json:"type"`
	Index int       `json:"index"`
}

// DoneEvent terminates a stream. Emitted exactly once, after every index
// has been accounted for.
type DoneEvent struct {
	Type     EventType `json:"type"`
	FullText string    `json:"full_text"`
}

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

// ParseStreamEvent decodes one raw event payload into its concrete type.
func ParseStreamEvent(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeInfo:
		var ev InfoEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.TotalSegments < 0 {
			return nil, errors.New("invalid info event")
		}
		return ev, nil
	case TypeToken:
		var ev TokenEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeAudio:
		var ev AudioEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.Index < 0 || ev.AudioBase64 == "" {
			return nil, errors.New("invalid audio event")
		}
		return ev, nil
	case TypeSkip:
		var ev SkipEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		if ev.Index < 0 {
			return nil, errors.New("invalid skip event")
		}
		return ev, nil
	case TypeDone:
		var ev DoneEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeError:
		var ev ErrorEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, ErrUnsupportedType
	}
}
