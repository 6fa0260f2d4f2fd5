// Package chat produces the logical content of the streaming demos: a block of
// paragraph text for the raw stream and a lazily produced sequence of
// chat-completion events for the structured streams.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventType is the tag carried by every chat stream event.
type EventType string

const (
	EventMessageStart    EventType = "message_start"
	EventDelta           EventType = "delta"
	EventMessageComplete EventType = "message_complete"
)

// FinishReason explains why a message completed.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
	FinishError  FinishReason = "error"
)

// Event is one unit of a chat stream. The JSON encoding of an Event is its
// payload without the type tag.
type Event interface {
	Type() EventType
}

// MessageStart opens a stream. Emitted exactly once, first.
type MessageStart struct {
	MessageID string `json:"message_id"`
	Model     string `json:"model"`
	CreatedAt int64  `json:"created_at"`
}

// DeltaContent is the incremental text of a Delta.
type DeltaContent struct {
	Content string `json:"content"`
}

// Delta carries one token. Index starts at 0 and is contiguous.
type Delta struct {
	Delta DeltaContent `json:"delta"`
	Index int          `json:"index"`
}

// Usage reports token accounting for a completed message.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
}

// MessageComplete closes a stream. Emitted exactly once, last.
type MessageComplete struct {
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`
}

func (MessageStart) Type() EventType    { return EventMessageStart }
func (Delta) Type() EventType           { return EventDelta }
func (MessageComplete) Type() EventType { return EventMessageComplete }

// Payload encodes ev as compact JSON without the type tag.
func Payload(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Type(), err)
	}
	if len(b) < 2 || b[0] != '{' {
		return nil, fmt.Errorf("encode %s payload: not a JSON object", ev.Type())
	}
	return b, nil
}

// Record encodes ev as a single compact JSON object with "type" as its first
// member. The result never contains a newline.
func Record(ev Event) ([]byte, error) {
	payload, err := Payload(ev)
	if err != nil {
		return nil, err
	}
	tag, err := json.Marshal(string(ev.Type()))
	if err != nil {
		return nil, fmt.Errorf("encode event type: %w", err)
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + len(tag) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if !bytes.Equal(payload, []byte("{}")) {
		buf.WriteByte(',')
		buf.Write(payload[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
