package streamhttp

import (
	"github.com/KamdynS/streamdemo/abort"
	"github.com/KamdynS/streamdemo/chat"
)

// EncodeNDJSON writes each event of src as one compact JSON record followed
// by a newline.
//
//	{"type":"message_start","message_id":"msg_abc123","model":"mock-gpt-1","created_at":1234567890}
//	{"type":"delta","delta":{"content":"Hello"},"index":0}
//	{"type":"message_complete","finish_reason":"stop","usage":{"completion_tokens":1,"total_tokens":1}}
//
// There is no terminator record; the stream ends when the response ends.
func EncodeNDJSON(t Transport, sig *abort.Signal, src chat.Stream) Result {
	return runEvents(t, sig, src, ndjsonFrame, nil)
}

func ndjsonFrame(ev chat.Event) ([][]byte, error) {
	rec, err := chat.Record(ev)
	if err != nil {
		return nil, err
	}
	return [][]byte{append(rec, '\n')}, nil
}
