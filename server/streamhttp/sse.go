package streamhttp

import (
	"github.com/KamdynS/streamdemo/abort"
	"github.com/KamdynS/streamdemo/chat"
)

var sseDone = []byte("data: [DONE]\n\n")

// EncodeSSE writes each event of src as a Server-Sent Events record:
//
//	event: delta
//	data: {"delta":{"content":"Hello"},"index":0}
//
// The type tag travels on the event line only. After a completed stream a
// final untyped "data: [DONE]" record is written for consumers that only
// listen on the default message channel.
func EncodeSSE(t Transport, sig *abort.Signal, src chat.Stream) Result {
	return runEvents(t, sig, src, sseFrame, sseDone)
}

func sseFrame(ev chat.Event) ([][]byte, error) {
	payload, err := chat.Payload(ev)
	if err != nil {
		return nil, err
	}
	head := make([]byte, 0, len(ev.Type())+8)
	head = append(head, "event: "...)
	head = append(head, ev.Type()...)
	head = append(head, '\n')

	data := make([]byte, 0, len(payload)+8)
	data = append(data, "data: "...)
	data = append(data, payload...)
	data = append(data, "\n\n"...)
	return [][]byte{head, data}, nil
}
