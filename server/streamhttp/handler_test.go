package streamhttp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/streamdemo/abort"
	"github.com/KamdynS/streamdemo/chat"
	"github.com/KamdynS/streamdemo/delay"
	"github.com/KamdynS/streamdemo/observability"
)

func newTestStreamer(text string, ended chan<- observability.StreamStats) *Streamer {
	hooks := &observability.Hooks{
		OnStreamEnd: func(_ context.Context, s observability.StreamStats) {
			if ended != nil {
				ended <- s
			}
		},
	}
	return NewStreamer(Options{
		Chat:          instantChat(text),
		Raw:           RawOptions{Sleeper: delay.None},
		RawParagraphs: 2,
		Hooks:         hooks,
	})
}

func waitStats(t *testing.T, ch <-chan observability.StreamStats) observability.StreamStats {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("stream end hook not called")
		return observability.StreamStats{}
	}
}

func TestNDJSONHandler_OverHTTP(t *testing.T) {
	ended := make(chan observability.StreamStats, 1)
	s := newTestStreamer("one two three", ended)
	srv := httptest.NewServer(http.HandlerFunc(s.NDJSONHandler))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, []string{"chunked"}, resp.TransferEncoding)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assertOrdered(t, parseNDJSON(t, string(body)))

	stats := waitStats(t, ended)
	assert.Equal(t, "ndjson", stats.Kind)
	assert.Equal(t, StateComplete.String(), stats.State)
	assert.Equal(t, int64(len(body)), stats.Bytes)
}

func TestSSEHandler_HeadersAndBody(t *testing.T) {
	s := newTestStreamer("Hello world", nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream/sse", nil)

	s.SSEHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: message_start\ndata: {\"message_id\":\"msg_"))
	assert.Contains(t, body, "event: delta\ndata: {\"delta\":{\"content\":\"Hello\"},\"index\":0}\n\n")
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

func TestRawHandler_ParagraphText(t *testing.T) {
	s := newTestStreamer("", nil)
	srv := httptest.NewServer(http.HandlerFunc(s.RawHandler))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, []string{"chunked"}, resp.TransferEncoding)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, body)
	assert.Contains(t, string(body), "\n\n")
}

func TestRawHandler_CustomText(t *testing.T) {
	s := newTestStreamer("", nil)
	s.NewText = func() (string, error) { return "ünïcode\n\ntext", nil }
	rec := httptest.NewRecorder()

	s.RawHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "ünïcode\n\ntext", rec.Body.String())
	// Chunked framing is left to net/http.
	assert.Empty(t, rec.Header().Get("Transfer-Encoding"))
}

func TestHandlers_SetupFailureIs500(t *testing.T) {
	s := newTestStreamer("x", nil)
	s.NewStream = func(*abort.Signal) (chat.Stream, error) { return nil, errors.New("no generator") }
	s.NewText = func() (string, error) { return "", errors.New("no text") }

	cases := map[string]http.HandlerFunc{
		"raw":    s.RawHandler,
		"ndjson": s.NDJSONHandler,
		"sse":    s.SSEHandler,
	}
	for kind, h := range cases {
		t.Run(kind, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
			assert.Contains(t, rec.Body.String(), "failed to start "+kind+" stream")
		})
	}
}

func TestSSEHandler_ClientDisconnectStopsStream(t *testing.T) {
	ended := make(chan observability.StreamStats, 1)
	words := strings.Repeat("word ", 2000)
	s := newTestStreamer(words, ended)
	s.opts.Chat.Sleeper = delay.SleeperFunc(func(time.Duration) { time.Sleep(time.Millisecond) })
	srv := httptest.NewServer(http.HandlerFunc(s.SSEHandler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: message_start\n", line)
	cancel()
	resp.Body.Close()

	stats := waitStats(t, ended)
	assert.NotEqual(t, StateComplete.String(), stats.State)
	assert.Less(t, stats.Events, 4000)
}
