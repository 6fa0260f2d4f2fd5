package streamhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_WritesInOrderAndEndsOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	tr := NewHTTPTransport(rec, req, 0)

	for _, s := range []string{"a", "b", "c"} {
		ok, err := tr.Write([]byte(s))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	require.NoError(t, tr.End())
	require.NoError(t, tr.End())

	assert.Equal(t, "abc", rec.Body.String())
	assert.True(t, rec.Flushed)
	assert.Equal(t, int64(3), tr.Written())

	_, err := tr.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestHTTPTransport_SaturationThenDrain(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	tr := NewHTTPTransport(rec, req, 4)
	defer tr.End()

	ok, err := tr.Write([]byte("abcd"))
	require.NoError(t, err)
	assert.False(t, ok, "buffer at the high-water mark must report saturation")

	select {
	case <-tr.Drained():
	case <-time.After(2 * time.Second):
		t.Fatal("drained never signalled")
	}

	ok, err = tr.Write([]byte("e"))
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, tr.End())
	assert.Equal(t, "abcde", rec.Body.String())
}

func TestHTTPTransport_DrainedIsClosedWhenNotSaturated(t *testing.T) {
	tr := NewHTTPTransport(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), 0)
	defer tr.End()

	select {
	case <-tr.Drained():
	default:
		t.Fatal("drained must be closed on an idle transport")
	}
}

func TestHTTPTransport_DisconnectNotifiesAndDiscards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	tr := NewHTTPTransport(rec, req, 0)

	notified := make(chan struct{})
	tr.OnDisconnect(func() { close(notified) })
	cancel()

	select {
	case <-notified:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect callback did not run")
	}

	_, _ = tr.Write([]byte("ignored"))
	err := tr.End()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Body.String())
}

func TestHTTPTransport_EndStopsDisconnectNotification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
	tr := NewHTTPTransport(httptest.NewRecorder(), req, 0)

	fired := make(chan struct{}, 1)
	tr.OnDisconnect(func() { fired <- struct{}{} })
	require.NoError(t, tr.End())
	cancel()

	select {
	case <-fired:
		t.Fatal("callback ran after End")
	case <-time.After(50 * time.Millisecond):
	}
}
