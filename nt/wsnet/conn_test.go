package wsnet

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/ntsync/log2"
)

type nopHandler struct{}

func (nopHandler) OnText([]byte)          {}
func (nopHandler) OnBinary(int64, []byte) {}

// server accepts websocket and reads until client goes away
func sinkServer(t testing.TB) *httptest.Server {
	up := websocket.Upgrader{Subprotocols: []string{Subprotocol}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func TestConnSendQueueFull(t *testing.T) {
	t.Parallel()
	srv := sinkServer(t)
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)

	// writer not started, queue never drains
	c := newConn(ws, nopHandler{}, log2.NewTest(t, log2.LDebug), 1, time.Second)
	assert.True(t, c.Ready())
	assert.Equal(t, int64(0), c.LastFlushTime())
	assert.NoError(t, c.Flush(), "empty flush")

	require.NoError(t, c.WriteText([]byte(`[]`)))
	require.NoError(t, c.WriteBinary([]byte{0x90}))
	require.NoError(t, c.Flush())
	assert.False(t, c.Ready())

	require.NoError(t, c.WriteText([]byte(`[]`)))
	assert.Equal(t, ErrSendQueueFull, c.Flush())
	assert.False(t, c.Ready())
	assert.Equal(t, ErrSendQueueFull, c.Err())
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("conn not done")
	}
	assert.Equal(t, ErrClosing, c.WriteText([]byte(`[]`)))
	c.Disconnect("again")
	assert.Equal(t, ErrSendQueueFull, c.Err(), "first reason stays")
}

func TestConnWriter(t *testing.T) {
	t.Parallel()
	srv := sinkServer(t)
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)

	c := newConn(ws, nopHandler{}, log2.NewTest(t, log2.LDebug), 4, time.Second)
	c.start()
	require.NoError(t, c.WriteText([]byte(`[]`)))
	require.NoError(t, c.Flush())
	c.drain(5 * time.Second)
	assert.NotEqual(t, int64(0), c.LastFlushTime())
	assert.True(t, c.Ready())

	c.Disconnect("transmit stalled")
	<-c.Done()
	assert.EqualError(t, c.Err(), "transmit stalled")
}

func TestTruncateReason(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", truncateReason("short"))
	assert.Len(t, truncateReason(strings.Repeat("x", 200)), 123)
}
