package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
}

func TestWebSocketTransportRoundTrip(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	tr := NewWebSocketTransport("ws" + strings.TrimPrefix(srv.URL, "http"))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := tr.Dial(ctx)
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage([]byte(`{"type":"subscribe"}`)))
	msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe"}`, string(msg))

	require.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	_, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketTransportDialFailure(t *testing.T) {
	tr := NewWebSocketTransport("ws://127.0.0.1:1/none")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := tr.Dial(ctx)
	assert.Error(t, err)
}
