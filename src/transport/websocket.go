package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"market-feed/src/interfaces"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WebSocketTransport dials the live market-data source with gorilla/websocket.
type WebSocketTransport struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

// -----------------------------------------------------------------------------

func NewWebSocketTransport(url string) *WebSocketTransport {
	return &WebSocketTransport{
		URL:    url,
		Dialer: websocket.DefaultDialer,
	}
}

// -----------------------------------------------------------------------------

// Dial opens one websocket session. The handshake is bounded by ctx.
func (t *WebSocketTransport) Dial(ctx context.Context) (interfaces.IConn, error) {
	conn, resp, err := t.Dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", t.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", t.URL, err)
	}
	return &wsConn{conn: conn}, nil
}

// -----------------------------------------------------------------------------

// wsConn serializes writes; gorilla allows one concurrent writer only.
type wsConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
