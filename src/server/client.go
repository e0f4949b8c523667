package server

import (
	"sync"
	"time"

	"market-feed/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

type Client struct {
	ID   string
	hub  *GatewayServer
	conn *websocket.Conn
	send chan models.MGatewayMessage

	// done is closed instead of send so feed callbacks never write to a
	// closed channel.
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]struct{}
}

func newClient(id string, hub *GatewayServer, conn *websocket.Conn) *Client {
	return &Client{
		ID:   id,
		hub:  hub,
		conn: conn,
		send: make(chan models.MGatewayMessage, sendBuffer),
		done: make(chan struct{}),
		subs: make(map[string]struct{}),
	}
}

// -----------------------------------------------------------------------------

// enqueue hands msg to the write pump. It reports false when the client is
// gone or its buffer is full.
func (c *Client) enqueue(msg models.MGatewayMessage) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// -----------------------------------------------------------------------------

func (c *Client) subscriberID(symbol, resolution string) string {
	return c.ID + "|" + symbol + "|" + resolution
}

func (c *Client) track(uid string) {
	c.mu.Lock()
	c.subs[uid] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) untrack(uid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[uid]; !ok {
		return false
	}
	delete(c.subs, uid)
	return true
}

// unsubscribeAll drops every feed subscription owned by the client.
func (c *Client) unsubscribeAll() {
	c.mu.Lock()
	uids := make([]string, 0, len(c.subs))
	for uid := range c.subs {
		uids = append(uids, uid)
	}
	c.subs = make(map[string]struct{})
	c.mu.Unlock()

	for _, uid := range uids {
		c.hub.feed.UnsubscribeBars(uid)
	}
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.unsubscribeAll()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.close()
		c.conn.Close()
		c.hub.Logger.Debug("Client %s disconnected", c.ID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
		c.hub.HandleClientMessage(c, message)
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Info("Write error for %s: %v", c.ID, err)
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
