package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"market-feed/src/models"
	"market-feed/src/multiplexer"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop
func (s *GatewayServer) handleWebsockets() {
	for {
		select {
		case <-s.quit:
			for client := range s.clients {
				delete(s.clients, client)
				client.close()
			}
			s.setClientCount(0)
			return

		case client := <-s.register:
			s.clients[client] = struct{}{}
			s.setClientCount(len(s.clients))

			// Replay the last broadcast so new clients start with a status
			s.stateMutex.RLock()
			latest := s.latest
			s.stateMutex.RUnlock()
			if latest != nil {
				client.enqueue(*latest)
			}

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.close()
				s.setClientCount(len(s.clients))
			}

		case message := <-s.broadcast:
			s.stateMutex.Lock()
			s.latest = &message
			s.stateMutex.Unlock()

			for client := range s.clients {
				if !client.enqueue(message) {
					// Slow consumers are pruned so the hub never blocks
					s.Logger.Warning("Client %s too slow, disconnecting", client.ID)
					delete(s.clients, client)
					client.close()
				}
			}
			s.setClientCount(len(s.clients))
		}
	}
}

func (s *GatewayServer) setClientCount(n int) {
	s.stateMutex.Lock()
	s.clientsN = n
	s.stateMutex.Unlock()
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// Broadcast queues a payload for every connected client. It accepts a
// models.MGatewayMessage or a models.MFeedStatus.
func (s *GatewayServer) Broadcast(payload interface{}) {
	var msg models.MGatewayMessage
	switch p := payload.(type) {
	case models.MGatewayMessage:
		msg = p
	case *models.MGatewayMessage:
		if p == nil {
			return
		}
		msg = *p
	case models.MFeedStatus:
		msg = models.MGatewayMessage{Type: models.PushStatus, Status: &p}
	default:
		s.Logger.Warning("Broadcast got unsupported payload %T", payload)
		return
	}

	select {
	case s.broadcast <- msg:
	case <-s.quit:
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(uuid.NewString(), s, conn)

	select {
	case s.register <- client:
	case <-s.quit:
		conn.Close()
		return
	}
	s.Logger.Debug("Client %s connected from %s", client.ID, c.ClientIP())

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *GatewayServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MClientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse command from %s: %v", client.ID, err)
		client.enqueue(models.MGatewayMessage{Type: models.PushError, Message: "invalid command"})
		return
	}

	switch strings.ToLower(cmd.Command) {
	case "subscribe":
		s.subscribe(client, cmd)
	case "unsubscribe":
		s.unsubscribe(client, cmd)
	default:
		client.enqueue(models.MGatewayMessage{Type: models.PushError, Message: "unknown command '" + cmd.Command + "'"})
	}
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) subscribe(client *Client, cmd models.MClientCommand) {
	sym, err := s.resolve(context.Background(), cmd.Symbol)
	if err != nil {
		client.enqueue(models.MGatewayMessage{Type: models.PushError, Symbol: cmd.Symbol, Resolution: cmd.Resolution, Message: err.Error()})
		return
	}
	name, res := sym.FullName(), cmd.Resolution
	uid := client.subscriberID(name, res)

	handlers := multiplexer.Handlers{
		OnRealtime: func(bar models.MBar) {
			b := bar
			client.enqueue(models.MGatewayMessage{Type: models.PushBar, Symbol: name, Resolution: res, Bar: &b})
		},
		OnResetCache: func() {
			client.enqueue(models.MGatewayMessage{Type: models.PushReset, Symbol: name, Resolution: res})
		},
		OnError: func(err error) {
			client.enqueue(models.MGatewayMessage{Type: models.PushError, Symbol: name, Resolution: res, Message: err.Error()})
		},
	}

	if err := s.feed.SubscribeBars(sym, res, uid, handlers); err != nil {
		client.enqueue(models.MGatewayMessage{Type: models.PushError, Symbol: name, Resolution: res, Message: err.Error()})
		return
	}
	client.track(uid)
	client.enqueue(models.MGatewayMessage{Type: models.PushSubscribed, Symbol: name, Resolution: res})
}

// -----------------------------------------------------------------------------

func (s *GatewayServer) unsubscribe(client *Client, cmd models.MClientCommand) {
	sym, err := s.resolve(context.Background(), cmd.Symbol)
	if err != nil {
		client.enqueue(models.MGatewayMessage{Type: models.PushError, Symbol: cmd.Symbol, Resolution: cmd.Resolution, Message: err.Error()})
		return
	}
	name, res := sym.FullName(), cmd.Resolution
	uid := client.subscriberID(name, res)

	if client.untrack(uid) {
		s.feed.UnsubscribeBars(uid)
	}
	client.enqueue(models.MGatewayMessage{Type: models.PushUnsubscribed, Symbol: name, Resolution: res})
}
