package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Size of the send channel buffer
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// subscriptions tracks the traces a client is subscribed to
type subscriptions struct {
	traces map[string]bool
	mu     sync.RWMutex
}

func (s *subscriptions) empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.traces) == 0
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *WSEvent

	id   string
	subs *subscriptions
}

// ServeWS upgrades an HTTP request to a websocket connection and starts
// the client pumps.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan *WSEvent, sendBufferSize),
		id:   uuid.NewString(),
		subs: &subscriptions{traces: make(map[string]bool)},
	}
	hub.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump reads commands from the peer and applies subscriptions.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd WSCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}

		switch cmd.Action {
		case CmdSubscribe:
			if cmd.TraceID != "" {
				c.hub.Subscribe(c, cmd.TraceID)
			}
		case CmdUnsubscribe:
			if cmd.TraceID != "" {
				c.hub.Unsubscribe(c, cmd.TraceID)
			}
		}
	}
}

// writePump pushes events and keep-alive pings to the peer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
