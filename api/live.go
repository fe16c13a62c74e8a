/*
live.go - Live standings over WebSocket

PURPOSE:
  Pushes the current leaderboard to every connected dashboard whenever a
  point event lands, so wall displays update without polling.

PROTOCOL:
  Server-to-client only. Each message is the full standings array (the
  same shape as GET /api/points); clients replace, never merge. Client
  frames are read and discarded to service pings and detect closes.

SEE ALSO:
  - handlers.go: calls Hub.BroadcastStandings after point changes
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/emberhall/house-points/points"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 8
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub maintains the set of live connections and broadcasts standings
// snapshots to all of them.
type Hub struct {
	clients    map[*liveClient]bool
	register   chan *liveClient
	unregister chan *liveClient
	broadcast  chan []byte
	log        zerolog.Logger
}

// NewHub creates a hub. Call Run in a goroutine before serving.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*liveClient]bool),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		broadcast:  make(chan []byte, 16),
		log:        log,
	}
}

// Run owns the client set. All membership changes and broadcasts go
// through this loop, so no lock is needed.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug().Int("clients", len(h.clients)).Msg("live client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.log.Debug().Int("clients", len(h.clients)).Msg("live client disconnected")
		case msg := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow consumer; drop it rather than stall everyone.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// BroadcastStandings pushes a standings snapshot to every client.
func (h *Hub) BroadcastStandings(totals []points.Total) {
	msg, err := json.Marshal(toTotalDTOs(totals))
	if err != nil {
		h.log.Error().Err(err).Msg("encode standings broadcast")
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn().Msg("broadcast queue full, dropping standings update")
	}
}

type liveClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *liveClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// serveWs upgrades the connection, registers the client, and sends an
// initial standings snapshot so new dashboards render immediately.
func (h *Handler) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &liveClient{hub: h.Hub, conn: conn, send: make(chan []byte, clientSendSize)}
	h.Hub.register <- client

	if totals, err := h.Ledger.Totals(r.Context()); err == nil {
		if msg, err := json.Marshal(toTotalDTOs(totals)); err == nil {
			client.send <- msg
		}
	}

	go client.writePump()
	go client.readPump()
}
