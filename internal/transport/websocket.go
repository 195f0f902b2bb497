package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"propdesk/collab/internal/util"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 54 * time.Second
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Conn is one WebSocket client attached to a session room.
type Conn struct {
	id        string
	sessionID string
	userID    string
	ws        *websocket.Conn
	send      chan []byte
	hub       *Hub
}

type roomBroadcast struct {
	sessionID string
	payload   []byte
	sender    *Conn
}

// Hub fans collaboration messages out to WebSocket clients grouped by
// session. It implements Channel for the engine side: Send broadcasts to
// the session's room, OnMessage receives what clients send up.
type Hub struct {
	rooms      map[string]map[*Conn]bool
	register   chan *Conn
	unregister chan *Conn
	broadcast  chan roomBroadcast
	done       chan struct{}
	logger     *log.Logger

	mu      sync.Mutex
	handler Handler
	closed  bool
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	h := &Hub{
		rooms:      make(map[string]map[*Conn]bool),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		broadcast:  make(chan roomBroadcast, sendBufferSize),
		done:       make(chan struct{}),
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case conn := <-h.register:
			if h.rooms[conn.sessionID] == nil {
				h.rooms[conn.sessionID] = make(map[*Conn]bool)
			}
			h.rooms[conn.sessionID][conn] = true
		case conn := <-h.unregister:
			if room, ok := h.rooms[conn.sessionID]; ok {
				if _, ok := room[conn]; ok {
					delete(room, conn)
					close(conn.send)
					if len(room) == 0 {
						delete(h.rooms, conn.sessionID)
					}
				}
			}
		case msg := <-h.broadcast:
			for conn := range h.rooms[msg.sessionID] {
				if msg.sender != nil && conn == msg.sender {
					continue
				}
				select {
				case conn.send <- msg.payload:
				default:
					// Buffer full: the client is slow or gone.
					h.logger.Printf("transport: dropping slow connection %s", conn.id)
					delete(h.rooms[msg.sessionID], conn)
					close(conn.send)
				}
			}
		}
	}
}

// Send broadcasts an engine-side message to every client in the
// session's room.
func (h *Hub) Send(msg Message) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- roomBroadcast{sessionID: msg.SessionID, payload: payload}:
	case <-h.done:
		return ErrChannelClosed
	}
	return nil
}

func (h *Hub) OnMessage(fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = fn
}

func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	close(h.done)
	return nil
}

// HandleConnection upgrades an HTTP request and attaches the client to
// the session's room until the socket closes.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID, userID string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("transport: upgrade failed: %v", err)
		return
	}

	conn := &Conn{
		id:        util.NewID("conn"),
		sessionID: sessionID,
		userID:    userID,
		ws:        ws,
		send:      make(chan []byte, sendBufferSize),
		hub:       h,
	}
	select {
	case h.register <- conn:
	case <-h.done:
		ws.Close()
		return
	}

	go conn.writePump()
	go conn.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Printf("transport: read error on %s: %v", c.id, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.hub.logger.Printf("transport: dropping malformed message from %s: %v", c.id, err)
			continue
		}
		// Clients only speak for the session they are attached to.
		msg.SessionID = c.sessionID

		c.hub.mu.Lock()
		handler := c.hub.handler
		c.hub.mu.Unlock()
		if handler != nil {
			handler(msg)
		}

		// Relay to the other clients in the room.
		select {
		case c.hub.broadcast <- roomBroadcast{sessionID: c.sessionID, payload: payload, sender: c}:
		case <-c.hub.done:
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
