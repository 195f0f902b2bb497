// Package transport carries collaboration updates between peers. The
// engine only depends on the Channel contract; adapters provide the
// concrete wire (WebSocket hub, Redis pub/sub, in-memory pair).
// Delivery is best effort: no acknowledgement, no retry.
package transport

import (
	"encoding/json"
	"time"
)

const (
	TypeSessionUpdate  = "session_update"
	TypePresenceUpdate = "presence_update"
)

type Message struct {
	Type       string          `json:"type"`
	SessionID  string          `json:"sessionId"`
	UpdateType string          `json:"updateType"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	// Origin identifies the sending peer so adapters that hear their own
	// broadcasts (Redis pub/sub) can skip them.
	Origin string `json:"origin,omitempty"`
}

type Handler func(Message)

type Channel interface {
	Send(Message) error
	OnMessage(Handler)
	Close() error
}
