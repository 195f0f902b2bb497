package collab

import (
	"encoding/json"

	"propdesk/collab/internal/transport"
)

// handleInbound republishes messages from remote peers on the local
// event bus. It never invokes a mutation: the remote peer already
// applied the change and checkpointed it, so replaying it here would
// double-apply and echo the broadcast back out.
func (e *Engine) handleInbound(msg transport.Message) {
	var data any
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			e.logger.Printf("collab: undecodable inbound payload for %s: %v", msg.SessionID, err)
			data = nil
		}
	}
	update := Update{
		SessionID:  msg.SessionID,
		UpdateType: msg.UpdateType,
		Data:       data,
	}

	switch msg.Type {
	case transport.TypeSessionUpdate:
		// The remote peer checkpointed before broadcasting, so the store
		// holds a newer snapshot than our cached copy. Drop the cache and
		// let the next lookup reread the store.
		if e.store != nil {
			e.mu.Lock()
			delete(e.sessions, msg.SessionID)
			e.mu.Unlock()
		}
		e.events.Publish(EventSessionUpdated, update)
	case transport.TypePresenceUpdate:
		e.events.Publish(EventPresenceUpdated, update)
	default:
		e.logger.Printf("collab: unknown inbound message type %q", msg.Type)
	}
}
