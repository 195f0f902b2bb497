package collab

import (
	"context"
	"hash/fnv"
	"time"

	"propdesk/collab/internal/transport"
)

// presencePalette is the set of cursor colors handed out to users. The
// same userId always maps to the same color, across sessions and
// processes.
var presencePalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#008080",
	"#9a6324", "#800000", "#808000", "#000075", "#fabebe",
}

// ColorFor returns the deterministic presence color for a user id.
func ColorFor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return presencePalette[h.Sum32()%uint32(len(presencePalette))]
}

// UpdatePresence upserts the caller's presence entry and sweeps entries
// that have gone stale. Staleness is enforced opportunistically on every
// presence write rather than by a background timer.
func (e *Engine) UpdatePresence(ctx context.Context, sessionID string, user User, cursor *Cursor, selection *Selection, activity string) error {
	e.mu.Lock()
	session := e.lookupSession(ctx, sessionID)
	if session == nil {
		e.mu.Unlock()
		return notFound("session not found")
	}
	if session.Status == StatusEnded {
		e.mu.Unlock()
		return sessionEnded(sessionID)
	}

	now := e.now()
	entry := PresenceEntry{
		UserID:       user.ID,
		UserName:     user.Name,
		UserColor:    ColorFor(user.ID),
		Cursor:       cursor,
		Selection:    selection,
		Activity:     activity,
		LastActivity: now,
	}

	updated := false
	for i := range session.ActiveUsers {
		if session.ActiveUsers[i].UserID == user.ID {
			session.ActiveUsers[i] = entry
			updated = true
			break
		}
	}
	if !updated {
		session.ActiveUsers = append(session.ActiveUsers, entry)
	}

	// Sweep everyone who has not been heard from within the window.
	kept := session.ActiveUsers[:0]
	for _, active := range session.ActiveUsers {
		if now.Sub(active.LastActivity) <= presenceStaleAfter {
			kept = append(kept, active)
		}
	}
	session.ActiveUsers = kept

	for i := range session.Participants {
		if session.Participants[i].UserID == user.ID {
			session.Participants[i].LastSeen = now
			session.Participants[i].IsOnline = true
			break
		}
	}

	activeUsers := make([]PresenceEntry, len(session.ActiveUsers))
	copy(activeUsers, session.ActiveUsers)
	e.mu.Unlock()

	e.publishUpdate(transport.TypePresenceUpdate, EventPresenceUpdated, Update{
		SessionID:  sessionID,
		UpdateType: EventPresenceUpdated,
		Data: map[string]any{
			"entry":       entry,
			"activeUsers": activeUsers,
		},
	})
	return nil
}

// StartHeartbeat keeps the user's own presence entry fresh with a
// periodic viewing update, so peers do not sweep them while idle. The
// returned stop function cancels the heartbeat; Engine.Close stops all
// heartbeats and leaves their sessions.
func (e *Engine) StartHeartbeat(ctx context.Context, sessionID string, user User) (stop func()) {
	handle := &heartbeatHandle{
		sessionID: sessionID,
		user:      user,
		stop:      make(chan struct{}),
	}
	key := sessionID + "|" + user.ID

	e.mu.Lock()
	if existing, ok := e.heartbeats[key]; ok {
		existing.cancel()
	}
	e.heartbeats[key] = handle
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(e.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-handle.stop:
				return
			case <-ticker.C:
				if err := e.UpdatePresence(ctx, sessionID, user, nil, nil, "viewing"); err != nil {
					e.logger.Printf("collab: heartbeat presence failed for %s: %v", sessionID, err)
				}
			}
		}
	}()

	return func() {
		e.mu.Lock()
		if current, ok := e.heartbeats[key]; ok && current == handle {
			delete(e.heartbeats, key)
		}
		e.mu.Unlock()
		handle.cancel()
	}
}
