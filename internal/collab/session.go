package collab

import (
	"context"
	"sort"
	"strings"

	"propdesk/collab/internal/rbac"
	"propdesk/collab/internal/transport"
	"propdesk/collab/internal/util"
)

// StartSession creates a session with the caller as its owner and sole
// participant, holding every permission.
func (e *Engine) StartSession(ctx context.Context, documentID, entityID, entityType, title string, user User) (*Session, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, invalid("documentId is required")
	}
	if strings.TrimSpace(user.ID) == "" {
		return nil, invalid("user id is required")
	}

	now := e.now()
	session := &Session{
		ID:           util.NewID("ses"),
		DocumentID:   documentID,
		EntityID:     entityID,
		EntityType:   entityType,
		Title:        strings.TrimSpace(title),
		Status:       StatusActive,
		CreatedAt:    now,
		LastActivity: now,
		Participants: []Participant{{
			UserID:    user.ID,
			UserEmail: user.Email,
			UserName:  user.Name,
			Avatar:    user.Avatar,
			Role:      rbac.RoleOwner,
			JoinedAt:  now,
			LastSeen:  now,
			IsOnline:  true,
		}},
		Permissions: Permissions{
			CanEdit:    []string{user.ID},
			CanComment: []string{user.ID},
			CanView:    []string{user.ID},
		},
	}

	e.mu.Lock()
	e.sessions[session.ID] = session
	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventSessionStarted, Update{
		SessionID:  session.ID,
		UpdateType: EventSessionStarted,
		Data:       snapshot,
	})
	e.recordAudit(ctx, user.ID, "session_started", snapshot.EntityType, snapshot.EntityID, map[string]any{
		"sessionId":  session.ID,
		"documentId": session.DocumentID,
	})
	return snapshot, nil
}

// JoinSession adds the user as a participant, or reactivates them if they
// already participated. Roles widen the permission sets but never narrow
// them; owner cannot be acquired by joining.
func (e *Engine) JoinSession(ctx context.Context, sessionID string, user User, role string) (*Session, error) {
	if strings.TrimSpace(user.ID) == "" {
		return nil, invalid("user id is required")
	}
	joinRole := rbac.Normalize(role)
	if joinRole == rbac.RoleOwner {
		joinRole = rbac.RoleViewer
	}

	e.mu.Lock()
	session := e.lookupSession(ctx, sessionID)
	if session == nil {
		e.mu.Unlock()
		return nil, notFound("session not found")
	}
	if session.Status == StatusEnded {
		e.mu.Unlock()
		return nil, sessionEnded(sessionID)
	}

	now := e.now()
	rejoined := false
	for i := range session.Participants {
		if session.Participants[i].UserID == user.ID {
			session.Participants[i].IsOnline = true
			session.Participants[i].LastSeen = now
			rejoined = true
			break
		}
	}
	if !rejoined {
		session.Participants = append(session.Participants, Participant{
			UserID:    user.ID,
			UserEmail: user.Email,
			UserName:  user.Name,
			Avatar:    user.Avatar,
			Role:      joinRole,
			JoinedAt:  now,
			LastSeen:  now,
			IsOnline:  true,
		})
		session.Permissions.CanView = appendUnique(session.Permissions.CanView, user.ID)
		if joinRole == rbac.RoleEditor || joinRole == rbac.RoleCommenter {
			session.Permissions.CanComment = appendUnique(session.Permissions.CanComment, user.ID)
		}
		if joinRole == rbac.RoleEditor {
			session.Permissions.CanEdit = appendUnique(session.Permissions.CanEdit, user.ID)
		}
	}
	session.LastActivity = now

	deliveries := e.fanoutLocked(session, user.ID, NotifyUserJoined, user.ID, user.Name,
		user.Name+" joined the session", nil)
	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventUserJoined, Update{
		SessionID:  sessionID,
		UpdateType: EventUserJoined,
		Data:       snapshot,
	})
	e.deliverNotifications(ctx, deliveries)
	e.recordAudit(ctx, user.ID, "session_joined", snapshot.EntityType, snapshot.EntityID, map[string]any{
		"sessionId": sessionID,
		"role":      string(joinRole),
	})
	return snapshot, nil
}

// LeaveSession marks the participant offline and drops their presence
// entry. It is idempotent: a missing session or participant is a no-op,
// since unload events can race.
func (e *Engine) LeaveSession(ctx context.Context, sessionID, userID string) error {
	e.mu.Lock()
	session := e.lookupSession(ctx, sessionID)
	if session == nil {
		e.mu.Unlock()
		return nil
	}

	var leaving *Participant
	for i := range session.Participants {
		if session.Participants[i].UserID == userID {
			leaving = &session.Participants[i]
			break
		}
	}
	if leaving == nil {
		e.mu.Unlock()
		return nil
	}

	now := e.now()
	wasOnline := leaving.IsOnline
	leaving.IsOnline = false
	leaving.LastSeen = now
	leavingName := leaving.UserName

	for i, entry := range session.ActiveUsers {
		if entry.UserID == userID {
			session.ActiveUsers = append(session.ActiveUsers[:i], session.ActiveUsers[i+1:]...)
			break
		}
	}
	session.LastActivity = now

	var deliveries []NotificationDelivery
	if wasOnline {
		deliveries = e.fanoutLocked(session, userID, NotifyUserLeft, userID, leavingName,
			leavingName+" left the session", nil)
	}
	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventUserLeft, Update{
		SessionID:  sessionID,
		UpdateType: EventUserLeft,
		Data:       snapshot,
	})
	e.deliverNotifications(ctx, deliveries)
	if wasOnline {
		e.recordAudit(ctx, userID, "session_left", snapshot.EntityType, snapshot.EntityID, map[string]any{
			"sessionId": sessionID,
		})
	}
	return nil
}

// EndSession is the terminal transition. Only the owner may end a
// session; ending an already-ended session is a no-op.
func (e *Engine) EndSession(ctx context.Context, sessionID, userID string) error {
	e.mu.Lock()
	session := e.lookupSession(ctx, sessionID)
	if session == nil {
		e.mu.Unlock()
		return notFound("session not found")
	}
	if session.Status == StatusEnded {
		e.mu.Unlock()
		return nil
	}
	if !e.participantCanLocked(session, userID, rbac.ActionEnd) {
		e.mu.Unlock()
		return permissionDenied("only the owner can end a session")
	}

	session.Status = StatusEnded
	session.LastActivity = e.now()
	session.ActiveUsers = nil
	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventSessionEnded, Update{
		SessionID:  sessionID,
		UpdateType: EventSessionEnded,
		Data:       snapshot,
	})
	e.recordAudit(ctx, userID, "session_ended", snapshot.EntityType, snapshot.EntityID, map[string]any{
		"sessionId": sessionID,
	})
	return nil
}

// PauseSession and ResumeSession walk the reserved active/paused edge.
// Paused is advisory: content operations keep working.
func (e *Engine) PauseSession(ctx context.Context, sessionID, userID string) error {
	return e.setStatus(ctx, sessionID, userID, StatusActive, StatusPaused)
}

func (e *Engine) ResumeSession(ctx context.Context, sessionID, userID string) error {
	return e.setStatus(ctx, sessionID, userID, StatusPaused, StatusActive)
}

func (e *Engine) setStatus(ctx context.Context, sessionID, userID string, from, to SessionStatus) error {
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
	if !e.participantCanLocked(session, userID, rbac.ActionEnd) {
		e.mu.Unlock()
		return permissionDenied("only the owner can change session status")
	}
	if session.Status != from {
		e.mu.Unlock()
		return invalid("session is not " + string(from))
	}

	session.Status = to
	session.LastActivity = e.now()
	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventSessionUpdated, Update{
		SessionID:  sessionID,
		UpdateType: "status_changed",
		Data:       snapshot,
	})
	return nil
}

// GetSession returns a snapshot of the session, or false when it does
// not exist here or in the checkpoint store.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	session := e.lookupSession(ctx, sessionID)
	if session == nil {
		return nil, false
	}
	return session.Clone(), true
}

// GetUserSessions returns snapshots of every session the user
// participates in, most recently active first.
func (e *Engine) GetUserSessions(userID string) []*Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	var sessions []*Session
	for _, session := range e.sessions {
		for _, participant := range session.Participants {
			if participant.UserID == userID {
				sessions = append(sessions, session.Clone())
				break
			}
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return sessions
}

// participantCanLocked re-evaluates the acting user's role on every call
// so mid-session downgrades take effect immediately.
func (e *Engine) participantCanLocked(session *Session, userID string, action rbac.Action) bool {
	for _, participant := range session.Participants {
		if participant.UserID == userID {
			return rbac.Can(participant.Role, action)
		}
	}
	return false
}
