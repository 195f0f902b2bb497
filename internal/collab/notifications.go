package collab

import (
	"context"
	"encoding/json"

	"propdesk/collab/internal/util"
)

// notifyUserLocked builds and stores one notification. The newest entry
// sits at the front and the per-user list is capped; old entries fall
// off the end. Caller holds e.mu.
func (e *Engine) notifyUserLocked(userID, sessionID string, notType NotificationType, actorID, actorName, message string, metadata map[string]any) NotificationDelivery {
	note := &Notification{
		ID:            util.NewID("ntf"),
		SessionID:     sessionID,
		Type:          notType,
		ActorUserID:   actorID,
		ActorUserName: actorName,
		Message:       message,
		Timestamp:     e.now(),
		Metadata:      copyMetadata(metadata),
	}
	list := append([]*Notification{note}, e.notifications[userID]...)
	if len(list) > notificationCap {
		list = list[:notificationCap]
	}
	e.notifications[userID] = list
	return NotificationDelivery{UserID: userID, Notification: note.clone()}
}

// fanoutLocked notifies every participant except the actor. Caller
// holds e.mu.
func (e *Engine) fanoutLocked(session *Session, excludeUserID string, notType NotificationType, actorID, actorName, message string, metadata map[string]any) []NotificationDelivery {
	var deliveries []NotificationDelivery
	for _, participant := range session.Participants {
		if participant.UserID == excludeUserID {
			continue
		}
		deliveries = append(deliveries, e.notifyUserLocked(participant.UserID, session.ID,
			notType, actorID, actorName, message, metadata))
	}
	return deliveries
}

// mentionFanoutLocked notifies each mentioned user. Mentions are not
// restricted to participants: a mentioned user sees the notification
// when they next open their feed, whether or not they joined. Caller
// holds e.mu.
func (e *Engine) mentionFanoutLocked(session *Session, actor User, mentions []string, commentID string) []NotificationDelivery {
	var deliveries []NotificationDelivery
	for _, userID := range mentions {
		if userID == actor.ID {
			continue
		}
		deliveries = append(deliveries, e.notifyUserLocked(userID, session.ID,
			NotifyMention, actor.ID, actor.Name,
			actor.Name+" mentioned you in a comment",
			map[string]any{"commentId": commentID}))
	}
	return deliveries
}

// GetUserNotifications returns the user's notifications newest first,
// optionally filtered to one session. Users unseen by this process are
// restored from the checkpoint store.
func (e *Engine) GetUserNotifications(ctx context.Context, userID, sessionID string) []*Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, ok := e.notifications[userID]
	if !ok {
		list = e.restoreNotificationsLocked(ctx, userID)
	}

	out := make([]*Notification, 0, len(list))
	for _, note := range list {
		if sessionID != "" && note.SessionID != sessionID {
			continue
		}
		out = append(out, note.clone())
	}
	return out
}

// MarkNotificationsAsRead marks the given ids read. Unknown ids are
// ignored.
func (e *Engine) MarkNotificationsAsRead(ctx context.Context, userID string, ids []string) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	e.mu.Lock()
	list, ok := e.notifications[userID]
	if !ok {
		list = e.restoreNotificationsLocked(ctx, userID)
	}
	changed := false
	for _, note := range list {
		if wanted[note.ID] && !note.Read {
			note.Read = true
			changed = true
		}
	}
	e.mu.Unlock()

	if changed {
		e.checkpointNotifications(ctx, userID)
	}
}

// restoreNotificationsLocked loads a user's notification list from the
// checkpoint store. An empty (non-nil) list is cached on miss so the
// store is only consulted once per user. Caller holds e.mu.
func (e *Engine) restoreNotificationsLocked(ctx context.Context, userID string) []*Notification {
	list := []*Notification{}
	if e.store != nil {
		raw, err := e.store.Get(ctx, notificationsKey(userID))
		if err != nil {
			e.logger.Printf("collab: notification restore failed for %s: %v", userID, err)
		} else if raw != nil {
			if err := json.Unmarshal(raw, &list); err != nil {
				e.logger.Printf("collab: corrupt notifications for %s: %v", userID, err)
				list = []*Notification{}
			}
		}
	}
	if len(list) > notificationCap {
		list = list[:notificationCap]
	}
	e.notifications[userID] = list
	return list
}
