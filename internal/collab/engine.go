// Package collab implements the collaboration session engine: session
// lifecycle, participants and permissions, presence tracking, threaded
// comments with reactions, positional annotations, and per-recipient
// notification fan-out. Local state is the source of truth; transport
// and checkpointing are best effort.
package collab

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"propdesk/collab/internal/audit"
	"propdesk/collab/internal/bus"
	"propdesk/collab/internal/checkpoint"
	"propdesk/collab/internal/transport"
)

const (
	EventSessionStarted    = "session_started"
	EventSessionEnded      = "session_ended"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventCommentAdded      = "comment_added"
	EventCommentResolved   = "comment_resolved"
	EventAnnotationAdded   = "annotation_added"
	EventSessionUpdated    = "session_updated"
	EventPresenceUpdated   = "presence_updated"
	EventNotificationAdded = "notification_added"
)

const (
	presenceStaleAfter = 5 * time.Minute
	heartbeatInterval  = 30 * time.Second
	notificationCap    = 100
)

// Update is the payload published on the event bus and serialized into
// outbound transport messages.
type Update struct {
	SessionID  string `json:"sessionId"`
	UpdateType string `json:"updateType"`
	Data       any    `json:"data,omitempty"`
}

// NotificationDelivery is the payload published on notification_added.
type NotificationDelivery struct {
	UserID       string        `json:"userId"`
	Notification *Notification `json:"notification"`
}

// Deps are the engine's external collaborators. Every field is optional:
// nil Store disables checkpointing, nil Transport disables broadcast,
// nil Audit discards audit events.
type Deps struct {
	Store     checkpoint.Store
	Transport transport.Channel
	Audit     audit.Sink
	Logger    *log.Logger
	Now       func() time.Time
}

type heartbeatHandle struct {
	sessionID string
	user      User
	stop      chan struct{}
	stopOnce  sync.Once
}

// cancel is idempotent: the stop func, a heartbeat replacement, and
// Engine.Close can all race to cancel the same handle.
func (h *heartbeatHandle) cancel() {
	h.stopOnce.Do(func() { close(h.stop) })
}

type Engine struct {
	mu            sync.Mutex
	sessions      map[string]*Session
	notifications map[string][]*Notification
	heartbeats    map[string]*heartbeatHandle
	closed        bool

	store   checkpoint.Store
	channel transport.Channel
	sink    audit.Sink
	logger  *log.Logger
	now     func() time.Time
	events  *bus.Bus

	// Shortened in tests.
	heartbeatEvery time.Duration
}

func New(deps Deps) *Engine {
	e := &Engine{
		sessions:       make(map[string]*Session),
		notifications:  make(map[string][]*Notification),
		heartbeats:     make(map[string]*heartbeatHandle),
		store:          deps.Store,
		channel:        deps.Transport,
		sink:           deps.Audit,
		logger:         deps.Logger,
		now:            deps.Now,
		events:         bus.New(),
		heartbeatEvery: heartbeatInterval,
	}
	if e.sink == nil {
		e.sink = audit.NopSink{}
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.channel != nil {
		e.channel.OnMessage(e.handleInbound)
	}
	return e
}

// On subscribes to an engine event and returns a subscription id for Off.
func (e *Engine) On(event string, fn bus.Handler) int {
	return e.events.On(event, fn)
}

func (e *Engine) Off(event string, id int) {
	e.events.Off(event, id)
}

// Close stops all heartbeats and best-effort leaves the sessions they
// were keeping alive. The injected transport and store stay open; their
// owner closes them.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	handles := make([]*heartbeatHandle, 0, len(e.heartbeats))
	for _, handle := range e.heartbeats {
		handles = append(handles, handle)
	}
	e.heartbeats = make(map[string]*heartbeatHandle)
	e.mu.Unlock()

	ctx := context.Background()
	for _, handle := range handles {
		handle.cancel()
		if err := e.LeaveSession(ctx, handle.sessionID, handle.user.ID); err != nil {
			e.logger.Printf("collab: leave on close failed for %s: %v", handle.sessionID, err)
		}
	}
}

// lookupSession finds a live session, falling back to the checkpoint
// store for sessions that predate this process. Store failures are
// logged and treated as a miss.
func (e *Engine) lookupSession(ctx context.Context, sessionID string) *Session {
	if session, ok := e.sessions[sessionID]; ok {
		return session
	}
	if e.store == nil {
		return nil
	}
	raw, err := e.store.Get(ctx, sessionKey(sessionID))
	if err != nil {
		e.logger.Printf("collab: checkpoint read failed for %s: %v", sessionID, err)
		return nil
	}
	if raw == nil {
		return nil
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		e.logger.Printf("collab: corrupt checkpoint for %s: %v", sessionID, err)
		return nil
	}
	// Presence does not survive a restart.
	session.ActiveUsers = nil
	e.sessions[sessionID] = &session
	return &session
}

func sessionKey(sessionID string) string    { return "session:" + sessionID }
func notificationsKey(userID string) string { return "notifications:" + userID }

// publishUpdate pushes a mutation to local subscribers and to the
// transport. Transport failures never surface to the caller.
func (e *Engine) publishUpdate(msgType, eventName string, update Update) {
	e.events.Publish(eventName, update)
	generic := EventSessionUpdated
	if msgType == transport.TypePresenceUpdate {
		generic = EventPresenceUpdated
	}
	if eventName != generic {
		e.events.Publish(generic, update)
	}

	if e.channel == nil {
		return
	}
	data, err := json.Marshal(update.Data)
	if err != nil {
		e.logger.Printf("collab: marshal broadcast for %s: %v", update.SessionID, err)
		return
	}
	msg := transport.Message{
		Type:       msgType,
		SessionID:  update.SessionID,
		UpdateType: update.UpdateType,
		Data:       data,
		Timestamp:  e.now(),
	}
	if err := e.channel.Send(msg); err != nil {
		e.logger.Printf("collab: broadcast failed for %s: %v", update.SessionID, err)
	}
}

func (e *Engine) deliverNotifications(ctx context.Context, deliveries []NotificationDelivery) {
	seen := make(map[string]bool, len(deliveries))
	for _, delivery := range deliveries {
		e.events.Publish(EventNotificationAdded, delivery)
		seen[delivery.UserID] = true
	}
	for userID := range seen {
		e.checkpointNotifications(ctx, userID)
	}
}

func (e *Engine) checkpointSession(ctx context.Context, snapshot *Session) {
	if e.store == nil || snapshot == nil {
		return
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		e.logger.Printf("collab: marshal checkpoint for %s: %v", snapshot.ID, err)
		return
	}
	if err := e.store.Set(ctx, sessionKey(snapshot.ID), raw); err != nil {
		e.logger.Printf("collab: checkpoint write failed for %s: %v", snapshot.ID, err)
	}
}

func (e *Engine) checkpointNotifications(ctx context.Context, userID string) {
	if e.store == nil {
		return
	}
	e.mu.Lock()
	list := e.notifications[userID]
	copied := make([]*Notification, len(list))
	for i, note := range list {
		copied[i] = note.clone()
	}
	e.mu.Unlock()

	raw, err := json.Marshal(copied)
	if err != nil {
		e.logger.Printf("collab: marshal notifications for %s: %v", userID, err)
		return
	}
	if err := e.store.Set(ctx, notificationsKey(userID), raw); err != nil {
		e.logger.Printf("collab: notification checkpoint failed for %s: %v", userID, err)
	}
}

func (e *Engine) recordAudit(ctx context.Context, userID, activityType, entityType, entityID string, metadata map[string]any) {
	event := audit.Event{
		UserID:       userID,
		ActivityType: activityType,
		EntityType:   entityType,
		EntityID:     entityID,
		Metadata:     metadata,
	}
	if err := e.sink.Record(ctx, event); err != nil {
		e.logger.Printf("collab: audit record failed: %v", err)
	}
}
