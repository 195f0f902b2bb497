package collab

import (
	"context"
	"strings"

	"propdesk/collab/internal/transport"
	"propdesk/collab/internal/util"
)

// AddAnnotation appends a positional markup object. Only users holding
// the edit permission may annotate. Annotations are append-only: there
// is no update or delete.
func (e *Engine) AddAnnotation(ctx context.Context, sessionID string, user User, annotationType AnnotationType, position AnnotationPosition, style Style, content string) (*Annotation, error) {
	if _, ok := allowedAnnotationTypes[annotationType]; !ok {
		return nil, invalid("invalid annotation type")
	}
	if annotationType == AnnotationFreehand && len(position.Points) == 0 {
		return nil, invalid("freehand annotation requires points")
	}
	if annotationType != AnnotationFreehand && position.Rect == nil {
		return nil, invalid("annotation requires a rect")
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
	if !contains(session.Permissions.CanEdit, user.ID) {
		e.mu.Unlock()
		return nil, permissionDenied("user cannot annotate in this session")
	}

	now := e.now()
	annotation := Annotation{
		ID:         util.NewID("ann"),
		SessionID:  sessionID,
		AuthorID:   user.ID,
		AuthorName: user.Name,
		Type:       annotationType,
		Position:   position,
		Style:      style,
		Content:    strings.TrimSpace(content),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	session.Annotations = append(session.Annotations, annotation)
	session.LastActivity = now

	deliveries := e.fanoutLocked(session, user.ID, NotifyAnnotationAdded, user.ID, user.Name,
		user.Name+" added an annotation", map[string]any{"annotationId": annotation.ID})
	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventAnnotationAdded, Update{
		SessionID:  sessionID,
		UpdateType: EventAnnotationAdded,
		Data:       annotation,
	})
	e.deliverNotifications(ctx, deliveries)
	e.recordAudit(ctx, user.ID, "annotation_added", snapshot.EntityType, snapshot.EntityID, map[string]any{
		"sessionId":    sessionID,
		"annotationId": annotation.ID,
		"type":         string(annotationType),
	})
	return &annotation, nil
}
