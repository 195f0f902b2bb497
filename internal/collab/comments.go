package collab

import (
	"context"
	"strings"

	"propdesk/collab/internal/transport"
	"propdesk/collab/internal/util"
)

// AddComment appends a comment to the session. The caller must hold the
// comment permission at call time. Mentioned users each get a mention
// notification; every other participant gets a comment_added one.
func (e *Engine) AddComment(ctx context.Context, sessionID string, user User, content string, position Position, mentions, tags []string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content is required")
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
	if !contains(session.Permissions.CanComment, user.ID) {
		e.mu.Unlock()
		return nil, permissionDenied("user cannot comment in this session")
	}

	now := e.now()
	comment := Comment{
		ID:         util.NewID("cmt"),
		SessionID:  sessionID,
		AuthorID:   user.ID,
		AuthorName: user.Name,
		Content:    content,
		Position:   position,
		Thread:     []CommentReply{},
		CreatedAt:  now,
		UpdatedAt:  now,
		Mentions:   copyStrings(mentions),
		Tags:       copyStrings(tags),
	}
	session.Comments = append(session.Comments, comment)
	session.LastActivity = now

	deliveries := e.mentionFanoutLocked(session, user, mentions, comment.ID)
	mentioned := make(map[string]bool, len(mentions))
	for _, id := range mentions {
		mentioned[id] = true
	}
	for _, participant := range session.Participants {
		if participant.UserID == user.ID || mentioned[participant.UserID] {
			continue
		}
		deliveries = append(deliveries, e.notifyUserLocked(participant.UserID, sessionID,
			NotifyCommentAdded, user.ID, user.Name,
			user.Name+" added a comment", map[string]any{"commentId": comment.ID}))
	}

	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventCommentAdded, Update{
		SessionID:  sessionID,
		UpdateType: EventCommentAdded,
		Data:       comment,
	})
	e.deliverNotifications(ctx, deliveries)
	e.recordAudit(ctx, user.ID, "comment_added", snapshot.EntityType, snapshot.EntityID, map[string]any{
		"sessionId": sessionID,
		"commentId": comment.ID,
	})
	return &comment, nil
}

// ReplyToComment appends to a comment's thread. Threads are one level
// deep; replies cannot be replied to.
func (e *Engine) ReplyToComment(ctx context.Context, sessionID string, user User, commentID, content string, mentions []string) (*CommentReply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, invalid("content is required")
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
	if !contains(session.Permissions.CanComment, user.ID) {
		e.mu.Unlock()
		return nil, permissionDenied("user cannot comment in this session")
	}

	comment := findComment(session, commentID)
	if comment == nil {
		e.mu.Unlock()
		return nil, notFound("comment not found")
	}

	now := e.now()
	reply := CommentReply{
		ID:         util.NewID("rpl"),
		AuthorID:   user.ID,
		AuthorName: user.Name,
		Content:    content,
		CreatedAt:  now,
		Mentions:   copyStrings(mentions),
	}
	comment.Thread = append(comment.Thread, reply)
	comment.UpdatedAt = now
	session.LastActivity = now

	deliveries := e.mentionFanoutLocked(session, user, mentions, commentID)
	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventCommentAdded, Update{
		SessionID:  sessionID,
		UpdateType: "comment_replied",
		Data: map[string]any{
			"commentId": commentID,
			"reply":     reply,
		},
	})
	e.deliverNotifications(ctx, deliveries)
	return &reply, nil
}

// ResolveComment flips resolved to true. Resolution is monotonic here:
// there is no reopen. Resolving an already-resolved comment is a no-op.
func (e *Engine) ResolveComment(ctx context.Context, sessionID string, user User, commentID string) error {
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
	if !contains(session.Permissions.CanComment, user.ID) {
		e.mu.Unlock()
		return permissionDenied("user cannot resolve comments in this session")
	}

	comment := findComment(session, commentID)
	if comment == nil {
		e.mu.Unlock()
		return notFound("comment not found")
	}
	if comment.Resolved {
		e.mu.Unlock()
		return nil
	}

	now := e.now()
	comment.Resolved = true
	comment.UpdatedAt = now
	session.LastActivity = now

	deliveries := e.fanoutLocked(session, user.ID, NotifyCommentResolved, user.ID, user.Name,
		user.Name+" resolved a comment", map[string]any{"commentId": commentID})
	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventCommentResolved, Update{
		SessionID:  sessionID,
		UpdateType: EventCommentResolved,
		Data:       map[string]any{"commentId": commentID},
	})
	e.deliverNotifications(ctx, deliveries)
	e.recordAudit(ctx, user.ID, "comment_resolved", snapshot.EntityType, snapshot.EntityID, map[string]any{
		"sessionId": sessionID,
		"commentId": commentID,
	})
	return nil
}

// AddCommentReaction reacts to a comment, or to a specific reply when
// replyID is non-empty. A user holds at most one reaction per target:
// the previous one is replaced, not appended to.
func (e *Engine) AddCommentReaction(ctx context.Context, sessionID string, user User, commentID, replyID string, reactionType ReactionType) error {
	if _, ok := allowedReactionTypes[reactionType]; !ok {
		return invalid("invalid reaction type")
	}

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
	if !contains(session.Permissions.CanComment, user.ID) {
		e.mu.Unlock()
		return permissionDenied("user cannot react in this session")
	}

	comment := findComment(session, commentID)
	if comment == nil {
		e.mu.Unlock()
		return notFound("comment not found")
	}

	now := e.now()
	reaction := Reaction{
		UserID:    user.ID,
		UserName:  user.Name,
		Type:      reactionType,
		Timestamp: now,
	}
	if replyID == "" {
		comment.Reactions = replaceReaction(comment.Reactions, reaction)
	} else {
		var reply *CommentReply
		for i := range comment.Thread {
			if comment.Thread[i].ID == replyID {
				reply = &comment.Thread[i]
				break
			}
		}
		if reply == nil {
			e.mu.Unlock()
			return notFound("reply not found")
		}
		reply.Reactions = replaceReaction(reply.Reactions, reaction)
	}
	comment.UpdatedAt = now
	session.LastActivity = now
	snapshot := session.Clone()
	e.mu.Unlock()

	e.checkpointSession(ctx, snapshot)
	e.publishUpdate(transport.TypeSessionUpdate, EventSessionUpdated, Update{
		SessionID:  sessionID,
		UpdateType: "comment_reaction",
		Data: map[string]any{
			"commentId": commentID,
			"replyId":   replyID,
			"reaction":  reaction,
		},
	})
	return nil
}

func findComment(session *Session, commentID string) *Comment {
	for i := range session.Comments {
		if session.Comments[i].ID == commentID {
			return &session.Comments[i]
		}
	}
	return nil
}

// replaceReaction drops the user's previous reaction before appending
// the new one, keeping the one-reaction-per-user invariant.
func replaceReaction(reactions []Reaction, reaction Reaction) []Reaction {
	kept := reactions[:0]
	for _, existing := range reactions {
		if existing.UserID != reaction.UserID {
			kept = append(kept, existing)
		}
	}
	return append(kept, reaction)
}
