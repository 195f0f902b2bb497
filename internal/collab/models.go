package collab

import (
	"time"

	"propdesk/collab/internal/rbac"
)

type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusPaused SessionStatus = "paused"
	StatusEnded  SessionStatus = "ended"
)

// User identifies the acting user on an engine call.
type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Participant struct {
	UserID    string    `json:"userId"`
	UserEmail string    `json:"userEmail"`
	UserName  string    `json:"userName"`
	Avatar    string    `json:"avatar,omitempty"`
	Role      rbac.Role `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
	LastSeen  time.Time `json:"lastSeen"`
	IsOnline  bool      `json:"isOnline"`
}

type Cursor struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	ElementID string    `json:"elementId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Selection struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	ElementID string `json:"elementId,omitempty"`
	Text      string `json:"text,omitempty"`
}

// PresenceEntry is the ephemeral "where is this user right now" record.
// Entries not refreshed within the staleness window are swept on the next
// presence write for the session.
type PresenceEntry struct {
	UserID       string     `json:"userId"`
	UserName     string     `json:"userName"`
	UserColor    string     `json:"userColor"`
	Cursor       *Cursor    `json:"cursor,omitempty"`
	Selection    *Selection `json:"selection,omitempty"`
	Activity     string     `json:"activity"`
	LastActivity time.Time  `json:"lastActivity"`
}

type Position struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	ElementID string  `json:"elementId,omitempty"`
	Page      int     `json:"page,omitempty"`
}

type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionLaugh ReactionType = "laugh"
	ReactionWow   ReactionType = "wow"
	ReactionSad   ReactionType = "sad"
	ReactionAngry ReactionType = "angry"
)

var allowedReactionTypes = map[ReactionType]struct{}{
	ReactionLike:  {},
	ReactionLove:  {},
	ReactionLaugh: {},
	ReactionWow:   {},
	ReactionSad:   {},
	ReactionAngry: {},
}

// Reaction holds at most one entry per user per target: a second reaction
// from the same user replaces the first.
type Reaction struct {
	UserID    string       `json:"userId"`
	UserName  string       `json:"userName"`
	Type      ReactionType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
}

// CommentReply is one level deep: replies carry reactions but no nested
// thread of their own.
type CommentReply struct {
	ID         string     `json:"id"`
	AuthorID   string     `json:"authorId"`
	AuthorName string     `json:"authorName"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"createdAt"`
	Mentions   []string   `json:"mentions,omitempty"`
	Reactions  []Reaction `json:"reactions,omitempty"`
}

type Comment struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"sessionId"`
	AuthorID   string         `json:"authorId"`
	AuthorName string         `json:"authorName"`
	Content    string         `json:"content"`
	Position   Position       `json:"position"`
	Thread     []CommentReply `json:"thread"`
	Resolved   bool           `json:"resolved"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Mentions   []string       `json:"mentions,omitempty"`
	Reactions  []Reaction     `json:"reactions,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
}

type AnnotationType string

const (
	AnnotationHighlight     AnnotationType = "highlight"
	AnnotationStrikethrough AnnotationType = "strikethrough"
	AnnotationUnderline     AnnotationType = "underline"
	AnnotationCircle        AnnotationType = "circle"
	AnnotationArrow         AnnotationType = "arrow"
	AnnotationRectangle     AnnotationType = "rectangle"
	AnnotationFreehand      AnnotationType = "freehand"
)

var allowedAnnotationTypes = map[AnnotationType]struct{}{
	AnnotationHighlight:     {},
	AnnotationStrikethrough: {},
	AnnotationUnderline:     {},
	AnnotationCircle:        {},
	AnnotationArrow:         {},
	AnnotationRectangle:     {},
	AnnotationFreehand:      {},
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AnnotationPosition holds a rect for shape annotations or a point list
// for freehand strokes.
type AnnotationPosition struct {
	Rect      *Rect   `json:"rect,omitempty"`
	Points    []Point `json:"points,omitempty"`
	ElementID string  `json:"elementId,omitempty"`
	Page      int     `json:"page,omitempty"`
}

type Style struct {
	Color       string    `json:"color"`
	StrokeWidth float64   `json:"strokeWidth"`
	Opacity     float64   `json:"opacity"`
	Dash        []float64 `json:"dash,omitempty"`
}

type Annotation struct {
	ID         string             `json:"id"`
	SessionID  string             `json:"sessionId"`
	AuthorID   string             `json:"authorId"`
	AuthorName string             `json:"authorName"`
	Type       AnnotationType     `json:"type"`
	Position   AnnotationPosition `json:"position"`
	Style      Style              `json:"style"`
	Content    string             `json:"content,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type NotificationType string

const (
	NotifyUserJoined      NotificationType = "user_joined"
	NotifyUserLeft        NotificationType = "user_left"
	NotifyCommentAdded    NotificationType = "comment_added"
	NotifyCommentResolved NotificationType = "comment_resolved"
	NotifyAnnotationAdded NotificationType = "annotation_added"
	NotifyMention         NotificationType = "mention"
	NotifyDocumentUpdated NotificationType = "document_updated"
)

type Notification struct {
	ID            string           `json:"id"`
	SessionID     string           `json:"sessionId"`
	Type          NotificationType `json:"type"`
	ActorUserID   string           `json:"actorUserId"`
	ActorUserName string           `json:"actorUserName"`
	Message       string           `json:"message"`
	Timestamp     time.Time        `json:"timestamp"`
	Read          bool             `json:"read"`
	Metadata      map[string]any   `json:"metadata,omitempty"`
}

// Permissions holds per-capability user id sets. The owner is always a
// member of all three.
type Permissions struct {
	CanEdit    []string `json:"canEdit"`
	CanComment []string `json:"canComment"`
	CanView    []string `json:"canView"`
}

type Session struct {
	ID           string          `json:"id"`
	DocumentID   string          `json:"documentId"`
	EntityID     string          `json:"entityId"`
	EntityType   string          `json:"entityType"`
	Title        string          `json:"title"`
	Status       SessionStatus   `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastActivity time.Time       `json:"lastActivity"`
	Participants []Participant   `json:"participants"`
	ActiveUsers  []PresenceEntry `json:"activeUsers"`
	Comments     []Comment       `json:"comments"`
	Annotations  []Annotation    `json:"annotations"`
	Permissions  Permissions     `json:"permissions"`
}

func contains(set []string, userID string) bool {
	for _, id := range set {
		if id == userID {
			return true
		}
	}
	return false
}

func appendUnique(set []string, userID string) []string {
	if contains(set, userID) {
		return set
	}
	return append(set, userID)
}

func copyStrings(values []string) []string {
	if values == nil {
		return nil
	}
	copied := make([]string, len(values))
	copy(copied, values)
	return copied
}

func copyReactions(reactions []Reaction) []Reaction {
	if reactions == nil {
		return nil
	}
	copied := make([]Reaction, len(reactions))
	copy(copied, reactions)
	return copied
}

func copyMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	copied := make(map[string]any, len(metadata))
	for key, value := range metadata {
		copied[key] = value
	}
	return copied
}

// Clone returns a deep copy so callers cannot mutate engine-owned state
// through a returned snapshot.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	copied := *s

	copied.Participants = make([]Participant, len(s.Participants))
	copy(copied.Participants, s.Participants)

	copied.ActiveUsers = make([]PresenceEntry, len(s.ActiveUsers))
	for i, entry := range s.ActiveUsers {
		copied.ActiveUsers[i] = entry
		if entry.Cursor != nil {
			cursor := *entry.Cursor
			copied.ActiveUsers[i].Cursor = &cursor
		}
		if entry.Selection != nil {
			selection := *entry.Selection
			copied.ActiveUsers[i].Selection = &selection
		}
	}

	copied.Comments = make([]Comment, len(s.Comments))
	for i, comment := range s.Comments {
		copied.Comments[i] = comment
		copied.Comments[i].Mentions = copyStrings(comment.Mentions)
		copied.Comments[i].Tags = copyStrings(comment.Tags)
		copied.Comments[i].Reactions = copyReactions(comment.Reactions)
		copied.Comments[i].Thread = make([]CommentReply, len(comment.Thread))
		for j, reply := range comment.Thread {
			copied.Comments[i].Thread[j] = reply
			copied.Comments[i].Thread[j].Mentions = copyStrings(reply.Mentions)
			copied.Comments[i].Thread[j].Reactions = copyReactions(reply.Reactions)
		}
	}

	copied.Annotations = make([]Annotation, len(s.Annotations))
	for i, annotation := range s.Annotations {
		copied.Annotations[i] = annotation
		if annotation.Position.Rect != nil {
			rect := *annotation.Position.Rect
			copied.Annotations[i].Position.Rect = &rect
		}
		if annotation.Position.Points != nil {
			points := make([]Point, len(annotation.Position.Points))
			copy(points, annotation.Position.Points)
			copied.Annotations[i].Position.Points = points
		}
		copied.Annotations[i].Style.Dash = append([]float64(nil), annotation.Style.Dash...)
	}

	copied.Permissions = Permissions{
		CanEdit:    copyStrings(s.Permissions.CanEdit),
		CanComment: copyStrings(s.Permissions.CanComment),
		CanView:    copyStrings(s.Permissions.CanView),
	}
	return &copied
}

func (n *Notification) clone() *Notification {
	copied := *n
	copied.Metadata = copyMetadata(n.Metadata)
	return &copied
}
