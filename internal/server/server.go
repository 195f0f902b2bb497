// Package server exposes the collaboration engine over HTTP and
// WebSocket. REST handles the command surface; the WebSocket hub
// carries live updates down to clients.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"propdesk/collab/internal/auth"
	"propdesk/collab/internal/checkpoint"
	"propdesk/collab/internal/collab"
	"propdesk/collab/internal/transport"
	"propdesk/collab/internal/util"
)

type Server struct {
	engine     *collab.Engine
	hub        *transport.Hub
	store      checkpoint.Store
	secret     []byte
	tokenTTL   time.Duration
	corsOrigin string
	logger     *log.Logger
}

func New(engine *collab.Engine, hub *transport.Hub, store checkpoint.Store, secret []byte, tokenTTL time.Duration, corsOrigin string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		engine:     engine,
		hub:        hub,
		store:      store,
		secret:     secret,
		tokenTTL:   tokenTTL,
		corsOrigin: corsOrigin,
		logger:     logger,
	}
}

func (s *Server) Handler() http.Handler {
	protected := auth.Middleware(s.secret, http.HandlerFunc(s.handleProtected))
	return s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			writeJSON(w, http.StatusNoContent, map[string]any{})
			return
		}
		if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
			s.handleReady(w, r)
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == "/api/session/login" {
			s.handleLogin(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	}))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"store": map[string]any{"status": "ok"},
	}
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// handleLogin mints a token for the caller. Identity is declared, not
// verified; an upstream identity provider fronts this service in
// production deployments.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
		Email  string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "name is required", nil)
		return
	}
	userID := strings.TrimSpace(body.UserID)
	if userID == "" {
		userID = util.NewID("usr")
	}
	token, err := auth.IssueToken(s.secret, userID, body.Name, body.Email, s.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "LOGIN_FAILED", "Login failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"userId":   userID,
		"userName": body.Name,
	})
}

func (s *Server) handleProtected(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}
	user := collab.User{
		ID:     claims.Subject,
		Name:   claims.Name,
		Email:  claims.Email,
		Avatar: claims.Avatar,
	}

	if r.Method == http.MethodGet && r.URL.Path == "/ws" {
		s.handleWebSocket(w, r, user)
		return
	}

	parts := splitPath(r.URL.Path)
	switch {
	case len(parts) == 2 && parts[0] == "api" && parts[1] == "sessions":
		switch r.Method {
		case http.MethodPost:
			s.handleStartSession(w, r, user)
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"sessions": s.engine.GetUserSessions(user.ID)})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "sessions" && r.Method == http.MethodGet:
		session, ok := s.engine.GetSession(r.Context(), parts[2])
		if !ok {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "sessions" && r.Method == http.MethodPost:
		s.handleSessionAction(w, r, user, parts[2], parts[3])
	case len(parts) == 6 && parts[0] == "api" && parts[1] == "sessions" && parts[3] == "comments" && r.Method == http.MethodPost:
		s.handleCommentAction(w, r, user, parts[2], parts[4], parts[5])
	case len(parts) == 2 && parts[0] == "api" && parts[1] == "notifications" && r.Method == http.MethodGet:
		notifications := s.engine.GetUserNotifications(r.Context(), user.ID, r.URL.Query().Get("sessionId"))
		writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
	case len(parts) == 3 && parts[0] == "api" && parts[1] == "notifications" && parts[2] == "read" && r.Method == http.MethodPost:
		var body struct {
			IDs []string `json:"ids"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.engine.MarkNotificationsAsRead(r.Context(), user.ID, body.IDs)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request, user collab.User) {
	var body struct {
		DocumentID string `json:"documentId"`
		EntityID   string `json:"entityId"`
		EntityType string `json:"entityType"`
		Title      string `json:"title"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.engine.StartSession(r.Context(), body.DocumentID, body.EntityID, body.EntityType, body.Title, user)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleSessionAction(w http.ResponseWriter, r *http.Request, user collab.User, sessionID, action string) {
	switch action {
	case "join":
		var body struct {
			Role string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.engine.JoinSession(r.Context(), sessionID, user, body.Role)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	case "leave":
		if err := s.engine.LeaveSession(r.Context(), sessionID, user.ID); err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "end":
		if err := s.engine.EndSession(r.Context(), sessionID, user.ID); err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "pause":
		if err := s.engine.PauseSession(r.Context(), sessionID, user.ID); err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "resume":
		if err := s.engine.ResumeSession(r.Context(), sessionID, user.ID); err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "presence":
		var body struct {
			Cursor    *collab.Cursor    `json:"cursor"`
			Selection *collab.Selection `json:"selection"`
			Activity  string            `json:"activity"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.engine.UpdatePresence(r.Context(), sessionID, user, body.Cursor, body.Selection, body.Activity); err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "comments":
		var body struct {
			Content  string          `json:"content"`
			Position collab.Position `json:"position"`
			Mentions []string        `json:"mentions"`
			Tags     []string        `json:"tags"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.engine.AddComment(r.Context(), sessionID, user, body.Content, body.Position, body.Mentions, body.Tags)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)
	case "annotations":
		var body struct {
			Type     collab.AnnotationType     `json:"type"`
			Position collab.AnnotationPosition `json:"position"`
			Style    collab.Style              `json:"style"`
			Content  string                    `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		annotation, err := s.engine.AddAnnotation(r.Context(), sessionID, user, body.Type, body.Position, body.Style, body.Content)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, annotation)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *Server) handleCommentAction(w http.ResponseWriter, r *http.Request, user collab.User, sessionID, commentID, action string) {
	switch action {
	case "replies":
		var body struct {
			Content  string   `json:"content"`
			Mentions []string `json:"mentions"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		reply, err := s.engine.ReplyToComment(r.Context(), sessionID, user, commentID, body.Content, body.Mentions)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, reply)
	case "resolve":
		if err := s.engine.ResolveComment(r.Context(), sessionID, user, commentID); err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "reactions":
		var body struct {
			Type    collab.ReactionType `json:"type"`
			ReplyID string              `json:"replyId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.engine.AddCommentReaction(r.Context(), sessionID, user, commentID, body.ReplyID, body.Type); err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleWebSocket attaches the client to the session's room. The caller
// must already participate: joining happens over REST first.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, user collab.User) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_TRANSPORT", "WebSocket transport not configured", nil)
		return
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "sessionId is required", nil)
		return
	}
	session, ok := s.engine.GetSession(r.Context(), sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
		return
	}
	participates := false
	for _, participant := range session.Participants {
		if participant.UserID == user.ID {
			participates = true
			break
		}
	}
	if !participates {
		writeError(w, http.StatusForbidden, "PERMISSION_DENIED", "join the session before connecting", nil)
		return
	}
	s.hub.HandleConnection(w, r, sessionID, user.ID)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, origin string) {
	header.Set("Access-Control-Allow-Origin", origin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
}

func randomRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		// An empty body means "all defaults".
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	if domain, ok := collab.AsDomain(err); ok {
		return domain.Status, domain.Code, domain.Message, domain.Details
	}
	if errors.Is(err, auth.ErrInvalidToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
