package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/preplay-ai/preplay/internal/domain"
)

// CreateSession creates a new training session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	sessionID, err := h.svc.NewSession(ctx)
	if err != nil {
		log.Printf("ERROR: failed to create session: %v", err)
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]string{"session_id": sessionID})
}

// ListSessions lists recent sessions, newest first.
// GET /v1/sessions?limit=10
func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 10
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = n
	}

	sessions, err := h.svc.ListSessions(ctx, limit)
	if err != nil {
		log.Printf("ERROR: failed to list sessions: %v", err)
		return errorJSON(c, err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSession returns one session.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	sess, err := h.svc.GetSession(ctx, sessionID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, sess)
}

// ResumeSession returns a session together with its full transcript so
// a client can pick up where it left off.
// GET /v1/sessions/:session_id/resume
func (h *Handler) ResumeSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	sess, messages, err := h.svc.ResumeSession(ctx, sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session":  sess,
		"messages": messages,
	})
}

// DeleteSession removes a session and its messages.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	if err := h.svc.DeleteSession(ctx, sessionID); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// GetMessages returns a session's transcript.
// GET /v1/sessions/:session_id/messages
func (h *Handler) GetMessages(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	messages, err := h.svc.GetMessages(ctx, sessionID)
	if err != nil {
		return errorJSON(c, err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"messages": messages})
}

// GetStats returns a session's transcript summary counts.
// GET /v1/sessions/:session_id/stats
func (h *Handler) GetStats(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	stats, err := h.svc.GetStats(ctx, sessionID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, stats)
}

// SessionDocumentsRequest replaces a session's attached documents.
type SessionDocumentsRequest struct {
	FileIDs []string `json:"file_ids"`
}

// SetDocuments replaces the session's attached-document list.
// PUT /v1/sessions/:session_id/documents
func (h *Handler) SetDocuments(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var req SessionDocumentsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := h.svc.SetDocuments(ctx, sessionID, req.FileIDs); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// AttachDocument adds one document to the session's attached set.
// POST /v1/sessions/:session_id/documents/:file_id
func (h *Handler) AttachDocument(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")
	fileID := c.Param("file_id")

	if err := h.svc.AttachDocument(ctx, sessionID, fileID); err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// GenerateReport synthesizes the session transcript into a report.
// GET /v1/sessions/:session_id/report
func (h *Handler) GenerateReport(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	report, err := h.svc.GenerateReport(ctx, sessionID)
	if err != nil {
		log.Printf("ERROR: failed to generate report for session %s: %v", sessionID, err)
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"report": report})
}
