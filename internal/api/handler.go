// Package api provides HTTP handlers for the training backend.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/preplay-ai/preplay/internal/domain"
	"github.com/preplay-ai/preplay/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Sessions
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.GET("/v1/sessions/:session_id/resume", h.ResumeSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)
	e.GET("/v1/sessions/:session_id/messages", h.GetMessages)
	e.GET("/v1/sessions/:session_id/stats", h.GetStats)
	e.GET("/v1/sessions/:session_id/report", h.GenerateReport)

	// Turns
	e.POST("/v1/sessions/:session_id/turns", h.RunTurn)

	// Session document attachments
	e.PUT("/v1/sessions/:session_id/documents", h.SetDocuments)
	e.POST("/v1/sessions/:session_id/documents/:file_id", h.AttachDocument)

	// Knowledge documents
	e.POST("/v1/documents", h.UploadDocument)
	e.GET("/v1/documents", h.ListDocuments)
	e.DELETE("/v1/documents/:file_id", h.DeleteDocument)
	e.DELETE("/v1/documents", h.DeleteAllDocuments)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// errorJSON maps domain error kinds onto HTTP responses. Upstream
// failures are distinguished by kind so a client can show "network
// error" rather than "AI error".
func errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrAuth):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error(), "kind": "auth"})
	case errors.Is(err, domain.ErrTransport):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error(), "kind": "network"})
	case errors.Is(err, domain.ErrRemote):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error(), "kind": "remote"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
