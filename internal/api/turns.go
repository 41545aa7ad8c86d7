package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/preplay-ai/preplay/internal/domain"
)

// TurnRequest is one user turn addressed to a persona.
type TurnRequest struct {
	Persona string `json:"persona"`
	Text    string `json:"text"`
}

// RunTurn runs one full user turn against the addressed persona.
// POST /v1/sessions/:session_id/turns
func (h *Handler) RunTurn(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	var req TurnRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	result, err := h.svc.RunTurn(ctx, sessionID, domain.Persona(req.Persona), req.Text)
	if err != nil {
		log.Printf("ERROR: turn failed for session %s: %v", sessionID, err)
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
