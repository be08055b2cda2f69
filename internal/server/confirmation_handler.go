package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/approval"
	"github.com/dagbolade/toolguard/internal/auth"
)

// ConfirmationHandler serves the human review surface for held invocations.
type ConfirmationHandler struct {
	queue approval.Queue
}

func NewConfirmationHandler(queue approval.Queue) *ConfirmationHandler {
	return &ConfirmationHandler{queue: queue}
}

func (h *ConfirmationHandler) ListPending(c echo.Context) error {
	pending, err := h.queue.Pending(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list pending confirmations")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list pending confirmations",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total":   len(pending),
		"pending": pending,
	})
}

func (h *ConfirmationHandler) Approve(c echo.Context) error {
	return h.decide(c, true)
}

func (h *ConfirmationHandler) Reject(c echo.Context) error {
	return h.decide(c, false)
}

func (h *ConfirmationHandler) decide(c echo.Context, approved bool) error {
	id := c.Param("id")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if !approved && req.Reason == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "reason is required for rejection",
		})
	}

	decidedBy := ""
	if user := auth.GetUserFromContext(c); user != nil {
		decidedBy = user.Email
	}

	decision := approval.Decision{
		Approved:  approved,
		Reason:    req.Reason,
		DecidedBy: decidedBy,
	}
	if err := h.queue.Decide(c.Request().Context(), id, decision); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "confirmation not found or already decided",
		})
	}

	status := "rejected"
	if approved {
		status = "approved"
	}
	log.Info().Str("id", id).Str("status", status).Str("decided_by", decidedBy).Msg("confirmation decided")

	return c.JSON(http.StatusOK, map[string]any{
		"id":     id,
		"status": status,
	})
}
