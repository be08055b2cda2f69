package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/audit"
	"github.com/dagbolade/toolguard/internal/mediator"
)

// InvokeHandler exposes the mediation pipeline over HTTP. The response
// status mirrors the outcome so agent-side callers can branch without
// parsing the body.
type InvokeHandler struct {
	mediator *mediator.Mediator
}

func NewInvokeHandler(med *mediator.Mediator) *InvokeHandler {
	return &InvokeHandler{mediator: med}
}

func (h *InvokeHandler) Invoke(c echo.Context) error {
	var req mediator.Request
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	if req.Tool == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "tool_name is required",
		})
	}

	result, err := h.mediator.Mediate(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, mediator.ErrStoreUnavailable) {
			log.Error().Err(err).Str("tool", req.Tool).Msg("mediation failed closed")
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"error": "mediation store unavailable, call denied",
			})
		}
		log.Error().Err(err).Str("tool", req.Tool).Msg("mediation error")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "mediation failed",
		})
	}

	return c.JSON(statusForOutcome(result.Outcome), result)
}

func statusForOutcome(outcome audit.Outcome) int {
	switch outcome {
	case audit.OutcomeBlocked, audit.OutcomeRejected:
		return http.StatusForbidden
	case audit.OutcomeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}
