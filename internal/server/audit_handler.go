package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/audit"
)

// AuditHandler exposes read-only views of the invocation log.
type AuditHandler struct {
	store audit.Store
}

func NewAuditHandler(store audit.Store) *AuditHandler {
	return &AuditHandler{store: store}
}

func (h *AuditHandler) List(c echo.Context) error {
	records, err := h.store.List(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to retrieve invocation records")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve invocation records",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total":   len(records),
		"records": records,
	})
}

func (h *AuditHandler) Get(c echo.Context) error {
	record, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, audit.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "record not found",
			})
		}
		log.Error().Err(err).Str("record_id", c.Param("id")).Msg("failed to retrieve record")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve record",
		})
	}

	return c.JSON(http.StatusOK, record)
}

func (h *AuditHandler) ListFaults(c echo.Context) error {
	faults, err := h.store.ListRuleFaults(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to retrieve rule faults")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to retrieve rule faults",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total":  len(faults),
		"faults": faults,
	})
}
