package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/dagbolade/toolguard/internal/policy"
	"github.com/dagbolade/toolguard/internal/store"
)

// PolicyHandler manages tool policies and their rules over REST.
type PolicyHandler struct {
	rules store.RuleStore
}

func NewPolicyHandler(rules store.RuleStore) *PolicyHandler {
	return &PolicyHandler{rules: rules}
}

func (h *PolicyHandler) List(c echo.Context) error {
	policies, err := h.rules.ListPolicies(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list policies")
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to list policies",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"total":    len(policies),
		"policies": policies,
	})
}

func (h *PolicyHandler) Get(c echo.Context) error {
	p, err := h.rules.GetPolicy(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.storeError(c, err, "failed to get policy")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *PolicyHandler) Create(c echo.Context) error {
	var p policy.Policy
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	created, err := h.rules.CreatePolicy(c.Request().Context(), p)
	if err != nil {
		return h.storeError(c, err, "failed to create policy")
	}

	log.Info().Str("policy_id", created.ID).Str("name", created.Name).Str("tool", created.Tool).Msg("policy created")
	return c.JSON(http.StatusCreated, created)
}

func (h *PolicyHandler) Delete(c echo.Context) error {
	id := c.Param("id")
	if err := h.rules.DeletePolicy(c.Request().Context(), id); err != nil {
		return h.storeError(c, err, "failed to delete policy")
	}

	log.Info().Str("policy_id", id).Msg("policy deleted")
	return c.NoContent(http.StatusNoContent)
}

func (h *PolicyHandler) CreateRule(c echo.Context) error {
	var r policy.Rule
	if err := c.Bind(&r); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}

	created, err := h.rules.CreateRule(c.Request().Context(), c.Param("id"), r)
	if err != nil {
		return h.storeError(c, err, "failed to create rule")
	}

	return c.JSON(http.StatusCreated, created)
}

func (h *PolicyHandler) UpdateRule(c echo.Context) error {
	var r policy.Rule
	if err := c.Bind(&r); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
	}
	r.PolicyID = c.Param("id")
	r.ID = c.Param("ruleID")

	if err := h.rules.UpdateRule(c.Request().Context(), r); err != nil {
		return h.storeError(c, err, "failed to update rule")
	}

	return c.JSON(http.StatusOK, r)
}

func (h *PolicyHandler) DeleteRule(c echo.Context) error {
	if err := h.rules.DeleteRule(c.Request().Context(), c.Param("id"), c.Param("ruleID")); err != nil {
		return h.storeError(c, err, "failed to delete rule")
	}
	return c.NoContent(http.StatusNoContent)
}

// storeError maps store errors onto HTTP statuses. Validation failures
// (bad operator, bad action, malformed pattern) arrive as plain errors
// from the store and land as 400s.
func (h *PolicyHandler) storeError(c echo.Context, err error, msg string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrTooManyRules):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		log.Error().Err(err).Msg(msg)
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}
