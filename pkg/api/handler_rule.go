package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/eventpulse/eventpulse/pkg/models"
	"github.com/eventpulse/eventpulse/pkg/services"
)

// createRuleHandler handles POST /api/v1/rules.
func (s *Server) createRuleHandler(c *echo.Context) error {
	// Enabled defaults to true when the body omits it.
	rule := models.Rule{Enabled: true}
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created, err := s.ruleService.Create(c.Request().Context(), &rule)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

// listRulesHandler handles GET /api/v1/rules. Returns all rules,
// enabled or not; the worker snapshot filters on enabled separately.
func (s *Server) listRulesHandler(c *echo.Context) error {
	rules, err := s.ruleService.List(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &RuleListResponse{Rules: rules, Count: len(rules)})
}

// getRuleHandler handles GET /api/v1/rules/:id.
func (s *Server) getRuleHandler(c *echo.Context) error {
	rule, err := s.ruleService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, rule)
}

// updateRuleHandler handles PUT /api/v1/rules/:id with a full
// replacement body.
func (s *Server) updateRuleHandler(c *echo.Context) error {
	rule := models.Rule{Enabled: true}
	if err := c.Bind(&rule); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	updated, err := s.ruleService.Update(c.Request().Context(), c.Param("id"), &rule)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// patchRuleHandler handles PATCH /api/v1/rules/:id. At least one field
// must be present.
func (s *Server) patchRuleHandler(c *echo.Context) error {
	var patch services.RulePatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if patch.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "patch must include at least one field")
	}

	updated, err := s.ruleService.Patch(c.Request().Context(), c.Param("id"), &patch)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// deleteRuleHandler handles DELETE /api/v1/rules/:id.
func (s *Server) deleteRuleHandler(c *echo.Context) error {
	if err := s.ruleService.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
