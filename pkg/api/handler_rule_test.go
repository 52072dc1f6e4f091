package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/pkg/models"
	"github.com/eventpulse/eventpulse/pkg/services"
)

func ruleBody() map[string]any {
	return map[string]any{
		"name":             "login burst",
		"enabled":          true,
		"severity":         "critical",
		"window_seconds":   60,
		"cooldown_seconds": 30,
		"condition": map[string]any{
			"type":     "threshold",
			"metric":   "count",
			"operator": ">",
			"value":    100,
		},
	}
}

func TestCreateRuleHandler(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(t, http.MethodPost, "/api/v1/rules", ruleBody())

		require.Equal(t, http.StatusCreated, rec.Code)
		rule := decodeJSON[models.Rule](t, rec)
		assert.Equal(t, "login burst", rule.Name)
	})

	t.Run("enabled defaults to true when omitted", func(t *testing.T) {
		ts := newTestServer()
		body := ruleBody()
		delete(body, "enabled")

		rec := ts.do(t, http.MethodPost, "/api/v1/rules", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, decodeJSON[models.Rule](t, rec).Enabled)
	})

	t.Run("explicit disabled preserved", func(t *testing.T) {
		ts := newTestServer()
		body := ruleBody()
		body["enabled"] = false

		rec := ts.do(t, http.MethodPost, "/api/v1/rules", body)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.False(t, decodeJSON[models.Rule](t, rec).Enabled)
	})

	t.Run("service validation error becomes 400", func(t *testing.T) {
		ts := newTestServer()
		ts.rules.createErr = services.NewValidationError("rule", "window_seconds must be >= 1")

		rec := ts.do(t, http.MethodPost, "/api/v1/rules", ruleBody())
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "window_seconds")
	})
}

func TestListRulesHandler(t *testing.T) {
	ts := newTestServer()
	ts.rules.rules = []models.Rule{{RuleID: "r1"}, {RuleID: "r2"}}

	rec := ts.do(t, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[RuleListResponse](t, rec)
	assert.Equal(t, 2, resp.Count)
}

func TestGetRuleHandler_NotFound(t *testing.T) {
	ts := newTestServer()
	ts.rules.getErr = services.ErrNotFound

	rec := ts.do(t, http.MethodGet, "/api/v1/rules/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateRuleHandler_NotFound(t *testing.T) {
	ts := newTestServer()
	ts.rules.updateErr = services.ErrNotFound

	rec := ts.do(t, http.MethodPut, "/api/v1/rules/missing", ruleBody())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchRuleHandler(t *testing.T) {
	t.Run("empty patch rejected", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(t, http.MethodPatch, "/api/v1/rules/r1", map[string]any{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "at least one field")
		assert.Nil(t, ts.rules.lastPatch)
	})

	t.Run("single field patch forwarded", func(t *testing.T) {
		ts := newTestServer()
		ts.rules.rule = &models.Rule{RuleID: "r1", Enabled: false}

		rec := ts.do(t, http.MethodPatch, "/api/v1/rules/r1", map[string]any{"enabled": false})
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, ts.rules.lastPatch)
		require.NotNil(t, ts.rules.lastPatch.Enabled)
		assert.False(t, *ts.rules.lastPatch.Enabled)
		assert.Nil(t, ts.rules.lastPatch.Name)
	})
}

func TestDeleteRuleHandler(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		ts := newTestServer()
		rec := ts.do(t, http.MethodDelete, "/api/v1/rules/r1", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		ts := newTestServer()
		ts.rules.deleteErr = services.ErrNotFound
		rec := ts.do(t, http.MethodDelete, "/api/v1/rules/missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
