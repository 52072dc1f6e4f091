package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/eventpulse/eventpulse/pkg/models"
	"github.com/eventpulse/eventpulse/pkg/services"
)

// listAnomaliesHandler handles GET /api/v1/anomalies.
func (s *Server) listAnomaliesHandler(c *echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	offset, err := offsetParam(c)
	if err != nil {
		return err
	}

	severity := c.QueryParam("severity")
	if severity != "" && !models.Severity(severity).Valid() {
		return echo.NewHTTPError(http.StatusBadRequest,
			"severity must be one of critical, warning, info")
	}

	anomalies, err := s.anomalyService.List(c.Request().Context(), services.ListAnomaliesParams{
		Limit:    limit,
		Offset:   offset,
		RuleID:   c.QueryParam("rule_id"),
		Severity: severity,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &AnomalyListResponse{
		Data:       anomalies,
		Pagination: Pagination{Limit: limit, Offset: offset, Count: len(anomalies)},
	})
}
