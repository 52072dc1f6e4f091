package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/eventpulse/eventpulse/pkg/services"
)

// metricsHandler handles GET /api/v1/metrics: event counts and rates
// over a trailing window, grouped by event_type or source.
func (s *Server) metricsHandler(c *echo.Context) error {
	window, err := windowParam(c)
	if err != nil {
		return err
	}

	groupBy := c.QueryParam("group_by")
	switch groupBy {
	case "":
		groupBy = "event_type"
	case "event_type", "source":
	default:
		return echo.NewHTTPError(http.StatusBadRequest,
			"group_by must be event_type or source")
	}

	result, err := s.eventService.Metrics(c.Request().Context(), services.MetricsParams{
		WindowSeconds: window,
		GroupBy:       groupBy,
		EventType:     c.QueryParam("event_type"),
		Source:        c.QueryParam("source"),
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}
