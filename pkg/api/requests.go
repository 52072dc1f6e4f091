package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"
)

// Listing pagination bounds. An explicit limit is clamped into range
// rather than rejected; an absent limit gets the default.
const (
	defaultListLimit = 50
	minListLimit     = 1
	maxListLimit     = 500
)

// Metrics window bounds in seconds.
const (
	defaultMetricsWindow = 60
	minMetricsWindow     = 10
	maxMetricsWindow     = 3600
)

// limitParam parses the limit query parameter. Out-of-range values are
// clamped; non-numeric values are a 400.
func limitParam(c *echo.Context) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}
	if limit < minListLimit {
		return minListLimit, nil
	}
	if limit > maxListLimit {
		return maxListLimit, nil
	}
	return limit, nil
}

// offsetParam parses the offset query parameter. Negative offsets clamp
// to zero.
func offsetParam(c *echo.Context) (int, error) {
	raw := c.QueryParam("offset")
	if raw == "" {
		return 0, nil
	}
	offset, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "offset must be an integer")
	}
	if offset < 0 {
		return 0, nil
	}
	return offset, nil
}

// timeParam parses an optional RFC3339 query parameter.
func timeParam(c *echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("%s must be an RFC3339 timestamp", name))
	}
	return &t, nil
}

// windowParam parses the metrics window. Unlike limit, an out-of-range
// window is rejected: silently clamping would misrepresent the rates.
func windowParam(c *echo.Context) (int, error) {
	raw := c.QueryParam("window_seconds")
	if raw == "" {
		return defaultMetricsWindow, nil
	}
	window, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "window_seconds must be an integer")
	}
	if window < minMetricsWindow || window > maxMetricsWindow {
		return 0, echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("window_seconds must be between %d and %d seconds", minMetricsWindow, maxMetricsWindow))
	}
	return window, nil
}
