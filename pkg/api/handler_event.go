package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/sourcegraph/conc/pool"

	"github.com/eventpulse/eventpulse/pkg/models"
	"github.com/eventpulse/eventpulse/pkg/services"
)

// maxBatchSize bounds POST /api/v1/events/batch.
const maxBatchSize = 1000

// createEventHandler handles POST /api/v1/events.
// Validates, assigns an id if absent, enqueues, and returns 202.
// Enqueueing is fire-and-forget: a failed XAdd is logged, the client
// still gets 202, and the health endpoint surfaces the outage. The
// event is not yet persisted when the response goes out; the worker
// picks it up from the stream.
func (s *Server) createEventHandler(c *echo.Context) error {
	var event models.Event
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := event.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	event.EnsureID()

	if _, err := s.producer.Enqueue(c.Request().Context(), &event); err != nil {
		slog.Error("Failed to enqueue event", "event_id", event.EventID, "error", err)
	}

	return c.JSON(http.StatusAccepted, &EventAcceptedResponse{
		EventID: event.EventID,
		Status:  "accepted",
	})
}

// createEventBatchHandler handles POST /api/v1/events/batch.
// Validation is all-or-nothing: one invalid event rejects the whole
// batch before anything is enqueued. Enqueueing then runs concurrently.
func (s *Server) createEventBatchHandler(c *echo.Context) error {
	var batch []models.Event
	if err := c.Bind(&batch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(batch) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "batch must contain at least one event")
	}
	if len(batch) > maxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("batch exceeds maximum size of %d events", maxBatchSize))
	}

	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("event[%d]: %s", i, err.Error()))
		}
	}

	ids := make([]string, len(batch))
	for i := range batch {
		ids[i] = batch[i].EnsureID()
	}

	p := pool.New().WithErrors().WithContext(c.Request().Context())
	for i := range batch {
		event := &batch[i]
		p.Go(func(ctx context.Context) error {
			_, err := s.producer.Enqueue(ctx, event)
			return err
		})
	}
	if err := p.Wait(); err != nil {
		slog.Error("Batch enqueue failed", "batch_size", len(batch), "error", err)
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event queue unavailable")
	}

	return c.JSON(http.StatusAccepted, &BatchAcceptedResponse{
		Count:    len(batch),
		EventIDs: ids,
		Status:   "accepted",
	})
}

// listEventsHandler handles GET /api/v1/events.
func (s *Server) listEventsHandler(c *echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	offset, err := offsetParam(c)
	if err != nil {
		return err
	}
	from, err := timeParam(c, "from")
	if err != nil {
		return err
	}
	to, err := timeParam(c, "to")
	if err != nil {
		return err
	}

	events, err := s.eventService.List(c.Request().Context(), services.ListEventsParams{
		Limit:     limit,
		Offset:    offset,
		EventType: c.QueryParam("event_type"),
		Source:    c.QueryParam("source"),
		From:      from,
		To:        to,
	})
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &EventListResponse{
		Data:       events,
		Pagination: Pagination{Limit: limit, Offset: offset, Count: len(events)},
	})
}

// getEventHandler handles GET /api/v1/events/:id.
func (s *Server) getEventHandler(c *echo.Context) error {
	event, err := s.eventService.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, event)
}
