// Package api implements the EventPulse HTTP surface: event ingestion,
// read endpoints, rule CRUD, metrics, health, and the WebSocket upgrade.
package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"

	"github.com/eventpulse/eventpulse/pkg/database"
	"github.com/eventpulse/eventpulse/pkg/events"
	"github.com/eventpulse/eventpulse/pkg/models"
	"github.com/eventpulse/eventpulse/pkg/services"
)

// EventReader is the read side of the event store.
type EventReader interface {
	Get(ctx context.Context, eventID string) (*models.Event, error)
	List(ctx context.Context, params services.ListEventsParams) ([]models.Event, error)
	Metrics(ctx context.Context, params services.MetricsParams) (*services.MetricsResult, error)
}

// AnomalyReader lists persisted anomalies.
type AnomalyReader interface {
	List(ctx context.Context, params services.ListAnomaliesParams) ([]models.Anomaly, error)
}

// RuleManager is the rule CRUD surface.
type RuleManager interface {
	Create(ctx context.Context, rule *models.Rule) (*models.Rule, error)
	Get(ctx context.Context, ruleID string) (*models.Rule, error)
	List(ctx context.Context) ([]models.Rule, error)
	Update(ctx context.Context, ruleID string, rule *models.Rule) (*models.Rule, error)
	Patch(ctx context.Context, ruleID string, patch *services.RulePatch) (*models.Rule, error)
	Delete(ctx context.Context, ruleID string) error
}

// EventEnqueuer pushes validated events onto the stream.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, event *models.Event) (string, error)
}

// HealthProbe is the subset of go-redis the health endpoint uses.
// Satisfied by *redis.Client.
type HealthProbe interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Server is the EventPulse API server.
type Server struct {
	echo           *echo.Echo
	httpServer     *http.Server
	db             *database.Client
	redis          HealthProbe
	eventService   EventReader
	anomalyService AnomalyReader
	ruleService    RuleManager
	producer       EventEnqueuer
	connManager    *events.ConnectionManager
}

// NewServer creates the API server and registers all routes.
func NewServer(
	db *database.Client,
	redisClient HealthProbe,
	eventService EventReader,
	anomalyService AnomalyReader,
	ruleService RuleManager,
	producer EventEnqueuer,
	connManager *events.ConnectionManager,
) *Server {
	s := &Server{
		echo:           echo.New(),
		db:             db,
		redis:          redisClient,
		eventService:   eventService,
		anomalyService: anomalyService,
		ruleService:    ruleService,
		producer:       producer,
		connManager:    connManager,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.Use(securityHeaders())

	v1 := s.echo.Group("/api/v1")

	v1.POST("/events", s.createEventHandler)
	v1.POST("/events/batch", s.createEventBatchHandler)
	v1.GET("/events", s.listEventsHandler)
	v1.GET("/events/health", s.healthHandler)
	v1.GET("/events/:id", s.getEventHandler)

	v1.GET("/anomalies", s.listAnomaliesHandler)
	v1.GET("/metrics", s.metricsHandler)

	v1.POST("/rules", s.createRuleHandler)
	v1.GET("/rules", s.listRulesHandler)
	v1.GET("/rules/:id", s.getRuleHandler)
	v1.PUT("/rules/:id", s.updateRuleHandler)
	v1.PATCH("/rules/:id", s.patchRuleHandler)
	v1.DELETE("/rules/:id", s.deleteRuleHandler)

	s.echo.GET("/ws", s.wsHandler)
}

// ServeHTTP makes the server usable directly as an http.Handler, which
// is how the handler tests drive it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start runs the HTTP server. Blocks until the listener fails or
// Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
