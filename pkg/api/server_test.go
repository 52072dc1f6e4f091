package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/eventpulse/eventpulse/pkg/models"
	"github.com/eventpulse/eventpulse/pkg/services"
)

// --- fakes -----------------------------------------------------------

type fakeEventReader struct {
	events        []models.Event
	getEvent      *models.Event
	getErr        error
	listErr       error
	lastList      *services.ListEventsParams
	lastMetrics   *services.MetricsParams
	metricsResult *services.MetricsResult
}

func (f *fakeEventReader) Get(ctx context.Context, eventID string) (*models.Event, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getEvent, nil
}

func (f *fakeEventReader) List(ctx context.Context, params services.ListEventsParams) ([]models.Event, error) {
	f.lastList = &params
	return f.events, f.listErr
}

func (f *fakeEventReader) Metrics(ctx context.Context, params services.MetricsParams) (*services.MetricsResult, error) {
	f.lastMetrics = &params
	if f.metricsResult != nil {
		return f.metricsResult, nil
	}
	return &services.MetricsResult{
		WindowSeconds: params.WindowSeconds,
		GroupBy:       params.GroupBy,
		Metrics:       []services.MetricBucket{},
	}, nil
}

type fakeAnomalyReader struct {
	anomalies []models.Anomaly
	lastList  *services.ListAnomaliesParams
}

func (f *fakeAnomalyReader) List(ctx context.Context, params services.ListAnomaliesParams) ([]models.Anomaly, error) {
	f.lastList = &params
	return f.anomalies, nil
}

type fakeRuleManager struct {
	rules     []models.Rule
	rule      *models.Rule
	createErr error
	getErr    error
	updateErr error
	patchErr  error
	deleteErr error
	lastPatch *services.RulePatch
}

func (f *fakeRuleManager) Create(ctx context.Context, rule *models.Rule) (*models.Rule, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return rule, nil
}

func (f *fakeRuleManager) Get(ctx context.Context, ruleID string) (*models.Rule, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rule, nil
}

func (f *fakeRuleManager) List(ctx context.Context) ([]models.Rule, error) {
	return f.rules, nil
}

func (f *fakeRuleManager) Update(ctx context.Context, ruleID string, rule *models.Rule) (*models.Rule, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return rule, nil
}

func (f *fakeRuleManager) Patch(ctx context.Context, ruleID string, patch *services.RulePatch) (*models.Rule, error) {
	f.lastPatch = patch
	if f.patchErr != nil {
		return nil, f.patchErr
	}
	return f.rule, nil
}

func (f *fakeRuleManager) Delete(ctx context.Context, ruleID string) error {
	return f.deleteErr
}

type fakeEnqueuer struct {
	enqueued []models.Event
	err      error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, event *models.Event) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, *event)
	return "1-0", nil
}

type fakeRedis struct {
	pingErr   error
	workerVal string
	workerErr error
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", f.pingErr)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	return redis.NewStringResult(f.workerVal, f.workerErr)
}

// --- harness ---------------------------------------------------------

type testServer struct {
	*Server
	events    *fakeEventReader
	anomalies *fakeAnomalyReader
	rules     *fakeRuleManager
	producer  *fakeEnqueuer
	redis     *fakeRedis
}

func newTestServer() *testServer {
	ts := &testServer{
		events:    &fakeEventReader{},
		anomalies: &fakeAnomalyReader{},
		rules:     &fakeRuleManager{},
		producer:  &fakeEnqueuer{},
		redis:     &fakeRedis{workerVal: "worker-1"},
	}
	ts.Server = NewServer(nil, ts.redis, ts.events, ts.anomalies, ts.rules, ts.producer, nil)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func ingestEvent() map[string]any {
	return map[string]any{
		"event_type": "user.login",
		"source":     "auth-service",
		"timestamp":  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"payload":    map[string]any{"user_id": "u-1"},
	}
}
