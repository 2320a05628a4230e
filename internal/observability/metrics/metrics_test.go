package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ForesightX/internal/agent"
	xerrors "ForesightX/internal/errors"
	"ForesightX/internal/observability/alerting"
)

func TestMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := New()
	router := gin.New()
	router.Use(reg.Middleware())
	router.GET("/api/v1/tasks/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/api/v1/tasks/a", "/api/v1/tasks/b", "/boom"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(reg.httpRequests.WithLabelValues("/api/v1/tasks/:id", "GET", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.httpErrors.WithLabelValues("/boom", "GET")))
	assert.Equal(t, 0.0, testutil.ToFloat64(reg.httpErrors.WithLabelValues("/api/v1/tasks/:id", "GET")))
}

func TestObserveAgentEventsAndAlerts(t *testing.T) {
	reg := New()
	ctx := context.Background()
	reg.Observe(ctx, agent.Event{Action: "CREATE_PREDICTION_MARKET", Success: true, Duration: 2 * time.Second})
	reg.Observe(ctx, agent.Event{Action: "CREATE_PREDICTION_MARKET", Success: false, Duration: time.Second})
	reg.Observe(ctx, agent.Event{Success: true})
	require.NoError(t, reg.Notify(ctx, alerting.Event{Code: xerrors.CodeChainFailure, Severity: xerrors.SeverityWarning}))

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.agentEvents.WithLabelValues("CREATE_PREDICTION_MARKET", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.agentEvents.WithLabelValues("CREATE_PREDICTION_MARKET", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.agentEvents.WithLabelValues("NONE", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.alerts.WithLabelValues("CHAIN_FAILURE", "warning")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := New()
	reg.ObserveHTTPRequest("/healthz", http.MethodGet, http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), `foresightx_http_requests_total{code="200",handler="/healthz",method="GET"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
