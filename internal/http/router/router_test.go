package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

type testConfig struct{}

func (testConfig) GetHTTPAddr() string        { return ":0" }
func (testConfig) GetCORSAllowAll() bool      { return false }
func (testConfig) GetCORSOrigins() []string   { return []string{"http://localhost:4200"} }
func (testConfig) GetCORSAllowCreds() bool    { return true }
func (testConfig) GetJWTAccessSecret() string { return "secret" }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type pingModule struct{}

func (pingModule) Name() string { return "ping" }

func (pingModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
}

func newApp(health apphttp.HealthChecker) *apphttp.App {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	return &apphttp.App{
		Config:  testConfig{},
		Logger:  logger.Discard(),
		Health:  health,
		Metrics: metrics.New("test", reg, reg),
		Modules: []apphttp.Module{pingModule{}},
	}
}

func get(engine *gin.Engine, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthReflectsStore(t *testing.T) {
	assert.Equal(t, http.StatusOK, get(New(newApp(pinger{})), "/api/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(New(newApp(pinger{err: errors.New("down")})), "/api/health").Code)
}

func TestModuleRoutesRequireAuth(t *testing.T) {
	engine := New(newApp(pinger{}))

	rec := get(engine, "/api/v1/ping")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	engine := New(newApp(pinger{}))
	get(engine, "/api/health")

	rec := get(engine, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_http_requests_total")
}
