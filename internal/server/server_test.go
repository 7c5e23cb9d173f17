package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishnakrish0052/payment-router/internal/registry"
	"github.com/krishnakrish0052/payment-router/internal/routing"
	"github.com/krishnakrish0052/payment-router/internal/stores"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestServer(t *testing.T, providers []types.ProviderConfig) (*Server, http.Handler) {
	t.Helper()
	logger := testLogger()
	clock := stores.SystemClock{}

	configs := stores.NewMemoryConfigStore(providers, nil)
	health := stores.NewMemoryHealthStore(clock)
	usage := stores.NewMemoryUsageStore(health, clock)
	users := stores.NewMemoryUserStore(stores.DefaultSegmentThresholds())
	switches := stores.NewMemorySwitchStore(clock)

	reg := registry.New(configs, clock, logger, time.Minute)
	require.NoError(t, reg.Refresh(context.Background(), true))

	engine := routing.NewEngine(
		reg,
		routing.NewRuleEngine(users, health, clock, logger),
		routing.NewReliabilityFilter(health, routing.DefaultReliabilityThresholds(), logger),
		routing.NewBalancer(usage, logger, time.Hour),
		health, usage, switches, clock, logger, routing.EngineConfig{},
	)

	srv := NewServer(engine, reg, &Config{Port: "0"}, logger)
	return srv, srv.setupRoutes()
}

func activeProvider(id string) types.ProviderConfig {
	return types.ProviderConfig{ID: id, Name: id, Type: "stripe", Priority: 1, Active: true}
}

func TestHealthEndpoint_AllHealthy(t *testing.T) {
	_, handler := newTestServer(t, []types.ProviderConfig{activeProvider("a")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHealthEndpoint_DegradedWhenProviderUnhealthy(t *testing.T) {
	srv, handler := newTestServer(t, []types.ProviderConfig{activeProvider("a")})
	srv.registry.UpdateHealthState("a", types.HealthUnhealthy)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestListProviders(t *testing.T) {
	_, handler := newTestServer(t, []types.ProviderConfig{activeProvider("a"), activeProvider("b")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/providers", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Providers []types.ProviderConfig `json:"providers"`
		Count     int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Providers, 2)
}

func TestGetProvider(t *testing.T) {
	_, handler := newTestServer(t, []types.ProviderConfig{activeProvider("a")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/providers/a", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/providers/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSwitchingStats_InvalidRange(t *testing.T) {
	_, handler := newTestServer(t, []types.ProviderConfig{activeProvider("a")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/stats/switches?range=century", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSwitchingStats_DefaultRange(t *testing.T) {
	_, handler := newTestServer(t, []types.ProviderConfig{activeProvider("a")})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/stats/switches", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoutingDecision(t *testing.T) {
	_, handler := newTestServer(t, []types.ProviderConfig{activeProvider("a")})

	payload := `{"amount": "49.99", "currency": "USD", "country": "US"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/routing/decision", bytes.NewBufferString(payload)))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Provider types.ProviderConfig      `json:"provider"`
		Decision routing.SelectionDecision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a", body.Provider.ID)
	assert.Equal(t, "a", body.Decision.SelectedProvider)
}

func TestRoutingDecision_BadRequests(t *testing.T) {
	_, handler := newTestServer(t, []types.ProviderConfig{activeProvider("a")})

	cases := map[string]string{
		"invalid json":    `{`,
		"missing amount":  `{"currency": "USD", "country": "US"}`,
		"negative amount": `{"amount": "-5", "currency": "USD", "country": "US"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/routing/decision", bytes.NewBufferString(payload)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRoutingDecision_NoProvidersUnavailable(t *testing.T) {
	_, handler := newTestServer(t, nil)

	payload := `{"amount": "10", "currency": "USD", "country": "US"}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/routing/decision", bytes.NewBufferString(payload)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
