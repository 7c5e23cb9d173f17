package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/krishnakrish0052/payment-router/internal/registry"
	"github.com/krishnakrish0052/payment-router/internal/routing"
	"github.com/krishnakrish0052/payment-router/internal/types"
)

// Server exposes the read-only diagnostics surface: provider inventory,
// health state, switching stats and dry-run routing decisions. The payment
// creation flow itself calls the engine in-process and is not served here.
type Server struct {
	engine     *routing.Engine
	registry   *registry.Registry
	httpServer *http.Server
	logger     *logrus.Logger
	config     *Config
}

// Config holds server configuration
type Config struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// NewServer creates a new server instance
func NewServer(engine *routing.Engine, reg *registry.Registry, config *Config, logger *logrus.Logger) *Server {
	return &Server{
		engine:   engine,
		registry: reg,
		logger:   logger,
		config:   config,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	r := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      r,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting payment router diagnostics server")
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping payment router diagnostics server")
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.loggingMiddleware)

	api := r.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/providers", s.handleListProviders).Methods("GET")
	api.HandleFunc("/providers/{id}", s.handleGetProvider).Methods("GET")
	api.HandleFunc("/stats/switches", s.handleSwitchingStats).Methods("GET")
	api.HandleFunc("/routing/decision", s.handleRoutingDecision).Methods("POST")

	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// handleHealth reports the cached health state of every active provider.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := s.registry.ListActive()

	overallHealthy := true
	states := make(map[string]types.HealthState, len(providers))
	for _, p := range providers {
		states[p.ID] = p.HealthState
		if p.HealthState == types.HealthUnhealthy {
			overallHealthy = false
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"providers": states,
		"timestamp": time.Now().Unix(),
	})
}

// handleListProviders lists all active provider configurations
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers := s.registry.ListActive()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"count":     len(providers),
	})
}

// handleGetProvider returns one provider configuration by ID
func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	for _, p := range s.registry.ListActive() {
		if p.ID == id {
			s.writeJSON(w, http.StatusOK, p)
			return
		}
	}
	s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Provider %s not found", id))
}

// handleSwitchingStats aggregates the failover audit trail by reason
func (s *Server) handleSwitchingStats(w http.ResponseWriter, r *http.Request) {
	timeRange := r.URL.Query().Get("range")

	stats, err := s.engine.GetSwitchingStats(r.Context(), timeRange)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"range": timeRange,
		"stats": stats,
	})
}

type decisionRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Country  string `json:"country"`
	UserID   string `json:"user_id"`
}

// handleRoutingDecision runs a selection and returns the decision without
// committing to a payment.
func (s *Server) handleRoutingDecision(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		s.writeErrorResponse(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}

	tx := types.TransactionContext{
		Amount:   amount,
		Currency: req.Currency,
		Country:  req.Country,
		UserID:   req.UserID,
	}

	provider, decision, err := s.engine.GetOptimalProvider(r.Context(), tx)
	if err != nil {
		s.writeErrorResponse(w, http.StatusServiceUnavailable, fmt.Sprintf("Selection failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"provider": provider,
		"decision": decision,
	})
}

// Helper functions

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    statusCode,
		},
		"timestamp": time.Now().Unix(),
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
