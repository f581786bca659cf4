package router

import (
	"net/http"

	"marketplace-risk-engine/internal/interfaces/http/handler"
	"marketplace-risk-engine/internal/interfaces/realtime"
)

// Router holds all HTTP handlers
type Router struct {
	mux           *http.ServeMux
	riskHandler   *handler.RiskHandler
	alertHandler  *handler.AlertHandler
	healthHandler *handler.HealthHandler
	hub           *realtime.Hub
}

// NewRouter creates a new router with all routes configured
func NewRouter(
	riskHandler *handler.RiskHandler,
	alertHandler *handler.AlertHandler,
	healthHandler *handler.HealthHandler,
	hub *realtime.Hub,
) *Router {
	r := &Router{
		mux:           http.NewServeMux(),
		riskHandler:   riskHandler,
		alertHandler:  alertHandler,
		healthHandler: healthHandler,
		hub:           hub,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	// Health endpoints
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)
	r.mux.HandleFunc("GET /ready", r.healthHandler.Ready)
	r.mux.HandleFunc("GET /live", r.healthHandler.Live)

	// Risk assessment
	r.mux.HandleFunc("POST /api/v1/risk/assess", r.riskHandler.Assess)
	r.mux.HandleFunc("GET /api/v1/risk/assessments/{userID}/{productID}", r.riskHandler.CachedAssessment)

	// Transaction locks
	r.mux.HandleFunc("POST /api/v1/risk/locks", r.riskHandler.AcquireLock)
	r.mux.HandleFunc("GET /api/v1/risk/locks/{fingerprint}", r.riskHandler.GetLock)

	// Fraud alerts
	r.mux.HandleFunc("GET /api/v1/alerts", r.alertHandler.List)
	r.mux.HandleFunc("GET /api/v1/alerts/stats", r.alertHandler.Stats)
	r.mux.HandleFunc("GET /api/v1/alerts/{id}", r.alertHandler.Get)
	r.mux.HandleFunc("POST /api/v1/alerts/{id}/acknowledge", r.alertHandler.Acknowledge)
	r.mux.HandleFunc("POST /api/v1/alerts/{id}/resolve", r.alertHandler.Resolve)
	r.mux.HandleFunc("POST /api/v1/alerts/{id}/false-positive", r.alertHandler.FalsePositive)

	// Reviewer live stream
	r.mux.HandleFunc("GET /ws/alerts", r.hub.ServeHTTP)

	// Prometheus metrics
	r.mux.Handle("GET /metrics", handler.MetricsHandler())
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// Add CORS headers
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r
}
