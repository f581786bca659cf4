package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"marketplace-risk-engine/internal/application/alerting"
	"marketplace-risk-engine/internal/application/assessment"
	"marketplace-risk-engine/internal/domain/risk"
	"marketplace-risk-engine/internal/infrastructure/analyzer"
)

// RiskHandler handles risk assessment HTTP requests
type RiskHandler struct {
	engine     *assessment.Engine
	dispatcher *alerting.Dispatcher
	locks      *assessment.LockManager
	device     *analyzer.DeviceAnalyzer
}

// NewRiskHandler creates a new risk handler
func NewRiskHandler(engine *assessment.Engine, dispatcher *alerting.Dispatcher, locks *assessment.LockManager, device *analyzer.DeviceAnalyzer) *RiskHandler {
	return &RiskHandler{
		engine:     engine,
		dispatcher: dispatcher,
		locks:      locks,
		device:     device,
	}
}

// AssessRequest is the body for POST /api/v1/risk/assess
type AssessRequest struct {
	UserID        string `json:"user_id"`
	ProductID     string `json:"product_id"`
	Amount        string `json:"amount"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// AssessResponse pairs the assessment with any alerts it raised
type AssessResponse struct {
	Assessment *risk.Assessment `json:"assessment"`
	AlertIDs   []string         `json:"alert_ids,omitempty"`
}

// Assess handles POST /api/v1/risk/assess
func (h *RiskHandler) Assess(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, risk.ErrMissingUserID.Error())
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, risk.ErrMissingProductID.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		writeError(w, http.StatusBadRequest, risk.ErrInvalidAmount.Error())
		return
	}

	rc := requestContextFrom(r)
	result := h.engine.Assess(r.Context(), req.UserID, req.ProductID, amount, rc)

	alerts, err := h.dispatcher.Process(r.Context(), req.UserID, req.TransactionID, result, amount, rc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Alert dispatch failed: "+err.Error())
		return
	}

	resp := AssessResponse{Assessment: result}
	for _, a := range alerts {
		resp.AlertIDs = append(resp.AlertIDs, a.ID.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

// CachedAssessment handles GET /api/v1/risk/assessments/{userID}/{productID}
func (h *RiskHandler) CachedAssessment(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	productID := r.PathValue("productID")
	if userID == "" || productID == "" {
		writeError(w, http.StatusBadRequest, "User ID and product ID are required")
		return
	}

	result, ok := h.engine.CachedAssessment(r.Context(), userID, productID)
	if !ok {
		writeError(w, http.StatusNotFound, "No cached assessment")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AcquireLockRequest is the body for POST /api/v1/risk/locks
type AcquireLockRequest struct {
	TransactionID string `json:"transaction_id"`
}

// AcquireLock handles POST /api/v1/risk/locks. The lock key is derived
// from the caller's device fingerprint, so only one concurrent checkout
// per device can proceed.
func (h *RiskHandler) AcquireLock(w http.ResponseWriter, r *http.Request) {
	var req AcquireLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "Transaction ID is required")
		return
	}

	fingerprint := h.device.Fingerprint(requestContextFrom(r))
	if h.locks.Acquire(r.Context(), fingerprint, req.TransactionID) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"acquired":    true,
			"fingerprint": fingerprint,
		})
		return
	}

	holder, _ := h.locks.Holder(r.Context(), fingerprint)
	writeJSON(w, http.StatusConflict, map[string]interface{}{
		"acquired":    false,
		"fingerprint": fingerprint,
		"held_by":     holder,
	})
}

// GetLock handles GET /api/v1/risk/locks/{fingerprint}
func (h *RiskHandler) GetLock(w http.ResponseWriter, r *http.Request) {
	fingerprint := r.PathValue("fingerprint")
	if fingerprint == "" {
		writeError(w, http.StatusBadRequest, "Fingerprint is required")
		return
	}

	holder, ok := h.locks.Holder(r.Context(), fingerprint)
	if !ok {
		writeError(w, http.StatusNotFound, "No active lock")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"fingerprint": fingerprint,
		"held_by":     holder,
	})
}

// requestContextFrom captures the risk-relevant parts of the request.
// The client IP is the direct peer; forwarded headers stay in the header
// map where the analyzers inspect them as signals.
func requestContextFrom(r *http.Request) *risk.RequestContext {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}
	return risk.NewRequestContext(ip, r.UserAgent(), headers)
}
