package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"marketplace-risk-engine/internal/application/alerting"
	"marketplace-risk-engine/internal/domain/alert"
)

const defaultListLimit = 50

// AlertHandler handles reviewer-facing alert HTTP requests
type AlertHandler struct {
	dispatcher *alerting.Dispatcher
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(dispatcher *alerting.Dispatcher) *AlertHandler {
	return &AlertHandler{dispatcher: dispatcher}
}

// List handles GET /api/v1/alerts
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	status := alert.Status(r.URL.Query().Get("status"))
	limit := queryInt(r, "limit", defaultListLimit)
	offset := queryInt(r, "offset", 0)

	alerts, err := h.dispatcher.List(r.Context(), status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list alerts: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// Get handles GET /api/v1/alerts/{id}
func (h *AlertHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := alertID(w, r)
	if !ok {
		return
	}

	a, err := h.dispatcher.Get(r.Context(), id)
	if err != nil {
		if err == alert.ErrNotFound {
			writeError(w, http.StatusNotFound, "Alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get alert: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ReviewRequest carries the reviewer identity and optional note for
// lifecycle transitions
type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
	Note       string `json:"note,omitempty"`
}

// Acknowledge handles POST /api/v1/alerts/{id}/acknowledge
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(id uuid.UUID, req ReviewRequest) (*alert.FraudAlert, error) {
		return h.dispatcher.Acknowledge(r.Context(), id, req.ReviewerID)
	})
}

// Resolve handles POST /api/v1/alerts/{id}/resolve
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(id uuid.UUID, req ReviewRequest) (*alert.FraudAlert, error) {
		return h.dispatcher.Resolve(r.Context(), id, req.ReviewerID, req.Note)
	})
}

// FalsePositive handles POST /api/v1/alerts/{id}/false-positive
func (h *AlertHandler) FalsePositive(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(id uuid.UUID, req ReviewRequest) (*alert.FraudAlert, error) {
		return h.dispatcher.MarkFalsePositive(r.Context(), id, req.ReviewerID, req.Note)
	})
}

// Stats handles GET /api/v1/alerts/stats
func (h *AlertHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dispatcher.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AlertHandler) lifecycle(w http.ResponseWriter, r *http.Request, apply func(uuid.UUID, ReviewRequest) (*alert.FraudAlert, error)) {
	id, ok := alertID(w, r)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.ReviewerID == "" {
		writeError(w, http.StatusBadRequest, "Reviewer ID is required")
		return
	}

	updated, err := apply(id, req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Transition failed: "+err.Error())
		return
	}
	if updated == nil {
		writeError(w, http.StatusConflict, "Alert not found or transition not allowed")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func alertID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := r.PathValue("id")
	if idStr == "" {
		writeError(w, http.StatusBadRequest, "Alert ID is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid alert ID")
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
