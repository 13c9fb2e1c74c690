package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

// ackActorID marks ownership rows written through the out-of-console ack
// path, where there is no operator session.
const ackActorID int64 = 0

type AlertsHandler struct {
	cfg    *config.AppConfig
	alerts *ops.AlertService
	ackSvc *ops.AckTokenService
	audits store.AuditStore
	logger *utils.Logger
}

func NewAlertsHandler(cfg *config.AppConfig, alerts *ops.AlertService, ackSvc *ops.AckTokenService, audits store.AuditStore, logger *utils.Logger) *AlertsHandler {
	return &AlertsHandler{cfg: cfg, alerts: alerts, ackSvc: ackSvc, audits: audits, logger: logger}
}

type alertKeyRequest struct {
	AlertKey    string `json:"alert_key"`
	WindowLabel string `json:"window_label"`
	Minutes     int    `json:"minutes,omitempty"`
}

func (h *AlertsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req alertKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	actor := actorFrom(r)
	own, err := h.alerts.Claim(r.Context(), req.AlertKey, req.WindowLabel, actor.UserID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "already claimed", http.StatusConflict)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), actor.Username, "alerts.claim", req.AlertKey+"|"+req.WindowLabel)
	writeJSON(w, http.StatusOK, own)
}

func (h *AlertsHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req alertKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.alerts.Release(r.Context(), req.AlertKey, req.WindowLabel); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	actor := actorFrom(r)
	_ = h.audits.Log(r.Context(), actor.Username, "alerts.release", req.AlertKey+"|"+req.WindowLabel)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AlertsHandler) Ownership(w http.ResponseWriter, r *http.Request) {
	owned, err := h.alerts.OwnershipMap(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ownership": owned})
}

func (h *AlertsHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	var req alertKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	snooze, err := h.alerts.Snooze(r.Context(), req.AlertKey, req.WindowLabel, req.Minutes, time.Now().UTC())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	actor := actorFrom(r)
	_ = h.audits.Log(r.Context(), actor.Username, "alerts.snooze", req.AlertKey+"|"+req.WindowLabel)
	writeJSON(w, http.StatusOK, snooze)
}

func (h *AlertsHandler) Unsnooze(w http.ResponseWriter, r *http.Request) {
	var req alertKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := h.alerts.Unsnooze(r.Context(), req.AlertKey, req.WindowLabel); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	actor := actorFrom(r)
	_ = h.audits.Log(r.Context(), actor.Username, "alerts.unsnooze", req.AlertKey+"|"+req.WindowLabel)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AlertsHandler) Snoozes(w http.ResponseWriter, r *http.Request) {
	items, err := h.alerts.Snoozes(r.Context(), time.Now().UTC())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// IssueAckToken signs a one-click acknowledgement link for an alert
// event, for embedding in outbound pages.
func (h *AlertsHandler) IssueAckToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID     string `json:"event_id"`
		WindowLabel string `json:"window_label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.EventID) == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	token, err := h.ackSvc.Sign(req.EventID, req.WindowLabel, time.Now().UTC())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":   token,
		"ack_url": ops.AckURL(h.cfg.Notify.AckBaseURL, token),
	})
}

// Ack is the only unauthenticated write path. The token alone authorizes
// exactly one acknowledgement; every failure maps to the same response so
// callers cannot probe for event existence.
func (h *AlertsHandler) Ack(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		var req struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		token = strings.TrimSpace(req.Token)
	}
	claims, err := h.ackSvc.Verify(token, time.Now().UTC())
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	now := time.Now().UTC()
	_, err = h.alerts.Claim(r.Context(), claims.EventID, claims.WindowLabel, ackActorID, now)
	if err != nil && !errors.Is(err, store.ErrConflict) {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	_ = h.audits.Log(r.Context(), "ack-link", "alerts.ack", claims.EventID+"|"+claims.WindowLabel)
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "event_id": claims.EventID})
}
