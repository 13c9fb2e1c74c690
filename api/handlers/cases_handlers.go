package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

type CasesHandler struct {
	cases  *ops.CaseService
	audits store.AuditStore
	logger *utils.Logger
}

func NewCasesHandler(cases *ops.CaseService, audits store.AuditStore, logger *utils.Logger) *CasesHandler {
	return &CasesHandler{cases: cases, audits: audits, logger: logger}
}

func (h *CasesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CaseFilter{
		Status:   strings.ToLower(strings.TrimSpace(q.Get("status"))),
		Priority: strings.ToLower(strings.TrimSpace(q.Get("priority"))),
		Limit:    queryInt(r, "limit", "", 200),
		Offset:   queryInt(r, "offset", "", 0),
	}
	if raw := strings.TrimSpace(q.Get("assigned_to")); raw != "" {
		filter.AssignedTo = queryInt64(raw)
	}
	items, err := h.cases.List(r.Context(), filter)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CasesHandler) Workload(w http.ResponseWriter, r *http.Request) {
	counts, err := h.cases.Workload(r.Context())
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active_by_assignee": counts})
}

// Get materializes the case if needed and returns it with its resolved
// queue reason.
func (h *CasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := urlParam(r, "request_id")
	now := time.Now().UTC()
	item, err := h.cases.Get(r.Context(), requestID, now)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	reason, sources, err := h.cases.Reason(r.Context(), requestID, now)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"case":    item,
		"reason":  reason,
		"sources": sources,
	})
}

func (h *CasesHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	item, err := h.cases.Assign(r.Context(), urlParam(r, "request_id"), req.UserID, actorFrom(r), time.Now().UTC())
	h.respondCase(w, item, err)
}

func (h *CasesHandler) Claim(w http.ResponseWriter, r *http.Request) {
	item, err := h.cases.Claim(r.Context(), urlParam(r, "request_id"), actorFrom(r), time.Now().UTC())
	h.respondCase(w, item, err)
}

func (h *CasesHandler) Release(w http.ResponseWriter, r *http.Request) {
	item, err := h.cases.Release(r.Context(), urlParam(r, "request_id"), actorFrom(r), time.Now().UTC())
	h.respondCase(w, item, err)
}

func (h *CasesHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	item, err := h.cases.Transition(r.Context(), urlParam(r, "request_id"), req.Status, actorFrom(r), time.Now().UTC())
	h.respondCase(w, item, err)
}

func (h *CasesHandler) SetPriority(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Priority string `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	item, err := h.cases.SetPriority(r.Context(), urlParam(r, "request_id"), req.Priority, actorFrom(r), time.Now().UTC())
	h.respondCase(w, item, err)
}

func (h *CasesHandler) Notes(w http.ResponseWriter, r *http.Request) {
	items, err := h.cases.Notes(r.Context(), urlParam(r, "request_id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CasesHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	note, err := h.cases.AddNote(r.Context(), urlParam(r, "request_id"), req.Body, actorFrom(r), time.Now().UTC())
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (h *CasesHandler) Audit(w http.ResponseWriter, r *http.Request) {
	items, err := h.cases.Audit(r.Context(), urlParam(r, "request_id"), queryInt(r, "limit", "", 200))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AddReason ingests one queue explanation for a case by hand, the same
// path event ingestion feeds automatically.
func (h *CasesHandler) AddReason(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code          string `json:"code"`
		PrimarySource string `json:"primary_source"`
		Count         int    `json:"count"`
		Detail        string `json:"detail"`
		WindowLabel   string `json:"window_label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	requestID := urlParam(r, "request_id")
	src := store.CaseReasonSource{
		RequestID:     requestID,
		Code:          req.Code,
		PrimarySource: req.PrimarySource,
		Count:         req.Count,
		Detail:        req.Detail,
		WindowLabel:   req.WindowLabel,
		LastSeenAt:    now,
	}
	if err := h.cases.AddReasonSource(r.Context(), src, now); err != nil {
		h.respondError(w, err)
		return
	}
	reason, sources, err := h.cases.Reason(r.Context(), requestID, now)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reason": reason, "sources": sources})
}

func (h *CasesHandler) respondCase(w http.ResponseWriter, item *store.CaseWorkflow, err error) {
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *CasesHandler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ops.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, store.ErrConflict):
		http.Error(w, "conflict", http.StatusConflict)
	case errors.Is(err, ops.ErrBadTransition):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

func queryInt64(raw string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
