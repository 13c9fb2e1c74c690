package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

type OutcomesHandler struct {
	cfg      *config.AppConfig
	outcomes store.OutcomesStore
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewOutcomesHandler(cfg *config.AppConfig, outcomes store.OutcomesStore, audits store.AuditStore, logger *utils.Logger) *OutcomesHandler {
	return &OutcomesHandler{cfg: cfg, outcomes: outcomes, audits: audits, logger: logger}
}

func (h *OutcomesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestID string `json:"request_id"`
		UserID    string `json:"user_id"`
		Code      string `json:"code"`
		Note      string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	actor := actorFrom(r)
	outcome := &store.ResolutionOutcome{
		RequestID:   strings.TrimSpace(req.RequestID),
		UserID:      strings.TrimSpace(req.UserID),
		Code:        strings.ToLower(strings.TrimSpace(req.Code)),
		Note:        strings.TrimSpace(req.Note),
		ActorMasked: ops.MaskActor(actor.Username),
		CreatedAt:   time.Now().UTC(),
	}
	id, err := h.outcomes.CreateOutcome(r.Context(), outcome)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	outcome.ID = id
	outcome.EffectivenessState = store.EffectivenessUnknown
	_ = h.audits.Log(r.Context(), actor.Username, "outcomes.create", outcome.Code+" "+outcome.RequestID)
	writeJSON(w, http.StatusCreated, outcome)
}

func (h *OutcomesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := parseID(r)
	if id <= 0 {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	outcome, err := h.outcomes.GetOutcome(r.Context(), id)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if outcome == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *OutcomesHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.OutcomeFilter{
		State:     strings.ToLower(strings.TrimSpace(q.Get("state"))),
		RequestID: strings.TrimSpace(q.Get("request_id")),
		Since:     queryTime(r, "since"),
		Limit:     queryInt(r, "limit", "", 500),
	}
	items, err := h.outcomes.ListOutcomes(r.Context(), filter)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Due lists outcomes awaiting a did-it-work review plus failure insights.
func (h *OutcomesHandler) Due(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.outcomes.ListOutcomes(r.Context(), store.OutcomeFilter{})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	report := ops.ComputeDue(outcomes, h.cfg.ReviewAge(), time.Now().UTC())
	writeJSON(w, http.StatusOK, report)
}

// Review transitions unknown to success or fail, exactly once.
func (h *OutcomesHandler) Review(w http.ResponseWriter, r *http.Request) {
	id := parseID(r)
	if id <= 0 {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	var req struct {
		State  string `json:"state"`
		Reason string `json:"reason"`
		Note   string `json:"note"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	state := strings.ToLower(strings.TrimSpace(req.State))
	if state != store.EffectivenessSuccess && state != store.EffectivenessFail {
		http.Error(w, "state must be success or fail", http.StatusBadRequest)
		return
	}
	err := h.outcomes.RecordReview(r.Context(), id, state, strings.TrimSpace(req.Reason), strings.TrimSpace(req.Note), strings.TrimSpace(req.Source))
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "already reviewed", http.StatusConflict)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	actor := actorFrom(r)
	_ = h.audits.Log(r.Context(), actor.Username, "outcomes.review", strconv.FormatInt(id, 10)+" "+state)
	outcome, err := h.outcomes.GetOutcome(r.Context(), id)
	if err != nil || outcome == nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// Defer pushes the review out; it never resets a reviewed outcome.
func (h *OutcomesHandler) Defer(w http.ResponseWriter, r *http.Request) {
	id := parseID(r)
	if id <= 0 {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	var req struct {
		Hours int `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Hours <= 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	until := time.Now().UTC().Add(time.Duration(req.Hours) * time.Hour)
	if err := h.outcomes.DeferReview(r.Context(), id, until); err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "already reviewed", http.StatusConflict)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	actor := actorFrom(r)
	_ = h.audits.Log(r.Context(), actor.Username, "outcomes.defer", strconv.FormatInt(id, 10))
	writeJSON(w, http.StatusOK, map[string]any{"status": "deferred", "until": until})
}

func parseID(r *http.Request) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(urlParam(r, "id")), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
