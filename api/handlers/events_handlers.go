package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

// EventsHandler owns the incident stream: ingestion of raw events, the
// grouped and correlated read views, and fused request contexts.
type EventsHandler struct {
	cfg      *config.AppConfig
	records  store.RecordsStore
	contexts store.ContextsStore
	resolver *ops.Resolver
	cases    *ops.CaseService
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewEventsHandler(cfg *config.AppConfig, records store.RecordsStore, contexts store.ContextsStore, resolver *ops.Resolver, cases *ops.CaseService, audits store.AuditStore, logger *utils.Logger) *EventsHandler {
	return &EventsHandler{cfg: cfg, records: records, contexts: contexts, resolver: resolver, cases: cases, audits: audits, logger: logger}
}

// Ingest accepts one raw event or a batch. Malformed events are dropped
// and counted, never failing the batch.
func (h *EventsHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	raw, err := readRawEvents(r)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	records, dropped := ops.NormalizeBatch(raw, now)
	stored := 0
	for i := range records {
		rec := records[i]
		if _, err := h.records.AddRecord(r.Context(), &rec); err != nil {
			if h.logger != nil {
				h.logger.Errorf("event ingest store: %v", err)
			}
			continue
		}
		stored++
		h.feedDownstream(r, rec, now)
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"stored": stored, "dropped": dropped})
}

// feedDownstream fans one stored record out to identity resolution and,
// when the record names a queue-worthy failure, to the case queue. Both
// are best effort; ingest never fails because of them.
func (h *EventsHandler) feedDownstream(r *http.Request, rec store.IncidentRecord, now time.Time) {
	if rec.RequestID == "" {
		return
	}
	if h.resolver != nil {
		// Masking is idempotent, so feeding the already-masked email back
		// through the resolver is safe.
		obs := ops.Observation{
			Source: "event:" + rec.Surface,
			UserID: rec.UserID,
			Email:  rec.EmailMasked,
			Path:   rec.Path,
			At:     rec.At,
			Meta:   rec.Context,
		}
		if _, err := h.resolver.Resolve(r.Context(), rec.RequestID, obs); err != nil && h.logger != nil {
			h.logger.Errorf("event resolve %s: %v", rec.RequestID, err)
		}
	}
	if h.cases == nil {
		return
	}
	code := queueReasonFor(rec)
	if code == "" {
		return
	}
	src := store.CaseReasonSource{
		RequestID:     rec.RequestID,
		Code:          code,
		PrimarySource: rec.Surface,
		Count:         1,
		Detail:        rec.Message,
		LastSeenAt:    rec.At,
	}
	if err := h.cases.AddReasonSource(r.Context(), src, now); err != nil && h.logger != nil {
		h.logger.Errorf("event queue source %s: %v", rec.RequestID, err)
	}
}

// queueReasonFor maps a health signal onto a case queue reason code.
func queueReasonFor(rec store.IncidentRecord) string {
	switch ops.ClassifySignal(rec) {
	case ops.SignalWebhookFailure:
		return ops.ReasonWebhookFailure
	case ops.SignalWebhookError:
		return ops.ReasonWebhookFailure
	case ops.SignalCheckoutError:
		return ops.ReasonCheckoutError
	case ops.SignalPortalError:
		return ops.ReasonPortalError
	case ops.SignalRateLimit:
		return ops.ReasonRateLimited
	}
	return ""
}

func readRawEvents(r *http.Request) ([]ops.RawEvent, error) {
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "[") {
		var batch []ops.RawEvent
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	}
	var single ops.RawEvent
	if err := json.Unmarshal(payload, &single); err != nil {
		return nil, err
	}
	return []ops.RawEvent{single}, nil
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := parseRecordFilter(r)
	items, err := h.records.ListRecords(r.Context(), filter)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *EventsHandler) Groups(w http.ResponseWriter, r *http.Request) {
	filter := parseRecordFilter(r)
	items, err := h.records.ListRecords(r.Context(), filter)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": ops.GroupIncidents(items)})
}

// Correlate evaluates candidates against one target record id.
func (h *EventsHandler) Correlate(w http.ResponseWriter, r *http.Request) {
	requestID := strings.TrimSpace(r.URL.Query().Get("request_id"))
	if requestID == "" {
		http.Error(w, "request_id required", http.StatusBadRequest)
		return
	}
	window := h.cfg.CorrelationWindow()
	targets, err := h.records.ListRecords(r.Context(), store.IncidentRecordFilter{RequestID: requestID, Limit: 1})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if len(targets) == 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	target := targets[0]
	candidates, err := h.records.ListRecords(r.Context(), store.IncidentRecordFilter{Since: target.At.Add(-window), Until: target.At.Add(window)})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	related := ops.Correlate(target, candidates, window)
	writeJSON(w, http.StatusOK, map[string]any{"target": target, "related": related})
}

func (h *EventsHandler) WebhookReceipt(w http.ResponseWriter, r *http.Request) {
	hours := h.cfg.Correlation.WebhookReceiptHours
	if hours <= 0 {
		hours = 24
	}
	window := time.Duration(hours) * time.Hour
	now := time.Now().UTC()
	items, err := h.records.ListRecords(r.Context(), store.IncidentRecordFilter{Since: now.Add(-window)})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	receipt := ops.BuildWebhookReceipt(items, now, window)
	writeJSON(w, http.StatusOK, receipt)
}

func (h *EventsHandler) Context(w http.ResponseWriter, r *http.Request) {
	requestID := urlParam(r, "request_id")
	rc, err := h.contexts.GetContext(r.Context(), requestID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if rc == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func parseRecordFilter(r *http.Request) store.IncidentRecordFilter {
	q := r.URL.Query()
	filter := store.IncidentRecordFilter{
		Surface:   strings.ToLower(strings.TrimSpace(q.Get("surface"))),
		Code:      strings.ToLower(strings.TrimSpace(q.Get("code"))),
		Flow:      strings.TrimSpace(q.Get("flow")),
		RequestID: strings.TrimSpace(q.Get("request_id")),
		UserID:    strings.TrimSpace(q.Get("user_id")),
		EventName: strings.TrimSpace(q.Get("event")),
		Since:     queryTime(r, "since"),
		Until:     queryTime(r, "until"),
		Limit:     queryInt(r, "limit", "", 500),
	}
	if filter.Limit > 5000 {
		filter.Limit = 5000
	}
	return filter
}
