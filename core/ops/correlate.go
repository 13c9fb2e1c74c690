package ops

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"

	"huntdesk-ops/core/store"
)

// IncidentGroup is a fingerprint-keyed rollup of incident records. It is a
// materialization recomputed per query window, never authoritative state.
type IncidentGroup struct {
	Fingerprint      string                 `json:"fingerprint"`
	Surface          string                 `json:"surface"`
	Code             string                 `json:"code"`
	Message          string                 `json:"message"`
	Flow             string                 `json:"flow,omitempty"`
	Count            int                    `json:"count"`
	FirstSeen        time.Time              `json:"first_seen"`
	LastSeen         time.Time              `json:"last_seen"`
	SampleRequestIDs []string               `json:"sample_request_ids,omitempty"`
	Records          []store.IncidentRecord `json:"records,omitempty"`
}

const defaultGroupSamples = 5

// Fingerprint collapses case and internal whitespace in the message so
// "Gateway timeout" and "gateway   timeout" land in the same group.
func Fingerprint(rec store.IncidentRecord) string {
	code := strings.ToLower(strings.TrimSpace(rec.Code))
	if code == "" {
		code = "unknown"
	}
	return rec.Surface + "|" + code + "|" + normalizeMessage(rec.Message) + "|" + rec.Flow
}

func normalizeMessage(msg string) string {
	return strings.Join(strings.Fields(strings.ToLower(msg)), " ")
}

// GroupIncidents buckets records by fingerprint, most recently seen first.
// Every input record lands in exactly one group.
func GroupIncidents(records []store.IncidentRecord) []IncidentGroup {
	byKey := map[string]*IncidentGroup{}
	var order []string
	for _, rec := range records {
		key := Fingerprint(rec)
		g, ok := byKey[key]
		if !ok {
			code := strings.ToLower(strings.TrimSpace(rec.Code))
			if code == "" {
				code = "unknown"
			}
			g = &IncidentGroup{
				Fingerprint: key,
				Surface:     rec.Surface,
				Code:        code,
				Message:     normalizeMessage(rec.Message),
				Flow:        rec.Flow,
				FirstSeen:   rec.At,
				LastSeen:    rec.At,
			}
			byKey[key] = g
			order = append(order, key)
		}
		g.Count++
		if rec.At.Before(g.FirstSeen) {
			g.FirstSeen = rec.At
		}
		if rec.At.After(g.LastSeen) {
			g.LastSeen = rec.At
		}
		if rec.RequestID != "" && len(g.SampleRequestIDs) < defaultGroupSamples && !containsString(g.SampleRequestIDs, rec.RequestID) {
			g.SampleRequestIDs = append(g.SampleRequestIDs, rec.RequestID)
		}
		g.Records = append(g.Records, rec)
	}
	res := make([]IncidentGroup, 0, len(order))
	for _, key := range order {
		res = append(res, *byKey[key])
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].LastSeen.After(res[j].LastSeen)
	})
	return res
}

// Correlate returns the candidates that co-occur with the target: sharing a
// request id, user id, masked email, flow (including context flow/from),
// return-to or path, within the window around the target's timestamp.
// Matching is symmetric but not transitive; no connected-components merge.
func Correlate(target store.IncidentRecord, candidates []store.IncidentRecord, window time.Duration) []store.IncidentRecord {
	if window <= 0 {
		window = 10 * time.Minute
	}
	targetFlows := flowValues(target)
	var res []store.IncidentRecord
	for _, cand := range candidates {
		if cand.ID != 0 && cand.ID == target.ID {
			continue
		}
		delta := cand.At.Sub(target.At)
		if delta < 0 {
			delta = -delta
		}
		if delta > window {
			continue
		}
		if matchesTarget(target, cand, targetFlows) {
			res = append(res, cand)
		}
	}
	return res
}

func matchesTarget(target, cand store.IncidentRecord, targetFlows map[string]struct{}) bool {
	if target.RequestID != "" && target.RequestID == cand.RequestID {
		return true
	}
	if target.UserID != "" && target.UserID == cand.UserID {
		return true
	}
	if target.EmailMasked != "" && target.EmailMasked == cand.EmailMasked {
		return true
	}
	for flow := range flowValues(cand) {
		if _, ok := targetFlows[flow]; ok {
			return true
		}
	}
	if target.ReturnTo != "" && target.ReturnTo == cand.ReturnTo {
		return true
	}
	if target.Path != "" && target.Path == cand.Path {
		return true
	}
	return false
}

func flowValues(rec store.IncidentRecord) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(v string) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out[v] = struct{}{}
		}
	}
	add(rec.Flow)
	add(rec.Context["flow"])
	add(rec.Context["from"])
	return out
}

// WebhookReceipt summarizes webhook delivery dedup over a lookback window.
type WebhookReceipt struct {
	WindowHours   int                `json:"window_hours"`
	Total         int                `json:"total"`
	DistinctCount int                `json:"distinct_count"`
	DupCount      int                `json:"dup_count"`
	TopDuplicates []WebhookDuplicate `json:"top_duplicates,omitempty"`
}

type WebhookDuplicate struct {
	EventHash string `json:"event_hash"`
	Count     int    `json:"count"`
}

// BuildWebhookReceipt counts distinct vs repeated webhook event identifiers.
// Only webhook delivery records participate; the identifier key falls back to
// requestId and timestamp, so mixing in portal or checkout errors that share a
// request id would count phantom duplicates. The identifier is picked by
// priority: eventId, webhookId, id, requestId, then the record timestamp as a
// last resort; identifiers are hashed and truncated before they are surfaced
// anywhere.
func BuildWebhookReceipt(records []store.IncidentRecord, now time.Time, window time.Duration) WebhookReceipt {
	if window <= 0 {
		window = 24 * time.Hour
	}
	cutoff := now.Add(-window)
	counts := map[string]int{}
	total := 0
	for _, rec := range records {
		if !IsWebhookDelivery(rec) {
			continue
		}
		if rec.At.Before(cutoff) || rec.At.After(now) {
			continue
		}
		total++
		counts[hashEventID(webhookEventKey(rec))]++
	}
	receipt := WebhookReceipt{
		WindowHours:   int(window.Hours()),
		Total:         total,
		DistinctCount: len(counts),
	}
	for hash, n := range counts {
		if n > 1 {
			receipt.DupCount += n - 1
			receipt.TopDuplicates = append(receipt.TopDuplicates, WebhookDuplicate{EventHash: hash, Count: n})
		}
	}
	sort.Slice(receipt.TopDuplicates, func(i, j int) bool {
		if receipt.TopDuplicates[i].Count != receipt.TopDuplicates[j].Count {
			return receipt.TopDuplicates[i].Count > receipt.TopDuplicates[j].Count
		}
		return receipt.TopDuplicates[i].EventHash < receipt.TopDuplicates[j].EventHash
	})
	if len(receipt.TopDuplicates) > 10 {
		receipt.TopDuplicates = receipt.TopDuplicates[:10]
	}
	return receipt
}

// IsWebhookDelivery reports whether the record describes a webhook delivery
// attempt rather than some other surface failure.
func IsWebhookDelivery(rec store.IncidentRecord) bool {
	switch ClassifySignal(rec) {
	case SignalWebhookFailure, SignalWebhookError:
		return true
	}
	name := strings.ToLower(strings.TrimSpace(rec.EventName))
	return strings.HasPrefix(name, "webhook_")
}

func webhookEventKey(rec store.IncidentRecord) string {
	for _, key := range []string{"event_id", "webhook_id", "id"} {
		if v := strings.TrimSpace(rec.Context[key]); v != "" {
			return v
		}
	}
	if rec.RequestID != "" {
		return rec.RequestID
	}
	return strconv.FormatInt(rec.At.UnixMilli(), 10)
}

func hashEventID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:12]
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
