package ops

import (
	"encoding/json"
	"strings"
	"time"

	"huntdesk-ops/core/store"
)

// RawEvent is the loose wire shape produced by the webhook delivery logs,
// portal/checkout instrumentation and the rate limiter. Unknown fields land
// in Context.
type RawEvent struct {
	RequestID string            `json:"request_id"`
	At        string            `json:"at"`
	Surface   string            `json:"surface"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	UserID    string            `json:"user_id"`
	Email     string            `json:"email"`
	EventName string            `json:"event_name"`
	Flow      string            `json:"flow"`
	Path      string            `json:"path"`
	ReturnTo  string            `json:"return_to"`
	Context   map[string]string `json:"context"`
}

var validSurfaces = map[string]struct{}{
	store.SurfaceBilling:     {},
	store.SurfacePortal:      {},
	store.SurfaceCheckout:    {},
	store.SurfaceOutcomes:    {},
	store.SurfaceOutreach:    {},
	store.SurfaceReferrals:   {},
	store.SurfaceOther:       {},
	store.SurfaceDiagnostics: {},
}

// Normalize turns a raw event into the canonical record. It returns ok=false
// for events that cannot be parsed at all; callers drop those and carry on,
// a bad record never aborts an aggregate computation.
func Normalize(raw RawEvent, now time.Time) (store.IncidentRecord, bool) {
	surface := strings.ToLower(strings.TrimSpace(raw.Surface))
	if _, ok := validSurfaces[surface]; !ok {
		if surface == "" && strings.TrimSpace(raw.EventName) == "" && strings.TrimSpace(raw.Code) == "" && strings.TrimSpace(raw.Message) == "" {
			return store.IncidentRecord{}, false
		}
		surface = store.SurfaceOther
	}
	at := now.UTC()
	if ts := strings.TrimSpace(raw.At); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return store.IncidentRecord{}, false
		}
		at = parsed.UTC()
	}
	rec := store.IncidentRecord{
		RequestID:   strings.TrimSpace(raw.RequestID),
		At:          at,
		Surface:     surface,
		Code:        strings.TrimSpace(raw.Code),
		Message:     strings.TrimSpace(raw.Message),
		UserID:      strings.TrimSpace(raw.UserID),
		EmailMasked: MaskEmail(raw.Email),
		EventName:   strings.TrimSpace(raw.EventName),
		Flow:        strings.ToLower(strings.TrimSpace(raw.Flow)),
		Path:        strings.TrimSpace(raw.Path),
		ReturnTo:    strings.TrimSpace(raw.ReturnTo),
		Context:     sanitizeContext(raw.Context),
	}
	return rec, true
}

// NormalizeBatch drops records that fail normalization and reports how many
// were dropped.
func NormalizeBatch(raws []RawEvent, now time.Time) ([]store.IncidentRecord, int) {
	records := make([]store.IncidentRecord, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		rec, ok := Normalize(raw, now)
		if !ok {
			dropped++
			continue
		}
		records = append(records, rec)
	}
	return records, dropped
}

// ParseRawEvent decodes a single raw JSON event. A malformed payload is
// reported as not-ok, never as an error.
func ParseRawEvent(data []byte) (RawEvent, bool) {
	var raw RawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawEvent{}, false
	}
	return raw, true
}

// MaskEmail irreversibly masks an address before it is stored: first local
// character plus ***, and every domain label except the last reduced to its
// first character. The unmasked value is never persisted.
func MaskEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return ""
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}
	local := email[:at]
	domain := email[at+1:]
	labels := strings.Split(domain, ".")
	for i := 0; i < len(labels)-1; i++ {
		if labels[i] != "" {
			labels[i] = labels[i][:1] + "***"
		}
	}
	return local[:1] + "***@" + strings.Join(labels, ".")
}

// MaskActor masks an operator identity for outcome records: usernames keep
// their first two characters, email-shaped actors go through MaskEmail.
func MaskActor(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ""
	}
	if strings.Contains(actor, "@") {
		return MaskEmail(actor)
	}
	if len(actor) <= 2 {
		return actor + "***"
	}
	return actor[:2] + "***"
}

func sanitizeContext(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		// Free-form payloads may carry raw addresses.
		if strings.Contains(v, "@") && strings.Contains(k, "email") {
			v = MaskEmail(v)
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
