package ops_test

import (
	"testing"
	"time"

	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/store"
)

func rec(requestID, surface, code, message string, at time.Time) store.IncidentRecord {
	return store.IncidentRecord{RequestID: requestID, Surface: surface, Code: code, Message: message, At: at}
}

func TestFingerprintCollapsesCaseAndWhitespace(t *testing.T) {
	at := time.Now().UTC()
	a := rec("r1", "billing", "GW_TIMEOUT", "Gateway timeout", at)
	b := rec("r2", "billing", "gw_timeout", "gateway   TIMEOUT", at)
	if ops.Fingerprint(a) != ops.Fingerprint(b) {
		t.Fatalf("fingerprints differ: %q vs %q", ops.Fingerprint(a), ops.Fingerprint(b))
	}
}

func TestGroupIncidentsCountsSumToInput(t *testing.T) {
	at := time.Now().UTC()
	records := []store.IncidentRecord{
		rec("r1", "billing", "gw_timeout", "Gateway timeout", at),
		rec("r2", "billing", "gw_timeout", "gateway timeout", at.Add(time.Minute)),
		rec("r3", "portal", "portal_500", "boom", at.Add(2*time.Minute)),
		rec("r4", "portal", "", "something else", at.Add(3*time.Minute)),
	}
	groups := ops.GroupIncidents(records)
	total := 0
	for _, g := range groups {
		total += g.Count
	}
	if total != len(records) {
		t.Fatalf("group counts sum to %d, want %d", total, len(records))
	}
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	// Most recently seen group first.
	if groups[0].Code != "unknown" {
		t.Fatalf("first group code = %q, want unknown", groups[0].Code)
	}
}

func TestGroupIncidentsEmptyCodeBecomesUnknown(t *testing.T) {
	groups := ops.GroupIncidents([]store.IncidentRecord{rec("r1", "portal", "  ", "x", time.Now())})
	if len(groups) != 1 || groups[0].Code != "unknown" {
		t.Fatalf("groups = %+v", groups)
	}
}

func TestCorrelateWindowAndKeys(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	target := store.IncidentRecord{ID: 1, RequestID: "req-9", UserID: "u7", At: at, Surface: "billing"}
	candidates := []store.IncidentRecord{
		{ID: 2, RequestID: "req-9", At: at.Add(3 * time.Minute), Surface: "portal"},
		{ID: 3, UserID: "u7", At: at.Add(-4 * time.Minute), Surface: "checkout"},
		{ID: 4, UserID: "u7", At: at.Add(30 * time.Minute), Surface: "checkout"},
		{ID: 5, RequestID: "req-other", UserID: "someone-else", At: at, Surface: "portal"},
		{ID: 1, RequestID: "req-9", At: at, Surface: "billing"},
	}
	got := ops.Correlate(target, candidates, 10*time.Minute)
	if len(got) != 2 {
		t.Fatalf("correlated %d records, want 2: %+v", len(got), got)
	}
	for _, g := range got {
		if g.ID == 1 {
			t.Fatalf("target correlated with itself")
		}
		if g.ID == 4 {
			t.Fatalf("record outside window correlated")
		}
	}
}

func TestCorrelateMatchesContextFlow(t *testing.T) {
	at := time.Now().UTC()
	target := store.IncidentRecord{ID: 1, Flow: "resume-upload", At: at}
	cand := store.IncidentRecord{ID: 2, Context: map[string]string{"flow": "Resume-Upload"}, At: at.Add(time.Minute)}
	got := ops.Correlate(target, []store.IncidentRecord{cand}, 10*time.Minute)
	if len(got) != 1 {
		t.Fatalf("flow via context did not match")
	}
}

func TestBuildWebhookReceiptCountsDuplicates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(eventID string, age time.Duration) store.IncidentRecord {
		return store.IncidentRecord{
			At:        now.Add(-age),
			Surface:   "billing",
			EventName: "webhook_failed",
			Context:   map[string]string{"event_id": eventID},
		}
	}
	records := []store.IncidentRecord{
		mk("evt-1", time.Hour),
		mk("evt-1", 2*time.Hour),
		mk("evt-1", 3*time.Hour),
		mk("evt-2", time.Hour),
		mk("evt-3", 48*time.Hour), // outside the window
	}
	receipt := ops.BuildWebhookReceipt(records, now, 24*time.Hour)
	if receipt.Total != 4 {
		t.Fatalf("total = %d, want 4", receipt.Total)
	}
	if receipt.DistinctCount != 2 {
		t.Fatalf("distinct = %d, want 2", receipt.DistinctCount)
	}
	if receipt.DupCount != 2 {
		t.Fatalf("dup = %d, want 2", receipt.DupCount)
	}
	if len(receipt.TopDuplicates) != 1 || receipt.TopDuplicates[0].Count != 3 {
		t.Fatalf("top duplicates = %+v", receipt.TopDuplicates)
	}
	if len(receipt.TopDuplicates[0].EventHash) != 12 {
		t.Fatalf("event hash not truncated: %q", receipt.TopDuplicates[0].EventHash)
	}
}

func TestBuildWebhookReceiptIgnoresOtherSurfaces(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []store.IncidentRecord{
		{RequestID: "req-9", Surface: "portal", Code: "portal_500", At: now.Add(-time.Hour)},
		{RequestID: "req-9", Surface: "billing", EventName: "webhook_failed", At: now.Add(-time.Hour)},
	}
	// The portal error shares req-9 but is not a delivery, so it must not
	// register as a duplicate of the webhook failure.
	receipt := ops.BuildWebhookReceipt(records, now, 24*time.Hour)
	if receipt.Total != 1 {
		t.Fatalf("total = %d, want 1", receipt.Total)
	}
	if receipt.DistinctCount != 1 || receipt.DupCount != 0 {
		t.Fatalf("distinct = %d dup = %d, want 1 and 0", receipt.DistinctCount, receipt.DupCount)
	}
}
