package ops_test

import (
	"testing"
	"time"

	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/store"
)

func TestNormalizeCoercesUnknownSurface(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec, ok := ops.Normalize(ops.RawEvent{Surface: "Mainframe", Code: "boom"}, now)
	if !ok {
		t.Fatalf("expected record")
	}
	if rec.Surface != store.SurfaceOther {
		t.Fatalf("surface = %q, want %q", rec.Surface, store.SurfaceOther)
	}
	if !rec.At.Equal(now) {
		t.Fatalf("at = %v, want %v", rec.At, now)
	}
}

func TestNormalizeDropsEmptyEvent(t *testing.T) {
	if _, ok := ops.Normalize(ops.RawEvent{}, time.Now()); ok {
		t.Fatalf("empty event should be dropped")
	}
}

func TestNormalizeRejectsBadTimestamp(t *testing.T) {
	raw := ops.RawEvent{Surface: "portal", Code: "err", At: "yesterday at noon"}
	if _, ok := ops.Normalize(raw, time.Now()); ok {
		t.Fatalf("unparseable timestamp should be dropped")
	}
}

func TestNormalizeBatchCountsDrops(t *testing.T) {
	now := time.Now().UTC()
	raws := []ops.RawEvent{
		{Surface: "portal", Code: "portal_500"},
		{},
		{Surface: "checkout", Message: "card declined"},
		{Surface: "billing", At: "not-a-time", Code: "x"},
	}
	records, dropped := ops.NormalizeBatch(raws, now)
	if len(records) != 2 || dropped != 2 {
		t.Fatalf("got %d records, %d dropped; want 2 and 2", len(records), dropped)
	}
}

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Jane.Doe@Mail.Example.COM", "j***@m***.e***.com"},
		{"a@b.co", "a***@b***.co"},
		{"no-at-sign", "***"},
		{"@leading", "***"},
		{"trailing@", "***"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ops.MaskEmail(tc.in); got != tc.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskEmailIdempotent(t *testing.T) {
	masked := ops.MaskEmail("someone@example.org")
	if again := ops.MaskEmail(masked); again != masked {
		t.Fatalf("re-masking changed value: %q -> %q", masked, again)
	}
}

func TestMaskActor(t *testing.T) {
	if got := ops.MaskActor("operator"); got != "op***" {
		t.Fatalf("MaskActor(operator) = %q", got)
	}
	if got := ops.MaskActor("ab"); got != "ab***" {
		t.Fatalf("MaskActor(ab) = %q", got)
	}
	if got := ops.MaskActor("ops@example.com"); got != "o***@e***.com" {
		t.Fatalf("MaskActor(email) = %q", got)
	}
}

func TestNormalizeMasksEmailInContext(t *testing.T) {
	rec, ok := ops.Normalize(ops.RawEvent{
		Surface: "portal",
		Code:    "portal_500",
		Context: map[string]string{"contact_email": "user@example.com", "note": "kept@verbatim"},
	}, time.Now())
	if !ok {
		t.Fatalf("expected record")
	}
	if rec.Context["contact_email"] != "u***@e***.com" {
		t.Fatalf("context email not masked: %q", rec.Context["contact_email"])
	}
	if rec.Context["note"] != "kept@verbatim" {
		t.Fatalf("non-email context value rewritten: %q", rec.Context["note"])
	}
}
