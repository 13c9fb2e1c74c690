package ops_test

import (
	"testing"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/store"
)

func scorerConfig() config.HealthConfig {
	return config.HealthConfig{
		WindowMinutes:       15,
		TrendHours:          2,
		WebhookFailureAmber: 1,
		WebhookFailureRed:   5,
		WebhookErrorAmber:   1,
		WebhookErrorRed:     3,
		PortalErrorAmber:    2,
		PortalErrorRed:      5,
		CheckoutErrorAmber:  1,
		CheckoutErrorRed:    4,
		RateLimitAmber:      3,
		RateLimitRed:        10,
	}
}

func portalRec(at time.Time) store.IncidentRecord {
	return store.IncidentRecord{Surface: store.SurfacePortal, Code: "portal_500", At: at}
}

func TestSnapshotWorstSignalWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Zero webhook failures but portal errors past the red cut-off.
	var recent []store.IncidentRecord
	for i := 0; i < 6; i++ {
		recent = append(recent, portalRec(now.Add(-time.Duration(i+1)*time.Minute)))
	}
	snap := ops.NewScorer(scorerConfig()).Snapshot(recent, now)
	if snap.Status != ops.StateRed {
		t.Fatalf("status = %q, want red", snap.Status)
	}
	for _, sig := range snap.Signals {
		switch sig.Signal {
		case ops.SignalPortalError:
			if sig.State != ops.StateRed || sig.Count != 6 {
				t.Fatalf("portal signal = %+v", sig)
			}
		case ops.SignalWebhookFailure:
			if sig.State != ops.StateGreen {
				t.Fatalf("webhook failures should stay green: %+v", sig)
			}
		}
	}
}

func TestSnapshotQuietWindowIsGreen(t *testing.T) {
	now := time.Now().UTC()
	snap := ops.NewScorer(scorerConfig()).Snapshot(nil, now)
	if snap.Status != ops.StateGreen {
		t.Fatalf("status = %q, want green", snap.Status)
	}
	if len(snap.Signals) != 5 {
		t.Fatalf("got %d signals, want 5", len(snap.Signals))
	}
}

func TestSnapshotAmberBetweenCutoffs(t *testing.T) {
	now := time.Now().UTC()
	recent := []store.IncidentRecord{
		portalRec(now.Add(-time.Minute)),
		portalRec(now.Add(-2 * time.Minute)),
	}
	snap := ops.NewScorer(scorerConfig()).Snapshot(recent, now)
	if snap.Status != ops.StateAmber {
		t.Fatalf("status = %q, want amber", snap.Status)
	}
}

func TestClassifySignal(t *testing.T) {
	cases := []struct {
		rec  store.IncidentRecord
		want string
	}{
		{store.IncidentRecord{EventName: "webhook_failed"}, ops.SignalWebhookFailure},
		{store.IncidentRecord{Code: "webhook_timeout"}, ops.SignalWebhookError},
		{store.IncidentRecord{Code: "rate_limited"}, ops.SignalRateLimit},
		{store.IncidentRecord{Surface: store.SurfacePortal}, ops.SignalPortalError},
		{store.IncidentRecord{Surface: store.SurfaceCheckout, Code: "card_declined"}, ops.SignalCheckoutError},
		{store.IncidentRecord{Surface: store.SurfaceOutreach}, ""},
	}
	for _, tc := range cases {
		if got := ops.ClassifySignal(tc.rec); got != tc.want {
			t.Errorf("ClassifySignal(%+v) = %q, want %q", tc.rec, got, tc.want)
		}
	}
}

func TestTrendDirectionWorsening(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Quiet first hour, red second hour across a 2h trend span.
	var recent []store.IncidentRecord
	for bucket := 0; bucket < 4; bucket++ {
		start := now.Add(-2 * time.Hour).Add(time.Duration(bucket) * 15 * time.Minute).Add(time.Hour)
		for i := 0; i < 6; i++ {
			recent = append(recent, portalRec(start.Add(time.Duration(i)*time.Minute)))
		}
	}
	snap := ops.NewScorer(scorerConfig()).Snapshot(recent, now)
	if snap.Trend.Direction != ops.TrendWorsening {
		t.Fatalf("direction = %q, want worsening", snap.Trend.Direction)
	}
	if len(snap.Trend.Buckets) != 8 {
		t.Fatalf("got %d trend buckets, want 8", len(snap.Trend.Buckets))
	}
}

func TestSnapshotTopRepeats(t *testing.T) {
	now := time.Now().UTC()
	recent := []store.IncidentRecord{
		{RequestID: "req-a", Surface: store.SurfacePortal, Code: "portal_500", At: now.Add(-time.Minute)},
		{RequestID: "req-a", Surface: store.SurfacePortal, Code: "portal_500", At: now.Add(-2 * time.Minute)},
		{RequestID: "req-b", Surface: store.SurfacePortal, Code: "portal_404", At: now.Add(-3 * time.Minute)},
	}
	snap := ops.NewScorer(scorerConfig()).Snapshot(recent, now)
	if len(snap.TopRepeats.RequestIDs) == 0 || snap.TopRepeats.RequestIDs[0].Key != "req-a" || snap.TopRepeats.RequestIDs[0].Count != 2 {
		t.Fatalf("top request ids = %+v", snap.TopRepeats.RequestIDs)
	}
	if len(snap.TopRepeats.Codes) == 0 || snap.TopRepeats.Codes[0].Key != "portal_500" {
		t.Fatalf("top codes = %+v", snap.TopRepeats.Codes)
	}
}
