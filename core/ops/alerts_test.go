package ops_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/store"
)

func newAlertService(t *testing.T, cfg config.AlertsConfig) *ops.AlertService {
	t.Helper()
	return ops.NewAlertService(store.NewAlertsStore(newOpsDB(t)), cfg)
}

func TestAlertClaimLifecycle(t *testing.T) {
	svc := newAlertService(t, config.AlertsConfig{ClaimTTLMinutes: 30})
	ctx := context.Background()
	now := time.Now().UTC()

	own, err := svc.Claim(ctx, "webhook_red", "w1", 7, now)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !own.ExpiresAt.Equal(now.Add(30 * time.Minute)) {
		t.Fatalf("expires = %v", own.ExpiresAt)
	}
	if _, err := svc.Claim(ctx, "webhook_red", "w1", 8, now); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("competing claim: %v, want conflict", err)
	}
	if err := svc.Release(ctx, "webhook_red", "w1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := svc.Claim(ctx, "webhook_red", "w1", 8, now); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestAlertClaimRejectsEmptyKey(t *testing.T) {
	svc := newAlertService(t, config.AlertsConfig{})
	if _, err := svc.Claim(context.Background(), "  ", "w1", 7, time.Now()); err == nil {
		t.Fatalf("empty alert key claimed")
	}
}

func TestAlertOwnershipMap(t *testing.T) {
	svc := newAlertService(t, config.AlertsConfig{ClaimTTLMinutes: 30})
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := svc.Claim(ctx, "a", "w1", 7, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := svc.Claim(ctx, "a", "w2", 8, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	owned, err := svc.OwnershipMap(ctx, now)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("owned = %+v", owned)
	}
	if owned["a|w1"].ClaimedBy != 7 || owned["a|w2"].ClaimedBy != 8 {
		t.Fatalf("owned = %+v", owned)
	}
}

func TestAlertSnoozeDefaultAndCap(t *testing.T) {
	svc := newAlertService(t, config.AlertsConfig{MaxSnoozeMinutes: 120})
	ctx := context.Background()
	now := time.Now().UTC()

	sn, err := svc.Snooze(ctx, "k", "w", 0, now)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if !sn.UntilAt.Equal(now.Add(60 * time.Minute)) {
		t.Fatalf("default snooze until = %v", sn.UntilAt)
	}
	sn, err = svc.Snooze(ctx, "k", "w", 600, now)
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if !sn.UntilAt.Equal(now.Add(120 * time.Minute)) {
		t.Fatalf("capped snooze until = %v", sn.UntilAt)
	}
}

func TestAlertSnoozedQuery(t *testing.T) {
	svc := newAlertService(t, config.AlertsConfig{})
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := svc.Snooze(ctx, "k", "w", 30, now); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	snoozed, err := svc.Snoozed(ctx, "k", "w", now)
	if err != nil || !snoozed {
		t.Fatalf("snoozed = %v, err %v", snoozed, err)
	}
	snoozed, err = svc.Snoozed(ctx, "k", "w", now.Add(time.Hour))
	if err != nil || snoozed {
		t.Fatalf("snoozed after expiry = %v, err %v", snoozed, err)
	}
	if err := svc.Unsnooze(ctx, "k", "w"); err != nil {
		t.Fatalf("unsnooze: %v", err)
	}
	snoozed, _ = svc.Snoozed(ctx, "k", "w", now)
	if snoozed {
		t.Fatalf("snoozed after unsnooze")
	}
}
