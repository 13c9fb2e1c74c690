package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"huntdesk-ops/core/store"
)

func ownership(key, window string, by int64, now time.Time, ttl time.Duration) *store.AlertOwnership {
	return &store.AlertOwnership{
		AlertKey:    key,
		WindowLabel: window,
		ClaimedBy:   by,
		ClaimedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func TestClaimOwnershipConflicts(t *testing.T) {
	db := newTestDB(t)
	alerts := store.NewAlertsStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := alerts.ClaimOwnership(ctx, ownership("webhook_red", "w1", 7, now, 30*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Same actor refreshes.
	if err := alerts.ClaimOwnership(ctx, ownership("webhook_red", "w1", 7, now.Add(time.Minute), 30*time.Minute)); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// Different actor while the claim is live conflicts.
	if err := alerts.ClaimOwnership(ctx, ownership("webhook_red", "w1", 8, now.Add(time.Minute), 30*time.Minute)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("competing claim: %v, want conflict", err)
	}
	// The same key in another window is independent.
	if err := alerts.ClaimOwnership(ctx, ownership("webhook_red", "w2", 8, now, 30*time.Minute)); err != nil {
		t.Fatalf("other window: %v", err)
	}
}

func TestClaimOwnershipExpiresOver(t *testing.T) {
	db := newTestDB(t)
	alerts := store.NewAlertsStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := alerts.ClaimOwnership(ctx, ownership("k", "w", 7, now.Add(-2*time.Hour), 30*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	got, err := alerts.GetOwnership(ctx, "k", "w", now)
	if err != nil || got != nil {
		t.Fatalf("expired claim visible: %+v %v", got, err)
	}
	// An expired slot is free for anyone.
	if err := alerts.ClaimOwnership(ctx, ownership("k", "w", 8, now, 30*time.Minute)); err != nil {
		t.Fatalf("claim over expired: %v", err)
	}
	got, err = alerts.GetOwnership(ctx, "k", "w", now)
	if err != nil || got == nil || got.ClaimedBy != 8 {
		t.Fatalf("ownership = %+v, err %v", got, err)
	}
}

func TestReleaseOwnership(t *testing.T) {
	db := newTestDB(t)
	alerts := store.NewAlertsStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := alerts.ClaimOwnership(ctx, ownership("k", "w", 7, now, time.Hour)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := alerts.ReleaseOwnership(ctx, "k", "w"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := alerts.ClaimOwnership(ctx, ownership("k", "w", 8, now, time.Hour)); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestSnoozeOverwriteAndExpiry(t *testing.T) {
	db := newTestDB(t)
	alerts := store.NewAlertsStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := alerts.Snooze(ctx, &store.AlertSnooze{AlertKey: "k", WindowLabel: "w", UntilAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("snooze: %v", err)
	}
	if err := alerts.Snooze(ctx, &store.AlertSnooze{AlertKey: "k", WindowLabel: "w", UntilAt: now.Add(2 * time.Hour)}); err != nil {
		t.Fatalf("re-snooze: %v", err)
	}
	list, err := alerts.ListSnoozes(ctx, now)
	if err != nil || len(list) != 1 {
		t.Fatalf("snoozes = %+v, err %v", list, err)
	}
	if !list[0].UntilAt.After(now.Add(90 * time.Minute)) {
		t.Fatalf("until not overwritten: %v", list[0].UntilAt)
	}
	// Past the snooze horizon nothing is listed.
	list, err = alerts.ListSnoozes(ctx, now.Add(3*time.Hour))
	if err != nil || len(list) != 0 {
		t.Fatalf("expired snoozes = %+v, err %v", list, err)
	}
	if err := alerts.Unsnooze(ctx, "k", "w"); err != nil {
		t.Fatalf("unsnooze: %v", err)
	}
	list, _ = alerts.ListSnoozes(ctx, now)
	if len(list) != 0 {
		t.Fatalf("snooze survives unsnooze: %+v", list)
	}
}
