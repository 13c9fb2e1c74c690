package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"huntdesk-ops/core/store"
)

func TestOutcomeDefaultsToUnknown(t *testing.T) {
	db := newTestDB(t)
	outcomes := store.NewOutcomesStore(db)
	ctx := context.Background()

	id, err := outcomes.CreateOutcome(ctx, &store.ResolutionOutcome{
		RequestID:   "req-1",
		Code:        "retried_webhook",
		ActorMasked: "op***",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := outcomes.GetOutcome(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.EffectivenessState != store.EffectivenessUnknown {
		t.Fatalf("state = %q, want unknown", got.EffectivenessState)
	}
}

func TestRecordReviewOnce(t *testing.T) {
	db := newTestDB(t)
	outcomes := store.NewOutcomesStore(db)
	ctx := context.Background()

	id, err := outcomes.CreateOutcome(ctx, &store.ResolutionOutcome{Code: "refund"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := outcomes.RecordReview(ctx, id, store.EffectivenessFail, "provider outage", "", "manual"); err != nil {
		t.Fatalf("review: %v", err)
	}
	if err := outcomes.RecordReview(ctx, id, store.EffectivenessSuccess, "", "", "manual"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second review: %v, want conflict", err)
	}
	got, _ := outcomes.GetOutcome(ctx, id)
	if got.EffectivenessState != store.EffectivenessFail || got.EffectivenessReason != "provider outage" {
		t.Fatalf("outcome = %+v", got)
	}
}

func TestRecordReviewRejectsUnknownState(t *testing.T) {
	db := newTestDB(t)
	outcomes := store.NewOutcomesStore(db)
	ctx := context.Background()
	id, _ := outcomes.CreateOutcome(ctx, &store.ResolutionOutcome{Code: "refund"})
	if err := outcomes.RecordReview(ctx, id, "maybe", "", "", ""); err == nil {
		t.Fatalf("invalid state accepted")
	}
}

func TestDeferReviewOnlyWhileUnknown(t *testing.T) {
	db := newTestDB(t)
	outcomes := store.NewOutcomesStore(db)
	ctx := context.Background()
	until := time.Now().UTC().Add(4 * time.Hour)

	id, _ := outcomes.CreateOutcome(ctx, &store.ResolutionOutcome{Code: "refund"})
	if err := outcomes.DeferReview(ctx, id, until); err != nil {
		t.Fatalf("defer: %v", err)
	}
	got, _ := outcomes.GetOutcome(ctx, id)
	if got.EffectivenessDeferredUntil == nil {
		t.Fatalf("deferral not stored")
	}
	if err := outcomes.RecordReview(ctx, id, store.EffectivenessSuccess, "", "", "manual"); err != nil {
		t.Fatalf("review: %v", err)
	}
	// Review clears the deferral and locks the row.
	got, _ = outcomes.GetOutcome(ctx, id)
	if got.EffectivenessDeferredUntil != nil {
		t.Fatalf("deferral survived review: %+v", got)
	}
	if err := outcomes.DeferReview(ctx, id, until); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("defer after review: %v, want conflict", err)
	}
}

func TestListOutcomesFilterByState(t *testing.T) {
	db := newTestDB(t)
	outcomes := store.NewOutcomesStore(db)
	ctx := context.Background()

	idA, _ := outcomes.CreateOutcome(ctx, &store.ResolutionOutcome{Code: "refund", RequestID: "req-a"})
	if _, err := outcomes.CreateOutcome(ctx, &store.ResolutionOutcome{Code: "retried_webhook", RequestID: "req-b"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := outcomes.RecordReview(ctx, idA, store.EffectivenessFail, "still broken", "", "manual"); err != nil {
		t.Fatalf("review: %v", err)
	}
	failed, err := outcomes.ListOutcomes(ctx, store.OutcomeFilter{State: store.EffectivenessFail})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(failed) != 1 || failed[0].RequestID != "req-a" {
		t.Fatalf("failed = %+v", failed)
	}
	all, err := outcomes.ListOutcomes(ctx, store.OutcomeFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("all = %+v, err %v", all, err)
	}
}
