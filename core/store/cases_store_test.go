package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"huntdesk-ops/core/store"
)

func TestGetOrCreateCaseIsLazy(t *testing.T) {
	db := newTestDB(t)
	cases := store.NewCasesStore(db)
	ctx := context.Background()

	got, err := cases.GetCase(ctx, "req-1")
	if err != nil || got != nil {
		t.Fatalf("case before creation: %v %v", got, err)
	}
	deadline := time.Now().UTC().Add(24 * time.Hour)
	created, err := cases.GetOrCreateCase(ctx, "req-1", "p2", &deadline)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != store.CaseStatusOpen || created.Priority != "p2" {
		t.Fatalf("created = %+v", created)
	}
	if created.SLADeadline == nil {
		t.Fatalf("sla deadline not stored")
	}

	// A second materialization keeps the original row.
	again, err := cases.GetOrCreateCase(ctx, "req-1", "p4", nil)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Priority != "p2" {
		t.Fatalf("priority rewritten to %q", again.Priority)
	}
}

func TestClaimCaseOneWinner(t *testing.T) {
	db := newTestDB(t)
	cases := store.NewCasesStore(db)
	ctx := context.Background()
	now := time.Now().UTC()
	if _, err := cases.GetOrCreateCase(ctx, "req-1", "p3", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := cases.ClaimCase(ctx, "req-1", 7, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	// Re-claim by the same operator is benign.
	if err := cases.ClaimCase(ctx, "req-1", 7, now.Add(time.Minute)); err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	// Another operator loses.
	if err := cases.ClaimCase(ctx, "req-1", 8, now.Add(time.Minute)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("competing claim: %v, want conflict", err)
	}

	if err := cases.ReleaseCase(ctx, "req-1", now.Add(2*time.Minute)); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := cases.ClaimCase(ctx, "req-1", 8, now.Add(3*time.Minute)); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestClosedCaseRejectsWrites(t *testing.T) {
	db := newTestDB(t)
	cases := store.NewCasesStore(db)
	ctx := context.Background()
	now := time.Now().UTC()
	if _, err := cases.GetOrCreateCase(ctx, "req-1", "p3", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := cases.SetCaseStatus(ctx, "req-1", store.CaseStatusClosed, now); err != nil {
		t.Fatalf("close: %v", err)
	}
	got, _ := cases.GetCase(ctx, "req-1")
	if got.ClosedAt == nil {
		t.Fatalf("closed_at not stamped")
	}
	if err := cases.SetCaseStatus(ctx, "req-1", store.CaseStatusOpen, now); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("reopen: %v, want conflict", err)
	}
	if err := cases.AssignCase(ctx, "req-1", 7, now); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("assign closed: %v, want conflict", err)
	}
}

func TestResolvedStampsTimestamp(t *testing.T) {
	db := newTestDB(t)
	cases := store.NewCasesStore(db)
	ctx := context.Background()
	if _, err := cases.GetOrCreateCase(ctx, "req-1", "p3", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := cases.SetCaseStatus(ctx, "req-1", store.CaseStatusResolved, time.Now().UTC()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got, _ := cases.GetCase(ctx, "req-1")
	if got.ResolvedAt == nil {
		t.Fatalf("resolved_at not stamped")
	}
}

func TestActiveCaseCountsExcludeClosed(t *testing.T) {
	db := newTestDB(t)
	cases := store.NewCasesStore(db)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"req-1", "req-2", "req-3"} {
		if _, err := cases.GetOrCreateCase(ctx, id, "p3", nil); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
		if err := cases.AssignCase(ctx, id, 7, now); err != nil {
			t.Fatalf("assign %s: %v", id, err)
		}
	}
	if err := cases.SetCaseStatus(ctx, "req-3", store.CaseStatusClosed, now); err != nil {
		t.Fatalf("close: %v", err)
	}
	counts, err := cases.ActiveCaseCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[7] != 2 {
		t.Fatalf("counts = %+v, want 2 for user 7", counts)
	}
}

func TestUpsertQueueSourceMerges(t *testing.T) {
	db := newTestDB(t)
	cases := store.NewCasesStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	if _, err := cases.GetOrCreateCase(ctx, "req-1", "p3", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	first := &store.CaseReasonSource{
		RequestID: "req-1", Code: "portal_error", PrimarySource: "portal",
		Count: 2, Detail: "old detail", LastSeenAt: now.Add(-time.Hour),
	}
	second := &store.CaseReasonSource{
		RequestID: "req-1", Code: "portal_error", PrimarySource: "portal",
		Count: 1, Detail: "new detail", LastSeenAt: now,
	}
	other := &store.CaseReasonSource{
		RequestID: "req-1", Code: "rate_limited", PrimarySource: "limiter",
		Count: 1, LastSeenAt: now,
	}
	for _, src := range []*store.CaseReasonSource{first, second, other} {
		if err := cases.UpsertQueueSource(ctx, src); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	sources, err := cases.ListQueueSources(ctx, "req-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("sources = %+v", sources)
	}
	for _, src := range sources {
		if src.Code == "portal_error" {
			if src.Count != 3 {
				t.Fatalf("count = %d, want 3", src.Count)
			}
			if src.Detail != "new detail" {
				t.Fatalf("detail = %q, want freshest", src.Detail)
			}
		}
	}
}

func TestCaseNotesAndAudit(t *testing.T) {
	db := newTestDB(t)
	cases := store.NewCasesStore(db)
	ctx := context.Background()
	if _, err := cases.GetOrCreateCase(ctx, "req-1", "p3", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cases.AddCaseNote(ctx, &store.CaseNote{RequestID: "req-1", Body: "checked stripe dashboard", CreatedBy: "op***"}); err != nil {
		t.Fatalf("note: %v", err)
	}
	if _, err := cases.AddCaseAudit(ctx, &store.CaseAuditEntry{RequestID: "req-1", Action: "claim", Actor: "op***"}); err != nil {
		t.Fatalf("audit: %v", err)
	}
	notes, err := cases.ListCaseNotes(ctx, "req-1")
	if err != nil || len(notes) != 1 {
		t.Fatalf("notes = %+v, err %v", notes, err)
	}
	entries, err := cases.ListCaseAudit(ctx, "req-1", 10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("audit = %+v, err %v", entries, err)
	}
}
