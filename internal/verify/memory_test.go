package verify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryLedgerConditionalWrites(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryLedger()
	at := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)

	rec := Record{ID: "1", Token: "S1", Meal: Lunch, Date: "2026-03-09", Status: StatusVerified, AttemptedAt: at}
	if err := ledger.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A second insert for the same key loses.
	dup := rec
	dup.ID = "2"
	if err := ledger.Create(ctx, dup); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("duplicate Create = %v, want ErrDuplicateKey", err)
	}

	// An update whose snapshot is stale loses.
	stale := rec
	stale.AttemptedAt = at.Add(time.Minute)
	next := rec
	next.Status = StatusFailed
	if err := ledger.Update(ctx, stale, next); !errors.Is(err, ErrStaleRecord) {
		t.Fatalf("stale Update = %v, want ErrStaleRecord", err)
	}

	// A matching snapshot wins.
	if err := ledger.Update(ctx, rec, next); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := ledger.Find(ctx, "S1", Lunch, "2026-03-09")
	if err != nil || got == nil {
		t.Fatalf("Find = %v, %v", got, err)
	}
	if got.Status != StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
}

func TestMemoryLedgerFindMissing(t *testing.T) {
	got, err := NewMemoryLedger().Find(context.Background(), "S1", Lunch, "2026-03-09")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got != nil {
		t.Fatalf("Find = %+v, want nil", got)
	}
}
