// Package storetest holds the behaviour every store.Journal must share. The
// memory, postgres and mongo journals all run it.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/store"
	"udpadijaya/posagent/internal/xid"
)

func RunJournal(t *testing.T, journal store.Journal) {
	t.Helper()
	ctx := context.Background()
	terminal := xid.New("terminal")

	sale := domain.Submission{
		ID:         xid.New("sub"),
		TerminalID: terminal,
		Kind:       domain.SubmissionKindSale,
		Status:     domain.SubmissionStatusPending,
		StartedAt:  time.Now().UTC().Truncate(time.Millisecond),
		Lines: []domain.LineItem{
			{UnitID: 1, DisplayName: "Indomie Goreng", UnitPrice: 3500, AvailableStock: 10, Qty: 2},
			{UnitID: 2, DisplayName: "Teh Botol", UnitPrice: 5000, AvailableStock: 4, Qty: 1},
		},
	}
	if err := journal.Begin(ctx, sale); err != nil {
		t.Fatalf("begin sale: %v", err)
	}
	if err := journal.Advance(ctx, sale.ID, 1); err != nil {
		t.Fatalf("advance sale: %v", err)
	}

	got, err := journal.Get(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if got.Cursor != 1 || got.Status != domain.SubmissionStatusPending {
		t.Fatalf("expected pending submission at cursor 1, got %+v", got)
	}
	if len(got.Lines) != 2 || got.Lines[1].UnitID != 2 || got.Lines[0].Qty != 2 {
		t.Fatalf("lines did not round-trip: %+v", got.Lines)
	}

	purchase := domain.Submission{
		ID:         xid.New("sub"),
		TerminalID: terminal,
		Kind:       domain.SubmissionKindPurchase,
		Vendor:     "PT Sumber Rejeki",
		Status:     domain.SubmissionStatusPending,
		StartedAt:  sale.StartedAt.Add(time.Second),
		Lines:      []domain.LineItem{{UnitID: 3, UnitPrice: 800, Qty: 24}},
	}
	if err := journal.Begin(ctx, purchase); err != nil {
		t.Fatalf("begin purchase: %v", err)
	}
	if err := journal.SetParent(ctx, purchase.ID, 77); err != nil {
		t.Fatalf("set parent: %v", err)
	}
	if err := journal.Advance(ctx, purchase.ID, 1); err != nil {
		t.Fatalf("advance purchase: %v", err)
	}
	finishedAt := time.Now().UTC()
	if err := journal.Finish(ctx, purchase.ID, domain.SubmissionStatusCompleted, "", finishedAt); err != nil {
		t.Fatalf("finish purchase: %v", err)
	}

	got, err = journal.Get(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("get purchase: %v", err)
	}
	if got.ParentID != 77 || got.Status != domain.SubmissionStatusCompleted || got.FinishedAt == nil {
		t.Fatalf("expected completed purchase with parent 77, got %+v", got)
	}
	if got.Vendor != "PT Sumber Rejeki" {
		t.Fatalf("expected vendor to round-trip, got %q", got.Vendor)
	}

	incomplete, err := journal.ListIncomplete(ctx, terminal)
	if err != nil {
		t.Fatalf("list incomplete: %v", err)
	}
	if len(incomplete) != 1 || incomplete[0].ID != sale.ID {
		t.Fatalf("expected only the sale to be incomplete, got %+v", incomplete)
	}

	all, err := journal.List(ctx, terminal, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != purchase.ID {
		t.Fatalf("expected newest submission first, got %+v", all)
	}

	if err := journal.Finish(ctx, sale.ID, domain.SubmissionStatusFailed, "POST sales-order-detail: 500 boom", time.Now()); err != nil {
		t.Fatalf("finish sale: %v", err)
	}
	got, err = journal.Get(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get failed sale: %v", err)
	}
	if got.Status != domain.SubmissionStatusFailed || got.Error == "" || got.Cursor != 1 {
		t.Fatalf("expected failed sale to keep cursor and error, got %+v", got)
	}

	if _, err := journal.Get(ctx, "sub-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := journal.Advance(ctx, "sub-missing", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected advance on missing submission to fail with not found, got %v", err)
	}
}
