package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/store/storetest"
)

func TestJournal(t *testing.T) {
	storetest.RunJournal(t, New())
}

func TestBeginRejectsDuplicateID(t *testing.T) {
	s := New()
	sub := domain.Submission{ID: "sub-1", Kind: domain.SubmissionKindSale, StartedAt: time.Now()}
	if err := s.Begin(context.Background(), sub); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Begin(context.Background(), sub); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate begin to fail validation, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	sub := domain.Submission{
		ID:    "sub-1",
		Lines: []domain.LineItem{{UnitID: 1, Qty: 1}},
	}
	if err := s.Begin(context.Background(), sub); err != nil {
		t.Fatalf("begin: %v", err)
	}

	got, err := s.Get(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Lines[0].Qty = 99

	again, _ := s.Get(context.Background(), "sub-1")
	if again.Lines[0].Qty != 1 {
		t.Fatalf("expected journal to be isolated from caller mutation, got qty %d", again.Lines[0].Qty)
	}
	if again.Status != domain.SubmissionStatusPending {
		t.Fatalf("expected default pending status, got %q", again.Status)
	}
}

func TestListRespectsLimitAndTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, terminal := range []string{"t1", "t2", "t1", "t1"} {
		sub := domain.Submission{ID: "sub-" + string(rune('a'+i)), TerminalID: terminal}
		if err := s.Begin(ctx, sub); err != nil {
			t.Fatalf("begin: %v", err)
		}
	}

	got, err := s.List(ctx, "t1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "sub-d" || got[1].ID != "sub-c" {
		t.Fatalf("unexpected list: %+v", got)
	}

	all, _ := s.List(ctx, "", 0)
	if len(all) != 4 {
		t.Fatalf("expected all 4 submissions, got %d", len(all))
	}
}
