package store

import (
	"context"
	"fmt"
	"time"

	"udpadijaya/posagent/internal/domain"
)

var ErrNotFound = fmt.Errorf("submission %w", domain.ErrNotFound)

// Journal records submissions as they progress. It is an audit trail only:
// the submitter never reads it back to decide what to post.
type Journal interface {
	Begin(ctx context.Context, sub domain.Submission) error
	Advance(ctx context.Context, id string, cursor int) error
	SetParent(ctx context.Context, id string, parentID int64) error
	Finish(ctx context.Context, id string, status string, errMsg string, at time.Time) error
	Get(ctx context.Context, id string) (*domain.Submission, error)
	List(ctx context.Context, terminalID string, limit int) ([]domain.Submission, error)
	ListIncomplete(ctx context.Context, terminalID string) ([]domain.Submission, error)
}

const DefaultListLimit = 50

func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}
