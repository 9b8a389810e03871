package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/store"
)

// Store keeps the submission journal in process memory. It is the default
// when neither DATABASE_URL nor MONGO_URI is configured.
type Store struct {
	mu          sync.RWMutex
	submissions map[string]*domain.Submission
	order       []string
}

func New() *Store {
	return &Store{submissions: map[string]*domain.Submission{}}
}

func (s *Store) Begin(_ context.Context, sub domain.Submission) error {
	if strings.TrimSpace(sub.ID) == "" {
		return domain.Validationf("submission id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.submissions[sub.ID]; exists {
		return domain.Validationf("submission %s already recorded", sub.ID)
	}
	if sub.Status == "" {
		sub.Status = domain.SubmissionStatusPending
	}
	sub.Lines = slices.Clone(sub.Lines)
	s.submissions[sub.ID] = &sub
	s.order = append(s.order, sub.ID)
	return nil
}

func (s *Store) Advance(_ context.Context, id string, cursor int) error {
	return s.update(id, func(sub *domain.Submission) {
		sub.Cursor = cursor
	})
}

func (s *Store) SetParent(_ context.Context, id string, parentID int64) error {
	return s.update(id, func(sub *domain.Submission) {
		sub.ParentID = parentID
	})
}

func (s *Store) Finish(_ context.Context, id string, status string, errMsg string, at time.Time) error {
	return s.update(id, func(sub *domain.Submission) {
		finished := at.UTC()
		sub.Status = status
		sub.Error = errMsg
		sub.FinishedAt = &finished
	})
}

func (s *Store) Get(_ context.Context, id string) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := copySubmission(sub)
	return &out, nil
}

func (s *Store) List(_ context.Context, terminalID string, limit int) ([]domain.Submission, error) {
	limit = store.NormalizeLimit(limit)
	return s.collect(terminalID, limit, func(*domain.Submission) bool { return true }), nil
}

func (s *Store) ListIncomplete(_ context.Context, terminalID string) ([]domain.Submission, error) {
	return s.collect(terminalID, 0, func(sub *domain.Submission) bool {
		return sub.Status == domain.SubmissionStatusPending
	}), nil
}

// collect walks newest first. limit 0 means no limit.
func (s *Store) collect(terminalID string, limit int, keep func(*domain.Submission) bool) []domain.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Submission, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		sub := s.submissions[s.order[i]]
		if terminalID != "" && sub.TerminalID != terminalID {
			continue
		}
		if !keep(sub) {
			continue
		}
		out = append(out, copySubmission(sub))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (s *Store) update(id string, apply func(*domain.Submission)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[id]
	if !ok {
		return store.ErrNotFound
	}
	apply(sub)
	return nil
}

func copySubmission(sub *domain.Submission) domain.Submission {
	out := *sub
	out.Lines = slices.Clone(sub.Lines)
	if sub.FinishedAt != nil {
		finished := *sub.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
