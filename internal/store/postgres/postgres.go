package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/store"
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS pos_submissions (
	id          TEXT PRIMARY KEY,
	terminal_id TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL,
	vendor      TEXT NOT NULL DEFAULT '',
	parent_id   BIGINT NOT NULL DEFAULT 0,
	lines       JSONB NOT NULL DEFAULT '[]'::jsonb,
	line_cursor INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
)`, `
CREATE INDEX IF NOT EXISTS pos_submissions_terminal_started_idx
	ON pos_submissions (terminal_id, started_at DESC)`,
}

const selectColumns = `
	SELECT id, terminal_id, kind, vendor, parent_id, lines, line_cursor, status, error, started_at, finished_at
	FROM pos_submissions
`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the journal table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure submission schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Begin(ctx context.Context, sub domain.Submission) error {
	if sub.ID == "" {
		return domain.Validationf("submission id is required")
	}
	if sub.Status == "" {
		sub.Status = domain.SubmissionStatusPending
	}
	lines, err := json.Marshal(nonNilLines(sub.Lines))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pos_submissions (id, terminal_id, kind, vendor, parent_id, lines, line_cursor, status, error, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sub.ID, sub.TerminalID, sub.Kind, sub.Vendor, sub.ParentID, string(lines), sub.Cursor, sub.Status, sub.Error, sub.StartedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Validationf("submission %s already recorded", sub.ID)
		}
		return err
	}
	return nil
}

func (s *Store) Advance(ctx context.Context, id string, cursor int) error {
	return s.exec(ctx, `UPDATE pos_submissions SET line_cursor = $2 WHERE id = $1`, id, cursor)
}

func (s *Store) SetParent(ctx context.Context, id string, parentID int64) error {
	return s.exec(ctx, `UPDATE pos_submissions SET parent_id = $2 WHERE id = $1`, id, parentID)
}

func (s *Store) Finish(ctx context.Context, id string, status string, errMsg string, at time.Time) error {
	return s.exec(ctx, `
		UPDATE pos_submissions
		SET status = $2, error = $3, finished_at = $4
		WHERE id = $1
	`, id, status, errMsg, at.UTC())
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Submission, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (s *Store) List(ctx context.Context, terminalID string, limit int) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE ($1 = '' OR terminal_id = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`, terminalID, store.NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) ListIncomplete(ctx context.Context, terminalID string) ([]domain.Submission, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE ($1 = '' OR terminal_id = $1) AND status = $2
		ORDER BY started_at DESC
	`, terminalID, domain.SubmissionStatusPending)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*domain.Submission, error) {
	var (
		sub        domain.Submission
		lines      []byte
		finishedAt sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.TerminalID, &sub.Kind, &sub.Vendor, &sub.ParentID, &lines, &sub.Cursor, &sub.Status, &sub.Error, &sub.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(lines, &sub.Lines); err != nil {
		return nil, fmt.Errorf("decode lines of submission %s: %w", sub.ID, err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		sub.FinishedAt = &t
	}
	sub.StartedAt = sub.StartedAt.UTC()
	return &sub, nil
}

func collect(rows *sql.Rows) ([]domain.Submission, error) {
	defer rows.Close()

	out := make([]domain.Submission, 0, 16)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNilLines(lines []domain.LineItem) []domain.LineItem {
	if lines == nil {
		return []domain.LineItem{}
	}
	return lines
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
