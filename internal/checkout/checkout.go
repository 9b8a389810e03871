// Package checkout turns a cart into back-office records. A submission is a
// sequence of independent requests: one per line plus a finalize call, posted
// strictly in order. A failure stops the sequence and nothing already posted
// is undone.
package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/metrics"
	"udpadijaya/posagent/internal/remote"
	"udpadijaya/posagent/internal/store"
	"udpadijaya/posagent/internal/xid"
)

const (
	pathSalesDetail      = "sales-order-detail"
	pathSalesComplete    = "sales-order/complete"
	pathPurchaseOrder    = "purchase-order"
	pathPurchaseDetail   = "purchase-order-detail"
	pathPurchaseComplete = "purchase-order/complete"
)

// Cart is the part of cart.Cart a submission reads and clears.
type Cart interface {
	Kind() string
	Lines() []domain.LineItem
	Clear()
}

// UnitRefresher reloads the unit snapshot after stock changed server side.
type UnitRefresher interface {
	FetchAll(ctx context.Context) ([]domain.Unit, error)
}

type PurchaseMeta struct {
	Vendor string `json:"vendor"`
}

// Receipt describes a submission whose every request succeeded.
type Receipt struct {
	SubmissionID string            `json:"submission_id"`
	Kind         string            `json:"kind"`
	Vendor       string            `json:"vendor,omitempty"`
	ParentID     int64             `json:"parent_id,omitempty"`
	Lines        []domain.LineItem `json:"lines"`
	TotalAmount  int64             `json:"total_amount"`
	TotalItems   int               `json:"total_items"`
	// FinalizeWarning carries the remote message of a tolerated finalize
	// failure in lenient purchase mode.
	FinalizeWarning string    `json:"finalize_warning,omitempty"`
	UnitsRefreshed  bool      `json:"units_refreshed"`
	CompletedAt     time.Time `json:"completed_at"`
}

// PendingTransaction is the line sequence of a submission and how many of its
// lines the back office acknowledged.
type PendingTransaction struct {
	Kind     string            `json:"kind"`
	ParentID int64             `json:"parent_id,omitempty"`
	Lines    []domain.LineItem `json:"lines"`
	Cursor   int               `json:"cursor"`
}

// Remaining are the lines that were never acknowledged.
func (p PendingTransaction) Remaining() []domain.LineItem {
	if p.Cursor >= len(p.Lines) {
		return nil
	}
	return append([]domain.LineItem(nil), p.Lines[p.Cursor:]...)
}

const (
	StageParent   = "parent"
	StageLine     = "line"
	StageFinalize = "finalize"
)

// SubmissionError is returned once a submission got past validation and then
// failed. Lines before Pending.Cursor may already exist on the back office.
type SubmissionError struct {
	SubmissionID string
	Stage        string
	Pending      PendingTransaction
	Err          error
}

func (e *SubmissionError) Error() string {
	switch e.Stage {
	case StageLine:
		line := e.Pending.Lines[e.Pending.Cursor]
		return fmt.Sprintf("submit %s: line %d of %d (unit %d): %v",
			e.Pending.Kind, e.Pending.Cursor+1, len(e.Pending.Lines), line.UnitID, e.Err)
	default:
		return fmt.Sprintf("submit %s: %s: %v", e.Pending.Kind, e.Stage, e.Err)
	}
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// Partial reports whether some lines were acknowledged before the failure.
func (e *SubmissionError) Partial() bool {
	return e.Pending.Cursor > 0
}

type Option func(*Submitter)

// WithJournal records every submission of terminalID in j.
func WithJournal(j store.Journal, terminalID string) Option {
	return func(s *Submitter) {
		s.journal = j
		s.terminal = terminalID
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Submitter) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Submitter) {
		if now != nil {
			s.now = now
		}
	}
}

// LenientPurchaseFinalize tolerates a failing purchase-order/complete call:
// the submission succeeds and the receipt carries the warning.
func LenientPurchaseFinalize(enabled bool) Option {
	return func(s *Submitter) {
		s.lenientFinalize = enabled
	}
}

type Submitter struct {
	session         *remote.Session
	units           UnitRefresher
	journal         store.Journal
	terminal        string
	logger          *zap.Logger
	now             func() time.Time
	lenientFinalize bool

	inflight atomic.Int32
	// busy holds the carts with a submission in flight.
	busy sync.Map
}

func New(session *remote.Session, units UnitRefresher, opts ...Option) *Submitter {
	s := &Submitter{
		session: session,
		units:   units,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Loading reports whether a submission is in flight.
func (s *Submitter) Loading() bool {
	return s.inflight.Load() > 0
}

// Submitting reports whether c is being submitted right now.
func (s *Submitter) Submitting(c Cart) bool {
	if c == nil {
		return false
	}
	_, ok := s.busy.Load(c)
	return ok
}

// claim marks c as being submitted. A second submission of the same cart
// fails with ErrSubmissionInProgress until release is called.
func (s *Submitter) claim(c Cart, kind string) (release func(), err error) {
	if c == nil {
		return func() {}, nil
	}
	if _, loaded := s.busy.LoadOrStore(c, struct{}{}); loaded {
		return nil, s.reject(kind, domain.ErrSubmissionInProgress)
	}
	return func() { s.busy.Delete(c) }, nil
}

// SubmitSale posts one sales-order-detail per line and completes the order.
func (s *Submitter) SubmitSale(ctx context.Context, c Cart) (Receipt, error) {
	release, err := s.claim(c, domain.SubmissionKindSale)
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	lines, err := s.validate(c, domain.CartKindSales, domain.SubmissionKindSale, "")
	if err != nil {
		return Receipt{}, err
	}
	r := s.start(ctx, domain.SubmissionKindSale, "", lines)
	return s.finish(c, r, func() error {
		if err := r.postLines(func(l domain.LineItem) any {
			return map[string]any{"id_unit": l.UnitID, "qty": l.Qty}
		}, pathSalesDetail); err != nil {
			return err
		}
		return r.finalize(pathSalesComplete, false)
	})
}

// SubmitPurchase creates the parent purchase order, posts every line under
// it and completes the order.
func (s *Submitter) SubmitPurchase(ctx context.Context, c Cart, meta PurchaseMeta) (Receipt, error) {
	release, err := s.claim(c, domain.SubmissionKindPurchase)
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	vendor := strings.TrimSpace(meta.Vendor)
	lines, err := s.validate(c, domain.CartKindPurchase, domain.SubmissionKindPurchase, vendor)
	if err != nil {
		return Receipt{}, err
	}
	r := s.start(ctx, domain.SubmissionKindPurchase, vendor, lines)
	return s.finish(c, r, func() error {
		if err := r.createParent(vendor); err != nil {
			return err
		}
		if err := r.postLines(func(l domain.LineItem) any {
			return map[string]any{
				"id_purchase_order": r.parentID,
				"id_unit":           l.UnitID,
				"vendor":            vendor,
				"qty":               l.Qty,
				"cost_price":        l.UnitPrice,
			}
		}, pathPurchaseDetail); err != nil {
			return err
		}
		return r.finalize(pathPurchaseComplete, s.lenientFinalize)
	})
}

// SubmitPurchaseDirect posts detail rows without a parent order and without
// a finalize call.
func (s *Submitter) SubmitPurchaseDirect(ctx context.Context, c Cart, meta PurchaseMeta) (Receipt, error) {
	release, err := s.claim(c, domain.SubmissionKindPurchaseDirect)
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	vendor := strings.TrimSpace(meta.Vendor)
	lines, err := s.validate(c, domain.CartKindPurchase, domain.SubmissionKindPurchaseDirect, vendor)
	if err != nil {
		return Receipt{}, err
	}
	r := s.start(ctx, domain.SubmissionKindPurchaseDirect, vendor, lines)
	return s.finish(c, r, func() error {
		return r.postLines(func(l domain.LineItem) any {
			return map[string]any{
				"id_unit":    l.UnitID,
				"vendor":     vendor,
				"qty":        l.Qty,
				"cost_price": l.UnitPrice,
			}
		}, pathPurchaseDetail)
	})
}

// validate runs every precondition before any request is sent.
func (s *Submitter) validate(c Cart, cartKind string, kind string, vendor string) ([]domain.LineItem, error) {
	if c == nil {
		return nil, domain.Validationf("no cart to submit")
	}
	if c.Kind() != cartKind {
		return nil, s.reject(kind, domain.Validationf("%s submission needs a %s cart, got %s", kind, cartKind, c.Kind()))
	}
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, s.reject(kind, domain.ErrEmptyCart)
	}
	if kind != domain.SubmissionKindSale && vendor == "" {
		return nil, s.reject(kind, domain.Validationf("vendor name is required"))
	}
	return lines, nil
}

func (s *Submitter) reject(kind string, err error) error {
	metrics.SubmissionsTotal.WithLabelValues(kind, "rejected").Inc()
	return err
}

// start detaches the submission from ctx cancellation: once the first request
// may be sent there is no way to abort. Each request is still bounded by the
// HTTP client timeout.
func (s *Submitter) start(ctx context.Context, kind string, vendor string, lines []domain.LineItem) *run {
	ctx = context.WithoutCancel(ctx)
	s.inflight.Add(1)
	r := &run{
		s:      s,
		ctx:    ctx,
		id:     xid.New("sub"),
		kind:   kind,
		vendor: vendor,
		lines:  lines,
	}
	r.journal(func(j store.Journal) error {
		return j.Begin(ctx, domain.Submission{
			ID:         r.id,
			TerminalID: s.terminal,
			Kind:       kind,
			Vendor:     vendor,
			Lines:      lines,
			Status:     domain.SubmissionStatusPending,
			StartedAt:  s.now().UTC(),
		})
	})
	return r
}

func (s *Submitter) finish(c Cart, r *run, steps func() error) (Receipt, error) {
	defer s.inflight.Add(-1)

	if err := steps(); err != nil {
		r.close(domain.SubmissionStatusFailed, remote.Message(err))
		metrics.SubmissionsTotal.WithLabelValues(r.kind, "failed").Inc()
		s.logger.Warn("submission failed",
			zap.String("submission_id", r.id),
			zap.String("kind", r.kind),
			zap.String("stage", r.stage),
			zap.Int("cursor", r.cursor),
			zap.Int("lines", len(r.lines)),
			zap.Error(err),
		)
		return Receipt{}, &SubmissionError{
			SubmissionID: r.id,
			Stage:        r.stage,
			Pending: PendingTransaction{
				Kind:     r.kind,
				ParentID: r.parentID,
				Lines:    r.lines,
				Cursor:   r.cursor,
			},
			Err: err,
		}
	}

	r.close(domain.SubmissionStatusCompleted, "")
	metrics.SubmissionsTotal.WithLabelValues(r.kind, "completed").Inc()
	c.Clear()

	receipt := Receipt{
		SubmissionID:    r.id,
		Kind:            r.kind,
		Vendor:          r.vendor,
		ParentID:        r.parentID,
		Lines:           r.lines,
		FinalizeWarning: r.warning,
		CompletedAt:     s.now().UTC(),
	}
	for _, l := range r.lines {
		receipt.TotalAmount += l.Subtotal()
		receipt.TotalItems += l.Qty
	}

	if s.units != nil {
		if _, err := s.units.FetchAll(r.ctx); err != nil {
			s.logger.Warn("unit refresh after submission failed",
				zap.String("submission_id", r.id), zap.Error(err))
		} else {
			receipt.UnitsRefreshed = true
		}
	}
	return receipt, nil
}

// run is the state of one submission in progress.
type run struct {
	s      *Submitter
	ctx    context.Context
	id     string
	kind   string
	vendor string
	lines  []domain.LineItem

	stage    string
	parentID int64
	cursor   int
	warning  string
}

func (r *run) createParent(vendor string) error {
	r.stage = StageParent
	raw, err := r.s.session.Do(r.ctx, http.MethodPost, pathPurchaseOrder, map[string]any{
		"vendor": vendor,
		"status": "pending",
	})
	if err != nil {
		return err
	}
	id, err := parentID(raw)
	if err != nil {
		return err
	}
	r.parentID = id
	r.journal(func(j store.Journal) error { return j.SetParent(r.ctx, r.id, id) })
	return nil
}

func (r *run) postLines(body func(domain.LineItem) any, path string) error {
	r.stage = StageLine
	for r.cursor < len(r.lines) {
		if err := r.s.session.Post(r.ctx, path, body(r.lines[r.cursor]), nil); err != nil {
			return err
		}
		r.cursor++
		metrics.SubmittedLinesTotal.WithLabelValues(r.kind).Inc()
		cursor := r.cursor
		r.journal(func(j store.Journal) error { return j.Advance(r.ctx, r.id, cursor) })
	}
	return nil
}

func (r *run) finalize(path string, lenient bool) error {
	r.stage = StageFinalize
	err := r.s.session.Post(r.ctx, path, nil, nil)
	if err == nil {
		return nil
	}
	if !lenient {
		return err
	}
	r.warning = remote.Message(err)
	r.s.logger.Warn("finalize failed, submission kept",
		zap.String("submission_id", r.id), zap.String("path", path), zap.Error(err))
	return nil
}

func (r *run) close(status string, errMsg string) {
	r.journal(func(j store.Journal) error {
		return j.Finish(r.ctx, r.id, status, errMsg, r.s.now().UTC())
	})
}

// journal applies fn when a journal is configured. Journal failures are
// logged and never change the outcome of the submission.
func (r *run) journal(fn func(store.Journal) error) {
	if r.s.journal == nil {
		return
	}
	if err := fn(r.s.journal); err != nil {
		r.s.logger.Warn("submission journal write failed",
			zap.String("submission_id", r.id), zap.Error(err))
	}
}

// parentID reads the new order id from either {"id": ..} or {"data": {"id": ..}}.
func parentID(raw []byte) (int64, error) {
	var body struct {
		ID   json.RawMessage `json:"id"`
		Data *struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return 0, fmt.Errorf("%w: decode purchase order: %v", domain.ErrRemoteRequestFailed, err)
	}
	if id := parseID(body.ID); id > 0 {
		return id, nil
	}
	if body.Data != nil {
		if id := parseID(body.Data.ID); id > 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: purchase order response carried no id", domain.ErrRemoteRequestFailed)
}

func parseID(raw json.RawMessage) int64 {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
