package entities

import (
	"context"
	"net/http"
	"sync"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/remote"
)

// Transfers tracks stock transfer requests between branches. The API answers
// with two lists: requests this branch made and requests addressed to it.
type Transfers struct {
	*Collection[domain.TransferStock]

	listsMu sync.RWMutex
	lists   domain.TransferStockLists
}

func NewTransfers(d Deps) *Transfers {
	t := &Transfers{}
	t.Collection = newCollection(d, resourceSpec[domain.TransferStock]{
		path:   "transfer-stock",
		id:     func(s domain.TransferStock) int64 { return s.ID },
		decode: t.decodeLists,
	})
	return t
}

func (t *Transfers) decodeLists(raw []byte) ([]domain.TransferStock, error) {
	var lists domain.TransferStockLists
	if err := remote.DecodeEnvelope(raw, &lists); err != nil {
		return nil, err
	}
	if lists.MyRequests == nil {
		lists.MyRequests = []domain.TransferStock{}
	}
	if lists.IncomingRequests == nil {
		lists.IncomingRequests = []domain.TransferStock{}
	}

	t.listsMu.Lock()
	t.lists = lists
	t.listsMu.Unlock()

	seen := map[int64]bool{}
	all := make([]domain.TransferStock, 0, len(lists.MyRequests)+len(lists.IncomingRequests))
	for _, group := range [][]domain.TransferStock{lists.MyRequests, lists.IncomingRequests} {
		for _, ts := range group {
			if seen[ts.ID] {
				continue
			}
			seen[ts.ID] = true
			all = append(all, ts)
		}
	}
	return all, nil
}

func (t *Transfers) MyRequests() []domain.TransferStock {
	t.listsMu.RLock()
	defer t.listsMu.RUnlock()
	return append([]domain.TransferStock(nil), t.lists.MyRequests...)
}

func (t *Transfers) IncomingRequests() []domain.TransferStock {
	t.listsMu.RLock()
	defer t.listsMu.RUnlock()
	return append([]domain.TransferStock(nil), t.lists.IncomingRequests...)
}

// PendingIncoming are the requests still waiting for this branch's answer.
func (t *Transfers) PendingIncoming() []domain.TransferStock {
	out := []domain.TransferStock{}
	for _, ts := range t.IncomingRequests() {
		if ts.Status == domain.TransferStatusPending {
			out = append(out, ts)
		}
	}
	return out
}

func (t *Transfers) Request(ctx context.Context, req domain.TransferStockRequest) error {
	if req.BranchID <= 0 || req.UnitRequestID <= 0 {
		return domain.Validationf("branch and unit are required")
	}
	if req.QtyProductRequest < 1 {
		return domain.Validationf("quantity must be at least 1, got %d", req.QtyProductRequest)
	}
	return t.Create(ctx, req, nil)
}

func (t *Transfers) UpdateStatus(ctx context.Context, id int64, status string) error {
	switch status {
	case domain.TransferStatusPending, domain.TransferStatusSuccess, domain.TransferStatusRejected:
	default:
		return domain.Validationf("unknown transfer status %q", status)
	}
	return t.Update(ctx, id, map[string]string{"status": status}, nil)
}

// Detail fetches one transfer without touching the lists.
func (t *Transfers) Detail(ctx context.Context, id int64) (domain.TransferStock, error) {
	var ts domain.TransferStock
	if err := t.call(ctx, http.MethodGet, t.itemPath(id), nil, &ts); err != nil {
		return domain.TransferStock{}, err
	}
	return ts, nil
}
