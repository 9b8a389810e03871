package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/remote"
	"udpadijaya/posagent/internal/remote/remotetest"
	"udpadijaya/posagent/internal/service"
	"udpadijaya/posagent/internal/store/memory"
)

// newTestAPI builds the facade over a real Service talking to a fake back
// office, so handler tests exercise the complete request path.
func newTestAPI(t *testing.T, opts ...Option) (*API, *remotetest.Server) {
	t.Helper()

	fake := remotetest.New(t)
	fake.Reply(http.MethodGet, "unit", http.StatusOK, map[string]any{"data": []map[string]any{
		{"id": 1, "unit_name": "Pcs", "product_name": "Indomie", "price": 3500, "cost_price": 3000, "stock": 5, "min_stock": 10},
		{"id": 3, "unit_name": "Btl", "product_name": "Aqua", "price": 4000, "cost_price": 3000, "stock": 50, "min_stock": 10},
	}})
	svc := service.New(fake.Client(t), service.Options{Journal: memory.New()})

	return New(svc, "*", opts...), fake
}

func do(t *testing.T, api *API, method string, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token-a")
	req.Header.Set(terminalHeader, "till-1")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return rec, payload
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	api, fake := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/units", nil)
	req.Header.Set(terminalHeader, "till-1")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if n := len(fake.Requests()); n != 0 {
		t.Fatalf("expected no back-office calls, got %d", n)
	}
}

func TestAPIRequiresTerminal(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/units", nil)
	req.Header.Set("Authorization", "Bearer token-a")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without terminal, got %d", rec.Code)
	}
}

func TestDefaultTerminalIsUsed(t *testing.T) {
	api, fake := newTestAPI(t, WithDefaultTerminal("front-desk"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/units", nil)
	req.Header.Set("Authorization", "Bearer token-a")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if got := api.service.Terminals(); len(got) != 1 || got[0] != "front-desk" {
		t.Fatalf("expected front-desk workspace, got %v", got)
	}
	reqs := fake.RequestsTo(http.MethodGet, "unit")
	if len(reqs) != 1 || reqs[0].Authorization != "Bearer token-a" {
		t.Fatalf("expected forwarded token, got %+v", reqs)
	}
}

func TestCartFlowAndSaleSubmit(t *testing.T) {
	api, fake := newTestAPI(t)

	rec, body := do(t, api, http.MethodPost, "/api/v1/cart/lines", map[string]any{"unit_id": 1, "qty": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("add line expected 200, got %d (body: %v)", rec.Code, body)
	}
	cartView := body["cart"].(map[string]any)
	if cartView["total_amount"] != float64(7000) {
		t.Fatalf("expected total 7000, got %v", cartView["total_amount"])
	}

	rec, body = do(t, api, http.MethodPatch, "/api/v1/cart/lines/1", map[string]any{"qty": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("set qty expected 200, got %d (body: %v)", rec.Code, body)
	}
	if got := body["cart"].(map[string]any)["total_items"]; got != float64(3) {
		t.Fatalf("expected 3 items, got %v", got)
	}

	rec, body = do(t, api, http.MethodPost, "/api/v1/cart/submit", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit expected 201, got %d (body: %v)", rec.Code, body)
	}
	receipt := body["receipt"].(map[string]any)
	if receipt["total_amount"] != float64(10500) {
		t.Fatalf("unexpected receipt %v", receipt)
	}
	if n := len(fake.RequestsTo(http.MethodPost, "sales-order-detail")); n != 1 {
		t.Fatalf("expected 1 detail post, got %d", n)
	}
	if n := len(fake.RequestsTo(http.MethodPost, "sales-order/complete")); n != 1 {
		t.Fatalf("expected 1 complete post, got %d", n)
	}

	_, body = do(t, api, http.MethodGet, "/api/v1/cart", nil)
	if lines := body["cart"].(map[string]any)["lines"].([]any); len(lines) != 0 {
		t.Fatalf("expected cart cleared after submit, got %d lines", len(lines))
	}
}

func TestAddLineOverStockConflicts(t *testing.T) {
	api, _ := newTestAPI(t)

	rec, body := do(t, api, http.MethodPost, "/api/v1/cart/lines", map[string]any{"unit_id": 1, "qty": 6})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %v)", rec.Code, body)
	}
}

func TestEmptyCartSubmitIsBadRequest(t *testing.T) {
	api, fake := newTestAPI(t)

	rec, _ := do(t, api, http.MethodPost, "/api/v1/cart/submit", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if n := len(fake.RequestsTo(http.MethodPost, "sales-order-detail")); n != 0 {
		t.Fatalf("expected no detail posts, got %d", n)
	}
}

func TestPartialSubmissionReportsPendingLines(t *testing.T) {
	api, fake := newTestAPI(t)
	fake.FailOn(http.MethodPost, "sales-order-detail", 2, http.StatusUnprocessableEntity, "unit 3 is archived")

	do(t, api, http.MethodPost, "/api/v1/cart/lines", map[string]any{"unit_id": 1, "qty": 1})
	do(t, api, http.MethodPost, "/api/v1/cart/lines", map[string]any{"unit_id": 3, "qty": 2})

	rec, body := do(t, api, http.MethodPost, "/api/v1/cart/submit", nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d (body: %v)", rec.Code, body)
	}
	if body["error"] != "unit 3 is archived" {
		t.Fatalf("expected remote message, got %v", body["error"])
	}
	if body["partial"] != true {
		t.Fatalf("expected partial submission, got %v", body["partial"])
	}
	pending := body["pending"].(map[string]any)
	if pending["cursor"] != float64(1) {
		t.Fatalf("expected cursor 1, got %v", pending["cursor"])
	}
	if remaining := body["remaining"].([]any); len(remaining) != 1 {
		t.Fatalf("expected 1 remaining line, got %d", len(remaining))
	}

	_, body = do(t, api, http.MethodGet, "/api/v1/cart", nil)
	if lines := body["cart"].(map[string]any)["lines"].([]any); len(lines) != 2 {
		t.Fatalf("expected cart kept after failure, got %d lines", len(lines))
	}

	_, body = do(t, api, http.MethodGet, "/api/v1/submissions", nil)
	subs := body["submissions"].([]any)
	if len(subs) != 1 || subs[0].(map[string]any)["status"] != "failed" {
		t.Fatalf("expected one failed submission, got %v", subs)
	}
}

func TestDoubleSubmitIsConflict(t *testing.T) {
	api, fake := newTestAPI(t)
	do(t, api, http.MethodPost, "/api/v1/cart/lines", map[string]any{"unit_id": 1, "qty": 1})

	second := make(chan int, 1)
	var once sync.Once
	fake.OnRequest(func(req remotetest.Request) {
		if req.Path != "sales-order-detail" {
			return
		}
		once.Do(func() {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/cart/submit", nil)
			r.Header.Set("Authorization", "Bearer token-a")
			r.Header.Set(terminalHeader, "till-1")
			api.Handler().ServeHTTP(rec, r)
			second <- rec.Code
		})
	})

	rec, body := do(t, api, http.MethodPost, "/api/v1/cart/submit", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first submit expected 201, got %d (body: %v)", rec.Code, body)
	}
	if code := <-second; code != http.StatusConflict {
		t.Fatalf("second submit expected 409, got %d", code)
	}
	if n := len(fake.RequestsTo(http.MethodPost, "sales-order/complete")); n != 1 {
		t.Fatalf("expected one completed sale, got %d", n)
	}
}

func TestPurchaseListSubmit(t *testing.T) {
	api, fake := newTestAPI(t)

	do(t, api, http.MethodPost, "/api/v1/purchase-list/lines", map[string]any{"unit_id": 3, "qty": 10})
	rec, body := do(t, api, http.MethodPatch, "/api/v1/purchase-list/lines/3/cost", map[string]any{"cost": 2500})
	if rec.Code != http.StatusOK {
		t.Fatalf("set cost expected 200, got %d (body: %v)", rec.Code, body)
	}

	rec, _ = do(t, api, http.MethodPost, "/api/v1/purchase-list/submit", map[string]any{"vendor": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank vendor, got %d", rec.Code)
	}

	rec, body = do(t, api, http.MethodPost, "/api/v1/purchase-list/submit", map[string]any{"vendor": "PT Sumber"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %v)", rec.Code, body)
	}
	details := fake.RequestsTo(http.MethodPost, "purchase-order-detail")
	if len(details) != 1 || details[0].Body["cost_price"] != float64(2500) {
		t.Fatalf("unexpected purchase details %+v", details)
	}
}

func TestSalesCartHasNoCostRoute(t *testing.T) {
	api, _ := newTestAPI(t)

	rec, _ := do(t, api, http.MethodPatch, "/api/v1/cart/lines/1/cost", map[string]any{"cost": 1})
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected no cost route on the sales cart, got %d", rec.Code)
	}
}

func TestRemoteAuthExpiryIs401(t *testing.T) {
	api, fake := newTestAPI(t)
	fake.FailOn(http.MethodGet, "safety-stock", 1, http.StatusUnauthorized, "token expired")

	rec, body := do(t, api, http.MethodGet, "/api/v1/safety-stock", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %v)", rec.Code, body)
	}
	if body["error"] != "token expired" {
		t.Fatalf("expected remote message, got %v", body["error"])
	}
}

func TestBadPathIDIsRejected(t *testing.T) {
	api, _ := newTestAPI(t)

	rec, _ := do(t, api, http.MethodPatch, "/api/v1/deliveries/abc", map[string]any{"status": "completed"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	api, _ := newTestAPI(t)

	rec, _ := do(t, api, http.MethodPost, "/api/v1/cart/lines", map[string]any{"unit_id": 1, "discount": 5})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatusFromError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"validation":   {err: domain.Validationf("qty must be positive"), want: http.StatusBadRequest},
		"empty cart":   {err: domain.ErrEmptyCart, want: http.StatusBadRequest},
		"stock":        {err: &domain.StockError{UnitID: 1, Requested: 9, Available: 2}, want: http.StatusConflict},
		"in progress":  {err: domain.ErrSubmissionInProgress, want: http.StatusConflict},
		"terminals":    {err: fmt.Errorf("%w: 64 terminals open", domain.ErrTerminalLimit), want: http.StatusTooManyRequests},
		"auth expired": {err: &remote.RequestError{Method: "GET", Path: "unit", StatusCode: 401}, want: http.StatusUnauthorized},
		"not found":    {err: &remote.RequestError{Method: "PUT", Path: "delivery/9", StatusCode: 404}, want: http.StatusNotFound},
		"remote":       {err: &remote.RequestError{Method: "GET", Path: "unit", StatusCode: 500}, want: http.StatusBadGateway},
		"transport":    {err: &remote.RequestError{Method: "GET", Path: "unit", Cause: errors.New("dial tcp: refused")}, want: http.StatusBadGateway},
		"plain":        {err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		if got := statusFromError(tc.err); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", name, tc.want, got)
		}
	}
}
