package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"udpadijaya/posagent/internal/checkout"
	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/remote"
	"udpadijaya/posagent/internal/service"
)

const terminalHeader = "X-Terminal-ID"

type API struct {
	service         *service.Service
	allowedOrigin   string
	defaultTerminal string
	metrics         http.Handler
	logger          *zap.Logger
}

type Option func(*API)

func WithLogger(l *zap.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics serves h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(a *API) {
		a.metrics = h
	}
}

// WithDefaultTerminal is used when a request carries no X-Terminal-ID.
func WithDefaultTerminal(id string) Option {
	return func(a *API) {
		a.defaultTerminal = strings.TrimSpace(id)
	}
}

func New(svc *service.Service, allowedOrigin string, opts ...Option) *API {
	a := &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.withMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		a.writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		a.writeMethodNotAllowed(w)
	})

	r.Get("/healthz", a.handleHealth)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Get("/me", a.handleMe)
		r.Post("/logout", a.handleLogout)
		r.Get("/units", a.handleUnits)

		a.cartRoutes(r, "/cart", domain.CartKindSales)
		a.cartRoutes(r, "/purchase-list", domain.CartKindPurchase)

		r.Get("/dashboard", a.handleDashboard)
		r.Get("/safety-stock", a.handleSafetyStock)
		r.Get("/reorder-suggestions", a.handleReorderSuggestions)
		r.Get("/money-flows/summary", a.handleMoneyFlowSummary)
		r.Post("/money-flows", a.handleRecordMoneyFlow)
		r.Get("/deliveries", a.handleDeliveries)
		r.Patch("/deliveries/{id}", a.handleDeliveryStatus)
		r.Get("/transfers", a.handleTransfers)
		r.Post("/transfers", a.handleRequestTransfer)
		r.Patch("/transfers/{id}", a.handleTransferStatus)
		r.Get("/submissions", a.handleSubmissions)
	})

	return r
}

func (a *API) cartRoutes(r chi.Router, prefix string, kind string) {
	r.Route(prefix, func(r chi.Router) {
		r.Get("/", a.handleCart(kind))
		r.Delete("/", a.handleClearCart(kind))
		r.Post("/lines", a.handleAddLine(kind))
		r.Patch("/lines/{unitID}", a.handleSetLineQty(kind))
		r.Delete("/lines/{unitID}", a.handleRemoveLine(kind))
		if kind == domain.CartKindPurchase {
			r.Patch("/lines/{unitID}/cost", a.handleSetLineCost)
			r.Post("/submit", a.handleSubmitPurchase)
		} else {
			r.Post("/submit", a.handleSubmitSale)
		}
	})
}

// requireAuth forwards the caller's bearer token; the back office is the one
// that accepts or rejects it.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		token := strings.TrimSpace(authorization[len("Bearer "):])
		if token == "" {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		terminal := strings.TrimSpace(r.Header.Get(terminalHeader))
		if terminal == "" {
			terminal = a.defaultTerminal
		}
		if terminal == "" {
			a.writeError(w, http.StatusBadRequest, errors.New("X-Terminal-ID header is required"))
			return
		}

		ctx := service.WithTerminal(r.Context(), service.Terminal{ID: terminal, Token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"terminals": len(a.service.Terminals()),
		"at":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := a.service.Me(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"profile": profile})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Logout(r.Context()); err != nil {
		a.logger.Warn("remote logout failed, local token cleared", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func (a *API) handleUnits(w http.ResponseWriter, r *http.Request) {
	units, err := a.service.Units(r.Context(), queryBool(r, "refresh"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

func (a *API) handleCart(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := a.service.Cart(r.Context(), kind)
		a.writeCart(w, view, err)
	}
}

func (a *API) handleClearCart(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := a.service.ClearCart(r.Context(), kind)
		a.writeCart(w, view, err)
	}
}

func (a *API) handleAddLine(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.AddLineRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		view, err := a.service.AddLine(r.Context(), kind, req)
		a.writeCart(w, view, err)
	}
}

func (a *API) handleSetLineQty(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unitID, ok := a.pathID(w, r, "unitID")
		if !ok {
			return
		}
		var req struct {
			Qty *int `json:"qty"`
		}
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Qty == nil {
			a.writeError(w, http.StatusBadRequest, errors.New("qty is required"))
			return
		}
		view, err := a.service.SetLineQty(r.Context(), kind, unitID, *req.Qty)
		a.writeCart(w, view, err)
	}
}

func (a *API) handleRemoveLine(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unitID, ok := a.pathID(w, r, "unitID")
		if !ok {
			return
		}
		view, err := a.service.RemoveLine(r.Context(), kind, unitID)
		a.writeCart(w, view, err)
	}
}

func (a *API) handleSetLineCost(w http.ResponseWriter, r *http.Request) {
	unitID, ok := a.pathID(w, r, "unitID")
	if !ok {
		return
	}
	var req struct {
		Cost *int64 `json:"cost"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Cost == nil {
		a.writeError(w, http.StatusBadRequest, errors.New("cost is required"))
		return
	}
	view, err := a.service.SetLineCost(r.Context(), domain.CartKindPurchase, unitID, *req.Cost)
	a.writeCart(w, view, err)
}

func (a *API) handleSubmitSale(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.SubmitSale(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"receipt": receipt})
}

func (a *API) handleSubmitPurchase(w http.ResponseWriter, r *http.Request) {
	var req service.PurchaseSubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := a.service.SubmitPurchase(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"receipt": receipt})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := a.service.Dashboard(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboard": dash})
}

func (a *API) handleSafetyStock(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.SafetyStock(r.Context(), queryBool(r, "refresh"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"safety_stock": view})
}

func (a *API) handleReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := a.service.ReorderSuggestions(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (a *API) handleMoneyFlowSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.MoneyFlowSummary(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

func (a *API) handleRecordMoneyFlow(w http.ResponseWriter, r *http.Request) {
	var req domain.MoneyFlowRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := a.service.RecordMoneyFlow(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"summary": summary})
}

func (a *API) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	board, err := a.service.Deliveries(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": board})
}

func (a *API) handleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	board, err := a.service.UpdateDeliveryStatus(r.Context(), id, strings.TrimSpace(req.Status))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": board})
}

func (a *API) handleTransfers(w http.ResponseWriter, r *http.Request) {
	board, err := a.service.Transfers(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": board})
}

func (a *API) handleRequestTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferStockRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	board, err := a.service.RequestTransfer(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"transfers": board})
}

func (a *API) handleTransferStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	board, err := a.service.UpdateTransferStatus(r.Context(), id, strings.TrimSpace(req.Status))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": board})
}

func (a *API) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	subs, err := a.service.Submissions(r.Context(), limit, queryBool(r, "incomplete"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func (a *API) writeCart(w http.ResponseWriter, view service.CartView, err error) {
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": view})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+terminalHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(startedAt)))
	})
}

// statusFromError maps the error taxonomy onto HTTP. A back-office 404 stays
// a 404; any other back-office failure is a bad gateway.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrSubmissionInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTerminalLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthenticationExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRemoteRequestFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	status := statusFromError(err)

	var subErr *checkout.SubmissionError
	if errors.As(err, &subErr) {
		a.logger.Warn("submission failed",
			zap.String("submission_id", subErr.SubmissionID),
			zap.Int("cursor", subErr.Pending.Cursor),
			zap.Error(err))
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, map[string]any{
			"error":         remote.Message(subErr.Err),
			"submission_id": subErr.SubmissionID,
			"stage":         subErr.Stage,
			"partial":       subErr.Partial(),
			"pending":       subErr.Pending,
			"remaining":     subErr.Pending.Remaining(),
		})
		return
	}

	if status == http.StatusBadGateway || status == http.StatusUnauthorized {
		writeJSON(w, status, map[string]any{"error": remote.Message(err)})
		return
	}
	a.writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		a.writeError(w, http.StatusBadRequest, errors.New(param+" must be a positive integer"))
		return 0, false
	}
	return id, true
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; details go to the log only.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
