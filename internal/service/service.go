package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"udpadijaya/posagent/internal/analytics"
	"udpadijaya/posagent/internal/cache"
	"udpadijaya/posagent/internal/cart"
	"udpadijaya/posagent/internal/checkout"
	"udpadijaya/posagent/internal/domain"
	"udpadijaya/posagent/internal/entities"
	"udpadijaya/posagent/internal/refresh"
	"udpadijaya/posagent/internal/remote"
	"udpadijaya/posagent/internal/store"
)

type terminalContextKey struct{}

// Terminal identifies the caller: which till it is and the bearer token its
// UI forwarded.
type Terminal struct {
	ID    string
	Token string
}

func WithTerminal(ctx context.Context, terminal Terminal) context.Context {
	return context.WithValue(ctx, terminalContextKey{}, terminal)
}

func TerminalFromContext(ctx context.Context) (Terminal, bool) {
	terminal, ok := ctx.Value(terminalContextKey{}).(Terminal)
	return terminal, ok
}

const (
	DefaultMaxTerminals = 64
	DefaultIdleTimeout  = 30 * time.Minute
)

type Options struct {
	Cache                   cache.SnapshotCache
	Journal                 store.Journal
	SnapshotTTL             time.Duration
	LenientPurchaseFinalize bool
	// MaxTerminals caps the open workspaces. At the cap, the least recently
	// used idle workspace with empty carts is closed to make room.
	MaxTerminals int
	// IdleTimeout is how long a workspace must go unused before it can be
	// closed.
	IdleTimeout time.Duration
	Logger      *zap.Logger
	Now         func() time.Time
}

// Service owns one workspace per terminal. Workspaces share the remote client
// and the journal but nothing else.
type Service struct {
	client *remote.Client
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

func New(client *remote.Client, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopSnapshotCache{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxTerminals <= 0 {
		opts.MaxTerminals = DefaultMaxTerminals
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	return &Service{
		client:     client,
		opts:       opts,
		logger:     opts.Logger,
		workspaces: map[string]*Workspace{},
	}
}

// Workspace is everything one terminal works with.
type Workspace struct {
	ID          string
	Credentials *remote.Credentials
	Session     *remote.Session
	Identity    *entities.Identity

	Units           *entities.Units
	Branches        *entities.Branches
	Customers       *entities.Customers
	Products        *entities.Products
	ProductTypes    *entities.ProductTypes
	SalesOrders     *entities.SalesOrders
	SalesDetails    *entities.SalesDetails
	PurchaseOrders  *entities.PurchaseOrders
	PurchaseDetails *entities.PurchaseDetails
	Deliveries      *entities.Deliveries
	MoneyFlows      *entities.MoneyFlows
	Transfers       *entities.Transfers
	Accounts        *entities.Accounts
	SafetyStock     *entities.SafetyStock

	Sales     *cart.Cart
	Purchases *cart.Cart
	Submitter *checkout.Submitter

	// pinned workspaces keep the token they were opened with and are never
	// closed.
	pinned   atomic.Bool
	lastUsed time.Time
}

// idle reports whether ws can be closed without losing anything.
func (ws *Workspace) idle() bool {
	return !ws.pinned.Load() &&
		ws.Sales.Len() == 0 &&
		ws.Purchases.Len() == 0 &&
		!ws.Submitter.Loading()
}

func (s *Service) newWorkspace(id string) *Workspace {
	creds := remote.NewCredentials("")
	session := s.client.Session(creds)
	logger := s.logger.With(zap.String("terminal", id))
	deps := entities.Deps{
		Session:  session,
		Cache:    s.opts.Cache,
		Terminal: id,
		TTL:      s.opts.SnapshotTTL,
		Logger:   logger,
	}

	units := entities.NewUnits(deps)
	opts := []checkout.Option{
		checkout.WithLogger(logger),
		checkout.WithClock(s.opts.Now),
		checkout.LenientPurchaseFinalize(s.opts.LenientPurchaseFinalize),
	}
	if s.opts.Journal != nil {
		opts = append(opts, checkout.WithJournal(s.opts.Journal, id))
	}

	return &Workspace{
		ID:              id,
		Credentials:     creds,
		Session:         session,
		Identity:        entities.NewIdentity(deps, creds),
		Units:           units,
		Branches:        entities.NewBranches(deps),
		Customers:       entities.NewCustomers(deps),
		Products:        entities.NewProducts(deps),
		ProductTypes:    entities.NewProductTypes(deps),
		SalesOrders:     entities.NewSalesOrders(deps),
		SalesDetails:    entities.NewSalesDetails(deps),
		PurchaseOrders:  entities.NewPurchaseOrders(deps),
		PurchaseDetails: entities.NewPurchaseDetails(deps),
		Deliveries:      entities.NewDeliveries(deps),
		MoneyFlows:      entities.NewMoneyFlows(deps),
		Transfers:       entities.NewTransfers(deps),
		Accounts:        entities.NewAccounts(deps),
		SafetyStock:     entities.NewSafetyStock(deps),
		Sales:           cart.NewSales(units),
		Purchases:       cart.NewPurchase(),
		Submitter:       checkout.New(session, units, opts...),
	}
}

// Workspace returns the caller's workspace, creating it on first use. The
// forwarded token replaces the stored one on every call, except on a pinned
// workspace.
func (s *Service) Workspace(ctx context.Context) (*Workspace, error) {
	terminal, ok := TerminalFromContext(ctx)
	if !ok || strings.TrimSpace(terminal.ID) == "" {
		return nil, domain.Validationf("terminal id is required")
	}
	ws, err := s.open(strings.TrimSpace(terminal.ID))
	if err != nil {
		return nil, err
	}
	if terminal.Token != "" && !ws.pinned.Load() {
		ws.Credentials.Set(terminal.Token)
	}
	return ws, nil
}

// OpenServiceTerminal opens id with a token owned by the agent itself. The
// workspace is pinned: UI requests for id use this token and never close it.
func (s *Service) OpenServiceTerminal(id string, token string) (*Workspace, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.TrimSpace(token) == "" {
		return nil, domain.Validationf("service terminal needs an id and a token")
	}
	ws, err := s.open(id)
	if err != nil {
		return nil, err
	}
	ws.pinned.Store(true)
	ws.Credentials.Set(token)
	return ws, nil
}

func (s *Service) open(id string) (*Workspace, error) {
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ws, ok := s.workspaces[id]; ok {
		ws.lastUsed = now
		return ws, nil
	}
	if len(s.workspaces) >= s.opts.MaxTerminals && !s.evictLocked(now) {
		s.logger.Warn("terminal rejected, workspace limit reached",
			zap.String("terminal", id), zap.Int("max", s.opts.MaxTerminals))
		return nil, fmt.Errorf("%w: %d terminals open", domain.ErrTerminalLimit, len(s.workspaces))
	}

	ws := s.newWorkspace(id)
	ws.lastUsed = now
	s.workspaces[id] = ws
	s.logger.Info("terminal workspace opened", zap.String("terminal", id))
	return ws, nil
}

// evictLocked closes the least recently used workspace that has been idle for
// at least IdleTimeout. Callers hold s.mu.
func (s *Service) evictLocked(now time.Time) bool {
	var victim *Workspace
	for _, ws := range s.workspaces {
		if now.Sub(ws.lastUsed) < s.opts.IdleTimeout || !ws.idle() {
			continue
		}
		if victim == nil || ws.lastUsed.Before(victim.lastUsed) {
			victim = ws
		}
	}
	if victim == nil {
		return false
	}
	delete(s.workspaces, victim.ID)
	s.logger.Info("terminal workspace closed", zap.String("terminal", victim.ID),
		zap.Duration("idle", now.Sub(victim.lastUsed)))
	return true
}

// Terminals lists the ids of every open workspace, sorted.
func (s *Service) Terminals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.workspaces))
	for id := range s.workspaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RefreshJobs is the refresher source: the safety stock of every open
// terminal that still holds a token.
func (s *Service) RefreshJobs() []refresh.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]refresh.Job, 0, len(s.workspaces))
	for id, ws := range s.workspaces {
		if ws.Credentials.Token() == "" {
			continue
		}
		jobs = append(jobs, refresh.FromCollection[domain.SafetyStockItem](id, ws.SafetyStock))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

type Profile struct {
	Account     domain.Account `json:"account"`
	DisplayName string         `json:"display_name"`
}

func (s *Service) Me(ctx context.Context) (Profile, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return Profile{}, err
	}
	acc, err := ws.Identity.Me(ctx)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Account: acc, DisplayName: ws.Identity.DisplayName()}, nil
}

// Logout revokes the token remotely and forgets it locally. The carts stay.
// A pinned workspace keeps its token.
func (s *Service) Logout(ctx context.Context) error {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return err
	}
	if ws.pinned.Load() {
		s.logger.Info("logout ignored on service terminal", zap.String("terminal", ws.ID))
		return nil
	}
	return ws.Identity.Logout(ctx)
}

// Units returns the unit snapshot, loading it from the snapshot cache or the
// API when the workspace has none yet. refresh forces a fetch.
func (s *Service) Units(ctx context.Context, refresh bool) ([]domain.Unit, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return nil, err
	}
	return ensure(ctx, ws.Units.Collection, refresh, s.logger)
}

// ensure returns the collection's items, warming or fetching an empty one.
func ensure[T any](ctx context.Context, c *entities.Collection[T], force bool, logger *zap.Logger) ([]T, error) {
	if !force {
		if items := c.Items(); len(items) > 0 {
			return items, nil
		}
		warmed, err := c.Warm(ctx)
		if err != nil {
			logger.Warn("snapshot cache read failed", zap.String("resource", c.Resource()), zap.Error(err))
		}
		if warmed {
			return c.Items(), nil
		}
	}
	return c.FetchAll(ctx)
}

type CartView struct {
	Kind        string            `json:"kind"`
	Lines       []domain.LineItem `json:"lines"`
	TotalAmount int64             `json:"total_amount"`
	TotalItems  int               `json:"total_items"`
	// Submitting is set while the cart is being posted; the UI disables its
	// submit button on it.
	Submitting bool `json:"submitting"`
}

func (ws *Workspace) viewOf(c *cart.Cart) CartView {
	return CartView{
		Kind:        c.Kind(),
		Lines:       c.Lines(),
		TotalAmount: c.TotalAmount(),
		TotalItems:  c.TotalItems(),
		Submitting:  ws.Submitter.Submitting(c),
	}
}

func (ws *Workspace) cartOf(kind string) (*cart.Cart, error) {
	switch kind {
	case domain.CartKindSales:
		return ws.Sales, nil
	case domain.CartKindPurchase:
		return ws.Purchases, nil
	default:
		return nil, domain.Validationf("unknown cart kind %q", kind)
	}
}

func (s *Service) Cart(ctx context.Context, kind string) (CartView, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return CartView{}, err
	}
	c, err := ws.cartOf(kind)
	if err != nil {
		return CartView{}, err
	}
	return ws.viewOf(c), nil
}

type AddLineRequest struct {
	UnitID int64 `json:"unit_id"`
	Qty    int   `json:"qty"`
	Price  int64 `json:"price"`
}

// AddLine resolves the unit from the snapshot and adds it to the cart. Qty
// defaults to 1.
func (s *Service) AddLine(ctx context.Context, kind string, req AddLineRequest) (CartView, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return CartView{}, err
	}
	c, err := ws.cartOf(kind)
	if err != nil {
		return CartView{}, err
	}
	if req.UnitID <= 0 {
		return CartView{}, domain.Validationf("unit_id is required")
	}
	if req.Qty == 0 {
		req.Qty = 1
	}

	unit, err := ws.Units.Lookup(ctx, req.UnitID)
	if err != nil {
		return CartView{}, err
	}
	if err := c.AddLine(unit, req.Qty, req.Price); err != nil {
		return CartView{}, err
	}
	return ws.viewOf(c), nil
}

func (s *Service) SetLineQty(ctx context.Context, kind string, unitID int64, qty int) (CartView, error) {
	return s.withCart(ctx, kind, func(c *cart.Cart) error {
		return c.SetLineQty(unitID, qty)
	})
}

func (s *Service) SetLineCost(ctx context.Context, kind string, unitID int64, cost int64) (CartView, error) {
	return s.withCart(ctx, kind, func(c *cart.Cart) error {
		return c.SetLineCost(unitID, cost)
	})
}

func (s *Service) RemoveLine(ctx context.Context, kind string, unitID int64) (CartView, error) {
	return s.withCart(ctx, kind, func(c *cart.Cart) error {
		c.RemoveLine(unitID)
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context, kind string) (CartView, error) {
	return s.withCart(ctx, kind, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

func (s *Service) withCart(ctx context.Context, kind string, apply func(*cart.Cart) error) (CartView, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return CartView{}, err
	}
	c, err := ws.cartOf(kind)
	if err != nil {
		return CartView{}, err
	}
	if err := apply(c); err != nil {
		return CartView{}, err
	}
	return ws.viewOf(c), nil
}

func (s *Service) SubmitSale(ctx context.Context) (checkout.Receipt, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return checkout.Receipt{}, err
	}
	return ws.Submitter.SubmitSale(ctx, ws.Sales)
}

type PurchaseSubmitRequest struct {
	Vendor string `json:"vendor"`
	// Direct posts detail rows without a parent order.
	Direct bool `json:"direct"`
}

func (s *Service) SubmitPurchase(ctx context.Context, req PurchaseSubmitRequest) (checkout.Receipt, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return checkout.Receipt{}, err
	}
	meta := checkout.PurchaseMeta{Vendor: req.Vendor}
	if req.Direct {
		return ws.Submitter.SubmitPurchaseDirect(ctx, ws.Purchases, meta)
	}
	return ws.Submitter.SubmitPurchase(ctx, ws.Purchases, meta)
}

type Dashboard struct {
	Stats         analytics.SalesStats     `json:"stats"`
	TopProducts   []analytics.ProductSales `json:"top_products"`
	LowStock      []analytics.StockAlert   `json:"low_stock"`
	LatestOrderID int64                    `json:"latest_order_id,omitempty"`
	GeneratedAt   time.Time                `json:"generated_at"`
}

// Dashboard refreshes sales details and units and derives the summary. The
// latest order id is best effort.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return Dashboard{}, err
	}

	details, err := ws.SalesDetails.FetchAll(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load sales details: %w", err)
	}
	units, err := ws.Units.FetchAll(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load units: %w", err)
	}

	dash := Dashboard{
		Stats:       analytics.ComputeSalesStats(details),
		TopProducts: analytics.TopProducts(details, analytics.DefaultTopN),
		LowStock:    analytics.LowStockUnits(units, analytics.DefaultLowStockMax),
		GeneratedAt: s.opts.Now().UTC(),
	}
	latest, err := ws.SalesOrders.LatestID(ctx)
	switch {
	case err == nil:
		dash.LatestOrderID = latest
	case errors.Is(err, domain.ErrAuthenticationExpired):
		return Dashboard{}, err
	default:
		s.logger.Warn("latest sales order unavailable", zap.String("terminal", ws.ID), zap.Error(err))
	}
	return dash, nil
}

type SafetyStockView struct {
	Items      []domain.SafetyStockItem `json:"items"`
	TotalItems int                      `json:"total_items"`
	Loading    bool                     `json:"loading"`
}

// SafetyStock serves the last list, fetching only when none was loaded yet;
// the refresher keeps it current.
func (s *Service) SafetyStock(ctx context.Context, force bool) (SafetyStockView, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return SafetyStockView{}, err
	}
	items, err := ensure(ctx, ws.SafetyStock.Collection, force, s.logger)
	if err != nil {
		return SafetyStockView{}, err
	}
	return SafetyStockView{Items: items, TotalItems: ws.SafetyStock.TotalItems(), Loading: ws.SafetyStock.Loading()}, nil
}

func (s *Service) ReorderSuggestions(ctx context.Context) ([]analytics.ReorderSuggestion, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return nil, err
	}
	items, err := ensure(ctx, ws.SafetyStock.Collection, false, s.logger)
	if err != nil {
		return nil, err
	}
	return analytics.ReorderSuggestions(items), nil
}

func (s *Service) MoneyFlowSummary(ctx context.Context) (analytics.MoneyFlowSummary, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return analytics.MoneyFlowSummary{}, err
	}
	flows, err := ws.MoneyFlows.FetchAll(ctx)
	if err != nil {
		return analytics.MoneyFlowSummary{}, err
	}
	return analytics.SummarizeMoneyFlows(flows), nil
}

func (s *Service) RecordMoneyFlow(ctx context.Context, req domain.MoneyFlowRequest) (analytics.MoneyFlowSummary, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return analytics.MoneyFlowSummary{}, err
	}
	if err := ws.MoneyFlows.Record(ctx, req); err != nil {
		return analytics.MoneyFlowSummary{}, err
	}
	return analytics.SummarizeMoneyFlows(ws.MoneyFlows.Items()), nil
}

type DeliveryBoard struct {
	Pending   []domain.Delivery `json:"pending"`
	Completed []domain.Delivery `json:"completed"`
}

func (s *Service) Deliveries(ctx context.Context) (DeliveryBoard, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return DeliveryBoard{}, err
	}
	if _, err := ws.Deliveries.FetchAll(ctx); err != nil {
		return DeliveryBoard{}, err
	}
	return DeliveryBoard{Pending: ws.Deliveries.Pending(), Completed: ws.Deliveries.Completed()}, nil
}

func (s *Service) UpdateDeliveryStatus(ctx context.Context, id int64, status string) (DeliveryBoard, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return DeliveryBoard{}, err
	}
	if err := ws.Deliveries.UpdateStatus(ctx, id, status); err != nil {
		return DeliveryBoard{}, err
	}
	return DeliveryBoard{Pending: ws.Deliveries.Pending(), Completed: ws.Deliveries.Completed()}, nil
}

type TransferBoard struct {
	MyRequests       []domain.TransferStock `json:"my_requests"`
	IncomingRequests []domain.TransferStock `json:"incoming_requests"`
	PendingIncoming  int                    `json:"pending_incoming"`
}

func transferBoard(t *entities.Transfers) TransferBoard {
	return TransferBoard{
		MyRequests:       t.MyRequests(),
		IncomingRequests: t.IncomingRequests(),
		PendingIncoming:  len(t.PendingIncoming()),
	}
}

func (s *Service) Transfers(ctx context.Context) (TransferBoard, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return TransferBoard{}, err
	}
	if _, err := ws.Transfers.FetchAll(ctx); err != nil {
		return TransferBoard{}, err
	}
	return transferBoard(ws.Transfers), nil
}

func (s *Service) RequestTransfer(ctx context.Context, req domain.TransferStockRequest) (TransferBoard, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return TransferBoard{}, err
	}
	if err := ws.Transfers.Request(ctx, req); err != nil {
		return TransferBoard{}, err
	}
	return transferBoard(ws.Transfers), nil
}

func (s *Service) UpdateTransferStatus(ctx context.Context, id int64, status string) (TransferBoard, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return TransferBoard{}, err
	}
	if err := ws.Transfers.UpdateStatus(ctx, id, status); err != nil {
		return TransferBoard{}, err
	}
	return transferBoard(ws.Transfers), nil
}

// Submissions lists the terminal's journaled submissions, newest first.
func (s *Service) Submissions(ctx context.Context, limit int, incompleteOnly bool) ([]domain.Submission, error) {
	ws, err := s.Workspace(ctx)
	if err != nil {
		return nil, err
	}
	if s.opts.Journal == nil {
		return []domain.Submission{}, nil
	}
	if incompleteOnly {
		return s.opts.Journal.ListIncomplete(ctx, ws.ID)
	}
	return s.opts.Journal.List(ctx, ws.ID, store.NormalizeLimit(limit))
}
