package entities

import (
	"context"
	"net/http"
	"strings"

	"udpadijaya/posagent/internal/domain"
)

type Branches struct {
	*Collection[domain.Branch]
}

func NewBranches(d Deps) *Branches {
	return &Branches{newCollection(d, resourceSpec[domain.Branch]{
		path:    "branch",
		altKeys: []string{"branches"},
		id:      func(b domain.Branch) int64 { return b.ID },
	})}
}

type Customers struct {
	*Collection[domain.Customer]
}

func NewCustomers(d Deps) *Customers {
	return &Customers{newCollection(d, resourceSpec[domain.Customer]{
		path: "customer",
		id:   func(c domain.Customer) int64 { return c.ID },
	})}
}

type Products struct {
	*Collection[domain.Product]
}

func NewProducts(d Deps) *Products {
	return &Products{newCollection(d, resourceSpec[domain.Product]{
		path: "product",
		id:   func(p domain.Product) int64 { return p.ID },
	})}
}

type ProductTypes struct {
	*Collection[domain.ProductType]
}

func NewProductTypes(d Deps) *ProductTypes {
	return &ProductTypes{newCollection(d, resourceSpec[domain.ProductType]{
		path: "product-types",
		id:   func(p domain.ProductType) int64 { return p.ID },
	})}
}

// Units is the reference snapshot every sales cart validates against.
type Units struct {
	*Collection[domain.Unit]
}

func NewUnits(d Deps) *Units {
	return &Units{newCollection(d, resourceSpec[domain.Unit]{
		path: "unit",
		id:   func(u domain.Unit) int64 { return u.ID },
	})}
}

func (u *Units) StockOf(unitID int64) (int, bool) {
	unit, ok := u.Find(unitID)
	if !ok {
		return 0, false
	}
	return unit.Stock, true
}

// Lookup returns the unit from the snapshot, fetching the list once when the
// id is not in it yet.
func (u *Units) Lookup(ctx context.Context, unitID int64) (domain.Unit, error) {
	if unit, ok := u.Find(unitID); ok {
		return unit, nil
	}
	if _, err := u.FetchAll(ctx); err != nil {
		return domain.Unit{}, err
	}
	if unit, ok := u.Find(unitID); ok {
		return unit, nil
	}
	return domain.Unit{}, domain.Validationf("unit %d is not in the unit list", unitID)
}

type SalesOrders struct {
	*Collection[domain.SalesOrder]
}

func NewSalesOrders(d Deps) *SalesOrders {
	id := func(o domain.SalesOrder) int64 { return o.ID }
	return &SalesOrders{newCollection(d, resourceSpec[domain.SalesOrder]{
		path:  "sales-order",
		id:    id,
		order: newestFirst(func(o domain.SalesOrder) string { return o.Date }, id),
	})}
}

// LatestID asks the API for the newest sales order.
func (s *SalesOrders) LatestID(ctx context.Context) (int64, error) {
	var latest domain.SalesOrder
	if err := s.call(ctx, http.MethodGet, "sales-order/latest", nil, &latest); err != nil {
		return 0, err
	}
	if latest.ID == 0 {
		return 0, domain.ErrNotFound
	}
	return latest.ID, nil
}

// LatestIDFromCache is the id of the newest order in the local list.
func (s *SalesOrders) LatestIDFromCache() (int64, bool) {
	items := s.Items()
	if len(items) == 0 {
		return 0, false
	}
	return items[0].ID, true
}

type SalesDetails struct {
	*Collection[domain.SalesOrderDetail]
}

func NewSalesDetails(d Deps) *SalesDetails {
	id := func(o domain.SalesOrderDetail) int64 { return o.ID }
	return &SalesDetails{newCollection(d, resourceSpec[domain.SalesOrderDetail]{
		path:  "sales-order-detail",
		id:    id,
		order: idDesc(id),
	})}
}

type PurchaseOrders struct {
	*Collection[domain.PurchaseOrder]
}

func NewPurchaseOrders(d Deps) *PurchaseOrders {
	id := func(o domain.PurchaseOrder) int64 { return o.ID }
	return &PurchaseOrders{newCollection(d, resourceSpec[domain.PurchaseOrder]{
		path:  "purchase-order",
		id:    id,
		order: newestFirst(func(o domain.PurchaseOrder) string { return o.Date }, id),
	})}
}

type PurchaseDetails struct {
	*Collection[domain.PurchaseOrderDetail]
}

func NewPurchaseDetails(d Deps) *PurchaseDetails {
	id := func(o domain.PurchaseOrderDetail) int64 { return o.ID }
	return &PurchaseDetails{newCollection(d, resourceSpec[domain.PurchaseOrderDetail]{
		path:  "purchase-order-detail",
		id:    id,
		order: idDesc(id),
	})}
}

type Deliveries struct {
	*Collection[domain.Delivery]
}

func NewDeliveries(d Deps) *Deliveries {
	return &Deliveries{newCollection(d, resourceSpec[domain.Delivery]{
		path: "delivery",
		id:   func(o domain.Delivery) int64 { return o.ID },
	})}
}

func (s *Deliveries) UpdateStatus(ctx context.Context, id int64, status string) error {
	if status != domain.DeliveryStatusPending && status != domain.DeliveryStatusCompleted {
		return domain.Validationf("unknown delivery status %q", status)
	}
	return s.Update(ctx, id, map[string]string{"status": status}, nil)
}

func (s *Deliveries) Pending() []domain.Delivery {
	return s.withStatus(domain.DeliveryStatusPending)
}

func (s *Deliveries) Completed() []domain.Delivery {
	return s.withStatus(domain.DeliveryStatusCompleted)
}

func (s *Deliveries) withStatus(status string) []domain.Delivery {
	out := []domain.Delivery{}
	for _, d := range s.Items() {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out
}

// LatestSalesOrder picks the most recently created order, the one a new
// delivery is usually attached to.
func LatestSalesOrder(orders []domain.SalesOrder) (domain.SalesOrder, bool) {
	if len(orders) == 0 {
		return domain.SalesOrder{}, false
	}
	byCreated := newestFirst(func(o domain.SalesOrder) string { return o.CreatedAt }, func(o domain.SalesOrder) int64 { return o.ID })
	latest := orders[0]
	for _, o := range orders[1:] {
		if byCreated(o, latest) < 0 {
			latest = o
		}
	}
	return latest, true
}

type MoneyFlows struct {
	*Collection[domain.MoneyFlow]
}

func NewMoneyFlows(d Deps) *MoneyFlows {
	return &MoneyFlows{newCollection(d, resourceSpec[domain.MoneyFlow]{
		path: "mny",
		id:   func(m domain.MoneyFlow) int64 { return m.ID },
	})}
}

func (s *MoneyFlows) Record(ctx context.Context, req domain.MoneyFlowRequest) error {
	if strings.TrimSpace(req.FlowTypeID) == "" {
		return domain.Validationf("flow type is required")
	}
	if req.QtyMoney <= 0 {
		return domain.Validationf("amount must be positive, got %d", req.QtyMoney)
	}
	return s.Create(ctx, req, nil)
}
