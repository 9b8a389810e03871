// Package cart holds the line items of a sale or a purchase before they are
// submitted. Stock checks run against the last-fetched unit snapshot only.
package cart

import (
	"strings"
	"sync"

	"udpadijaya/posagent/internal/domain"
)

// StockLookup resolves a unit's stock from the last fetched snapshot.
type StockLookup interface {
	StockOf(unitID int64) (int, bool)
}

type Cart struct {
	kind  string
	stock StockLookup

	mu    sync.Mutex
	lines []domain.LineItem
}

func NewSales(stock StockLookup) *Cart {
	return &Cart{kind: domain.CartKindSales, stock: stock}
}

func NewPurchase() *Cart {
	return &Cart{kind: domain.CartKindPurchase}
}

func (c *Cart) Kind() string {
	return c.kind
}

func (c *Cart) isSales() bool {
	return c.kind == domain.CartKindSales
}

// AddLine merges qty into the line for unit.ID or appends a new one. A sales
// cart prices the line at unit.Price and rejects a merged quantity above
// unit.Stock. A purchase cart prices at overridePrice when positive, else at
// unit.CostPrice, and a merge re-prices the existing line.
func (c *Cart) AddLine(unit domain.Unit, qty int, overridePrice int64) error {
	if qty < 1 {
		return domain.Validationf("quantity must be at least 1, got %d", qty)
	}
	if overridePrice < 0 {
		return domain.Validationf("price must not be negative, got %d", overridePrice)
	}

	price := unit.Price
	if !c.isSales() {
		price = unit.CostPrice
		if overridePrice > 0 {
			price = overridePrice
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(unit.ID)
	merged := qty
	if idx >= 0 {
		merged += c.lines[idx].Qty
	}
	if c.isSales() && merged > unit.Stock {
		return &domain.StockError{UnitID: unit.ID, Requested: merged, Available: unit.Stock}
	}

	if idx >= 0 {
		line := &c.lines[idx]
		line.Qty = merged
		line.UnitPrice = price
		line.AvailableStock = unit.Stock
		return nil
	}

	c.lines = append(c.lines, domain.LineItem{
		UnitID:         unit.ID,
		DisplayName:    displayName(unit),
		ProductName:    unit.ProductName,
		ProductType:    unit.ProductNameType,
		UnitPrice:      price,
		AvailableStock: unit.Stock,
		Qty:            qty,
	})
	return nil
}

// SetLineQty overwrites a line's quantity; qty <= 0 removes the line. Sales
// carts re-check the quantity against the stock snapshot, falling back to the
// stock captured when the line was added. A missing line is a no-op.
func (c *Cart) SetLineQty(unitID int64, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(unitID)
	if idx < 0 {
		return nil
	}
	if qty <= 0 {
		c.removeAt(idx)
		return nil
	}

	line := &c.lines[idx]
	if c.isSales() {
		available := line.AvailableStock
		if c.stock != nil {
			if stock, ok := c.stock.StockOf(unitID); ok {
				available = stock
			}
		}
		if qty > available {
			return &domain.StockError{UnitID: unitID, Requested: qty, Available: available}
		}
		line.AvailableStock = available
	}
	line.Qty = qty
	return nil
}

// SetLineCost re-prices a purchase line without touching its quantity.
func (c *Cart) SetLineCost(unitID int64, cost int64) error {
	if c.isSales() {
		return domain.Validationf("line cost can only be set on a purchase list")
	}
	if cost < 0 {
		return domain.Validationf("cost must not be negative, got %d", cost)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexOf(unitID); idx >= 0 {
		c.lines[idx].UnitPrice = cost
	}
	return nil
}

func (c *Cart) RemoveLine(unitID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexOf(unitID); idx >= 0 {
		c.removeAt(idx)
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

func (c *Cart) TotalAmount() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, line := range c.lines {
		total += line.Subtotal()
	}
	return total
}

func (c *Cart) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, line := range c.lines {
		total += line.Qty
	}
	return total
}

// Lines returns a copy of the current lines in insertion order.
func (c *Cart) Lines() []domain.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.LineItem, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func (c *Cart) Line(unitID int64) (domain.LineItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.indexOf(unitID); idx >= 0 {
		return c.lines[idx], true
	}
	return domain.LineItem{}, false
}

func (c *Cart) indexOf(unitID int64) int {
	for i := range c.lines {
		if c.lines[i].UnitID == unitID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
}

func displayName(unit domain.Unit) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{unit.ProductName, unit.ProductNameType, unit.UnitName} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}
