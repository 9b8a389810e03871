package cart

import (
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"udpadijaya/posagent/internal/domain"
)

type stockMap map[int64]int

func (m stockMap) StockOf(unitID int64) (int, bool) {
	stock, ok := m[unitID]
	return stock, ok
}

func unit(id int64, price int64, stock int) domain.Unit {
	return domain.Unit{ID: id, UnitName: "Pcs", ProductName: "Indomie", ProductNameType: "Goreng", Price: price, CostPrice: price * 8 / 10, Stock: stock}
}

func TestTotalsScenario(t *testing.T) {
	c := NewSales(nil)
	require.NoError(t, c.AddLine(unit(1, 1000, 10), 2, 0))
	require.NoError(t, c.AddLine(unit(2, 500, 10), 1, 0))

	require.Equal(t, int64(2500), c.TotalAmount())
	require.Equal(t, 3, c.TotalItems())
	require.Equal(t, "Indomie Goreng Pcs", c.Lines()[0].DisplayName)
}

func TestAddLineMergesQuantities(t *testing.T) {
	twice := NewSales(nil)
	require.NoError(t, twice.AddLine(unit(1, 1000, 5), 2, 0))
	require.NoError(t, twice.AddLine(unit(1, 1000, 5), 3, 0))

	once := NewSales(nil)
	require.NoError(t, once.AddLine(unit(1, 1000, 5), 5, 0))

	require.Equal(t, once.Lines(), twice.Lines())
	require.Equal(t, 1, twice.Len())
}

func TestAddLineChecksMergedQuantityAgainstStock(t *testing.T) {
	c := NewSales(nil)
	require.NoError(t, c.AddLine(unit(1, 1000, 5), 3, 0))

	err := c.AddLine(unit(1, 1000, 5), 3, 0)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	var stockErr *domain.StockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, 6, stockErr.Requested)
	require.Equal(t, 5, stockErr.Available)

	line, ok := c.Line(1)
	require.True(t, ok)
	require.Equal(t, 3, line.Qty)
}

func TestAddLineRejectsNonPositiveQty(t *testing.T) {
	c := NewSales(nil)
	require.ErrorIs(t, c.AddLine(unit(1, 1000, 5), 0, 0), domain.ErrValidation)
	require.ErrorIs(t, c.AddLine(unit(1, 1000, 5), -2, 0), domain.ErrValidation)
	require.Zero(t, c.Len())
}

func TestAddLineOnEmptyStockFails(t *testing.T) {
	c := NewSales(nil)
	require.ErrorIs(t, c.AddLine(unit(1, 1000, 0), 1, 0), domain.ErrInsufficientStock)
	require.Zero(t, c.Len())
}

func TestSalesCartIgnoresOverridePrice(t *testing.T) {
	c := NewSales(nil)
	require.NoError(t, c.AddLine(unit(1, 1000, 5), 1, 1))
	require.Equal(t, int64(1000), c.TotalAmount())
}

func TestPurchaseCartHasNoUpperBound(t *testing.T) {
	c := NewPurchase()
	require.NoError(t, c.AddLine(unit(1, 1000, 0), 500, 0))
	require.Equal(t, 500, c.TotalItems())
	require.Equal(t, int64(800*500), c.TotalAmount())
}

func TestPurchaseMergeOverwritesCost(t *testing.T) {
	c := NewPurchase()
	require.NoError(t, c.AddLine(unit(1, 1000, 0), 2, 700))
	require.NoError(t, c.AddLine(unit(1, 1000, 0), 1, 650))

	line, ok := c.Line(1)
	require.True(t, ok)
	require.Equal(t, 3, line.Qty)
	require.Equal(t, int64(650), line.UnitPrice)

	require.NoError(t, c.AddLine(unit(1, 1000, 0), 1, 0))
	line, _ = c.Line(1)
	require.Equal(t, int64(800), line.UnitPrice)
}

func TestSetLineQtyZeroRemovesLine(t *testing.T) {
	c := NewSales(nil)
	require.NoError(t, c.AddLine(unit(5, 1000, 5), 2, 0))
	require.NoError(t, c.AddLine(unit(6, 1000, 5), 1, 0))

	require.NoError(t, c.SetLineQty(5, 0))
	_, ok := c.Line(5)
	require.False(t, ok)
	require.Equal(t, 1, c.Len())

	require.NoError(t, c.SetLineQty(6, -1))
	require.Zero(t, c.Len())
}

func TestSetLineQtyUsesSnapshotStock(t *testing.T) {
	snapshot := stockMap{1: 10}
	c := NewSales(snapshot)
	require.NoError(t, c.AddLine(unit(1, 1000, 10), 1, 0))

	snapshot[1] = 3
	err := c.SetLineQty(1, 4)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	line, _ := c.Line(1)
	require.Equal(t, 1, line.Qty)

	require.NoError(t, c.SetLineQty(1, 3))
	line, _ = c.Line(1)
	require.Equal(t, 3, line.Qty)
	require.Equal(t, 3, line.AvailableStock)
}

func TestSetLineQtyFallsBackToCapturedStock(t *testing.T) {
	c := NewSales(stockMap{})
	require.NoError(t, c.AddLine(unit(1, 1000, 4), 1, 0))
	require.ErrorIs(t, c.SetLineQty(1, 5), domain.ErrInsufficientStock)
	require.NoError(t, c.SetLineQty(1, 4))
}

func TestSetLineQtyOnAbsentLineIsNoop(t *testing.T) {
	c := NewSales(nil)
	require.NoError(t, c.SetLineQty(42, 3))
	require.Zero(t, c.Len())
}

func TestSetLineCost(t *testing.T) {
	c := NewPurchase()
	require.NoError(t, c.AddLine(unit(1, 1000, 0), 4, 0))
	require.NoError(t, c.SetLineCost(1, 900))

	line, _ := c.Line(1)
	require.Equal(t, int64(900), line.UnitPrice)
	require.Equal(t, 4, line.Qty)

	require.ErrorIs(t, c.SetLineCost(1, -1), domain.ErrValidation)
	require.NoError(t, c.SetLineCost(99, 100))

	sales := NewSales(nil)
	require.ErrorIs(t, sales.SetLineCost(1, 100), domain.ErrValidation)
}

func TestRemoveLineIsIdempotent(t *testing.T) {
	c := NewSales(nil)
	require.NoError(t, c.AddLine(unit(1, 1000, 5), 1, 0))
	c.RemoveLine(99)
	require.Equal(t, 1, c.Len())
	c.RemoveLine(1)
	c.RemoveLine(1)
	require.Zero(t, c.Len())
}

func TestClearZeroesTotals(t *testing.T) {
	c := NewPurchase()
	require.NoError(t, c.AddLine(unit(1, 1000, 0), 3, 0))
	c.Clear()
	require.Zero(t, c.TotalAmount())
	require.Zero(t, c.TotalItems())
}

func TestTotalsHoldForRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := NewSales(nil)

	for i := 0; i < 500; i++ {
		id := int64(rng.Intn(6) + 1)
		switch rng.Intn(3) {
		case 0:
			_ = c.AddLine(unit(id, id*250, 20), rng.Intn(4)+1, 0)
		case 1:
			_ = c.SetLineQty(id, rng.Intn(8)-2)
		case 2:
			c.RemoveLine(id)
		}

		var amount int64
		items := 0
		seen := map[int64]bool{}
		for _, line := range c.Lines() {
			require.False(t, seen[line.UnitID], "duplicate line for unit %d", line.UnitID)
			seen[line.UnitID] = true
			require.Greater(t, line.Qty, 0)
			require.LessOrEqual(t, line.Qty, 20)
			amount += int64(line.Qty) * line.UnitPrice
			items += line.Qty
		}
		require.Equal(t, amount, c.TotalAmount())
		require.Equal(t, items, c.TotalItems())
	}
}

func TestConcurrentAddsRespectStock(t *testing.T) {
	c := NewSales(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.AddLine(unit(1, 1000, 20), 1, 0)
		}()
	}
	wg.Wait()
	require.Equal(t, 20, c.TotalItems())
}
