package cart_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"

	"udpadijaya/posagent/internal/cart"
	"udpadijaya/posagent/internal/domain"
)

type cartTestContext struct {
	cart  *cart.Cart
	units map[int64]domain.Unit
	err   error
}

func (c *cartTestContext) reset() {
	c.cart = nil
	c.units = map[int64]domain.Unit{}
	c.err = nil
}

func (c *cartTestContext) anEmptySalesCart() error {
	c.cart = cart.NewSales(nil)
	return nil
}

func (c *cartTestContext) anEmptyPurchaseList() error {
	c.cart = cart.NewPurchase()
	return nil
}

func (c *cartTestContext) unitPricedWithStock(id int64, price int64, stock int) error {
	c.units[id] = domain.Unit{ID: id, UnitName: fmt.Sprintf("unit-%d", id), Price: price, Stock: stock}
	return nil
}

func (c *cartTestContext) unitCosting(id int64, cost int64) error {
	c.units[id] = domain.Unit{ID: id, UnitName: fmt.Sprintf("unit-%d", id), CostPrice: cost}
	return nil
}

func (c *cartTestContext) iAddOfUnit(qty int, id int64) error {
	unit, ok := c.units[id]
	if !ok {
		return fmt.Errorf("unit %d not declared", id)
	}
	c.err = c.cart.AddLine(unit, qty, 0)
	return nil
}

func (c *cartTestContext) iSetTheQuantityOfUnitTo(id int64, qty int) error {
	c.err = c.cart.SetLineQty(id, qty)
	return nil
}

func (c *cartTestContext) iRemoveUnit(id int64) error {
	c.cart.RemoveLine(id)
	return nil
}

func (c *cartTestContext) iClearTheCart() error {
	c.cart.Clear()
	return nil
}

func (c *cartTestContext) theTotalAmountIs(want int64) error {
	if got := c.cart.TotalAmount(); got != want {
		return fmt.Errorf("expected total amount %d, got %d", want, got)
	}
	return nil
}

func (c *cartTestContext) theTotalItemsIs(want int) error {
	if got := c.cart.TotalItems(); got != want {
		return fmt.Errorf("expected total items %d, got %d", want, got)
	}
	return nil
}

func (c *cartTestContext) theCartHasLines(want int) error {
	if got := c.cart.Len(); got != want {
		return fmt.Errorf("expected %d lines, got %d", want, got)
	}
	return nil
}

func (c *cartTestContext) unitHasQuantity(id int64, want int) error {
	line, ok := c.cart.Line(id)
	if !ok {
		return fmt.Errorf("no line for unit %d", id)
	}
	if line.Qty != want {
		return fmt.Errorf("expected quantity %d for unit %d, got %d", want, id, line.Qty)
	}
	return nil
}

func (c *cartTestContext) theOperationFailsWithInsufficientStock() error {
	if !errors.Is(c.err, domain.ErrInsufficientStock) {
		return fmt.Errorf("expected insufficient stock, got %v", c.err)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &cartTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^an empty sales cart$`, tc.anEmptySalesCart)
	ctx.Step(`^an empty purchase list$`, tc.anEmptyPurchaseList)
	ctx.Step(`^unit (\d+) priced (\d+) with stock (\d+)$`, tc.unitPricedWithStock)
	ctx.Step(`^unit (\d+) costing (\d+)$`, tc.unitCosting)

	ctx.Step(`^I add (\d+) of unit (\d+)$`, tc.iAddOfUnit)
	ctx.Step(`^I set the quantity of unit (\d+) to (-?\d+)$`, tc.iSetTheQuantityOfUnitTo)
	ctx.Step(`^I remove unit (\d+)$`, tc.iRemoveUnit)
	ctx.Step(`^I clear the cart$`, tc.iClearTheCart)

	ctx.Step(`^the total amount is (\d+)$`, tc.theTotalAmountIs)
	ctx.Step(`^the total items is (\d+)$`, tc.theTotalItemsIs)
	ctx.Step(`^the cart has (\d+) lines?$`, tc.theCartHasLines)
	ctx.Step(`^unit (\d+) has quantity (\d+)$`, tc.unitHasQuantity)
	ctx.Step(`^the operation fails with insufficient stock$`, tc.theOperationFailsWithInsufficientStock)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/cart.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
