package analytics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"udpadijaya/posagent/internal/domain"
)

func TestClassifyStockScenarios(t *testing.T) {
	require.Equal(t, domain.StockStatusOutOfStock, ClassifyStock(0, 5))
	require.Equal(t, domain.StockStatusLow, ClassifyStock(6, 5))
	require.Equal(t, domain.StockStatusLow, ClassifyStock(4, 5))
	require.Equal(t, domain.StockStatusNormal, ClassifyStock(10, 5))
}

func TestClassifyStockWithoutMinimum(t *testing.T) {
	require.Equal(t, domain.StockStatusLow, ClassifyStock(3, 0))
	require.Equal(t, domain.StockStatusOutOfStock, ClassifyStock(0, 0))
	require.Equal(t, 100.0, StockPercentage(50, 0))
}

func TestTopProductsGroupsByName(t *testing.T) {
	details := []domain.SalesOrderDetail{
		{SalesOrderID: 1, ProductNameType: "Indomie", ProductName: "Goreng", Qty: 3, TotalPrice: 10500},
		{SalesOrderID: 1, ProductNameType: "Aqua", ProductName: "600ml", Qty: 1, TotalPrice: 4000},
		{SalesOrderID: 2, ProductNameType: "Indomie", ProductName: "Goreng", Qty: 2, TotalPrice: 7000},
		{SalesOrderID: 2, ProductNameType: "", Qty: 50, TotalPrice: 1},
		{SalesOrderID: 3, ProductNameType: "Teh", ProductName: "Botol", Qty: 4, TotalPrice: 20000},
	}

	top := TopProducts(details, 2)
	require.Len(t, top, 2)
	require.Equal(t, ProductSales{ProductName: "Indomie", ProductType: "Goreng", TotalQty: 5, TotalRevenue: 17500, OrderCount: 2}, top[0])
	require.Equal(t, "Teh", top[1].ProductName)

	require.Len(t, TopProducts(details, 0), 3)
	require.Empty(t, TopProducts(nil, 5))
}

func TestComputeSalesStats(t *testing.T) {
	stats := ComputeSalesStats([]domain.SalesOrderDetail{
		{SalesOrderID: 1, Qty: 2, TotalPrice: 3000},
		{SalesOrderID: 1, Qty: 1, TotalPrice: 1000},
		{SalesOrderID: 2, Qty: 5, TotalPrice: 2000},
	})
	require.Equal(t, SalesStats{TotalOrders: 2, TotalRevenue: 6000, TotalProducts: 8, AverageOrderValue: 3000}, stats)
	require.Equal(t, SalesStats{}, ComputeSalesStats(nil))
}

func TestLowStockUnitsOrdering(t *testing.T) {
	units := []domain.Unit{
		{ID: 1, Stock: 10, MinStock: 5},
		{ID: 2, Stock: 4, MinStock: 5},
		{ID: 3, Stock: 0, MinStock: 5},
		{ID: 4, Stock: 6, MinStock: 5},
		{ID: 5, Stock: 1, MinStock: 0},
		{ID: 6, Stock: 1, MinStock: 10},
		{ID: 7, Stock: 0, MinStock: 2},
	}

	alerts := LowStockUnits(units, 0)
	ids := make([]int64, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.ID)
	}
	require.Equal(t, []int64{3, 7, 6, 2, 4}, ids)
	require.Equal(t, domain.StockStatusOutOfStock, alerts[0].StockStatus)
	require.Equal(t, 80, alerts[3].StockPercentage)
	require.True(t, alerts[4].IsLowStock)
	require.Len(t, LowStockUnits(units, 2), 2)
}

func TestLowStockUsesRoundedPercentage(t *testing.T) {
	alerts := LowStockUnits([]domain.Unit{{ID: 1, Stock: 1201, MinStock: 1000}, {ID: 2, Stock: 1206, MinStock: 1000}}, 5)
	require.Len(t, alerts, 1)
	require.Equal(t, 120, alerts[0].StockPercentage)
	require.Equal(t, domain.StockStatusNormal, alerts[0].StockStatus)
}

func TestSummarizeMoneyFlows(t *testing.T) {
	in := &domain.FlowType{NameFlow: domain.FlowIncome}
	out := &domain.FlowType{NameFlow: domain.FlowExpense}
	flows := []domain.MoneyFlow{
		{ID: 1, QtyMoney: 100000, FlowType: in, Date: "2025-01-01"},
		{ID: 2, QtyMoney: 30000, FlowType: out, Date: "2025-01-03"},
		{ID: 3, QtyMoney: 5000, FlowType: nil, Date: "2025-01-02"},
		{ID: 4, QtyMoney: 20000, FlowType: in, Date: "2025-01-06"},
		{ID: 5, QtyMoney: 1000, FlowType: out, Date: "2025-01-05"},
		{ID: 6, QtyMoney: 1000, FlowType: out, Date: "2025-01-04"},
	}

	summary := SummarizeMoneyFlows(flows)
	require.Equal(t, int64(120000), summary.TotalIncome)
	require.Equal(t, int64(32000), summary.TotalExpense)
	require.Equal(t, int64(88000), summary.Balance)
	require.Len(t, summary.Recent, 5)
	require.Equal(t, int64(4), summary.Recent[0].ID)
	require.Equal(t, int64(3), summary.Recent[4].ID)
}

func TestReorderSuggestions(t *testing.T) {
	var forecast domain.SafetyStockPrediction
	forecast.Recommendation = &struct {
		StockToAdd     int    `json:"stock_to_add"`
		SuggestedOrder int    `json:"suggested_order"`
		Priority       string `json:"priority,omitempty"`
	}{StockToAdd: 12, SuggestedOrder: 15, Priority: "medium"}

	items := []domain.SafetyStockItem{
		{ID: 1, ProductNameType: "Gula", CurrentStock: 3, MinStock: 5, Price: 1000},
		{ID: 2, ProductNameType: "Kopi", CurrentStock: 0, MinStock: 4, Price: 2000},
		{ID: 3, ProductNameType: "Teh", CurrentStock: 20, MinStock: 5},
		{ID: 4, ProductNameType: "Susu", CurrentStock: 9, MinStock: 5, Price: 500, Prediction: &forecast},
		{ID: 0, ProductNameType: "ghost", CurrentStock: 0, MinStock: 5},
	}

	got := ReorderSuggestions(items)
	require.Len(t, got, 3)

	require.Equal(t, int64(2), got[0].UnitID)
	require.Equal(t, "HIGH", got[0].Priority)
	require.Equal(t, 8, got[0].RecommendedQty)
	require.Equal(t, int64(16000), got[0].EstimatedValue)

	require.Equal(t, int64(4), got[1].UnitID)
	require.Equal(t, "MEDIUM", got[1].Priority)
	require.Equal(t, 15, got[1].RecommendedQty)
	require.True(t, got[1].FromForecast)

	require.Equal(t, int64(1), got[2].UnitID)
	require.Equal(t, 7, got[2].RecommendedQty)
	require.False(t, got[2].FromForecast)
}
