// Package analytics derives dashboard views from already fetched lists. Every
// function is pure.
package analytics

import (
	"math"
	"sort"
	"strings"

	"udpadijaya/posagent/internal/domain"
)

const (
	DefaultTopN        = 5
	LowStockThreshold  = 120.0
	RecentMoneyFlowsN  = 5
	DefaultLowStockMax = 5
)

type ProductSales struct {
	ProductName  string `json:"product_name"`
	ProductType  string `json:"product_type"`
	TotalQty     int    `json:"total_qty"`
	TotalRevenue int64  `json:"total_revenue"`
	OrderCount   int    `json:"order_count"`
}

// TopProducts groups sales detail rows by product name and returns the n
// best sellers by quantity. The API stores the product name in
// ProductNameType, so that is the grouping key.
func TopProducts(details []domain.SalesOrderDetail, n int) []ProductSales {
	if n <= 0 {
		n = DefaultTopN
	}

	index := map[string]int{}
	grouped := make([]ProductSales, 0, len(details))
	for _, d := range details {
		name := d.ProductNameType
		if name == "" {
			continue
		}
		if i, ok := index[name]; ok {
			grouped[i].TotalQty += d.Qty
			grouped[i].TotalRevenue += d.TotalPrice
			grouped[i].OrderCount++
			continue
		}
		index[name] = len(grouped)
		grouped = append(grouped, ProductSales{
			ProductName:  name,
			ProductType:  d.ProductName,
			TotalQty:     d.Qty,
			TotalRevenue: d.TotalPrice,
			OrderCount:   1,
		})
	}

	sort.SliceStable(grouped, func(i, j int) bool {
		return grouped[i].TotalQty > grouped[j].TotalQty
	})
	if len(grouped) > n {
		grouped = grouped[:n]
	}
	return grouped
}

type SalesStats struct {
	TotalOrders       int     `json:"total_orders"`
	TotalRevenue      int64   `json:"total_revenue"`
	TotalProducts     int     `json:"total_products"`
	AverageOrderValue float64 `json:"average_order_value"`
}

func ComputeSalesStats(details []domain.SalesOrderDetail) SalesStats {
	var stats SalesStats
	orders := map[int64]struct{}{}
	for _, d := range details {
		orders[d.SalesOrderID] = struct{}{}
		stats.TotalRevenue += d.TotalPrice
		stats.TotalProducts += d.Qty
	}
	stats.TotalOrders = len(orders)
	if stats.TotalOrders > 0 {
		stats.AverageOrderValue = float64(stats.TotalRevenue) / float64(stats.TotalOrders)
	}
	return stats
}

// StockPercentage is stock as a percentage of the minimum. A unit without a
// minimum counts as 100%.
func StockPercentage(stock int, minStock int) float64 {
	if minStock <= 0 {
		return 100
	}
	return float64(stock) / float64(minStock) * 100
}

// ClassifyStock applies the fixed thresholds: empty is OUT_OF_STOCK, at most
// 120% of the minimum is LOW, anything above is NORMAL.
func ClassifyStock(stock int, minStock int) string {
	if stock == 0 {
		return domain.StockStatusOutOfStock
	}
	if StockPercentage(stock, minStock) <= LowStockThreshold {
		return domain.StockStatusLow
	}
	return domain.StockStatusNormal
}

type StockAlert struct {
	domain.Unit
	StockPercentage int    `json:"stock_percentage"`
	StockStatus     string `json:"stock_status"`
	IsLowStock      bool   `json:"is_low_stock"`
}

// LowStockUnits lists units with a minimum stock whose rounded percentage is
// at most 120, out-of-stock units first and then the most critical.
func LowStockUnits(units []domain.Unit, n int) []StockAlert {
	if n <= 0 {
		n = DefaultLowStockMax
	}

	alerts := make([]StockAlert, 0, len(units))
	for _, u := range units {
		status := ClassifyStock(u.Stock, u.MinStock)
		pct := int(math.Round(StockPercentage(u.Stock, u.MinStock)))
		if u.MinStock <= 0 || float64(pct) > LowStockThreshold {
			continue
		}
		alerts = append(alerts, StockAlert{
			Unit:            u,
			StockPercentage: pct,
			StockStatus:     status,
			IsLowStock:      status != domain.StockStatusNormal,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		outI := alerts[i].StockStatus == domain.StockStatusOutOfStock
		outJ := alerts[j].StockStatus == domain.StockStatusOutOfStock
		if outI != outJ {
			return outI
		}
		return alerts[i].StockPercentage < alerts[j].StockPercentage
	})
	if len(alerts) > n {
		alerts = alerts[:n]
	}
	return alerts
}

type MoneyFlowSummary struct {
	TotalIncome  int64              `json:"total_income"`
	TotalExpense int64              `json:"total_expense"`
	Balance      int64              `json:"balance"`
	Recent       []domain.MoneyFlow `json:"recent"`
}

func SummarizeMoneyFlows(flows []domain.MoneyFlow) MoneyFlowSummary {
	var summary MoneyFlowSummary
	for _, f := range flows {
		if f.FlowType == nil {
			continue
		}
		switch strings.ToLower(f.FlowType.NameFlow) {
		case domain.FlowIncome:
			summary.TotalIncome += f.QtyMoney
		case domain.FlowExpense:
			summary.TotalExpense += f.QtyMoney
		}
	}
	summary.Balance = summary.TotalIncome - summary.TotalExpense

	recent := append([]domain.MoneyFlow(nil), flows...)
	sort.SliceStable(recent, func(i, j int) bool {
		ti, okI := domain.ParseDate(recent[i].Date)
		tj, okJ := domain.ParseDate(recent[j].Date)
		if okI != okJ {
			return okI
		}
		return ti.After(tj)
	})
	if len(recent) > RecentMoneyFlowsN {
		recent = recent[:RecentMoneyFlowsN]
	}
	summary.Recent = recent
	return summary
}
