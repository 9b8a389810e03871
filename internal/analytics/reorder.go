package analytics

import (
	"sort"
	"strings"

	"udpadijaya/posagent/internal/domain"
)

type ReorderSuggestion struct {
	UnitID         int64  `json:"unit_id"`
	ProductName    string `json:"product_name"`
	Branch         string `json:"branch"`
	CurrentStock   int    `json:"current_stock"`
	MinStock       int    `json:"min_stock"`
	RecommendedQty int    `json:"recommended_qty"`
	Priority       string `json:"priority"`
	Forecast4Weeks int    `json:"forecast_4_weeks,omitempty"`
	EstimatedValue int64  `json:"estimated_value"`
	FromForecast   bool   `json:"from_forecast"`
}

// ReorderSuggestions turns the safety-stock list into a purchase worklist.
// A forecast recommendation wins; items without one fall back to topping up
// to twice the minimum once stock reaches the minimum. Ordered by priority,
// then quantity to add, then current stock.
func ReorderSuggestions(items []domain.SafetyStockItem) []ReorderSuggestion {
	suggestions := make([]ReorderSuggestion, 0, len(items))
	for _, item := range items {
		if item.ID == 0 {
			continue
		}

		s := ReorderSuggestion{
			UnitID:       item.ID,
			ProductName:  item.ProductNameType,
			Branch:       item.Branch,
			CurrentStock: item.CurrentStock,
			MinStock:     item.MinStock,
		}

		if rec := recommendationOf(item); rec != nil && rec.StockToAdd > 0 {
			s.RecommendedQty = rec.StockToAdd
			if rec.SuggestedOrder > s.RecommendedQty {
				s.RecommendedQty = rec.SuggestedOrder
			}
			s.Priority = normalizePriority(rec.Priority, item)
			s.FromForecast = true
		} else {
			if item.MinStock <= 0 || item.CurrentStock > item.MinStock {
				continue
			}
			s.RecommendedQty = item.MinStock*2 - item.CurrentStock
			s.Priority = normalizePriority("", item)
		}
		if item.Prediction != nil && item.Prediction.PredictedSales != nil {
			s.Forecast4Weeks = int(item.Prediction.PredictedSales.Total4Weeks + 0.5)
		}
		s.EstimatedValue = int64(s.RecommendedQty) * item.Price
		suggestions = append(suggestions, s)
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		ri, rj := priorityRank(suggestions[i].Priority), priorityRank(suggestions[j].Priority)
		if ri != rj {
			return ri < rj
		}
		if suggestions[i].RecommendedQty != suggestions[j].RecommendedQty {
			return suggestions[i].RecommendedQty > suggestions[j].RecommendedQty
		}
		return suggestions[i].CurrentStock < suggestions[j].CurrentStock
	})
	return suggestions
}

type recommendation struct {
	StockToAdd     int
	SuggestedOrder int
	Priority       string
}

func recommendationOf(item domain.SafetyStockItem) *recommendation {
	if item.Prediction == nil || item.Prediction.Recommendation == nil {
		return nil
	}
	r := item.Prediction.Recommendation
	return &recommendation{StockToAdd: r.StockToAdd, SuggestedOrder: r.SuggestedOrder, Priority: r.Priority}
}

// normalizePriority keeps the forecast's priority when it sent one and
// otherwise derives it from the stock classification.
func normalizePriority(priority string, item domain.SafetyStockItem) string {
	switch p := strings.ToUpper(strings.TrimSpace(priority)); p {
	case "HIGH", "MEDIUM", "LOW":
		return p
	}
	switch ClassifyStock(item.CurrentStock, item.MinStock) {
	case domain.StockStatusOutOfStock:
		return "HIGH"
	case domain.StockStatusLow:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

func priorityRank(priority string) int {
	switch priority {
	case "HIGH":
		return 1
	case "MEDIUM":
		return 2
	default:
		return 3
	}
}
