package entities

import (
	"encoding/json"
	"fmt"

	"udpadijaya/posagent/internal/domain"
)

type safetyEnvelope struct {
	Success bool                     `json:"success"`
	Data    []domain.SafetyStockItem `json:"data"`
	Message string                   `json:"message"`
}

// SafetyStock holds the forecast-backed safety stock list. The endpoint
// reports failures in-band with success=false and a 200 status.
type SafetyStock struct {
	*Collection[domain.SafetyStockItem]
}

func NewSafetyStock(d Deps) *SafetyStock {
	return &SafetyStock{newCollection(d, resourceSpec[domain.SafetyStockItem]{
		path:   "safety-stock",
		id:     func(s domain.SafetyStockItem) int64 { return s.ID },
		decode: decodeSafetyStock,
	})}
}

func decodeSafetyStock(raw []byte) ([]domain.SafetyStockItem, error) {
	var env safetyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode safety stock: %w", err)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "safety stock request was not successful"
		}
		return nil, fmt.Errorf("%w: safety-stock: %s", domain.ErrRemoteRequestFailed, msg)
	}
	return env.Data, nil
}

// TotalItems counts entries with a real id.
func (s *SafetyStock) TotalItems() int {
	total := 0
	for _, item := range s.Items() {
		if item.ID != 0 {
			total++
		}
	}
	return total
}
