package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution records one two-leg arbitrage attempt and its outcome.
type Execution struct {
	ID              string          `json:"id"`
	Pair            Pair            `json:"pair"`
	BuyVenue        string          `json:"buy_venue"`
	SellVenue       string          `json:"sell_venue"`
	Volume          decimal.Decimal `json:"volume"`           // quote-asset opportunity volume
	PredictedProfit decimal.Decimal `json:"predicted_profit"` // base asset
	State           ExecState       `json:"state"`
	Legs            []ExecutionLeg  `json:"legs"`
	Error           string          `json:"error,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// ExecutionLeg is one order of an Execution.
type ExecutionLeg struct {
	Leg        Leg             `json:"leg"`
	Venue      string          `json:"venue"`
	Price      decimal.Decimal `json:"price"`
	BaseVolume decimal.Decimal `json:"base_volume"`
	Status     LegStatus       `json:"status"`
	Error      string          `json:"error,omitempty"`
}

// LegByName returns the leg with the given name.
func (e *Execution) LegByName(leg Leg) (*ExecutionLeg, bool) {
	for i := range e.Legs {
		if e.Legs[i].Leg == leg {
			return &e.Legs[i], true
		}
	}
	return nil, false
}
