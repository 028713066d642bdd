package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Redis channels and streams the engine publishes on.
const (
	ChannelOpportunities = "arb:opportunities"
	ChannelExecutions    = "arb:executions"
	StreamExecutions     = "executions"
)

// OpportunityEvent is published for every sized opportunity that clears the
// minimum trade volume of both venues.
type OpportunityEvent struct {
	Pair            Pair            `json:"pair"`
	BuyVenue        string          `json:"buy_venue"`
	SellVenue       string          `json:"sell_venue"`
	BuyPrice        decimal.Decimal `json:"buy_price"`
	SellPrice       decimal.Decimal `json:"sell_price"`
	BuyVolume       decimal.Decimal `json:"buy_volume"`
	SellVolume      decimal.Decimal `json:"sell_volume"`
	Volume          decimal.Decimal `json:"volume"`
	PredictedProfit decimal.Decimal `json:"predicted_profit"`
	DetectedAt      time.Time       `json:"detected_at"`
}

// WorkerStatus describes one scheduler worker.
type WorkerStatus struct {
	Base       string    `json:"base"`
	Running    bool      `json:"running"`
	Scans      int64     `json:"scans"`
	Executions int64     `json:"executions"`
	LastScanAt time.Time `json:"last_scan_at"`
	Err        string    `json:"error,omitempty"`
}
