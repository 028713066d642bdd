package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/alanyoungcy/venuearb/internal/orderbook"
)

// Venue is the read-only view of a venue the API needs.
type Venue interface {
	Name() string
	Balances() map[string]decimal.Decimal
	Registry() *orderbook.Registry
}

// Workers reports the scheduler's worker states.
type Workers interface {
	Status() []domain.WorkerStatus
}

// ProfitSource totals the predicted profit of recorded executions.
type ProfitSource interface {
	SumPredictedProfit(ctx context.Context, pair domain.Pair, since time.Time) (decimal.Decimal, error)
}

// StatusHandler serves the engine status.
type StatusHandler struct {
	mode    string
	started time.Time
	dryRun  bool
	venues  []Venue
	workers Workers

	profit      ProfitSource
	profitPairs []domain.Pair
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, dryRun bool, venues []Venue, workers Workers) *StatusHandler {
	return &StatusHandler{
		mode:    mode,
		started: time.Now(),
		dryRun:  dryRun,
		venues:  venues,
		workers: workers,
	}
}

// WithProfit adds the predicted profit of each pair since the handler was
// created to the status report.
func (h *StatusHandler) WithProfit(src ProfitSource, pairs []domain.Pair) *StatusHandler {
	h.profit = src
	h.profitPairs = pairs
	return h
}

type venueStatus struct {
	Name     string            `json:"name"`
	Balances map[string]string `json:"balances"`
	Pairs    []string          `json:"pairs"`
}

// GetStatus reports mode, uptime, venues with balances and tracked books,
// the scheduler workers and, when a store is attached, predicted profit.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	venues := make([]venueStatus, 0, len(h.venues))
	for _, v := range h.venues {
		vs := venueStatus{Name: v.Name(), Balances: make(map[string]string)}
		for asset, amount := range v.Balances() {
			vs.Balances[asset] = amount.String()
		}
		for _, p := range v.Registry().Pairs() {
			vs.Pairs = append(vs.Pairs, p.String())
		}
		venues = append(venues, vs)
	}
	sort.Slice(venues, func(i, j int) bool { return venues[i].Name < venues[j].Name })

	var workers []domain.WorkerStatus
	if h.workers != nil {
		workers = h.workers.Status()
	}

	resp := map[string]any{
		"mode":           h.mode,
		"dry_run":        h.dryRun,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"venues":         venues,
		"workers":        workers,
	}
	if h.profit != nil {
		profits := make(map[string]string, len(h.profitPairs))
		for _, p := range h.profitPairs {
			sum, err := h.profit.SumPredictedProfit(r.Context(), p, h.started)
			if err != nil {
				resp["profit_error"] = err.Error()
				continue
			}
			profits[p.String()] = sum.String()
		}
		resp["predicted_profit"] = profits
	}
	writeJSON(w, http.StatusOK, resp)
}
