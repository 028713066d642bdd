// Package metrics exposes engine counters on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

// Metrics implements orderbook.Observer, arbitrage.Recorder and
// executor.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	snapshots     *prometheus.CounterVec
	diffsApplied  *prometheus.CounterVec
	diffsDropped  *prometheus.CounterVec
	bookDepth     *prometheus.GaugeVec
	scans         *prometheus.CounterVec
	opportunities *prometheus.CounterVec
	executions    *prometheus.CounterVec
	profit        *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_book_snapshots_total",
			Help: "Order book snapshots applied",
		}, []string{"venue", "pair", "side"}),
		diffsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_book_diffs_applied_total",
			Help: "Order book diffs merged into a book",
		}, []string{"venue", "pair", "side"}),
		diffsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_book_diffs_dropped_total",
			Help: "Stale order book diffs dropped",
		}, []string{"venue", "pair", "side"}),
		bookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "arb_book_depth_levels",
			Help: "Price levels on a book side after the last diff",
		}, []string{"venue", "pair", "side"}),
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_scans_total",
			Help: "Completed scans per base asset",
		}, []string{"base"}),
		opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_opportunities_total",
			Help: "Opportunities that cleared the minimum trade volume",
		}, []string{"pair", "buy_venue", "sell_venue"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_executions_total",
			Help: "Executions by final state",
		}, []string{"pair", "state"}),
		profit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arb_predicted_profit_base_total",
			Help: "Predicted profit of completed executions, in base asset units",
		}, []string{"pair"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.snapshots,
		m.diffsApplied,
		m.diffsDropped,
		m.bookDepth,
		m.scans,
		m.opportunities,
		m.executions,
		m.profit,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

func (m *Metrics) SnapshotApplied(venue string, pair domain.Pair, side domain.BookSide) {
	m.snapshots.WithLabelValues(venue, pair.String(), string(side)).Inc()
}

func (m *Metrics) DiffApplied(venue string, pair domain.Pair, side domain.BookSide, depth int) {
	m.diffsApplied.WithLabelValues(venue, pair.String(), string(side)).Inc()
	m.bookDepth.WithLabelValues(venue, pair.String(), string(side)).Set(float64(depth))
}

func (m *Metrics) DiffDropped(venue string, pair domain.Pair, side domain.BookSide) {
	m.diffsDropped.WithLabelValues(venue, pair.String(), string(side)).Inc()
}

func (m *Metrics) ScanCompleted(base string) {
	m.scans.WithLabelValues(base).Inc()
}

func (m *Metrics) OpportunityFound(pair domain.Pair, buyVenue, sellVenue string) {
	m.opportunities.WithLabelValues(pair.String(), buyVenue, sellVenue).Inc()
}

// ExecutionFinished counts the execution; profit is only added for
// executions whose both legs went through.
func (m *Metrics) ExecutionFinished(pair domain.Pair, state domain.ExecState, predictedProfit decimal.Decimal) {
	m.executions.WithLabelValues(pair.String(), string(state)).Inc()
	if state == domain.ExecDone && predictedProfit.IsPositive() {
		m.profit.WithLabelValues(pair.String()).Add(predictedProfit.InexactFloat64())
	}
}
