package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

var ethBTC = domain.NewPair("ETH", "BTC")

func TestBookCounters(t *testing.T) {
	m := New()
	m.SnapshotApplied("binance", ethBTC, domain.SideAsks)
	m.DiffApplied("binance", ethBTC, domain.SideAsks, 12)
	m.DiffApplied("binance", ethBTC, domain.SideAsks, 11)
	m.DiffDropped("binance", ethBTC, domain.SideBids)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues("binance", "ETH/BTC", "asks")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.diffsApplied.WithLabelValues("binance", "ETH/BTC", "asks")))
	assert.Equal(t, 11.0, testutil.ToFloat64(m.bookDepth.WithLabelValues("binance", "ETH/BTC", "asks")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diffsDropped.WithLabelValues("binance", "ETH/BTC", "bids")))
}

func TestExecutionProfitOnlyForCompleted(t *testing.T) {
	m := New()
	m.ExecutionFinished(ethBTC, domain.ExecDone, decimal.RequireFromString("0.0055"))
	m.ExecutionFinished(ethBTC, domain.ExecPartial, decimal.RequireFromString("0.01"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("ETH/BTC", "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.executions.WithLabelValues("ETH/BTC", "partial")))
	assert.InDelta(t, 0.0055, testutil.ToFloat64(m.profit.WithLabelValues("ETH/BTC")), 1e-12)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.ScanCompleted("ETH")
	m.OpportunityFound(ethBTC, "a", "b")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `arb_scans_total{base="ETH"} 1`)
	assert.Contains(t, string(body), `arb_opportunities_total{buy_venue="a",pair="ETH/BTC",sell_venue="b"} 1`)
}
