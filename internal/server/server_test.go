package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediscache "github.com/alanyoungcy/venuearb/internal/cache/redis"
	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/alanyoungcy/venuearb/internal/orderbook"
	"github.com/alanyoungcy/venuearb/internal/server/handler"
)

var ethBTC = domain.NewPair("ETH", "BTC")

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeVenue struct {
	name     string
	balances map[string]decimal.Decimal
	registry *orderbook.Registry
}

func (v *fakeVenue) Name() string                         { return v.name }
func (v *fakeVenue) Balances() map[string]decimal.Decimal { return v.balances }
func (v *fakeVenue) Registry() *orderbook.Registry        { return v.registry }

type fakeWorkers []domain.WorkerStatus

func (f fakeWorkers) Status() []domain.WorkerStatus { return f }

type fakeJournal []domain.Execution

func (f fakeJournal) Executions(limit int) []domain.Execution {
	return f[:min(limit, len(f))]
}

type fakeStore struct {
	domain.ExecutionStore
	execs  []domain.Execution
	profit decimal.Decimal
	err    error
}

func (f *fakeStore) SumPredictedProfit(context.Context, domain.Pair, time.Time) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.profit, nil
}

func (f *fakeStore) ListRecent(_ context.Context, limit int) ([]domain.Execution, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.execs[:min(limit, len(f.execs))], nil
}

type options struct {
	token   string
	store   domain.ExecutionStore
	mirror  domain.BookMirror
	limiter domain.RateLimiter
	checks  map[string]handler.Check
}

func newTestServer(t *testing.T, o options) http.Handler {
	t.Helper()
	reg := orderbook.NewRegistry()
	reg.Put(ethBTC, domain.SideAsks, domain.Snapshot{
		SequenceID: 7,
		Levels: []domain.PriceLevel{
			domain.NewPriceLevel(d("0.05"), d("1")),
			domain.NewPriceLevel(d("0.051"), d("2")),
			domain.NewPriceLevel(d("0.052"), d("3")),
		},
	})
	reg.Put(ethBTC, domain.SideBids, domain.Snapshot{
		SequenceID: 7,
		Levels:     []domain.PriceLevel{domain.NewPriceLevel(d("0.049"), d("1"))},
	})
	venues := []handler.Venue{
		&fakeVenue{name: "beta", balances: map[string]decimal.Decimal{"BTC": d("1")}, registry: orderbook.NewRegistry()},
		&fakeVenue{name: "alpha", balances: map[string]decimal.Decimal{"ETH": d("2.5")}, registry: reg},
	}
	journal := fakeJournal{{ID: "j1", Pair: ethBTC, State: domain.ExecDone}, {ID: "j2", Pair: ethBTC, State: domain.ExecFailed}}

	status := handler.NewStatusHandler("paper", true, venues, fakeWorkers{{Base: "ETH", Running: true, Scans: 3}})
	if o.store != nil {
		status.WithProfit(o.store, []domain.Pair{ethBTC})
	}

	srv := NewServer(Config{AuthToken: o.token, RateLimit: 2, Limiter: o.limiter}, Handlers{
		Health:     handler.NewHealthHandler(o.checks),
		Status:     status,
		Books:      handler.NewBookHandler(venues, o.mirror, quietLogger()),
		Executions: handler.NewExecutionHandler(o.store, journal, quietLogger()),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
	}, quietLogger())
	return srv.Handler()
}

func get(t *testing.T, h http.Handler, path string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, options{checks: map[string]handler.Check{
		"redis": func(context.Context) error { return nil },
	}})
	rec, body := get(t, h, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	h = newTestServer(t, options{checks: map[string]handler.Check{
		"redis":    func(context.Context) error { return nil },
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	}})
	rec, body = get(t, h, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "connection refused", body["checks"].(map[string]any)["postgres"])
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, options{token: "s3cret"})

	rec, _ := get(t, h, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code, "health is public")

	rec, body := get(t, h, "/api/status")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing authentication token", body["error"])

	rec, _ = get(t, h, "/api/status", "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = get(t, h, "/api/status", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = get(t, h, "/metrics", "X-API-Key", "s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus(t *testing.T) {
	h := newTestServer(t, options{})
	rec, body := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "paper", body["mode"])
	assert.Equal(t, true, body["dry_run"])

	venues := body["venues"].([]any)
	require.Len(t, venues, 2)
	first := venues[0].(map[string]any)
	assert.Equal(t, "alpha", first["name"], "sorted by name")
	assert.Equal(t, "2.5", first["balances"].(map[string]any)["ETH"])
	assert.Equal(t, []any{"ETH/BTC"}, first["pairs"])

	workers := body["workers"].([]any)
	require.Len(t, workers, 1)
	assert.Equal(t, "ETH", workers[0].(map[string]any)["base"])
	assert.NotContains(t, body, "predicted_profit", "no store attached")
}

func TestStatusReportsPredictedProfit(t *testing.T) {
	store := &fakeStore{profit: d("0.0123")}
	h := newTestServer(t, options{store: store})

	rec, body := get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ETH/BTC": "0.0123"}, body["predicted_profit"])
	assert.NotContains(t, body, "profit_error")

	store.err = errors.New("db down")
	rec, body = get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code, "status degrades instead of failing")
	assert.Equal(t, map[string]any{}, body["predicted_profit"])
	assert.Equal(t, "db down", body["profit_error"])
}

func TestBookFromRegistry(t *testing.T) {
	h := newTestServer(t, options{})
	rec, body := get(t, h, "/api/books/alpha/eth/btc?depth=2")
	require.Equal(t, http.StatusOK, rec.Code)

	asks := body["asks"].(map[string]any)
	assert.Equal(t, float64(7), asks["sequence_id"])
	levels := asks["levels"].([]any)
	require.Len(t, levels, 2)
	assert.Equal(t, "0.05", levels[0].(map[string]any)["price"])
	assert.Equal(t, "2", levels[1].(map[string]any)["amount"])

	rec, _ = get(t, h, "/api/books/beta/ETH/BTC")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(t, h, "/api/books/unknown/ETH/BTC")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no mirror configured")
}

func TestBookFromMirror(t *testing.T) {
	mr := miniredis.RunT(t)
	mirror := rediscache.NewBookMirror(rediscache.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})))
	require.NoError(t, mirror.MirrorSide(context.Background(), "remote", ethBTC, domain.SideBids, domain.Snapshot{
		SequenceID: 3,
		Levels:     []domain.PriceLevel{domain.NewPriceLevel(d("0.048"), d("4"))},
	}))

	h := newTestServer(t, options{mirror: mirror})
	rec, body := get(t, h, "/api/books/remote/ETH/BTC")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["asks"])
	bids := body["bids"].(map[string]any)
	assert.Equal(t, "0.048", bids["levels"].([]any)[0].(map[string]any)["price"])
}

func TestExecutions(t *testing.T) {
	h := newTestServer(t, options{})
	rec, body := get(t, h, "/api/executions/recent?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "j1", body["executions"].([]any)[0].(map[string]any)["id"])

	store := &fakeStore{execs: []domain.Execution{{ID: "db1", Pair: ethBTC, StartedAt: time.Now()}}}
	h = newTestServer(t, options{store: store})
	_, body = get(t, h, "/api/executions/recent")
	assert.Equal(t, "db1", body["executions"].([]any)[0].(map[string]any)["id"], "store wins over journal")

	store.err = errors.New("db down")
	rec, _ = get(t, h, "/api/executions/recent")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := rediscache.NewRateLimiter(rediscache.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})))
	h := newTestServer(t, options{limiter: limiter})

	for i := 0; i < 2; i++ {
		rec, _ := get(t, h, "/api/status", "X-Forwarded-For", "10.0.0.1")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, _ := get(t, h, "/api/status", "X-Forwarded-For", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec, _ = get(t, h, "/api/status", "X-Forwarded-For", "10.0.0.2")
	assert.Equal(t, http.StatusOK, rec.Code, "limits are per client")
}
