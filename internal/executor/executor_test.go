package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/venuearb/internal/arbitrage"
	"github.com/alanyoungcy/venuearb/internal/domain"
)

var ethBTC = domain.NewPair("ETH", "BTC")

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// stubVenue implements just enough of domain.Exchange for execution. Calls to
// anything else panic through the nil embedded interface.
type stubVenue struct {
	domain.Exchange
	name    string
	sellErr error
	buyErr  error

	mu    sync.Mutex
	calls []string
}

func (s *stubVenue) Name() string                     { return s.name }
func (s *stubVenue) BasePrecision(domain.Pair) int32  { return 4 }
func (s *stubVenue) QuotePrecision(domain.Pair) int32 { return 4 }

func (s *stubVenue) Sell(context.Context, domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "sell")
	return s.sellErr
}

func (s *stubVenue) Buy(context.Context, domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "buy")
	return s.buyErr
}

type memStore struct {
	mu    sync.Mutex
	execs []domain.Execution
}

func (m *memStore) Create(_ context.Context, exec domain.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, exec)
	return nil
}

func (m *memStore) GetByID(context.Context, string) (domain.Execution, error) {
	return domain.Execution{}, domain.ErrNotFound
}

func (m *memStore) ListRecent(context.Context, int) ([]domain.Execution, error) { return m.execs, nil }

func (m *memStore) ListBefore(context.Context, time.Time) ([]domain.Execution, error) {
	return nil, nil
}

func (m *memStore) SumPredictedProfit(context.Context, domain.Pair, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	l.keys = append(l.keys, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

type memBus struct {
	mu        sync.Mutex
	published []string
	streamed  []string
}

func (b *memBus) Publish(_ context.Context, ch string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, ch)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(_ context.Context, stream string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed = append(b.streamed, stream)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memNotifier struct {
	events []string
}

func (n *memNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

type memRecorder struct {
	states []domain.ExecState
}

func (r *memRecorder) ExecutionFinished(_ domain.Pair, state domain.ExecState, _ decimal.Decimal) {
	r.states = append(r.states, state)
}

type harness struct {
	exec     *Executor
	buy      *stubVenue
	sell     *stubVenue
	store    *memStore
	locks    *memLocks
	bus      *memBus
	notifier *memNotifier
	recorder *memRecorder
}

func newHarness(cfg Config) *harness {
	h := &harness{
		buy:      &stubVenue{name: "cheap"},
		sell:     &stubVenue{name: "dear"},
		store:    &memStore{},
		locks:    &memLocks{},
		bus:      &memBus{},
		notifier: &memNotifier{},
		recorder: &memRecorder{},
	}
	h.exec = New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithStore(h.store),
		WithLocks(h.locks),
		WithSignalBus(h.bus),
		WithNotifier(h.notifier),
		WithRecorder(h.recorder),
	)
	return h
}

func (h *harness) opportunity() *arbitrage.Opportunity {
	opp := arbitrage.NewOpportunity(h.buy, h.sell, ethBTC)
	opp.BuyOrder.Price, opp.BuyOrder.BaseVolume = d("0.989"), d("0.5055")
	opp.SellOrder.Price, opp.SellOrder.BaseVolume = d("1"), d("0.5")
	return opp
}

func TestExecuteRunsSellThenBuy(t *testing.T) {
	h := newHarness(Config{})

	exec, err := h.exec.Execute(context.Background(), h.opportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.ExecDone, exec.State)
	assert.NotEmpty(t, exec.ID)
	assert.NotNil(t, exec.CompletedAt)
	assert.True(t, exec.Volume.Equal(d("0.4999")))
	assert.True(t, exec.PredictedProfit.Equal(d("0.0055")))
	require.Len(t, exec.Legs, 2)
	assert.Equal(t, domain.LegSell, exec.Legs[0].Leg)
	assert.Equal(t, domain.LegStatusFilled, exec.Legs[0].Status)
	assert.Equal(t, domain.LegStatusFilled, exec.Legs[1].Status)

	assert.Equal(t, []string{"sell"}, h.sell.calls)
	assert.Equal(t, []string{"buy"}, h.buy.calls)

	require.Len(t, h.store.execs, 1)
	assert.Equal(t, exec.ID, h.store.execs[0].ID)
	assert.Equal(t, []string{domain.ChannelExecutions}, h.bus.published)
	assert.Equal(t, []string{domain.StreamExecutions}, h.bus.streamed)
	assert.Equal(t, []string{EventExecuted}, h.notifier.events)
	assert.Equal(t, []domain.ExecState{domain.ExecDone}, h.recorder.states)
	assert.Equal(t, []string{"arb:ETH-BTC"}, h.locks.keys)
	assert.Empty(t, h.locks.held, "lock released")
}

func TestSellFailureTradesNothing(t *testing.T) {
	h := newHarness(Config{})
	h.sell.sellErr = domain.ErrInsufficientBalance

	exec, err := h.exec.Execute(context.Background(), h.opportunity())
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	var partial *domain.PartialExecutionError
	assert.False(t, errors.As(err, &partial))
	assert.Equal(t, domain.ExecFailed, exec.State)
	assert.Equal(t, domain.LegStatusRejected, exec.Legs[0].Status)
	assert.Equal(t, domain.LegStatusSkipped, exec.Legs[1].Status)
	assert.Empty(t, h.buy.calls)
	assert.Equal(t, []string{EventFailed}, h.notifier.events)
	require.Len(t, h.store.execs, 1)
}

func TestBuyFailureIsPartialExecution(t *testing.T) {
	h := newHarness(Config{})
	venueErr := errors.New("venue rejected order")
	h.buy.buyErr = venueErr

	exec, err := h.exec.Execute(context.Background(), h.opportunity())
	var partial *domain.PartialExecutionError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, domain.LegSell, partial.Completed)
	assert.Equal(t, domain.LegBuy, partial.Failed)
	assert.ErrorIs(t, err, venueErr)

	assert.Equal(t, domain.ExecPartial, exec.State)
	assert.Equal(t, domain.LegStatusFilled, exec.Legs[0].Status)
	assert.Equal(t, domain.LegStatusRejected, exec.Legs[1].Status)
	assert.Equal(t, "venue rejected order", exec.Legs[1].Error)
	assert.Equal(t, []string{EventPartial}, h.notifier.events)
}

func TestDuplicateOpportunityIsSkipped(t *testing.T) {
	h := newHarness(Config{DedupWindow: time.Minute})

	_, err := h.exec.Execute(context.Background(), h.opportunity())
	require.NoError(t, err)
	_, err = h.exec.Execute(context.Background(), h.opportunity())
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	assert.Len(t, h.sell.calls, 1)
	assert.Len(t, h.store.execs, 1)
}

func TestHeldLockSkipsOpportunity(t *testing.T) {
	h := newHarness(Config{DedupWindow: time.Minute})
	unlock, err := h.locks.Acquire(context.Background(), "arb:ETH-BTC", time.Minute)
	require.NoError(t, err)

	_, err = h.exec.Execute(context.Background(), h.opportunity())
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Empty(t, h.sell.calls)

	// A lock miss does not count against the dedup window.
	unlock()
	_, err = h.exec.Execute(context.Background(), h.opportunity())
	assert.NoError(t, err)
}

func TestDryRunRecordsWithoutOrders(t *testing.T) {
	h := newHarness(Config{DryRun: true})

	exec, err := h.exec.Execute(context.Background(), h.opportunity())
	require.NoError(t, err)
	assert.Equal(t, domain.ExecPlanned, exec.State)
	assert.Equal(t, domain.LegStatusSkipped, exec.Legs[0].Status)
	assert.Empty(t, h.sell.calls)
	assert.Empty(t, h.buy.calls)
	assert.Len(t, h.store.execs, 1)
	assert.Equal(t, []string{EventPlanned}, h.notifier.events)
	assert.True(t, h.exec.DryRun())
}

func TestExecuteRecordsAfterCancellation(t *testing.T) {
	h := newHarness(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.exec.Execute(ctx, h.opportunity())
	require.NoError(t, err)
	assert.Len(t, h.store.execs, 1)
}

func TestExecutionStateTerminal(t *testing.T) {
	for _, s := range []domain.ExecState{domain.ExecDone, domain.ExecFailed, domain.ExecPartial, domain.ExecPlanned} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []domain.ExecState{domain.ExecSellPending, domain.ExecSellDone, domain.ExecBuyPending} {
		assert.False(t, s.Terminal(), s)
	}
}
