package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/shopspring/decimal"
)

// DefaultCooldown is the pause after an execution before the scan continues.
const DefaultCooldown = 30 * time.Second

// Executor runs the two legs of an opportunity.
type Executor interface {
	Execute(ctx context.Context, opp *Opportunity) (domain.Execution, error)
}

// Recorder receives scheduler counters. The metrics package implements it.
type Recorder interface {
	ScanCompleted(base string)
	OpportunityFound(pair domain.Pair, buyVenue, sellVenue string)
}

type nopRecorder struct{}

func (nopRecorder) ScanCompleted(string) {}

func (nopRecorder) OpportunityFound(domain.Pair, string, string) {}

// SchedulerConfig holds the engine settings the scheduler needs.
type SchedulerConfig struct {
	Quote        string
	Bases        []string
	TargetProfit decimal.Decimal
	Cooldown     time.Duration
	// ScanPause is slept between two full scans of a base.
	ScanPause time.Duration
}

// Scheduler runs one worker per tracked base asset. Each worker repeatedly
// compares every pair of venues in both directions and executes the best
// opportunity that clears both venues' minimum trade volume.
type Scheduler struct {
	cfg      SchedulerConfig
	venues   []domain.Exchange
	ratios   *RatioCache
	executor Executor
	bus      domain.SignalBus
	recorder Recorder
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	pctMu    sync.RWMutex
	basePct  decimal.Decimal
	quotePct decimal.Decimal

	stopped atomic.Bool

	statusMu sync.Mutex
	status   map[string]*domain.WorkerStatus
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSignalBus publishes each opportunity chosen for execution on bus.
func WithSignalBus(bus domain.SignalBus) SchedulerOption {
	return func(s *Scheduler) { s.bus = bus }
}

// WithRecorder reports scans and opportunities to r.
func WithRecorder(r Recorder) SchedulerOption {
	return func(s *Scheduler) { s.recorder = r }
}

// WithSleep replaces the cooldown sleep, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) SchedulerOption {
	return func(s *Scheduler) { s.sleep = fn }
}

// NewScheduler builds the ratio cache from the venues' current fees and
// returns a scheduler trading 100% of balances until SetTradePercentages is
// called.
func NewScheduler(cfg SchedulerConfig, venues []domain.Exchange, executor Executor, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	s := &Scheduler{
		cfg:      cfg,
		venues:   venues,
		ratios:   NewRatioCache(venues, cfg.TargetProfit),
		executor: executor,
		recorder: nopRecorder{},
		logger:   logger.With(slog.String("component", "scheduler")),
		sleep:    sleepCtx,
		basePct:  decimal.NewFromInt(1),
		quotePct: decimal.NewFromInt(1),
		status:   make(map[string]*domain.WorkerStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTradePercentages caps each opportunity at basePct of the sell venue's
// base balance and quotePct of the buy venue's quote balance. Both must be
// positive.
func (s *Scheduler) SetTradePercentages(basePct, quotePct decimal.Decimal) error {
	if !basePct.IsPositive() || !quotePct.IsPositive() {
		return fmt.Errorf("arbitrage: trade percentages must be positive (base=%s quote=%s)", basePct, quotePct)
	}
	s.pctMu.Lock()
	s.basePct, s.quotePct = basePct, quotePct
	s.pctMu.Unlock()
	return nil
}

func (s *Scheduler) tradePercentages() (decimal.Decimal, decimal.Decimal) {
	s.pctMu.RLock()
	defer s.pctMu.RUnlock()
	return s.basePct, s.quotePct
}

// Stop asks every worker to finish its current scan and return. A stopped
// scheduler stays stopped: a later Run returns without scanning.
func (s *Scheduler) Stop() {
	s.stopped.Store(true)
}

// Run starts one worker per base and blocks until all of them have returned.
// Workers end on Stop, on context cancellation, or when a ratio lookup fails.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, base := range s.cfg.Bases {
		s.setStatus(base, func(st *domain.WorkerStatus) { st.Running = true; st.Err = "" })
		s.logger.Info("starting arbitrage worker",
			slog.String("base", base),
			slog.String("quote", s.cfg.Quote),
		)
		g.Go(func() error {
			defer s.setStatus(base, func(st *domain.WorkerStatus) { st.Running = false })
			return s.work(gctx, base)
		})
	}
	return g.Wait()
}

func (s *Scheduler) work(ctx context.Context, base string) error {
	for !s.stopped.Load() {
		if ctx.Err() != nil {
			return nil
		}
		_, err := s.Scan(ctx, base)
		if errors.Is(err, domain.ErrRatioNotFound) {
			s.logger.Error("worker stopped: ratio cache incomplete",
				slog.String("base", base),
				slog.String("error", err.Error()),
			)
			s.setStatus(base, func(st *domain.WorkerStatus) { st.Err = err.Error() })
			return nil
		}
		if s.cfg.ScanPause > 0 {
			if err := s.sleep(ctx, s.cfg.ScanPause); err != nil {
				return nil
			}
		}
	}
	return nil
}

// Scan compares every pair of venues once for base and returns the number of
// executions it started. Recoverable problems are logged and skipped; only a
// missing ratio is returned as an error.
func (s *Scheduler) Scan(ctx context.Context, base string) (int, error) {
	pair := domain.NewPair(base, s.cfg.Quote)
	executed := 0

	for i := 0; i < len(s.venues)-1; i++ {
		if !s.tradable(s.venues[i], pair) {
			continue
		}
		for n := i + 1; n < len(s.venues); n++ {
			if !s.tradable(s.venues[n], pair) {
				continue
			}
			ok, err := s.scanPair(ctx, pair, s.venues[i], s.venues[n])
			if err != nil {
				return executed, err
			}
			if ok {
				executed++
			}
		}
	}

	s.recorder.ScanCompleted(pair.Base)
	s.setStatus(pair.Base, func(st *domain.WorkerStatus) {
		st.Scans++
		st.Executions += int64(executed)
		st.LastScanAt = time.Now().UTC()
	})
	return executed, nil
}

func (s *Scheduler) tradable(v domain.Exchange, pair domain.Pair) bool {
	if !v.Supports(pair) {
		return false
	}
	allowed, known := v.CanWithdraw(pair.Base)
	return allowed && known
}

// scanPair evaluates both directions between a and b and executes at most one.
func (s *Scheduler) scanPair(ctx context.Context, pair domain.Pair, a, b domain.Exchange) (bool, error) {
	ratio, err := s.ratios.Get(a.Name(), b.Name())
	if err != nil {
		return false, err
	}

	basePct, quotePct := s.tradePercentages()
	aQuote := a.Balance(pair.Quote).Mul(quotePct)
	bQuote := b.Balance(pair.Quote).Mul(quotePct)
	aBase := a.Balance(pair.Base).Mul(basePct)
	bBase := b.Balance(pair.Base).Mul(basePct)

	var abOpp, baOpp *Opportunity
	if s.profitable(ratio, a, b, pair) {
		abOpp = NewOpportunity(a, b, pair)
		s.optimize(abOpp, ratio, aQuote, bBase)
	}
	if s.profitable(ratio, b, a, pair) {
		baOpp = NewOpportunity(b, a, pair)
		s.optimize(baOpp, ratio, bQuote, aBase)
	}

	minTrade := decimal.Max(a.MinTradeVolume(pair), b.MinTradeVolume(pair))
	abOK := canTrade(abOpp, minTrade)
	baOK := canTrade(baOpp, minTrade)

	var best *Opportunity
	switch {
	case abOK && baOK:
		best = MostValuable(abOpp, baOpp)
	case abOK:
		best = abOpp
	case baOK:
		best = baOpp
	default:
		return false, nil
	}

	s.recorder.OpportunityFound(pair, best.BuyVenue.Name(), best.SellVenue.Name())
	s.publish(ctx, best)

	exec, err := s.executor.Execute(ctx, best)
	if err != nil {
		var partial *domain.PartialExecutionError
		switch {
		case errors.As(err, &partial):
			s.logger.Error("opportunity partially executed",
				slog.String("execution_id", exec.ID),
				slog.String("pair", pair.String()),
				slog.String("completed", string(partial.Completed)),
				slog.String("failed", string(partial.Failed)),
				slog.String("error", err.Error()),
			)
		case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrLockHeld):
			s.logger.Debug("opportunity skipped",
				slog.String("pair", pair.String()),
				slog.String("reason", err.Error()),
			)
			return false, nil
		case errors.Is(err, domain.ErrInsufficientBalance):
			s.logger.Warn("not enough balance for the opportunity",
				slog.String("pair", pair.String()),
				slog.String("sell_venue", best.SellVenue.Name()),
			)
			return false, nil
		default:
			s.logger.Error("opportunity execution failed",
				slog.String("pair", pair.String()),
				slog.String("error", err.Error()),
			)
			return false, nil
		}
	} else {
		s.logger.Info("opportunity executed",
			slog.String("execution_id", exec.ID),
			slog.String("pair", pair.String()),
			slog.String("buy_venue", best.BuyVenue.Name()),
			slog.String("sell_venue", best.SellVenue.Name()),
			slog.String("volume", best.Volume().String()),
			slog.String("predicted_profit", best.PredictedProfit().String()),
		)
	}

	// Let the spread close before looking at the same venues again.
	if err := s.sleep(ctx, s.cfg.Cooldown); err != nil {
		s.logger.Debug("cooldown interrupted", slog.String("error", err.Error()))
	}
	return true, nil
}

func canTrade(opp *Opportunity, minTrade decimal.Decimal) bool {
	if opp == nil {
		return false
	}
	v := opp.Volume()
	return v.IsPositive() && v.GreaterThanOrEqual(minTrade)
}

// profitable is the cheap pre-check run before sizing: the top of book
// ask/bid ratio, floored at scale 8, must not exceed ratio.
func (s *Scheduler) profitable(ratio decimal.Decimal, buy, sell domain.Exchange, pair domain.Pair) bool {
	ask, err := buy.LowestAsk(pair)
	if err != nil {
		s.logBookMissing(buy, pair, err)
		return false
	}
	bid, err := sell.HighestBid(pair)
	if err != nil {
		s.logBookMissing(sell, pair, err)
		return false
	}
	if !ask.IsPositive() || !bid.IsPositive() {
		return false
	}
	return domain.DivFloor(ask, bid, domain.Scale).LessThanOrEqual(ratio)
}

func (s *Scheduler) optimize(opp *Opportunity, ratio, quoteBudget, baseBudget decimal.Decimal) {
	if err := opp.Optimize(ratio, quoteBudget, baseBudget); err != nil {
		s.logBookMissing(opp.BuyVenue, opp.Pair, err)
	}
}

func (s *Scheduler) logBookMissing(v domain.Exchange, pair domain.Pair, err error) {
	s.logger.Debug("order book not available",
		slog.String("venue", v.Name()),
		slog.String("pair", pair.String()),
		slog.String("error", err.Error()),
	)
}

func (s *Scheduler) publish(ctx context.Context, opp *Opportunity) {
	if s.bus == nil {
		return
	}
	ev := opp.Event()
	ev.DetectedAt = time.Now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelOpportunities, payload); err != nil {
		s.logger.Warn("publish opportunity failed", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) setStatus(base string, fn func(*domain.WorkerStatus)) {
	base = domain.NewPair(base, s.cfg.Quote).Base
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st, ok := s.status[base]
	if !ok {
		st = &domain.WorkerStatus{Base: base}
		s.status[base] = st
	}
	fn(st)
}

// Status returns a copy of every worker's state, sorted by base.
func (s *Scheduler) Status() []domain.WorkerStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	out := make([]domain.WorkerStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
