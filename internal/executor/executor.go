// Package executor turns a sized arbitrage opportunity into orders. Every
// opportunity runs sell leg first, then buy leg, and the outcome is recorded,
// published and notified whether or not both legs went through.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/arbitrage"
	"github.com/alanyoungcy/venuearb/internal/domain"
)

// Notification event types.
const (
	EventExecuted = "executed"
	EventPartial  = "partial"
	EventFailed   = "failed"
	EventPlanned  = "planned"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives execution outcomes. The metrics package implements it.
type Recorder interface {
	ExecutionFinished(pair domain.Pair, state domain.ExecState, predictedProfit decimal.Decimal)
}

// Config controls execution behaviour.
type Config struct {
	// LockTTL bounds how long one pair stays locked if the process dies
	// mid-execution.
	LockTTL time.Duration
	// DedupWindow suppresses identical opportunities seen within the window.
	DedupWindow time.Duration
	// DryRun records planned executions without submitting orders.
	DryRun bool
}

// Executor runs opportunities through SellPending -> SellDone -> BuyPending
// -> Done. Collaborators are optional; a nil one is skipped.
type Executor struct {
	cfg      Config
	dedup    *Dedup
	locks    domain.LockManager
	store    domain.ExecutionStore
	bus      domain.SignalBus
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger

	cleanupInterval time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

func WithLocks(l domain.LockManager) Option    { return func(e *Executor) { e.locks = l } }
func WithStore(s domain.ExecutionStore) Option { return func(e *Executor) { e.store = s } }
func WithSignalBus(b domain.SignalBus) Option  { return func(e *Executor) { e.bus = b } }
func WithNotifier(n Notifier) Option           { return func(e *Executor) { e.notifier = n } }
func WithRecorder(r Recorder) Option           { return func(e *Executor) { e.recorder = r } }

// New creates an Executor.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Executor {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	e := &Executor{
		cfg:             cfg,
		dedup:           NewDedup(cfg.DedupWindow),
		logger:          logger.With(slog.String("component", "executor")),
		cleanupInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DryRun reports whether orders are withheld.
func (e *Executor) DryRun() bool { return e.cfg.DryRun }

// Run garbage-collects the dedup window until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := e.dedup.Cleanup(); n > 0 {
				e.logger.Debug("dedup entries expired", slog.Int("count", n))
			}
		}
	}
}

func fingerprint(opp *arbitrage.Opportunity) string {
	return fmt.Sprintf("%s|%s|%s|%s@%s|%s@%s",
		opp.Pair.Key(), opp.BuyVenue.Name(), opp.SellVenue.Name(),
		opp.BuyOrder.BaseVolume, opp.BuyOrder.Price,
		opp.SellOrder.BaseVolume, opp.SellOrder.Price,
	)
}

func lockKey(pair domain.Pair) string {
	return "arb:" + pair.Key()
}

// Execute submits the sell leg and then the buy leg of opp.
//
// A rejected sell leg leaves nothing traded and returns the venue's error
// (domain.ErrInsufficientBalance when the venue caught it locally). A
// rejected buy leg after a filled sell leg returns a
// *domain.PartialExecutionError; compensating the sold inventory is up to the
// caller. The returned Execution is populated in every case where legs were
// attempted.
func (e *Executor) Execute(ctx context.Context, opp *arbitrage.Opportunity) (domain.Execution, error) {
	key := fingerprint(opp)
	if e.dedup.Seen(key) {
		return domain.Execution{}, fmt.Errorf("executor: %s: %w", opp.Pair, domain.ErrDuplicate)
	}

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, lockKey(opp.Pair), e.cfg.LockTTL)
		if err != nil {
			e.dedup.Forget(key)
			if errors.Is(err, domain.ErrLockHeld) {
				return domain.Execution{}, fmt.Errorf("executor: lock %s: %w", lockKey(opp.Pair), err)
			}
			return domain.Execution{}, fmt.Errorf("executor: acquire lock: %w", err)
		}
		defer unlock()
	}

	exec := newExecution(opp)
	log := e.logger.With(
		slog.String("execution_id", exec.ID),
		slog.String("pair", opp.Pair.String()),
		slog.String("buy_venue", exec.BuyVenue),
		slog.String("sell_venue", exec.SellVenue),
	)

	var execErr error
	switch {
	case e.cfg.DryRun:
		exec.State = domain.ExecPlanned
		setLeg(&exec, domain.LegSell, domain.LegStatusSkipped, nil)
		setLeg(&exec, domain.LegBuy, domain.LegStatusSkipped, nil)
		log.Info("dry run: opportunity planned",
			slog.String("volume", exec.Volume.String()),
			slog.String("predicted_profit", exec.PredictedProfit.String()),
		)
	default:
		execErr = e.runLegs(ctx, opp, &exec, log)
	}

	e.finish(ctx, &exec, log)
	return exec, execErr
}

func (e *Executor) runLegs(ctx context.Context, opp *arbitrage.Opportunity, exec *domain.Execution, log *slog.Logger) error {
	exec.State = domain.ExecSellPending
	if err := opp.SellVenue.Sell(ctx, opp.SellOrder); err != nil {
		exec.State = domain.ExecFailed
		exec.Error = err.Error()
		setLeg(exec, domain.LegSell, domain.LegStatusRejected, err)
		setLeg(exec, domain.LegBuy, domain.LegStatusSkipped, nil)
		log.Warn("sell leg rejected", slog.String("error", err.Error()))
		return fmt.Errorf("executor: sell leg on %s: %w", exec.SellVenue, err)
	}
	setLeg(exec, domain.LegSell, domain.LegStatusFilled, nil)
	exec.State = domain.ExecSellDone

	exec.State = domain.ExecBuyPending
	if err := opp.BuyVenue.Buy(ctx, opp.BuyOrder); err != nil {
		exec.State = domain.ExecPartial
		exec.Error = err.Error()
		setLeg(exec, domain.LegBuy, domain.LegStatusRejected, err)
		log.Error("buy leg rejected after sell leg filled",
			slog.String("sold", opp.SellOrder.BaseVolume.String()),
			slog.String("error", err.Error()),
		)
		return &domain.PartialExecutionError{
			Completed: domain.LegSell,
			Failed:    domain.LegBuy,
			Err:       err,
		}
	}
	setLeg(exec, domain.LegBuy, domain.LegStatusFilled, nil)
	exec.State = domain.ExecDone

	log.Info("opportunity executed",
		slog.String("volume", exec.Volume.String()),
		slog.String("predicted_profit", exec.PredictedProfit.String()),
	)
	return nil
}

func newExecution(opp *arbitrage.Opportunity) domain.Execution {
	return domain.Execution{
		ID:              uuid.New().String(),
		Pair:            opp.Pair,
		BuyVenue:        opp.BuyVenue.Name(),
		SellVenue:       opp.SellVenue.Name(),
		Volume:          opp.Volume(),
		PredictedProfit: opp.PredictedProfit(),
		State:           domain.ExecSellPending,
		StartedAt:       time.Now().UTC(),
		Legs: []domain.ExecutionLeg{
			{
				Leg:        domain.LegSell,
				Venue:      opp.SellVenue.Name(),
				Price:      opp.SellOrder.Price,
				BaseVolume: opp.SellOrder.BaseVolume,
				Status:     domain.LegStatusPending,
			},
			{
				Leg:        domain.LegBuy,
				Venue:      opp.BuyVenue.Name(),
				Price:      opp.BuyOrder.Price,
				BaseVolume: opp.BuyOrder.BaseVolume,
				Status:     domain.LegStatusPending,
			},
		},
	}
}

func setLeg(exec *domain.Execution, leg domain.Leg, status domain.LegStatus, err error) {
	l, ok := exec.LegByName(leg)
	if !ok {
		return
	}
	l.Status = status
	if err != nil {
		l.Error = err.Error()
	}
}

// finish persists, publishes and announces a terminal execution. Failures
// here are logged; they never change the execution outcome.
func (e *Executor) finish(ctx context.Context, exec *domain.Execution, log *slog.Logger) {
	now := time.Now().UTC()
	exec.CompletedAt = &now
	// The legs already happened; record them even when the caller is shutting down.
	ctx = context.WithoutCancel(ctx)

	if e.store != nil {
		if err := e.store.Create(ctx, *exec); err != nil {
			log.Warn("execution record failed", slog.String("error", err.Error()))
		}
	}

	if e.bus != nil {
		payload, err := json.Marshal(exec)
		if err == nil {
			if err := e.bus.StreamAppend(ctx, domain.StreamExecutions, payload); err != nil {
				log.Warn("execution stream append failed", slog.String("error", err.Error()))
			}
			if err := e.bus.Publish(ctx, domain.ChannelExecutions, payload); err != nil {
				log.Warn("execution publish failed", slog.String("error", err.Error()))
			}
		}
	}

	if e.recorder != nil {
		e.recorder.ExecutionFinished(exec.Pair, exec.State, exec.PredictedProfit)
	}

	if e.notifier != nil {
		event, title := notification(exec.State)
		msg := fmt.Sprintf("%s: buy %s on %s @ %s, sell %s on %s @ %s, volume %s %s, predicted profit %s %s",
			exec.Pair,
			exec.Legs[1].BaseVolume, exec.BuyVenue, exec.Legs[1].Price,
			exec.Legs[0].BaseVolume, exec.SellVenue, exec.Legs[0].Price,
			exec.Volume, exec.Pair.Quote,
			exec.PredictedProfit, exec.Pair.Base,
		)
		if exec.Error != "" {
			msg += "\nerror: " + exec.Error
		}
		if err := e.notifier.Notify(ctx, event, title, msg); err != nil {
			log.Warn("notification failed", slog.String("error", err.Error()))
		}
	}
}

func notification(state domain.ExecState) (event, title string) {
	switch state {
	case domain.ExecDone:
		return EventExecuted, "Arbitrage executed"
	case domain.ExecPartial:
		return EventPartial, "Arbitrage PARTIAL: buy leg failed"
	case domain.ExecPlanned:
		return EventPlanned, "Arbitrage planned (dry run)"
	default:
		return EventFailed, "Arbitrage failed"
	}
}

// Compile-time interface check.
var _ arbitrage.Executor = (*Executor)(nil)
