package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/venuearb/internal/arbitrage"
	"github.com/alanyoungcy/venuearb/internal/domain"
	"github.com/alanyoungcy/venuearb/internal/exchange"
	"github.com/alanyoungcy/venuearb/internal/executor"
	"github.com/alanyoungcy/venuearb/internal/feed"
	"github.com/alanyoungcy/venuearb/internal/pipeline"
	"github.com/alanyoungcy/venuearb/internal/server"
	"github.com/alanyoungcy/venuearb/internal/server/handler"
)

const shutdownTimeout = 10 * time.Second

// LiveMode trades on real venues. engine.dry_run still withholds orders.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode", slog.Bool("dry_run", a.cfg.Engine.DryRun))
	return a.runEngine(ctx, deps, a.cfg.Engine.DryRun)
}

// PaperMode trades against simulated fills on paper venues.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode", slog.Bool("dry_run", a.cfg.Engine.DryRun))
	return a.runEngine(ctx, deps, a.cfg.Engine.DryRun)
}

// MonitorMode keeps books, mirror, metrics and the status API running and
// scans for opportunities without ever placing an order.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.runEngine(ctx, deps, true)
}

// runEngine starts every component under one errgroup and blocks until ctx
// is cancelled or one of them fails.
func (a *App) runEngine(ctx context.Context, deps *Dependencies, dryRun bool) error {
	venues, err := buildVenues(a.cfg, deps, a.logger)
	if err != nil {
		return err
	}

	// Rules must be known before monitoring starts; a failed refresh is
	// retried by RunRefresh.
	exchanges := make([]domain.Exchange, 0, len(venues))
	for _, v := range venues {
		if err := v.Refresh(ctx); err != nil {
			a.logger.WarnContext(ctx, "initial venue refresh incomplete",
				slog.String("venue", v.Name()),
				slog.String("error", err.Error()),
			)
		}
		exchanges = append(exchanges, v)
	}

	exec := a.newExecutor(deps, dryRun)
	sched, err := a.newScheduler(deps, exchanges, exec)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, v := range venues {
		g.Go(func() error {
			if err := v.StartMonitoring(gctx, a.cfg.Engine.Bases, a.cfg.Engine.Quote); err != nil {
				return fmt.Errorf("monitor %s: %w", v.Name(), err)
			}
			return nil
		})
		g.Go(func() error { return v.RunRefresh(gctx) })
	}

	g.Go(func() error { return ignoreCanceled(exec.Run(gctx)) })
	g.Go(func() error {
		defer a.logger.Info("scheduler stopped")
		return sched.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	var journal *feed.Journal
	if deps.SignalBus != nil {
		journal = feed.NewJournal(deps.SignalBus, 0, a.logger)
		g.Go(func() error { return journal.Run(gctx) })
	}

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		job := pipeline.NewArchiveJob(deps.Archiver, a.cfg.Archive.Retention.Duration, a.cfg.Archive.Interval.Duration, a.logger)
		g.Go(func() error { return job.Run(gctx) })
	}

	if a.cfg.Server.Enabled {
		srv := a.newServer(deps, venues, sched, journal, dryRun)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func (a *App) newExecutor(deps *Dependencies, dryRun bool) *executor.Executor {
	opts := []executor.Option{
		executor.WithNotifier(deps.Notifier),
		executor.WithRecorder(deps.Metrics),
	}
	if deps.LockManager != nil {
		opts = append(opts, executor.WithLocks(deps.LockManager))
	}
	if deps.ExecutionStore != nil {
		opts = append(opts, executor.WithStore(deps.ExecutionStore))
	}
	if deps.SignalBus != nil {
		opts = append(opts, executor.WithSignalBus(deps.SignalBus))
	}
	return executor.New(executor.Config{
		LockTTL:     a.cfg.Engine.LockTTL.Duration,
		DedupWindow: a.cfg.Engine.DedupWindow.Duration,
		DryRun:      dryRun,
	}, a.logger, opts...)
}

func (a *App) newScheduler(deps *Dependencies, venues []domain.Exchange, exec *executor.Executor) (*arbitrage.Scheduler, error) {
	opts := []arbitrage.SchedulerOption{arbitrage.WithRecorder(deps.Metrics)}
	if deps.SignalBus != nil {
		opts = append(opts, arbitrage.WithSignalBus(deps.SignalBus))
	}
	sched := arbitrage.NewScheduler(arbitrage.SchedulerConfig{
		Quote:        a.cfg.Engine.Quote,
		Bases:        a.cfg.Engine.Bases,
		TargetProfit: a.cfg.Engine.TargetProfit,
		Cooldown:     a.cfg.Engine.Cooldown.Duration,
		ScanPause:    a.cfg.Engine.ScanPause.Duration,
	}, venues, exec, a.logger, opts...)
	if err := sched.SetTradePercentages(a.cfg.Engine.BaseTradePct, a.cfg.Engine.QuoteTradePct); err != nil {
		return nil, err
	}
	return sched, nil
}

func (a *App) newServer(deps *Dependencies, venues []*exchange.Venue, sched *arbitrage.Scheduler, journal *feed.Journal, dryRun bool) *server.Server {
	views := make([]handler.Venue, 0, len(venues))
	for _, v := range venues {
		views = append(views, v)
	}

	// A nil *feed.Journal must not become a non-nil interface.
	var recent handler.RecentExecutions
	if journal != nil {
		recent = journal
	}

	status := handler.NewStatusHandler(a.cfg.Mode, dryRun, views, sched)
	if deps.ExecutionStore != nil {
		pairs := make([]domain.Pair, 0, len(a.cfg.Engine.Bases))
		for _, base := range a.cfg.Engine.Bases {
			pairs = append(pairs, domain.NewPair(base, a.cfg.Engine.Quote))
		}
		status.WithProfit(deps.ExecutionStore, pairs)
	}

	return server.NewServer(server.Config{
		Port:      a.cfg.Server.Port,
		AuthToken: a.cfg.Server.AuthToken,
		RateLimit: a.cfg.Server.RateLimit,
		Limiter:   deps.RateLimiter,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(deps.Checks),
		Status:     status,
		Books:      handler.NewBookHandler(views, deps.BookMirror, a.logger),
		Executions: handler.NewExecutionHandler(deps.ExecutionStore, recent, a.logger),
		Metrics:    deps.Metrics.Handler(),
	}, a.logger)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
