package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

const defaultJournalSize = 200

// Journal follows the opportunity and execution channels on the signal bus
// and keeps the most recent events of each in memory. It lets the status API
// show what every engine instance sharing the bus has seen.
type Journal struct {
	bus    domain.SignalBus
	size   int
	logger *slog.Logger

	mu            sync.RWMutex
	opportunities []domain.OpportunityEvent
	executions    []domain.Execution
}

// NewJournal creates a Journal holding up to size events per channel.
func NewJournal(bus domain.SignalBus, size int, logger *slog.Logger) *Journal {
	if size <= 0 {
		size = defaultJournalSize
	}
	return &Journal{
		bus:    bus,
		size:   size,
		logger: logger.With(slog.String("component", "journal")),
	}
}

// Run subscribes to both channels and records events until ctx is cancelled.
func (j *Journal) Run(ctx context.Context) error {
	opps, err := j.bus.Subscribe(ctx, domain.ChannelOpportunities)
	if err != nil {
		return err
	}
	execs, err := j.bus.Subscribe(ctx, domain.ChannelExecutions)
	if err != nil {
		return err
	}
	j.logger.Info("journal started")
	defer j.logger.Info("journal stopped")

	for opps != nil || execs != nil {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-opps:
			if !ok {
				opps = nil
				continue
			}
			var ev domain.OpportunityEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				j.logger.Debug("journal: bad opportunity payload",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			j.mu.Lock()
			j.opportunities = push(j.opportunities, ev, j.size)
			j.mu.Unlock()
		case data, ok := <-execs:
			if !ok {
				execs = nil
				continue
			}
			var ex domain.Execution
			if err := json.Unmarshal(data, &ex); err != nil {
				j.logger.Debug("journal: bad execution payload",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
				continue
			}
			j.mu.Lock()
			j.executions = push(j.executions, ex, j.size)
			j.mu.Unlock()
		}
	}
	return nil
}

// Opportunities returns up to limit recent opportunities, newest first.
func (j *Journal) Opportunities(limit int) []domain.OpportunityEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return newestFirst(j.opportunities, limit)
}

// Executions returns up to limit recent executions, newest first.
func (j *Journal) Executions(limit int) []domain.Execution {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return newestFirst(j.executions, limit)
}

func push[T any](buf []T, v T, size int) []T {
	buf = append(buf, v)
	if len(buf) > size {
		buf = append(buf[:0], buf[len(buf)-size:]...)
	}
	return buf
}

func newestFirst[T any](buf []T, limit int) []T {
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}
	out := make([]T, 0, limit)
	for i := len(buf) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, buf[i])
	}
	return out
}
