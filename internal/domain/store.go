package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStore persists arbitrage executions and their legs.
type ExecutionStore interface {
	Create(ctx context.Context, exec Execution) error
	GetByID(ctx context.Context, id string) (Execution, error)
	ListRecent(ctx context.Context, limit int) ([]Execution, error)
	ListBefore(ctx context.Context, before time.Time) ([]Execution, error)
	SumPredictedProfit(ctx context.Context, pair Pair, since time.Time) (decimal.Decimal, error)
}
