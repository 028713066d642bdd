package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/venuearb/internal/domain"
)

const executionColumns = `id, base_asset, quote_asset, buy_venue, sell_venue, volume, predicted_profit, state, error, started_at, completed_at`

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts an execution and its legs in one transaction. An ID that
// already exists yields domain.ErrDuplicate.
func (s *ExecutionStore) Create(ctx context.Context, exec domain.Execution) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO executions (`+executionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		exec.ID, exec.Pair.Base, exec.Pair.Quote, exec.BuyVenue, exec.SellVenue,
		exec.Volume, exec.PredictedProfit, string(exec.State), exec.Error,
		exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: execution %s: %w", exec.ID, domain.ErrDuplicate)
	}

	for _, leg := range exec.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO execution_legs (execution_id, leg, venue, price, base_volume, status, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			exec.ID, string(leg.Leg), leg.Venue, leg.Price, leg.BaseVolume, string(leg.Status), leg.Error,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert execution leg: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit execution: %w", err)
	}
	return nil
}

// GetByID returns an execution with its legs.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.Execution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Execution{}, fmt.Errorf("postgres: execution %s: %w", id, domain.ErrNotFound)
		}
		return domain.Execution{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}

	list := []domain.Execution{exec}
	if err := s.attachLegs(ctx, list); err != nil {
		return domain.Execution{}, err
	}
	return list[0], nil
}

// ListRecent returns the most recent executions, newest first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, `SELECT `+executionColumns+` FROM executions ORDER BY started_at DESC LIMIT $1`, limit)
}

// ListBefore returns every execution started before the given time, oldest
// first.
func (s *ExecutionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Execution, error) {
	return s.list(ctx, `SELECT `+executionColumns+` FROM executions WHERE started_at < $1 ORDER BY started_at`, before)
}

// SumPredictedProfit sums the predicted profit of completed executions of
// pair since the given time.
func (s *ExecutionStore) SumPredictedProfit(ctx context.Context, pair domain.Pair, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(predicted_profit), 0) FROM executions
		WHERE base_asset = $1 AND quote_asset = $2 AND state = $3 AND started_at >= $4`,
		pair.Base, pair.Quote, string(domain.ExecDone), since,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum predicted profit %s: %w", pair, err)
	}
	return sum, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (s *ExecutionStore) list(ctx context.Context, query string, arg any) ([]domain.Execution, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var list []domain.Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		list = append(list, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	if err := s.attachLegs(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// attachLegs loads the legs of every execution in list with one query.
func (s *ExecutionStore) attachLegs(ctx context.Context, list []domain.Execution) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	index := make(map[string]int, len(list))
	for i, e := range list {
		ids[i] = e.ID
		index[e.ID] = i
	}

	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, leg, venue, price, base_volume, status, error
		FROM execution_legs WHERE execution_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("postgres: list execution legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			execID      string
			leg, status string
			l           domain.ExecutionLeg
		)
		if err := rows.Scan(&execID, &leg, &l.Venue, &l.Price, &l.BaseVolume, &status, &l.Error); err != nil {
			return fmt.Errorf("postgres: scan execution leg: %w", err)
		}
		l.Leg = domain.Leg(leg)
		l.Status = domain.LegStatus(status)
		if i, ok := index[execID]; ok {
			list[i].Legs = append(list[i].Legs, l)
		}
	}
	return rows.Err()
}

func scanExecution(row pgx.Row) (domain.Execution, error) {
	var (
		exec        domain.Execution
		base, quote string
		state       string
	)
	err := row.Scan(&exec.ID, &base, &quote, &exec.BuyVenue, &exec.SellVenue,
		&exec.Volume, &exec.PredictedProfit, &state, &exec.Error,
		&exec.StartedAt, &exec.CompletedAt,
	)
	if err != nil {
		return domain.Execution{}, err
	}
	exec.Pair = domain.NewPair(base, quote)
	exec.State = domain.ExecState(state)
	return exec, nil
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)
