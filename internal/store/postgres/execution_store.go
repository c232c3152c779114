package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avask/arbot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Insert records a new trade execution.
func (s *ExecutionStore) Insert(ctx context.Context, exec domain.TradeExecution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_executions (id, fingerprint, pair, buy_venue, sell_venue, notional, status, tx_hash, realized_profit, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		exec.ID, exec.Fingerprint, exec.Pair, exec.BuyVenue, exec.SellVenue,
		exec.Notional, string(exec.Status), exec.TxHash, exec.RealizedProfit,
		exec.Error, exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution: %w", err)
	}
	return nil
}

// Update applies a status transition to an existing execution. Returns
// domain.ErrNotFound when no row matches the ID.
func (s *ExecutionStore) Update(ctx context.Context, exec domain.TradeExecution) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE trade_executions
		SET status = $2, tx_hash = $3, realized_profit = $4, error = $5, completed_at = $6
		WHERE id = $1`,
		exec.ID, string(exec.Status), exec.TxHash, exec.RealizedProfit,
		exec.Error, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update execution %s: %w", exec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update execution %s: %w", exec.ID, domain.ErrNotFound)
	}
	return nil
}

// Recent returns the most recently started executions, newest first.
func (s *ExecutionStore) Recent(ctx context.Context, limit int) ([]domain.TradeExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, fingerprint, pair, buy_venue, sell_venue, notional, status, tx_hash, realized_profit, error, started_at, completed_at
		FROM trade_executions ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeExecution
	for rows.Next() {
		var exec domain.TradeExecution
		var status string
		if err := rows.Scan(&exec.ID, &exec.Fingerprint, &exec.Pair, &exec.BuyVenue, &exec.SellVenue,
			&exec.Notional, &status, &exec.TxHash, &exec.RealizedProfit,
			&exec.Error, &exec.StartedAt, &exec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		exec.Status = domain.ExecStatus(status)
		out = append(out, exec)
	}
	return out, rows.Err()
}
