package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avask/arbot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Insert records a detected opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO opportunities (fingerprint, pair, buy_venue, sell_venue, buy_price, sell_price, notional, est_profit, est_profit_bps, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		opp.Fingerprint, opp.Pair, opp.BuyVenue, opp.SellVenue,
		opp.BuyPrice, opp.SellPrice, opp.Notional,
		opp.EstimatedProfit, opp.EstimatedProfitBps, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity: %w", err)
	}
	return nil
}

// Recent returns the most recently detected opportunities, newest first.
func (s *OpportunityStore) Recent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT fingerprint, pair, buy_venue, sell_venue, buy_price, sell_price, notional, est_profit, est_profit_bps, detected_at
		FROM opportunities ORDER BY detected_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		var opp domain.Opportunity
		if err := rows.Scan(&opp.Fingerprint, &opp.Pair, &opp.BuyVenue, &opp.SellVenue,
			&opp.BuyPrice, &opp.SellPrice, &opp.Notional,
			&opp.EstimatedProfit, &opp.EstimatedProfitBps, &opp.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		out = append(out, opp)
	}
	return out, rows.Err()
}
