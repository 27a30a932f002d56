package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert inserts or updates a position mirrored from the ledger. Claimed
// positions are left untouched.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (id, owner, market_id, option_id, side, shares)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			owner  = EXCLUDED.owner,
			side   = EXCLUDED.side,
			shares = EXCLUDED.shares
		WHERE positions.claimed_at IS NULL`
	_, err := s.pool.Exec(ctx, query,
		p.ID, domain.NormalizeID(p.Owner), p.MarketID, p.OptionID, int16(p.Side), p.Shares)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a position by its primary key.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	var p domain.Position
	var side int16
	var payout decimal.NullDecimal
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner, market_id, option_id, side, shares, claimed_at, payout
		FROM positions WHERE id = $1`, id,
	).Scan(&p.ID, &p.Owner, &p.MarketID, &p.OptionID, &side, &p.Shares, &p.ClaimedAt, &payout)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	p.Side = domain.Side(side)
	if payout.Valid {
		p.Payout = &payout.Decimal
	}
	return p, nil
}

// MarkClaimed records the payout only if the position was never claimed.
func (s *PositionStore) MarkClaimed(ctx context.Context, id string, payout decimal.Decimal, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions SET claimed_at = $3, payout = $2 WHERE id = $1 AND claimed_at IS NULL`,
		id, payout, at)
	if err != nil {
		return fmt.Errorf("postgres: claim position %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check position %s: %w", id, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadyClaimed
}
