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

// LiquidityStore implements domain.LiquidityStore using PostgreSQL.
type LiquidityStore struct {
	pool *pgxpool.Pool
}

// NewLiquidityStore creates a new LiquidityStore backed by the given connection pool.
func NewLiquidityStore(pool *pgxpool.Pool) *LiquidityStore {
	return &LiquidityStore{pool: pool}
}

// Upsert inserts or updates an LP position. Withdrawn positions are left
// untouched.
func (s *LiquidityStore) Upsert(ctx context.Context, lp domain.LiquidityPosition) error {
	const query = `
		INSERT INTO liquidity_positions (id, owner, market_id, shares)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			owner  = EXCLUDED.owner,
			shares = EXCLUDED.shares
		WHERE liquidity_positions.withdrawn_at IS NULL`
	if _, err := s.pool.Exec(ctx, query, lp.ID, domain.NormalizeID(lp.Owner), lp.MarketID, lp.Shares); err != nil {
		return fmt.Errorf("postgres: upsert lp position %s: %w", lp.ID, err)
	}
	return nil
}

const lpCols = `id, owner, market_id, shares, withdrawn_at, payout`

func scanLP(row pgx.Row) (domain.LiquidityPosition, error) {
	var lp domain.LiquidityPosition
	var payout decimal.NullDecimal
	if err := row.Scan(&lp.ID, &lp.Owner, &lp.MarketID, &lp.Shares, &lp.WithdrawnAt, &payout); err != nil {
		return domain.LiquidityPosition{}, err
	}
	if payout.Valid {
		lp.Payout = &payout.Decimal
	}
	return lp, nil
}

// GetByID retrieves an LP position by its primary key.
func (s *LiquidityStore) GetByID(ctx context.Context, id string) (domain.LiquidityPosition, error) {
	lp, err := scanLP(s.pool.QueryRow(ctx, `SELECT `+lpCols+` FROM liquidity_positions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LiquidityPosition{}, domain.ErrNotFound
		}
		return domain.LiquidityPosition{}, fmt.Errorf("postgres: get lp position %s: %w", id, err)
	}
	return lp, nil
}

// Withdraw locks the LP row and its market pool, lets fn compute the
// payout against the live totals, and writes both back in one transaction.
func (s *LiquidityStore) Withdraw(ctx context.Context, id string, at time.Time, fn domain.WithdrawFunc) (decimal.Decimal, error) {
	var payout decimal.Decimal
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		lp, err := scanLP(tx.QueryRow(ctx,
			`SELECT `+lpCols+` FROM liquidity_positions WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock lp position: %w", err)
		}
		if lp.WithdrawnAt != nil {
			return domain.ErrAlreadyClaimed
		}

		var pool domain.LiquidityPool
		err = tx.QueryRow(ctx, `
			SELECT shared_pool_liquidity, accumulated_lp_fees, total_shared_lp_shares
			FROM markets WHERE id = $1 FOR UPDATE`, lp.MarketID,
		).Scan(&pool.SharedLiquidity, &pool.AccumulatedFees, &pool.TotalSharedShares)
		if err != nil {
			return fmt.Errorf("lock market pool: %w", err)
		}

		amount, next, err := fn(pool, lp)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE markets SET
				shared_pool_liquidity  = $2,
				accumulated_lp_fees    = $3,
				total_shared_lp_shares = $4,
				updated_at             = NOW()
			WHERE id = $1`,
			lp.MarketID, next.SharedLiquidity, next.AccumulatedFees, next.TotalSharedShares,
		); err != nil {
			return fmt.Errorf("update market pool: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE liquidity_positions SET withdrawn_at = $2, payout = $3 WHERE id = $1`,
			id, at, amount,
		); err != nil {
			return fmt.Errorf("mark lp withdrawn: %w", err)
		}
		payout = amount
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAlreadyClaimed) ||
			errors.Is(err, domain.ErrInvalidQuantities) || errors.Is(err, domain.ErrNotFinalized) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("postgres: withdraw lp position %s: %w", id, err)
	}
	return payout, nil
}
