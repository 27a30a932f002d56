package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, question, creator_id, liquidity_parameter, resolution_mode,
	is_resolved, total_volume, shared_pool_liquidity, accumulated_lp_fees,
	total_shared_lp_shares, created_at, updated_at`

// Upsert inserts or updates market metadata. The derived is_resolved flag
// and the pool totals are owned by the resolution and settlement paths and
// are only written on insert.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, creator_id, liquidity_parameter, resolution_mode,
			total_volume, shared_pool_liquidity, accumulated_lp_fees,
			total_shared_lp_shares, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, COALESCE($10, NOW()), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			question            = EXCLUDED.question,
			creator_id          = EXCLUDED.creator_id,
			liquidity_parameter = EXCLUDED.liquidity_parameter,
			resolution_mode     = EXCLUDED.resolution_mode,
			updated_at          = NOW()`

	var created *time.Time
	if !m.CreatedAt.IsZero() {
		created = &m.CreatedAt
	}
	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, m.CreatorID, m.LiquidityParameter, string(m.ResolutionMode),
		m.TotalVolume, m.Pool.SharedLiquidity, m.Pool.AccumulatedFees,
		m.Pool.TotalSharedShares, created,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", m.ID, err)
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var mode string
	err := row.Scan(
		&m.ID, &m.Question, &m.CreatorID, &m.LiquidityParameter, &mode,
		&m.IsResolved, &m.TotalVolume, &m.Pool.SharedLiquidity, &m.Pool.AccumulatedFees,
		&m.Pool.TotalSharedShares, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.ResolutionMode, err = domain.ParseResolutionMode(mode)
	if err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// GetByID retrieves a market by its primary key.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// ListOptions returns every option of a market ordered by id.
func (s *MarketStore) ListOptions(ctx context.Context, marketID string) ([]domain.MarketOption, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+optionCols+` FROM market_options WHERE market_id = $1 ORDER BY id`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list options of %s: %w", marketID, err)
	}
	opts, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.MarketOption, error) {
		return scanOption(r)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan options of %s: %w", marketID, err)
	}
	return opts, nil
}
