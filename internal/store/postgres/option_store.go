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

// OptionStore implements domain.OptionStore using PostgreSQL. Resolve and
// ApplyFill guard on is_resolved inside the UPDATE itself, so concurrent
// callers cannot both pass the check.
type OptionStore struct {
	pool *pgxpool.Pool
}

// NewOptionStore creates a new OptionStore backed by the given connection pool.
func NewOptionStore(pool *pgxpool.Pool) *OptionStore {
	return &OptionStore{pool: pool}
}

const optionCols = `id, market_id, label, yes_quantity, no_quantity, is_resolved,
	winning_side, dispute_deadline, evidence_hash, resolved_at, finalized_at`

func scanOption(row pgx.Row) (domain.MarketOption, error) {
	var o domain.MarketOption
	var side *int16
	err := row.Scan(
		&o.ID, &o.MarketID, &o.Label, &o.YesQuantity, &o.NoQuantity, &o.IsResolved,
		&side, &o.DisputeDeadline, &o.EvidenceHash, &o.ResolvedAt, &o.FinalizedAt,
	)
	if err != nil {
		return domain.MarketOption{}, err
	}
	if side != nil {
		o.WinningSide = domain.Side(*side)
	}
	return o, nil
}

func sideParam(s domain.Side) *int16 {
	if !s.Valid() {
		return nil
	}
	v := int16(s)
	return &v
}

// Upsert inserts or updates an option's label and pool quantities. An
// already-resolved option is never modified.
func (s *OptionStore) Upsert(ctx context.Context, o domain.MarketOption) error {
	const query = `
		INSERT INTO market_options (
			id, market_id, label, yes_quantity, no_quantity,
			is_resolved, winning_side, dispute_deadline, evidence_hash, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			label        = EXCLUDED.label,
			yes_quantity = EXCLUDED.yes_quantity,
			no_quantity  = EXCLUDED.no_quantity
		WHERE NOT market_options.is_resolved`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.MarketID, o.Label, o.YesQuantity, o.NoQuantity,
		o.IsResolved, sideParam(o.WinningSide), o.DisputeDeadline, o.EvidenceHash, o.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert option %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves an option by its primary key.
func (s *OptionStore) GetByID(ctx context.Context, id string) (domain.MarketOption, error) {
	o, err := scanOption(s.pool.QueryRow(ctx, `SELECT `+optionCols+` FROM market_options WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketOption{}, domain.ErrNotFound
		}
		return domain.MarketOption{}, fmt.Errorf("postgres: get option %s: %w", id, err)
	}
	return o, nil
}

// Resolve applies a resolution in one transaction: the guarded option
// update, the resolution record, and the market's derived is_resolved flag.
func (s *OptionStore) Resolve(ctx context.Context, p domain.ResolveParams) (domain.ResolveResult, error) {
	var res domain.ResolveResult
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		const update = `
			UPDATE market_options SET
				is_resolved      = TRUE,
				winning_side     = $2,
				dispute_deadline = $3,
				evidence_hash    = $4,
				resolved_at      = $5
			WHERE id = $1 AND NOT is_resolved
			RETURNING ` + optionCols

		opt, err := scanOption(tx.QueryRow(ctx, update,
			p.OptionID, sideParam(p.WinningSide), p.DisputeDeadline, p.EvidenceHash, p.ResolvedAt))
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrResolved(ctx, tx, p.OptionID)
		}
		if err != nil {
			return fmt.Errorf("update option: %w", err)
		}

		rec := p.Record
		rec.MarketID = opt.MarketID
		rec.OptionID = opt.ID
		if err := insertResolution(ctx, tx, rec); err != nil {
			return err
		}

		const derive = `
			UPDATE markets SET
				is_resolved = NOT EXISTS (
					SELECT 1 FROM market_options WHERE market_id = $1 AND NOT is_resolved
				),
				updated_at = NOW()
			WHERE id = $1
			RETURNING is_resolved`
		if err := tx.QueryRow(ctx, derive, opt.MarketID).Scan(&res.MarketResolved); err != nil {
			return fmt.Errorf("derive market state: %w", err)
		}
		res.Option = opt
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrNotFound) {
			return domain.ResolveResult{}, err
		}
		return domain.ResolveResult{}, fmt.Errorf("postgres: resolve option %s: %w", p.OptionID, err)
	}
	return res, nil
}

// ApplyFill adds a fill to an unresolved option and credits volume and
// the LP fee to its market.
func (s *OptionStore) ApplyFill(ctx context.Context, f domain.Fill, fee decimal.Decimal) (domain.MarketOption, error) {
	var out domain.MarketOption
	err := inTx(ctx, s.pool, func(tx pgx.Tx) error {
		const update = `
			UPDATE market_options SET
				yes_quantity = yes_quantity + CASE WHEN $2 = 1 THEN $3::numeric ELSE 0 END,
				no_quantity  = no_quantity  + CASE WHEN $2 = 2 THEN $3::numeric ELSE 0 END
			WHERE id = $1 AND NOT is_resolved
			RETURNING ` + optionCols

		opt, err := scanOption(tx.QueryRow(ctx, update, f.OptionID, int16(f.Side), f.Shares))
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrResolved(ctx, tx, f.OptionID)
		}
		if err != nil {
			return fmt.Errorf("update option: %w", err)
		}

		const credit = `
			UPDATE markets SET
				total_volume        = total_volume + $2::numeric,
				accumulated_lp_fees = accumulated_lp_fees + $3::numeric,
				updated_at          = NOW()
			WHERE id = $1`
		if _, err := tx.Exec(ctx, credit, opt.MarketID, f.Notional, fee); err != nil {
			return fmt.Errorf("credit market: %w", err)
		}
		out = opt
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrNotFound) {
			return domain.MarketOption{}, err
		}
		return domain.MarketOption{}, fmt.Errorf("postgres: apply fill to %s: %w", f.OptionID, err)
	}
	return out, nil
}

// ListFinalizable returns resolved, unfinalized options whose dispute
// window closed at or before now, oldest resolution first.
func (s *OptionStore) ListFinalizable(ctx context.Context, now time.Time, limit int) ([]domain.MarketOption, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT ` + optionCols + ` FROM market_options
		WHERE is_resolved AND finalized_at IS NULL
		  AND (dispute_deadline IS NULL OR dispute_deadline <= $1)
		ORDER BY resolved_at, id
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list finalizable: %w", err)
	}
	opts, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.MarketOption, error) {
		return scanOption(r)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan finalizable: %w", err)
	}
	return opts, nil
}

// MarkFinalized stamps finalized_at once.
func (s *OptionStore) MarkFinalized(ctx context.Context, optionID string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE market_options SET finalized_at = $2 WHERE id = $1 AND is_resolved AND finalized_at IS NULL`,
		optionID, at)
	if err != nil {
		return false, fmt.Errorf("postgres: mark option %s finalized: %w", optionID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// missingOrResolved explains why a guarded option update matched no row.
func missingOrResolved(ctx context.Context, tx pgx.Tx, optionID string) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM market_options WHERE id = $1)`, optionID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check option: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadyResolved
}
