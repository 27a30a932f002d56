package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
// Records are written by OptionStore.Resolve.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a new ResolutionStore backed by the given connection pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

const resolutionCols = `id, market_id, option_id, outcome, winning_side, evidence_hash,
	evidence_source, submitted_by, approvers, dispute_deadline, created_at`

func insertResolution(ctx context.Context, tx pgx.Tx, r domain.Resolution) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Approvers == nil {
		r.Approvers = []string{}
	}
	const query = `
		INSERT INTO resolutions (` + resolutionCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := tx.Exec(ctx, query,
		r.ID, r.MarketID, r.OptionID, r.Outcome, int16(r.WinningSide), r.EvidenceHash,
		r.EvidenceSource, r.SubmittedBy, r.Approvers, r.DisputeDeadline, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyResolved
		}
		return fmt.Errorf("insert resolution: %w", err)
	}
	return nil
}

func scanResolution(row pgx.CollectableRow) (domain.Resolution, error) {
	var r domain.Resolution
	var side int16
	err := row.Scan(
		&r.ID, &r.MarketID, &r.OptionID, &r.Outcome, &side, &r.EvidenceHash,
		&r.EvidenceSource, &r.SubmittedBy, &r.Approvers, &r.DisputeDeadline, &r.CreatedAt,
	)
	r.WinningSide = domain.Side(side)
	return r, err
}

// ListByOption returns the resolution records of an option.
func (s *ResolutionStore) ListByOption(ctx context.Context, optionID string) ([]domain.Resolution, error) {
	return s.list(ctx, `option_id = $1`, optionID)
}

// ListByMarket returns the resolution records of every option of a market.
func (s *ResolutionStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Resolution, error) {
	return s.list(ctx, `market_id = $1`, marketID)
}

func (s *ResolutionStore) list(ctx context.Context, where string, arg string) ([]domain.Resolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, market_id, option_id, outcome, winning_side, evidence_hash,
			evidence_source, submitted_by, approvers, dispute_deadline, created_at
		 FROM resolutions WHERE `+where+` ORDER BY created_at`, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolutions: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanResolution)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan resolutions: %w", err)
	}
	return out, nil
}
