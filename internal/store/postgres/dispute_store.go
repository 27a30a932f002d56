package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// DisputeStore implements domain.DisputeStore using PostgreSQL.
type DisputeStore struct {
	pool *pgxpool.Pool
}

// NewDisputeStore creates a new DisputeStore backed by the given connection pool.
func NewDisputeStore(pool *pgxpool.Pool) *DisputeStore {
	return &DisputeStore{pool: pool}
}

// Create records a dispute. A second dispute by the same raiser on the
// same option returns domain.ErrAlreadyExists.
func (s *DisputeStore) Create(ctx context.Context, d domain.Dispute) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO disputes (id, market_id, option_id, raised_by, reason, raised_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query, d.ID, d.MarketID, d.OptionID, d.RaisedBy, d.Reason, d.RaisedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create dispute on %s: %w", d.OptionID, err)
	}
	return nil
}

// ListByOption returns the disputes raised against an option, oldest first.
func (s *DisputeStore) ListByOption(ctx context.Context, optionID string) ([]domain.Dispute, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, market_id, option_id, raised_by, reason, raised_at
		FROM disputes WHERE option_id = $1 ORDER BY raised_at`, optionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list disputes of %s: %w", optionID, err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Dispute, error) {
		var d domain.Dispute
		err := r.Scan(&d.ID, &d.MarketID, &d.OptionID, &d.RaisedBy, &d.Reason, &d.RaisedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan disputes of %s: %w", optionID, err)
	}
	return out, nil
}

// HasDispute reports whether any dispute was raised against an option.
func (s *DisputeStore) HasDispute(ctx context.Context, optionID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM disputes WHERE option_id = $1)`, optionID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("postgres: check disputes of %s: %w", optionID, err)
	}
	return ok, nil
}

// DisputedOptions returns the set of disputed option IDs of a market.
func (s *DisputeStore) DisputedOptions(ctx context.Context, marketID string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT option_id FROM disputes WHERE market_id = $1`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: disputed options of %s: %w", marketID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan disputed options of %s: %w", marketID, err)
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}
