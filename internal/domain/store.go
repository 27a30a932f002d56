package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata and pool totals.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	ListOptions(ctx context.Context, marketID string) ([]MarketOption, error)
}

// ResolveParams carries everything an atomic option resolution writes.
type ResolveParams struct {
	OptionID        string
	WinningSide     Side
	DisputeDeadline *time.Time
	EvidenceHash    string
	ResolvedAt      time.Time
	Record          Resolution
}

// OptionStore persists market options. Resolve and ApplyFill are atomic
// compare-and-set operations against the persisted is_resolved flag.
type OptionStore interface {
	Upsert(ctx context.Context, opt MarketOption) error
	GetByID(ctx context.Context, id string) (MarketOption, error)

	// Resolve marks an unresolved option resolved, records the resolution
	// and recomputes the market's derived is_resolved flag in one
	// transaction. It returns ErrAlreadyResolved if the option was already
	// resolved.
	Resolve(ctx context.Context, p ResolveParams) (ResolveResult, error)

	// ApplyFill adds filled shares to an unresolved option, adds notional
	// to the market volume and fee to the LP fee pool. It returns
	// ErrAlreadyResolved for resolved options.
	ApplyFill(ctx context.Context, fill Fill, fee decimal.Decimal) (MarketOption, error)

	// ListFinalizable returns resolved, not yet finalized options whose
	// dispute window closed at or before now.
	ListFinalizable(ctx context.Context, now time.Time, limit int) ([]MarketOption, error)

	// MarkFinalized sets finalized_at once; it reports false if the option
	// was already marked.
	MarkFinalized(ctx context.Context, optionID string, at time.Time) (bool, error)
}

// ResolutionStore reads persisted resolution records.
type ResolutionStore interface {
	ListByOption(ctx context.Context, optionID string) ([]Resolution, error)
	ListByMarket(ctx context.Context, marketID string) ([]Resolution, error)
}

// DisputeStore persists disputes. Create returns ErrAlreadyExists when the
// raiser already disputed the option.
type DisputeStore interface {
	Create(ctx context.Context, d Dispute) error
	ListByOption(ctx context.Context, optionID string) ([]Dispute, error)
	HasDispute(ctx context.Context, optionID string) (bool, error)
	DisputedOptions(ctx context.Context, marketID string) (map[string]bool, error)
}

// PositionStore reads trader positions and marks them claimed.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)

	// MarkClaimed records the payout exactly once; a second call returns
	// ErrAlreadyClaimed.
	MarkClaimed(ctx context.Context, id string, payout decimal.Decimal, at time.Time) error
}

// WithdrawFunc computes an LP payout against the live pool and returns the
// pool totals after the withdrawal.
type WithdrawFunc func(pool LiquidityPool, lp LiquidityPosition) (payout decimal.Decimal, next LiquidityPool, err error)

// LiquidityStore reads LP positions and withdraws them atomically.
type LiquidityStore interface {
	Upsert(ctx context.Context, lp LiquidityPosition) error
	GetByID(ctx context.Context, id string) (LiquidityPosition, error)

	// Withdraw locks the market pool, calls fn with the live totals, writes
	// the new totals and marks the LP position withdrawn, all in one
	// transaction. A second call returns ErrAlreadyClaimed.
	Withdraw(ctx context.Context, id string, at time.Time, fn WithdrawFunc) (decimal.Decimal, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
