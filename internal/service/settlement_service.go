package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/settlement"
)

// SettlementService redeems finalized trader and LP positions. Each claim
// is a compare-and-set in the store, so a position pays out at most once
// however many requests race for it.
type SettlementService struct {
	markets   domain.MarketStore
	options   domain.OptionStore
	disputes  domain.DisputeStore
	positions domain.PositionStore
	liquidity domain.LiquidityStore
	audit     domain.AuditStore
	calc      settlement.Calculator
	events    publisher
	logger    *slog.Logger
	now       func() time.Time
}

// SettlementDeps are the stores a SettlementService reads and writes.
type SettlementDeps struct {
	Markets   domain.MarketStore
	Options   domain.OptionStore
	Disputes  domain.DisputeStore
	Positions domain.PositionStore
	Liquidity domain.LiquidityStore
	Audit     domain.AuditStore
	Bus       domain.SignalBus
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(deps SettlementDeps, calc settlement.Calculator, logger *slog.Logger) *SettlementService {
	logger = logger.With(slog.String("component", "settlement_service"))
	return &SettlementService{
		markets:   deps.Markets,
		options:   deps.Options,
		disputes:  deps.Disputes,
		positions: deps.Positions,
		liquidity: deps.Liquidity,
		audit:     deps.Audit,
		calc:      calc,
		events:    publisher{bus: deps.Bus, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// ClaimPosition redeems a trader position for its owner.
func (s *SettlementService) ClaimPosition(ctx context.Context, p domain.Principal, positionID string) (decimal.Decimal, error) {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement_service: position %s: %w", positionID, err)
	}
	if err := checkOwner(p, pos.Owner); err != nil {
		return decimal.Zero, err
	}
	if pos.ClaimedAt != nil {
		return decimal.Zero, fmt.Errorf("settlement_service: position %s: %w", positionID, domain.ErrAlreadyClaimed)
	}

	opt, err := s.options.GetByID(ctx, pos.OptionID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement_service: option %s: %w", pos.OptionID, err)
	}
	hasDispute, err := s.disputes.HasDispute(ctx, opt.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement_service: disputes of %s: %w", opt.ID, err)
	}

	now := s.now().UTC()
	payout, err := s.calc.TraderPayout(pos, opt, now, hasDispute)
	if err != nil {
		s.logInvalid(ctx, err, slog.String("position_id", pos.ID))
		return decimal.Zero, fmt.Errorf("settlement_service: position %s: %w", pos.ID, err)
	}
	if err := s.positions.MarkClaimed(ctx, pos.ID, payout, now); err != nil {
		return decimal.Zero, fmt.Errorf("settlement_service: claim position %s: %w", pos.ID, err)
	}

	s.logger.InfoContext(ctx, "position claimed",
		slog.String("position_id", pos.ID),
		slog.String("option_id", opt.ID),
		slog.String("owner", domain.NormalizeID(pos.Owner)),
		slog.String("payout", payout.String()),
	)
	audit(ctx, s.audit, s.logger, "settlement.position_claimed", map[string]any{
		"position_id": pos.ID,
		"market_id":   pos.MarketID,
		"option_id":   opt.ID,
		"owner":       domain.NormalizeID(pos.Owner),
		"side":        pos.Side.String(),
		"shares":      pos.Shares.String(),
		"payout":      payout.String(),
	})
	s.events.emit(ctx, domain.Event{
		Type:     domain.EventPositionClaimed,
		MarketID: opt.MarketID,
		OptionID: opt.ID,
		At:       now,
		Data:     map[string]any{"position_id": pos.ID, "payout": payout.String()},
	})
	return payout, nil
}

// ClaimLiquidity withdraws an LP position for its owner. The market must
// be fully resolved and final; the payout is computed against the pool
// totals locked at withdrawal time.
func (s *SettlementService) ClaimLiquidity(ctx context.Context, p domain.Principal, lpID string) (decimal.Decimal, error) {
	lp, err := s.liquidity.GetByID(ctx, lpID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement_service: liquidity position %s: %w", lpID, err)
	}
	if err := checkOwner(p, lp.Owner); err != nil {
		return decimal.Zero, err
	}
	if lp.WithdrawnAt != nil {
		return decimal.Zero, fmt.Errorf("settlement_service: liquidity position %s: %w", lpID, domain.ErrAlreadyClaimed)
	}

	opts, err := s.markets.ListOptions(ctx, lp.MarketID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement_service: options of %s: %w", lp.MarketID, err)
	}
	disputed, err := s.disputes.DisputedOptions(ctx, lp.MarketID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("settlement_service: disputes of %s: %w", lp.MarketID, err)
	}
	now := s.now().UTC()
	if !s.calc.MarketFinal(opts, now, disputed) {
		return decimal.Zero, fmt.Errorf("settlement_service: market %s: %w", lp.MarketID, domain.ErrNotFinalized)
	}

	payout, err := s.liquidity.Withdraw(ctx, lp.ID, now, settlement.Withdraw)
	if err != nil {
		s.logInvalid(ctx, err, slog.String("lp_id", lp.ID))
		return decimal.Zero, fmt.Errorf("settlement_service: withdraw %s: %w", lp.ID, err)
	}

	s.logger.InfoContext(ctx, "liquidity withdrawn",
		slog.String("lp_id", lp.ID),
		slog.String("market_id", lp.MarketID),
		slog.String("payout", payout.String()),
	)
	audit(ctx, s.audit, s.logger, "settlement.liquidity_withdrawn", map[string]any{
		"lp_id":     lp.ID,
		"market_id": lp.MarketID,
		"owner":     domain.NormalizeID(lp.Owner),
		"shares":    lp.Shares.String(),
		"payout":    payout.String(),
	})
	s.events.emit(ctx, domain.Event{
		Type:     domain.EventLiquidityWithdrawn,
		MarketID: lp.MarketID,
		At:       now,
		Data:     map[string]any{"lp_id": lp.ID, "payout": payout.String()},
	})
	return payout, nil
}

func (s *SettlementService) logInvalid(ctx context.Context, err error, attr slog.Attr) {
	if errors.Is(err, domain.ErrInvalidQuantities) {
		s.logger.ErrorContext(ctx, "invalid quantities in settlement",
			attr,
			slog.String("error", err.Error()),
		)
	}
}

func checkOwner(p domain.Principal, owner string) error {
	if p.IsAnonymous() || domain.NormalizeID(owner) != domain.NormalizeID(p.ID) {
		return fmt.Errorf("settlement_service: caller does not own the position: %w", domain.ErrUnauthorized)
	}
	return nil
}
