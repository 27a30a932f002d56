package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/pricing"
)

var bpsDenominator = decimal.NewFromInt(10_000)

// Quote is the current price of an option.
type Quote struct {
	OptionID string        `json:"optionId"`
	MarketID string        `json:"marketId"`
	Yes      pricing.Price `json:"yes"`
	No       pricing.Price `json:"no"`
	Resolved bool          `json:"resolved"`
	At       time.Time     `json:"at"`
}

// CostQuote is the cost of buying shares of one side at the current pool.
type CostQuote struct {
	OptionID string      `json:"optionId"`
	Side     domain.Side `json:"side"`
	Shares   string      `json:"shares"`
	Cost     string      `json:"cost"`
}

// PriceService ingests trade fills and prices options. Quantities live in
// the store as exact decimals; the cache only holds the derived display
// price for external readers.
type PriceService struct {
	markets domain.MarketStore
	options domain.OptionStore
	cache   domain.PriceCache
	feeBps  decimal.Decimal
	events  publisher
	logger  *slog.Logger
	now     func() time.Time
}

// NewPriceService creates a PriceService. cache and bus may be nil.
func NewPriceService(
	markets domain.MarketStore,
	options domain.OptionStore,
	cache domain.PriceCache,
	bus domain.SignalBus,
	feeBps int64,
	logger *slog.Logger,
) *PriceService {
	logger = logger.With(slog.String("component", "price_service"))
	return &PriceService{
		markets: markets,
		options: options,
		cache:   cache,
		feeBps:  decimal.NewFromInt(feeBps),
		events:  publisher{bus: bus, logger: logger},
		logger:  logger,
		now:     time.Now,
	}
}

// ApplyFill adds an executed trade to an option's pool, credits volume and
// the LP fee to its market, re-prices the option and publishes the new
// price. Fills are accepted from system and admin principals only.
func (s *PriceService) ApplyFill(ctx context.Context, p domain.Principal, fill domain.Fill) (Quote, error) {
	if !p.HasRole(domain.RoleSystem) && !p.HasRole(domain.RoleAdmin) {
		return Quote{}, fmt.Errorf("price_service: fills require the system or admin role: %w", domain.ErrUnauthorized)
	}
	switch {
	case fill.OptionID == "":
		return Quote{}, fmt.Errorf("price_service: optionId is required: %w", domain.ErrInvalidRequest)
	case !fill.Side.Valid():
		return Quote{}, fmt.Errorf("price_service: side must be 1 (YES) or 2 (NO): %w", domain.ErrInvalidRequest)
	case !fill.Shares.IsPositive():
		return Quote{}, fmt.Errorf("price_service: shares must be positive: %w", domain.ErrInvalidRequest)
	case fill.Notional.IsNegative():
		return Quote{}, fmt.Errorf("price_service: notional must not be negative: %w", domain.ErrInvalidRequest)
	}

	fee := fill.Notional.Mul(s.feeBps).Div(bpsDenominator)
	opt, err := s.options.ApplyFill(ctx, fill, fee)
	if err != nil {
		return Quote{}, fmt.Errorf("price_service: apply fill to %s: %w", fill.OptionID, err)
	}
	market, err := s.markets.GetByID(ctx, opt.MarketID)
	if err != nil {
		return Quote{}, fmt.Errorf("price_service: market %s: %w", opt.MarketID, err)
	}

	q, err := s.price(ctx, market, opt)
	if err != nil {
		return Quote{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, opt.ID, q.Yes.Micros(), q.At); err != nil {
			s.logger.WarnContext(ctx, "cache price failed",
				slog.String("option_id", opt.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.events.emit(ctx, domain.Event{
		Type:     domain.EventPriceUpdated,
		MarketID: opt.MarketID,
		OptionID: opt.ID,
		At:       q.At,
		Data: map[string]any{
			"yes":          q.Yes,
			"no":           q.No,
			"yes_quantity": opt.YesQuantity.String(),
			"no_quantity":  opt.NoQuantity.String(),
		},
	})
	return q, nil
}

// Quote prices an option from the persisted pool.
func (s *PriceService) Quote(ctx context.Context, optionID string) (Quote, error) {
	market, opt, err := s.load(ctx, optionID)
	if err != nil {
		return Quote{}, err
	}
	return s.price(ctx, market, opt)
}

// CachedPrice returns the last price written to the cache.
func (s *PriceService) CachedPrice(ctx context.Context, optionID string) (pricing.Price, time.Time, error) {
	if s.cache == nil {
		return 0, time.Time{}, fmt.Errorf("price_service: no price cache: %w", domain.ErrNotFound)
	}
	micros, ts, err := s.cache.GetPrice(ctx, optionID)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("price_service: cached price of %s: %w", optionID, err)
	}
	return pricing.Price(micros), ts, nil
}

// QuoteCost returns what buying shares of side would cost now.
func (s *PriceService) QuoteCost(ctx context.Context, optionID string, side domain.Side, shares decimal.Decimal) (CostQuote, error) {
	market, opt, err := s.load(ctx, optionID)
	if err != nil {
		return CostQuote{}, err
	}
	if opt.IsResolved {
		return CostQuote{}, fmt.Errorf("price_service: option %s: %w", optionID, domain.ErrAlreadyResolved)
	}
	if !side.Valid() || !shares.IsPositive() {
		return CostQuote{}, fmt.Errorf("price_service: side and positive shares are required: %w", domain.ErrInvalidRequest)
	}
	cost, err := pricing.TradeCost(
		opt.YesQuantity.InexactFloat64(),
		opt.NoQuantity.InexactFloat64(),
		market.LiquidityParameter.InexactFloat64(),
		side,
		shares.InexactFloat64(),
	)
	if err != nil {
		s.logInvalid(ctx, opt.ID, err)
		return CostQuote{}, fmt.Errorf("price_service: cost of %s: %w", optionID, err)
	}
	return CostQuote{
		OptionID: opt.ID,
		Side:     side,
		Shares:   shares.String(),
		Cost:     decimal.NewFromFloat(cost).Round(6).String(),
	}, nil
}

func (s *PriceService) load(ctx context.Context, optionID string) (domain.Market, domain.MarketOption, error) {
	opt, err := s.options.GetByID(ctx, optionID)
	if err != nil {
		return domain.Market{}, domain.MarketOption{}, fmt.Errorf("price_service: option %s: %w", optionID, err)
	}
	market, err := s.markets.GetByID(ctx, opt.MarketID)
	if err != nil {
		return domain.Market{}, domain.MarketOption{}, fmt.Errorf("price_service: market %s: %w", opt.MarketID, err)
	}
	return market, opt, nil
}

func (s *PriceService) price(ctx context.Context, market domain.Market, opt domain.MarketOption) (Quote, error) {
	yes, err := pricing.OptionPrice(opt, market.LiquidityParameter)
	if err != nil {
		s.logInvalid(ctx, opt.ID, err)
		return Quote{}, fmt.Errorf("price_service: price option %s: %w", opt.ID, err)
	}
	return Quote{
		OptionID: opt.ID,
		MarketID: market.ID,
		Yes:      yes,
		No:       yes.Complement(),
		Resolved: opt.IsResolved,
		At:       s.now().UTC(),
	}, nil
}

func (s *PriceService) logInvalid(ctx context.Context, optionID string, err error) {
	if errors.Is(err, domain.ErrInvalidQuantities) {
		s.logger.ErrorContext(ctx, "invalid quantities while pricing",
			slog.String("option_id", optionID),
			slog.String("error", err.Error()),
		)
	}
}
