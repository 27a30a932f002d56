package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketcore/internal/dispute"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/pricing"
)

// OptionView is an option with its current price and window status.
type OptionView struct {
	ID              string         `json:"id"`
	Label           string         `json:"label"`
	YesQuantity     string         `json:"yesQuantity"`
	NoQuantity      string         `json:"noQuantity"`
	Yes             pricing.Price  `json:"yes"`
	No              pricing.Price  `json:"no"`
	IsResolved      bool           `json:"isResolved"`
	WinningSide     domain.Side    `json:"winningSide,omitempty"`
	DisputeDeadline *time.Time     `json:"disputeDeadline,omitempty"`
	EvidenceHash    string         `json:"evidenceHash,omitempty"`
	Status          dispute.Status `json:"status"`
}

// MarketView is the read model of a market.
type MarketView struct {
	ID                 string       `json:"id"`
	Question           string       `json:"question"`
	CreatorID          string       `json:"creatorId"`
	ResolutionMode     string       `json:"resolutionMode"`
	LiquidityParameter string       `json:"liquidityParameter"`
	IsResolved         bool         `json:"isResolved"`
	TotalVolume        string       `json:"totalVolume"`
	SharedLiquidity    string       `json:"sharedLiquidity"`
	AccumulatedFees    string       `json:"accumulatedFees"`
	Options            []OptionView `json:"options"`
}

// MarketService builds market read models.
type MarketService struct {
	markets  domain.MarketStore
	disputes domain.DisputeStore
	policy   dispute.Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewMarketService creates a MarketService.
func NewMarketService(markets domain.MarketStore, disputes domain.DisputeStore, policy dispute.Policy, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets:  markets,
		disputes: disputes,
		policy:   policy,
		logger:   logger.With(slog.String("component", "market_service")),
		now:      time.Now,
	}
}

// View returns a market with every option priced and classified.
func (s *MarketService) View(ctx context.Context, marketID string) (MarketView, error) {
	m, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return MarketView{}, fmt.Errorf("market_service: market %s: %w", marketID, err)
	}
	opts, err := s.markets.ListOptions(ctx, marketID)
	if err != nil {
		return MarketView{}, fmt.Errorf("market_service: options of %s: %w", marketID, err)
	}
	disputed, err := s.disputes.DisputedOptions(ctx, marketID)
	if err != nil {
		return MarketView{}, fmt.Errorf("market_service: disputes of %s: %w", marketID, err)
	}

	now := s.now().UTC()
	v := MarketView{
		ID:                 m.ID,
		Question:           m.Question,
		CreatorID:          m.CreatorID,
		ResolutionMode:     m.ResolutionMode.String(),
		LiquidityParameter: m.LiquidityParameter.String(),
		IsResolved:         m.IsResolved,
		TotalVolume:        m.TotalVolume.String(),
		SharedLiquidity:    m.Pool.SharedLiquidity.String(),
		AccumulatedFees:    m.Pool.AccumulatedFees.String(),
		Options:            make([]OptionView, 0, len(opts)),
	}
	for _, o := range opts {
		yes, err := pricing.OptionPrice(o, m.LiquidityParameter)
		if err != nil {
			s.logger.ErrorContext(ctx, "invalid quantities while pricing",
				slog.String("option_id", o.ID),
				slog.String("error", err.Error()),
			)
			return MarketView{}, fmt.Errorf("market_service: price option %s: %w", o.ID, err)
		}
		v.Options = append(v.Options, OptionView{
			ID:              o.ID,
			Label:           o.Label,
			YesQuantity:     o.YesQuantity.String(),
			NoQuantity:      o.NoQuantity.String(),
			Yes:             yes,
			No:              yes.Complement(),
			IsResolved:      o.IsResolved,
			WinningSide:     o.WinningSide,
			DisputeDeadline: o.DisputeDeadline,
			EvidenceHash:    o.EvidenceHash,
			Status:          dispute.StatusOf(o, now, disputed[o.ID], s.policy),
		})
	}
	return v, nil
}
