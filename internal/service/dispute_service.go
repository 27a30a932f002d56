package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketcore/internal/dispute"
	"github.com/alanyoungcy/marketcore/internal/domain"
)

// maxReasonLen bounds a dispute reason, in runes.
const maxReasonLen = 2000

// DisputeService records disputes against resolved options. A dispute
// flags the resolution for manual review; it never changes the outcome.
type DisputeService struct {
	options  domain.OptionStore
	disputes domain.DisputeStore
	audit    domain.AuditStore
	events   publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewDisputeService creates a DisputeService. bus and notifier may be nil.
func NewDisputeService(
	options domain.OptionStore,
	disputes domain.DisputeStore,
	audit domain.AuditStore,
	bus domain.SignalBus,
	notifier Notifier,
	logger *slog.Logger,
) *DisputeService {
	logger = logger.With(slog.String("component", "dispute_service"))
	return &DisputeService{
		options:  options,
		disputes: disputes,
		audit:    audit,
		events:   publisher{bus: bus, notifier: notifier, logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

// Raise files a dispute. The option must be resolved and its window still
// open; each caller may dispute an option once.
func (s *DisputeService) Raise(ctx context.Context, p domain.Principal, req domain.DisputeRequest) (domain.Dispute, error) {
	if p.IsAnonymous() {
		return domain.Dispute{}, fmt.Errorf("dispute_service: anonymous caller: %w", domain.ErrUnauthorized)
	}
	reason := strings.TrimSpace(req.Reason)
	switch {
	case strings.TrimSpace(req.OptionID) == "":
		return domain.Dispute{}, fmt.Errorf("dispute_service: optionId is required: %w", domain.ErrInvalidRequest)
	case reason == "":
		return domain.Dispute{}, fmt.Errorf("dispute_service: reason is required: %w", domain.ErrInvalidRequest)
	case utf8.RuneCountInString(reason) > maxReasonLen:
		return domain.Dispute{}, fmt.Errorf("dispute_service: reason exceeds %d characters: %w", maxReasonLen, domain.ErrInvalidRequest)
	}

	opt, err := s.options.GetByID(ctx, req.OptionID)
	if err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute_service: option %s: %w", req.OptionID, err)
	}
	if req.MarketID != "" && req.MarketID != opt.MarketID {
		return domain.Dispute{}, fmt.Errorf("dispute_service: option %s is not in market %s: %w",
			req.OptionID, req.MarketID, domain.ErrNotFound)
	}

	now := s.now().UTC()
	if err := dispute.CanRaise(opt, now); err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute_service: option %s: %w", opt.ID, err)
	}

	d := domain.Dispute{
		ID:       uuid.NewString(),
		MarketID: opt.MarketID,
		OptionID: opt.ID,
		RaisedBy: domain.NormalizeID(p.ID),
		Reason:   reason,
		RaisedAt: now,
	}
	if err := s.disputes.Create(ctx, d); err != nil {
		return domain.Dispute{}, fmt.Errorf("dispute_service: record dispute on %s: %w", opt.ID, err)
	}

	s.logger.InfoContext(ctx, "dispute raised",
		slog.String("market_id", d.MarketID),
		slog.String("option_id", d.OptionID),
		slog.String("raised_by", d.RaisedBy),
	)
	audit(ctx, s.audit, s.logger, "dispute.raised", map[string]any{
		"dispute_id": d.ID,
		"market_id":  d.MarketID,
		"option_id":  d.OptionID,
		"raised_by":  d.RaisedBy,
		"reason":     d.Reason,
	})
	s.events.emit(ctx, domain.Event{
		Type:     domain.EventDisputeRaised,
		MarketID: d.MarketID,
		OptionID: d.OptionID,
		At:       now,
		Data: map[string]any{
			"dispute_id": d.ID,
			"raised_by":  d.RaisedBy,
			"reason":     d.Reason,
		},
	})
	return d, nil
}

// List returns the disputes filed against an option.
func (s *DisputeService) List(ctx context.Context, optionID string) ([]domain.Dispute, error) {
	if strings.TrimSpace(optionID) == "" {
		return nil, fmt.Errorf("dispute_service: option_id is required: %w", domain.ErrInvalidRequest)
	}
	ds, err := s.disputes.ListByOption(ctx, optionID)
	if err != nil {
		return nil, fmt.Errorf("dispute_service: list disputes of %s: %w", optionID, err)
	}
	return ds, nil
}
