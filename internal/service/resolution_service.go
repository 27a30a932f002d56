package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/dispute"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/evidence"
	"github.com/alanyoungcy/marketcore/internal/pricing"
	"github.com/alanyoungcy/marketcore/internal/registry"
	"github.com/alanyoungcy/marketcore/internal/resolution"
)

// EvidenceArchiver stores canonical evidence payloads by hash.
type EvidenceArchiver interface {
	Store(ctx context.Context, hash string, canonical []byte) error
}

// ResolutionConfig holds the tunables of the resolution path.
type ResolutionConfig struct {
	DisputePeriod time.Duration
	LockTTL       time.Duration
	VerifyTimeout time.Duration
	Quorum        resolution.Policy
	ChainID       int64
}

// ResolutionDeps are the collaborators of a ResolutionService. Locks,
// Archive, Bus and Notifier are optional.
type ResolutionDeps struct {
	Markets   domain.MarketStore
	Options   domain.OptionStore
	Records   domain.ResolutionStore
	Audit     domain.AuditStore
	Locks     domain.LockManager
	Directory domain.IdentityDirectory
	Verifier  evidence.SignatureVerifier
	Archive   EvidenceArchiver
	Bus       domain.SignalBus
	Notifier  Notifier
}

// Applied describes a committed resolution.
type Applied struct {
	Resolution     domain.Resolution
	Option         domain.MarketOption
	MarketResolved bool
}

// ResolutionService applies resolution submissions. Every path runs the
// same guard chain: per-option lock, authorization, evidence, quorum, and
// finally the store's compare-and-set, which is what makes resolution
// exactly-once across processes.
type ResolutionService struct {
	deps   ResolutionDeps
	cfg    ResolutionConfig
	domain crypto.Domain
	events publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewResolutionService creates a ResolutionService.
func NewResolutionService(deps ResolutionDeps, cfg ResolutionConfig, logger *slog.Logger) *ResolutionService {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if deps.Directory == nil {
		deps.Directory = registry.New(nil, nil)
	}
	logger = logger.With(slog.String("component", "resolution_service"))
	return &ResolutionService{
		deps:   deps,
		cfg:    cfg,
		domain: crypto.NewDomain(cfg.ChainID),
		events: publisher{bus: deps.Bus, notifier: deps.Notifier, logger: logger},
		logger: logger,
		now:    time.Now,
	}
}

// Submit resolves one option from an explicit submission.
func (s *ResolutionService) Submit(ctx context.Context, p domain.Principal, sub domain.ResolutionSubmission) (Applied, error) {
	if err := resolution.CheckSubmission(sub); err != nil {
		return Applied{}, err
	}
	unlock, err := s.lockUnresolved(ctx, sub.MarketID, sub.OptionID)
	if err != nil {
		return Applied{}, err
	}
	defer unlock()

	market, _, err := s.load(ctx, sub.MarketID, sub.OptionID)
	if err != nil {
		return Applied{}, err
	}
	return s.apply(ctx, p, market, sub, false)
}

// OpinionRequest asks for an OPINION option to be resolved from its
// current price.
type OpinionRequest struct {
	MarketID  string            `json:"marketId"`
	OptionID  string            `json:"optionId"`
	Approvals []domain.Approval `json:"approvals,omitempty"`
}

// ResolveByPrice resolves an OPINION option from its final YES price: YES
// above one half, NO below. An exactly even price is ambiguous and
// resolves nothing.
func (s *ResolutionService) ResolveByPrice(ctx context.Context, p domain.Principal, req OpinionRequest) (Applied, error) {
	if strings.TrimSpace(req.MarketID) == "" || strings.TrimSpace(req.OptionID) == "" {
		return Applied{}, fmt.Errorf("resolution_service: marketId and optionId are required: %w", domain.ErrInvalidRequest)
	}
	unlock, err := s.lockUnresolved(ctx, req.MarketID, req.OptionID)
	if err != nil {
		return Applied{}, err
	}
	defer unlock()

	// Reload under the lock so the price reflects every fill applied so far.
	market, opt, err := s.load(ctx, req.MarketID, req.OptionID)
	if err != nil {
		return Applied{}, err
	}
	if err := resolution.AuthorizeByPrice(market, p); err != nil {
		return Applied{}, err
	}

	price, err := pricing.OptionPrice(opt, market.LiquidityParameter)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidQuantities) {
			s.logger.ErrorContext(ctx, "invalid pool state while pricing option",
				slog.String("option_id", opt.ID),
				slog.String("error", err.Error()),
			)
		}
		return Applied{}, fmt.Errorf("resolution_service: price option %s: %w", opt.ID, err)
	}
	side, err := resolution.OutcomeFromPrice(price)
	if err != nil {
		return Applied{}, err
	}

	return s.apply(ctx, p, market, domain.ResolutionSubmission{
		MarketID:    market.ID,
		OptionID:    opt.ID,
		Outcome:     "price " + price.String(),
		WinningSide: side,
		Approvals:   req.Approvals,
	}, true)
}

// History returns the resolution records of a market, or of one of its
// options when optionID is set, oldest first.
func (s *ResolutionService) History(ctx context.Context, marketID, optionID string) ([]domain.Resolution, error) {
	if optionID != "" {
		if _, _, err := s.load(ctx, marketID, optionID); err != nil {
			return nil, err
		}
		recs, err := s.deps.Records.ListByOption(ctx, optionID)
		if err != nil {
			return nil, fmt.Errorf("resolution_service: history of option %s: %w", optionID, err)
		}
		return recs, nil
	}

	if _, err := s.deps.Markets.GetByID(ctx, marketID); err != nil {
		return nil, fmt.Errorf("resolution_service: market %s: %w", marketID, err)
	}
	recs, err := s.deps.Records.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: history of market %s: %w", marketID, err)
	}
	return recs, nil
}

// lockUnresolved fast-fails on a missing or already resolved option, then
// takes the per-option lock.
func (s *ResolutionService) lockUnresolved(ctx context.Context, marketID, optionID string) (func(), error) {
	_, opt, err := s.load(ctx, marketID, optionID)
	if err != nil {
		return nil, err
	}
	if opt.IsResolved {
		return nil, fmt.Errorf("resolution_service: option %s: %w", optionID, domain.ErrAlreadyResolved)
	}
	if s.deps.Locks == nil {
		return func() {}, nil
	}
	unlock, err := s.deps.Locks.Acquire(ctx, "resolve:"+optionID, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("resolution_service: lock option %s: %w", optionID, err)
	}
	return unlock, nil
}

func (s *ResolutionService) load(ctx context.Context, marketID, optionID string) (domain.Market, domain.MarketOption, error) {
	market, err := s.deps.Markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, domain.MarketOption{}, fmt.Errorf("resolution_service: market %s: %w", marketID, err)
	}
	opt, err := s.deps.Options.GetByID(ctx, optionID)
	if err != nil {
		return domain.Market{}, domain.MarketOption{}, fmt.Errorf("resolution_service: option %s: %w", optionID, err)
	}
	if opt.MarketID != market.ID {
		return domain.Market{}, domain.MarketOption{}, fmt.Errorf("resolution_service: option %s is not in market %s: %w",
			optionID, marketID, domain.ErrNotFound)
	}
	return market, opt, nil
}

// apply runs authorization, evidence and quorum checks, then commits.
// byPrice submissions were authorized by ResolveByPrice.
func (s *ResolutionService) apply(ctx context.Context, p domain.Principal, market domain.Market, sub domain.ResolutionSubmission, byPrice bool) (Applied, error) {
	mode := market.ResolutionMode
	if !byPrice {
		isOracle := s.deps.Directory.IsOracle(ctx, p.ID)
		if err := resolution.Authorize(mode, market, p, isOracle); err != nil {
			return Applied{}, err
		}
	}

	ev, err := evidence.Validate(sub.Evidence, mode)
	if err != nil {
		return Applied{}, err
	}
	// Oracle signatures are machine proof for ORACLE markets only; under
	// the other modes the resolver's own authority stands behind evidence.
	if ev.Present && mode == domain.ResolutionModeOracle && s.deps.Verifier != nil {
		if err := evidence.VerifyWithin(ctx, s.deps.Verifier, ev.Evidence, s.cfg.VerifyTimeout); err != nil {
			return Applied{}, err
		}
	}

	required := resolution.RequiredApprovals(market.TotalVolume, s.cfg.Quorum)
	tally := resolution.CountApprovals(ctx, s.deps.Directory, s.domain, p,
		resolution.Payload(sub, ev.Hash), sub.Approvals)
	if err := resolution.CheckQuorum(required, tally); err != nil {
		s.logger.WarnContext(ctx, "resolution rejected: quorum not met",
			slog.String("option_id", sub.OptionID),
			slog.Int("required", required),
			slog.Any("approvers", tally.Approvers),
			slog.Any("rejected", tally.Rejected),
		)
		return Applied{}, err
	}

	now := s.now().UTC()
	deadline := dispute.Deadline(mode, now, s.cfg.DisputePeriod)
	outcome := strings.TrimSpace(sub.Outcome)
	if outcome == "" {
		outcome = sub.WinningSide.String()
	}
	rec := domain.Resolution{
		ID:              uuid.NewString(),
		MarketID:        market.ID,
		OptionID:        sub.OptionID,
		Outcome:         outcome,
		WinningSide:     sub.WinningSide,
		EvidenceHash:    ev.Hash,
		EvidenceSource:  string(ev.Source),
		SubmittedBy:     domain.NormalizeID(p.ID),
		Approvers:       tally.Approvers,
		DisputeDeadline: deadline,
		CreatedAt:       now,
	}

	res, err := s.deps.Options.Resolve(ctx, domain.ResolveParams{
		OptionID:        sub.OptionID,
		WinningSide:     sub.WinningSide,
		DisputeDeadline: deadline,
		EvidenceHash:    ev.Hash,
		ResolvedAt:      now,
		Record:          rec,
	})
	if err != nil {
		return Applied{}, fmt.Errorf("resolution_service: resolve option %s: %w", sub.OptionID, err)
	}

	s.afterCommit(ctx, market, rec, res, ev)

	return Applied{Resolution: rec, Option: res.Option, MarketResolved: res.MarketResolved}, nil
}

func (s *ResolutionService) afterCommit(ctx context.Context, market domain.Market, rec domain.Resolution, res domain.ResolveResult, ev evidence.Result) {
	s.logger.InfoContext(ctx, "option resolved",
		slog.String("market_id", market.ID),
		slog.String("option_id", rec.OptionID),
		slog.String("mode", market.ResolutionMode.String()),
		slog.String("winning_side", rec.WinningSide.String()),
		slog.String("submitted_by", rec.SubmittedBy),
		slog.String("evidence_hash", rec.EvidenceHash),
		slog.Bool("market_resolved", res.MarketResolved),
	)

	if ev.Present && s.deps.Archive != nil {
		if err := s.deps.Archive.Store(ctx, ev.Hash, ev.Evidence.Canonical()); err != nil {
			s.logger.WarnContext(ctx, "archive evidence failed",
				slog.String("evidence_hash", ev.Hash),
				slog.String("error", err.Error()),
			)
		}
	}

	detail := map[string]any{
		"resolution_id": rec.ID,
		"market_id":     rec.MarketID,
		"option_id":     rec.OptionID,
		"mode":          market.ResolutionMode.String(),
		"outcome":       rec.Outcome,
		"winning_side":  int(rec.WinningSide),
		"submitted_by":  rec.SubmittedBy,
		"approvers":     rec.Approvers,
		"evidence_hash": rec.EvidenceHash,
		"source":        rec.EvidenceSource,
	}
	if rec.DisputeDeadline != nil {
		detail["dispute_deadline"] = rec.DisputeDeadline.Format(time.RFC3339)
	}
	audit(ctx, s.deps.Audit, s.logger, "resolution.applied", detail)

	data := map[string]any{
		"winning_side":  int(rec.WinningSide),
		"outcome":       rec.Outcome,
		"evidence_hash": rec.EvidenceHash,
	}
	if rec.DisputeDeadline != nil {
		data["dispute_deadline"] = rec.DisputeDeadline.Format(time.RFC3339)
	}
	s.events.emit(ctx, domain.Event{
		Type:     domain.EventOptionResolved,
		MarketID: market.ID,
		OptionID: rec.OptionID,
		At:       rec.CreatedAt,
		Data:     data,
	})
	if res.MarketResolved {
		s.events.emit(ctx, domain.Event{
			Type:     domain.EventMarketResolved,
			MarketID: market.ID,
			At:       rec.CreatedAt,
		})
	}
}
