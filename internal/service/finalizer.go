package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketcore/internal/dispute"
	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Finalizer marks resolved options final once their dispute window has
// closed and announces option_finalized and market_finalized. Finality
// itself is computed from the deadline; the finalized_at stamp only makes
// the announcement happen once per option.
type Finalizer struct {
	markets  domain.MarketStore
	options  domain.OptionStore
	disputes domain.DisputeStore
	policy   dispute.Policy
	interval time.Duration
	batch    int
	events   publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewFinalizer creates a Finalizer polling every interval.
func NewFinalizer(
	markets domain.MarketStore,
	options domain.OptionStore,
	disputes domain.DisputeStore,
	bus domain.SignalBus,
	notifier Notifier,
	policy dispute.Policy,
	interval time.Duration,
	logger *slog.Logger,
) *Finalizer {
	if interval <= 0 {
		interval = time.Minute
	}
	logger = logger.With(slog.String("component", "finalizer"))
	return &Finalizer{
		markets:  markets,
		options:  options,
		disputes: disputes,
		policy:   policy,
		interval: interval,
		batch:    100,
		events:   publisher{bus: bus, notifier: notifier, logger: logger},
		logger:   logger,
		now:      time.Now,
	}
}

// Run scans until ctx is cancelled.
func (f *Finalizer) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		if _, err := f.RunOnce(ctx); err != nil {
			f.logger.ErrorContext(ctx, "finalizer scan failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce finalizes every eligible option and returns how many it marked.
func (f *Finalizer) RunOnce(ctx context.Context) (int, error) {
	now := f.now().UTC()
	marked := 0
	touched := make(map[string]struct{})

	// Held options stay in the listing, so the page grows by the number
	// held to keep making progress past them.
	held := make(map[string]bool)
	for {
		limit := f.batch + len(held)
		opts, err := f.options.ListFinalizable(ctx, now, limit)
		if err != nil {
			return marked, fmt.Errorf("finalizer: list finalizable: %w", err)
		}
		progressed := false
		for _, o := range opts {
			if held[o.ID] {
				continue
			}
			if f.policy.HoldWhileDisputed {
				disputed, err := f.disputes.HasDispute(ctx, o.ID)
				if err != nil {
					return marked, fmt.Errorf("finalizer: disputes of %s: %w", o.ID, err)
				}
				if disputed {
					held[o.ID] = true
					progressed = true
					continue
				}
			}
			ok, err := f.options.MarkFinalized(ctx, o.ID, now)
			if err != nil {
				return marked, fmt.Errorf("finalizer: mark %s: %w", o.ID, err)
			}
			if !ok {
				continue
			}
			marked++
			progressed = true
			touched[o.MarketID] = struct{}{}
			f.events.emit(ctx, domain.Event{
				Type:     domain.EventOptionFinalized,
				MarketID: o.MarketID,
				OptionID: o.ID,
				At:       now,
				Data:     map[string]any{"winning_side": int(o.WinningSide)},
			})
		}
		if len(opts) < limit || !progressed {
			break
		}
	}

	for marketID := range touched {
		opts, err := f.markets.ListOptions(ctx, marketID)
		if err != nil {
			return marked, fmt.Errorf("finalizer: options of %s: %w", marketID, err)
		}
		if allFinalized(opts) {
			f.logger.InfoContext(ctx, "market finalized", slog.String("market_id", marketID))
			f.events.emit(ctx, domain.Event{Type: domain.EventMarketFinalized, MarketID: marketID, At: now})
		}
	}
	if marked > 0 {
		f.logger.InfoContext(ctx, "options finalized", slog.Int("count", marked))
	}
	return marked, nil
}

func allFinalized(opts []domain.MarketOption) bool {
	if len(opts) == 0 {
		return false
	}
	for _, o := range opts {
		if !o.IsResolved || o.FinalizedAt == nil {
			return false
		}
	}
	return true
}
