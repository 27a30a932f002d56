package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Notifier forwards events to operators.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event) error
}

// publisher fans a domain event out to the signal bus (pub/sub channel and
// durable stream) and, for operator-relevant events, the notifier. Delivery
// is best effort: the state change has already committed, so failures are
// logged and never returned.
type publisher struct {
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

func (p publisher) emit(ctx context.Context, ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if p.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			p.logger.ErrorContext(ctx, "marshal event failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
			return
		}
		if err := p.bus.Publish(ctx, ev.Type.Channel(), payload); err != nil {
			p.logger.WarnContext(ctx, "publish event failed",
				slog.String("event", string(ev.Type)),
				slog.String("market_id", ev.MarketID),
				slog.String("error", err.Error()),
			)
		}
		if err := p.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
			p.logger.WarnContext(ctx, "append event to stream failed",
				slog.String("event", string(ev.Type)),
				slog.String("market_id", ev.MarketID),
				slog.String("error", err.Error()),
			)
		}
	}
	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, ev); err != nil {
			p.logger.WarnContext(ctx, "notify failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// audit appends an audit entry, logging instead of failing.
func audit(ctx context.Context, store domain.AuditStore, logger *slog.Logger, event string, detail map[string]any) {
	if store == nil {
		return
	}
	if err := store.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("audit_event", event),
			slog.String("error", err.Error()),
		)
	}
}
