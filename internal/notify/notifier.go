// Package notify forwards resolution and dispute events to operator chat
// channels. Disputes in particular need a human: the core records them but
// never overturns an outcome on its own.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches domain events to every configured Sender. Only event
// types in the allow list are forwarded; an empty list forwards all.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier for senders, filtered to events.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether ev would be forwarded.
func (n *Notifier) Enabled(t domain.EventType) bool {
	if n == nil || len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[t]
}

// Notify formats ev and sends it to every sender. A failing sender does not
// stop delivery to the others; all failures are joined into the result.
func (n *Notifier) Notify(ctx context.Context, ev domain.Event) error {
	if !n.Enabled(ev.Type) {
		return nil
	}
	title, message := Format(ev)

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("event", string(ev.Type)),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

// Format renders an event as a title and a plain-text body.
func Format(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventDisputeRaised:
		title = "Dispute raised: manual review required"
	case domain.EventOptionResolved:
		title = "Option resolved"
	case domain.EventMarketResolved:
		title = "Market resolved"
	case domain.EventOptionFinalized:
		title = "Option finalized"
	case domain.EventMarketFinalized:
		title = "Market finalized"
	default:
		title = string(ev.Type)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "market: %s", ev.MarketID)
	if ev.OptionID != "" {
		fmt.Fprintf(&b, "\noption: %s", ev.OptionID)
	}
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, ev.Data[k])
	}
	return title, b.String()
}
