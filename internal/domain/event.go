package domain

import "time"

// EventType names a domain event produced for external consumers.
type EventType string

const (
	EventPriceUpdated       EventType = "price_updated"
	EventOptionResolved     EventType = "option_resolved"
	EventMarketResolved     EventType = "market_resolved"
	EventDisputeRaised      EventType = "dispute_raised"
	EventOptionFinalized    EventType = "option_finalized"
	EventMarketFinalized    EventType = "market_finalized"
	EventPositionClaimed    EventType = "position_claimed"
	EventLiquidityWithdrawn EventType = "liquidity_withdrawn"
)

// Channel returns the pub/sub channel the event is published on.
func (t EventType) Channel() string {
	switch t {
	case EventPriceUpdated:
		return "events:prices"
	case EventDisputeRaised:
		return "events:disputes"
	case EventPositionClaimed, EventLiquidityWithdrawn:
		return "events:settlements"
	default:
		return "events:resolutions"
	}
}

// EventStream is the durable stream every event is appended to.
const EventStream = "stream:events"

// Event is the JSON envelope published on the signal bus.
type Event struct {
	Type     EventType      `json:"event"`
	MarketID string         `json:"market_id"`
	OptionID string         `json:"option_id,omitempty"`
	At       time.Time      `json:"at"`
	Data     map[string]any `json:"data,omitempty"`
}
