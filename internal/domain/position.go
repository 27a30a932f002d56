package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a trader's holding on one side of an option. It is owned by
// the external ledger; the core only reads it and marks it claimed.
type Position struct {
	ID        string
	Owner     string
	MarketID  string
	OptionID  string
	Side      Side
	Shares    decimal.Decimal
	ClaimedAt *time.Time
	Payout    *decimal.Decimal
}

// LiquidityPosition is an LP's share of a market's shared pool.
type LiquidityPosition struct {
	ID          string
	Owner       string
	MarketID    string
	Shares      decimal.Decimal
	WithdrawnAt *time.Time
	Payout      *decimal.Decimal
}

// Fill is an executed trade reported by the external matching layer.
type Fill struct {
	OptionID string          `json:"optionId"`
	Side     Side            `json:"side"`
	Shares   decimal.Decimal `json:"shares"`
	Notional decimal.Decimal `json:"notional"`
}
