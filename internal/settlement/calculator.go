// Package settlement computes what finalized trader and LP positions
// redeem for.
package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/dispute"
	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Calculator holds the settlement parameters. UnitValue is what one
// winning share redeems for.
type Calculator struct {
	Policy    dispute.Policy
	UnitValue decimal.Decimal
}

// NewCalculator returns a Calculator; a non-positive unit value defaults
// to 1.
func NewCalculator(p dispute.Policy, unit decimal.Decimal) Calculator {
	if !unit.IsPositive() {
		unit = decimal.NewFromInt(1)
	}
	return Calculator{Policy: p, UnitValue: unit}
}

// TraderPayout returns the redemption value of pos against opt. It fails
// with ErrNotFinalized unless opt is resolved and out of its dispute
// window.
func (c Calculator) TraderPayout(pos domain.Position, opt domain.MarketOption, now time.Time, hasDispute bool) (decimal.Decimal, error) {
	if pos.OptionID != opt.ID {
		return decimal.Zero, fmt.Errorf("settlement: position %s is not on option %s: %w", pos.ID, opt.ID, domain.ErrInvalidRequest)
	}
	if !dispute.OptionFinal(opt, now, hasDispute, c.Policy) {
		return decimal.Zero, domain.ErrNotFinalized
	}
	if pos.Shares.IsNegative() {
		return decimal.Zero, fmt.Errorf("settlement: position %s shares %s: %w", pos.ID, pos.Shares, domain.ErrInvalidQuantities)
	}
	if pos.Side != opt.WinningSide {
		return decimal.Zero, nil
	}
	return pos.Shares.Mul(c.unit()), nil
}

func (c Calculator) unit() decimal.Decimal {
	if c.UnitValue.IsPositive() {
		return c.UnitValue
	}
	return decimal.NewFromInt(1)
}

// MarketFinal reports whether every option of a market is resolved and
// final. disputed maps option IDs to whether a dispute was filed.
func (c Calculator) MarketFinal(opts []domain.MarketOption, now time.Time, disputed map[string]bool) bool {
	if len(opts) == 0 {
		return false
	}
	for _, o := range opts {
		if !dispute.OptionFinal(o, now, disputed[o.ID], c.Policy) {
			return false
		}
	}
	return true
}

// LiquidityPayout is the LP's pro-rata share of liquidity plus fees:
// (liquidity + fees) * shares / totalShares, against the pool totals
// passed in.
func LiquidityPayout(lp domain.LiquidityPosition, pool domain.LiquidityPool) (decimal.Decimal, error) {
	if lp.Shares.IsNegative() || pool.TotalSharedShares.IsNegative() ||
		pool.SharedLiquidity.IsNegative() || pool.AccumulatedFees.IsNegative() {
		return decimal.Zero, fmt.Errorf("settlement: negative pool state: %w", domain.ErrInvalidQuantities)
	}
	if lp.Shares.GreaterThan(pool.TotalSharedShares) {
		return decimal.Zero, fmt.Errorf("settlement: lp %s holds %s of %s shares: %w",
			lp.ID, lp.Shares, pool.TotalSharedShares, domain.ErrInvalidQuantities)
	}
	if lp.Shares.IsZero() {
		return decimal.Zero, nil
	}
	value := pool.SharedLiquidity.Add(pool.AccumulatedFees)
	return value.Mul(lp.Shares).Div(pool.TotalSharedShares), nil
}

// Withdraw computes the LP payout and returns the pool with the LP's
// share of liquidity, fees and shares removed. The last LP out takes the
// remainder so nothing is stranded by division rounding.
func Withdraw(pool domain.LiquidityPool, lp domain.LiquidityPosition) (decimal.Decimal, domain.LiquidityPool, error) {
	payout, err := LiquidityPayout(lp, pool)
	if err != nil {
		return decimal.Zero, pool, err
	}
	if lp.Shares.IsZero() {
		return decimal.Zero, pool, nil
	}
	if lp.Shares.Equal(pool.TotalSharedShares) {
		return pool.SharedLiquidity.Add(pool.AccumulatedFees), domain.LiquidityPool{}, nil
	}

	liq := pool.SharedLiquidity.Mul(lp.Shares).Div(pool.TotalSharedShares)
	fees := payout.Sub(liq)
	next := domain.LiquidityPool{
		SharedLiquidity:   pool.SharedLiquidity.Sub(liq),
		AccumulatedFees:   pool.AccumulatedFees.Sub(fees),
		TotalSharedShares: pool.TotalSharedShares.Sub(lp.Shares),
	}
	if next.AccumulatedFees.IsNegative() {
		next.AccumulatedFees = decimal.Zero
	}
	return payout, next, nil
}
