package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// State is the resolution state of the option being priced.
type State struct {
	Resolved bool
	Winner   domain.Side
}

// Open is the state of an unresolved option.
var Open = State{}

// YesPrice returns the YES price of a binary pool under an LMSR curve with
// liquidity parameter b:
//
//	p_yes = 1 / (1 + exp((q_no - q_yes) / b))
//
// Resolved options price at exactly 1 or 0. Unresolved prices are clamped
// to [1, Scale-1] micro-units so they stay strictly inside (0,1). The curve
// is only evaluated for q_yes >= q_no; the other half is its complement, so
// YesPrice(a, b) + YesPrice(b, a) == One holds exactly.
func YesPrice(yesQty, noQty, b float64, st State) (Price, error) {
	if st.Resolved {
		if st.Winner == domain.SideYes {
			return One, nil
		}
		return 0, nil
	}
	if err := checkInputs(yesQty, noQty, b); err != nil {
		return 0, err
	}
	if yesQty >= noQty {
		return curve(yesQty-noQty, b), nil
	}
	return curve(noQty-yesQty, b).Complement(), nil
}

// curve prices a non-negative YES lead d. exp only ever sees a
// non-positive argument, so it cannot overflow.
func curve(d, b float64) Price {
	v := 1 / (1 + math.Exp(-d/b))
	p := Price(math.Round(v * float64(Scale)))
	if p >= One {
		p = One - 1
	}
	if p < Half {
		p = Half
	}
	return p
}

func checkInputs(yesQty, noQty, b float64) error {
	switch {
	case math.IsNaN(yesQty) || math.IsInf(yesQty, 0) || yesQty < 0:
		return fmt.Errorf("pricing: yes quantity %v: %w", yesQty, domain.ErrInvalidQuantities)
	case math.IsNaN(noQty) || math.IsInf(noQty, 0) || noQty < 0:
		return fmt.Errorf("pricing: no quantity %v: %w", noQty, domain.ErrInvalidQuantities)
	case math.IsNaN(b) || math.IsInf(b, 0) || b <= 0:
		return fmt.Errorf("pricing: liquidity parameter %v: %w", b, domain.ErrInvalidQuantities)
	}
	return nil
}

// OptionPrice prices a persisted option. The exact decimal quantities are
// converted to float only for the curve evaluation.
func OptionPrice(opt domain.MarketOption, liquidity decimal.Decimal) (Price, error) {
	return YesPrice(
		opt.YesQuantity.InexactFloat64(),
		opt.NoQuantity.InexactFloat64(),
		liquidity.InexactFloat64(),
		State{Resolved: opt.IsResolved, Winner: opt.WinningSide},
	)
}

// Cost is the LMSR cost function b * ln(e^(q_yes/b) + e^(q_no/b)),
// evaluated in log-sum-exp form.
func Cost(yesQty, noQty, b float64) (float64, error) {
	if err := checkInputs(yesQty, noQty, b); err != nil {
		return 0, err
	}
	m := math.Max(yesQty, noQty)
	return m + b*math.Log(math.Exp((yesQty-m)/b)+math.Exp((noQty-m)/b)), nil
}

// TradeCost is the amount a trader pays to buy shares of side from the
// pool, C(q') - C(q).
func TradeCost(yesQty, noQty, b float64, side domain.Side, shares float64) (float64, error) {
	if math.IsNaN(shares) || math.IsInf(shares, 0) || shares < 0 {
		return 0, fmt.Errorf("pricing: shares %v: %w", shares, domain.ErrInvalidQuantities)
	}
	before, err := Cost(yesQty, noQty, b)
	if err != nil {
		return 0, err
	}
	switch side {
	case domain.SideYes:
		yesQty += shares
	case domain.SideNo:
		noQty += shares
	default:
		return 0, fmt.Errorf("pricing: side %d: %w", side, domain.ErrInvalidQuantities)
	}
	after, err := Cost(yesQty, noQty, b)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}
