// Package pricing turns pooled outcome quantities into displayed prices.
// Everything here is pure and allocation-free.
package pricing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Price is a probability in fixed-point micro-units: Scale is 1.0.
type Price int64

var (
	_ json.Marshaler   = Price(0)
	_ json.Unmarshaler = (*Price)(nil)
)

// Scale is the fixed-point denominator of a Price.
const Scale int64 = 1_000_000

const (
	// One is the price of a resolved winning side.
	One Price = Price(Scale)
	// Half is the price of a balanced pool.
	Half Price = Price(Scale / 2)
)

// Complement returns the price of the opposite side, 1 - p, exactly.
func (p Price) Complement() Price {
	return Price(Scale) - p
}

// Float64 returns p as a float in [0,1]. Display only.
func (p Price) Float64() float64 {
	return float64(p) / float64(Scale)
}

// Decimal returns p as an exact decimal.
func (p Price) Decimal() decimal.Decimal {
	return decimal.New(int64(p), -6)
}

// Micros returns the raw fixed-point value.
func (p Price) Micros() int64 {
	return int64(p)
}

func (p Price) String() string {
	return p.Decimal().StringFixed(6)
}

// MarshalJSON encodes p as a JSON number with six decimals.
func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (p *Price) UnmarshalJSON(data []byte) error {
	if len(data) > 2 && data[0] == '"' && data[len(data)-1] == '"' {
		data = data[1 : len(data)-1]
	}
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return err
	}
	*p = Price(d.Shift(6).Round(0).IntPart())
	return nil
}
