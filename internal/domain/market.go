package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ResolutionMode is the governance method by which a market's outcome is
// determined.
type ResolutionMode string

const (
	ResolutionModeLegacy    ResolutionMode = ""
	ResolutionModeOracle    ResolutionMode = "ORACLE"
	ResolutionModeAuthority ResolutionMode = "AUTHORITY"
	ResolutionModeOpinion   ResolutionMode = "OPINION"
)

// ParseResolutionMode maps a stored mode string onto the closed enum. Empty
// and "none"/"legacy" map to ResolutionModeLegacy; anything else is an error.
func ParseResolutionMode(s string) (ResolutionMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE", "LEGACY":
		return ResolutionModeLegacy, nil
	case string(ResolutionModeOracle):
		return ResolutionModeOracle, nil
	case string(ResolutionModeAuthority):
		return ResolutionModeAuthority, nil
	case string(ResolutionModeOpinion):
		return ResolutionModeOpinion, nil
	default:
		return ResolutionModeLegacy, fmt.Errorf("unknown resolution mode %q", s)
	}
}

// String returns the stored representation, "LEGACY" for the empty mode.
func (m ResolutionMode) String() string {
	if m == ResolutionModeLegacy {
		return "LEGACY"
	}
	return string(m)
}

// Side identifies one side of a binary option. The numeric values are part
// of the external API (1=YES, 2=NO).
type Side int

const (
	SideNone Side = 0
	SideYes  Side = 1
	SideNo   Side = 2
)

// Valid reports whether s is YES or NO.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

func (s Side) String() string {
	switch s {
	case SideYes:
		return "YES"
	case SideNo:
		return "NO"
	default:
		return "NONE"
	}
}

// LiquidityPool holds the shared LP totals of a market.
type LiquidityPool struct {
	SharedLiquidity   decimal.Decimal
	AccumulatedFees   decimal.Decimal
	TotalSharedShares decimal.Decimal
}

// Market is a prediction market. IsResolved is derived by the store: it is
// true exactly when every option of the market is resolved.
type Market struct {
	ID                 string
	Question           string
	CreatorID          string
	LiquidityParameter decimal.Decimal
	ResolutionMode     ResolutionMode
	IsResolved         bool
	TotalVolume        decimal.Decimal
	Pool               LiquidityPool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MarketOption is one binary YES/NO pool of a market. WinningSide is
// non-zero iff IsResolved.
type MarketOption struct {
	ID              string
	MarketID        string
	Label           string
	YesQuantity     decimal.Decimal
	NoQuantity      decimal.Decimal
	IsResolved      bool
	WinningSide     Side
	DisputeDeadline *time.Time
	EvidenceHash    string
	ResolvedAt      *time.Time
	FinalizedAt     *time.Time
}

// AllResolved reports whether every option is resolved. An empty slice is
// never resolved.
func AllResolved(opts []MarketOption) bool {
	if len(opts) == 0 {
		return false
	}
	for _, o := range opts {
		if !o.IsResolved {
			return false
		}
	}
	return true
}
