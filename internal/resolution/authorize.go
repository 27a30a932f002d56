// Package resolution holds the rules that decide whether a resolution
// submission may be applied: submission shape, who may resolve under each
// mode, and how many admins must approve a high-volume market.
package resolution

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/pricing"
)

// CheckSubmission validates the shape of a submission.
func CheckSubmission(sub domain.ResolutionSubmission) error {
	switch {
	case strings.TrimSpace(sub.MarketID) == "":
		return fmt.Errorf("resolution: marketId is required: %w", domain.ErrInvalidRequest)
	case strings.TrimSpace(sub.OptionID) == "":
		return fmt.Errorf("resolution: optionId is required: %w", domain.ErrInvalidRequest)
	case !sub.WinningSide.Valid():
		return fmt.Errorf("resolution: winningSide must be 1 (YES) or 2 (NO), got %d: %w", sub.WinningSide, domain.ErrInvalidRequest)
	}
	return nil
}

// Authorize decides whether p may resolve an option of market under mode.
//
//	ORACLE     creator, admin or registered oracle
//	AUTHORITY  creator or admin
//	OPINION    admin override only; automatic resolution goes through
//	           AuthorizeByPrice
//	LEGACY     creator or admin
func Authorize(mode domain.ResolutionMode, market domain.Market, p domain.Principal, isOracle bool) error {
	if p.IsAnonymous() {
		return fmt.Errorf("resolution: anonymous caller: %w", domain.ErrUnauthorized)
	}
	creator := market.CreatorID != "" && domain.NormalizeID(market.CreatorID) == domain.NormalizeID(p.ID)
	admin := p.HasRole(domain.RoleAdmin)

	var ok bool
	switch mode {
	case domain.ResolutionModeOracle:
		ok = creator || admin || isOracle
	case domain.ResolutionModeAuthority:
		ok = creator || admin
	case domain.ResolutionModeOpinion:
		ok = admin
	case domain.ResolutionModeLegacy:
		ok = creator || admin
	default:
		return fmt.Errorf("resolution: unknown mode %q: %w", string(mode), domain.ErrUnauthorized)
	}
	if !ok {
		return fmt.Errorf("resolution: %s may not resolve %s market %s: %w", p.ID, mode, market.ID, domain.ErrUnauthorized)
	}
	return nil
}

// AuthorizeByPrice decides whether p may resolve an OPINION option from its
// final price: the system principal or an admin.
func AuthorizeByPrice(market domain.Market, p domain.Principal) error {
	if p.IsAnonymous() {
		return fmt.Errorf("resolution: anonymous caller: %w", domain.ErrUnauthorized)
	}
	if market.ResolutionMode != domain.ResolutionModeOpinion {
		return fmt.Errorf("resolution: market %s is %s, price-derived resolution needs OPINION: %w",
			market.ID, market.ResolutionMode, domain.ErrInvalidRequest)
	}
	if !p.HasRole(domain.RoleAdmin) && !p.HasRole(domain.RoleSystem) {
		return fmt.Errorf("resolution: %s may not resolve market %s by price: %w", p.ID, market.ID, domain.ErrUnauthorized)
	}
	return nil
}

// OutcomeFromPrice derives the winner of an OPINION option from its final
// YES price. An exactly even price decides nothing.
func OutcomeFromPrice(p pricing.Price) (domain.Side, error) {
	switch {
	case p > pricing.Half:
		return domain.SideYes, nil
	case p < pricing.Half:
		return domain.SideNo, nil
	default:
		return domain.SideNone, fmt.Errorf("resolution: final price %s: %w", p, domain.ErrAmbiguousOutcome)
	}
}
