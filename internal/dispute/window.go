// Package dispute decides whether a resolved option can still be
// challenged and when its resolution becomes final.
package dispute

import (
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Status is the dispute-window state of an option.
type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusOpen       Status = "open"
	StatusDisputed   Status = "disputed"
	StatusFinal      Status = "final"
)

// Policy controls how a filed dispute affects finality. With the zero
// value a resolution becomes final when the window closes whether or not
// it was disputed. HoldWhileDisputed keeps disputed options non-final
// until an operator clears them.
type Policy struct {
	HoldWhileDisputed bool
}

// Deadline returns the dispute deadline for an option resolved at
// resolvedAt. Legacy markets and a zero period have no window.
func Deadline(mode domain.ResolutionMode, resolvedAt time.Time, period time.Duration) *time.Time {
	if mode == domain.ResolutionModeLegacy || period <= 0 {
		return nil
	}
	d := resolvedAt.Add(period).UTC()
	return &d
}

// IsOpen reports whether a dispute can be raised: now is strictly before
// the deadline. A nil deadline has no window.
func IsOpen(deadline *time.Time, now time.Time) bool {
	return deadline != nil && now.Before(*deadline)
}

// IsFinal reports whether the resolution is final under the default
// policy. hasDispute does not delay finality.
func IsFinal(deadline *time.Time, now time.Time, hasDispute bool) bool {
	return Policy{}.IsFinal(deadline, now, hasDispute)
}

// IsFinal reports whether the resolution is final under p.
func (p Policy) IsFinal(deadline *time.Time, now time.Time, hasDispute bool) bool {
	if IsOpen(deadline, now) {
		return false
	}
	if p.HoldWhileDisputed && hasDispute {
		return false
	}
	return true
}

// StatusOf classifies an option at now.
func StatusOf(opt domain.MarketOption, now time.Time, hasDispute bool, p Policy) Status {
	switch {
	case !opt.IsResolved:
		return StatusUnresolved
	case p.IsFinal(opt.DisputeDeadline, now, hasDispute):
		return StatusFinal
	case hasDispute:
		return StatusDisputed
	default:
		return StatusOpen
	}
}

// OptionFinal reports whether opt is resolved and final.
func OptionFinal(opt domain.MarketOption, now time.Time, hasDispute bool, p Policy) bool {
	return opt.IsResolved && p.IsFinal(opt.DisputeDeadline, now, hasDispute)
}

// CanRaise checks that a dispute may be filed against opt at now.
func CanRaise(opt domain.MarketOption, now time.Time) error {
	if !opt.IsResolved {
		return domain.ErrNotResolved
	}
	if !IsOpen(opt.DisputeDeadline, now) {
		return domain.ErrDisputeWindowClosed
	}
	return nil
}
