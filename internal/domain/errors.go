package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrRateLimited    = errors.New("rate limited")
	ErrLockHeld       = errors.New("lock already held")
	ErrInvalidRequest = errors.New("invalid request")

	// Resolution and settlement taxonomy.
	ErrInvalidEvidence     = errors.New("invalid evidence")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAlreadyResolved     = errors.New("option already resolved")
	ErrQuorumNotMet        = errors.New("multi-admin quorum not met")
	ErrDisputeWindowClosed = errors.New("dispute window closed")
	ErrNotResolved         = errors.New("option not resolved")
	ErrNotFinalized        = errors.New("resolution not finalized")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrAmbiguousOutcome    = errors.New("price does not determine an outcome")

	// ErrInvalidQuantities signals a caller bug: negative or non-finite
	// pricing input. It must be logged and surfaced, never clamped.
	ErrInvalidQuantities = errors.New("invalid quantities")
)
