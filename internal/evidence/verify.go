package evidence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SignatureVerifier checks the cryptographic proof carried by evidence.
// Implementations return an error wrapping domain.ErrInvalidEvidence when
// the proof does not hold.
type SignatureVerifier interface {
	Verify(ctx context.Context, ev *Evidence) error
}

// PresenceVerifier only checks that an api signature is non-empty. It does
// not authenticate anything and must only be used when unverified oracle
// evidence is explicitly allowed.
type PresenceVerifier struct{}

func (PresenceVerifier) Verify(_ context.Context, ev *Evidence) error {
	if p, ok := ev.Proof.(APIProof); ok && p.Signature == "" {
		return invalid("api evidence has no signature")
	}
	return nil
}

// VerifyWithin runs v against ev under a deadline. A verifier that does not
// answer in time fails the submission.
func VerifyWithin(ctx context.Context, v SignatureVerifier, ev *Evidence, timeout time.Duration) error {
	if timeout <= 0 {
		return v.Verify(ctx, ev)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- v.Verify(ctx, ev) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return invalid("signature verification timed out after %s", timeout)
		}
		return fmt.Errorf("evidence: verify: %w", ctx.Err())
	}
}
