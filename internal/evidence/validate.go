package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Result is the outcome of a successful validation. Present is false when
// an OPINION or LEGACY submission carried no evidence.
type Result struct {
	Present  bool
	Hash     string
	Source   Source
	Evidence *Evidence
}

// Hash returns hex(SHA-256(canonical JSON)) of raw, independent of key
// order and whitespace.
func Hash(raw []byte) (string, error) {
	ev, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return ev.Hash(), nil
}

// Hash returns the hex SHA-256 digest of the canonical payload.
func (e *Evidence) Hash() string {
	sum := sha256.Sum256(e.canonical)
	return hex.EncodeToString(sum[:])
}

// Validate checks raw evidence against the proof requirements of mode.
// A nil or "null" raw payload means no evidence was supplied.
func Validate(raw []byte, mode domain.ResolutionMode) (Result, error) {
	present := len(raw) > 0 && string(raw) != "null"

	switch mode {
	case domain.ResolutionModeOpinion, domain.ResolutionModeLegacy:
		if !present {
			return Result{}, nil
		}
	case domain.ResolutionModeOracle, domain.ResolutionModeAuthority:
		if !present {
			return Result{}, invalid("evidence is required for %s resolution", mode)
		}
	default:
		return Result{}, fmt.Errorf("evidence: unknown resolution mode %q: %w", string(mode), domain.ErrInvalidEvidence)
	}

	ev, err := Parse(raw)
	if err != nil {
		return Result{}, err
	}

	if mode == domain.ResolutionModeOracle {
		if err := ev.Proof.requireOracle(); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Present:  true,
		Hash:     ev.Hash(),
		Source:   ev.Source(),
		Evidence: ev,
	}, nil
}
