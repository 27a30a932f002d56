// Package oracle verifies oracle-signed evidence against the registered
// oracle identities.
package oracle

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/evidence"
)

// EthereumVerifier checks evidence signatures with secp256k1 recovery.
//
// An api signature must be an EIP-191 personal-message signature over the
// canonical JSON of the evidence data, made by a registered oracle. A
// chainlink oracleAddress must be a registered oracle. Other sources carry
// no signature.
type EthereumVerifier struct {
	dir domain.IdentityDirectory
}

// NewEthereumVerifier returns a verifier backed by dir.
func NewEthereumVerifier(dir domain.IdentityDirectory) *EthereumVerifier {
	return &EthereumVerifier{dir: dir}
}

func (v *EthereumVerifier) Verify(ctx context.Context, ev *evidence.Evidence) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("oracle: verify: %w", err)
	}

	switch p := ev.Proof.(type) {
	case evidence.APIProof:
		if p.Signature == "" {
			return nil
		}
		msg, err := ev.CanonicalData()
		if err != nil {
			return reject("cannot canonicalize data: %v", err)
		}
		signer, err := crypto.RecoverMessage(msg, p.Signature)
		if err != nil {
			return reject("api signature does not recover: %v", err)
		}
		if !v.dir.IsOracle(ctx, signer.Hex()) {
			return reject("api signature made by unregistered oracle %s", signer.Hex())
		}
	case evidence.ChainlinkProof:
		if p.OracleAddress != "" && !v.dir.IsOracle(ctx, p.OracleAddress) {
			return reject("oracleAddress %s is not a registered oracle", p.OracleAddress)
		}
	case evidence.OnchainProof, evidence.ManualProof:
	default:
		return reject("no verifier for source %q", ev.Source())
	}
	return nil
}

func reject(format string, args ...any) error {
	return &evidence.ValidationError{Reason: fmt.Sprintf(format, args...)}
}
