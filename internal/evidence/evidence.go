// Package evidence parses, validates and hashes the proof payloads that
// accompany a resolution submission.
package evidence

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Source names where a piece of evidence comes from.
type Source string

const (
	SourceChainlink Source = "chainlink"
	SourceOnchain   Source = "onchain"
	SourceAPI       Source = "api"
	SourceManual    Source = "manual"
)

// ValidationError describes why evidence was rejected. It wraps
// domain.ErrInvalidEvidence.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid evidence: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return domain.ErrInvalidEvidence
}

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Proof is the source-specific part of the evidence. Exactly one variant
// exists per Source.
type Proof interface {
	Source() Source
	// requireOracle enforces the machine-verifiable proof ORACLE mode
	// demands of this source.
	requireOracle() error
}

// ChainlinkProof is evidence read from a Chainlink feed.
type ChainlinkProof struct {
	OracleAddress string
}

func (ChainlinkProof) Source() Source { return SourceChainlink }

func (p ChainlinkProof) requireOracle() error {
	if p.OracleAddress == "" {
		return invalid("chainlink evidence requires oracleAddress")
	}
	return nil
}

// OnchainProof is evidence anchored in a transaction.
type OnchainProof struct {
	TransactionHash string
}

func (OnchainProof) Source() Source { return SourceOnchain }

func (p OnchainProof) requireOracle() error {
	if p.TransactionHash == "" {
		return invalid("onchain evidence requires transactionHash")
	}
	return nil
}

// APIProof is evidence fetched from an external API and signed by an
// oracle.
type APIProof struct {
	Signature string
	URL       string
}

func (APIProof) Source() Source { return SourceAPI }

func (p APIProof) requireOracle() error {
	if strings.TrimSpace(p.Signature) == "" {
		return invalid("api evidence requires a non-empty signature")
	}
	return nil
}

// ManualProof is a human attestation.
type ManualProof struct{}

func (ManualProof) Source() Source { return SourceManual }

func (ManualProof) requireOracle() error {
	return invalid("manual evidence is not accepted for ORACLE resolution")
}

// Evidence is a parsed, immutable evidence payload.
type Evidence struct {
	Proof     Proof
	Data      any
	Timestamp *json.Number

	canonical []byte
}

// Source returns the evidence source.
func (e *Evidence) Source() Source {
	return e.Proof.Source()
}

// Canonical returns the canonical JSON encoding of the full payload.
func (e *Evidence) Canonical() []byte {
	return append([]byte(nil), e.canonical...)
}

// CanonicalData returns the canonical JSON encoding of the data field, the
// message an api oracle signs.
func (e *Evidence) CanonicalData() ([]byte, error) {
	return Canonicalize(e.Data)
}

// Parse is the parse boundary for evidence: the payload must be a JSON
// object with a recognised source. Unknown sources are rejected here.
func Parse(raw []byte) (*Evidence, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, invalid("malformed JSON: %v", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, invalid("evidence must be a JSON object")
	}

	src, present, err := stringField(obj, "source")
	if err != nil {
		return nil, err
	}
	if !present || src == "" {
		return nil, invalid("missing source")
	}

	ev := &Evidence{Data: obj["data"]}

	switch Source(src) {
	case SourceChainlink:
		addr, _, err := stringField(obj, "oracleAddress")
		if err != nil {
			return nil, err
		}
		if addr != "" && !common.IsHexAddress(addr) {
			return nil, invalid("oracleAddress %q is not a valid address", addr)
		}
		ev.Proof = ChainlinkProof{OracleAddress: addr}
	case SourceOnchain:
		tx, _, err := stringField(obj, "transactionHash")
		if err != nil {
			return nil, err
		}
		if tx != "" {
			b, decErr := hexutil.Decode(tx)
			if decErr != nil || len(b) != common.HashLength {
				return nil, invalid("transactionHash %q is not a 32-byte hex hash", tx)
			}
		}
		ev.Proof = OnchainProof{TransactionHash: tx}
	case SourceAPI:
		sig, _, err := stringField(obj, "signature")
		if err != nil {
			return nil, err
		}
		url, _, err := stringField(obj, "url")
		if err != nil {
			return nil, err
		}
		ev.Proof = APIProof{Signature: sig, URL: url}
	case SourceManual:
		ev.Proof = ManualProof{}
	default:
		return nil, invalid("unsupported source %q", src)
	}

	if ts, ok := obj["timestamp"]; ok && ts != nil {
		n, isNum := ts.(json.Number)
		if !isNum {
			return nil, invalid("timestamp must be a number")
		}
		ev.Timestamp = &n
	}

	ev.canonical, err = Canonicalize(obj)
	if err != nil {
		return nil, invalid("canonicalize: %v", err)
	}
	return ev, nil
}

func stringField(obj map[string]any, key string) (string, bool, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", true, invalid("%s must be a string", key)
	}
	return s, true, nil
}
