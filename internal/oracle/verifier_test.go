package oracle

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/evidence"
	"github.com/alanyoungcy/marketcore/internal/registry"
)

func newSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s, err := crypto.NewSigner(hex.EncodeToString(ethcrypto.FromECDSA(pk)), 1)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func signedEvidence(t *testing.T, s *crypto.Signer) *evidence.Evidence {
	t.Helper()
	// The oracle signs the canonical form; the payload key order differs.
	sig, err := s.SignMessage([]byte(`{"price":"64000","symbol":"BTC"}`))
	if err != nil {
		t.Fatal(err)
	}
	ev, err := evidence.Parse([]byte(`{"source":"api","data":{"symbol":"BTC","price":"64000"},"signature":"` + sig + `"}`))
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestEthereumVerifier_API(t *testing.T) {
	ctx := context.Background()
	oracleKey := newSigner(t)
	stranger := newSigner(t)
	v := NewEthereumVerifier(registry.New(nil, []string{oracleKey.Address().Hex()}))

	if err := v.Verify(ctx, signedEvidence(t, oracleKey)); err != nil {
		t.Fatalf("registered oracle: %v", err)
	}
	if err := v.Verify(ctx, signedEvidence(t, stranger)); !errors.Is(err, domain.ErrInvalidEvidence) {
		t.Fatalf("unregistered signer: got %v", err)
	}

	garbled, _ := evidence.Parse([]byte(`{"source":"api","data":1,"signature":"0x1234"}`))
	if err := v.Verify(ctx, garbled); !errors.Is(err, domain.ErrInvalidEvidence) {
		t.Fatalf("garbled signature: got %v", err)
	}
}

func TestEthereumVerifier_Chainlink(t *testing.T) {
	ctx := context.Background()
	feed := "0x47Ac0Fb4F2D84898e4D9E7b4DaB3C24507a6D503"
	v := NewEthereumVerifier(registry.New(nil, []string{feed}))

	ok, _ := evidence.Parse([]byte(`{"source":"chainlink","oracleAddress":"` + feed + `"}`))
	if err := v.Verify(ctx, ok); err != nil {
		t.Fatal(err)
	}
	bad, _ := evidence.Parse([]byte(`{"source":"chainlink","oracleAddress":"0x0000000000000000000000000000000000000001"}`))
	if err := v.Verify(ctx, bad); !errors.Is(err, domain.ErrInvalidEvidence) {
		t.Fatalf("got %v", err)
	}
}

func TestEthereumVerifier_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev, _ := evidence.Parse([]byte(`{"source":"manual"}`))
	if err := NewEthereumVerifier(registry.New(nil, nil)).Verify(ctx, ev); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}
