package crypto

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func newTestSigner(t *testing.T) (*Signer, string) {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))
	s, err := NewSigner("0x"+keyHex, 137)
	if err != nil {
		t.Fatal(err)
	}
	return s, keyHex
}

func TestApprovalRoundTrip(t *testing.T) {
	s, _ := newTestSigner(t)
	p := ApprovalPayload{
		MarketID:     "mkt-1",
		OptionID:     "opt-1",
		WinningSide:  1,
		EvidenceHash: strings.Repeat("ab", 32),
	}
	sig, err := s.SignApproval(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewDomain(137).Recover(p, sig)
	if err != nil {
		t.Fatal(err)
	}
	if got != s.Address() {
		t.Fatalf("recovered %s, want %s", got.Hex(), s.Address().Hex())
	}

	// Any field change recovers a different address.
	p.WinningSide = 2
	other, err := NewDomain(137).Recover(p, sig)
	if err == nil && other == s.Address() {
		t.Fatal("signature should not verify for a different winning side")
	}

	// So does a different chain.
	p.WinningSide = 1
	other, err = NewDomain(1).Recover(p, sig)
	if err == nil && other == s.Address() {
		t.Fatal("signature should be bound to the chain id")
	}
}

func TestApproval_EmptyEvidenceHash(t *testing.T) {
	s, _ := newTestSigner(t)
	p := ApprovalPayload{MarketID: "m", OptionID: "o", WinningSide: 2}
	sig, err := s.SignApproval(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewDomain(137).Recover(p, sig)
	if err != nil || got != s.Address() {
		t.Fatalf("got %s, %v", got.Hex(), err)
	}
	if _, err := NewDomain(137).Digest(ApprovalPayload{EvidenceHash: "zz"}); err == nil {
		t.Fatal("malformed evidence hash should fail")
	}
}

func TestRecover_BadSignature(t *testing.T) {
	for _, sig := range []string{"", "0x", "0x1234", "nothex"} {
		if _, err := NewDomain(137).Recover(ApprovalPayload{}, sig); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("sig %q: got %v", sig, err)
		}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	s, _ := newTestSigner(t)
	msg := []byte(`{"price":"101.5"}`)
	sig, err := s.SignMessage(msg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := RecoverMessage(msg, sig)
	if err != nil || got != s.Address() {
		t.Fatalf("got %s, %v", got.Hex(), err)
	}
	got, _ = RecoverMessage([]byte(`{"price":"101.6"}`), sig)
	if got == s.Address() {
		t.Fatal("tampered message recovered the signer")
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	s, keyHex := newTestSigner(t)
	data, err := EncryptKey(keyHex, "correct horse", 1000)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), s.Address().Hex()) {
		t.Fatal("key file should record the address")
	}

	pk, err := DecryptKey(data, "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if ethcrypto.PubkeyToAddress(pk.PublicKey) != s.Address() {
		t.Fatal("decrypted key does not match")
	}
	if _, err := DecryptKey(data, "wrong"); err == nil {
		t.Fatal("wrong password should fail")
	}

	path := filepath.Join(t.TempDir(), "admin.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadKey(KeyConfig{KeyFile: path, Password: "correct horse"})
	if err != nil || ethcrypto.PubkeyToAddress(loaded.PublicKey) != s.Address() {
		t.Fatalf("LoadKey: %v", err)
	}
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Fatal("empty config should fail")
	}
}

func TestEncryptKey_Rejects(t *testing.T) {
	if _, err := EncryptKey("00", "pw", 1); err == nil {
		t.Fatal("short key should fail")
	}
	_, keyHex := newTestSigner(t)
	if _, err := EncryptKey(keyHex, "", 1); err == nil {
		t.Fatal("empty password should fail")
	}
}

func TestTokenIssuer(t *testing.T) {
	iss, err := NewTokenIssuer("0123456789abcdef-secret")
	if err != nil {
		t.Fatal(err)
	}
	base := time.Unix(1_800_000_000, 0)
	iss.now = func() time.Time { return base }

	tok, err := iss.Issue("0xabc", []string{"admin"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c, err := iss.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.Subject != "0xabc" || len(c.Roles) != 1 || c.Roles[0] != "admin" {
		t.Fatalf("claims = %+v", c)
	}

	payload, _, _ := strings.Cut(tok, ".")
	if _, err := iss.Verify(payload + ".AAAA"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("forged signature: %v", err)
	}
	if _, err := iss.Verify("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: %v", err)
	}

	other, _ := NewTokenIssuer("another-secret-of-16")
	other.now = iss.now
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("other secret: %v", err)
	}

	iss.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := iss.Verify(tok); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired: %v", err)
	}

	if _, err := NewTokenIssuer("short"); err == nil {
		t.Fatal("short secret should be rejected")
	}
	if strings.Contains(iss.String(), "secret") {
		t.Fatal("String leaks the secret")
	}
}
