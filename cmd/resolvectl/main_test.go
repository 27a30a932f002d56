package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/evidence"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestIssueToken(t *testing.T) {
	const secret = "resolvectl-test-secret-0123"
	t.Setenv("MARKETCORE_SERVER_AUTH_SECRET", secret)

	var out bytes.Buffer
	if err := run([]string{"issue-token", "-subject", "0xAbC", "-roles", "system, ", "-ttl", "1h"}, &out, envOf(nil)); err != nil {
		t.Fatal(err)
	}
	issuer, err := crypto.NewTokenIssuer(secret)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := issuer.Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "0xAbC" || len(claims.Roles) != 1 || claims.Roles[0] != "system" {
		t.Fatalf("claims = %+v", claims)
	}

	if err := run([]string{"issue-token"}, &out, envOf(nil)); err == nil {
		t.Fatal("missing subject should fail")
	}
}

func TestSignApproval(t *testing.T) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "admin.json")
	env := envOf(map[string]string{envPrivateKey: keyHex, envKeyPassword: "hunter2"})
	var out bytes.Buffer
	if err := run([]string{"encrypt-key", "-out", keyPath, "-iterations", "1000"}, &out, env); err != nil {
		t.Fatal(err)
	}

	evPath := filepath.Join(dir, "ev.json")
	ev := `{"data":{"winner":"yes"},"source":"manual"}`
	if err := os.WriteFile(evPath, []byte(ev), 0o600); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	fileOnly := envOf(map[string]string{envKeyPassword: "hunter2"})
	args := []string{"sign-approval", "-key-file", keyPath, "-market", "mkt-1", "-option", "opt-1", "-side", "no", "-evidence", evPath}
	if err := run(args, &out, fileOnly); err != nil {
		t.Fatal(err)
	}
	var approval domain.Approval
	if err := json.Unmarshal(out.Bytes(), &approval); err != nil {
		t.Fatal(err)
	}

	hash, err := evidence.Hash([]byte(ev))
	if err != nil {
		t.Fatal(err)
	}
	got, err := crypto.NewDomain(137).Recover(crypto.ApprovalPayload{
		MarketID: "mkt-1", OptionID: "opt-1", WinningSide: 2, EvidenceHash: hash,
	}, approval.Signature)
	if err != nil {
		t.Fatal(err)
	}
	if got != ethcrypto.PubkeyToAddress(pk.PublicKey) || got.Hex() != approval.Admin {
		t.Fatalf("recovered %s, approval names %s", got.Hex(), approval.Admin)
	}

	if err := run([]string{"sign-approval", "-key-file", keyPath, "-market", "m", "-option", "o", "-side", "maybe"}, &out, fileOnly); err == nil {
		t.Fatal("bad side should fail")
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run([]string{"resolve-everything"}, &bytes.Buffer{}, envOf(nil)); !errors.Is(err, errUsage) {
		t.Fatalf("err = %v", err)
	}
	if err := run(nil, &bytes.Buffer{}, envOf(nil)); !errors.Is(err, errUsage) {
		t.Fatalf("err = %v", err)
	}
}
