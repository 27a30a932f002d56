// Command resolvectl is the operator tool of the market core. It encrypts
// admin keys, produces EIP-712 co-signatures for quorum-gated resolutions,
// and issues API tokens.
//
//	resolvectl encrypt-key   -out admin.json            (key in RESOLVECTL_PRIVATE_KEY)
//	resolvectl sign-approval -key-file admin.json -market m -option o -side yes [-evidence ev.json]
//	resolvectl issue-token   -subject 0xabc... [-roles system] [-ttl 24h]
//
// Passwords are read from RESOLVECTL_KEY_PASSWORD; chain id and token
// secret come from the marketcore configuration (-config, MARKETCORE_*).
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alanyoungcy/marketcore/internal/config"
	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/evidence"
)

const (
	envPrivateKey  = "RESOLVECTL_PRIVATE_KEY"
	envKeyPassword = "RESOLVECTL_KEY_PASSWORD"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintf(os.Stderr, "resolvectl: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: resolvectl <encrypt-key|sign-approval|issue-token> [flags]")

func run(args []string, out io.Writer, getenv func(string) string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "encrypt-key":
		return encryptKey(args[1:], out, getenv)
	case "sign-approval":
		return signApproval(args[1:], out, getenv)
	case "issue-token":
		return issueToken(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
	}
}

func encryptKey(args []string, out io.Writer, getenv func(string) string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	outPath := fs.String("out", "", "file to write the encrypted key to (stdout if empty)")
	iterations := fs.Int("iterations", crypto.DefaultIterations, "PBKDF2 iterations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	key := getenv(envPrivateKey)
	if key == "" {
		return fmt.Errorf("encrypt-key: %s is not set", envPrivateKey)
	}
	password := getenv(envKeyPassword)
	if password == "" {
		return fmt.Errorf("encrypt-key: %s is not set", envKeyPassword)
	}

	data, err := crypto.EncryptKey(key, password, *iterations)
	if err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}
	if *outPath == "" {
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	if err := os.WriteFile(*outPath, data, 0o600); err != nil {
		return fmt.Errorf("encrypt-key: write %s: %w", *outPath, err)
	}
	fmt.Fprintf(out, "wrote %s\n", *outPath)
	return nil
}

func signApproval(args []string, out io.Writer, getenv func(string) string) error {
	fs := flag.NewFlagSet("sign-approval", flag.ContinueOnError)
	configPath := fs.String("config", "", "marketcore configuration file")
	keyFile := fs.String("key-file", "", "encrypted admin key file")
	market := fs.String("market", "", "market id")
	option := fs.String("option", "", "option id")
	side := fs.String("side", "", "winning side: yes or no")
	evidencePath := fs.String("evidence", "", "file holding the evidence JSON submitted with the resolution")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *market == "" || *option == "" {
		return errors.New("sign-approval: -market and -option are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	winning, err := parseSide(*side)
	if err != nil {
		return err
	}

	var hash string
	if *evidencePath != "" {
		raw, err := os.ReadFile(*evidencePath)
		if err != nil {
			return fmt.Errorf("sign-approval: read evidence: %w", err)
		}
		if hash, err = evidence.Hash(raw); err != nil {
			return fmt.Errorf("sign-approval: %w", err)
		}
	}

	pk, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey: getenv(envPrivateKey),
		KeyFile:       *keyFile,
		Password:      getenv(envKeyPassword),
	})
	if err != nil {
		return fmt.Errorf("sign-approval: %w", err)
	}
	signer := crypto.NewSignerFromKey(pk, cfg.Resolution.ChainID)

	sig, err := signer.SignApproval(crypto.ApprovalPayload{
		MarketID:     *market,
		OptionID:     *option,
		WinningSide:  uint8(winning),
		EvidenceHash: hash,
	})
	if err != nil {
		return fmt.Errorf("sign-approval: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(domain.Approval{Admin: signer.Address().Hex(), Signature: sig})
}

func issueToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	configPath := fs.String("config", "", "marketcore configuration file")
	subject := fs.String("subject", "", "principal id (usually a hex address)")
	roles := fs.String("roles", "", "comma-separated claimed roles; only \"system\" is honoured by the server")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return errors.New("issue-token: -subject is required")
	}
	if *ttl <= 0 {
		return errors.New("issue-token: -ttl must be positive")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	issuer, err := crypto.NewTokenIssuer(cfg.Server.AuthSecret)
	if err != nil {
		return fmt.Errorf("issue-token: %w", err)
	}

	var claimed []string
	for _, r := range strings.Split(*roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			claimed = append(claimed, r)
		}
	}
	tok, err := issuer.Issue(*subject, claimed, *ttl)
	if err != nil {
		return fmt.Errorf("issue-token: %w", err)
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}

func parseSide(s string) (domain.Side, error) {
	switch strings.ToLower(s) {
	case "yes", "1":
		return domain.SideYes, nil
	case "no", "2":
		return domain.SideNo, nil
	}
	return domain.SideNone, fmt.Errorf("side must be yes or no, got %q", s)
}
