package resolution

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/domain"
	"github.com/alanyoungcy/marketcore/internal/pricing"
	"github.com/alanyoungcy/marketcore/internal/registry"
)

func TestCheckSubmission(t *testing.T) {
	good := domain.ResolutionSubmission{MarketID: "m", OptionID: "o", WinningSide: domain.SideYes}
	if err := CheckSubmission(good); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []domain.ResolutionSubmission{
		{OptionID: "o", WinningSide: domain.SideYes},
		{MarketID: "m", WinningSide: domain.SideNo},
		{MarketID: "m", OptionID: "o"},
		{MarketID: "m", OptionID: "o", WinningSide: 3},
	} {
		if err := CheckSubmission(bad); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("%+v: got %v", bad, err)
		}
	}
}

func TestAuthorize(t *testing.T) {
	market := domain.Market{ID: "m1", CreatorID: "0xCreator"}
	creator := domain.Principal{ID: "0xcreator", Roles: []domain.Role{domain.RoleUser}}
	admin := domain.Principal{ID: "0xadmin", Roles: []domain.Role{domain.RoleUser, domain.RoleAdmin}}
	oracle := domain.Principal{ID: "0xoracle", Roles: []domain.Role{domain.RoleUser, domain.RoleOracle}}
	system := domain.Principal{ID: "finalizer", Roles: []domain.Role{domain.RoleSystem}}
	user := domain.Principal{ID: "0xuser", Roles: []domain.Role{domain.RoleUser}}

	cases := []struct {
		mode     domain.ResolutionMode
		who      domain.Principal
		isOracle bool
		ok       bool
	}{
		{domain.ResolutionModeOracle, creator, false, true},
		{domain.ResolutionModeOracle, admin, false, true},
		{domain.ResolutionModeOracle, oracle, true, true},
		{domain.ResolutionModeOracle, user, false, false},
		{domain.ResolutionModeAuthority, creator, false, true},
		{domain.ResolutionModeAuthority, admin, false, true},
		{domain.ResolutionModeAuthority, oracle, true, false},
		{domain.ResolutionModeAuthority, user, false, false},
		{domain.ResolutionModeOpinion, admin, false, true},
		{domain.ResolutionModeOpinion, system, false, false},
		{domain.ResolutionModeOpinion, creator, false, false},
		{domain.ResolutionModeLegacy, creator, false, true},
		{domain.ResolutionModeLegacy, admin, false, true},
		{domain.ResolutionModeLegacy, oracle, true, false},
		{domain.ResolutionMode("COUNCIL"), admin, false, false},
		{domain.ResolutionModeAuthority, domain.Anonymous, false, false},
	}
	for _, tc := range cases {
		err := Authorize(tc.mode, market, tc.who, tc.isOracle)
		if tc.ok && err != nil {
			t.Errorf("%s by %s: unexpected %v", tc.mode, tc.who.ID, err)
		}
		if !tc.ok && !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("%s by %s: got %v, want ErrUnauthorized", tc.mode, tc.who.ID, err)
		}
	}
}

func TestAuthorizeByPrice(t *testing.T) {
	opinion := domain.Market{ID: "op", CreatorID: "0xcreator", ResolutionMode: domain.ResolutionModeOpinion}
	system := domain.Principal{ID: "finalizer", Roles: []domain.Role{domain.RoleSystem}}
	admin := domain.Principal{ID: "0xadmin", Roles: []domain.Role{domain.RoleAdmin}}
	creator := domain.Principal{ID: "0xcreator", Roles: []domain.Role{domain.RoleUser}}

	cases := []struct {
		name   string
		market domain.Market
		who    domain.Principal
		want   error
	}{
		{"system", opinion, system, nil},
		{"admin", opinion, admin, nil},
		{"creator", opinion, creator, domain.ErrUnauthorized},
		{"anonymous", opinion, domain.Anonymous, domain.ErrUnauthorized},
		{"authority market", domain.Market{ID: "a", ResolutionMode: domain.ResolutionModeAuthority}, system, domain.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := AuthorizeByPrice(tc.market, tc.who)
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestOutcomeFromPrice(t *testing.T) {
	if s, err := OutcomeFromPrice(pricing.Half + 1); err != nil || s != domain.SideYes {
		t.Fatalf("above half: %v %v", s, err)
	}
	if s, err := OutcomeFromPrice(pricing.Half - 1); err != nil || s != domain.SideNo {
		t.Fatalf("below half: %v %v", s, err)
	}
	if _, err := OutcomeFromPrice(pricing.Half); !errors.Is(err, domain.ErrAmbiguousOutcome) {
		t.Fatalf("even: %v", err)
	}
}

func TestRequiredApprovals(t *testing.T) {
	p := DefaultPolicy()
	if n := RequiredApprovals(decimal.NewFromInt(100_000_000), p); n != 0 {
		t.Fatalf("at threshold: %d", n)
	}
	if n := RequiredApprovals(decimal.NewFromInt(100_000_001), p); n != 2 {
		t.Fatalf("above threshold: %d", n)
	}
	if n := RequiredApprovals(decimal.NewFromInt(200_000_000), Policy{HighVolumeThreshold: decimal.Zero}); n != 1 {
		t.Fatalf("zero quorum clamps to 1, got %d", n)
	}
}

type testAdmin struct {
	signer *crypto.Signer
	id     string
}

func newAdmin(t *testing.T) testAdmin {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	s, err := crypto.NewSigner(hex.EncodeToString(ethcrypto.FromECDSA(pk)), 1)
	if err != nil {
		t.Fatal(err)
	}
	return testAdmin{signer: s, id: s.Address().Hex()}
}

func (a testAdmin) approve(t *testing.T, p crypto.ApprovalPayload) domain.Approval {
	t.Helper()
	sig, err := a.signer.SignApproval(p)
	if err != nil {
		t.Fatal(err)
	}
	return domain.Approval{Admin: a.id, Signature: sig}
}

func TestQuorum(t *testing.T) {
	ctx := context.Background()
	a1, a2, outsider := newAdmin(t), newAdmin(t), newAdmin(t)
	dir := registry.New([]string{a1.id, a2.id}, nil)
	dom := crypto.NewDomain(1)

	sub := domain.ResolutionSubmission{MarketID: "m", OptionID: "o", WinningSide: domain.SideYes}
	payload := Payload(sub, strings.Repeat("0f", 32))
	submitter := dir.Principal(ctx, a1.id, nil)
	required := RequiredApprovals(decimal.NewFromInt(150_000_000), DefaultPolicy())

	// A single admin cannot resolve a high-volume market.
	tally := CountApprovals(ctx, dir, dom, submitter, payload, nil)
	err := CheckQuorum(required, tally)
	if !errors.Is(err, domain.ErrQuorumNotMet) {
		t.Fatalf("single admin: got %v", err)
	}
	var qe *QuorumError
	if !errors.As(err, &qe) || qe.Required != 2 || len(qe.Approvers) != 1 {
		t.Fatalf("quorum error detail: %+v", qe)
	}

	// Re-signing by the submitter does not add a second admin.
	tally = CountApprovals(ctx, dir, dom, submitter, payload, []domain.Approval{a1.approve(t, payload)})
	if err := CheckQuorum(required, tally); !errors.Is(err, domain.ErrQuorumNotMet) {
		t.Fatalf("duplicate admin counted twice: %v", err)
	}

	// A non-admin co-signature is ignored and reported.
	tally = CountApprovals(ctx, dir, dom, submitter, payload, []domain.Approval{outsider.approve(t, payload)})
	if err := CheckQuorum(required, tally); !errors.Is(err, domain.ErrQuorumNotMet) || len(tally.Rejected) != 1 {
		t.Fatalf("outsider: %v, rejected %v", err, tally.Rejected)
	}

	// A signature over a different outcome does not count.
	other := payload
	other.WinningSide = uint8(domain.SideNo)
	tally = CountApprovals(ctx, dir, dom, submitter, payload, []domain.Approval{a2.approve(t, other)})
	if err := CheckQuorum(required, tally); !errors.Is(err, domain.ErrQuorumNotMet) {
		t.Fatalf("wrong outcome counted: %v", err)
	}

	// A second distinct admin meets the quorum.
	tally = CountApprovals(ctx, dir, dom, submitter, payload, []domain.Approval{a2.approve(t, payload)})
	if err := CheckQuorum(required, tally); err != nil {
		t.Fatalf("two admins: %v", err)
	}
	if len(tally.Approvers) != 2 {
		t.Fatalf("approvers = %v", tally.Approvers)
	}

	// Co-signatures alone meet the quorum for a non-admin submitter.
	creator := domain.Principal{ID: "0xcreator", Roles: []domain.Role{domain.RoleUser}}
	tally = CountApprovals(ctx, dir, dom, creator, payload,
		[]domain.Approval{a1.approve(t, payload), a2.approve(t, payload)})
	if err := CheckQuorum(required, tally); err != nil {
		t.Fatalf("co-signed: %v", err)
	}
}

func TestCountApprovals_MismatchedAdmin(t *testing.T) {
	ctx := context.Background()
	a1, a2 := newAdmin(t), newAdmin(t)
	dir := registry.New([]string{a1.id, a2.id}, nil)
	payload := Payload(domain.ResolutionSubmission{MarketID: "m", OptionID: "o", WinningSide: domain.SideNo}, "")

	ap := a1.approve(t, payload)
	ap.Admin = a2.id
	tally := CountApprovals(ctx, dir, crypto.NewDomain(1), domain.Principal{ID: "x"}, payload, []domain.Approval{ap})
	if len(tally.Approvers) != 0 || len(tally.Rejected) != 1 {
		t.Fatalf("tally = %+v", tally)
	}
}
