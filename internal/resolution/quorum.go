package resolution

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketcore/internal/crypto"
	"github.com/alanyoungcy/marketcore/internal/domain"
)

// Policy configures multi-admin escalation.
type Policy struct {
	// HighVolumeThreshold is the total volume above which a single admin
	// cannot resolve the market alone.
	HighVolumeThreshold decimal.Decimal
	// Quorum is the number of distinct admins required above the threshold.
	Quorum int
}

// DefaultPolicy escalates markets above 100,000,000 units to two admins.
func DefaultPolicy() Policy {
	return Policy{HighVolumeThreshold: decimal.NewFromInt(100_000_000), Quorum: 2}
}

// RequiredApprovals returns how many distinct admin approvals a market
// with the given volume needs. At or below the threshold no co-signature
// is needed and 0 is returned.
func RequiredApprovals(volume decimal.Decimal, p Policy) int {
	if !volume.GreaterThan(p.HighVolumeThreshold) {
		return 0
	}
	if p.Quorum < 1 {
		return 1
	}
	return p.Quorum
}

// Payload builds the message admins co-sign for sub.
func Payload(sub domain.ResolutionSubmission, evidenceHash string) crypto.ApprovalPayload {
	return crypto.ApprovalPayload{
		MarketID:     sub.MarketID,
		OptionID:     sub.OptionID,
		WinningSide:  uint8(sub.WinningSide),
		EvidenceHash: evidenceHash,
	}
}

// Tally is the result of counting approvals.
type Tally struct {
	Approvers []string
	Rejected  []string
}

// CountApprovals counts distinct admin identities approving payload: the
// submitter when it is an admin, plus every co-signature that recovers to
// a registered admin. A co-signature naming a different admin than the one
// it recovers to is rejected.
func CountApprovals(ctx context.Context, dir domain.IdentityDirectory, dom crypto.Domain,
	submitter domain.Principal, payload crypto.ApprovalPayload, approvals []domain.Approval) Tally {

	seen := make(map[string]struct{})
	var t Tally
	add := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		t.Approvers = append(t.Approvers, id)
	}

	if submitter.HasRole(domain.RoleAdmin) {
		add(domain.NormalizeID(submitter.ID))
	}

	for i, a := range approvals {
		addr, err := dom.Recover(payload, a.Signature)
		if err != nil {
			t.Rejected = append(t.Rejected, fmt.Sprintf("approval %d: %v", i, err))
			continue
		}
		signer := domain.NormalizeID(addr.Hex())
		if a.Admin != "" && domain.NormalizeID(a.Admin) != signer {
			t.Rejected = append(t.Rejected, fmt.Sprintf("approval %d: signed by %s, not %s", i, addr.Hex(), a.Admin))
			continue
		}
		if !dir.IsAdmin(ctx, signer) {
			t.Rejected = append(t.Rejected, fmt.Sprintf("approval %d: %s is not an admin", i, addr.Hex()))
			continue
		}
		add(signer)
	}
	sort.Strings(t.Approvers)
	return t
}

// QuorumError reports a missing multi-admin quorum. It wraps
// domain.ErrQuorumNotMet.
type QuorumError struct {
	Required  int
	Approvers []string
	Rejected  []string
}

func (e *QuorumError) Error() string {
	msg := fmt.Sprintf("quorum not met: %d of %d distinct admin approvals", len(e.Approvers), e.Required)
	if len(e.Rejected) > 0 {
		msg += fmt.Sprintf(" (%d rejected)", len(e.Rejected))
	}
	return msg
}

func (e *QuorumError) Unwrap() error {
	return domain.ErrQuorumNotMet
}

// CheckQuorum fails when t has fewer approvers than required.
func CheckQuorum(required int, t Tally) error {
	if len(t.Approvers) >= required {
		return nil
	}
	return &QuorumError{Required: required, Approvers: t.Approvers, Rejected: t.Rejected}
}
