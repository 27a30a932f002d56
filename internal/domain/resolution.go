package domain

import (
	"encoding/json"
	"time"
)

// Approval is an admin co-signature over a resolution. Admin is the hex
// address of the co-signer; Signature is a 65-byte hex EIP-712 signature.
type Approval struct {
	Admin     string `json:"admin"`
	Signature string `json:"signature"`
}

// ResolutionSubmission is a request to resolve one market option.
type ResolutionSubmission struct {
	MarketID    string          `json:"marketId"`
	OptionID    string          `json:"optionId"`
	Outcome     string          `json:"outcome"`
	WinningSide Side            `json:"winningSide"`
	Evidence    json.RawMessage `json:"evidence,omitempty"`
	Approvals   []Approval      `json:"approvals,omitempty"`
}

// Resolution is the persisted audit record of an applied resolution.
type Resolution struct {
	ID              string
	MarketID        string
	OptionID        string
	Outcome         string
	WinningSide     Side
	EvidenceHash    string
	EvidenceSource  string
	SubmittedBy     string
	Approvers       []string
	DisputeDeadline *time.Time
	CreatedAt       time.Time
}

// ResolveResult reports the outcome of an atomic option resolution.
type ResolveResult struct {
	Option         MarketOption
	MarketResolved bool
}

// Dispute is a formal challenge of a resolved option, recorded for admin
// review. It never overturns the outcome by itself.
type Dispute struct {
	ID       string
	MarketID string
	OptionID string
	RaisedBy string
	Reason   string
	RaisedAt time.Time
}

// DisputeRequest is the external dispute submission.
type DisputeRequest struct {
	MarketID string `json:"marketId"`
	OptionID string `json:"optionId"`
	Reason   string `json:"reason"`
}
