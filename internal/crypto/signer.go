package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ErrBadSignature is returned when a signature cannot be decoded or
// recovered.
var ErrBadSignature = errors.New("crypto: bad signature")

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// ResolutionApproval(string marketId,string optionId,uint8 winningSide,bytes32 evidenceHash)
	approvalTypeHash = ethcrypto.Keccak256(
		[]byte("ResolutionApproval(string marketId,string optionId,uint8 winningSide,bytes32 evidenceHash)"),
	)
)

const (
	approvalDomainName    = "MarketCore Resolution"
	approvalDomainVersion = "1"
)

// ApprovalPayload is the message an admin co-signs to approve a
// resolution. EvidenceHash is the hex SHA-256 evidence digest, or empty
// when the submission carries no evidence.
type ApprovalPayload struct {
	MarketID     string `json:"marketId"`
	OptionID     string `json:"optionId"`
	WinningSide  uint8  `json:"winningSide"`
	EvidenceHash string `json:"evidenceHash"`
}

// Domain identifies the EIP-712 signing domain for approvals.
type Domain struct {
	ChainID   int64
	separator []byte
}

// NewDomain pre-computes the approval domain separator for chainID.
func NewDomain(chainID int64) Domain {
	return Domain{
		ChainID: chainID,
		separator: ethcrypto.Keccak256(
			concatBytes(
				eip712DomainTypeHash,
				ethcrypto.Keccak256([]byte(approvalDomainName)),
				ethcrypto.Keccak256([]byte(approvalDomainVersion)),
				bigIntTo32Bytes(big.NewInt(chainID)),
			),
		),
	}
}

// Digest returns the EIP-712 digest of p:
//
//	keccak256("\x19\x01" || domainSeparator || hashStruct(p))
func (d Domain) Digest(p ApprovalPayload) ([]byte, error) {
	evidence, err := evidenceHashBytes(p.EvidenceHash)
	if err != nil {
		return nil, err
	}
	structHash := ethcrypto.Keccak256(
		concatBytes(
			approvalTypeHash,
			ethcrypto.Keccak256([]byte(p.MarketID)),
			ethcrypto.Keccak256([]byte(p.OptionID)),
			bigIntTo32Bytes(big.NewInt(int64(p.WinningSide))),
			evidence,
		),
	)
	return eip712Hash(d.separator, structHash), nil
}

// Recover returns the address that produced sigHex over p.
func (d Domain) Recover(p ApprovalPayload, sigHex string) (common.Address, error) {
	digest, err := d.Digest(p)
	if err != nil {
		return common.Address{}, err
	}
	return recoverDigest(digest, sigHex)
}

// Signer signs approvals and oracle messages with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domain     Domain
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the chain ID of the approval domain.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return NewSignerFromKey(pk, chainID), nil
}

// NewSignerFromKey wraps an already-loaded private key.
func NewSignerFromKey(pk *ecdsa.PrivateKey, chainID int64) *Signer {
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domain:     NewDomain(chainID),
	}
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignApproval returns a hex-encoded 65-byte EIP-712 signature over p.
func (s *Signer) SignApproval(p ApprovalPayload) (string, error) {
	digest, err := s.domain.Digest(p)
	if err != nil {
		return "", err
	}
	return s.signDigest(digest)
}

// SignMessage returns an EIP-191 personal-message signature over msg, the
// format api oracles use to sign evidence data.
func (s *Signer) SignMessage(msg []byte) (string, error) {
	return s.signDigest(accounts.TextHash(msg))
}

// RecoverMessage returns the address that personal-signed msg.
func RecoverMessage(msg []byte, sigHex string) (common.Address, error) {
	return recoverDigest(accounts.TextHash(msg), sigHex)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// eip712Hash computes the final EIP-712 digest.
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest and returns r || s || v hex-encoded
// with v in {27,28}.
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func recoverDigest(digest []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil || len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, ErrBadSignature
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

func evidenceHashBytes(h string) ([]byte, error) {
	if h == "" {
		return make([]byte, 32), nil
	}
	b, err := hex.DecodeString(strings.TrimPrefix(h, "0x"))
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("crypto/signer: evidence hash %q is not 32 bytes of hex", h)
	}
	return b, nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
