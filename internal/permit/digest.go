package permit

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-rosca/internal/auth"
)

// Domain pins permits to one deployment so a signature issued for one engine
// cannot be replayed against another.
type Domain struct {
	ChainID  *big.Int
	Verifier common.Address
}

var (
	joinTag     = crypto.Keccak256Hash([]byte("JoinPot(uint256 potId,address participant,uint256 round,uint256 nonce)"))
	riskPoolTag = crypto.Keccak256Hash([]byte("UseRiskPool(uint256 potId,address caller,uint256 amount,uint256 nonce)"))
)

// separator computes keccak256(name, version, chainId, verifier).
func (d Domain) separator() common.Hash {
	nameHash := crypto.Keccak256Hash([]byte("0G Rotating Pot"))
	versionHash := crypto.Keccak256Hash([]byte("1"))

	encoded := make([]byte, 4*32)
	copy(encoded[0:32], nameHash[:])
	copy(encoded[32:64], versionHash[:])
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	chainID.FillBytes(encoded[64:96])
	copy(encoded[108:128], d.Verifier.Bytes()) // addr is right-aligned in 32-byte slot
	return crypto.Keccak256Hash(encoded)
}

// JoinDigest is keccak256(separator || tag || potId || participant || round || nonce)
// with uint256 fields as 32-byte words and the address packed to 20 bytes.
func (d Domain) JoinDigest(potID uint64, participant common.Address, round uint64, nonce *big.Int) common.Hash {
	sep := d.separator()
	return crypto.Keccak256Hash(
		sep[:],
		joinTag[:],
		word(new(big.Int).SetUint64(potID)),
		participant.Bytes(),
		word(new(big.Int).SetUint64(round)),
		word(nonce),
	)
}

// RiskPoolDigest is the RiskPoolPermit counterpart of JoinDigest.
func (d Domain) RiskPoolDigest(potID uint64, caller common.Address, amount, nonce *big.Int) common.Hash {
	sep := d.separator()
	return crypto.Keccak256Hash(
		sep[:],
		riskPoolTag[:],
		word(new(big.Int).SetUint64(potID)),
		caller.Bytes(),
		word(amount),
		word(nonce),
	)
}

// SignJoin signs p in place with the authorizer key.
func (d Domain) SignJoin(p *JoinPermit, key *ecdsa.PrivateKey) error {
	digest := d.JoinDigest(p.PotID, p.Participant, p.Round, p.Nonce)
	sig, err := auth.SignMessage(digest.Bytes(), key)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// SignRiskPool signs p in place with the authorizer key.
func (d Domain) SignRiskPool(p *RiskPoolPermit, key *ecdsa.PrivateKey) error {
	digest := d.RiskPoolDigest(p.PotID, p.Caller, p.Amount, p.Nonce)
	sig, err := auth.SignMessage(digest.Bytes(), key)
	if err != nil {
		return err
	}
	p.Signature = sig
	return nil
}

// word left-pads v to a 32-byte big-endian word; nil encodes as zero.
func word(v *big.Int) []byte {
	out := make([]byte, 32)
	if v != nil {
		v.FillBytes(out)
	}
	return out
}
