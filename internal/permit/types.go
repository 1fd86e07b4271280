package permit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// JoinPermit is the authorizer's approval for Participant to join PotID
// during Round. It binds the round, not a wall-clock expiry: once the pot
// rotates the permit no longer verifies.
type JoinPermit struct {
	PotID       uint64         `json:"pot_id"`
	Participant common.Address `json:"participant"`
	Round       uint64         `json:"round"`
	Nonce       *big.Int       `json:"nonce"`
	Signature   []byte         `json:"signature"`
}

// RiskPoolPermit is the authorizer's approval for Caller to direct Amount of
// PotID's risk pool to the next winner.
type RiskPoolPermit struct {
	PotID     uint64         `json:"pot_id"`
	Caller    common.Address `json:"caller"`
	Amount    *big.Int       `json:"amount"`
	Nonce     *big.Int       `json:"nonce"`
	Signature []byte         `json:"signature"`
}
