// Package entropy adapts a commit/reveal randomness service.
//
// A request registers commitment = keccak256(userSeed || providerSeed). The
// matching reveal must present both seeds; the random value is then
// keccak256(userSeed || providerSeed || id) read as a uint256. Requests move
// from requested to revealed exactly once.
package entropy

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownRequest  = errors.New("entropy: unknown request")
	ErrRevealMismatch  = errors.New("entropy: seeds do not match commitment")
	ErrAlreadyRevealed = errors.New("entropy: request already revealed")
	ErrFeeMismatch     = errors.New("entropy: fee mismatch")
)

// Request states reported by Provider.Status. An unknown id reports "".
const (
	StatusRequested = "requested"
	StatusRevealed  = "revealed"
)

// Provider is the randomness service contract consumed by the rotation engine.
type Provider interface {
	QuoteFee(ctx context.Context) (*big.Int, error)
	Request(ctx context.Context, commitment common.Hash, fee *big.Int) (uint64, error)
	Reveal(ctx context.Context, id uint64, userSeed, providerSeed common.Hash) (*big.Int, error)
	Status(ctx context.Context, id uint64) (string, error)
}

// Commit returns the commitment a later reveal of (userSeed, providerSeed) must match.
func Commit(userSeed, providerSeed common.Hash) common.Hash {
	return crypto.Keccak256Hash(userSeed[:], providerSeed[:])
}

// RandomValue derives the revealed value for request id.
func RandomValue(userSeed, providerSeed common.Hash, id uint64) *big.Int {
	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], id)
	h := crypto.Keccak256(userSeed[:], providerSeed[:], idBuf[:])
	return new(big.Int).SetBytes(h)
}
