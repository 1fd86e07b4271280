package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashMessage constructs the EIP-191 prefixed hash:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func HashMessage(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// Recover extracts the signer address from an EIP-191 signature.
// sig must be 65 bytes (R || S || V), with V in {0,1} or {27,28}.
func Recover(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("invalid signature length")
	}
	hash := HashMessage(msg)

	// Normalize V: Ethereum uses 27/28, ecrecover expects 0/1
	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignMessage signs msg under the EIP-191 prefix and returns R || S || V with
// V in {27,28}, the form wallets and Solidity's ECDSA.recover expect.
func SignMessage(msg []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(HashMessage(msg), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Verifier checks that a 32-byte message digest was signed by expected.
// The engine takes the expected signer explicitly so authorizers are pluggable.
type Verifier interface {
	Verify(digest common.Hash, sig []byte, expected common.Address) bool
}

// EthVerifier verifies secp256k1 EIP-191 signatures over a digest
// (the toEthSignedMessageHash(bytes32) construction).
type EthVerifier struct{}

func (EthVerifier) Verify(digest common.Hash, sig []byte, expected common.Address) bool {
	if expected == (common.Address{}) {
		return false
	}
	got, err := Recover(digest.Bytes(), sig)
	if err != nil {
		return false
	}
	return got == expected
}
