// Package merkle implements the keccak256 sorted-pair Merkle tree used by the
// airdrop claim registry. Proofs are compatible with OpenZeppelin's
// MerkleProof.verify: internal nodes hash the two children in ascending
// byte order, so a proof is just the list of sibling hashes.
package merkle

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrIndexOutOfRange = errors.New("merkle: leaf index out of range")

// Leaf computes keccak256(abi.encodePacked(address, uint256)).
func Leaf(addr common.Address, amount *big.Int) common.Hash {
	var word [32]byte
	if amount != nil {
		amount.FillBytes(word[:])
	}
	return crypto.Keccak256Hash(addr.Bytes(), word[:])
}

// HashPair hashes two nodes in sorted order.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// ProcessProof folds proof into leaf and returns the implied root.
func ProcessProof(proof []common.Hash, leaf common.Hash) common.Hash {
	computed := leaf
	for _, sibling := range proof {
		computed = HashPair(computed, sibling)
	}
	return computed
}

// Verify reports whether leaf is a member of the tree with the given root.
func Verify(proof []common.Hash, root, leaf common.Hash) bool {
	return ProcessProof(proof, leaf) == root
}

// Tree is a fully materialised tree, kept for producing proofs off-line.
// layers[0] holds the leaves; the last layer holds the root.
type Tree struct {
	layers [][]common.Hash
}

// Build constructs the tree bottom-up. A node without a sibling is promoted
// to the next layer unchanged.
func Build(leaves []common.Hash) *Tree {
	if len(leaves) == 0 {
		return &Tree{}
	}
	layer := make([]common.Hash, len(leaves))
	copy(layer, leaves)
	t := &Tree{layers: [][]common.Hash{layer}}

	for len(layer) > 1 {
		next := make([]common.Hash, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			next = append(next, HashPair(layer[i], layer[i+1]))
		}
		t.layers = append(t.layers, next)
		layer = next
	}
	return t
}

// Root returns the tree root; the zero hash for an empty tree.
func (t *Tree) Root() common.Hash {
	if len(t.layers) == 0 {
		return common.Hash{}
	}
	return t.layers[len(t.layers)-1][0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	if len(t.layers) == 0 {
		return 0
	}
	return len(t.layers[0])
}

// Proof returns the sibling path for the leaf at index.
func (t *Tree) Proof(index int) ([]common.Hash, error) {
	if index < 0 || index >= t.Len() {
		return nil, ErrIndexOutOfRange
	}
	var proof []common.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := index ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		index /= 2
	}
	return proof, nil
}
