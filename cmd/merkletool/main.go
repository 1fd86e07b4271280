// cmd/merkletool builds the claim registry tree from a CSV of
// cumulative entitlements and prints the root with every address's proof.
//
// Input: one "address,amount" line per claimant (amount in base units).
// Blank lines and lines starting with # are skipped.
//
//	go run ./cmd/merkletool/ --in entitlements.csv > airdrop.json
//
// Publish "root" with POST /api/airdrop/root; each claimant submits its
// "amount" and "proof" to POST /api/airdrop/claim.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-rosca/internal/merkle"
)

type entry struct {
	addr   common.Address
	amount *big.Int
}

type claimOut struct {
	Amount string        `json:"amount"`
	Proof  []common.Hash `json:"proof"`
}

type output struct {
	Root   common.Hash         `json:"root"`
	Claims map[string]claimOut `json:"claims"`
}

func parseEntries(r io.Reader) ([]entry, error) {
	var entries []entry
	seen := make(map[common.Address]bool)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.Split(text, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: want address,amount", line)
		}
		rawAddr, rawAmt := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if !common.IsHexAddress(rawAddr) {
			return nil, fmt.Errorf("line %d: invalid address %q", line, rawAddr)
		}
		amt, ok := new(big.Int).SetString(rawAmt, 10)
		if !ok || amt.Sign() <= 0 || amt.BitLen() > 256 {
			return nil, fmt.Errorf("line %d: invalid amount %q", line, rawAmt)
		}
		addr := common.HexToAddress(rawAddr)
		if seen[addr] {
			return nil, fmt.Errorf("line %d: duplicate address %s", line, addr.Hex())
		}
		seen[addr] = true
		entries = append(entries, entry{addr: addr, amount: amt})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entitlements")
	}
	return entries, nil
}

func build(entries []entry) (*output, error) {
	leaves := make([]common.Hash, len(entries))
	for i, e := range entries {
		leaves[i] = merkle.Leaf(e.addr, e.amount)
	}
	tree := merkle.Build(leaves)

	out := &output{Root: tree.Root(), Claims: make(map[string]claimOut, len(entries))}
	for i, e := range entries {
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		if proof == nil {
			proof = []common.Hash{}
		}
		out.Claims[e.addr.Hex()] = claimOut{Amount: e.amount.String(), Proof: proof}
	}
	return out, nil
}

func main() {
	in := flag.String("in", "", "CSV file of address,amount lines (default stdin)")
	flag.Parse()

	var r io.Reader = os.Stdin
	if *in != "" {
		f, err := os.Open(*in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	entries, err := parseEntries(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	out, err := build(entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
