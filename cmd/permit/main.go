// cmd/permit signs join and risk-pool permits with the authorizer key.
//
//	AUTHORIZER_PRIVATE_KEY=0x<key> go run ./cmd/permit/ join \
//	  --custody 0x<custody> --pot 1 --participant 0x<addr> --round 3 --nonce 42
//
//	AUTHORIZER_PRIVATE_KEY=0x<key> go run ./cmd/permit/ risk-pool \
//	  --custody 0x<custody> --pot 1 --caller 0x<addr> --amount 39 --nonce 43
//
// The printed JSON's nonce and signature go into the signed payload of
// POST /api/pots/:id/join or /risk-pool.
package main

import (
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-rosca/internal/permit"
)

type signed struct {
	Kind      string        `json:"kind"`
	PotID     uint64        `json:"pot_id"`
	Address   string        `json:"address"`
	Round     uint64        `json:"round,omitempty"`
	Amount    string        `json:"amount,omitempty"`
	Nonce     string        `json:"nonce"`
	Signature hexutil.Bytes `json:"signature"`
}

func run(args []string, key *ecdsa.PrivateKey) (*signed, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: permit join|risk-pool [flags]")
	}
	kind := args[0]
	fs := flag.NewFlagSet(kind, flag.ContinueOnError)
	chainID := fs.Int64("chain-id", 16602, "Chain ID")
	custody := fs.String("custody", "", "custody address bound into the permit domain")
	potID := fs.Uint64("pot", 0, "pot id")
	participant := fs.String("participant", "", "joining address (join)")
	round := fs.Uint64("round", 0, "round the permit is valid for (join)")
	caller := fs.String("caller", "", "calling address (risk-pool)")
	amount := fs.String("amount", "", "risk-pool amount (risk-pool)")
	nonceStr := fs.String("nonce", "", "permit nonce")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}

	if !common.IsHexAddress(*custody) {
		return nil, fmt.Errorf("--custody must be a hex address")
	}
	if *potID == 0 {
		return nil, fmt.Errorf("--pot is required")
	}
	nonce, ok := new(big.Int).SetString(*nonceStr, 10)
	if !ok || nonce.Sign() < 0 {
		return nil, fmt.Errorf("invalid --nonce %q", *nonceStr)
	}
	domain := permit.Domain{ChainID: big.NewInt(*chainID), Verifier: common.HexToAddress(*custody)}

	switch kind {
	case "join":
		if !common.IsHexAddress(*participant) || *round == 0 {
			return nil, fmt.Errorf("join needs --participant and --round")
		}
		p := &permit.JoinPermit{PotID: *potID, Participant: common.HexToAddress(*participant), Round: *round, Nonce: nonce}
		if err := domain.SignJoin(p, key); err != nil {
			return nil, err
		}
		return &signed{Kind: kind, PotID: p.PotID, Address: p.Participant.Hex(), Round: p.Round, Nonce: nonce.String(), Signature: p.Signature}, nil
	case "risk-pool":
		amt, ok := new(big.Int).SetString(*amount, 10)
		if !common.IsHexAddress(*caller) || !ok || amt.Sign() < 0 {
			return nil, fmt.Errorf("risk-pool needs --caller and a non-negative --amount")
		}
		p := &permit.RiskPoolPermit{PotID: *potID, Caller: common.HexToAddress(*caller), Amount: amt, Nonce: nonce}
		if err := domain.SignRiskPool(p, key); err != nil {
			return nil, err
		}
		return &signed{Kind: kind, PotID: p.PotID, Address: p.Caller.Hex(), Amount: amt.String(), Nonce: nonce.String(), Signature: p.Signature}, nil
	default:
		return nil, fmt.Errorf("unknown permit kind %q", kind)
	}
}

func main() {
	keyHex := strings.TrimPrefix(os.Getenv("AUTHORIZER_PRIVATE_KEY"), "0x")
	if keyHex == "" {
		fatalf("AUTHORIZER_PRIVATE_KEY not set")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		fatalf("parse private key: %v", err)
	}

	out, err := run(os.Args[1:], key)
	if err != nil {
		fatalf("%v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatalf("encode: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
