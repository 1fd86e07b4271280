// cmd/setup prepares a participant wallet for the ERC-20 ledger: it approves
// the pot custody address to pull contributions and prints the resulting
// balance and allowance.
//
// Usage:
//
//	PARTICIPANT_PRIVATE_KEY=0x<key> \
//	go run ./cmd/setup/ \
//	  --rpc      https://evmrpc-testnet.0g.ai \
//	  --chain-id 16602 \
//	  --token    0x<erc20> \
//	  --custody  0x<custody address> \
//	  --approve  1000000000000000000
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0gfoundation/0g-rosca/internal/ledger"
)

func main() {
	rpc := flag.String("rpc", "https://evmrpc-testnet.0g.ai", "RPC endpoint")
	chainID := flag.Int64("chain-id", 16602, "Chain ID")
	tokenHex := flag.String("token", "", "ERC-20 token address (required)")
	custodyHex := flag.String("custody", "", "pot custody address (required)")
	approve := flag.String("approve", "", "allowance to grant custody, in token base units (required)")
	flag.Parse()

	if *tokenHex == "" || *custodyHex == "" || *approve == "" {
		fatalf("--token, --custody and --approve are required")
	}
	if !common.IsHexAddress(*tokenHex) || !common.IsHexAddress(*custodyHex) {
		fatalf("invalid address")
	}
	amount, ok := new(big.Int).SetString(*approve, 10)
	if !ok || amount.Sign() < 0 {
		fatalf("invalid --approve %q", *approve)
	}

	keyHex := strings.TrimPrefix(os.Getenv("PARTICIPANT_PRIVATE_KEY"), "0x")
	if keyHex == "" {
		fatalf("PARTICIPANT_PRIVATE_KEY not set")
	}
	privKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		fatalf("parse private key: %v", err)
	}
	addr := crypto.PubkeyToAddress(privKey.PublicKey)
	fmt.Printf("account: %s\n", addr.Hex())
	fmt.Printf("token:   %s\n", *tokenHex)
	fmt.Printf("custody: %s\n", *custodyHex)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	eth, err := ethclient.Dial(*rpc)
	if err != nil {
		fatalf("dial rpc: %v", err)
	}
	defer eth.Close()

	token, err := ledger.NewERC20Reader(eth, common.HexToAddress(*tokenHex), common.HexToAddress(*custodyHex), big.NewInt(*chainID))
	if err != nil {
		fatalf("bind token: %v", err)
	}

	fmt.Printf("\nApprove %s...\n", amount)
	if err := token.Approve(ctx, privKey, amount); err != nil {
		fatalf("approve: %v", err)
	}
	fmt.Println("      confirmed ✓")

	bal, err := token.BalanceOf(ctx, addr)
	if err != nil {
		fatalf("balanceOf: %v", err)
	}
	allowance, err := token.Allowance(ctx, addr)
	if err != nil {
		fatalf("allowance: %v", err)
	}
	fmt.Printf("\nSetup complete!\n")
	fmt.Printf("  balance:   %s\n", bal)
	fmt.Printf("  allowance: %s\n", allowance)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
