// cmd/checkbal prints an address's token balance and the allowance it has
// granted the pot custody address.
//
//	go run ./cmd/checkbal/ --token 0x<erc20> --custody 0x<custody> --addr 0x<participant>
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0gfoundation/0g-rosca/internal/ledger"
)

func main() {
	rpc := flag.String("rpc", "https://evmrpc-testnet.0g.ai", "RPC endpoint")
	chainID := flag.Int64("chain-id", 16602, "Chain ID")
	tokenHex := flag.String("token", "", "ERC-20 token address")
	custodyHex := flag.String("custody", "", "pot custody address")
	addrHex := flag.String("addr", "", "address to inspect")
	flag.Parse()

	for _, a := range []string{*tokenHex, *custodyHex, *addrHex} {
		if !common.IsHexAddress(a) {
			fmt.Fprintln(os.Stderr, "error: --token, --custody and --addr must be hex addresses")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	eth, err := ethclient.DialContext(ctx, *rpc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: dial rpc: %v\n", err)
		os.Exit(1)
	}
	defer eth.Close()

	token, _ := ledger.NewERC20Reader(eth, common.HexToAddress(*tokenHex), common.HexToAddress(*custodyHex), big.NewInt(*chainID))
	addr := common.HexToAddress(*addrHex)
	bal, err := token.BalanceOf(ctx, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	allowance, err := token.Allowance(ctx, addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("balance:   %s\n", bal)
	fmt.Printf("allowance: %s\n", allowance)
}
