// cmd/faucet credits a participant on the custodial Redis ledger, for dev and
// test deployments that run with ledger.backend=redis. It reads the same
// configuration as the service.
//
//	REDIS_ADDR=localhost:6379 go run ./cmd/faucet/ --addr 0x<participant> --amount 1000
//
// Without --amount it only prints the current balance.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-rosca/internal/config"
	"github.com/0gfoundation/0g-rosca/internal/ledger"
)

func run(ctx context.Context, l *ledger.Redis, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("faucet", flag.ContinueOnError)
	addrHex := fs.String("addr", "", "account to credit (required)")
	amountStr := fs.String("amount", "", "amount to credit, in base units")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !common.IsHexAddress(*addrHex) {
		return fmt.Errorf("--addr must be a hex address")
	}
	addr := common.HexToAddress(*addrHex)

	if *amountStr != "" {
		amount, ok := new(big.Int).SetString(*amountStr, 10)
		if !ok {
			return fmt.Errorf("invalid --amount %q", *amountStr)
		}
		if err := l.Deposit(ctx, addr, amount); err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
	}
	bal, err := l.Balance(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s balance: %s\n", addr.Hex(), bal)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalf("config: %v", err)
	}
	if cfg.Ledger.Backend != "redis" {
		fatalf("ledger backend is %q; the faucet only serves the redis ledger", cfg.Ledger.Backend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	defer rdb.Close()

	l := ledger.NewRedis(rdb, common.HexToAddress(cfg.Chain.CustodyAddress))
	if err := run(ctx, l, os.Args[1:], os.Stdout); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
