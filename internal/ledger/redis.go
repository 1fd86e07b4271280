package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const balancesKey = "ledger:balances"

// Redis is a custodial ledger kept in a Redis hash (address → decimal
// amount). Transfers use WATCH/MULTI so concurrent movers cannot overdraw.
type Redis struct {
	rdb     *redis.Client
	custody common.Address
}

func NewRedis(rdb *redis.Client, custody common.Address) *Redis {
	return &Redis{rdb: rdb, custody: custody}
}

// Custody returns the account holding engine funds.
func (l *Redis) Custody() common.Address { return l.custody }

// Balance returns addr's balance (zero when absent).
func (l *Redis) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return readBalance(ctx, l.rdb, addr)
}

// Deposit credits addr out of thin air. Used by the dev faucet and tests.
func (l *Redis) Deposit(ctx context.Context, addr common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		bal, err := readBalance(ctx, tx, addr)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, balancesKey, field(addr), new(big.Int).Add(bal, amount).String())
			return nil
		})
		return err
	}, balancesKey)
}

func (l *Redis) Pull(ctx context.Context, from common.Address, amount *big.Int) error {
	return l.transfer(ctx, from, l.custody, amount)
}

func (l *Redis) Push(ctx context.Context, to common.Address, amount *big.Int) error {
	return l.transfer(ctx, l.custody, to, amount)
}

func (l *Redis) transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		fromBal, err := readBalance(ctx, tx, from)
		if err != nil {
			return err
		}
		if fromBal.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		toBal, err := readBalance(ctx, tx, to)
		if err != nil {
			return err
		}
		if from == to {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, balancesKey,
				field(from), new(big.Int).Sub(fromBal, amount).String(),
				field(to), new(big.Int).Add(toBal, amount).String(),
			)
			return nil
		})
		return err
	}, balancesKey)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("ledger transfer %s -> %s: concurrent update", from.Hex(), to.Hex())
	}
	return err
}

func field(addr common.Address) string {
	return addr.Hex()
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func readBalance(ctx context.Context, c hashReader, addr common.Address) (*big.Int, error) {
	raw, err := c.HGet(ctx, balancesKey, field(addr)).Result()
	if errors.Is(err, redis.Nil) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read balance %s: %w", addr.Hex(), err)
	}
	bal, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt balance for %s: %q", addr.Hex(), raw)
	}
	return bal, nil
}
