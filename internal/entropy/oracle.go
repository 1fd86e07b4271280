package entropy

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	seqKey           = "entropy:seq"
	requestKeyPrefix = "entropy:req:"
)

func requestKey(id uint64) string {
	return requestKeyPrefix + strconv.FormatUint(id, 10)
}

// Oracle is a Redis-backed local randomness service. It is the default
// Provider for single-node deployments and the backend of Routes.
type Oracle struct {
	rdb *redis.Client
	fee *big.Int
	log *zap.Logger
}

func NewOracle(rdb *redis.Client, fee *big.Int, log *zap.Logger) *Oracle {
	if fee == nil {
		fee = new(big.Int)
	}
	return &Oracle{rdb: rdb, fee: new(big.Int).Set(fee), log: log}
}

func (o *Oracle) QuoteFee(context.Context) (*big.Int, error) {
	return new(big.Int).Set(o.fee), nil
}

// Request registers commitment and returns its request id (starting at 1).
func (o *Oracle) Request(ctx context.Context, commitment common.Hash, fee *big.Int) (uint64, error) {
	if fee == nil || fee.Cmp(o.fee) != 0 {
		return 0, ErrFeeMismatch
	}
	n, err := o.rdb.Incr(ctx, seqKey).Result()
	if err != nil {
		return 0, fmt.Errorf("incr request seq: %w", err)
	}
	id := uint64(n)
	if err := o.rdb.HSet(ctx, requestKey(id),
		"commitment", commitment.Hex(),
		"status", StatusRequested,
	).Err(); err != nil {
		return 0, fmt.Errorf("store request %d: %w", id, err)
	}
	o.log.Debug("randomness requested", zap.Uint64("request", id))
	return id, nil
}

// Reveal consumes request id. The status flip is guarded by WATCH so two
// concurrent reveals cannot both succeed.
func (o *Oracle) Reveal(ctx context.Context, id uint64, userSeed, providerSeed common.Hash) (*big.Int, error) {
	key := requestKey(id)
	var value *big.Int

	err := o.rdb.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return ErrUnknownRequest
		}
		if vals["status"] == StatusRevealed {
			return ErrAlreadyRevealed
		}
		if common.HexToHash(vals["commitment"]) != Commit(userSeed, providerSeed) {
			return ErrRevealMismatch
		}
		value = RandomValue(userSeed, providerSeed, id)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "status", StatusRevealed, "value", value.String())
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrAlreadyRevealed
		}
		return nil, err
	}
	o.log.Debug("randomness revealed", zap.Uint64("request", id))
	return value, nil
}

// Status returns StatusRequested, StatusRevealed, or "" for an unknown id.
func (o *Oracle) Status(ctx context.Context, id uint64) (string, error) {
	s, err := o.rdb.HGet(ctx, requestKey(id), "status").Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return s, err
}
