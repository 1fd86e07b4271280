// Package store persists pots, the revenue treasury, the claim registry and
// the event log in Redis. Reads go straight to Redis; all writes of one
// engine operation go through Commit and land in a single MULTI/EXEC.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-rosca/internal/types"
)

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// LastPotID returns the highest allocated pot id (0 when none).
func (s *Store) LastPotID(ctx context.Context) (uint64, error) {
	raw, err := s.rdb.Get(ctx, potSeqKey).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get pot seq: %w", err)
	}
	return strconv.ParseUint(raw, 10, 64)
}

// Pot loads the pot record with its participants and winners.
func (s *Store) Pot(ctx context.Context, id uint64) (*types.Pot, error) {
	vals, err := s.rdb.HGetAll(ctx, potKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get pot %d: %w", id, err)
	}
	if len(vals) == 0 {
		return nil, types.ErrPotNotFound
	}
	p, err := potFromMap(id, vals)
	if err != nil {
		return nil, err
	}
	if p.Participants, err = s.addresses(ctx, participantsKey(id)); err != nil {
		return nil, err
	}
	if p.Winners, err = s.addresses(ctx, winnersKey(id)); err != nil {
		return nil, err
	}
	return p, nil
}

// ScanPots returns every pot in id order.
func (s *Store) ScanPots(ctx context.Context) ([]*types.Pot, error) {
	last, err := s.LastPotID(ctx)
	if err != nil {
		return nil, err
	}
	pots := make([]*types.Pot, 0, last)
	for id := uint64(1); id <= last; id++ {
		p, err := s.Pot(ctx, id)
		if errors.Is(err, types.ErrPotNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		pots = append(pots, p)
	}
	return pots, nil
}

func (s *Store) Owed(ctx context.Context, id uint64, addr common.Address) (*big.Int, error) {
	return s.bigField(ctx, owedKey(id), addrField(addr))
}

func (s *Store) HasWon(ctx context.Context, id uint64, addr common.Address) (bool, error) {
	return s.rdb.SIsMember(ctx, wonKey(id), addrField(addr)).Result()
}

func (s *Store) HasJoined(ctx context.Context, id, round uint64, addr common.Address) (bool, error) {
	return s.rdb.SIsMember(ctx, joinedKey(id, round), addrField(addr)).Result()
}

func (s *Store) RiskPermitUsed(ctx context.Context, id uint64, nonce *big.Int) (bool, error) {
	return s.rdb.SIsMember(ctx, riskPermitsKey(id), nonce.String()).Result()
}

// Revenue returns the treasury balance.
func (s *Store) Revenue(ctx context.Context) (*big.Int, error) {
	return s.bigString(ctx, revenueKey)
}

// RandomnessFees returns the randomness fees collected and not yet withdrawn.
func (s *Store) RandomnessFees(ctx context.Context) (*big.Int, error) {
	return s.bigString(ctx, entropyFeesKey)
}

// Root returns the claim registry root (zero hash when unset).
func (s *Store) Root(ctx context.Context) (common.Hash, error) {
	raw, err := s.rdb.Get(ctx, airdropRootKey).Result()
	if errors.Is(err, redis.Nil) {
		return common.Hash{}, nil
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("get root: %w", err)
	}
	return common.HexToHash(raw), nil
}

// Claimed returns the cumulative amount addr has claimed from the registry.
func (s *Store) Claimed(ctx context.Context, addr common.Address) (*big.Int, error) {
	return s.bigField(ctx, airdropClaimKey, addrField(addr))
}

// Events returns up to limit most recent records, oldest first.
func (s *Store) Events(ctx context.Context, limit int64) ([]types.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := s.rdb.LRange(ctx, eventLogKey, -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	events := make([]types.Event, 0, len(raws))
	for _, raw := range raws {
		var ev types.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Commit applies every write staged by fn atomically. If fn returns an
// error, or staging failed, nothing is sent.
func (s *Store) Commit(ctx context.Context, fn func(tx *Tx) error) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		tx := &Tx{ctx: ctx, pipe: pipe}
		if err := fn(tx); err != nil {
			return err
		}
		return tx.err
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) addresses(ctx context.Context, key string) ([]common.Address, error) {
	raws, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	out := make([]common.Address, len(raws))
	for i, r := range raws {
		out[i] = common.HexToAddress(r)
	}
	return out, nil
}

func (s *Store) bigField(ctx context.Context, key, field string) (*big.Int, error) {
	raw, err := s.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s[%s]: %w", key, field, err)
	}
	return parseBig(raw)
}

func (s *Store) bigString(ctx context.Context, key string) (*big.Int, error) {
	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return parseBig(raw)
}

func parseBig(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func potFromMap(id uint64, m map[string]string) (*types.Pot, error) {
	p := &types.Pot{ID: id, Name: m["name"], Creator: common.HexToAddress(m["creator"])}
	var err error
	if p.ContributionAmount, err = parseBig(m["contribution"]); err != nil {
		return nil, err
	}
	if p.RiskPoolBalance, err = parseBig(m["risk_balance"]); err != nil {
		return nil, err
	}
	if p.RiskPoolPendingUse, err = parseBig(m["risk_pending"]); err != nil {
		return nil, err
	}
	if p.RiskPoolRetired, err = parseBig(m["risk_retired"]); err != nil {
		return nil, err
	}
	period, _ := strconv.ParseInt(m["rotation_period_ns"], 10, 64)
	lastRotation, _ := strconv.ParseInt(m["last_rotation_ns"], 10, 64)
	limit, _ := strconv.ParseUint(m["participant_limit"], 10, 32)
	p.RotationPeriod = time.Duration(period)
	p.LastRotationTime = time.Unix(0, lastRotation).UTC()
	p.InterestNumerator, _ = strconv.ParseUint(m["interest_num"], 10, 64)
	p.InterestDenominator, _ = strconv.ParseUint(m["interest_den"], 10, 64)
	p.ParticipantLimit = uint32(limit)
	p.CurrentRound, _ = strconv.ParseUint(m["round"], 10, 64)
	p.PendingRandomnessID, _ = strconv.ParseUint(m["pending_randomness"], 10, 64)
	return p, nil
}
