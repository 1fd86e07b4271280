package store

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/0gfoundation/0g-rosca/internal/types"
)

// Tx stages writes inside a Commit. Methods never fail individually; the
// first staging error is returned by Commit.
type Tx struct {
	ctx  context.Context
	pipe redis.Pipeliner
	err  error
}

// PutPot writes the pot's scalar fields and replaces its participant list.
// Winners are append-only and go through AppendWinner.
func (tx *Tx) PutPot(p *types.Pot) {
	tx.pipe.HSet(tx.ctx, potKey(p.ID),
		"name", p.Name,
		"contribution", bigString(p.ContributionAmount),
		"rotation_period_ns", int64(p.RotationPeriod),
		"last_rotation_ns", p.LastRotationTime.UnixNano(),
		"interest_num", p.InterestNumerator,
		"interest_den", p.InterestDenominator,
		"participant_limit", p.ParticipantLimit,
		"round", p.CurrentRound,
		"pending_randomness", p.PendingRandomnessID,
		"creator", p.Creator.Hex(),
		"risk_balance", bigString(p.RiskPoolBalance),
		"risk_pending", bigString(p.RiskPoolPendingUse),
		"risk_retired", bigString(p.RiskPoolRetired),
	)
	tx.pipe.Del(tx.ctx, participantsKey(p.ID))
	if len(p.Participants) > 0 {
		vals := make([]interface{}, len(p.Participants))
		for i, a := range p.Participants {
			vals[i] = addrField(a)
		}
		tx.pipe.RPush(tx.ctx, participantsKey(p.ID), vals...)
	}
}

// SetLastPotID advances the id allocator.
func (tx *Tx) SetLastPotID(id uint64) {
	tx.pipe.Set(tx.ctx, potSeqKey, id, 0)
}

func (tx *Tx) AppendWinner(id uint64, addr common.Address) {
	tx.pipe.RPush(tx.ctx, winnersKey(id), addrField(addr))
	tx.pipe.SAdd(tx.ctx, wonKey(id), addrField(addr))
}

// SetOwed stores addr's claimable balance; zero removes the entry.
func (tx *Tx) SetOwed(id uint64, addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() == 0 {
		tx.pipe.HDel(tx.ctx, owedKey(id), addrField(addr))
		return
	}
	tx.pipe.HSet(tx.ctx, owedKey(id), addrField(addr), amount.String())
}

func (tx *Tx) MarkJoined(id, round uint64, addr common.Address) {
	tx.pipe.SAdd(tx.ctx, joinedKey(id, round), addrField(addr))
}

func (tx *Tx) MarkRiskPermit(id uint64, nonce *big.Int) {
	tx.pipe.SAdd(tx.ctx, riskPermitsKey(id), nonce.String())
}

func (tx *Tx) SetRevenue(amount *big.Int) {
	tx.pipe.Set(tx.ctx, revenueKey, bigString(amount), 0)
}

func (tx *Tx) SetRandomnessFees(amount *big.Int) {
	tx.pipe.Set(tx.ctx, entropyFeesKey, bigString(amount), 0)
}

func (tx *Tx) SetRoot(root common.Hash) {
	tx.pipe.Set(tx.ctx, airdropRootKey, root.Hex(), 0)
}

func (tx *Tx) SetClaimed(addr common.Address, amount *big.Int) {
	tx.pipe.HSet(tx.ctx, airdropClaimKey, addrField(addr), bigString(amount))
}

// AppendEvent adds ev to the capped event log.
func (tx *Tx) AppendEvent(ev types.Event) {
	raw, err := json.Marshal(ev)
	if err != nil {
		if tx.err == nil {
			tx.err = err
		}
		return
	}
	tx.pipe.RPush(tx.ctx, eventLogKey, string(raw))
	tx.pipe.LTrim(tx.ctx, eventLogKey, -maxEvents, -1)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
