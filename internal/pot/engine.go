// Package pot implements the pot lifecycle: creation, signed admission,
// commit/reveal rotation with fee and risk-pool accounting, payout claims and
// the revenue treasury.
//
// Every operation runs under one mutex, reads and validates first, then
// performs external calls (ledger pulls, randomness), then commits all state
// and its event record in a single store transaction. Ledger pulls made
// before a later failure are refunded. Randomness fees are pulled from the
// payer into custody and held until the administrator withdraws them.
package pot

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-rosca/internal/auth"
	"github.com/0gfoundation/0g-rosca/internal/entropy"
	"github.com/0gfoundation/0g-rosca/internal/ledger"
	"github.com/0gfoundation/0g-rosca/internal/metrics"
	"github.com/0gfoundation/0g-rosca/internal/permit"
	"github.com/0gfoundation/0g-rosca/internal/store"
	"github.com/0gfoundation/0g-rosca/internal/types"
)

// Config holds the engine's authorities and policies.
type Config struct {
	// Authorizer signs join and risk-pool permits.
	Authorizer common.Address
	// Admin may withdraw the revenue treasury and the collected randomness
	// fees, and re-arms pots whose pending request was consumed.
	Admin      common.Address
	Domain     permit.Domain
	Exhaustion types.ExhaustionPolicy
}

type Engine struct {
	mu       sync.Mutex
	store    *store.Store
	ledger   ledger.Ledger
	rng      entropy.Provider
	verifier auth.Verifier
	clock    clockwork.Clock
	cfg      Config
	log      *zap.Logger
}

func NewEngine(
	st *store.Store,
	l ledger.Ledger,
	rng entropy.Provider,
	verifier auth.Verifier,
	clock clockwork.Clock,
	cfg Config,
	log *zap.Logger,
) *Engine {
	if cfg.Exhaustion == "" {
		cfg.Exhaustion = types.ExhaustionCycle
	}
	return &Engine{
		store:    st,
		ledger:   l,
		rng:      rng,
		verifier: verifier,
		clock:    clock,
		cfg:      cfg,
		log:      log,
	}
}

// CreatePotParams are the immutable parameters of a new pot. Amount is both
// the creator's first deposit and the per-round contribution.
type CreatePotParams struct {
	Name                string
	Commitment          common.Hash
	RotationPeriod      time.Duration
	InterestNumerator   uint64
	InterestDenominator uint64
	ParticipantLimit    uint32
	Amount              *big.Int
}

func (p CreatePotParams) validate() error {
	if p.RotationPeriod <= 0 {
		return types.ErrInvalidRotationPeriod
	}
	if p.InterestDenominator == 0 || p.InterestNumerator == 0 || p.InterestNumerator > p.InterestDenominator {
		return types.ErrInvalidInterestRate
	}
	if p.ParticipantLimit == 0 || !positiveUint256(p.Amount) {
		return types.ErrInvalidParameters
	}
	return nil
}

// CreatePot allocates a new pot with caller as its sole round-1 participant.
func (e *Engine) CreatePot(ctx context.Context, caller common.Address, params CreatePotParams, fee *big.Int) (_ *types.Pot, err error) {
	defer observe("create_pot", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkFee(ctx, fee); err != nil {
		return nil, err
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	last, err := e.store.LastPotID(ctx)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	p := &types.Pot{
		ID:                  last + 1,
		Name:                params.Name,
		ContributionAmount:  new(big.Int).Set(params.Amount),
		RotationPeriod:      params.RotationPeriod,
		LastRotationTime:    now,
		InterestNumerator:   params.InterestNumerator,
		InterestDenominator: params.InterestDenominator,
		ParticipantLimit:    params.ParticipantLimit,
		CurrentRound:        1,
		Creator:             caller,
		Participants:        []common.Address{caller},
		RiskPoolBalance:     new(big.Int),
		RiskPoolPendingUse:  new(big.Int),
		RiskPoolRetired:     new(big.Int),
	}

	j := e.newJournal()
	if err := j.pull(ctx, caller, p.ContributionAmount); err != nil {
		return nil, err
	}
	fees, err := e.chargeFee(ctx, j, caller, fee)
	if err != nil {
		j.rollback(ctx)
		return nil, err
	}
	reqID, err := e.rng.Request(ctx, params.Commitment, fee)
	if err != nil {
		j.rollback(ctx)
		return nil, randomnessError(err)
	}
	p.PendingRandomnessID = reqID

	err = e.store.Commit(ctx, func(tx *store.Tx) error {
		tx.PutPot(p)
		tx.SetLastPotID(p.ID)
		tx.SetRandomnessFees(fees)
		tx.MarkJoined(p.ID, p.CurrentRound, caller)
		tx.AppendEvent(types.Event{
			Type:      types.EventTypePotCreated,
			PotID:     p.ID,
			Round:     p.CurrentRound,
			Actor:     caller,
			Amount:    p.ContributionAmount,
			RequestID: reqID,
			Time:      now.Unix(),
		})
		return nil
	})
	if err != nil {
		j.rollback(ctx)
		return nil, err
	}

	e.log.Info("pot created",
		zap.Uint64("pot", p.ID),
		zap.String("name", p.Name),
		zap.String("creator", caller.Hex()),
		zap.String("contribution", p.ContributionAmount.String()),
		zap.Uint64("randomness_request", reqID),
	)
	return p, nil
}

// JoinPot admits caller to the pot's current round. sig must be the
// authorizer's signature over (potID, caller, currentRound, nonce).
func (e *Engine) JoinPot(ctx context.Context, caller common.Address, potID uint64, sig []byte, nonce *big.Int) (err error) {
	defer observe("join_pot", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !uint256(nonce) {
		return types.ErrInvalidParameters
	}
	p, err := e.store.Pot(ctx, potID)
	if err != nil {
		return err
	}
	if p.Full() {
		return types.ErrPotFull
	}
	digest := e.cfg.Domain.JoinDigest(potID, caller, p.CurrentRound, nonce)
	if !e.verifier.Verify(digest, sig, e.cfg.Authorizer) {
		return types.ErrSignatureInvalid
	}
	joined, err := e.store.HasJoined(ctx, potID, p.CurrentRound, caller)
	if err != nil {
		return err
	}
	if joined || p.IsParticipant(caller) {
		return types.ErrAlreadyJoinedThisRound
	}

	j := e.newJournal()
	if err := j.pull(ctx, caller, p.ContributionAmount); err != nil {
		return err
	}
	p.Participants = append(p.Participants, caller)

	err = e.store.Commit(ctx, func(tx *store.Tx) error {
		tx.PutPot(p)
		tx.MarkJoined(potID, p.CurrentRound, caller)
		tx.AppendEvent(types.Event{
			Type:   types.EventTypePotJoined,
			PotID:  potID,
			Round:  p.CurrentRound,
			Actor:  caller,
			Amount: p.ContributionAmount,
			Time:   e.clock.Now().Unix(),
		})
		return nil
	})
	if err != nil {
		j.rollback(ctx)
		return err
	}

	e.log.Info("pot joined",
		zap.Uint64("pot", potID),
		zap.Uint64("round", p.CurrentRound),
		zap.String("participant", caller.Hex()),
		zap.Int("participants", len(p.Participants)),
	)
	return nil
}

// RotateParams carry the seeds revealing the pending request and the
// commitment for the next round's request.
type RotateParams struct {
	PotID          uint64
	NextCommitment common.Hash
	UserSeed       common.Hash
	ProviderSeed   common.Hash
	Fee            *big.Int
}

// RotateResult reports the outcome of a completed rotation.
type RotateResult struct {
	Winner        common.Address
	Round         uint64 // the round that just completed
	NextRequestID uint64
	Payout        Payout
}

// Rotate completes the pot's current round. Any caller may rotate once the
// time gate has passed; the caller funds and becomes the sole participant
// of the next round.
func (e *Engine) Rotate(ctx context.Context, caller common.Address, params RotateParams) (_ *RotateResult, err error) {
	defer observe("rotate", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.Pot(ctx, params.PotID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	if now.Before(p.NextRotationAt()) {
		return nil, types.ErrRotationNotDue
	}
	n := len(p.Participants)
	if n == 0 {
		return nil, types.ErrNoParticipants
	}
	if e.cfg.Exhaustion == types.ExhaustionFreeze && uint64(len(p.Winners)) >= uint64(p.ParticipantLimit) {
		return nil, types.ErrPotExhausted
	}
	if err := e.checkFee(ctx, params.Fee); err != nil {
		return nil, err
	}
	revenue, err := e.store.Revenue(ctx)
	if err != nil {
		return nil, err
	}

	payout := computePayout(p.ContributionAmount, n, p.InterestNumerator, p.InterestDenominator, p.RiskPoolPendingUse)

	// The reveal consumes the pending request and cannot be undone, so it
	// runs after every reversible step has succeeded.
	j := e.newJournal()
	if err := j.pull(ctx, caller, p.ContributionAmount); err != nil {
		return nil, err
	}
	fees, err := e.chargeFee(ctx, j, caller, params.Fee)
	if err != nil {
		j.rollback(ctx)
		return nil, err
	}
	nextID, err := e.rng.Request(ctx, params.NextCommitment, params.Fee)
	if err != nil {
		j.rollback(ctx)
		return nil, randomnessError(err)
	}
	consumed := p.PendingRandomnessID
	random, err := e.rng.Reveal(ctx, consumed, params.UserSeed, params.ProviderSeed)
	if err != nil {
		j.rollback(ctx)
		return nil, randomnessError(err)
	}

	winnerIndex := new(big.Int).Mod(random, big.NewInt(int64(n))).Int64()
	winner := p.Participants[winnerIndex]

	owed, err := e.store.Owed(ctx, p.ID, winner)
	if err != nil {
		j.rollback(ctx)
		return nil, err
	}
	owed.Add(owed, payout.Winner)
	revenue.Add(revenue, payout.Fee)

	completed := p.CurrentRound
	retired := new(big.Int).Sub(p.RiskPoolBalance, p.RiskPoolPendingUse)
	if retired.Sign() > 0 {
		p.RiskPoolRetired = new(big.Int).Add(p.RiskPoolRetired, retired)
	}
	p.RiskPoolBalance = payout.RiskCut
	p.RiskPoolPendingUse = new(big.Int)
	p.Winners = append(p.Winners, winner)
	p.CurrentRound++
	p.LastRotationTime = now
	p.Participants = []common.Address{caller}
	p.PendingRandomnessID = nextID

	err = e.store.Commit(ctx, func(tx *store.Tx) error {
		tx.PutPot(p)
		tx.AppendWinner(p.ID, winner)
		tx.SetOwed(p.ID, winner, owed)
		tx.SetRevenue(revenue)
		tx.SetRandomnessFees(fees)
		tx.MarkJoined(p.ID, p.CurrentRound, caller)
		tx.AppendEvent(types.Event{
			Type:      types.EventTypePotRotated,
			PotID:     p.ID,
			Round:     completed,
			Actor:     caller,
			Winner:    &winner,
			Amount:    payout.Winner,
			RequestID: nextID,
			Time:      now.Unix(),
		})
		return nil
	})
	if err != nil {
		// The reveal is spent. The pot stays on its consumed request until
		// the administrator calls RearmRandomness.
		j.rollback(ctx)
		e.log.Error("rotate: commit after reveal failed, pot needs rearm",
			zap.Uint64("pot", p.ID),
			zap.Uint64("consumed_request", consumed),
			zap.Error(err),
		)
		return nil, err
	}

	e.log.Info("pot rotated",
		zap.Uint64("pot", p.ID),
		zap.Uint64("round", completed),
		zap.String("winner", winner.Hex()),
		zap.String("payout", payout.Winner.String()),
		zap.String("fee", payout.Fee.String()),
		zap.String("risk_pool", payout.RiskCut.String()),
		zap.Uint64("next_request", nextID),
	)
	return &RotateResult{Winner: winner, Round: completed, NextRequestID: nextID, Payout: payout}, nil
}

// UseRiskPool directs amount of the pot's risk pool to the next winner.
// A later call overwrites the pending amount rather than adding to it.
func (e *Engine) UseRiskPool(ctx context.Context, caller common.Address, potID uint64, amount *big.Int, sig []byte, nonce *big.Int) (err error) {
	defer observe("use_risk_pool", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !uint256(amount) || !uint256(nonce) {
		return types.ErrInvalidParameters
	}
	p, err := e.store.Pot(ctx, potID)
	if err != nil {
		return err
	}
	digest := e.cfg.Domain.RiskPoolDigest(potID, caller, amount, nonce)
	if !e.verifier.Verify(digest, sig, e.cfg.Authorizer) {
		return types.ErrSignatureInvalid
	}
	used, err := e.store.RiskPermitUsed(ctx, potID, nonce)
	if err != nil {
		return err
	}
	if used {
		return types.ErrPermitAlreadyUsed
	}
	if amount.Cmp(p.RiskPoolBalance) > 0 {
		return types.ErrInsufficientRiskPool
	}

	p.RiskPoolPendingUse = new(big.Int).Set(amount)
	err = e.store.Commit(ctx, func(tx *store.Tx) error {
		tx.PutPot(p)
		tx.MarkRiskPermit(potID, nonce)
		tx.AppendEvent(types.Event{
			Type:   types.EventTypeRiskPoolUseAuthorized,
			PotID:  potID,
			Round:  p.CurrentRound,
			Actor:  caller,
			Amount: amount,
			Time:   e.clock.Now().Unix(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	e.log.Info("risk pool use authorized",
		zap.Uint64("pot", potID),
		zap.String("amount", amount.String()),
		zap.String("balance", p.RiskPoolBalance.String()),
	)
	return nil
}

// ClaimReward pays caller everything owed by the pot. The balance is zeroed
// before the transfer and restored if the transfer fails.
func (e *Engine) ClaimReward(ctx context.Context, caller common.Address, potID uint64) (_ *big.Int, err error) {
	defer observe("claim_reward", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.store.Pot(ctx, potID)
	if err != nil {
		return nil, err
	}
	owed, err := e.store.Owed(ctx, potID, caller)
	if err != nil {
		return nil, err
	}
	if owed.Sign() == 0 {
		return nil, types.ErrNothingToClaim
	}

	ev := types.Event{
		Type:   types.EventTypeRewardClaimed,
		PotID:  potID,
		Round:  p.CurrentRound,
		Actor:  caller,
		Amount: owed,
		Time:   e.clock.Now().Unix(),
	}
	err = e.payOut(ctx, caller, owed, ev,
		func(tx *store.Tx) { tx.SetOwed(potID, caller, nil) },
		func(tx *store.Tx) { tx.SetOwed(potID, caller, owed) },
	)
	if err != nil {
		return nil, err
	}

	e.log.Info("reward claimed",
		zap.Uint64("pot", potID),
		zap.String("claimant", caller.Hex()),
		zap.String("amount", owed.String()),
	)
	return owed, nil
}

// WithdrawRevenue pays the whole treasury to the administrator.
func (e *Engine) WithdrawRevenue(ctx context.Context, caller common.Address) (_ *big.Int, err error) {
	defer observe("withdraw_revenue", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Admin {
		return nil, types.ErrNotAdministrator
	}
	revenue, err := e.store.Revenue(ctx)
	if err != nil {
		return nil, err
	}
	if revenue.Sign() == 0 {
		return nil, types.ErrNoRevenue
	}

	ev := types.Event{
		Type:   types.EventTypeRevenueWithdrawn,
		Actor:  caller,
		Amount: revenue,
		Time:   e.clock.Now().Unix(),
	}
	err = e.payOut(ctx, caller, revenue, ev,
		func(tx *store.Tx) { tx.SetRevenue(new(big.Int)) },
		func(tx *store.Tx) { tx.SetRevenue(revenue) },
	)
	if err != nil {
		return nil, err
	}

	e.log.Info("revenue withdrawn", zap.String("admin", caller.Hex()), zap.String("amount", revenue.String()))
	return revenue, nil
}

// RearmRandomness gives the pot a fresh randomness request once its pending
// one can no longer be revealed, as after a rotation that failed to commit
// past its reveal. The administrator pays the fee.
func (e *Engine) RearmRandomness(ctx context.Context, caller common.Address, potID uint64, commitment common.Hash, fee *big.Int) (_ uint64, err error) {
	defer observe("rearm_randomness", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Admin {
		return 0, types.ErrNotAdministrator
	}
	p, err := e.store.Pot(ctx, potID)
	if err != nil {
		return 0, err
	}
	status, err := e.rng.Status(ctx, p.PendingRandomnessID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", types.ErrRandomnessFailed, err)
	}
	if status == entropy.StatusRequested {
		return 0, types.ErrRandomnessPending
	}
	if err := e.checkFee(ctx, fee); err != nil {
		return 0, err
	}

	j := e.newJournal()
	fees, err := e.chargeFee(ctx, j, caller, fee)
	if err != nil {
		return 0, err
	}
	reqID, err := e.rng.Request(ctx, commitment, fee)
	if err != nil {
		j.rollback(ctx)
		return 0, randomnessError(err)
	}
	replaced := p.PendingRandomnessID
	p.PendingRandomnessID = reqID

	err = e.store.Commit(ctx, func(tx *store.Tx) error {
		tx.PutPot(p)
		tx.SetRandomnessFees(fees)
		tx.AppendEvent(types.Event{
			Type:      types.EventTypeRandomnessRearmed,
			PotID:     potID,
			Round:     p.CurrentRound,
			Actor:     caller,
			RequestID: reqID,
			Time:      e.clock.Now().Unix(),
		})
		return nil
	})
	if err != nil {
		j.rollback(ctx)
		return 0, err
	}

	e.log.Warn("pot randomness rearmed",
		zap.Uint64("pot", potID),
		zap.Uint64("round", p.CurrentRound),
		zap.Uint64("replaced_request", replaced),
		zap.String("replaced_status", status),
		zap.Uint64("request", reqID),
	)
	return reqID, nil
}

// WithdrawRandomnessFees pays the collected randomness fees to the
// administrator, who settles with the randomness service.
func (e *Engine) WithdrawRandomnessFees(ctx context.Context, caller common.Address) (_ *big.Int, err error) {
	defer observe("withdraw_randomness_fees", time.Now(), &err)
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Admin {
		return nil, types.ErrNotAdministrator
	}
	fees, err := e.store.RandomnessFees(ctx)
	if err != nil {
		return nil, err
	}
	if fees.Sign() == 0 {
		return nil, types.ErrNoRandomnessFees
	}

	ev := types.Event{
		Type:   types.EventTypeRandomnessFeesWithdrawn,
		Actor:  caller,
		Amount: fees,
		Time:   e.clock.Now().Unix(),
	}
	err = e.payOut(ctx, caller, fees, ev,
		func(tx *store.Tx) { tx.SetRandomnessFees(new(big.Int)) },
		func(tx *store.Tx) { tx.SetRandomnessFees(fees) },
	)
	if err != nil {
		return nil, err
	}

	e.log.Info("randomness fees withdrawn", zap.String("admin", caller.Hex()), zap.String("amount", fees.String()))
	return fees, nil
}

// payOut commits debit, pushes amount to `to`, then records ev. If the push
// fails, restore is committed instead.
func (e *Engine) payOut(ctx context.Context, to common.Address, amount *big.Int, ev types.Event, debit, restore func(tx *store.Tx)) error {
	if err := e.store.Commit(ctx, func(tx *store.Tx) error { debit(tx); return nil }); err != nil {
		return err
	}
	if err := e.ledger.Push(ctx, to, amount); err != nil {
		if rerr := e.store.Commit(ctx, func(tx *store.Tx) error { restore(tx); return nil }); rerr != nil {
			e.log.Error("payout: restore after failed push",
				zap.String("to", to.Hex()),
				zap.String("amount", amount.String()),
				zap.Error(rerr),
			)
		}
		return fmt.Errorf("%w: %w", types.ErrTransferFailed, err)
	}
	if err := e.store.Commit(ctx, func(tx *store.Tx) error { tx.AppendEvent(ev); return nil }); err != nil {
		e.log.Warn("payout: record event", zap.String("type", ev.Type), zap.Error(err))
	}
	return nil
}

// ── reads ─────────────────────────────────────────────────────────────────────

func (e *Engine) GetPot(ctx context.Context, id uint64) (*types.Pot, error) {
	return e.store.Pot(ctx, id)
}

func (e *Engine) AmountOwed(ctx context.Context, id uint64, addr common.Address) (*big.Int, error) {
	return e.store.Owed(ctx, id, addr)
}

func (e *Engine) HasWon(ctx context.Context, id uint64, addr common.Address) (bool, error) {
	return e.store.HasWon(ctx, id, addr)
}

func (e *Engine) Revenue(ctx context.Context) (*big.Int, error) {
	return e.store.Revenue(ctx)
}

func (e *Engine) RandomnessFees(ctx context.Context) (*big.Int, error) {
	return e.store.RandomnessFees(ctx)
}

func (e *Engine) Events(ctx context.Context, limit int64) ([]types.Event, error) {
	return e.store.Events(ctx, limit)
}

// State reports where p stands in its rotation state machine at now.
func State(p *types.Pot, now time.Time) types.RotationState {
	if now.Before(p.NextRotationAt()) {
		return types.AwaitingRotation
	}
	return types.RotationEligible
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (e *Engine) checkFee(ctx context.Context, fee *big.Int) error {
	quoted, err := e.rng.QuoteFee(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrRandomnessFailed, err)
	}
	if fee == nil || fee.Cmp(quoted) != 0 {
		return types.ErrInsufficientFee
	}
	return nil
}

// chargeFee pulls fee from payer into custody and returns the collected fee
// balance to commit with the operation.
func (e *Engine) chargeFee(ctx context.Context, j *journal, payer common.Address, fee *big.Int) (*big.Int, error) {
	collected, err := e.store.RandomnessFees(ctx)
	if err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := j.pull(ctx, payer, fee); err != nil {
			return nil, err
		}
	}
	return collected.Add(collected, fee), nil
}

func randomnessError(err error) error {
	switch {
	case errors.Is(err, entropy.ErrRevealMismatch):
		return fmt.Errorf("%w: %w", types.ErrRevealMismatch, err)
	case errors.Is(err, entropy.ErrAlreadyRevealed):
		return fmt.Errorf("%w: %w", types.ErrAlreadyRevealed, err)
	case errors.Is(err, entropy.ErrFeeMismatch):
		return fmt.Errorf("%w: %w", types.ErrInsufficientFee, err)
	default:
		return fmt.Errorf("%w: %w", types.ErrRandomnessFailed, err)
	}
}

func uint256(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 256
}

func positiveUint256(v *big.Int) bool {
	return uint256(v) && v.Sign() > 0
}

func observe(op string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = types.CodeOf(*err)
	}
	metrics.OperationsTotal.WithLabelValues(op, status).Inc()
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
