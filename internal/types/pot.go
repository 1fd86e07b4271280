package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeeDivisor sets the protocol fee at 1% of the gross pot.
const FeeDivisor = 100

// Pot is a single rotating-fund instance. Participants and Winners are loaded
// with the record; amountOwed, hasWon and the join ledger are side tables
// owned by the store.
type Pot struct {
	ID                  uint64
	Name                string
	ContributionAmount  *big.Int
	RotationPeriod      time.Duration
	LastRotationTime    time.Time
	InterestNumerator   uint64
	InterestDenominator uint64
	ParticipantLimit    uint32
	CurrentRound        uint64
	PendingRandomnessID uint64
	Creator             common.Address
	Participants        []common.Address
	Winners             []common.Address
	RiskPoolBalance     *big.Int
	RiskPoolPendingUse  *big.Int
	// RiskPoolRetired accumulates the part of a replaced reserve that was not
	// directed to a winner. It stays in custody.
	RiskPoolRetired *big.Int
}

// NextRotationAt is the earliest time the pot may rotate.
func (p *Pot) NextRotationAt() time.Time {
	return p.LastRotationTime.Add(p.RotationPeriod)
}

// IsParticipant reports whether addr is enrolled in the current round.
func (p *Pot) IsParticipant(addr common.Address) bool {
	for _, a := range p.Participants {
		if a == addr {
			return true
		}
	}
	return false
}

// Full reports whether the current round has no free slot.
func (p *Pot) Full() bool {
	return uint32(len(p.Participants)) >= p.ParticipantLimit
}

// RotationState is the observable state of a pot's rotation state machine.
// RotationExecuting is instantaneous and never observed outside Rotate.
type RotationState uint8

const (
	AwaitingRotation RotationState = iota
	RotationEligible
)

func (s RotationState) String() string {
	switch s {
	case AwaitingRotation:
		return "AWAITING_ROTATION"
	case RotationEligible:
		return "ROTATION_ELIGIBLE"
	default:
		return "UNKNOWN"
	}
}

// ExhaustionPolicy decides what happens once every participant slot has won.
type ExhaustionPolicy string

const (
	// ExhaustionCycle keeps rotating indefinitely.
	ExhaustionCycle ExhaustionPolicy = "cycle"
	// ExhaustionFreeze rejects further rotations with ErrPotExhausted once
	// len(Winners) reaches ParticipantLimit.
	ExhaustionFreeze ExhaustionPolicy = "freeze"
)

// ParseExhaustionPolicy maps a config string to a policy; empty means cycle.
func ParseExhaustionPolicy(s string) (ExhaustionPolicy, bool) {
	switch ExhaustionPolicy(s) {
	case "", ExhaustionCycle:
		return ExhaustionCycle, true
	case ExhaustionFreeze:
		return ExhaustionFreeze, true
	}
	return "", false
}
