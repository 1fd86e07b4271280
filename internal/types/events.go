package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Event types emitted on every successful operation.
const (
	EventTypePotCreated              = "PotCreated"
	EventTypePotJoined               = "PotJoined"
	EventTypePotRotated              = "PotRotated"
	EventTypeRiskPoolUseAuthorized   = "RiskPoolUseAuthorized"
	EventTypeRewardClaimed           = "RewardClaimed"
	EventTypeRootUpdated             = "RootUpdated"
	EventTypeAirdropClaimed          = "AirdropClaimed"
	EventTypeRevenueWithdrawn        = "RevenueWithdrawn"
	EventTypeRandomnessRearmed       = "RandomnessRearmed"
	EventTypeRandomnessFeesWithdrawn = "RandomnessFeesWithdrawn"
)

// Event is the structured record consumed by external indexers. Only the
// fields relevant to Type are set.
type Event struct {
	Type      string          `json:"type"`
	PotID     uint64          `json:"pot_id,omitempty"`
	Round     uint64          `json:"round,omitempty"`
	Actor     common.Address  `json:"actor"`
	Winner    *common.Address `json:"winner,omitempty"`
	Amount    *big.Int        `json:"amount,omitempty"`
	RequestID uint64          `json:"request_id,omitempty"`
	Root      *common.Hash    `json:"root,omitempty"`
	Time      int64           `json:"time"`
}
