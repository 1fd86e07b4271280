package store

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Redis key layout. Every pot owns its record plus independent side tables.
const (
	potSeqKey       = "pot:seq"
	potKeyPrefix    = "pot:"
	revenueKey      = "treasury:revenue"
	entropyFeesKey  = "treasury:entropy_fees"
	airdropRootKey  = "airdrop:root"
	airdropClaimKey = "airdrop:claimed"
	eventLogKey     = "events:log"

	maxEvents = 10_000
)

func potKey(id uint64) string {
	return potKeyPrefix + strconv.FormatUint(id, 10)
}

func participantsKey(id uint64) string { return potKey(id) + ":participants" }
func winnersKey(id uint64) string      { return potKey(id) + ":winners" }
func owedKey(id uint64) string         { return potKey(id) + ":owed" }
func wonKey(id uint64) string          { return potKey(id) + ":won" }
func riskPermitsKey(id uint64) string  { return potKey(id) + ":riskpermits" }

func joinedKey(id, round uint64) string {
	return potKey(id) + ":joined:" + strconv.FormatUint(round, 10)
}

func addrField(a common.Address) string { return a.Hex() }
