package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-rosca/internal/pot"
	"github.com/0gfoundation/0g-rosca/internal/types"
)

type potView struct {
	ID                  uint64   `json:"id"`
	Name                string   `json:"name"`
	Creator             string   `json:"creator"`
	ContributionAmount  string   `json:"contribution_amount"`
	RotationPeriodSec   int64    `json:"rotation_period_sec"`
	LastRotationTime    int64    `json:"last_rotation_time"`
	NextRotationTime    int64    `json:"next_rotation_time"`
	State               string   `json:"state"`
	InterestNumerator   uint64   `json:"interest_numerator"`
	InterestDenominator uint64   `json:"interest_denominator"`
	ParticipantLimit    uint32   `json:"participant_limit"`
	CurrentRound        uint64   `json:"current_round"`
	PendingRandomnessID uint64   `json:"pending_randomness_id"`
	Participants        []string `json:"participants"`
	Winners             []string `json:"winners"`
	RiskPoolBalance     string   `json:"risk_pool_balance"`
	RiskPoolPendingUse  string   `json:"risk_pool_pending_use"`
	RiskPoolRetired     string   `json:"risk_pool_retired"`
}

func newPotView(p *types.Pot, now time.Time) potView {
	v := potView{
		ID:                  p.ID,
		Name:                p.Name,
		Creator:             p.Creator.Hex(),
		ContributionAmount:  p.ContributionAmount.String(),
		RotationPeriodSec:   int64(p.RotationPeriod / time.Second),
		LastRotationTime:    p.LastRotationTime.Unix(),
		NextRotationTime:    p.NextRotationAt().Unix(),
		State:               pot.State(p, now).String(),
		InterestNumerator:   p.InterestNumerator,
		InterestDenominator: p.InterestDenominator,
		ParticipantLimit:    p.ParticipantLimit,
		CurrentRound:        p.CurrentRound,
		PendingRandomnessID: p.PendingRandomnessID,
		Participants:        make([]string, len(p.Participants)),
		Winners:             make([]string, len(p.Winners)),
		RiskPoolBalance:     p.RiskPoolBalance.String(),
		RiskPoolPendingUse:  p.RiskPoolPendingUse.String(),
		RiskPoolRetired:     p.RiskPoolRetired.String(),
	}
	for i, a := range p.Participants {
		v.Participants[i] = a.Hex()
	}
	for i, a := range p.Winners {
		v.Winners[i] = a.Hex()
	}
	return v
}

// statusFor maps an engine error kind to its HTTP status.
func statusFor(err error) int {
	switch types.KindOf(err) {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindAuthorization:
		return http.StatusForbidden
	case types.KindStateConflict:
		return http.StatusConflict
	case types.KindExternal:
		return http.StatusBadGateway
	case types.KindProof:
		return http.StatusUnprocessableEntity
	case types.KindExhausted:
		return http.StatusGone
	case types.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error", "code": types.CodeOf(err)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": types.CodeOf(err)})
}
