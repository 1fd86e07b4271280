// Package api exposes the pot engine, the claim registry and the treasury
// over HTTP. Mutating routes sit behind auth.Middleware; their parameters
// are read from the signed payload, never from the request body.
package api

import (
	"encoding/json"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-rosca/internal/airdrop"
	"github.com/0gfoundation/0g-rosca/internal/auth"
	"github.com/0gfoundation/0g-rosca/internal/pot"
	"github.com/0gfoundation/0g-rosca/internal/types"
)

// Signed actions. The signed message must name the action and, for pot
// routes, the pot id as resource_id.
const (
	ActionCreatePot       = "create_pot"
	ActionJoinPot         = "join_pot"
	ActionRotate          = "rotate"
	ActionUseRiskPool     = "use_risk_pool"
	ActionClaimReward     = "claim_reward"
	ActionSetRoot         = "set_root"
	ActionAirdropClaim    = "airdrop_claim"
	ActionWithdrawRevenue = "withdraw_revenue"
	ActionRearmRandomness = "rearm_randomness"
	ActionWithdrawFees    = "withdraw_randomness_fees"
)

// maxRotationPeriodSec is the longest period representable as a time.Duration.
const maxRotationPeriodSec = math.MaxInt64 / int64(time.Second)

type Handler struct {
	eng   *pot.Engine
	reg   *airdrop.Registry
	clock clockwork.Clock
	log   *zap.Logger
}

func NewHandler(eng *pot.Engine, reg *airdrop.Registry, clock clockwork.Clock, log *zap.Logger) *Handler {
	return &Handler{eng: eng, reg: reg, clock: clock, log: log}
}

// Register mounts read routes on public and mutating routes on signed, which
// must already carry auth.Middleware.
func (h *Handler) Register(public, signed *gin.RouterGroup) {
	// ── Pots ───────────────────────────────────────────────────────────────
	public.GET("/pots/:id", h.handleGetPot)
	public.GET("/pots/:id/owed/:addr", h.handleOwed)
	signed.POST("/pots", h.handleCreatePot)
	signed.POST("/pots/:id/join", h.withPot(ActionJoinPot, h.handleJoin))
	signed.POST("/pots/:id/rotate", h.withPot(ActionRotate, h.handleRotate))
	signed.POST("/pots/:id/risk-pool", h.withPot(ActionUseRiskPool, h.handleRiskPool))
	signed.POST("/pots/:id/claim", h.withPot(ActionClaimReward, h.handleClaimReward))
	signed.POST("/pots/:id/rearm", h.withPot(ActionRearmRandomness, h.handleRearm))

	// ── Claim registry ─────────────────────────────────────────────────────
	public.GET("/airdrop/root", h.handleRoot)
	public.GET("/airdrop/claimed/:addr", h.handleClaimed)
	signed.POST("/airdrop/root", h.handleSetRoot)
	signed.POST("/airdrop/claim", h.handleAirdropClaim)

	// ── Treasury and event log ─────────────────────────────────────────────
	public.GET("/revenue", h.handleRevenue)
	signed.POST("/revenue/withdraw", h.handleWithdraw)
	public.GET("/randomness/fees", h.handleRandomnessFees)
	signed.POST("/randomness/fees/withdraw", h.handleWithdrawFees)
	public.GET("/events", h.handleEvents)
}

// ── Request payloads ────────────────────────────────────────────────────────
// Amounts are decimal strings; signatures are 0x-prefixed hex.

type createPotPayload struct {
	Name                string      `json:"name"`
	Commitment          common.Hash `json:"commitment"`
	RotationPeriodSec   int64       `json:"rotation_period_sec"`
	InterestNumerator   uint64      `json:"interest_numerator"`
	InterestDenominator uint64      `json:"interest_denominator"`
	ParticipantLimit    uint32      `json:"participant_limit"`
	Amount              string      `json:"amount"`
	Fee                 string      `json:"fee"`
}

type joinPayload struct {
	Nonce     string        `json:"nonce"`
	Signature hexutil.Bytes `json:"signature"`
}

type rotatePayload struct {
	NextCommitment common.Hash `json:"next_commitment"`
	UserSeed       common.Hash `json:"user_seed"`
	ProviderSeed   common.Hash `json:"provider_seed"`
	Fee            string      `json:"fee"`
}

type riskPoolPayload struct {
	Amount    string        `json:"amount"`
	Nonce     string        `json:"nonce"`
	Signature hexutil.Bytes `json:"signature"`
}

type rearmPayload struct {
	Commitment common.Hash `json:"commitment"`
	Fee        string      `json:"fee"`
}

type setRootPayload struct {
	Root common.Hash `json:"root"`
}

type airdropClaimPayload struct {
	TotalEntitlement string        `json:"total_entitlement"`
	Proof            []common.Hash `json:"proof"`
}

// ── Pots ────────────────────────────────────────────────────────────────────

func (h *Handler) handleCreatePot(c *gin.Context) {
	if !auth.SignedFor(c, ActionCreatePot, "") {
		c.JSON(http.StatusForbidden, gin.H{"error": "signed action mismatch"})
		return
	}
	var p createPotPayload
	if !bindPayload(c, &p) {
		return
	}
	amount, ok1 := parseAmount(p.Amount)
	fee, ok2 := parseAmount(p.Fee)
	if !ok1 || !ok2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	if p.RotationPeriodSec > maxRotationPeriodSec {
		h.writeError(c, types.ErrInvalidRotationPeriod)
		return
	}

	caller, _ := auth.Caller(c)
	created, err := h.eng.CreatePot(c.Request.Context(), caller, pot.CreatePotParams{
		Name:                p.Name,
		Commitment:          p.Commitment,
		RotationPeriod:      time.Duration(p.RotationPeriodSec) * time.Second,
		InterestNumerator:   p.InterestNumerator,
		InterestDenominator: p.InterestDenominator,
		ParticipantLimit:    p.ParticipantLimit,
		Amount:              amount,
	}, fee)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newPotView(created, h.clock.Now()))
}

func (h *Handler) handleGetPot(c *gin.Context) {
	id, ok := potID(c)
	if !ok {
		return
	}
	p, err := h.eng.GetPot(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPotView(p, h.clock.Now()))
}

func (h *Handler) handleOwed(c *gin.Context) {
	id, ok := potID(c)
	if !ok {
		return
	}
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	owed, err := h.eng.AmountOwed(c.Request.Context(), id, addr)
	if err != nil {
		h.writeError(c, err)
		return
	}
	won, err := h.eng.HasWon(c.Request.Context(), id, addr)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "owed": owed.String(), "has_won": won})
}

func (h *Handler) handleJoin(c *gin.Context, id uint64) {
	var p joinPayload
	if !bindPayload(c, &p) {
		return
	}
	nonce, ok := parseAmount(p.Nonce)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid nonce"})
		return
	}
	caller, _ := auth.Caller(c)
	if err := h.eng.JoinPot(c.Request.Context(), caller, id, p.Signature, nonce); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pot_id": id, "participant": caller.Hex()})
}

func (h *Handler) handleRotate(c *gin.Context, id uint64) {
	var p rotatePayload
	if !bindPayload(c, &p) {
		return
	}
	fee, ok := parseAmount(p.Fee)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fee"})
		return
	}
	caller, _ := auth.Caller(c)
	res, err := h.eng.Rotate(c.Request.Context(), caller, pot.RotateParams{
		PotID:          id,
		NextCommitment: p.NextCommitment,
		UserSeed:       p.UserSeed,
		ProviderSeed:   p.ProviderSeed,
		Fee:            fee,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pot_id":          id,
		"round":           res.Round,
		"winner":          res.Winner.Hex(),
		"payout":          res.Payout.Winner.String(),
		"fee":             res.Payout.Fee.String(),
		"risk_pool":       res.Payout.RiskCut.String(),
		"next_request_id": res.NextRequestID,
	})
}

func (h *Handler) handleRiskPool(c *gin.Context, id uint64) {
	var p riskPoolPayload
	if !bindPayload(c, &p) {
		return
	}
	amount, ok1 := parseAmount(p.Amount)
	nonce, ok2 := parseAmount(p.Nonce)
	if !ok1 || !ok2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount or nonce"})
		return
	}
	caller, _ := auth.Caller(c)
	if err := h.eng.UseRiskPool(c.Request.Context(), caller, id, amount, p.Signature, nonce); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pot_id": id, "pending_use": amount.String()})
}

func (h *Handler) handleClaimReward(c *gin.Context, id uint64) {
	caller, _ := auth.Caller(c)
	paid, err := h.eng.ClaimReward(c.Request.Context(), caller, id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pot_id": id, "amount": paid.String()})
}

func (h *Handler) handleRearm(c *gin.Context, id uint64) {
	var p rearmPayload
	if !bindPayload(c, &p) {
		return
	}
	fee, ok := parseAmount(p.Fee)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fee"})
		return
	}
	caller, _ := auth.Caller(c)
	reqID, err := h.eng.RearmRandomness(c.Request.Context(), caller, id, p.Commitment, fee)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pot_id": id, "pending_randomness_id": reqID})
}

// withPot parses :id and checks the signed message names action on this pot.
func (h *Handler) withPot(action string, next func(*gin.Context, uint64)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := potID(c)
		if !ok {
			return
		}
		if !auth.SignedFor(c, action, c.Param("id")) {
			c.JSON(http.StatusForbidden, gin.H{"error": "signed action mismatch"})
			return
		}
		next(c, id)
	}
}

// ── Claim registry ──────────────────────────────────────────────────────────

func (h *Handler) handleRoot(c *gin.Context) {
	root, err := h.reg.Root(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"root": root.Hex()})
}

func (h *Handler) handleClaimed(c *gin.Context) {
	addr, ok := addressParam(c)
	if !ok {
		return
	}
	claimed, err := h.reg.Claimed(c.Request.Context(), addr)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex(), "claimed": claimed.String()})
}

func (h *Handler) handleSetRoot(c *gin.Context) {
	if !auth.SignedFor(c, ActionSetRoot, "") {
		c.JSON(http.StatusForbidden, gin.H{"error": "signed action mismatch"})
		return
	}
	var p setRootPayload
	if !bindPayload(c, &p) {
		return
	}
	caller, _ := auth.Caller(c)
	if err := h.reg.SetRoot(c.Request.Context(), caller, p.Root); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"root": p.Root.Hex()})
}

func (h *Handler) handleAirdropClaim(c *gin.Context) {
	if !auth.SignedFor(c, ActionAirdropClaim, "") {
		c.JSON(http.StatusForbidden, gin.H{"error": "signed action mismatch"})
		return
	}
	var p airdropClaimPayload
	if !bindPayload(c, &p) {
		return
	}
	total, ok := parseAmount(p.TotalEntitlement)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total_entitlement"})
		return
	}
	caller, _ := auth.Caller(c)
	paid, err := h.reg.Claim(c.Request.Context(), caller, total, p.Proof)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": paid.String()})
}

// ── Treasury and event log ──────────────────────────────────────────────────

func (h *Handler) handleRevenue(c *gin.Context) {
	rev, err := h.eng.Revenue(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revenue": rev.String()})
}

func (h *Handler) handleWithdraw(c *gin.Context) {
	if !auth.SignedFor(c, ActionWithdrawRevenue, "") {
		c.JSON(http.StatusForbidden, gin.H{"error": "signed action mismatch"})
		return
	}
	caller, _ := auth.Caller(c)
	amount, err := h.eng.WithdrawRevenue(c.Request.Context(), caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount.String()})
}

func (h *Handler) handleRandomnessFees(c *gin.Context) {
	fees, err := h.eng.RandomnessFees(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"randomness_fees": fees.String()})
}

func (h *Handler) handleWithdrawFees(c *gin.Context) {
	if !auth.SignedFor(c, ActionWithdrawFees, "") {
		c.JSON(http.StatusForbidden, gin.H{"error": "signed action mismatch"})
		return
	}
	caller, _ := auth.Caller(c)
	amount, err := h.eng.WithdrawRandomnessFees(c.Request.Context(), caller)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount.String()})
}

func (h *Handler) handleEvents(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	evs, err := h.eng.Events(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, evs)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func potID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pot id"})
		return 0, false
	}
	return id, true
}

func addressParam(c *gin.Context) (common.Address, bool) {
	raw := c.Param("addr")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func bindPayload(c *gin.Context, out any) bool {
	raw := auth.Payload(c)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signed payload"})
		return false
	}
	return true
}

// parseAmount parses a non-negative decimal integer of at most 256 bits.
func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, false
	}
	return v, true
}
