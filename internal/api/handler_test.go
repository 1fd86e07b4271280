package api

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-rosca/internal/airdrop"
	"github.com/0gfoundation/0g-rosca/internal/auth"
	"github.com/0gfoundation/0g-rosca/internal/entropy"
	"github.com/0gfoundation/0g-rosca/internal/ledger"
	"github.com/0gfoundation/0g-rosca/internal/merkle"
	"github.com/0gfoundation/0g-rosca/internal/permit"
	"github.com/0gfoundation/0g-rosca/internal/pot"
	"github.com/0gfoundation/0g-rosca/internal/store"
	"github.com/0gfoundation/0g-rosca/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	testCustody = common.HexToAddress("0xC0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0C0")
	testStart   = time.Unix(1_700_000_000, 0)
)

const testFee = 3

type wallet struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return wallet{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

type env struct {
	t          *testing.T
	router     *gin.Engine
	clock      *clockwork.FakeClock
	bank       *ledger.Redis
	oracle     *entropy.Oracle
	domain     permit.Domain
	authorizer wallet
	admin      wallet
	nonce      int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := clockwork.NewFakeClockAt(testStart)
	log := zap.NewNop()

	authorizer, admin := newWallet(t), newWallet(t)
	domain := permit.Domain{ChainID: big.NewInt(16602), Verifier: testCustody}
	bank := ledger.NewRedis(rdb, testCustody)
	st := store.New(rdb)

	oracle := entropy.NewOracle(rdb, big.NewInt(testFee), log)
	eng := pot.NewEngine(st, bank, oracle, auth.EthVerifier{}, clock, pot.Config{
		Authorizer: authorizer.addr,
		Admin:      admin.addr,
		Domain:     domain,
	}, log)
	reg := airdrop.NewRegistry(st, bank, admin.addr, clock, log)

	r := gin.New()
	api := r.Group("/api")
	signed := r.Group("/api", auth.Middleware(rdb, clock))
	NewHandler(eng, reg, clock, log).Register(api, signed)

	return &env{t: t, router: r, clock: clock, bank: bank, oracle: oracle, domain: domain, authorizer: authorizer, admin: admin}
}

// do sends a request signed by w for action/resource carrying payload.
func (e *env) do(w wallet, method, path, action, resource string, payload any) *httptest.ResponseRecorder {
	e.t.Helper()
	e.nonce++
	raw, err := json.Marshal(payload)
	if err != nil {
		e.t.Fatalf("marshal payload: %v", err)
	}
	msg, _ := json.Marshal(auth.SignedRequest{
		Action:     action,
		ExpiresAt:  e.clock.Now().Add(time.Minute).Unix(),
		Nonce:      fmt.Sprintf("n-%d", e.nonce),
		Payload:    raw,
		ResourceID: resource,
	})
	sig, err := auth.SignMessage(msg, w.key)
	if err != nil {
		e.t.Fatalf("SignMessage: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(nil))
	req.Header.Set("X-Wallet-Address", w.addr.Hex())
	req.Header.Set("X-Signed-Message", base64.StdEncoding.EncodeToString(msg))
	req.Header.Set("X-Wallet-Signature", "0x"+hex.EncodeToString(sig))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (e *env) fund(addr common.Address, amount int64) {
	e.t.Helper()
	if err := e.bank.Deposit(context.Background(), addr, big.NewInt(amount)); err != nil {
		e.t.Fatalf("Deposit: %v", err)
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status: got %d want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func seedPair(r uint64) (common.Hash, common.Hash) {
	return common.BigToHash(new(big.Int).SetUint64(100 + r)), common.BigToHash(new(big.Int).SetUint64(200 + r))
}

func (e *env) createPot(creator wallet, amount int64, limit uint32) {
	e.t.Helper()
	e.fund(creator.addr, amount+testFee)
	u, p := seedPair(1)
	rec := e.do(creator, http.MethodPost, "/api/pots", ActionCreatePot, "", createPotPayload{
		Name:                "savings",
		Commitment:          entropy.Commit(u, p),
		RotationPeriodSec:   3600,
		InterestNumerator:   10,
		InterestDenominator: 100,
		ParticipantLimit:    limit,
		Amount:              fmt.Sprint(amount),
		Fee:                 fmt.Sprint(testFee),
	})
	expectStatus(e.t, rec, http.StatusCreated)
}

func (e *env) join(w wallet, potID, round uint64, amount int64) *httptest.ResponseRecorder {
	e.t.Helper()
	e.fund(w.addr, amount)
	jp := &permit.JoinPermit{PotID: potID, Participant: w.addr, Round: round, Nonce: big.NewInt(int64(e.nonce + 1000))}
	if err := e.domain.SignJoin(jp, e.authorizer.key); err != nil {
		e.t.Fatalf("SignJoin: %v", err)
	}
	return e.do(w, http.MethodPost, fmt.Sprintf("/api/pots/%d/join", potID), ActionJoinPot, fmt.Sprint(potID),
		joinPayload{Nonce: jp.Nonce.String(), Signature: hexutil.Bytes(jp.Signature)})
}

func (e *env) rotate(w wallet, potID, round uint64) *httptest.ResponseRecorder {
	e.t.Helper()
	u, p := seedPair(round)
	nu, np := seedPair(round + 1)
	return e.do(w, http.MethodPost, fmt.Sprintf("/api/pots/%d/rotate", potID), ActionRotate, fmt.Sprint(potID), rotatePayload{
		NextCommitment: entropy.Commit(nu, np),
		UserSeed:       u,
		ProviderSeed:   p,
		Fee:            fmt.Sprint(testFee),
	})
}

// ── Auth ─────────────────────────────────────────────────────────────────────

func TestUnsignedMutationRejected(t *testing.T) {
	e := newEnv(t)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/pots", nil))
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestSignedActionMismatch(t *testing.T) {
	e := newEnv(t)
	alice := newWallet(t)
	e.createPot(alice, 100, 4)

	// signed for pot 2, sent to pot 1
	rec := e.do(alice, http.MethodPost, "/api/pots/1/claim", ActionClaimReward, "2", struct{}{})
	expectStatus(t, rec, http.StatusForbidden)

	// signed as a join, sent to claim
	rec = e.do(alice, http.MethodPost, "/api/pots/1/claim", ActionJoinPot, "1", struct{}{})
	expectStatus(t, rec, http.StatusForbidden)
}

// ── Pots ─────────────────────────────────────────────────────────────────────

func TestCreateAndGetPot(t *testing.T) {
	e := newEnv(t)
	alice := newWallet(t)
	e.createPot(alice, 100, 4)

	rec := e.get("/api/pots/1")
	expectStatus(t, rec, http.StatusOK)
	var v potView
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.ID != 1 || v.CurrentRound != 1 || v.ContributionAmount != "100" || v.Creator != alice.addr.Hex() {
		t.Errorf("view: %+v", v)
	}
	if v.State != types.AwaitingRotation.String() {
		t.Errorf("state: got %s", v.State)
	}
	if len(v.Participants) != 1 || v.Participants[0] != alice.addr.Hex() {
		t.Errorf("participants: %v", v.Participants)
	}
}

func TestCreatePot_ValidationError(t *testing.T) {
	e := newEnv(t)
	alice := newWallet(t)
	e.fund(alice.addr, 100)
	rec := e.do(alice, http.MethodPost, "/api/pots", ActionCreatePot, "", createPotPayload{
		RotationPeriodSec:   0,
		InterestNumerator:   10,
		InterestDenominator: 100,
		ParticipantLimit:    4,
		Amount:              "100",
		Fee:                 fmt.Sprint(testFee),
	})
	expectStatus(t, rec, http.StatusBadRequest)
	if code := decode(t, rec)["code"]; code != "invalid_rotation_period" {
		t.Errorf("code: got %v", code)
	}
}

func TestCreatePot_RotationPeriodBounds(t *testing.T) {
	e := newEnv(t)
	alice := newWallet(t)
	e.fund(alice.addr, 1000)
	payload := func(sec int64) createPotPayload {
		return createPotPayload{
			RotationPeriodSec:   sec,
			InterestNumerator:   10,
			InterestDenominator: 100,
			ParticipantLimit:    4,
			Amount:              "100",
			Fee:                 fmt.Sprint(testFee),
		}
	}

	// 18446744074s wraps to about 0.29s when multiplied into a Duration.
	for _, sec := range []int64{maxRotationPeriodSec + 1, 18446744074} {
		rec := e.do(alice, http.MethodPost, "/api/pots", ActionCreatePot, "", payload(sec))
		expectStatus(t, rec, http.StatusBadRequest)
		if code := decode(t, rec)["code"]; code != "invalid_rotation_period" {
			t.Errorf("period %d: code %v", sec, code)
		}
	}
	expectStatus(t, e.get("/api/pots/1"), http.StatusNotFound)

	rec := e.do(alice, http.MethodPost, "/api/pots", ActionCreatePot, "", payload(maxRotationPeriodSec))
	expectStatus(t, rec, http.StatusCreated)
	var v potView
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.RotationPeriodSec != maxRotationPeriodSec {
		t.Errorf("rotation_period_sec: got %d, want %d", v.RotationPeriodSec, maxRotationPeriodSec)
	}
	if v.NextRotationTime-v.LastRotationTime != maxRotationPeriodSec {
		t.Errorf("next-last: got %d", v.NextRotationTime-v.LastRotationTime)
	}
}

func TestCreatePot_BadAmount(t *testing.T) {
	e := newEnv(t)
	alice := newWallet(t)
	rec := e.do(alice, http.MethodPost, "/api/pots", ActionCreatePot, "", createPotPayload{Amount: "-5", Fee: "3"})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestGetPot_NotFound(t *testing.T) {
	e := newEnv(t)
	expectStatus(t, e.get("/api/pots/42"), http.StatusNotFound)
	expectStatus(t, e.get("/api/pots/abc"), http.StatusBadRequest)
}

func TestJoin_InvalidPermit(t *testing.T) {
	e := newEnv(t)
	alice, bob := newWallet(t), newWallet(t)
	e.createPot(alice, 100, 4)
	e.fund(bob.addr, 100)

	rec := e.do(bob, http.MethodPost, "/api/pots/1/join", ActionJoinPot, "1",
		joinPayload{Nonce: "1", Signature: hexutil.Bytes(make([]byte, 65))})
	expectStatus(t, rec, http.StatusForbidden)
	if code := decode(t, rec)["code"]; code != "signature_invalid" {
		t.Errorf("code: got %v", code)
	}
}

func TestPotLifecycle(t *testing.T) {
	e := newEnv(t)
	alice, bob := newWallet(t), newWallet(t)
	e.createPot(alice, 100, 2)
	expectStatus(t, e.join(bob, 1, 1, 100), http.StatusOK)

	// full
	carol := newWallet(t)
	expectStatus(t, e.join(carol, 1, 1, 100), http.StatusConflict)

	// not due yet
	e.fund(carol.addr, 100)
	expectStatus(t, e.rotate(carol, 1, 1), http.StatusConflict)

	e.clock.Advance(time.Hour)
	if st := e.get("/api/pots/1"); decode(t, st)["state"] != types.RotationEligible.String() {
		t.Errorf("state before rotate: %s", st.Body.String())
	}
	rec := e.rotate(carol, 1, 1)
	expectStatus(t, rec, http.StatusOK)
	res := decode(t, rec)
	// 200 gross, 2 fee, 198 net, 19 cut, 179 payout
	if res["payout"] != "179" || res["fee"] != "2" || res["risk_pool"] != "19" {
		t.Errorf("rotate result: %v", res)
	}
	winner := common.HexToAddress(res["winner"].(string))

	owed := decode(t, e.get(fmt.Sprintf("/api/pots/1/owed/%s", winner.Hex())))
	if owed["owed"] != "179" || owed["has_won"] != true {
		t.Errorf("owed: %v", owed)
	}

	w := alice
	if winner == bob.addr {
		w = bob
	}
	rec = e.do(w, http.MethodPost, "/api/pots/1/claim", ActionClaimReward, "1", struct{}{})
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["amount"] != "179" {
		t.Errorf("claim: %s", rec.Body.String())
	}
	rec = e.do(w, http.MethodPost, "/api/pots/1/claim", ActionClaimReward, "1", struct{}{})
	expectStatus(t, rec, http.StatusGone)

	// treasury
	if decode(t, e.get("/api/revenue"))["revenue"] != "2" {
		t.Error("revenue not credited")
	}
	expectStatus(t, e.do(alice, http.MethodPost, "/api/revenue/withdraw", ActionWithdrawRevenue, "", struct{}{}), http.StatusForbidden)
	rec = e.do(e.admin, http.MethodPost, "/api/revenue/withdraw", ActionWithdrawRevenue, "", struct{}{})
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["amount"] != "2" {
		t.Errorf("withdraw: %s", rec.Body.String())
	}

	// randomness fees: one create and one rotate
	if decode(t, e.get("/api/randomness/fees"))["randomness_fees"] != "6" {
		t.Error("randomness fees not collected")
	}
	expectStatus(t, e.do(alice, http.MethodPost, "/api/randomness/fees/withdraw", ActionWithdrawFees, "", struct{}{}), http.StatusForbidden)
	rec = e.do(e.admin, http.MethodPost, "/api/randomness/fees/withdraw", ActionWithdrawFees, "", struct{}{})
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["amount"] != "6" {
		t.Errorf("withdraw fees: %s", rec.Body.String())
	}

	// event log
	rec = e.get("/api/events?limit=50")
	expectStatus(t, rec, http.StatusOK)
	var evs []types.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &evs); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	want := []string{
		types.EventTypePotCreated, types.EventTypePotJoined, types.EventTypePotRotated,
		types.EventTypeRewardClaimed, types.EventTypeRevenueWithdrawn, types.EventTypeRandomnessFeesWithdrawn,
	}
	if len(evs) != len(want) {
		t.Fatalf("events: got %d want %d", len(evs), len(want))
	}
	for i, ev := range evs {
		if ev.Type != want[i] {
			t.Errorf("event %d: got %s want %s", i, ev.Type, want[i])
		}
	}
}

func TestRiskPool_Endpoint(t *testing.T) {
	e := newEnv(t)
	alice, bob := newWallet(t), newWallet(t)
	e.createPot(alice, 100, 4)

	rp := &permit.RiskPoolPermit{PotID: 1, Caller: bob.addr, Amount: big.NewInt(5), Nonce: big.NewInt(9)}
	if err := e.domain.SignRiskPool(rp, e.authorizer.key); err != nil {
		t.Fatalf("SignRiskPool: %v", err)
	}
	rec := e.do(bob, http.MethodPost, "/api/pots/1/risk-pool", ActionUseRiskPool, "1",
		riskPoolPayload{Amount: "5", Nonce: "9", Signature: hexutil.Bytes(rp.Signature)})
	// the risk pool is still empty before the first rotation
	expectStatus(t, rec, http.StatusConflict)
	if code := decode(t, rec)["code"]; code != "insufficient_risk_pool" {
		t.Errorf("code: got %v", code)
	}
}

func TestRearm_Endpoint(t *testing.T) {
	e := newEnv(t)
	alice, bob := newWallet(t), newWallet(t)
	e.createPot(alice, 100, 4)
	u, p := seedPair(1)
	rearm := rearmPayload{Commitment: entropy.Commit(u, p), Fee: fmt.Sprint(testFee)}

	// request 1 can still be revealed
	e.fund(e.admin.addr, testFee)
	rec := e.do(e.admin, http.MethodPost, "/api/pots/1/rearm", ActionRearmRandomness, "1", rearm)
	expectStatus(t, rec, http.StatusConflict)
	if code := decode(t, rec)["code"]; code != "randomness_pending" {
		t.Errorf("code: got %v", code)
	}

	if _, err := e.oracle.Reveal(context.Background(), 1, u, p); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	e.clock.Advance(time.Hour)
	e.fund(bob.addr, 100+testFee)
	rec = e.rotate(bob, 1, 1)
	expectStatus(t, rec, http.StatusBadGateway)

	expectStatus(t, e.do(alice, http.MethodPost, "/api/pots/1/rearm", ActionRearmRandomness, "1", rearm), http.StatusForbidden)
	rec = e.do(e.admin, http.MethodPost, "/api/pots/1/rearm", ActionRearmRandomness, "1", rearm)
	expectStatus(t, rec, http.StatusOK)
	if id := decode(t, rec)["pending_randomness_id"]; id == float64(1) {
		t.Errorf("pending request not replaced: %v", id)
	}

	expectStatus(t, e.rotate(bob, 1, 1), http.StatusOK)
}

// ── Claim registry ───────────────────────────────────────────────────────────

func TestAirdropEndpoints(t *testing.T) {
	e := newEnv(t)
	alice, bob := newWallet(t), newWallet(t)
	e.fund(testCustody, 1000)

	tree := merkle.Build([]common.Hash{
		merkle.Leaf(alice.addr, big.NewInt(50)),
		merkle.Leaf(bob.addr, big.NewInt(20)),
	})
	proof, err := tree.Proof(0)
	if err != nil {
		t.Fatalf("Proof: %v", err)
	}

	expectStatus(t, e.do(alice, http.MethodPost, "/api/airdrop/root", ActionSetRoot, "", setRootPayload{Root: tree.Root()}), http.StatusForbidden)
	expectStatus(t, e.do(e.admin, http.MethodPost, "/api/airdrop/root", ActionSetRoot, "", setRootPayload{Root: tree.Root()}), http.StatusOK)
	if decode(t, e.get("/api/airdrop/root"))["root"] != tree.Root().Hex() {
		t.Error("root not published")
	}

	rec := e.do(alice, http.MethodPost, "/api/airdrop/claim", ActionAirdropClaim, "", airdropClaimPayload{TotalEntitlement: "60", Proof: proof})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = e.do(alice, http.MethodPost, "/api/airdrop/claim", ActionAirdropClaim, "", airdropClaimPayload{TotalEntitlement: "50", Proof: proof})
	expectStatus(t, rec, http.StatusOK)
	if decode(t, rec)["amount"] != "50" {
		t.Errorf("claim: %s", rec.Body.String())
	}

	rec = e.do(alice, http.MethodPost, "/api/airdrop/claim", ActionAirdropClaim, "", airdropClaimPayload{TotalEntitlement: "50", Proof: proof})
	expectStatus(t, rec, http.StatusGone)

	claimed := decode(t, e.get("/api/airdrop/claimed/"+alice.addr.Hex()))
	if claimed["claimed"] != "50" {
		t.Errorf("claimed: %v", claimed)
	}
	expectStatus(t, e.get("/api/airdrop/claimed/not-an-address"), http.StatusBadRequest)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		types.ErrInvalidParameters:  http.StatusBadRequest,
		types.ErrNotAdministrator:   http.StatusForbidden,
		types.ErrPotFull:            http.StatusConflict,
		types.ErrRandomnessFailed:   http.StatusBadGateway,
		types.ErrInvalidProof:       http.StatusUnprocessableEntity,
		types.ErrNothingLeftToClaim: http.StatusGone,
		types.ErrPotNotFound:        http.StatusNotFound,
		fmt.Errorf("boom"):          http.StatusInternalServerError,
		fmt.Errorf("wrapped: %w", types.ErrTransferFailed): http.StatusBadGateway,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Errorf("%v: got %d want %d", err, got, want)
		}
	}
}
