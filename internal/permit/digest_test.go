package permit

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-rosca/internal/auth"
)

var (
	testDomain = Domain{
		ChainID:  big.NewInt(12345),
		Verifier: common.HexToAddress("0xDeAdBeEfDeAdBeEfDeAdBeEfDeAdBeEfDeAdBeEf"),
	}
	testParticipant = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

// ── digests ──────────────────────────────────────────────────────────────────

func TestJoinDigest_Deterministic(t *testing.T) {
	d1 := testDomain.JoinDigest(1, testParticipant, 1, big.NewInt(7))
	d2 := testDomain.JoinDigest(1, testParticipant, 1, big.NewInt(7))
	if d1 != d2 {
		t.Fatal("JoinDigest is not deterministic")
	}
}

func TestJoinDigest_BindsEveryField(t *testing.T) {
	base := testDomain.JoinDigest(1, testParticipant, 1, big.NewInt(7))
	variants := map[string]common.Hash{
		"pot":         testDomain.JoinDigest(2, testParticipant, 1, big.NewInt(7)),
		"participant": testDomain.JoinDigest(1, common.HexToAddress("0x2222222222222222222222222222222222222222"), 1, big.NewInt(7)),
		"round":       testDomain.JoinDigest(1, testParticipant, 2, big.NewInt(7)),
		"nonce":       testDomain.JoinDigest(1, testParticipant, 1, big.NewInt(8)),
		"chain":       Domain{ChainID: big.NewInt(1), Verifier: testDomain.Verifier}.JoinDigest(1, testParticipant, 1, big.NewInt(7)),
	}
	for name, d := range variants {
		if d == base {
			t.Errorf("changing %s did not change the digest", name)
		}
	}
}

func TestDigests_DistinctPerAction(t *testing.T) {
	// Same numeric inputs must not collide across permit kinds.
	join := testDomain.JoinDigest(1, testParticipant, 5, big.NewInt(9))
	risk := testDomain.RiskPoolDigest(1, testParticipant, big.NewInt(5), big.NewInt(9))
	if join == risk {
		t.Fatal("join and risk-pool digests collide")
	}
}

func TestDigest_NilDomainChainID(t *testing.T) {
	d := Domain{Verifier: testDomain.Verifier}
	_ = d.JoinDigest(1, testParticipant, 1, nil) // must not panic
}

// ── signing ─────────────────────────────────────────────────────────────────

func TestSignJoin_VerifiesAgainstAuthorizer(t *testing.T) {
	privKey, _ := crypto.GenerateKey()
	authorizer := crypto.PubkeyToAddress(privKey.PublicKey)

	p := &JoinPermit{PotID: 3, Participant: testParticipant, Round: 2, Nonce: big.NewInt(42)}
	if err := testDomain.SignJoin(p, privKey); err != nil {
		t.Fatalf("SignJoin: %v", err)
	}
	if len(p.Signature) != 65 {
		t.Fatalf("expected 65-byte signature, got %d", len(p.Signature))
	}

	digest := testDomain.JoinDigest(p.PotID, p.Participant, p.Round, p.Nonce)
	if !(auth.EthVerifier{}).Verify(digest, p.Signature, authorizer) {
		t.Error("signed join permit does not verify")
	}

	// The same signature must not authorize the next round.
	next := testDomain.JoinDigest(p.PotID, p.Participant, p.Round+1, p.Nonce)
	if (auth.EthVerifier{}).Verify(next, p.Signature, authorizer) {
		t.Error("join permit verified for a different round")
	}
}

func TestSignRiskPool_VerifiesAgainstAuthorizer(t *testing.T) {
	privKey, _ := crypto.GenerateKey()
	authorizer := crypto.PubkeyToAddress(privKey.PublicKey)

	p := &RiskPoolPermit{PotID: 1, Caller: testParticipant, Amount: big.NewInt(39), Nonce: big.NewInt(1)}
	if err := testDomain.SignRiskPool(p, privKey); err != nil {
		t.Fatalf("SignRiskPool: %v", err)
	}

	digest := testDomain.RiskPoolDigest(p.PotID, p.Caller, p.Amount, p.Nonce)
	if !(auth.EthVerifier{}).Verify(digest, p.Signature, authorizer) {
		t.Error("signed risk-pool permit does not verify")
	}
	bumped := testDomain.RiskPoolDigest(p.PotID, p.Caller, big.NewInt(40), p.Nonce)
	if (auth.EthVerifier{}).Verify(bumped, p.Signature, authorizer) {
		t.Error("risk-pool permit verified for a larger amount")
	}
}
