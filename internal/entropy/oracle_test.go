package entropy

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	testFee          = big.NewInt(3)
	testUserSeed     = crypto.Keccak256Hash([]byte("user"))
	testProviderSeed = crypto.Keccak256Hash([]byte("provider"))
)

func newTestOracle(t *testing.T) *Oracle {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewOracle(rdb, testFee, zap.NewNop())
}

func TestCommit_DependsOnBothSeeds(t *testing.T) {
	c := Commit(testUserSeed, testProviderSeed)
	if c == Commit(testProviderSeed, testUserSeed) {
		t.Error("commitment must depend on seed order")
	}
	if c == Commit(testUserSeed, common.Hash{}) {
		t.Error("commitment must depend on the provider seed")
	}
}

func TestRandomValue_DependsOnRequestID(t *testing.T) {
	a := RandomValue(testUserSeed, testProviderSeed, 1)
	b := RandomValue(testUserSeed, testProviderSeed, 2)
	if a.Cmp(b) == 0 {
		t.Error("random value must differ per request id")
	}
}

func TestOracle_QuoteFee(t *testing.T) {
	o := newTestOracle(t)
	fee, err := o.QuoteFee(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if fee.Cmp(testFee) != 0 {
		t.Errorf("fee: got %s want %s", fee, testFee)
	}
	fee.SetInt64(999) // callers must not be able to mutate the oracle fee
	again, _ := o.QuoteFee(context.Background())
	if again.Cmp(testFee) != 0 {
		t.Error("QuoteFee returned an aliased value")
	}
}

func TestOracle_RequestIDsMonotonic(t *testing.T) {
	o := newTestOracle(t)
	ctx := context.Background()
	for want := uint64(1); want <= 3; want++ {
		id, err := o.Request(ctx, Commit(testUserSeed, testProviderSeed), testFee)
		if err != nil {
			t.Fatalf("Request: %v", err)
		}
		if id != want {
			t.Errorf("id: got %d want %d", id, want)
		}
	}
}

func TestOracle_RequestFeeMismatch(t *testing.T) {
	o := newTestOracle(t)
	for _, fee := range []*big.Int{nil, big.NewInt(2), big.NewInt(4)} {
		if _, err := o.Request(context.Background(), common.Hash{}, fee); !errors.Is(err, ErrFeeMismatch) {
			t.Errorf("fee %v: expected ErrFeeMismatch, got %v", fee, err)
		}
	}
}

func TestOracle_RevealLifecycle(t *testing.T) {
	o := newTestOracle(t)
	ctx := context.Background()

	id, err := o.Request(ctx, Commit(testUserSeed, testProviderSeed), testFee)
	if err != nil {
		t.Fatal(err)
	}
	if s, _ := o.Status(ctx, id); s != StatusRequested {
		t.Errorf("status before reveal: %q", s)
	}

	if _, err := o.Reveal(ctx, id, testUserSeed, common.Hash{}); !errors.Is(err, ErrRevealMismatch) {
		t.Fatalf("wrong seeds: expected ErrRevealMismatch, got %v", err)
	}
	if s, _ := o.Status(ctx, id); s != StatusRequested {
		t.Errorf("failed reveal must not consume the request, status %q", s)
	}

	v, err := o.Reveal(ctx, id, testUserSeed, testProviderSeed)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if v.Cmp(RandomValue(testUserSeed, testProviderSeed, id)) != 0 {
		t.Errorf("value: got %s", v)
	}

	if _, err := o.Reveal(ctx, id, testUserSeed, testProviderSeed); !errors.Is(err, ErrAlreadyRevealed) {
		t.Fatalf("second reveal: expected ErrAlreadyRevealed, got %v", err)
	}
}

func TestOracle_RevealUnknown(t *testing.T) {
	o := newTestOracle(t)
	if _, err := o.Reveal(context.Background(), 42, testUserSeed, testProviderSeed); !errors.Is(err, ErrUnknownRequest) {
		t.Fatalf("expected ErrUnknownRequest, got %v", err)
	}
	if s, err := o.Status(context.Background(), 42); err != nil || s != "" {
		t.Errorf("Status of unknown id: %q, %v", s, err)
	}
}
