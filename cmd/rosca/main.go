package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-rosca/internal/airdrop"
	"github.com/0gfoundation/0g-rosca/internal/api"
	"github.com/0gfoundation/0g-rosca/internal/auth"
	"github.com/0gfoundation/0g-rosca/internal/config"
	"github.com/0gfoundation/0g-rosca/internal/entropy"
	"github.com/0gfoundation/0g-rosca/internal/ledger"
	"github.com/0gfoundation/0g-rosca/internal/permit"
	"github.com/0gfoundation/0g-rosca/internal/pot"
	"github.com/0gfoundation/0g-rosca/internal/store"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	clock := clockwork.NewRealClock()

	// ── Ledger (custodial Redis balances or ERC-20 token) ─────────────────────
	l, custody, err := newLedger(ctx, cfg, rdb)
	if err != nil {
		log.Fatal("ledger init failed", zap.Error(err))
	}

	// ── Randomness (local oracle or remote service) ───────────────────────────
	rng, oracle, err := newEntropy(cfg, rdb, log)
	if err != nil {
		log.Fatal("entropy init failed", zap.Error(err))
	}

	// ── Engine and claim registry ─────────────────────────────────────────────
	st := store.New(rdb)
	admin := common.HexToAddress(cfg.Authority.AdminAddress)
	eng := pot.NewEngine(st, l, rng, auth.EthVerifier{}, clock, pot.Config{
		Authorizer: common.HexToAddress(cfg.Authority.AuthorizerAddress),
		Admin:      admin,
		Domain:     permit.Domain{ChainID: big.NewInt(cfg.Chain.ChainID), Verifier: custody},
		Exhaustion: cfg.Exhaustion(),
	}, log)
	reg := airdrop.NewRegistry(st, l, admin, clock, log)

	go eng.RunWatcher(ctx, time.Duration(cfg.Rotation.WatchIntervalSec)*time.Second)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: newRouter(rdb, clock, api.NewHandler(eng, reg, clock, log), oracle, cfg.Entropy.APIKey),
	}

	go func() {
		log.Info("HTTP server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("ledger", cfg.Ledger.Backend),
			zap.String("entropy", cfg.Entropy.Backend),
			zap.String("custody", custody.Hex()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// newRouter mounts health, metrics, the API and, when this node runs the
// local oracle and an api key is configured, the randomness routes other
// nodes consume.
func newRouter(rdb *redis.Client, clock clockwork.Clock, h *api.Handler, oracle *entropy.Oracle, oracleKey string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if oracle != nil && oracleKey != "" {
		entropy.RegisterRoutes(r.Group("/entropy", entropy.RequireAPIKey(oracleKey)), oracle)
	}

	public := r.Group("/api")
	signed := r.Group("/api", auth.Middleware(rdb, clock))
	h.Register(public, signed)
	return r
}

func newLedger(ctx context.Context, cfg *config.Config, rdb *redis.Client) (ledger.Ledger, common.Address, error) {
	switch cfg.Ledger.Backend {
	case "erc20":
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.CustodyKey, "0x"))
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("parse custody key: %w", err)
		}
		client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("dial rpc: %w", err)
		}
		l, err := ledger.NewERC20(client, common.HexToAddress(cfg.Chain.TokenAddress), key, big.NewInt(cfg.Chain.ChainID))
		if err != nil {
			return nil, common.Address{}, err
		}
		return l, l.Custody(), nil
	default:
		l := ledger.NewRedis(rdb, common.HexToAddress(cfg.Chain.CustodyAddress))
		return l, l.Custody(), nil
	}
}

// newEntropy returns the provider and, for the local backend, the oracle to
// expose over HTTP.
func newEntropy(cfg *config.Config, rdb *redis.Client, log *zap.Logger) (entropy.Provider, *entropy.Oracle, error) {
	switch cfg.Entropy.Backend {
	case "http":
		return entropy.NewClient(cfg.Entropy.URL, cfg.Entropy.APIKey), nil, nil
	default:
		fee, ok := cfg.EntropyFee()
		if !ok {
			return nil, nil, fmt.Errorf("invalid entropy fee %q", cfg.Entropy.Fee)
		}
		o := entropy.NewOracle(rdb, fee, log)
		return o, o, nil
	}
}
