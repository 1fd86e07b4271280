package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/0gfoundation/0g-rosca/internal/types"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Authority AuthorityConfig
	Entropy   EntropyConfig
	Ledger    LedgerConfig
	Chain     ChainConfig
	Rotation  RotationConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type AuthorityConfig struct {
	AuthorizerAddress string `mapstructure:"authorizer_address"`
	AdminAddress      string `mapstructure:"admin_address"`
}

type EntropyConfig struct {
	Backend string `mapstructure:"backend"` // local | http
	URL     string `mapstructure:"url"`
	Fee     string `mapstructure:"fee"`
	// APIKey is the bearer token sent to a remote oracle (http) or required
	// from callers of this node's /entropy routes (local). The local oracle
	// is not exposed when it is empty.
	APIKey string `mapstructure:"api_key"`
}

type LedgerConfig struct {
	Backend string `mapstructure:"backend"` // redis | erc20
}

type ChainConfig struct {
	RPCURL       string `mapstructure:"rpc_url"`
	ChainID      int64  `mapstructure:"chain_id"`
	TokenAddress string `mapstructure:"token_address"`
	CustodyKey   string `mapstructure:"custody_key"`

	// CustodyAddress holds funds for the redis ledger. Ignored for erc20,
	// where custody is the address of CustodyKey.
	CustodyAddress string `mapstructure:"custody_address"`
}

type RotationConfig struct {
	ExhaustionPolicy string `mapstructure:"exhaustion_policy"` // cycle | freeze
	WatchIntervalSec int64  `mapstructure:"watch_interval_sec"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("entropy.backend", "local")
	v.SetDefault("entropy.fee", "0")
	v.SetDefault("ledger.backend", "redis")
	v.SetDefault("chain.chain_id", 16602)
	v.SetDefault("rotation.exhaustion_policy", string(types.ExhaustionCycle))
	v.SetDefault("rotation.watch_interval_sec", 60)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":                  "PORT",
		"redis.addr":                   "REDIS_ADDR",
		"redis.password":               "REDIS_PASSWORD",
		"authority.authorizer_address": "AUTHORIZER_ADDRESS",
		"authority.admin_address":      "ADMIN_ADDRESS",
		"entropy.backend":              "ENTROPY_BACKEND",
		"entropy.url":                  "ENTROPY_URL",
		"entropy.api_key":              "ENTROPY_API_KEY",
		"entropy.fee":                  "ENTROPY_FEE",
		"ledger.backend":               "LEDGER_BACKEND",
		"chain.rpc_url":                "RPC_URL",
		"chain.chain_id":               "CHAIN_ID",
		"chain.token_address":          "TOKEN_ADDRESS",
		"chain.custody_key":            "CUSTODY_KEY",
		"chain.custody_address":        "CUSTODY_ADDRESS",
		"rotation.exhaustion_policy":   "EXHAUSTION_POLICY",
		"rotation.watch_interval_sec":  "WATCH_INTERVAL_SEC",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	required := []req{
		{c.Authority.AuthorizerAddress, "AUTHORIZER_ADDRESS"},
		{c.Authority.AdminAddress, "ADMIN_ADDRESS"},
	}
	switch c.Ledger.Backend {
	case "redis":
		required = append(required, req{c.Chain.CustodyAddress, "CUSTODY_ADDRESS"})
	case "erc20":
		required = append(required,
			req{c.Chain.RPCURL, "RPC_URL"},
			req{c.Chain.TokenAddress, "TOKEN_ADDRESS"},
			req{c.Chain.CustodyKey, "CUSTODY_KEY"},
		)
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	switch c.Entropy.Backend {
	case "local":
	case "http":
		required = append(required, req{c.Entropy.URL, "ENTROPY_URL"})
	default:
		return fmt.Errorf("unknown entropy backend %q", c.Entropy.Backend)
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}

	addresses := []req{
		{c.Authority.AuthorizerAddress, "AUTHORIZER_ADDRESS"},
		{c.Authority.AdminAddress, "ADMIN_ADDRESS"},
	}
	switch c.Ledger.Backend {
	case "redis":
		addresses = append(addresses, req{c.Chain.CustodyAddress, "CUSTODY_ADDRESS"})
	case "erc20":
		addresses = append(addresses, req{c.Chain.TokenAddress, "TOKEN_ADDRESS"})
	}
	for _, a := range addresses {
		if !common.IsHexAddress(a.val) {
			return fmt.Errorf("invalid address in %s", a.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}
	if _, ok := types.ParseExhaustionPolicy(c.Rotation.ExhaustionPolicy); !ok {
		return fmt.Errorf("invalid EXHAUSTION_POLICY %q", c.Rotation.ExhaustionPolicy)
	}
	if c.Rotation.WatchIntervalSec <= 0 {
		return fmt.Errorf("WATCH_INTERVAL_SEC must be positive")
	}
	if _, ok := c.EntropyFee(); !ok {
		return fmt.Errorf("invalid ENTROPY_FEE %q", c.Entropy.Fee)
	}
	return nil
}

// EntropyFee parses the local oracle's fee.
func (c *Config) EntropyFee() (*big.Int, bool) {
	fee, ok := new(big.Int).SetString(c.Entropy.Fee, 10)
	if !ok || fee.Sign() < 0 {
		return nil, false
	}
	return fee, true
}

// Exhaustion returns the validated exhaustion policy.
func (c *Config) Exhaustion() types.ExhaustionPolicy {
	p, _ := types.ParseExhaustionPolicy(c.Rotation.ExhaustionPolicy)
	return p
}
