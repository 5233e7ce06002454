// Package config defines all configuration for the liquidation service.
// Config is loaded from a YAML file with an env-var override layer
// (ROBOT_* prefix), exactly the teacher's viper + mapstructure pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/scale-protocol/robot/internal/address"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Operator  OperatorConfig  `mapstructure:"operator"`
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	Store     StoreConfig     `mapstructure:"store"`
	Liquidate LiquidateConfig `mapstructure:"liquidate"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ClusterConfig points at the chain RPC collaborator: an HTTP endpoint
// for the submission/bootstrap surface, a WebSocket endpoint for account
// and price subscriptions.
type ClusterConfig struct {
	Name   string `mapstructure:"name"` // devnet, testnet, mainnet, localnet
	RPCURL string `mapstructure:"rpc_url"`
	WSURL  string `mapstructure:"ws_url"`
}

// OperatorConfig names the signing keypair ChainClient submits
// transactions with, and the protocol program it watches/targets.
type OperatorConfig struct {
	KeypairPath string `mapstructure:"keypair_path"`
	ProgramID   string `mapstructure:"program_id"`
}

// AccountsConfig is the fixed per-cluster BTC/ETH/SOL pyth and chainlink
// address table the full-position branch needs, plus the token mint.
// Grounded on original_source/src/config.rs's Accounts struct.
type AccountsConfig struct {
	SplMint       string            `mapstructure:"spl_mint"`
	PythProgramID string            `mapstructure:"pyth_program_id"`
	Pyth          map[string]string `mapstructure:"pyth"`      // "BTC/USD" -> address
	Chainlink     map[string]string `mapstructure:"chainlink"` // "BTC/USD" -> address
}

// StoreConfig sets where the ordered KV database lives on disk.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LiquidateConfig tunes the worker pool and the burst threshold.
type LiquidateConfig struct {
	Workers   int     `mapstructure:"workers"`
	BurstRate float64 `mapstructure:"burst_rate"`
}

// HTTPConfig controls the supplemental read-only query surface.
type HTTPConfig struct {
	IP   string `mapstructure:"ip"`
	Port int    `mapstructure:"port"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: ROBOT_KEYPAIR_PATH, ROBOT_RPC_URL,
// ROBOT_WS_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ROBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// viper lowercases map keys; restore the "BTC/USD" form the lookups use.
	for _, m := range []*map[string]string{&cfg.Accounts.Pyth, &cfg.Accounts.Chainlink} {
		norm := make(map[string]string, len(*m))
		for k, val := range *m {
			norm[strings.ToUpper(k)] = val
		}
		*m = norm
	}

	if url := os.Getenv("ROBOT_RPC_URL"); url != "" {
		cfg.Cluster.RPCURL = url
	}
	if url := os.Getenv("ROBOT_WS_URL"); url != "" {
		cfg.Cluster.WSURL = url
	}
	if p := os.Getenv("ROBOT_KEYPAIR_PATH"); p != "" {
		cfg.Operator.KeypairPath = p
	}
	if w := os.Getenv("ROBOT_WORKERS"); w != "" {
		if n, err := strconv.Atoi(w); err == nil {
			cfg.Liquidate.Workers = n
		}
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Cluster.RPCURL == "" {
		return fmt.Errorf("cluster.rpc_url is required (set ROBOT_RPC_URL)")
	}
	if c.Cluster.WSURL == "" {
		return fmt.Errorf("cluster.ws_url is required (set ROBOT_WS_URL)")
	}
	if c.Operator.KeypairPath == "" {
		return fmt.Errorf("operator.keypair_path is required (set ROBOT_KEYPAIR_PATH)")
	}
	if c.Operator.ProgramID == "" {
		return fmt.Errorf("operator.program_id is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Liquidate.BurstRate <= 0 {
		return fmt.Errorf("liquidate.burst_rate must be > 0")
	}
	for _, pair := range []string{"BTC/USD", "ETH/USD", "SOL/USD"} {
		if c.Accounts.Pyth[pair] == "" {
			return fmt.Errorf("accounts.pyth[%q] is required", pair)
		}
	}
	return nil
}

// FixedPythAddresses resolves the BTC/ETH/SOL pyth price accounts the
// liquidator's full-position branch requires, implementing
// liquidator.FixedPriceSource.
func (c *Config) FixedPythAddresses() (btc, eth, sol address.Address, ok bool) {
	btc, err1 := address.FromString(c.Accounts.Pyth["BTC/USD"])
	eth, err2 := address.FromString(c.Accounts.Pyth["ETH/USD"])
	sol, err3 := address.FromString(c.Accounts.Pyth["SOL/USD"])
	if err1 != nil || err2 != nil || err3 != nil {
		return address.Zero, address.Zero, address.Zero, false
	}
	return btc, eth, sol, true
}
