// Package config defines the frozen protocol constants and the node
// configuration for the cntrd indexer.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Protocol constants. These are part of the wire and database contract and
// must never change once a ledger has been built against them.
const (
	// Unit is the number of base units per coin (satoshi scaling).
	Unit int64 = 100000000

	// DBVersion is bumped on every hard fork of the data identification
	// rules. Databases written by any other version are deleted at startup.
	DBVersion = 1

	// DefaultBlockFirst is the earliest block height the ledger retains.
	DefaultBlockFirst int64 = 278270
)

// Prefix identifies protocol payloads inside OP_RETURN outputs.
var Prefix = []byte("CNTR")

// Reserved asset ids seeded at initialisation.
const (
	AssetBTC int64 = 0
	AssetXCP int64 = 1
)

// Config holds all configuration for the cntrd node.
type Config struct {
	// Network selects the chain parameters (mainnet, testnet or regtest).
	Network string `yaml:"network"`

	Chain   ChainConfig   `yaml:"chain"`
	Storage StorageConfig `yaml:"storage"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Logging LoggingConfig `yaml:"logging"`
}

// ChainConfig holds the upstream node connection settings.
type ChainConfig struct {
	// RPCURL is the Bitcoin-Core-style JSON-RPC endpoint.
	RPCURL  string `yaml:"rpc_url"`
	RPCUser string `yaml:"rpc_user"`
	RPCPass string `yaml:"rpc_pass"`

	// PollInterval is how long the follower sleeps at the chain tip.
	PollInterval time.Duration `yaml:"poll_interval"`

	// OfflineAddressChecks validates addresses locally against the network
	// parameters instead of calling validateaddress on the node.
	OfflineAddressChecks bool `yaml:"offline_address_checks"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory for the ledger database and config file.
	DataDir string `yaml:"data_dir"`
}

// LedgerConfig holds parser settings.
type LedgerConfig struct {
	// BlockFirst is the earliest block height to retain.
	BlockFirst int64 `yaml:"block_first"`

	// BootstrapBalances are credited at every initialisation, before any
	// block is parsed.
	BootstrapBalances []BootstrapBalance `yaml:"bootstrap_balances"`
}

// BootstrapBalance seeds one balance row at initialisation.
type BootstrapBalance struct {
	Address string `yaml:"address"`
	AssetID int64  `yaml:"asset_id"`
	Amount  int64  `yaml:"amount"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: "mainnet",
		Chain: ChainConfig{
			RPCURL:       "http://127.0.0.1:8332",
			PollInterval: 20 * time.Second,
		},
		Storage: StorageConfig{
			DataDir: "~/.cntrd",
		},
		Ledger: LedgerConfig{
			BlockFirst: DefaultBlockFirst,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// Load loads configuration from the YAML file in dataDir.
// If the file doesn't exist, it creates one with default values.
func Load(dataDir string) (*Config, error) {
	expandedDir := ExpandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}

		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# cntrd configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(ExpandPath(dataDir), ConfigFileName)
}

// BlockFirst returns the configured first block, falling back to the default.
func (c *Config) BlockFirst() int64 {
	if c.Ledger.BlockFirst > 0 {
		return c.Ledger.BlockFirst
	}
	return DefaultBlockFirst
}

// ExpandPath expands ~ to home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
