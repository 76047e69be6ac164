// config.go - Configuration management for the settlement daemon.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config represents the daemon configuration.
type Config struct {
	// Server settings
	ListenAddr     string `yaml:"listen_addr"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`

	// Settlement settings
	AdminAddress      string `yaml:"admin_address"`
	VerifyingKeyPath  string `yaml:"verifying_key_path"`
	EnforceWhitelist  bool   `yaml:"enforce_whitelist"`
	RequireSignatures bool   `yaml:"require_signatures"`

	// Whitelist seeds for the in-memory registry. Ignored when
	// registry_url points at an external registry service.
	WhitelistParticipants []string `yaml:"whitelist_participants"`
	WhitelistAssets       []string `yaml:"whitelist_assets"`

	// External services. Empty values select the in-memory backends.
	ChainRPCURL string `yaml:"chain_rpc_url"`
	OperatorKey string `yaml:"operator_key"`
	RegistryURL string `yaml:"registry_url"`

	// Storage
	DataDir         string `yaml:"data_dir"`
	SnapshotBackend string `yaml:"snapshot_backend"`

	// Logging
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	AuditLogFile  string `yaml:"audit_log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`

	// Rate limiting
	RateLimitBurst     int `yaml:"rate_limit_burst"`
	RateLimitPerSecond int `yaml:"rate_limit_per_second"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:         ":8480",
		TimeoutSeconds:     30,
		VerifyingKeyPath:   "keys/settlement_vk.bin",
		EnforceWhitelist:   false,
		RequireSignatures:  true,
		DataDir:            "data",
		SnapshotBackend:    "badger",
		LogLevel:           "info",
		LogFile:            "logs/darkpoold.log",
		AuditLogFile:       "logs/audit.log",
		LogMaxSizeMB:       100,
		LogMaxBackups:      3,
		LogMaxAgeDays:      14,
		RateLimitBurst:     20,
		RateLimitPerSecond: 10,
	}
}

// LoadConfig loads the YAML config file when it exists, applies
// defaults for unset fields, then lets environment variables override
// everything. Env keys use the DARKPOOL_ prefix.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	const prefix = "DARKPOOL_"

	if v := os.Getenv(prefix + "LISTEN_ADDR"); v != "" {
		config.ListenAddr = v
	}
	if v := os.Getenv(prefix + "TIMEOUT_SECONDS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.TimeoutSeconds = i
		}
	}
	if v := os.Getenv(prefix + "ADMIN_ADDRESS"); v != "" {
		config.AdminAddress = v
	}
	if v := os.Getenv(prefix + "VERIFYING_KEY_PATH"); v != "" {
		config.VerifyingKeyPath = v
	}
	if v := os.Getenv(prefix + "ENFORCE_WHITELIST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.EnforceWhitelist = b
		}
	}
	if v := os.Getenv(prefix + "REQUIRE_SIGNATURES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.RequireSignatures = b
		}
	}
	if v := os.Getenv(prefix + "CHAIN_RPC_URL"); v != "" {
		config.ChainRPCURL = v
	}
	if v := os.Getenv(prefix + "OPERATOR_KEY"); v != "" {
		config.OperatorKey = v
	}
	if v := os.Getenv(prefix + "REGISTRY_URL"); v != "" {
		config.RegistryURL = v
	}
	if v := os.Getenv(prefix + "DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv(prefix + "SNAPSHOT_BACKEND"); v != "" {
		config.SnapshotBackend = v
	}
	if v := os.Getenv(prefix + "LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv(prefix + "LOG_FILE"); v != "" {
		config.LogFile = v
	}
	if v := os.Getenv(prefix + "AUDIT_LOG_FILE"); v != "" {
		config.AuditLogFile = v
	}
	if v := os.Getenv(prefix + "RATE_LIMIT_BURST"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.RateLimitBurst = i
		}
	}
	if v := os.Getenv(prefix + "RATE_LIMIT_PER_SECOND"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.RateLimitPerSecond = i
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	if c.AdminAddress != "" && !common.IsHexAddress(c.AdminAddress) {
		return fmt.Errorf("admin_address %q is not a hex address", c.AdminAddress)
	}
	if c.VerifyingKeyPath == "" {
		return fmt.Errorf("verifying_key_path must be set")
	}
	if c.SnapshotBackend != "badger" && c.SnapshotBackend != "file" {
		return fmt.Errorf("snapshot_backend must be \"badger\" or \"file\", got %q", c.SnapshotBackend)
	}
	if c.ChainRPCURL != "" && c.OperatorKey == "" {
		return fmt.Errorf("operator_key must be set when chain_rpc_url is used")
	}
	for _, addr := range c.WhitelistParticipants {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("whitelist participant %q is not a hex address", addr)
		}
	}
	for _, addr := range c.WhitelistAssets {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("whitelist asset %q is not a hex address", addr)
		}
	}
	if c.RateLimitPerSecond < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if c.RateLimitPerSecond > 0 && c.RateLimitBurst == 0 {
		return fmt.Errorf("rate_limit_burst must be positive when rate limiting is on")
	}
	return nil
}

// Admin returns the parsed admin address, zero when unset.
func (c *Config) Admin() common.Address {
	if c.AdminAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.AdminAddress)
}
