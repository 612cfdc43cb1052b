// Package config loads the ngndexd runtime configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for ngndexd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	DatabasePath  string          `yaml:"database"`
	NGNToken      string          `yaml:"ngn_token"`
	Treasury      string          `yaml:"treasury"`
	Admins        []string        `yaml:"admins"`
	AdminToken    string          `yaml:"admin_token"`
	HistoryLimit  int             `yaml:"history_limit"`
	ShutdownGrace Duration        `yaml:"shutdown_grace"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Seed          []SeedBalance   `yaml:"seed"`
}

// RateLimitConfig throttles JSON-RPC mutations per source address.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// SeedBalance credits a dev/test balance at boot, with an optional allowance
// pre-approved toward the engine treasury.
type SeedBalance struct {
	Token     string `yaml:"token"`
	Account   string `yaml:"account"`
	Amount    string `yaml:"amount"`
	Allowance string `yaml:"allowance"`
}

// Load reads configuration from the supplied path. The admin bearer token may
// be overridden through NGNDEX_ADMIN_TOKEN.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if token := strings.TrimSpace(os.Getenv("NGNDEX_ADMIN_TOKEN")); token != "" {
		cfg.AdminToken = token
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8645"
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 20
	}
	if c.ShutdownGrace.Duration <= 0 {
		c.ShutdownGrace.Duration = 10 * time.Second
	}
}

// Validate rejects configurations the daemon cannot safely run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database path required")
	}
	if !common.IsHexAddress(strings.TrimSpace(c.NGNToken)) {
		return fmt.Errorf("ngn_token must be a hex address")
	}
	if !common.IsHexAddress(strings.TrimSpace(c.Treasury)) {
		return fmt.Errorf("treasury must be a hex address")
	}
	for _, admin := range c.Admins {
		if !common.IsHexAddress(strings.TrimSpace(admin)) {
			return fmt.Errorf("admin %q must be a hex address", admin)
		}
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit must not be negative")
	}
	for i, seed := range c.Seed {
		if !common.IsHexAddress(strings.TrimSpace(seed.Token)) {
			return fmt.Errorf("seed[%d].token must be a hex address", i)
		}
		if !common.IsHexAddress(strings.TrimSpace(seed.Account)) {
			return fmt.Errorf("seed[%d].account must be a hex address", i)
		}
		if strings.TrimSpace(seed.Amount) == "" {
			return fmt.Errorf("seed[%d].amount required", i)
		}
	}
	return nil
}

// NGNTokenAddress returns the parsed NGN token address.
func (c *Config) NGNTokenAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.NGNToken))
}

// TreasuryAddress returns the parsed engine treasury address.
func (c *Config) TreasuryAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(c.Treasury))
}

// AdminAddresses returns the parsed admin capability holders.
func (c *Config) AdminAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Admins))
	for _, admin := range c.Admins {
		out = append(out, common.HexToAddress(strings.TrimSpace(admin)))
	}
	return out
}
