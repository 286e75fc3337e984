// Package tokengate configures the token-gated access gateway.
package tokengate

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"

	"github.com/layer-3/tokengate/core"
)

// Config is the process configuration, populated from the environment.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR,default=:9000"`

	// Ownership requirement for static issuance.
	ChainRPCURL string `env:"CHAIN_RPC_URL,default=http://localhost:8545"`
	ChainID     uint64 `env:"CHAIN_ID,default=1"`
	Contract    string `env:"CONTRACT_ADDRESS,required"`
	TokenID     string `env:"TOKEN_ID,default=1"`

	// Credential policy. Access must be shorter than refresh.
	SigningSecret string        `env:"JWT_SECRET,required"`
	AccessTTL     time.Duration `env:"ACCESS_TTL,default=15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TTL,default=168h"`

	// Empty RedisURL selects the in-memory store.
	RedisURL      string        `env:"REDIS_URL,default="`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=10m"`

	// Rate limits: tight for issuance/refresh, loose for protected calls.
	AuthRateMax    int           `env:"AUTH_RATE_MAX,default=10"`
	AuthRateWindow time.Duration `env:"AUTH_RATE_WINDOW,default=15m"`
	APIRateMax     int           `env:"API_RATE_MAX,default=120"`
	APIRateWindow  time.Duration `env:"API_RATE_WINDOW,default=1m"`
}

// LoadConfig reads and validates configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envdecode cannot express.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Contract) {
		return fmt.Errorf("CONTRACT_ADDRESS: %w", core.ErrInvalidAddress)
	}
	if tokenID, ok := new(big.Int).SetString(c.TokenID, 10); !ok || tokenID.Sign() < 0 {
		return fmt.Errorf("TOKEN_ID must be a non-negative integer, got %q", c.TokenID)
	}
	if c.AccessTTL >= c.RefreshTTL {
		return fmt.Errorf("ACCESS_TTL %s must be shorter than REFRESH_TTL %s", c.AccessTTL, c.RefreshTTL)
	}
	return nil
}

// Requirement builds the static ownership requirement.
func (c *Config) Requirement() core.Requirement {
	tokenID, _ := new(big.Int).SetString(c.TokenID, 10)
	return core.Requirement{
		ChainID:  c.ChainID,
		Contract: common.HexToAddress(c.Contract).Hex(),
		TokenID:  tokenID,
	}
}
