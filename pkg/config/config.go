// Package config loads the engine configuration from environment variables,
// with optional .env support for local runs.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/models"
)

// Config holds the configuration for the rebalancing engine
type Config struct {
	PrivateKey     string
	WalletAddress  common.Address
	Chains         map[int]ChainConfig
	CoreTokens     []models.CoreToken
	LiFi           LiFiConfig
	Stargate       StargateConfig
	CCTP           CCTPConfig
	MetricsPort    string
	GasMultiplier  float64
	CircuitBreaker CircuitBreakerConfig
	LoggerConfig   LoggerConfig
}

// ChainConfig holds the configuration for a specific blockchain
type ChainConfig struct {
	ChainID            int
	Name               string
	RPCURL             string
	USDC               common.Address
	CCTPDomain         uint32
	TokenMessenger     common.Address
	MessageTransmitter common.Address
}

// LiFiConfig holds the aggregator provider configuration
type LiFiConfig struct {
	APIURL     string
	Integrator string
	// CacheTTL controls the support directory refresh period.
	CacheTTL time.Duration
}

// StargateConfig holds the fee-API provider configuration
type StargateConfig struct {
	APIURL         string
	MaxSlippageBps int64
}

// CCTPConfig holds the burn-and-mint provider configuration
type CCTPConfig struct {
	APIURL           string
	FastTransfers    bool
	AttestationDelay time.Duration
	PollInterval     time.Duration
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	walletAddress, err := GetEnvWalletAddress()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	gasMultiplier, err := GetEnvGasMultiplier()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	lifiConfig, err := GetEnvLiFiConfig()
	if err != nil {
		return nil, err
	}

	stargateConfig, err := GetEnvStargateConfig()
	if err != nil {
		return nil, err
	}

	cctpConfig, err := GetEnvCCTPConfig()
	if err != nil {
		return nil, err
	}

	chainConfigs := GetEnvChainConfigs()

	coreTokens, err := GetEnvCoreTokens(chainConfigs)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		PrivateKey:    os.Getenv("PRIVATE_KEY"),
		WalletAddress: walletAddress,
		Chains:        chainConfigs,
		CoreTokens:    coreTokens,
		LiFi:          lifiConfig,
		Stargate:      stargateConfig,
		CCTP:          cctpConfig,
		MetricsPort:   metricsPort,
		GasMultiplier: gasMultiplier,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if cfg.WalletAddress == (common.Address{}) {
		return fmt.Errorf("WALLET_ADDRESS environment variable is required")
	}
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain configuration is required")
	}
	for chainID, chainConfig := range cfg.Chains {
		if chainConfig.RPCURL == "" {
			return fmt.Errorf("RPC URL for chain %d is required", chainID)
		}
	}
	return nil
}
