package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/solverhq/rebalancer/pkg/chains"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/models"
)

const (
	// DefaultMetricsPort defines the default port for the health and metrics server
	DefaultMetricsPort = "8080"

	// DefaultGasMultiplier is the gas price safety margin applied on submission
	DefaultGasMultiplier = 1.1

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Minute

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Minute

	// DefaultLiFiAPIURL defines the default aggregator endpoint
	DefaultLiFiAPIURL = "https://li.quest"

	// DefaultLiFiCacheTTL defines the default support directory refresh period
	DefaultLiFiCacheTTL = time.Hour

	// DefaultStargateAPIURL defines the default bridge fee API endpoint
	DefaultStargateAPIURL = "https://stargate.finance/api"

	// DefaultStargateMaxSlippageBps caps the accepted loss on bridge routes
	DefaultStargateMaxSlippageBps = 50

	// DefaultCCTPAPIURL defines the default attestation and fee API endpoint
	DefaultCCTPAPIURL = "https://iris-api.circle.com"

	// DefaultCCTPAttestationDelay is the wait before the first attestation poll
	DefaultCCTPAttestationDelay = 30 * time.Second

	// DefaultCCTPPollInterval is the wait between polls for a pending attestation
	DefaultCCTPPollInterval = 10 * time.Second
)

// chainDefaults describes one supported mainnet chain. Every field can be
// overridden through <NAME>_RPC_URL and <NAME>_USDC_ADDRESS variables, with
// the name taken from the chains registry.
type chainDefaults struct {
	chainID    int
	rpcURL     string
	usdc       string
	cctpDomain uint32
}

// The token messenger and message transmitter are deployed at the same
// address on every supported chain.
const (
	defaultTokenMessenger     = "0x28b5a0e9C621a5BadaA536219b3a228C8168cf5d"
	defaultMessageTransmitter = "0x81D40F21F12A8F0E3252Bccb954D722d4c464B64"
)

var supportedChains = []chainDefaults{
	{1, "https://eth.llamarpc.com", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 0},
	{43114, "https://avalanche-c-chain-rpc.publicnode.com", "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", 1},
	{10, "https://mainnet.optimism.io", "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", 2},
	{42161, "https://arb1.arbitrum.io/rpc", "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", 3},
	{8453, "https://mainnet.base.org", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", 6},
	{137, "https://polygon-rpc.com", "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", 7},
	{130, "https://mainnet.unichain.org", "0x078D782b760474a361dDA0AF3839290b0EF57AD6", 10},
}

// GetEnvWalletAddress returns the rebalancing wallet address from environment variables
func GetEnvWalletAddress() (common.Address, error) {
	walletAddress := os.Getenv("WALLET_ADDRESS")
	if walletAddress == "" {
		return common.Address{}, nil
	}

	if !common.IsHexAddress(walletAddress) {
		return common.Address{}, fmt.Errorf("invalid WALLET_ADDRESS value: %s, must be a valid Ethereum address", walletAddress)
	}
	return common.HexToAddress(walletAddress), nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvGasMultiplier returns the gas price multiplier from environment variables
func GetEnvGasMultiplier() (float64, error) {
	gasMultiplier := os.Getenv("GAS_MULTIPLIER")
	if gasMultiplier == "" {
		return DefaultGasMultiplier, nil
	}

	multiplier, err := strconv.ParseFloat(gasMultiplier, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid GAS_MULTIPLIER value: %s, must be a number", gasMultiplier)
	}
	if multiplier < 1 {
		return 0, fmt.Errorf("GAS_MULTIPLIER must be at least 1")
	}
	return multiplier, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	window := os.Getenv("CIRCUIT_BREAKER_WINDOW")
	if window == "" {
		return DefaultCircuitBreakerWindow, nil
	}

	parsed, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_WINDOW value: %s, must be a valid duration string", window)
	}
	return parsed, nil
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	reset := os.Getenv("CIRCUIT_BREAKER_RESET")
	if reset == "" {
		return DefaultCircuitBreakerReset, nil
	}

	parsed, err := time.ParseDuration(reset)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_RESET value: %s, must be a valid duration string", reset)
	}
	return parsed, nil
}

// GetEnvLogLevel returns the logging level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of 'debug', 'info', 'notice', 'error'", level)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return false, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}

// GetEnvLiFiConfig returns the aggregator provider configuration from environment variables
func GetEnvLiFiConfig() (LiFiConfig, error) {
	apiURL := os.Getenv("LIFI_API_URL")
	if apiURL == "" {
		apiURL = DefaultLiFiAPIURL
	}

	cacheTTL := DefaultLiFiCacheTTL
	if ttl := os.Getenv("LIFI_CACHE_TTL"); ttl != "" {
		parsed, err := time.ParseDuration(ttl)
		if err != nil {
			return LiFiConfig{}, fmt.Errorf("invalid LIFI_CACHE_TTL value: %s, must be a valid duration string", ttl)
		}
		cacheTTL = parsed
	}

	return LiFiConfig{
		APIURL:     apiURL,
		Integrator: os.Getenv("LIFI_INTEGRATOR"),
		CacheTTL:   cacheTTL,
	}, nil
}

// GetEnvStargateConfig returns the fee-API provider configuration from environment variables
func GetEnvStargateConfig() (StargateConfig, error) {
	apiURL := os.Getenv("STARGATE_API_URL")
	if apiURL == "" {
		apiURL = DefaultStargateAPIURL
	}

	maxSlippageBps := int64(DefaultStargateMaxSlippageBps)
	if bps := os.Getenv("STARGATE_MAX_SLIPPAGE_BPS"); bps != "" {
		parsed, err := strconv.ParseInt(bps, 10, 64)
		if err != nil || parsed < 0 || parsed > 10000 {
			return StargateConfig{}, fmt.Errorf("invalid STARGATE_MAX_SLIPPAGE_BPS value: %s, must be an integer between 0 and 10000", bps)
		}
		maxSlippageBps = parsed
	}

	return StargateConfig{
		APIURL:         apiURL,
		MaxSlippageBps: maxSlippageBps,
	}, nil
}

// GetEnvCCTPConfig returns the burn-and-mint provider configuration from environment variables
func GetEnvCCTPConfig() (CCTPConfig, error) {
	apiURL := os.Getenv("CCTP_API_URL")
	if apiURL == "" {
		apiURL = DefaultCCTPAPIURL
	}

	fastTransfers := false
	if fast := os.Getenv("CCTP_FAST_TRANSFERS"); fast != "" {
		if fast != "true" && fast != "false" {
			return CCTPConfig{}, fmt.Errorf("invalid CCTP_FAST_TRANSFERS value: %s, must be 'true' or 'false'", fast)
		}
		fastTransfers = fast == "true"
	}

	attestationDelay := DefaultCCTPAttestationDelay
	if delay := os.Getenv("CCTP_ATTESTATION_DELAY"); delay != "" {
		parsed, err := time.ParseDuration(delay)
		if err != nil {
			return CCTPConfig{}, fmt.Errorf("invalid CCTP_ATTESTATION_DELAY value: %s, must be a valid duration string", delay)
		}
		attestationDelay = parsed
	}

	pollInterval := DefaultCCTPPollInterval
	if interval := os.Getenv("CCTP_POLL_INTERVAL"); interval != "" {
		parsed, err := time.ParseDuration(interval)
		if err != nil {
			return CCTPConfig{}, fmt.Errorf("invalid CCTP_POLL_INTERVAL value: %s, must be a valid duration string", interval)
		}
		pollInterval = parsed
	}

	return CCTPConfig{
		APIURL:           apiURL,
		FastTransfers:    fastTransfers,
		AttestationDelay: attestationDelay,
		PollInterval:     pollInterval,
	}, nil
}

// GetEnvChainConfigs returns the chain configurations for all supported
// chains, with per-chain RPC and token address overrides from the
// environment.
func GetEnvChainConfigs() map[int]ChainConfig {
	configs := make(map[int]ChainConfig, len(supportedChains))
	for _, defaults := range supportedChains {
		name := chains.GetChainName(defaults.chainID)

		rpc := os.Getenv(name + "_RPC_URL")
		if rpc == "" {
			rpc = defaults.rpcURL
		}
		usdc := os.Getenv(name + "_USDC_ADDRESS")
		if usdc == "" {
			usdc = defaults.usdc
		}

		configs[defaults.chainID] = ChainConfig{
			ChainID:            defaults.chainID,
			Name:               name,
			RPCURL:             rpc,
			USDC:               common.HexToAddress(usdc),
			CCTPDomain:         defaults.cctpDomain,
			TokenMessenger:     common.HexToAddress(defaultTokenMessenger),
			MessageTransmitter: common.HexToAddress(defaultMessageTransmitter),
		}
	}
	return configs
}

// GetEnvCoreTokens returns the core token priority list from CORE_TOKENS,
// formatted as "chainID:address:decimals" entries separated by commas. With
// no override the native USDC of every configured chain is used.
func GetEnvCoreTokens(chains map[int]ChainConfig) ([]models.CoreToken, error) {
	raw := os.Getenv("CORE_TOKENS")
	if raw == "" {
		tokens := make([]models.CoreToken, 0, len(supportedChains))
		for _, defaults := range supportedChains {
			chain := chains[defaults.chainID]
			tokens = append(tokens, models.CoreToken{
				Address:  chain.USDC,
				ChainID:  chain.ChainID,
				Decimals: 6,
			})
		}
		return tokens, nil
	}

	var tokens []models.CoreToken
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid CORE_TOKENS entry: %s, expected chainID:address:decimals", entry)
		}

		chainID, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid CORE_TOKENS chain ID: %s", parts[0])
		}
		if !common.IsHexAddress(parts[1]) {
			return nil, fmt.Errorf("invalid CORE_TOKENS address: %s", parts[1])
		}
		decimals, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid CORE_TOKENS decimals: %s", parts[2])
		}

		tokens = append(tokens, models.CoreToken{
			Address:  common.HexToAddress(parts[1]),
			ChainID:  chainID,
			Decimals: uint8(decimals),
		})
	}
	return tokens, nil
}
