package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvMetricsPort(t *testing.T) {
	t.Setenv("METRICS_PORT", "")
	port, err := GetEnvMetricsPort()
	require.NoError(t, err)
	assert.Equal(t, DefaultMetricsPort, port)

	t.Setenv("METRICS_PORT", "9090")
	port, err = GetEnvMetricsPort()
	require.NoError(t, err)
	assert.Equal(t, "9090", port)

	t.Setenv("METRICS_PORT", "not-a-port")
	_, err = GetEnvMetricsPort()
	assert.Error(t, err)
}

func TestGetEnvGasMultiplier(t *testing.T) {
	t.Setenv("GAS_MULTIPLIER", "")
	multiplier, err := GetEnvGasMultiplier()
	require.NoError(t, err)
	assert.Equal(t, DefaultGasMultiplier, multiplier)

	t.Setenv("GAS_MULTIPLIER", "1.5")
	multiplier, err = GetEnvGasMultiplier()
	require.NoError(t, err)
	assert.Equal(t, 1.5, multiplier)

	t.Setenv("GAS_MULTIPLIER", "0.5")
	_, err = GetEnvGasMultiplier()
	assert.Error(t, err, "a multiplier below 1 would underprice gas")
}

func TestGetEnvChainConfigsDefaults(t *testing.T) {
	t.Setenv("BASE_RPC_URL", "")
	t.Setenv("BASE_USDC_ADDRESS", "")
	configs := GetEnvChainConfigs()
	require.Len(t, configs, 7)

	base, ok := configs[8453]
	require.True(t, ok)
	assert.Equal(t, "BASE", base.Name)
	assert.Equal(t, uint32(6), base.CCTPDomain)
	assert.Equal(t, common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), base.USDC)
	assert.Equal(t, common.HexToAddress(defaultTokenMessenger), base.TokenMessenger)
	assert.NotEmpty(t, base.RPCURL)
}

func TestGetEnvChainConfigsOverrides(t *testing.T) {
	t.Setenv("BASE_RPC_URL", "https://rpc.internal/base")
	t.Setenv("BASE_USDC_ADDRESS", "0x1234567890123456789012345678901234567890")

	configs := GetEnvChainConfigs()
	base := configs[8453]
	assert.Equal(t, "https://rpc.internal/base", base.RPCURL)
	assert.Equal(t, common.HexToAddress("0x1234567890123456789012345678901234567890"), base.USDC)

	// Other chains keep their defaults.
	assert.NotEqual(t, base.RPCURL, configs[42161].RPCURL)
}

func TestGetEnvCoreTokensDefault(t *testing.T) {
	t.Setenv("CORE_TOKENS", "")
	configs := GetEnvChainConfigs()
	tokens, err := GetEnvCoreTokens(configs)
	require.NoError(t, err)
	require.Len(t, tokens, 7)

	for _, token := range tokens {
		assert.Equal(t, configs[token.ChainID].USDC, token.Address)
		assert.Equal(t, uint8(6), token.Decimals)
	}
}

func TestGetEnvCoreTokensOverride(t *testing.T) {
	t.Setenv("CORE_TOKENS", "8453:0x1234567890123456789012345678901234567890:6, 1:0xdAC17F958D2ee523a2206206994597C13D831ec7:6")

	tokens, err := GetEnvCoreTokens(GetEnvChainConfigs())
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	assert.Equal(t, 8453, tokens[0].ChainID)
	assert.Equal(t, 1, tokens[1].ChainID)
	assert.Equal(t, common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), tokens[1].Address)
}

func TestGetEnvCoreTokensMalformed(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"missing decimals", "8453:0x1234567890123456789012345678901234567890"},
		{"bad chain", "abc:0x1234567890123456789012345678901234567890:6"},
		{"bad address", "8453:nothex:6"},
		{"bad decimals", "8453:0x1234567890123456789012345678901234567890:many"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CORE_TOKENS", tt.value)
			_, err := GetEnvCoreTokens(GetEnvChainConfigs())
			assert.Error(t, err)
		})
	}
}

func TestGetEnvCCTPConfig(t *testing.T) {
	t.Setenv("CCTP_API_URL", "")
	t.Setenv("CCTP_FAST_TRANSFERS", "")
	t.Setenv("CCTP_ATTESTATION_DELAY", "")
	t.Setenv("CCTP_POLL_INTERVAL", "")
	cfg, err := GetEnvCCTPConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultCCTPAPIURL, cfg.APIURL)
	assert.False(t, cfg.FastTransfers)
	assert.Equal(t, DefaultCCTPAttestationDelay, cfg.AttestationDelay)
	assert.Equal(t, DefaultCCTPPollInterval, cfg.PollInterval)

	t.Setenv("CCTP_FAST_TRANSFERS", "true")
	t.Setenv("CCTP_POLL_INTERVAL", "5s")
	cfg, err = GetEnvCCTPConfig()
	require.NoError(t, err)
	assert.True(t, cfg.FastTransfers)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}

func TestGetEnvStargateConfigValidatesSlippage(t *testing.T) {
	t.Setenv("STARGATE_MAX_SLIPPAGE_BPS", "10001")
	_, err := GetEnvStargateConfig()
	assert.Error(t, err)

	t.Setenv("STARGATE_MAX_SLIPPAGE_BPS", "100")
	cfg, err := GetEnvStargateConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(100), cfg.MaxSlippageBps)
}
