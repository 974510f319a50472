package cctp

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rberrors "github.com/solverhq/rebalancer/pkg/errors"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/models"
)

var (
	testWallet = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	ethereumUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	baseUSDC     = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
)

func testChains() map[int]ChainConfig {
	messenger := common.HexToAddress("0x28b5a0e9C621a5BadaA536219b3a228C8168cf5d")
	transmitter := common.HexToAddress("0x81D40F21F12A8F0E3252Bccb954D722d4c464B64")
	return map[int]ChainConfig{
		1:    {Domain: 0, USDC: ethereumUSDC, TokenMessenger: messenger, MessageTransmitter: transmitter},
		8453: {Domain: 6, USDC: baseUSDC, TokenMessenger: messenger, MessageTransmitter: transmitter},
	}
}

func testProvider(t *testing.T, apiURL string, fast bool) *Provider {
	t.Helper()
	return New(Config{
		APIURL:        apiURL,
		WalletAddress: testWallet,
		Chains:        testChains(),
		FastTransfers: fast,
	}, nil, nil, nil, &logger.EmptyLogger{})
}

func usdcIn() models.TokenData {
	return models.TokenData{ChainID: 1, Address: ethereumUSDC, Decimals: 6}
}

func usdcOut() models.TokenData {
	return models.TokenData{ChainID: 8453, Address: baseUSDC, Decimals: 6}
}

func TestGetQuoteFeeMath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/burn/USDC/fees/0/6", r.URL.Path)
		_, _ = w.Write([]byte(`[{"finalityThreshold":1000,"minimumFee":10},{"finalityThreshold":2000,"minimumFee":0}]`))
	}))
	defer server.Close()

	p := testProvider(t, server.URL, true)

	quotes, err := p.GetQuote(context.Background(), usdcIn(), usdcOut(), big.NewInt(1000000), "req-1")
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	quote := quotes[0]
	assert.Equal(t, "1000000", quote.AmountIn.String())
	assert.Equal(t, "999000", quote.AmountOut.String())
	assert.InDelta(t, 0.10, quote.Slippage, 1e-9)

	burnContext, ok := quote.Context.(*BurnContext)
	require.True(t, ok)
	assert.Equal(t, int64(10), burnContext.FeeBps)
	assert.Equal(t, "1000", burnContext.MaxFee.String())
	assert.Equal(t, FastFinalityThreshold, burnContext.MinFinalityThreshold)
	assert.Equal(t, uint32(0), burnContext.SourceDomain)
	assert.Equal(t, uint32(6), burnContext.DestinationDomain)
	assert.Equal(t, 8453, burnContext.DestinationChainID)
	assert.Equal(t, "999000", burnContext.MinAmountOut().String())
}

func TestGetQuoteFeeTruncates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"finalityThreshold":1000,"minimumFee":10}]`))
	}))
	defer server.Close()

	p := testProvider(t, server.URL, true)

	// 999 * 10 / 10000 = 0.999, truncated to 0
	quotes, err := p.GetQuote(context.Background(), usdcIn(), usdcOut(), big.NewInt(999), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "999", quotes[0].AmountOut.String())
	assert.Equal(t, "0", quotes[0].Context.(*BurnContext).MaxFee.String())
}

func TestGetQuoteStandardTierWhenFastDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"finalityThreshold":1000,"minimumFee":10},{"finalityThreshold":2000,"minimumFee":2}]`))
	}))
	defer server.Close()

	p := testProvider(t, server.URL, false)

	quotes, err := p.GetQuote(context.Background(), usdcIn(), usdcOut(), big.NewInt(1000000), "req-1")
	require.NoError(t, err)

	burnContext := quotes[0].Context.(*BurnContext)
	assert.Equal(t, int64(2), burnContext.FeeBps)
	assert.Equal(t, StandardFinalityThreshold, burnContext.MinFinalityThreshold)
	assert.Equal(t, "999800", quotes[0].AmountOut.String())
}

func TestGetQuoteFailsOpenOnFeeAPIOutage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := testProvider(t, server.URL, true)

	quotes, err := p.GetQuote(context.Background(), usdcIn(), usdcOut(), big.NewInt(1000000), "req-1")
	require.NoError(t, err, "a fee API outage must not fail the quote")
	require.Len(t, quotes, 1)

	quote := quotes[0]
	assert.Equal(t, "1000000", quote.AmountOut.String(), "degraded quote carries zero fee")
	assert.Zero(t, quote.Slippage)
	assert.Equal(t, StandardFinalityThreshold, quote.Context.(*BurnContext).MinFinalityThreshold)
}

func TestGetQuoteDiscardsAmountBelowFee(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"finalityThreshold":1000,"minimumFee":10000}]`))
	}))
	defer server.Close()

	p := testProvider(t, server.URL, true)

	_, err := p.GetQuote(context.Background(), usdcIn(), usdcOut(), big.NewInt(1000), "req-1")
	assert.ErrorIs(t, err, rberrors.ErrRouteNotFound)
}

func TestGetQuoteRejectsNonNativeToken(t *testing.T) {
	p := testProvider(t, "http://unused", true)

	wrongToken := models.TokenData{ChainID: 1, Address: common.HexToAddress("0x01"), Decimals: 6}
	_, err := p.GetQuote(context.Background(), wrongToken, usdcOut(), big.NewInt(1000000), "req-1")
	assert.ErrorIs(t, err, rberrors.ErrRouteNotFound)

	unknownChain := models.TokenData{ChainID: 42161, Address: ethereumUSDC, Decimals: 6}
	_, err = p.GetQuote(context.Background(), unknownChain, usdcOut(), big.NewInt(1000000), "req-1")
	assert.ErrorIs(t, err, rberrors.ErrRouteNotFound)
}

func TestSelectFeeTier(t *testing.T) {
	entries := []feeEntry{
		{FinalityThreshold: 1000, MinimumFee: 10},
		{FinalityThreshold: 2000, MinimumFee: 2},
	}

	t.Run("fast enabled picks the fast tier", func(t *testing.T) {
		fee, finality := selectFeeTier(entries, true)
		assert.Equal(t, int64(10), fee)
		assert.Equal(t, FastFinalityThreshold, finality)
	})

	t.Run("fast disabled picks the standard tier", func(t *testing.T) {
		fee, finality := selectFeeTier(entries, false)
		assert.Equal(t, int64(2), fee)
		assert.Equal(t, StandardFinalityThreshold, finality)
	})

	t.Run("empty schedule degrades to zero fee", func(t *testing.T) {
		fee, finality := selectFeeTier(nil, true)
		assert.Zero(t, fee)
		assert.Equal(t, StandardFinalityThreshold, finality)
	})

	t.Run("fast requested but only standard offered", func(t *testing.T) {
		fee, finality := selectFeeTier([]feeEntry{{FinalityThreshold: 2000, MinimumFee: 2}}, true)
		assert.Equal(t, int64(2), fee)
		assert.Equal(t, StandardFinalityThreshold, finality)
	})
}

func TestFetchAttestation(t *testing.T) {
	burnHash := common.HexToHash("0xdead")

	t.Run("pending attestation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/messages/0", r.URL.Path)
			assert.Equal(t, burnHash.Hex(), r.URL.Query().Get("transactionHash"))
			_, _ = w.Write([]byte(`{"messages":[{"attestation":"PENDING","message":"0x","status":"pending_confirmations"}]}`))
		}))
		defer server.Close()

		p := testProvider(t, server.URL, true)
		att := p.FetchAttestation(context.Background(), 0, burnHash)
		assert.False(t, att.Complete)
	})

	t.Run("complete attestation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"messages":[{"attestation":"0x1234","message":"0xabcd","status":"complete"}]}`))
		}))
		defer server.Close()

		p := testProvider(t, server.URL, true)
		att := p.FetchAttestation(context.Background(), 0, burnHash)
		require.True(t, att.Complete)
		assert.Equal(t, []byte{0xab, 0xcd}, att.Message)
		assert.Equal(t, []byte{0x12, 0x34}, att.Signature)
	})

	t.Run("signed but not finalized stays pending", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"messages":[{"attestation":"0x1234","message":"0xabcd","status":"pending_confirmations"}]}`))
		}))
		defer server.Close()

		p := testProvider(t, server.URL, true)
		att := p.FetchAttestation(context.Background(), 0, burnHash)
		assert.False(t, att.Complete)
	})

	t.Run("API outage fails open to pending", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		p := testProvider(t, server.URL, true)
		att := p.FetchAttestation(context.Background(), 0, burnHash)
		assert.False(t, att.Complete)
	})

	t.Run("malformed payload fails open to pending", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer server.Close()

		p := testProvider(t, server.URL, true)
		att := p.FetchAttestation(context.Background(), 0, burnHash)
		assert.False(t, att.Complete)
	})
}

func TestExecuteWalletAndContextChecks(t *testing.T) {
	p := testProvider(t, "http://unused", true)

	t.Run("wrong wallet", func(t *testing.T) {
		other := common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
		quote := models.RebalanceQuote{Strategy: models.StrategyCCTPV2, Context: &BurnContext{}}
		_, err := p.Execute(context.Background(), other, quote)
		assert.ErrorIs(t, err, rberrors.ErrSignerMismatch)
	})

	t.Run("foreign context", func(t *testing.T) {
		quote := models.RebalanceQuote{Strategy: models.StrategyStargate, Context: &BurnContext{}}
		_, err := p.Execute(context.Background(), testWallet, quote)
		assert.ErrorIs(t, err, rberrors.ErrContextMismatch)
	})
}
