package lifi

import (
	"context"
	"encoding/json"
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
	testWallet = common.HexToAddress("0x1111111111111111111111111111111111111111")

	usdcArbitrum = models.TokenData{ChainID: 42161, Address: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), Decimals: 6}
	usdcBase     = models.TokenData{ChainID: 8453, Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Decimals: 6}
)

// stubCache answers every support question with a fixed verdict.
type stubCache struct{ supported bool }

func (c *stubCache) IsChainSupported(int) bool                  { return c.supported }
func (c *stubCache) IsTokenSupported(int, common.Address) bool  { return c.supported }
func (c *stubCache) Initialize(context.Context) error           { return nil }
func (c *stubCache) AreTokensConnected(int, common.Address, int, common.Address) bool {
	return c.supported
}

type stubExecutor struct {
	route Route
	hash  common.Hash
	err   error
}

func (e *stubExecutor) ExecuteRoute(_ context.Context, route Route) (common.Hash, error) {
	e.route = route
	return e.hash, e.err
}

func testProvider(apiURL string, cache SupportCache, executor RouteExecutor) *Provider {
	return New(Config{
		APIURL:        apiURL,
		Integrator:    "solverhq",
		WalletAddress: testWallet,
	}, cache, executor, &logger.EmptyLogger{})
}

func TestGetQuoteValidatesSupportBeforeNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("unsupported pairs must not reach the routes API")
	}))
	defer server.Close()

	p := testProvider(server.URL, &stubCache{supported: false}, &stubExecutor{})

	_, err := p.GetQuote(context.Background(), usdcArbitrum, usdcBase, big.NewInt(1000000), "req-1")
	assert.ErrorIs(t, err, rberrors.ErrRouteNotFound)
	assert.False(t, p.CanRoute(context.Background(), usdcArbitrum, usdcBase))
}

func TestGetQuotePricesFirstRoute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/advanced/routes", r.URL.Path)
		require.Equal(t, "solverhq", r.Header.Get("X-Lifi-Integrator"))

		var request routesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		assert.Equal(t, testWallet.Hex(), request.FromAddress)
		assert.Equal(t, 42161, request.FromChainID)
		assert.Equal(t, "1000000", request.FromAmount)

		response := routesResponse{Routes: []Route{
			{ID: "best", FromAmount: "1000000", ToAmount: "999500", ToAmountMin: "995000"},
			{ID: "worse", FromAmount: "1000000", ToAmount: "990000", ToAmountMin: "980000"},
		}}
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))
	defer server.Close()

	p := testProvider(server.URL, &stubCache{supported: true}, &stubExecutor{})

	quotes, err := p.GetQuote(context.Background(), usdcArbitrum, usdcBase, big.NewInt(1000000), "req-1")
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	quote := quotes[0]
	assert.Equal(t, "1000000", quote.AmountIn.String())
	assert.Equal(t, "999500", quote.AmountOut.String())
	assert.InDelta(t, 0.005, quote.Slippage, 1e-9)
	assert.Equal(t, models.StrategyLiFi, quote.Strategy)

	routeContext, ok := quote.Context.(*RouteContext)
	require.True(t, ok)
	assert.Equal(t, "best", routeContext.Route.ID)
	assert.Equal(t, "995000", routeContext.MinAmountOut().String())
}

func TestGetQuoteEmptyRoutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(routesResponse{}))
	}))
	defer server.Close()

	p := testProvider(server.URL, &stubCache{supported: true}, &stubExecutor{})

	_, err := p.GetQuote(context.Background(), usdcArbitrum, usdcBase, big.NewInt(1000000), "req-1")
	assert.ErrorIs(t, err, rberrors.ErrRouteNotFound)
}

func TestGetQuoteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := testProvider(server.URL, &stubCache{supported: true}, &stubExecutor{})

	_, err := p.GetQuote(context.Background(), usdcArbitrum, usdcBase, big.NewInt(1000000), "req-1")
	assert.ErrorIs(t, err, rberrors.ErrProviderAPI)
}

func TestExecuteRejectsWrongWallet(t *testing.T) {
	p := testProvider("http://unused", &stubCache{supported: true}, &stubExecutor{})

	_, err := p.Execute(context.Background(), common.HexToAddress("0x2222222222222222222222222222222222222222"), models.RebalanceQuote{
		Strategy: models.StrategyLiFi,
		Context:  &RouteContext{},
	})
	assert.ErrorIs(t, err, rberrors.ErrSignerMismatch)
}

type foreignContext struct{}

func (foreignContext) Strategy() models.Strategy { return models.StrategyStargate }

func TestExecuteRejectsForeignContext(t *testing.T) {
	p := testProvider("http://unused", &stubCache{supported: true}, &stubExecutor{})

	_, err := p.Execute(context.Background(), testWallet, models.RebalanceQuote{
		Strategy: models.StrategyStargate,
		Context:  foreignContext{},
	})
	assert.ErrorIs(t, err, rberrors.ErrContextMismatch)
}

func TestExecuteReplaysQuotedRoute(t *testing.T) {
	executor := &stubExecutor{hash: common.HexToHash("0xbeef")}
	p := testProvider("http://unused", &stubCache{supported: true}, executor)

	route := Route{ID: "best", FromAmount: "1000000", ToAmount: "999500", ToAmountMin: "995000"}
	hash, err := p.Execute(context.Background(), testWallet, models.RebalanceQuote{
		AmountIn:  big.NewInt(1000000),
		AmountOut: big.NewInt(999500),
		TokenIn:   usdcArbitrum,
		TokenOut:  usdcBase,
		Strategy:  models.StrategyLiFi,
		Context:   &RouteContext{Route: route},
	})
	require.NoError(t, err)
	assert.Equal(t, executor.hash, hash)
	assert.Equal(t, "best", executor.route.ID)
}
