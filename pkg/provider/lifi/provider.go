// Package lifi implements the direct-aggregator rebalance provider. Routes
// come from a single external aggregation API; the first returned route is
// trusted to be the best one and its payload is replayed verbatim on
// execution.
package lifi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	rberrors "github.com/solverhq/rebalancer/pkg/errors"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/metrics"
	"github.com/solverhq/rebalancer/pkg/models"
	"github.com/solverhq/rebalancer/pkg/provider"
)

// RouteExecutor replays a quoted route. The default implementation submits
// each step through the gated signer; deployments with a vendor execution
// engine plug it in here.
type RouteExecutor interface {
	ExecuteRoute(ctx context.Context, route Route) (common.Hash, error)
}

// Config holds the aggregator endpoint and the provider's signing wallet.
type Config struct {
	APIURL        string
	Integrator    string
	WalletAddress common.Address
}

// Provider is the direct-aggregator rebalance provider.
type Provider struct {
	config     Config
	cache      SupportCache
	executor   RouteExecutor
	httpClient *http.Client
	logger     logger.Logger
}

var _ provider.Provider = (*Provider)(nil)

// New creates the provider. The support cache should already be initialized
// (best-effort) by the caller.
func New(config Config, cache SupportCache, executor RouteExecutor, log logger.Logger) *Provider {
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	return &Provider{
		config:     config,
		cache:      cache,
		executor:   executor,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}
}

func (p *Provider) Strategy() models.Strategy {
	return models.StrategyLiFi
}

// GetQuote validates support for both ends of the route, then asks the
// aggregator for routes and prices the first one.
func (p *Provider) GetQuote(ctx context.Context, tokenIn, tokenOut models.TokenData, amount *big.Int, id string) ([]models.RebalanceQuote, error) {
	if !p.validateTokenSupport(tokenIn, tokenOut) {
		return nil, rberrors.RouteNotAvailable(
			tokenIn.ChainID, tokenIn.Address.Hex(), tokenOut.ChainID, tokenOut.Address.Hex())
	}

	request := routesRequest{
		FromAddress:      p.config.WalletAddress.Hex(),
		FromChainID:      tokenIn.ChainID,
		FromTokenAddress: tokenIn.Address.Hex(),
		FromAmount:       amount.String(),
		ToAddress:        p.config.WalletAddress.Hex(),
		ToChainID:        tokenOut.ChainID,
		ToTokenAddress:   tokenOut.Address.Hex(),
	}

	start := time.Now()
	routes, err := p.fetchRoutes(ctx, request)
	metrics.QuoteLatency.WithLabelValues(string(p.Strategy())).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderAPIErrors.WithLabelValues(string(p.Strategy()), "routes").Inc()
		return nil, err
	}

	route, err := selectRoute(routes)
	if err != nil {
		return nil, err
	}

	amountIn, ok := new(big.Int).SetString(route.FromAmount, 10)
	if !ok {
		return nil, pkgerrors.Errorf("aggregator returned invalid fromAmount %q", route.FromAmount)
	}
	amountOut, ok := new(big.Int).SetString(route.ToAmount, 10)
	if !ok {
		return nil, pkgerrors.Errorf("aggregator returned invalid toAmount %q", route.ToAmount)
	}
	amountOutMin, ok := new(big.Int).SetString(route.ToAmountMin, 10)
	if !ok {
		return nil, pkgerrors.Errorf("aggregator returned invalid toAmountMin %q", route.ToAmountMin)
	}

	slippage := slippageRatio(amountIn, amountOutMin)

	return []models.RebalanceQuote{{
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Slippage:  slippage,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		Strategy:  p.Strategy(),
		Context:   &RouteContext{Route: route},
		ID:        id,
	}}, nil
}

// Execute verifies the wallet binding and replays the quoted route.
func (p *Provider) Execute(ctx context.Context, walletAddress common.Address, quote models.RebalanceQuote) (common.Hash, error) {
	if walletAddress != p.config.WalletAddress {
		p.logger.Error("Refusing to execute for wallet %s, configured signer is %s",
			walletAddress.Hex(), p.config.WalletAddress.Hex())
		return common.Hash{}, rberrors.ErrSignerMismatch
	}

	routeContext, ok := quote.Context.(*RouteContext)
	if !ok || quote.Strategy != p.Strategy() {
		return common.Hash{}, rberrors.ErrContextMismatch
	}

	p.logger.DebugWithChain(quote.TokenIn.ChainID, "Executing aggregator route %s: %s -> %s, %d steps",
		routeContext.Route.ID, quote.AmountIn, quote.AmountOut, len(routeContext.Route.Steps))

	return p.executor.ExecuteRoute(ctx, routeContext.Route)
}

// CanRoute answers route support from the cached directory without touching
// the network. Used by the fallback router to skip dead pairs cheaply.
func (p *Provider) CanRoute(_ context.Context, tokenIn, tokenOut models.TokenData) bool {
	return p.validateTokenSupport(tokenIn, tokenOut)
}

// validateTokenSupport runs the three support checks the aggregator's
// directory answers: chains, tokens on their chains, and pair connectivity.
// All must pass before any route request goes out.
func (p *Provider) validateTokenSupport(tokenIn, tokenOut models.TokenData) bool {
	if !p.cache.IsChainSupported(tokenIn.ChainID) {
		p.logger.DebugWithChain(tokenIn.ChainID, "Source chain not supported by aggregator")
		return false
	}
	if !p.cache.IsChainSupported(tokenOut.ChainID) {
		p.logger.DebugWithChain(tokenOut.ChainID, "Destination chain not supported by aggregator")
		return false
	}
	if !p.cache.IsTokenSupported(tokenIn.ChainID, tokenIn.Address) {
		p.logger.DebugWithChain(tokenIn.ChainID, "Source token %s not supported by aggregator", tokenIn.Address.Hex())
		return false
	}
	if !p.cache.IsTokenSupported(tokenOut.ChainID, tokenOut.Address) {
		p.logger.DebugWithChain(tokenOut.ChainID, "Destination token %s not supported by aggregator", tokenOut.Address.Hex())
		return false
	}
	if !p.cache.AreTokensConnected(tokenIn.ChainID, tokenIn.Address, tokenOut.ChainID, tokenOut.Address) {
		p.logger.Debug("Tokens %s (chain %d) and %s (chain %d) are not connected",
			tokenIn.Address.Hex(), tokenIn.ChainID, tokenOut.Address.Hex(), tokenOut.ChainID)
		return false
	}
	return true
}

func (p *Provider) fetchRoutes(ctx context.Context, request routesRequest) ([]Route, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.APIURL+"/v1/advanced/routes", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.Integrator != "" {
		req.Header.Set("X-Lifi-Integrator", p.config.Integrator)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(rberrors.ErrProviderAPI, err.Error())
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(rberrors.ErrProviderAPI, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Wrapf(rberrors.ErrProviderAPI, "routes request returned %d: %s", resp.StatusCode, string(responseBody))
	}

	var payload routesResponse
	if err := json.Unmarshal(responseBody, &payload); err != nil {
		return nil, pkgerrors.Wrap(rberrors.ErrProviderAPI, err.Error())
	}
	return payload.Routes, nil
}

// selectRoute picks the first route; the aggregator returns its best route
// first and no internal ranking is applied.
func selectRoute(routes []Route) (Route, error) {
	if len(routes) == 0 {
		return Route{}, rberrors.ErrRouteNotFound
	}
	return routes[0], nil
}

// slippageRatio computes 1 - min/in as a plain ratio, assuming the tokens
// are 1:1.
func slippageRatio(amountIn, amountOutMin *big.Int) float64 {
	if amountIn.Sign() == 0 {
		return 0
	}
	ratio := decimal.NewFromBigInt(amountOutMin, 0).Div(decimal.NewFromBigInt(amountIn, 0))
	slippage, _ := decimal.NewFromInt(1).Sub(ratio).Round(6).Float64()
	return slippage
}
