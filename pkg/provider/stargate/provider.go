// Package stargate implements the fee-API rebalance provider. Chains are
// addressed by bridge-native chain keys resolved through a cached directory,
// and quotes come from a GET fee API that already embeds the transaction
// steps to execute.
package stargate

import (
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/solverhq/rebalancer/pkg/blockchain"
	rberrors "github.com/solverhq/rebalancer/pkg/errors"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/metrics"
	"github.com/solverhq/rebalancer/pkg/models"
	"github.com/solverhq/rebalancer/pkg/provider"
	"github.com/solverhq/rebalancer/pkg/repository"
)

const basisPoints = 10000

// Config holds the fee API endpoint, the signing wallet and the slippage
// tolerance used to derive the minimum destination amount.
type Config struct {
	APIURL        string
	WalletAddress common.Address
	// MaxSlippageBps caps the accepted loss in basis points when computing
	// dstAmountMin for the fee API request.
	MaxSlippageBps int64
}

// Provider is the fee-API rebalance provider.
type Provider struct {
	config     Config
	resolver   *ChainKeyResolver
	signer     blockchain.Signer
	repository repository.RebalanceRepository
	httpClient *http.Client
	logger     logger.Logger
}

var _ provider.Provider = (*Provider)(nil)

// New creates the provider bound to a signer and a chain-key resolver.
func New(config Config, resolver *ChainKeyResolver, signer blockchain.Signer, repo repository.RebalanceRepository, log logger.Logger) *Provider {
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	if config.MaxSlippageBps == 0 {
		config.MaxSlippageBps = 50
	}
	return &Provider{
		config:     config,
		resolver:   resolver,
		signer:     signer,
		repository: repo,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}
}

func (p *Provider) Strategy() models.Strategy {
	return models.StrategyStargate
}

// CanRoute reports whether both ends sit on chains the bridge directory
// knows. Token-level support is only learned from the fee API itself.
func (p *Provider) CanRoute(ctx context.Context, tokenIn, tokenOut models.TokenData) bool {
	return p.resolver.Resolvable(ctx, tokenIn.ChainID, tokenOut.ChainID)
}

// GetQuote resolves both chain keys, asks the fee API for routes and prices
// the first one. Chains the directory does not know fail fast with a route
// error before any fee API call.
func (p *Provider) GetQuote(ctx context.Context, tokenIn, tokenOut models.TokenData, amount *big.Int, id string) ([]models.RebalanceQuote, error) {
	srcChainKey, err := p.resolver.ChainKey(ctx, tokenIn.ChainID)
	if err != nil {
		return nil, rberrors.RouteNotAvailable(
			tokenIn.ChainID, tokenIn.Address.Hex(), tokenOut.ChainID, tokenOut.Address.Hex())
	}
	dstChainKey, err := p.resolver.ChainKey(ctx, tokenOut.ChainID)
	if err != nil {
		return nil, rberrors.RouteNotAvailable(
			tokenIn.ChainID, tokenIn.Address.Hex(), tokenOut.ChainID, tokenOut.Address.Hex())
	}

	dstAmountMin := calculateAmountMin(amount, p.config.MaxSlippageBps)

	query := url.Values{}
	query.Set("srcToken", tokenIn.Address.Hex())
	query.Set("dstToken", tokenOut.Address.Hex())
	query.Set("srcChainKey", srcChainKey)
	query.Set("dstChainKey", dstChainKey)
	query.Set("srcAddress", p.config.WalletAddress.Hex())
	query.Set("dstAddress", p.config.WalletAddress.Hex())
	query.Set("srcAmount", amount.String())
	query.Set("dstAmountMin", dstAmountMin.String())

	start := time.Now()
	routes, err := p.fetchRoutes(ctx, query)
	metrics.QuoteLatency.WithLabelValues(string(p.Strategy())).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderAPIErrors.WithLabelValues(string(p.Strategy()), "routes").Inc()
		return nil, err
	}
	if len(routes) == 0 {
		return nil, rberrors.ErrRouteNotFound
	}

	// The first route is the API's recommended one.
	route := routes[0]

	srcAmount, ok := new(big.Int).SetString(route.SrcAmount, 10)
	if !ok {
		return nil, pkgerrors.Errorf("fee API returned invalid srcAmount %q", route.SrcAmount)
	}
	dstAmount, ok := new(big.Int).SetString(route.DstAmount, 10)
	if !ok {
		return nil, pkgerrors.Errorf("fee API returned invalid dstAmount %q", route.DstAmount)
	}
	routeMin, ok := new(big.Int).SetString(route.DstAmountMin, 10)
	if !ok {
		return nil, pkgerrors.Errorf("fee API returned invalid dstAmountMin %q", route.DstAmountMin)
	}

	return []models.RebalanceQuote{{
		AmountIn:  srcAmount,
		AmountOut: dstAmount,
		Slippage:  slippageRatio(srcAmount, routeMin),
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		Strategy:  p.Strategy(),
		Context:   &RouteContext{Route: route},
		ID:        id,
	}}, nil
}

// Execute submits the quoted route's steps in order, confirming each before
// the next. The job status is updated best-effort; a recording failure never
// masks the execution outcome.
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

	hash, err := p.executeSteps(ctx, routeContext.Route)
	if err != nil {
		p.recordStatus(quote.JobID, models.RebalanceFailed)
		return common.Hash{}, err
	}

	p.recordStatus(quote.JobID, models.RebalanceSuccess)
	return hash, nil
}

func (p *Provider) executeSteps(ctx context.Context, route Route) (common.Hash, error) {
	var lastHash common.Hash
	for i, step := range route.Steps {
		chainID, err := p.resolver.ChainID(ctx, step.ChainKey)
		if err != nil {
			return common.Hash{}, pkgerrors.Wrapf(err, "step %d (%s)", i, step.Type)
		}

		data, err := hexutil.Decode(step.Transaction.Data)
		if err != nil {
			return common.Hash{}, pkgerrors.Wrapf(err, "step %d has invalid calldata", i)
		}
		value := new(big.Int)
		if step.Transaction.Value != "" {
			if _, ok := value.SetString(step.Transaction.Value, 10); !ok {
				return common.Hash{}, pkgerrors.Errorf("step %d has invalid value %q", i, step.Transaction.Value)
			}
		}

		hash, err := p.signer.SendTransaction(ctx, chainID, blockchain.TxParams{
			To:    common.HexToAddress(step.Transaction.To),
			Data:  data,
			Value: value,
		})
		if err != nil {
			return common.Hash{}, pkgerrors.Wrapf(rberrors.ErrExecution, "step %d (%s): %v", i, step.Type, err)
		}

		receipt, err := p.signer.WaitForReceipt(ctx, chainID, hash)
		if err != nil {
			return common.Hash{}, pkgerrors.Wrapf(rberrors.ErrExecution, "step %d (%s) receipt: %v", i, step.Type, err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return common.Hash{}, pkgerrors.Wrapf(rberrors.ErrExecution, "step %d (%s) reverted: %s", i, step.Type, hash.Hex())
		}

		p.logger.DebugWithChain(chainID, "Bridge step %d (%s) confirmed: %s", i, step.Type, hash.Hex())
		lastHash = hash
	}
	return lastHash, nil
}

func (p *Provider) fetchRoutes(ctx context.Context, query url.Values) ([]Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.APIURL+"/v1/routes?"+query.Encode(), nil)
	if err != nil {
		return nil, err
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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(rberrors.ErrProviderAPI, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.Wrapf(rberrors.ErrProviderAPI, "routes request returned %d: %s", resp.StatusCode, string(body))
	}

	var payload routesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, pkgerrors.Wrap(rberrors.ErrProviderAPI, err.Error())
	}
	return payload.Routes, nil
}

func (p *Provider) recordStatus(jobID string, status models.RebalanceStatus) {
	if jobID == "" || p.repository == nil {
		return
	}
	if err := p.repository.UpdateStatus(jobID, status); err != nil {
		p.logger.Error("Failed to record %s for job %s: %v", status, jobID, err)
	}
}

// calculateAmountMin applies a basis-point slippage tolerance, rounding the
// deducted amount up so the minimum never exceeds the tolerance.
func calculateAmountMin(amount *big.Int, slippageBps int64) *big.Int {
	if slippageBps <= 0 {
		return new(big.Int).Set(amount)
	}
	deduction := new(big.Int).Mul(amount, big.NewInt(slippageBps))
	deduction.Add(deduction, big.NewInt(basisPoints-1))
	deduction.Div(deduction, big.NewInt(basisPoints))
	return new(big.Int).Sub(amount, deduction)
}

// slippageRatio computes 1 - dstAmountMin/srcAmount.
func slippageRatio(srcAmount, dstAmountMin *big.Int) float64 {
	if srcAmount.Sign() == 0 {
		return 0
	}
	ratio := decimal.NewFromBigInt(dstAmountMin, 0).Div(decimal.NewFromBigInt(srcAmount, 0))
	slippage, _ := decimal.NewFromInt(1).Sub(ratio).Round(6).Float64()
	return slippage
}
