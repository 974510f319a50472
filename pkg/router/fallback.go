// Package router finds two-hop rebalancing routes through configured core
// tokens when no provider quotes the pair directly.
package router

import (
	"context"
	"math/big"

	pkgerrors "github.com/pkg/errors"

	rberrors "github.com/solverhq/rebalancer/pkg/errors"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/metrics"
	"github.com/solverhq/rebalancer/pkg/models"
	"github.com/solverhq/rebalancer/pkg/provider"
)

// RouteProber is optionally implemented by providers that can answer route
// support from cached data. The router uses it to skip core tokens no
// provider can serve without spending a quote call.
type RouteProber interface {
	CanRoute(ctx context.Context, tokenIn, tokenOut models.TokenData) bool
}

// minAmountContext is implemented by every strategy context that can state
// its guaranteed minimum output.
type minAmountContext interface {
	MinAmountOut() *big.Int
}

// FallbackRouter routes a pair through an intermediate core token. Core
// tokens are tried in configured priority order and the first token whose
// both legs quote wins; there is no cost comparison across candidates.
type FallbackRouter struct {
	providers  []provider.Provider
	coreTokens []models.CoreToken
	logger     logger.Logger
}

// NewFallbackRouter creates the router. Core token order is priority order.
func NewFallbackRouter(providers []provider.Provider, coreTokens []models.CoreToken, log logger.Logger) *FallbackRouter {
	return &FallbackRouter{
		providers:  providers,
		coreTokens: coreTokens,
		logger:     log,
	}
}

// Route finds a two-leg route for the pair. The second leg's input is the
// first leg's guaranteed minimum output, so the route never promises more
// than the first leg can deliver. Returns ErrRouteNotFound once every core
// token is exhausted.
func (r *FallbackRouter) Route(ctx context.Context, tokenIn, tokenOut models.TokenData, amount *big.Int, id string) ([]models.RebalanceQuote, error) {
	for _, coreToken := range r.coreTokens {
		hop := coreToken.AsTokenData()
		if hop.ChainID == tokenIn.ChainID && hop.Address == tokenIn.Address {
			continue
		}
		if hop.ChainID == tokenOut.ChainID && hop.Address == tokenOut.Address {
			continue
		}

		firstLeg, err := r.quoteLeg(ctx, tokenIn, hop, amount, id)
		if err != nil {
			continue
		}

		secondInput := minAmountOut(firstLeg)
		if secondInput == nil || secondInput.Sign() <= 0 {
			continue
		}
		hop.Balance = secondInput

		secondLeg, err := r.quoteLeg(ctx, hop, tokenOut, secondInput, id)
		if err != nil {
			r.logger.Debug("Core token %s on chain %d quoted the first leg only, trying next",
				coreToken.Address.Hex(), coreToken.ChainID)
			continue
		}

		metrics.CoreTokenFallbacks.WithLabelValues("success").Inc()
		r.logger.Info("Routing %s/%d -> %s/%d through core token %s on chain %d",
			tokenIn.Address.Hex(), tokenIn.ChainID, tokenOut.Address.Hex(), tokenOut.ChainID,
			coreToken.Address.Hex(), coreToken.ChainID)
		return []models.RebalanceQuote{firstLeg, secondLeg}, nil
	}

	metrics.CoreTokenFallbacks.WithLabelValues("exhausted").Inc()
	return nil, pkgerrors.Wrapf(rberrors.ErrRouteNotFound,
		"no core token route from %s on chain %d to %s on chain %d",
		tokenIn.Address.Hex(), tokenIn.ChainID, tokenOut.Address.Hex(), tokenOut.ChainID)
}

// quoteLeg asks the providers for one leg, first-fit. Providers that expose
// a support probe and reject the pair are skipped without a quote call.
func (r *FallbackRouter) quoteLeg(ctx context.Context, tokenIn, tokenOut models.TokenData, amount *big.Int, id string) (models.RebalanceQuote, error) {
	for _, p := range r.providers {
		if prober, ok := p.(RouteProber); ok && !prober.CanRoute(ctx, tokenIn, tokenOut) {
			continue
		}

		quotes, err := p.GetQuote(ctx, tokenIn, tokenOut, amount, id)
		if err != nil {
			if !pkgerrors.Is(err, rberrors.ErrRouteNotFound) {
				r.logger.Debug("Provider %s failed to quote leg: %v", p.Strategy(), err)
			}
			continue
		}
		if len(quotes) == 0 {
			continue
		}
		return quotes[0], nil
	}
	return models.RebalanceQuote{}, rberrors.ErrRouteNotFound
}

// minAmountOut extracts the guaranteed output of a quote, falling back to
// the quoted output when the context cannot state a minimum.
func minAmountOut(quote models.RebalanceQuote) *big.Int {
	if c, ok := quote.Context.(minAmountContext); ok {
		if v := c.MinAmountOut(); v != nil {
			return v
		}
	}
	return quote.AmountOut
}
