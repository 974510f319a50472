// Package provider defines the uniform contract implemented by every
// rebalance liquidity provider.
package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/solverhq/rebalancer/pkg/models"
)

// Provider is the quote/execute contract shared by all liquidity providers.
//
// GetQuote is a pure query: it may call external price or route APIs but has
// no side effects, and must validate chain and token support before issuing
// any network call, so an unsupported route fails fast with
// errors.ErrRouteNotFound rather than a provider API error.
//
// Execute consumes a quote produced by the same provider's GetQuote. Where
// the provider is bound to a configured signer it must verify the given
// wallet address matches before submitting anything. Synchronous providers
// return a finalized transaction hash; asynchronous providers return the
// first-leg hash and schedule a follow-up job.
type Provider interface {
	Strategy() models.Strategy
	GetQuote(ctx context.Context, tokenIn, tokenOut models.TokenData, amount *big.Int, id string) ([]models.RebalanceQuote, error)
	Execute(ctx context.Context, walletAddress common.Address, quote models.RebalanceQuote) (common.Hash, error)
}
