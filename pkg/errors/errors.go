// Package errors defines the sentinel errors shared across the rebalancing
// engine. Callers classify failures with errors.Is against these values;
// context is layered on with github.com/pkg/errors wrapping.
package errors

import "github.com/pkg/errors"

var (
	// ErrRouteNotFound means no supported path exists between the requested
	// tokens: unsupported chain, unsupported token, unconnected pair, or all
	// core-token fallbacks exhausted. Raised before any network call where
	// possible and never retried internally.
	ErrRouteNotFound = errors.New("rebalancing route not found")

	// ErrSignerMismatch means the wallet address passed to Execute does not
	// match the provider's configured signer. Always fatal.
	ErrSignerMismatch = errors.New("provider is not configured with the given wallet")

	// ErrChainKeyResolution means a chain ID or provider chain key could not
	// be resolved after a directory load attempt.
	ErrChainKeyResolution = errors.New("chain key could not be resolved")

	// ErrProviderAPI means an external quote, fee, or attestation API was
	// unreachable or returned an error status.
	ErrProviderAPI = errors.New("provider API request failed")

	// ErrExecution means a signing, broadcast, or on-chain call failed.
	ErrExecution = errors.New("rebalance execution failed")

	// ErrContextMismatch means a quote carried a strategy context that does
	// not belong to the provider asked to execute it.
	ErrContextMismatch = errors.New("quote context does not match provider strategy")
)

// RouteNotAvailable wraps ErrRouteNotFound with the rejected pair.
func RouteNotAvailable(chainIn int, tokenIn string, chainOut int, tokenOut string) error {
	return errors.Wrapf(ErrRouteNotFound, "no route from %s on chain %d to %s on chain %d",
		tokenIn, chainIn, tokenOut, chainOut)
}
