package stargate

import (
	"math/big"

	"github.com/solverhq/rebalancer/pkg/models"
)

// Route is a single bridging route returned by the fee API, including the
// ordered transaction steps the caller must submit to realize it.
type Route struct {
	SrcAmount    string `json:"srcAmount"`
	DstAmount    string `json:"dstAmount"`
	DstAmountMin string `json:"dstAmountMin"`
	Duration     struct {
		Estimated float64 `json:"estimated"`
	} `json:"duration"`
	Steps []Step `json:"steps"`
}

// Step is one transaction in a route. Approval steps carry the token
// allowance transaction, bridge steps the actual transfer.
type Step struct {
	Type        string          `json:"type"`
	ChainKey    string          `json:"chainKey"`
	Transaction TransactionData `json:"transaction"`
}

// TransactionData is the raw calldata for a step.
type TransactionData struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type routesResponse struct {
	Routes []Route `json:"routes"`
}

// RouteContext carries the selected route through to execution.
type RouteContext struct {
	Route Route
}

// Strategy implements models.StrategyContext.
func (c *RouteContext) Strategy() models.Strategy {
	return models.StrategyStargate
}

// MinAmountOut returns the route's guaranteed minimum output, or nil if the
// API returned a malformed amount.
func (c *RouteContext) MinAmountOut() *big.Int {
	v, ok := new(big.Int).SetString(c.Route.DstAmountMin, 10)
	if !ok {
		return nil
	}
	return v
}
