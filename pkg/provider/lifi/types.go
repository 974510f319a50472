package lifi

import (
	"encoding/json"
	"math/big"

	"github.com/solverhq/rebalancer/pkg/models"
)

// routesRequest is the body sent to the route aggregation API.
type routesRequest struct {
	FromAddress      string `json:"fromAddress"`
	FromChainID      int    `json:"fromChainId"`
	FromTokenAddress string `json:"fromTokenAddress"`
	FromAmount       string `json:"fromAmount"`
	ToAddress        string `json:"toAddress"`
	ToChainID        int    `json:"toChainId"`
	ToTokenAddress   string `json:"toTokenAddress"`
}

type routesResponse struct {
	Routes []Route `json:"routes"`
}

// Route is one aggregator route. Steps carry the opaque transaction payloads
// the aggregator expects to be replayed verbatim; the engine never inspects
// them beyond the submission fields.
type Route struct {
	ID          string `json:"id"`
	FromAmount  string `json:"fromAmount"`
	ToAmount    string `json:"toAmount"`
	ToAmountMin string `json:"toAmountMin"`
	GasCostUSD  string `json:"gasCostUSD,omitempty"`
	Steps       []Step `json:"steps"`
}

// Step is a single leg of a route with its prepared transaction.
type Step struct {
	Type               string             `json:"type"`
	Tool               string             `json:"tool"`
	TransactionRequest TransactionRequest `json:"transactionRequest"`
	Raw                json.RawMessage    `json:"-"`
}

// TransactionRequest is the prepared call payload for one step.
type TransactionRequest struct {
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value,omitempty"`
	ChainID int    `json:"chainId"`
}

// RouteContext is the strategy context attached to LiFi quotes.
type RouteContext struct {
	Route Route
}

var _ models.StrategyContext = (*RouteContext)(nil)

func (*RouteContext) Strategy() models.Strategy { return models.StrategyLiFi }

// MinAmountOut returns the route's worst-case output, used by the fallback
// router to size the second leg.
func (c *RouteContext) MinAmountOut() *big.Int {
	min, ok := new(big.Int).SetString(c.Route.ToAmountMin, 10)
	if !ok {
		return new(big.Int)
	}
	return min
}
