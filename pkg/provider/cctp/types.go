package cctp

import (
	"math/big"

	"github.com/solverhq/rebalancer/pkg/models"
)

// Transfer speed tiers, keyed by the protocol's finality thresholds. A fee
// entry at or below FastFinalityThreshold is the fast tier; at or below
// StandardFinalityThreshold the standard tier.
const (
	FastFinalityThreshold     uint32 = 1000
	StandardFinalityThreshold uint32 = 2000
)

// feeEntry is one tier of the burn fee schedule.
type feeEntry struct {
	FinalityThreshold uint32 `json:"finalityThreshold"`
	MinimumFee        int64  `json:"minimumFee"`
}

// attestationMessage is one entry of the attestation API response. The
// attestation is complete only when Status is "complete" and Attestation no
// longer reads "PENDING".
type attestationMessage struct {
	Attestation string `json:"attestation"`
	Message     string `json:"message"`
	Status      string `json:"status"`
	EventNonce  string `json:"eventNonce"`
}

type attestationResponse struct {
	Messages []attestationMessage `json:"messages"`
}

// Attestation is the poll result for a burn. Message and Signature are only
// populated when Complete is true.
type Attestation struct {
	Complete  bool
	Message   []byte
	Signature []byte
}

// BurnContext carries everything needed to execute the burn leg and later
// mint the attested funds on the destination chain.
type BurnContext struct {
	SourceDomain         uint32
	DestinationDomain    uint32
	DestinationChainID   int
	MinFinalityThreshold uint32
	// FeeBps is the applied tier's fee in basis points; MaxFee is the
	// absolute fee implied by FeeBps over AmountIn.
	FeeBps    int64
	MaxFee    *big.Int
	AmountOut *big.Int
}

// Strategy implements models.StrategyContext.
func (c *BurnContext) Strategy() models.Strategy {
	return models.StrategyCCTPV2
}

// MinAmountOut returns the guaranteed output. Burn-and-mint transfers have a
// deterministic fee, so the output equals the quoted amount exactly.
func (c *BurnContext) MinAmountOut() *big.Int {
	return c.AmountOut
}
