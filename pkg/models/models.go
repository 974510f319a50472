package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenData identifies a token position on a chain. It is an immutable
// snapshot supplied by the balance collaborator; the engine never mutates it.
type TokenData struct {
	ChainID  int            `json:"chain_id"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Balance  *big.Int       `json:"balance"`
}

// CoreToken is a configured intermediate hop token used for two-hop routing
// when no direct route exists. The list is read-only and ordered by priority.
type CoreToken struct {
	Address  common.Address `json:"address"`
	ChainID  int            `json:"chain_id"`
	Decimals uint8          `json:"decimals"`
}

// AsTokenData converts the core token to a quoteable token position.
func (c CoreToken) AsTokenData() TokenData {
	return TokenData{
		ChainID:  c.ChainID,
		Address:  c.Address,
		Decimals: c.Decimals,
	}
}

// Strategy identifies the provider that produced a quote. The set is closed:
// a quote's context is only ever interpreted by the provider whose strategy
// tag it carries.
type Strategy string

const (
	StrategyLiFi     Strategy = "LiFi"
	StrategyStargate Strategy = "Stargate"
	StrategyCCTPV2   Strategy = "CCTPV2"
)

// StrategyContext holds provider-specific execution data attached to a quote.
// Each provider defines its own context type and type-asserts it back in
// Execute; contexts are never cross-interpreted between strategies.
type StrategyContext interface {
	Strategy() Strategy
}

// RebalanceQuote is a priced, not-yet-executed description of a proposed
// transfer. Produced by a provider's GetQuote and consumed unchanged by that
// same provider's Execute.
type RebalanceQuote struct {
	AmountIn  *big.Int
	AmountOut *big.Int
	// Slippage is the proportional loss implied by AmountIn/AmountOut for
	// ratio-based providers, or the fee expressed as a percentage for
	// fee-tiered providers. Always recomputable from Context.
	Slippage float64
	TokenIn  TokenData
	TokenOut TokenData
	Strategy Strategy
	Context  StrategyContext
	ID       string
	GroupID  string
	JobID    string
}

// AttestationJob tracks an in-flight asynchronous transfer whose second leg
// is gated on an off-chain attestation. Created when the first-leg burn
// transaction is submitted; owned by the scheduler until the second leg is
// submitted or permanently failed.
type AttestationJob struct {
	GroupID            string          `json:"group_id"`
	JobID              string          `json:"job_id"`
	TransactionHash    common.Hash     `json:"transaction_hash"`
	SourceDomain       uint32          `json:"source_domain"`
	DestinationChainID int             `json:"destination_chain_id"`
	Context            StrategyContext `json:"-"`
	ID                 string          `json:"id,omitempty"`
}

// RebalanceStatus is attached to a job record keyed by job ID. PENDING is the
// only non-terminal value; a record transitions exactly once into SUCCESS or
// FAILED.
type RebalanceStatus string

const (
	RebalancePending RebalanceStatus = "PENDING"
	RebalanceSuccess RebalanceStatus = "SUCCESS"
	RebalanceFailed  RebalanceStatus = "FAILED"
)

// Terminal reports whether the status is a terminal state.
func (s RebalanceStatus) Terminal() bool {
	return s == RebalanceSuccess || s == RebalanceFailed
}

// HealthStatus is the derived verdict of the rebalance health monitor. It is
// recomputed on each check from a rolling window of job outcomes and never
// persisted.
type HealthStatus struct {
	IsHealthy             bool   `json:"is_healthy"`
	SuccessCount          int    `json:"success_count"`
	RejectionCount        int    `json:"rejection_count"`
	LastHourHasRejections bool   `json:"last_hour_has_rejections"`
	LastHourHasSuccesses  bool   `json:"last_hour_has_successes"`
	HealthReason          string `json:"health_reason"`
}

// HealthMetrics carries detailed counts over a configurable time range, used
// for dashboards rather than the boolean health verdict.
type HealthMetrics struct {
	TimeRange      time.Duration `json:"time_range"`
	SuccessCount   int           `json:"success_count"`
	RejectionCount int           `json:"rejection_count"`
	SuccessRate    float64       `json:"success_rate"`
	IsHealthy      bool          `json:"is_healthy"`
	HealthReason   string        `json:"health_reason"`
}
