// Package rebalancer orchestrates quote discovery and execution across the
// configured liquidity providers.
package rebalancer

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/solverhq/rebalancer/pkg/blockchain"
	"github.com/solverhq/rebalancer/pkg/circuitbreaker"
	rberrors "github.com/solverhq/rebalancer/pkg/errors"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/metrics"
	"github.com/solverhq/rebalancer/pkg/models"
	"github.com/solverhq/rebalancer/pkg/provider"
	"github.com/solverhq/rebalancer/pkg/repository"
	"github.com/solverhq/rebalancer/pkg/router"
)

// Service finds and executes rebalancing routes. Direct single-provider
// quotes are preferred; when no provider serves the pair the core-token
// fallback router is consulted before the request is rejected.
type Service struct {
	providers  []provider.Provider
	router     *router.FallbackRouter
	signer     blockchain.Signer
	rebalances repository.RebalanceRepository
	rejections repository.RejectionRepository
	breakers   map[int]*circuitbreaker.CircuitBreaker
	logger     logger.Logger
}

// NewService creates the orchestrator. Providers are consulted in slice
// order; breakers may be nil when circuit breaking is disabled.
func NewService(
	providers []provider.Provider,
	fallback *router.FallbackRouter,
	signer blockchain.Signer,
	rebalances repository.RebalanceRepository,
	rejections repository.RejectionRepository,
	breakers map[int]*circuitbreaker.CircuitBreaker,
	log logger.Logger,
) *Service {
	return &Service{
		providers:  providers,
		router:     fallback,
		signer:     signer,
		rebalances: rebalances,
		rejections: rejections,
		breakers:   breakers,
		logger:     log,
	}
}

// GetRebalancingQuotes prices a transfer. Every provider is asked for a
// direct quote and the cheapest by slippage wins; with no direct quote the
// request falls back to two-hop routing through a core token. Exhaustion is
// recorded as a rejection and returns ErrRouteNotFound.
func (s *Service) GetRebalancingQuotes(ctx context.Context, tokenIn, tokenOut models.TokenData, amount *big.Int) ([]models.RebalanceQuote, error) {
	requestID := uuid.New().String()

	var best *models.RebalanceQuote
	for _, p := range s.providers {
		quotes, err := p.GetQuote(ctx, tokenIn, tokenOut, amount, requestID)
		if err != nil {
			if pkgerrors.Is(err, rberrors.ErrRouteNotFound) {
				metrics.QuoteRequests.WithLabelValues(string(p.Strategy()), "no_route").Inc()
			} else {
				metrics.QuoteRequests.WithLabelValues(string(p.Strategy()), "error").Inc()
				s.logger.Error("Provider %s quote failed: %v", p.Strategy(), err)
			}
			continue
		}
		if len(quotes) == 0 {
			continue
		}

		metrics.QuoteRequests.WithLabelValues(string(p.Strategy()), "success").Inc()
		quote := quotes[0]
		if best == nil || quote.Slippage < best.Slippage {
			best = &quote
		}
	}
	if best != nil {
		return []models.RebalanceQuote{*best}, nil
	}

	quotes, err := s.router.Route(ctx, tokenIn, tokenOut, amount, requestID)
	if err != nil {
		s.recordRejection(tokenIn, tokenOut, err)
		return nil, err
	}
	return quotes, nil
}

// Execute runs the quotes of one rebalance in order, each leg registered
// as a PENDING job first. A leg failure stops the sequence; remaining legs
// are never attempted with funds the failed leg did not deliver.
func (s *Service) Execute(ctx context.Context, quotes []models.RebalanceQuote) error {
	groupID := uuid.New().String()

	for i := range quotes {
		quote := quotes[i]
		quote.GroupID = groupID
		quote.JobID = uuid.New().String()

		if err := s.checkBreakers(quote); err != nil {
			return err
		}

		if err := s.rebalances.Create(quote.JobID, groupID); err != nil {
			s.logger.Error("Failed to register job %s: %v", quote.JobID, err)
		}

		p, err := s.providerFor(quote.Strategy)
		if err != nil {
			s.markFailed(quote.JobID)
			return err
		}

		start := time.Now()
		hash, err := p.Execute(ctx, s.signer.Address(), quote)
		metrics.ExecutionLatency.WithLabelValues(string(quote.Strategy)).Observe(time.Since(start).Seconds())
		if err != nil {
			s.markFailed(quote.JobID)
			s.recordBreakerFailure(quote)
			metrics.RebalancesExecuted.WithLabelValues(string(quote.Strategy), "failed").Inc()
			return pkgerrors.Wrapf(err, "leg %d/%d", i+1, len(quotes))
		}

		// Asynchronous transfers stay PENDING until their second leg lands;
		// the attestation poller owns the terminal transition.
		if quote.Strategy != models.StrategyCCTPV2 {
			if updateErr := s.rebalances.UpdateStatus(quote.JobID, models.RebalanceSuccess); updateErr != nil {
				s.logger.Error("Failed to record SUCCESS for job %s: %v", quote.JobID, updateErr)
			}
			metrics.RebalancesExecuted.WithLabelValues(string(quote.Strategy), "success").Inc()
		}

		s.logger.InfoWithChain(quote.TokenIn.ChainID, "Rebalance leg %d/%d via %s submitted: %s",
			i+1, len(quotes), quote.Strategy, hash.Hex())
	}

	return nil
}

// Rebalance quotes and executes in one call.
func (s *Service) Rebalance(ctx context.Context, tokenIn, tokenOut models.TokenData, amount *big.Int) error {
	quotes, err := s.GetRebalancingQuotes(ctx, tokenIn, tokenOut, amount)
	if err != nil {
		return err
	}
	return s.Execute(ctx, quotes)
}

func (s *Service) providerFor(strategy models.Strategy) (provider.Provider, error) {
	for _, p := range s.providers {
		if p.Strategy() == strategy {
			return p, nil
		}
	}
	return nil, pkgerrors.Errorf("no provider registered for strategy %s", strategy)
}

func (s *Service) checkBreakers(quote models.RebalanceQuote) error {
	for _, chainID := range []int{quote.TokenIn.ChainID, quote.TokenOut.ChainID} {
		if cb, ok := s.breakers[chainID]; ok && cb.IsOpen() {
			return pkgerrors.Wrapf(rberrors.ErrExecution, "circuit breaker open for chain %d", chainID)
		}
	}
	return nil
}

func (s *Service) recordBreakerFailure(quote models.RebalanceQuote) {
	if cb, ok := s.breakers[quote.TokenIn.ChainID]; ok {
		cb.RecordFailure()
	}
}

func (s *Service) markFailed(jobID string) {
	if err := s.rebalances.UpdateStatus(jobID, models.RebalanceFailed); err != nil {
		s.logger.Error("Failed to record FAILED for job %s: %v", jobID, err)
	}
}

func (s *Service) recordRejection(tokenIn, tokenOut models.TokenData, cause error) {
	reason := pkgerrors.Cause(cause).Error()
	s.logger.Notice("Rebalance %s/%d -> %s/%d rejected: %v",
		tokenIn.Address.Hex(), tokenIn.ChainID, tokenOut.Address.Hex(), tokenOut.ChainID, cause)
	metrics.QuoteRejections.WithLabelValues("all").Inc()
	if err := s.rejections.RecordRejection("", reason); err != nil {
		s.logger.Error("Failed to record rejection: %v", err)
	}
}
