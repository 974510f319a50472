// Package cctp implements the burn-and-mint rebalance provider for native
// USDC. Transfers are asynchronous: the first leg burns on the source chain,
// an off-chain attestation service signs the burn after the configured
// finality depth, and a scheduled follow-up job mints on the destination.
package cctp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/solverhq/rebalancer/pkg/blockchain"
	rberrors "github.com/solverhq/rebalancer/pkg/errors"
	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/metrics"
	"github.com/solverhq/rebalancer/pkg/models"
	"github.com/solverhq/rebalancer/pkg/provider"
	"github.com/solverhq/rebalancer/pkg/repository"
	"github.com/solverhq/rebalancer/pkg/scheduler"
)

// JobTypeAttestation is the scheduler job type for pending mint legs.
const JobTypeAttestation = "cctp_attestation"

const basisPoints = 10000

// ChainConfig is the per-chain protocol deployment.
type ChainConfig struct {
	Domain             uint32
	USDC               common.Address
	TokenMessenger     common.Address
	MessageTransmitter common.Address
}

// Config holds the attestation/fee API endpoint and the per-chain protocol
// deployments. Only chains present in Chains are routable, and only their
// configured USDC address is accepted on either end.
type Config struct {
	APIURL        string
	WalletAddress common.Address
	Chains        map[int]ChainConfig
	// FastTransfers selects the low-finality fee tier when available.
	FastTransfers bool
	// AttestationDelay is the wait before the first attestation poll.
	AttestationDelay time.Duration
}

// Provider is the burn-and-mint rebalance provider.
type Provider struct {
	config     Config
	signer     blockchain.Signer
	scheduler  scheduler.Scheduler
	repository repository.RebalanceRepository
	httpClient *http.Client
	logger     logger.Logger
}

var _ provider.Provider = (*Provider)(nil)

// New creates the provider. The caller must register an attestation handler
// for JobTypeAttestation on the same scheduler before starting it.
func New(config Config, signer blockchain.Signer, sched scheduler.Scheduler, repo repository.RebalanceRepository, log logger.Logger) *Provider {
	config.APIURL = strings.TrimRight(config.APIURL, "/")
	if config.AttestationDelay == 0 {
		config.AttestationDelay = 30 * time.Second
	}
	return &Provider{
		config:     config,
		signer:     signer,
		scheduler:  sched,
		repository: repo,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log,
	}
}

func (p *Provider) Strategy() models.Strategy {
	return models.StrategyCCTPV2
}

// CanRoute reports whether both ends are the configured native USDC on a
// configured chain. The provider moves nothing else.
func (p *Provider) CanRoute(_ context.Context, tokenIn, tokenOut models.TokenData) bool {
	srcChain, srcOK := p.config.Chains[tokenIn.ChainID]
	dstChain, dstOK := p.config.Chains[tokenOut.ChainID]
	return srcOK && dstOK && tokenIn.Address == srcChain.USDC && tokenOut.Address == dstChain.USDC
}

// GetQuote prices a burn-and-mint transfer. Both ends must be the configured
// native USDC on a configured chain. A fee API outage degrades to the
// standard tier with zero fee rather than failing the quote.
func (p *Provider) GetQuote(ctx context.Context, tokenIn, tokenOut models.TokenData, amount *big.Int, id string) ([]models.RebalanceQuote, error) {
	if !p.CanRoute(ctx, tokenIn, tokenOut) {
		return nil, rberrors.RouteNotAvailable(
			tokenIn.ChainID, tokenIn.Address.Hex(), tokenOut.ChainID, tokenOut.Address.Hex())
	}
	srcChain := p.config.Chains[tokenIn.ChainID]
	dstChain := p.config.Chains[tokenOut.ChainID]

	feeBps, finality := p.resolveFeeTier(ctx, srcChain.Domain, dstChain.Domain)

	fee := new(big.Int).Mul(amount, big.NewInt(feeBps))
	fee.Div(fee, big.NewInt(basisPoints))
	amountOut := new(big.Int).Sub(amount, fee)
	if amountOut.Sign() <= 0 {
		return nil, pkgerrors.Wrapf(rberrors.ErrRouteNotFound,
			"amount %s does not cover the %d bps transfer fee", amount, feeBps)
	}

	slippage, _ := decimal.NewFromInt(feeBps).Div(decimal.NewFromInt(100)).Round(4).Float64()

	return []models.RebalanceQuote{{
		AmountIn:  new(big.Int).Set(amount),
		AmountOut: amountOut,
		Slippage:  slippage,
		TokenIn:   tokenIn,
		TokenOut:  tokenOut,
		Strategy:  p.Strategy(),
		Context: &BurnContext{
			SourceDomain:         srcChain.Domain,
			DestinationDomain:    dstChain.Domain,
			DestinationChainID:   tokenOut.ChainID,
			MinFinalityThreshold: finality,
			FeeBps:               feeBps,
			MaxFee:               fee,
			AmountOut:            amountOut,
		},
		ID: id,
	}}, nil
}

// Execute submits the burn leg as an approve/depositForBurn batch and
// schedules the attestation follow-up. The returned hash is the first-leg
// burn; the mint happens asynchronously once the attestation lands.
func (p *Provider) Execute(ctx context.Context, walletAddress common.Address, quote models.RebalanceQuote) (common.Hash, error) {
	if walletAddress != p.config.WalletAddress {
		p.logger.Error("Refusing to execute for wallet %s, configured signer is %s",
			walletAddress.Hex(), p.config.WalletAddress.Hex())
		return common.Hash{}, rberrors.ErrSignerMismatch
	}

	burnContext, ok := quote.Context.(*BurnContext)
	if !ok || quote.Strategy != p.Strategy() {
		return common.Hash{}, rberrors.ErrContextMismatch
	}

	hash, err := p.submitBurn(ctx, quote, burnContext)
	if err != nil {
		p.recordStatus(quote.JobID, models.RebalanceFailed)
		return common.Hash{}, err
	}

	job := models.AttestationJob{
		GroupID:            quote.GroupID,
		JobID:              quote.JobID,
		TransactionHash:    hash,
		SourceDomain:       burnContext.SourceDomain,
		DestinationChainID: burnContext.DestinationChainID,
		Context:            burnContext,
	}
	if err := p.scheduler.Schedule(JobTypeAttestation, job, scheduler.Options{Delay: p.config.AttestationDelay}); err != nil {
		p.recordStatus(quote.JobID, models.RebalanceFailed)
		return common.Hash{}, pkgerrors.Wrapf(err, "burn %s confirmed but attestation job not scheduled", hash.Hex())
	}

	metrics.AttestationJobsInFlight.Inc()
	p.logger.InfoWithChain(quote.TokenIn.ChainID, "Burn submitted: %s, mint on chain %d pending attestation",
		hash.Hex(), burnContext.DestinationChainID)
	return hash, nil
}

func (p *Provider) submitBurn(ctx context.Context, quote models.RebalanceQuote, burnContext *BurnContext) (common.Hash, error) {
	chainConfig := p.config.Chains[quote.TokenIn.ChainID]

	approveABI, err := getApproveABI()
	if err != nil {
		return common.Hash{}, err
	}
	messengerABI, err := getTokenMessengerABI()
	if err != nil {
		return common.Hash{}, err
	}

	approveData, err := approveABI.Pack("approve", chainConfig.TokenMessenger, quote.AmountIn)
	if err != nil {
		return common.Hash{}, pkgerrors.Wrap(err, "failed to pack approve")
	}

	mintRecipient := addressToBytes32(p.config.WalletAddress)
	burnData, err := messengerABI.Pack("depositForBurn",
		quote.AmountIn,
		burnContext.DestinationDomain,
		mintRecipient,
		quote.TokenIn.Address,
		[32]byte{},
		burnContext.MaxFee,
		burnContext.MinFinalityThreshold,
	)
	if err != nil {
		return common.Hash{}, pkgerrors.Wrap(err, "failed to pack depositForBurn")
	}

	hash, err := p.signer.Execute(ctx, quote.TokenIn.ChainID, []blockchain.Call{
		{To: quote.TokenIn.Address, Data: approveData},
		{To: chainConfig.TokenMessenger, Data: burnData},
	})
	if err != nil {
		return common.Hash{}, pkgerrors.Wrapf(rberrors.ErrExecution, "burn batch failed: %v", err)
	}
	return hash, nil
}

// FetchAttestation polls the attestation API for a burn. Transport errors,
// bad statuses and malformed payloads all report a pending attestation so
// the caller keeps polling instead of failing the transfer.
func (p *Provider) FetchAttestation(ctx context.Context, sourceDomain uint32, txHash common.Hash) (result Attestation) {
	defer func() {
		outcome := "pending"
		if result.Complete {
			outcome = "complete"
		}
		metrics.AttestationChecks.WithLabelValues(outcome).Inc()
	}()

	url := fmt.Sprintf("%s/v2/messages/%d?transactionHash=%s", p.config.APIURL, sourceDomain, txHash.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Attestation{}
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Debug("Attestation fetch for %s failed, treating as pending: %v", txHash.Hex(), err)
		return Attestation{}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Error("Failed to close response body: %v", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		p.logger.Debug("Attestation fetch for %s returned %d, treating as pending", txHash.Hex(), resp.StatusCode)
		return Attestation{}
	}

	var payload attestationResponse
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Messages) == 0 {
		return Attestation{}
	}

	message := payload.Messages[0]
	if message.Attestation == "PENDING" || message.Status != "complete" {
		return Attestation{}
	}

	messageBytes, err := hexutil.Decode(message.Message)
	if err != nil {
		p.logger.Error("Attestation for %s carries invalid message bytes: %v", txHash.Hex(), err)
		return Attestation{}
	}
	signature, err := hexutil.Decode(message.Attestation)
	if err != nil {
		p.logger.Error("Attestation for %s carries invalid signature bytes: %v", txHash.Hex(), err)
		return Attestation{}
	}

	return Attestation{Complete: true, Message: messageBytes, Signature: signature}
}

// ReceiveMessage submits the mint leg on the destination chain. The
// transaction is not waited on; the funds land when it mines.
func (p *Provider) ReceiveMessage(ctx context.Context, chainID int, att Attestation) (common.Hash, error) {
	chainConfig, ok := p.config.Chains[chainID]
	if !ok {
		return common.Hash{}, pkgerrors.Errorf("no protocol deployment configured for chain %d", chainID)
	}

	transmitterABI, err := getMessageTransmitterABI()
	if err != nil {
		return common.Hash{}, err
	}

	hash, err := p.signer.WriteContract(ctx, chainID, blockchain.WriteParams{
		Address: chainConfig.MessageTransmitter,
		ABI:     &transmitterABI,
		Method:  "receiveMessage",
		Args:    []interface{}{att.Message, att.Signature},
	})
	if err != nil {
		return common.Hash{}, pkgerrors.Wrapf(rberrors.ErrExecution, "receiveMessage on chain %d: %v", chainID, err)
	}
	return hash, nil
}

// resolveFeeTier fetches the fee schedule and picks the tier matching the
// configured transfer speed. Failures fall back to the standard tier with a
// zero fee so transient fee API outages never block rebalancing.
func (p *Provider) resolveFeeTier(ctx context.Context, srcDomain, dstDomain uint32) (feeBps int64, finality uint32) {
	entries, err := p.fetchFees(ctx, srcDomain, dstDomain)
	if err != nil {
		metrics.ProviderAPIErrors.WithLabelValues(string(p.Strategy()), "fees").Inc()
		p.logger.Error("Fee schedule %d->%d unavailable, using standard tier with zero fee: %v", srcDomain, dstDomain, err)
		return 0, StandardFinalityThreshold
	}
	return selectFeeTier(entries, p.config.FastTransfers)
}

func (p *Provider) fetchFees(ctx context.Context, srcDomain, dstDomain uint32) ([]feeEntry, error) {
	url := fmt.Sprintf("%s/v2/burn/USDC/fees/%d/%d", p.config.APIURL, srcDomain, dstDomain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
		return nil, pkgerrors.Wrapf(rberrors.ErrProviderAPI, "fee request returned %d: %s", resp.StatusCode, string(body))
	}

	var entries []feeEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, pkgerrors.Wrap(rberrors.ErrProviderAPI, err.Error())
	}
	return entries, nil
}

// selectFeeTier picks the fast tier when requested and present, otherwise
// the standard tier. An empty or unrecognizable schedule yields the standard
// tier with zero fee.
func selectFeeTier(entries []feeEntry, fast bool) (int64, uint32) {
	if fast {
		for _, entry := range entries {
			if entry.FinalityThreshold <= FastFinalityThreshold {
				return entry.MinimumFee, FastFinalityThreshold
			}
		}
	}
	for _, entry := range entries {
		if entry.FinalityThreshold > FastFinalityThreshold && entry.FinalityThreshold <= StandardFinalityThreshold {
			return entry.MinimumFee, StandardFinalityThreshold
		}
	}
	return 0, StandardFinalityThreshold
}

func (p *Provider) recordStatus(jobID string, status models.RebalanceStatus) {
	if jobID == "" || p.repository == nil {
		return
	}
	if err := p.repository.UpdateStatus(jobID, status); err != nil {
		p.logger.Error("Failed to record %s for job %s: %v", status, jobID, err)
	}
}

func addressToBytes32(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[12:], addr.Bytes())
	return out
}
