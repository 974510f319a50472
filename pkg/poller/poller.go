// Package poller drives pending burn-and-mint transfers to completion. It
// handles scheduled attestation jobs: polls the attestation service for each
// burn and submits the mint leg once the attestation is signed.
package poller

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/metrics"
	"github.com/solverhq/rebalancer/pkg/models"
	"github.com/solverhq/rebalancer/pkg/provider/cctp"
	"github.com/solverhq/rebalancer/pkg/repository"
	"github.com/solverhq/rebalancer/pkg/scheduler"
)

// AttestationPoller completes asynchronous transfers once their attestations
// are available. One handler invocation performs at most one poll; a pending
// attestation is re-enqueued rather than busy-waited.
type AttestationPoller struct {
	provider   *cctp.Provider
	scheduler  scheduler.Scheduler
	repository repository.RebalanceRepository
	options    Options
	logger     logger.Logger
}

// Options controls re-poll behavior.
type Options struct {
	// RetryDelay is the wait between polls for a still-pending attestation.
	RetryDelay time.Duration
}

// NewAttestationPoller creates the poller.
func NewAttestationPoller(p *cctp.Provider, sched scheduler.Scheduler, repo repository.RebalanceRepository, options Options, log logger.Logger) *AttestationPoller {
	if options.RetryDelay == 0 {
		options.RetryDelay = 10 * time.Second
	}
	return &AttestationPoller{
		provider:   p,
		scheduler:  sched,
		repository: repo,
		options:    options,
		logger:     log,
	}
}

// Register binds the poller to the attestation job type.
func (p *AttestationPoller) Register(sched *scheduler.InProcess) {
	sched.Register(cctp.JobTypeAttestation, p.Handle)
}

// Handle processes one attestation job. A pending attestation re-enqueues
// the job and reports success; only a failed mint submission is an error.
func (p *AttestationPoller) Handle(ctx context.Context, payload interface{}) error {
	job, ok := payload.(models.AttestationJob)
	if !ok {
		return errors.Errorf("unexpected attestation payload %T", payload)
	}

	att := p.provider.FetchAttestation(ctx, job.SourceDomain, job.TransactionHash)
	if !att.Complete {
		p.logger.Debug("Attestation for %s still pending, re-enqueueing", job.TransactionHash.Hex())
		return p.scheduler.Schedule(cctp.JobTypeAttestation, job, scheduler.Options{Delay: p.options.RetryDelay})
	}

	hash, err := p.provider.ReceiveMessage(ctx, job.DestinationChainID, att)
	if err != nil {
		p.recordStatus(job.JobID, models.RebalanceFailed)
		metrics.AttestationJobsInFlight.Dec()
		return errors.Wrapf(err, "mint for burn %s", job.TransactionHash.Hex())
	}

	p.recordStatus(job.JobID, models.RebalanceSuccess)
	metrics.AttestationJobsInFlight.Dec()
	metrics.RebalancesExecuted.WithLabelValues(string(models.StrategyCCTPV2), "success").Inc()
	p.logger.InfoWithChain(job.DestinationChainID, "Mint submitted for burn %s: %s",
		job.TransactionHash.Hex(), hash.Hex())
	return nil
}

func (p *AttestationPoller) recordStatus(jobID string, status models.RebalanceStatus) {
	if jobID == "" || p.repository == nil {
		return
	}
	if err := p.repository.UpdateStatus(jobID, status); err != nil {
		p.logger.Error("Failed to record %s for job %s: %v", status, jobID, err)
	}
}
