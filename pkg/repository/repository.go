// Package repository records rebalance job outcomes and quote rejections.
// Durable persistence lives outside this engine; consumers depend only on
// the interfaces here.
package repository

import (
	"time"

	"github.com/solverhq/rebalancer/pkg/models"
)

// RebalanceRepository stores job status transitions. Status updates from
// execution paths are best-effort: a failure to record must never mask the
// execution error it accompanies.
type RebalanceRepository interface {
	// Create registers a job in the PENDING state.
	Create(jobID, groupID string) error

	// UpdateStatus moves a job to the given status. Moving a job that is
	// already terminal is a no-op.
	UpdateStatus(jobID string, status models.RebalanceStatus) error

	// SuccessCountSince returns the number of jobs that reached SUCCESS at
	// or after the cutoff.
	SuccessCountSince(cutoff time.Time) (int, error)
}

// RejectionRepository stores quote rejections (no supported route found for
// a requested rebalance).
type RejectionRepository interface {
	// RecordRejection stores one rejection event.
	RecordRejection(strategy models.Strategy, reason string) error

	// RejectionCountSince returns the number of rejections recorded at or
	// after the cutoff.
	RejectionCountSince(cutoff time.Time) (int, error)
}
