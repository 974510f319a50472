package repository

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/solverhq/rebalancer/pkg/models"
)

// retention bounds how long terminal records and rejections are kept before
// pruning; the health monitor only ever looks one hour back.
const retention = 2 * time.Hour

type jobRecord struct {
	groupID    string
	status     models.RebalanceStatus
	finishedAt time.Time
}

type rejectionRecord struct {
	strategy models.Strategy
	reason   string
	at       time.Time
}

// MemoryRepository is the in-process implementation of both repository
// interfaces, used in deployments where the durable store is owned by an
// external service and for tests.
type MemoryRepository struct {
	mu         sync.Mutex
	jobs       map[string]*jobRecord
	rejections []rejectionRecord
	now        func() time.Time
}

var (
	_ RebalanceRepository = (*MemoryRepository)(nil)
	_ RejectionRepository = (*MemoryRepository)(nil)
)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs: make(map[string]*jobRecord),
		now:  time.Now,
	}
}

func (r *MemoryRepository) Create(jobID, groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[jobID]; exists {
		return errors.Errorf("job %s already exists", jobID)
	}
	r.jobs[jobID] = &jobRecord{groupID: groupID, status: models.RebalancePending}
	return nil
}

func (r *MemoryRepository) UpdateStatus(jobID string, status models.RebalanceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.jobs[jobID]
	if !ok {
		return errors.Errorf("job %s not found", jobID)
	}
	if record.status.Terminal() {
		return nil
	}

	record.status = status
	if status.Terminal() {
		record.finishedAt = r.now()
	}
	return nil
}

// Status returns the current status of a job.
func (r *MemoryRepository) Status(jobID string) (models.RebalanceStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.jobs[jobID]
	if !ok {
		return "", errors.Errorf("job %s not found", jobID)
	}
	return record.status, nil
}

func (r *MemoryRepository) SuccessCountSince(cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	count := 0
	for _, record := range r.jobs {
		if record.status == models.RebalanceSuccess && !record.finishedAt.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) RecordRejection(strategy models.Strategy, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rejections = append(r.rejections, rejectionRecord{strategy: strategy, reason: reason, at: r.now()})
	return nil
}

func (r *MemoryRepository) RejectionCountSince(cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune()
	count := 0
	for _, rejection := range r.rejections {
		if !rejection.at.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

// prune drops records older than the retention window. Caller holds r.mu.
func (r *MemoryRepository) prune() {
	cutoff := r.now().Add(-retention)

	for jobID, record := range r.jobs {
		if record.status.Terminal() && record.finishedAt.Before(cutoff) {
			delete(r.jobs, jobID)
		}
	}

	kept := r.rejections[:0]
	for _, rejection := range r.rejections {
		if !rejection.at.Before(cutoff) {
			kept = append(kept, rejection)
		}
	}
	r.rejections = kept
}
