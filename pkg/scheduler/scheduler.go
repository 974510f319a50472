// Package scheduler provides the task scheduler the rebalancing engine hands
// follow-up jobs to. Retry and backoff policy belongs here, not in the
// components that enqueue work.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/solverhq/rebalancer/pkg/logger"
	"github.com/solverhq/rebalancer/pkg/metrics"
)

// Options controls how a scheduled job is run.
type Options struct {
	// Delay postpones the first execution.
	Delay time.Duration
}

// HandlerFunc processes one job payload. Returning an error marks the run
// failed; re-enqueueing is the handler's own decision.
type HandlerFunc func(ctx context.Context, payload interface{}) error

// Scheduler enqueues follow-up jobs by type.
type Scheduler interface {
	Schedule(jobType string, payload interface{}, opts Options) error
}

type job struct {
	jobType string
	payload interface{}
	dueAt   time.Time
}

// InProcess is a single-process Scheduler. A cron-driven sweep runs due jobs
// on registered handlers; jobs scheduled for an unregistered type are
// rejected at enqueue time.
type InProcess struct {
	mu       sync.Mutex
	pending  []job
	handlers map[string]HandlerFunc
	cron     *cron.Cron
	logger   logger.Logger
	ctx      context.Context
	wg       sync.WaitGroup
}

var _ Scheduler = (*InProcess)(nil)

// NewInProcess creates a stopped scheduler; call Register then Start.
func NewInProcess(log logger.Logger) *InProcess {
	return &InProcess{
		handlers: make(map[string]HandlerFunc),
		cron:     cron.New(),
		logger:   log,
	}
}

// Register binds a handler to a job type. Must be called before Start.
func (s *InProcess) Register(jobType string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[jobType] = handler
}

func (s *InProcess) Schedule(jobType string, payload interface{}, opts Options) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.handlers[jobType]; !ok {
		return errors.Errorf("no handler registered for job type %q", jobType)
	}

	s.pending = append(s.pending, job{
		jobType: jobType,
		payload: payload,
		dueAt:   time.Now().Add(opts.Delay),
	})
	metrics.ScheduledJobs.WithLabelValues(jobType).Set(float64(s.countLocked(jobType)))
	return nil
}

// Start begins the sweep loop. The scheduler stops when ctx is cancelled.
func (s *InProcess) Start(ctx context.Context) error {
	s.ctx = ctx
	if _, err := s.cron.AddFunc("@every 5s", s.sweep); err != nil {
		return errors.Wrap(err, "failed to schedule sweep")
	}
	s.cron.Start()

	go func() {
		<-ctx.Done()
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}()
	return nil
}

// Wait blocks until all in-flight handlers return.
func (s *InProcess) Wait() {
	s.wg.Wait()
}

func (s *InProcess) sweep() {
	now := time.Now()

	s.mu.Lock()
	var due, rest []job
	for _, j := range s.pending {
		if j.dueAt.After(now) {
			rest = append(rest, j)
		} else {
			due = append(due, j)
		}
	}
	s.pending = rest
	handlers := s.handlers
	s.mu.Unlock()

	for _, j := range due {
		handler := handlers[j.jobType]
		s.wg.Add(1)
		go func(j job) {
			defer s.wg.Done()
			if err := handler(s.ctx, j.payload); err != nil {
				s.logger.Error("Job %s failed: %v", j.jobType, err)
			}
		}(j)
	}

	s.mu.Lock()
	byType := make(map[string]int)
	for _, j := range s.pending {
		byType[j.jobType]++
	}
	for jobType := range handlers {
		metrics.ScheduledJobs.WithLabelValues(jobType).Set(float64(byType[jobType]))
	}
	s.mu.Unlock()
}

// countLocked counts pending jobs of one type. Caller holds s.mu.
func (s *InProcess) countLocked(jobType string) int {
	count := 0
	for _, j := range s.pending {
		if j.jobType == jobType {
			count++
		}
	}
	return count
}
