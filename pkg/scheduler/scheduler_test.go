package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solverhq/rebalancer/pkg/logger"
)

func TestScheduleRejectsUnregisteredType(t *testing.T) {
	s := NewInProcess(&logger.EmptyLogger{})

	err := s.Schedule("unknown", nil, Options{})
	assert.ErrorContains(t, err, "no handler registered")
}

func TestSweepRunsDueJobs(t *testing.T) {
	s := NewInProcess(&logger.EmptyLogger{})
	s.ctx = context.Background()

	got := make(chan interface{}, 1)
	s.Register("check", func(_ context.Context, payload interface{}) error {
		got <- payload
		return nil
	})

	require.NoError(t, s.Schedule("check", "payload-1", Options{}))
	s.sweep()
	s.Wait()

	select {
	case payload := <-got:
		assert.Equal(t, "payload-1", payload)
	default:
		t.Fatal("due job was not executed")
	}
}

func TestSweepHoldsDelayedJobs(t *testing.T) {
	s := NewInProcess(&logger.EmptyLogger{})
	s.ctx = context.Background()

	var runs atomic.Int32
	s.Register("check", func(_ context.Context, _ interface{}) error {
		runs.Add(1)
		return nil
	})

	require.NoError(t, s.Schedule("check", nil, Options{Delay: time.Hour}))
	s.sweep()
	s.Wait()

	assert.Zero(t, runs.Load(), "a job scheduled for later must not run yet")

	s.mu.Lock()
	pending := len(s.pending)
	s.mu.Unlock()
	assert.Equal(t, 1, pending)
}

func TestHandlersMayReenqueue(t *testing.T) {
	s := NewInProcess(&logger.EmptyLogger{})
	s.ctx = context.Background()

	var runs atomic.Int32
	s.Register("poll", func(_ context.Context, payload interface{}) error {
		if runs.Add(1) == 1 {
			return s.Schedule("poll", payload, Options{})
		}
		return nil
	})

	require.NoError(t, s.Schedule("poll", nil, Options{}))
	s.sweep()
	s.Wait()
	s.sweep()
	s.Wait()

	assert.Equal(t, int32(2), runs.Load())
}
