package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solverhq/rebalancer/pkg/models"
)

// stubOutcomes serves canned counts and remembers the cutoffs it was asked
// about.
type stubOutcomes struct {
	successes        int
	rejections       int
	successCutoff    time.Time
	rejectionCutoff  time.Time
	successErr       error
	rejectionListErr error
}

func (s *stubOutcomes) Create(_, _ string) error { return nil }

func (s *stubOutcomes) UpdateStatus(_ string, _ models.RebalanceStatus) error { return nil }

func (s *stubOutcomes) SuccessCountSince(cutoff time.Time) (int, error) {
	s.successCutoff = cutoff
	return s.successes, s.successErr
}

func (s *stubOutcomes) RecordRejection(_ models.Strategy, _ string) error { return nil }

func (s *stubOutcomes) RejectionCountSince(cutoff time.Time) (int, error) {
	s.rejectionCutoff = cutoff
	return s.rejections, s.rejectionListErr
}

func newTestMonitor(outcomes *stubOutcomes, now time.Time) *Monitor {
	m := NewMonitor(outcomes, outcomes)
	m.now = func() time.Time { return now }
	return m
}

func TestCheckVerdict(t *testing.T) {
	tests := []struct {
		name       string
		successes  int
		rejections int
		healthy    bool
		reason     string
	}{
		{
			name:    "idle engine is healthy",
			healthy: true,
			reason:  "System IDLE: no rebalancing activity in the last hour",
		},
		{
			name:      "successes without rejections",
			successes: 5,
			healthy:   true,
			reason:    "System HEALTHY: 5 successful rebalances in the last hour",
		},
		{
			name:       "rejections alongside successes",
			successes:  1,
			rejections: 3,
			healthy:    true,
			reason:     "System FUNCTIONAL: 1 successes despite 3 rejections in the last hour",
		},
		{
			name:       "rejections with nothing succeeding",
			rejections: 2,
			healthy:    false,
			reason:     "System DOWN: 2 rejections and no successful rebalances in the last hour",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := &stubOutcomes{successes: tt.successes, rejections: tt.rejections}
			m := newTestMonitor(outcomes, time.Now())

			status, err := m.Check()
			require.NoError(t, err)

			assert.Equal(t, tt.healthy, status.IsHealthy)
			assert.Equal(t, tt.successes, status.SuccessCount)
			assert.Equal(t, tt.rejections, status.RejectionCount)
			assert.Equal(t, tt.reason, status.HealthReason)
		})
	}
}

func TestCheckUsesTrailingHour(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outcomes := &stubOutcomes{}
	m := newTestMonitor(outcomes, now)

	_, err := m.Check()
	require.NoError(t, err)

	expected := now.Add(-time.Hour)
	assert.Equal(t, expected, outcomes.successCutoff)
	assert.Equal(t, expected, outcomes.rejectionCutoff)
}

func TestCheckPropagatesStoreError(t *testing.T) {
	outcomes := &stubOutcomes{successErr: assert.AnError}
	m := newTestMonitor(outcomes, time.Now())

	_, err := m.Check()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMetricsSuccessRate(t *testing.T) {
	tests := []struct {
		name       string
		successes  int
		rejections int
		rate       float64
	}{
		{name: "no activity", rate: 0},
		{name: "all succeeding", successes: 4, rate: 1},
		{name: "mixed", successes: 3, rejections: 1, rate: 0.75},
		{name: "all rejected", rejections: 2, rate: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := &stubOutcomes{successes: tt.successes, rejections: tt.rejections}
			m := newTestMonitor(outcomes, time.Now())

			got, err := m.Metrics(24 * time.Hour)
			require.NoError(t, err)

			assert.InDelta(t, tt.rate, got.SuccessRate, 1e-9)
			assert.Equal(t, 24*time.Hour, got.TimeRange)
		})
	}
}

func TestMetricsUsesRequestedRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	outcomes := &stubOutcomes{}
	m := newTestMonitor(outcomes, now)

	_, err := m.Metrics(15 * time.Minute)
	require.NoError(t, err)

	assert.Equal(t, now.Add(-15*time.Minute), outcomes.successCutoff)
}
