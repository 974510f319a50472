// Package health exposes the engine's health verdict and the HTTP surface
// serving it. The verdict is derived on demand from recent job outcomes,
// never persisted.
package health

import (
	"fmt"
	"time"

	"github.com/solverhq/rebalancer/pkg/models"
	"github.com/solverhq/rebalancer/pkg/repository"
)

// monitorWindow is the trailing window the boolean verdict is computed over.
const monitorWindow = time.Hour

// Monitor derives the rebalancing health verdict. The engine is unhealthy
// only when requests were rejected and nothing succeeded in the trailing
// hour; an idle engine is healthy.
type Monitor struct {
	rebalances repository.RebalanceRepository
	rejections repository.RejectionRepository

	now func() time.Time
}

// NewMonitor creates the monitor over the given outcome stores.
func NewMonitor(rebalances repository.RebalanceRepository, rejections repository.RejectionRepository) *Monitor {
	return &Monitor{
		rebalances: rebalances,
		rejections: rejections,
		now:        time.Now,
	}
}

// Check computes the current verdict over the trailing hour.
func (m *Monitor) Check() (models.HealthStatus, error) {
	cutoff := m.now().Add(-monitorWindow)

	successes, err := m.rebalances.SuccessCountSince(cutoff)
	if err != nil {
		return models.HealthStatus{}, err
	}
	rejections, err := m.rejections.RejectionCountSince(cutoff)
	if err != nil {
		return models.HealthStatus{}, err
	}

	healthy := !(rejections > 0 && successes == 0)
	return models.HealthStatus{
		IsHealthy:             healthy,
		SuccessCount:          successes,
		RejectionCount:        rejections,
		LastHourHasRejections: rejections > 0,
		LastHourHasSuccesses:  successes > 0,
		HealthReason:          healthReason(successes, rejections),
	}, nil
}

// Metrics computes detailed counts over a caller-chosen time range.
func (m *Monitor) Metrics(timeRange time.Duration) (models.HealthMetrics, error) {
	cutoff := m.now().Add(-timeRange)

	successes, err := m.rebalances.SuccessCountSince(cutoff)
	if err != nil {
		return models.HealthMetrics{}, err
	}
	rejections, err := m.rejections.RejectionCountSince(cutoff)
	if err != nil {
		return models.HealthMetrics{}, err
	}

	rate := 0.0
	if total := successes + rejections; total > 0 {
		rate = float64(successes) / float64(total)
	}

	return models.HealthMetrics{
		TimeRange:      timeRange,
		SuccessCount:   successes,
		RejectionCount: rejections,
		SuccessRate:    rate,
		IsHealthy:      !(rejections > 0 && successes == 0),
		HealthReason:   healthReason(successes, rejections),
	}, nil
}

func healthReason(successes, rejections int) string {
	switch {
	case rejections > 0 && successes == 0:
		return fmt.Sprintf("System DOWN: %d rejections and no successful rebalances in the last hour", rejections)
	case successes == 0 && rejections == 0:
		return "System IDLE: no rebalancing activity in the last hour"
	case rejections > 0:
		return fmt.Sprintf("System FUNCTIONAL: %d successes despite %d rejections in the last hour", successes, rejections)
	default:
		return fmt.Sprintf("System HEALTHY: %d successful rebalances in the last hour", successes)
	}
}
