// Package telemetry provides health reporting and operation timing.
package telemetry

import "time"

// HealthStatus orders from best to worst; a report's overall status is
// the worst of its checks.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

func (s HealthStatus) severity() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// HealthCheck is one named, individually timed probe result.
type HealthCheck struct {
	Name           string       `json:"name"`
	Status         HealthStatus `json:"status"`
	Message        string       `json:"message,omitempty"`
	ResponseTimeMS int64        `json:"response_time_ms"`
}

// Healthy builds a passing check.
func Healthy(name, message string, elapsed time.Duration) HealthCheck {
	return HealthCheck{Name: name, Status: StatusHealthy, Message: message, ResponseTimeMS: elapsed.Milliseconds()}
}

// Degraded builds a check that works but is impaired.
func Degraded(name, message string, elapsed time.Duration) HealthCheck {
	return HealthCheck{Name: name, Status: StatusDegraded, Message: message, ResponseTimeMS: elapsed.Milliseconds()}
}

// Unhealthy builds a failing check.
func Unhealthy(name, message string, elapsed time.Duration) HealthCheck {
	return HealthCheck{Name: name, Status: StatusUnhealthy, Message: message, ResponseTimeMS: elapsed.Milliseconds()}
}

// HealthReport aggregates checks with the worst status on top.
type HealthReport struct {
	Overall     HealthStatus  `json:"overall"`
	Checks      []HealthCheck `json:"checks"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// NewHealthReport computes the overall status from checks. No checks
// means healthy.
func NewHealthReport(checks []HealthCheck) *HealthReport {
	overall := StatusHealthy
	for _, check := range checks {
		if check.Status.severity() > overall.severity() {
			overall = check.Status
		}
	}
	return &HealthReport{
		Overall:     overall,
		Checks:      checks,
		GeneratedAt: time.Now().UTC(),
	}
}
