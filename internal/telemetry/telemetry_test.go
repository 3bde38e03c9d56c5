package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthReportOverall(t *testing.T) {
	t.Parallel()

	t.Run("all healthy", func(t *testing.T) {
		t.Parallel()
		report := NewHealthReport([]HealthCheck{
			Healthy("database_connection", "ok", 3*time.Millisecond),
			Healthy("database_schema", "ok", time.Millisecond),
		})
		assert.Equal(t, StatusHealthy, report.Overall)
		assert.Len(t, report.Checks, 2)
		assert.False(t, report.GeneratedAt.IsZero())
	})

	t.Run("degraded wins over healthy", func(t *testing.T) {
		t.Parallel()
		report := NewHealthReport([]HealthCheck{
			Healthy("configuration", "ok", 0),
			Degraded("repository_store", "registry file missing", 0),
		})
		assert.Equal(t, StatusDegraded, report.Overall)
	})

	t.Run("unhealthy wins over degraded", func(t *testing.T) {
		t.Parallel()
		report := NewHealthReport([]HealthCheck{
			Degraded("repository_store", "slow", 0),
			Unhealthy("database_connection", "connect refused", 0),
			Healthy("configuration", "ok", 0),
		})
		assert.Equal(t, StatusUnhealthy, report.Overall)
	})

	t.Run("no checks is healthy", func(t *testing.T) {
		t.Parallel()
		report := NewHealthReport(nil)
		assert.Equal(t, StatusHealthy, report.Overall)
	})
}

func TestHealthCheckTiming(t *testing.T) {
	t.Parallel()

	check := Healthy("database_connection", "ok", 1500*time.Microsecond)
	assert.Equal(t, int64(1), check.ResponseTimeMS)

	slow := Unhealthy("lock_system", "timed out", 30*time.Second)
	assert.Equal(t, int64(30000), slow.ResponseTimeMS)
}

func TestOperationTimer(t *testing.T) {
	t.Parallel()

	timer := StartTimer("ingest")
	timer.Checkpoint("scan")
	timer.Checkpoint("process")

	points := timer.Checkpoints()
	require.Len(t, points, 2)
	assert.Equal(t, "scan", points[0].Label)
	assert.Equal(t, "process", points[1].Label)
	assert.LessOrEqual(t, points[0].Elapsed, points[1].Elapsed)

	elapsed := timer.FinishWithCount(100)
	assert.Greater(t, elapsed, time.Duration(0))
}
