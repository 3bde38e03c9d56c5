package telemetry

import (
	"log/slog"
	"time"
)

// Checkpoint records how far an operation had advanced at a point in time.
type Checkpoint struct {
	Label   string
	Elapsed time.Duration
}

// OperationTimer measures one named operation, with optional intermediate
// checkpoints, and logs a summary when finished.
type OperationTimer struct {
	name        string
	start       time.Time
	checkpoints []Checkpoint
}

// StartTimer begins timing the named operation.
func StartTimer(name string) *OperationTimer {
	return &OperationTimer{name: name, start: time.Now()}
}

// Checkpoint records a labelled intermediate point.
func (t *OperationTimer) Checkpoint(label string) {
	t.checkpoints = append(t.checkpoints, Checkpoint{Label: label, Elapsed: time.Since(t.start)})
}

// Checkpoints returns the recorded checkpoints in order.
func (t *OperationTimer) Checkpoints() []Checkpoint {
	return t.checkpoints
}

// Elapsed reports time since the operation started.
func (t *OperationTimer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Finish logs the total duration and returns it.
func (t *OperationTimer) Finish() time.Duration {
	elapsed := time.Since(t.start)
	slog.Info("operation finished", "operation", t.name, "duration", elapsed.Round(time.Millisecond))
	return elapsed
}

// FinishWithCount logs the total duration together with a processed-item
// throughput and returns the duration.
func (t *OperationTimer) FinishWithCount(items int) time.Duration {
	elapsed := time.Since(t.start)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(items) / elapsed.Seconds()
	}
	slog.Info("operation finished",
		"operation", t.name,
		"duration", elapsed.Round(time.Millisecond),
		"items", items,
		"items_per_sec", rate)
	return elapsed
}
