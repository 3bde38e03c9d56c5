package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tilde-sec/threatsift/internal/config"
	"github.com/tilde-sec/threatsift/internal/telemetry"
)

// lockProbeTimeout keeps the lock-system check from consuming the whole
// configured lock timeout when something is wedged.
const lockProbeTimeout = 2 * time.Second

// Health runs the five service checks, each timed independently. A
// failing check never aborts the report; the overall status is the
// worst individual one.
func (s *State) Health(ctx context.Context) *telemetry.HealthReport {
	checks := []telemetry.HealthCheck{
		s.checkConfiguration(ctx),
		s.checkDatabaseConnection(ctx),
		s.checkDatabaseSchema(ctx),
		s.checkRepositoryStore(ctx),
		s.checkLockSystem(ctx),
	}
	return telemetry.NewHealthReport(checks)
}

func (s *State) checkConfiguration(ctx context.Context) telemetry.HealthCheck {
	start := time.Now()
	cfg, err := s.configSnapshot(ctx)
	if err != nil {
		return telemetry.Unhealthy("configuration", err.Error(), time.Since(start))
	}
	if err := config.Validate(&cfg); err != nil {
		return telemetry.Unhealthy("configuration", err.Error(), time.Since(start))
	}
	return telemetry.Healthy("configuration", "configuration valid", time.Since(start))
}

func (s *State) checkDatabaseConnection(ctx context.Context) telemetry.HealthCheck {
	start := time.Now()
	warehouse, err := s.Warehouse(ctx)
	if err != nil {
		return telemetry.Unhealthy("database_connection", err.Error(), time.Since(start))
	}
	if err := warehouse.Ping(ctx); err != nil {
		return telemetry.Unhealthy("database_connection", err.Error(), time.Since(start))
	}
	return telemetry.Healthy("database_connection", "store reachable", time.Since(start))
}

func (s *State) checkDatabaseSchema(ctx context.Context) telemetry.HealthCheck {
	start := time.Now()
	warehouse, err := s.Warehouse(ctx)
	if err != nil {
		return telemetry.Unhealthy("database_schema", err.Error(), time.Since(start))
	}
	if err := warehouse.VerifySchema(ctx); err != nil {
		return telemetry.Unhealthy("database_schema", err.Error(), time.Since(start))
	}
	return telemetry.Healthy("database_schema", "schema verified", time.Since(start))
}

// checkRepositoryStore degrades rather than fails when the registry
// file has not been created yet: an empty service is impaired, not
// broken.
func (s *State) checkRepositoryStore(ctx context.Context) telemetry.HealthCheck {
	start := time.Now()
	if _, err := os.Stat(s.registryPath); err != nil {
		if os.IsNotExist(err) {
			return telemetry.Degraded("repository_store", "registry file not yet created", time.Since(start))
		}
		return telemetry.Unhealthy("repository_store", err.Error(), time.Since(start))
	}
	if _, err := loadRegistry(s.registryPath); err != nil {
		return telemetry.Unhealthy("repository_store", err.Error(), time.Since(start))
	}
	repos, err := s.List(ctx)
	if err != nil {
		return telemetry.Unhealthy("repository_store", err.Error(), time.Since(start))
	}
	return telemetry.Healthy("repository_store", fmt.Sprintf("%d repositories registered", len(repos)), time.Since(start))
}

// checkLockSystem acquires and releases each lock in the canonical
// order with a short probe timeout.
func (s *State) checkLockSystem(ctx context.Context) telemetry.HealthCheck {
	start := time.Now()
	for _, lock := range []*timedLock{s.configLock, s.registryLock, s.storeLock} {
		if err := lock.acquire(ctx, lockProbeTimeout); err != nil {
			return telemetry.Unhealthy("lock_system", err.Error(), time.Since(start))
		}
		lock.release()
	}
	return telemetry.Healthy("lock_system", "all locks responsive", time.Since(start))
}
