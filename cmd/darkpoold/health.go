// health.go - Health monitoring for the settlement daemon.
package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"darkpool/client"
)

// HealthChecker runs registered component checks and reports the
// aggregate status served on /healthz.
type HealthChecker struct {
	mu        sync.RWMutex
	checkers  map[string]func(ctx context.Context) error
	startTime time.Time
	version   string
}

// NewHealthChecker creates a health checker.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		checkers:  make(map[string]func(ctx context.Context) error),
		startTime: time.Now(),
		version:   version,
	}
}

// RegisterComponent registers a named health check.
func (hc *HealthChecker) RegisterComponent(name string, checker func(ctx context.Context) error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkers[name] = checker
}

// Check runs every registered check and builds the health report. The
// report is "healthy" only when all components pass.
func (hc *HealthChecker) Check(ctx context.Context) client.HealthResponse {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checkers))
	for name := range hc.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make(map[string]func(ctx context.Context) error, len(names))
	for name, fn := range hc.checkers {
		checkers[name] = fn
	}
	hc.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string, len(names))
	for _, name := range names {
		if err := checkers[name](ctx); err != nil {
			status = "unhealthy"
			components[name] = err.Error()
			continue
		}
		components[name] = "ok"
	}

	return client.HealthResponse{
		Status:     status,
		Version:    hc.version,
		Uptime:     time.Since(hc.startTime).Round(time.Second).String(),
		Components: components,
	}
}
