// Package health aggregates component health for the /health endpoint
package health

import (
	"context"
	"sync"
	"time"
)

// Probe is a component that can report its own health. The capture
// source and the carrier board satisfy this directly.
type Probe interface {
	Name() string
	Healthy() bool
}

// Status represents overall system health
type Status struct {
	Status        string           `json:"status"` // ok, degraded
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Components    map[string]Check `json:"components"`
}

// Check represents a component health check
type Check struct {
	Healthy   bool      `json:"healthy"`
	Message   string    `json:"message,omitempty"`
	LastCheck time.Time `json:"last_check"`
}

// Checker tracks health of system components
type Checker struct {
	mu         sync.RWMutex
	version    string
	startTime  time.Time
	probes     map[string]Probe
	components map[string]Check
}

// NewChecker creates a new health checker
func NewChecker(version string, probes ...Probe) *Checker {
	c := &Checker{
		version:    version,
		startTime:  time.Now(),
		probes:     make(map[string]Probe),
		components: make(map[string]Check),
	}
	for _, p := range probes {
		c.probes[p.Name()] = p
	}
	c.Refresh()
	return c
}

// SetComponent updates a component's health status directly, for
// components that are not probes (the classifier sidecar, the uplink).
func (c *Checker) SetComponent(name string, healthy bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = Check{
		Healthy:   healthy,
		Message:   message,
		LastCheck: time.Now(),
	}
}

// Refresh polls all registered probes
func (c *Checker) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for name, probe := range c.probes {
		c.components[name] = Check{
			Healthy:   probe.Healthy(),
			LastCheck: now,
		}
	}
}

// Run refreshes probes periodically until the context is cancelled
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh()
		}
	}
}

// GetStatus returns the overall health status
func (c *Checker) GetStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "ok"
	for _, check := range c.components {
		if !check.Healthy {
			status = "degraded"
			break
		}
	}

	// Copy components map
	components := make(map[string]Check)
	for k, v := range c.components {
		components[k] = v
	}

	return Status{
		Status:        status,
		Version:       c.version,
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
		Components:    components,
	}
}

// IsHealthy returns true if all components are healthy
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, check := range c.components {
		if !check.Healthy {
			return false
		}
	}
	return true
}
