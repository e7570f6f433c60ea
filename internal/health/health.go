// Package health provides a registry of named readiness checks.
package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds a single CheckAll run.
const DefaultTimeout = 2 * time.Second

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker is a function that checks the health of a subsystem.
type Checker func(ctx context.Context) Status

// Report is the aggregate readiness answer.
type Report struct {
	Status string   `json:"status"` // "ok" or "degraded"
	Checks []Status `json:"checks"`
}

// Registry holds named health checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
	timeout  time.Duration
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates a new health check registry.
func NewRegistry() *Registry {
	return &Registry{timeout: DefaultTimeout}
}

// Register adds a named health checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs all registered checkers concurrently and returns the
// aggregate health plus individual results in registration order. A checker
// still running when the deadline passes is reported unhealthy.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	statuses = make([]Status, len(checkers))
	var wg sync.WaitGroup
	for i, nc := range checkers {
		wg.Add(1)
		go func(i int, nc namedChecker) {
			defer wg.Done()
			done := make(chan Status, 1)
			go func() { done <- nc.check(ctx) }()
			select {
			case st := <-done:
				if st.Name == "" {
					st.Name = nc.name
				}
				statuses[i] = st
			case <-ctx.Done():
				statuses[i] = Status{Name: nc.name, Detail: "check timed out"}
			}
		}(i, nc)
	}
	wg.Wait()

	healthy = true
	for _, st := range statuses {
		if !st.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}

// Report runs every check and summarizes it.
func (r *Registry) Report(ctx context.Context) (bool, Report) {
	healthy, statuses := r.CheckAll(ctx)
	rep := Report{Status: "ok", Checks: statuses}
	if !healthy {
		rep.Status = "degraded"
	}
	return healthy, rep
}
