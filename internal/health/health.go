// Package health aggregates per-subsystem probes for the health endpoints.
package health

import (
	"context"
	"sync"
)

// Status is one subsystem's result, serialized into the health response.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker reports the current health of one subsystem.
type Checker func(ctx context.Context) Status

type check struct {
	name string
	fn   Checker
}

// Registry holds the registered checkers in registration order.
type Registry struct {
	mu     sync.RWMutex
	checks []check
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a checker under the given name.
func (r *Registry) Register(name string, fn Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, check{name: name, fn: fn})
}

// CheckAll runs every registered checker and reports whether all passed,
// along with the individual results in registration order. Checkers run
// outside the registry lock so a slow probe never blocks Register.
func (r *Registry) CheckAll(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	checks := append([]check(nil), r.checks...)
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(checks))
	for _, c := range checks {
		st := c.fn(ctx)
		if !st.Healthy {
			healthy = false
		}
		statuses = append(statuses, st)
	}
	return healthy, statuses
}
