package api

import (
	"context"
	"time"
)

// ReadinessCheck is a named dependency probe (database, redis).
// Optional checks are reported but never mark the service not ready.
type ReadinessCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

const readinessTimeout = 2 * time.Second

// runChecks probes every dependency and returns per-check results.
func runChecks(ctx context.Context, checks []ReadinessCheck) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	results := make(map[string]string, len(checks))
	ready := true
	for _, c := range checks {
		if c.Check == nil {
			continue
		}
		if err := c.Check(ctx); err != nil {
			results[c.Name] = err.Error()
			if !c.Optional {
				ready = false
			}
			continue
		}
		results[c.Name] = "ok"
	}
	return results, ready
}
