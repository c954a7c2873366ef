package httpadapter

import (
	"context"
	"fmt"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// Check is a named readiness probe.
type Check struct {
	Name    string
	Checker sharedobs.ReadinessChecker
}

// Checks is a readiness checker that fails on the first failing probe.
type Checks []Check

// CheckReadiness implements sharedobs.ReadinessChecker.
func (cs Checks) CheckReadiness(ctx context.Context) error {
	for _, c := range cs {
		if err := c.Checker.CheckReadiness(ctx); err != nil {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	return nil
}

// Report runs every probe and returns "ok" or the error text per name.
func (cs Checks) Report(ctx context.Context) map[string]string {
	out := make(map[string]string, len(cs))
	for _, c := range cs {
		if err := c.Checker.CheckReadiness(ctx); err != nil {
			out[c.Name] = err.Error()
			continue
		}
		out[c.Name] = "ok"
	}
	return out
}

// CheckFunc adapts a plain function to sharedobs.ReadinessChecker.
type CheckFunc func(ctx context.Context) error

// CheckReadiness implements sharedobs.ReadinessChecker.
func (f CheckFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }
