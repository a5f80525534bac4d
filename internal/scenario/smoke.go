package scenario

import (
	"context"

	"github.com/cfergile/journal-starter/internal/journal"
	"github.com/cfergile/journal-starter/internal/runner"
)

// Smoke probes the health endpoint once per iteration.
type Smoke struct {
	client *journal.Client
	rec    *Recorder
}

// NewSmoke creates the smoke scenario.
func NewSmoke(client *journal.Client, rec *Recorder) *Smoke {
	return &Smoke{client: client, rec: rec}
}

// Name implements runner.Scenario.
func (s *Smoke) Name() string { return "smoke" }

// Iterate implements runner.Scenario. A failing probe is recorded, not
// returned.
func (s *Smoke) Iterate(ctx context.Context, it runner.Iteration) error {
	rec := s.rec.Iteration(it)
	res := s.client.Health(ctx)
	rec.Check("status is 200", rec.Record(ctx, StepHealth, res))
	return nil
}
