// Package runner executes a scenario with a pool of virtual users.
//
// Two executors are supported, selected by Options:
//
//   - shared iterations: Iterations > 0. VUs pull from a shared budget
//     until it is spent.
//   - constant VUs: Iterations == 0 and Duration > 0. Every VU loops
//     until the duration elapses.
//
// Virtual users are numbered from 1 and keep their own 0-based iteration
// counter. There is no ordering between VUs; within one iteration the
// scenario decides the order of its requests.
//
// When the duration elapses (or the caller cancels ctx) no new iteration
// starts. Iterations already running are detached from cancellation and
// finish on their own; their requests end on the HTTP timeout at worst.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/cfergile/journal-starter/internal/metrics"
)

// Iteration identifies one run of a scenario body.
type Iteration struct {
	RunID string
	VU    int
	Iter  int
}

// Scenario is the body a virtual user runs once per iteration.
//
// A returned error ends that iteration only; the VU continues with the
// next one.
type Scenario interface {
	Name() string
	Iterate(ctx context.Context, it Iteration) error
}

// Options controls how a scenario is scheduled.
type Options struct {
	// VUs is the number of concurrent virtual users.
	VUs int

	// Iterations is the total shared across all VUs. Zero selects the
	// constant-VUs executor.
	Iterations int

	// Duration bounds the constant-VUs executor.
	Duration time.Duration

	// Sleep is the pause each VU takes after every iteration.
	Sleep time.Duration

	// RatePerSecond caps iteration starts across all VUs. Zero disables it.
	RatePerSecond float64

	// MaxDuration stops scheduling in the shared-iterations executor.
	// Zero means no cap.
	MaxDuration time.Duration
}

// Validate checks that the options select exactly one executor.
func (o Options) Validate() error {
	if o.VUs < 1 {
		return fmt.Errorf("vus must be at least 1, got %d", o.VUs)
	}
	if o.Iterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got %d", o.Iterations)
	}
	if o.Iterations == 0 && o.Duration <= 0 {
		return errors.New("either iterations or a positive duration is required")
	}
	if o.Sleep < 0 {
		return fmt.Errorf("sleep must be non-negative, got %s", o.Sleep)
	}
	if o.RatePerSecond < 0 {
		return fmt.Errorf("rate must be non-negative, got %v", o.RatePerSecond)
	}
	return nil
}

// Result describes a finished run.
type Result struct {
	RunID      string    `json:"run_id"`
	Scenario   string    `json:"scenario"`
	VUs        int       `json:"vus"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Iterations int64     `json:"iterations"`
	Failed     int64     `json:"iterations_failed"`
}

// Runner schedules a scenario.
type Runner struct {
	scenario Scenario
	opts     Options
	metrics  *metrics.Registry
	logger   *slog.Logger
	ids      IDGenerator
}

// New creates a runner. A nil logger discards output.
func New(s Scenario, opts Options, reg *metrics.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		scenario: s,
		opts:     opts,
		metrics:  reg,
		logger:   logger,
		ids:      UUIDv7Generator{},
	}
}

// WithIDGenerator overrides how run ids are generated (for testing).
func (r *Runner) WithIDGenerator(g IDGenerator) *Runner {
	r.ids = g
	return r
}

// NewRunID reserves the id of the next run. Callers that need the id
// before Run starts (to open a store record) pass it to RunWithID.
func (r *Runner) NewRunID() string {
	return r.ids.Generate()
}

// Run executes the scenario with a fresh run id.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	return r.RunWithID(ctx, r.NewRunID())
}

// RunWithID executes the scenario under the given run id and blocks until
// every VU has stopped.
func (r *Runner) RunWithID(ctx context.Context, runID string) (*Result, error) {
	if err := r.opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run options: %w", err)
	}

	// schedCtx ends scheduling; iterations run under iterCtx.
	schedCtx, cancel := r.schedulingContext(ctx)
	defer cancel()
	iterCtx := context.WithoutCancel(ctx)

	var limiter *rate.Limiter
	if r.opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.opts.RatePerSecond), 1)
	}

	result := &Result{
		RunID:     runID,
		Scenario:  r.scenario.Name(),
		VUs:       r.opts.VUs,
		StartedAt: time.Now(),
	}
	iterations := r.metrics.Counter(metrics.Iterations)
	failed := r.metrics.Counter(metrics.IterationsFailed)

	r.logger.Info("run starting",
		"run_id", runID,
		"scenario", result.Scenario,
		"vus", r.opts.VUs,
		"iterations", r.opts.Iterations,
		"duration", r.opts.Duration,
	)

	var claimed atomic.Int64
	var completed, failures atomic.Int64
	var wg sync.WaitGroup
	for vu := 1; vu <= r.opts.VUs; vu++ {
		wg.Add(1)
		go func(vu int) {
			defer wg.Done()
			for iter := 0; ; iter++ {
				if schedCtx.Err() != nil {
					return
				}
				if r.opts.Iterations > 0 && claimed.Add(1) > int64(r.opts.Iterations) {
					return
				}
				if limiter != nil {
					if err := limiter.Wait(schedCtx); err != nil {
						return
					}
				}

				it := Iteration{RunID: runID, VU: vu, Iter: iter}
				if err := r.scenario.Iterate(iterCtx, it); err != nil {
					failures.Add(1)
					failed.Inc(1)
					r.logger.Warn("iteration failed",
						"vu", vu,
						"iter", iter,
						"error", err,
					)
				}
				completed.Add(1)
				iterations.Inc(1)

				if !sleep(schedCtx, r.opts.Sleep) {
					return
				}
			}
		}(vu)
	}
	wg.Wait()

	result.FinishedAt = time.Now()
	result.Iterations = completed.Load()
	result.Failed = failures.Load()

	r.logger.Info("run finished",
		"run_id", runID,
		"iterations", result.Iterations,
		"iterations_failed", result.Failed,
		"elapsed", result.FinishedAt.Sub(result.StartedAt),
	)
	return result, nil
}

func (r *Runner) schedulingContext(ctx context.Context) (context.Context, context.CancelFunc) {
	limit := r.opts.MaxDuration
	if r.opts.Iterations == 0 {
		limit = r.opts.Duration
	}
	if limit > 0 {
		return context.WithTimeout(ctx, limit)
	}
	return context.WithCancel(ctx)
}

// sleep pauses for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
