package scenario

import (
	"context"
	"io"
	"log/slog"

	"github.com/cfergile/journal-starter/internal/journal"
	"github.com/cfergile/journal-starter/internal/metrics"
	"github.com/cfergile/journal-starter/internal/runner"
	"github.com/cfergile/journal-starter/internal/store"
)

// CallSink receives one record per HTTP request. *store.Store satisfies it.
type CallSink interface {
	WriteCall(ctx context.Context, call store.CallRecord) (int64, error)
}

// Recorder classifies responses into the run's metrics. It is shared by
// every VU of a run.
type Recorder struct {
	metrics *metrics.Registry
	sink    CallSink
	logger  *slog.Logger
}

// NewRecorder creates a recorder. sink may be nil; a nil logger discards.
func NewRecorder(reg *metrics.Registry, sink CallSink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{metrics: reg, sink: sink, logger: logger}
}

// Iteration binds the recorder to one iteration so call records carry
// its VU and iteration numbers.
func (r *Recorder) Iteration(it runner.Iteration) *IterationRecorder {
	return &IterationRecorder{rec: r, it: it}
}

// IterationRecorder records the requests and checks of one iteration.
type IterationRecorder struct {
	rec *Recorder
	it  runner.Iteration
}

// Record classifies resp against the acceptable statuses (default 200)
// and reports whether it matched.
//
// A mismatch adds a hit to unexpected_error_rate; a match adds a miss.
// The duration always lands in http_req_duration, and http_req_failed
// counts transport errors and statuses of 400 or above whatever the
// acceptable set says. Call it exactly once per request.
func (ir *IterationRecorder) Record(ctx context.Context, step string, resp *journal.Response, ok ...int) bool {
	if len(ok) == 0 {
		ok = []int{200}
	}
	matched := resp.StatusIn(ok...)

	m := ir.rec.metrics
	m.Rate(metrics.UnexpectedErrorRate).Add(!matched)
	m.Rate(metrics.HTTPReqFailed).Add(resp.Failed())
	m.Trend(metrics.HTTPReqDuration).Add(resp.Duration)
	m.Counter(metrics.HTTPReqs).Inc(1)

	if !matched {
		ir.rec.logger.Debug("unexpected status",
			"step", step,
			"vu", ir.it.VU,
			"iter", ir.it.Iter,
			"status", resp.Status,
			"expected", ok,
			"error", resp.Err,
		)
	}

	if ir.rec.sink != nil {
		call := store.CallRecord{
			RunID:    ir.it.RunID,
			VU:       ir.it.VU,
			Iter:     ir.it.Iter,
			Step:     step,
			Method:   resp.Method,
			URL:      resp.URL,
			Status:   resp.Status,
			Expected: ok,
			OK:       matched,
			Duration: resp.Duration,
		}
		if resp.Err != nil {
			call.Error = resp.Err.Error()
		}
		// Persisting history must never change the outcome of the run.
		if _, err := ir.rec.sink.WriteCall(ctx, call); err != nil {
			ir.rec.logger.Warn("failed to store call", "step", step, "error", err)
		}
	}
	return matched
}

// Check records a named check and returns ok.
func (ir *IterationRecorder) Check(name string, ok bool) bool {
	return ir.rec.metrics.Check(name, ok)
}
