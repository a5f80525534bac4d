// Package metrics aggregates the measurements a load run produces.
//
// Instruments are backed by go-metrics counters and histograms. Three
// kinds are exposed, mirroring what the thresholds and the summary need:
//
//   - Rate: fraction of samples that were non-zero (error rates)
//   - Trend: distribution of durations (latency percentiles)
//   - Counter: a plain event count
//
// Named checks are tracked separately and keep their first-seen order so
// the summary lists them the way the scenario declares them.
//
// All methods are safe for concurrent use by many virtual users.
package metrics

import (
	"sort"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Built-in metric names.
const (
	UnexpectedErrorRate = "unexpected_error_rate"
	HTTPReqDuration     = "http_req_duration"
	HTTPReqFailed       = "http_req_failed"
	HTTPReqs            = "http_reqs"
	Iterations          = "iterations"
	IterationsFailed    = "iterations_failed"
)

// DefaultReservoirSize bounds the samples a Trend keeps for percentiles.
const DefaultReservoirSize = 10000

type kind int

const (
	kindRate kind = iota
	kindTrend
	kindCounter
)

// Registry owns every instrument of one run.
type Registry struct {
	reg       gometrics.Registry
	reservoir int

	mu         sync.Mutex
	kinds      map[string]kind
	rates      map[string]*Rate
	trends     map[string]*Trend
	checks     map[string]*Rate
	checkOrder []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		reg:       gometrics.NewRegistry(),
		reservoir: DefaultReservoirSize,
		kinds:     make(map[string]kind),
		rates:     make(map[string]*Rate),
		trends:    make(map[string]*Trend),
		checks:    make(map[string]*Rate),
	}
}

// Rate returns the named rate, creating it on first use.
func (r *Registry) Rate(name string) *Rate {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rate, ok := r.rates[name]; ok {
		return rate
	}
	rate := r.newRate("rate/" + name)
	r.rates[name] = rate
	r.kinds[name] = kindRate
	return rate
}

// Trend returns the named trend, creating it on first use.
func (r *Registry) Trend(name string) *Trend {
	r.mu.Lock()
	defer r.mu.Unlock()
	if trend, ok := r.trends[name]; ok {
		return trend
	}
	h := gometrics.NewHistogram(gometrics.NewUniformSample(r.reservoir))
	r.reg.GetOrRegister("trend/"+name, h)
	trend := &Trend{h: h}
	r.trends[name] = trend
	r.kinds[name] = kindTrend
	return trend
}

// Counter returns the named counter, creating it on first use.
func (r *Registry) Counter(name string) gometrics.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[name] = kindCounter
	return r.reg.GetOrRegister("counter/"+name, gometrics.NewCounter).(gometrics.Counter)
}

// Check records one evaluation of a named check and returns ok.
func (r *Registry) Check(name string, ok bool) bool {
	r.mu.Lock()
	rate, found := r.checks[name]
	if !found {
		rate = r.newRate("check/" + name)
		r.checks[name] = rate
		r.checkOrder = append(r.checkOrder, name)
	}
	r.mu.Unlock()

	rate.Add(ok)
	return ok
}

// newRate must be called with r.mu held.
func (r *Registry) newRate(prefix string) *Rate {
	return &Rate{
		hits:  r.reg.GetOrRegister(prefix+"/hits", gometrics.NewCounter).(gometrics.Counter),
		total: r.reg.GetOrRegister(prefix+"/total", gometrics.NewCounter).(gometrics.Counter),
	}
}

// Rate tracks the fraction of non-zero samples.
type Rate struct {
	hits  gometrics.Counter
	total gometrics.Counter
}

// Add records one sample; hit marks it non-zero.
func (r *Rate) Add(hit bool) {
	if hit {
		r.hits.Inc(1)
	}
	r.total.Inc(1)
}

func (r *Rate) summary() RateSummary {
	hits, total := r.hits.Count(), r.total.Count()
	s := RateSummary{Hits: hits, Total: total}
	if total > 0 {
		s.Rate = float64(hits) / float64(total)
	}
	return s
}

// Trend tracks a distribution of durations.
type Trend struct {
	h gometrics.Histogram
}

// Add records one duration. Samples are kept in microseconds.
func (t *Trend) Add(d time.Duration) {
	t.h.Update(d.Microseconds())
}

func (t *Trend) summary() TrendSummary {
	snap := t.h.Snapshot()
	if snap.Count() == 0 {
		return TrendSummary{}
	}
	ps := snap.Percentiles([]float64{0.5, 0.9, 0.95})
	return TrendSummary{
		Count: snap.Count(),
		Avg:   toMillis(snap.Mean()),
		Min:   toMillis(float64(snap.Min())),
		Med:   toMillis(ps[0]),
		Max:   toMillis(float64(snap.Max())),
		P90:   toMillis(ps[1]),
		P95:   toMillis(ps[2]),
	}
}

// toMillis converts microseconds to milliseconds.
func toMillis(v float64) float64 {
	return v / 1000
}

// Summary snapshots every instrument.
func (r *Registry) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		Rates:    make(map[string]RateSummary, len(r.rates)),
		Trends:   make(map[string]TrendSummary, len(r.trends)),
		Counters: make(map[string]int64),
		Checks:   make([]CheckSummary, 0, len(r.checkOrder)),
	}
	for name, rate := range r.rates {
		s.Rates[name] = rate.summary()
	}
	for name, trend := range r.trends {
		s.Trends[name] = trend.summary()
	}
	for name, k := range r.kinds {
		if k != kindCounter {
			continue
		}
		if c, ok := r.reg.Get("counter/" + name).(gometrics.Counter); ok {
			s.Counters[name] = c.Count()
		}
	}
	for _, name := range r.checkOrder {
		rs := r.checks[name].summary()
		s.Checks = append(s.Checks, CheckSummary{
			Name:   name,
			Passes: rs.Hits,
			Fails:  rs.Total - rs.Hits,
		})
	}
	return s
}

// Names returns every metric name in sorted order.
func (s Summary) Names() []string {
	names := make([]string, 0, len(s.Rates)+len(s.Trends)+len(s.Counters))
	for name := range s.Rates {
		names = append(names, name)
	}
	for name := range s.Trends {
		names = append(names, name)
	}
	for name := range s.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the summary value of a metric by name: a RateSummary,
// TrendSummary or CounterSummary.
func (s Summary) Lookup(name string) (any, bool) {
	if v, ok := s.Rates[name]; ok {
		return v, true
	}
	if v, ok := s.Trends[name]; ok {
		return v, true
	}
	if v, ok := s.Counters[name]; ok {
		return CounterSummary{Count: v}, true
	}
	if name == "checks" && len(s.Checks) > 0 {
		var passes, total int64
		for _, c := range s.Checks {
			passes += c.Passes
			total += c.Passes + c.Fails
		}
		return RateSummary{Rate: float64(passes) / float64(total), Hits: passes, Total: total}, true
	}
	return nil, false
}
