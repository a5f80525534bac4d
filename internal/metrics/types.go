package metrics

// Summary is a point-in-time copy of a registry.
type Summary struct {
	Rates    map[string]RateSummary  `json:"rates"`
	Trends   map[string]TrendSummary `json:"trends"`
	Counters map[string]int64        `json:"counters"`
	Checks   []CheckSummary          `json:"checks"`
}

// RateSummary is the snapshot of a Rate.
type RateSummary struct {
	Rate  float64 `json:"rate"`
	Hits  int64   `json:"hits"`
	Total int64   `json:"total"`
}

// TrendSummary is the snapshot of a Trend. Durations are milliseconds.
type TrendSummary struct {
	Count int64   `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Med   float64 `json:"med"`
	Max   float64 `json:"max"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
}

// CounterSummary is the snapshot of a Counter.
type CounterSummary struct {
	Count int64 `json:"count"`
}

// CheckSummary is the pass/fail tally of one named check.
type CheckSummary struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// PassRate returns the fraction of passing evaluations.
func (c CheckSummary) PassRate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}
