package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cfergile/journal-starter/internal/metrics"
)

const summaryLabelWidth = 28

// renderSummary writes the end-of-run summary in the style of k6.
func renderSummary(w io.Writer, r RunReport) {
	fmt.Fprintf(w, "  scenario: %s (profile %s)\n", r.Scenario, r.Profile)
	fmt.Fprintf(w, "  base url: %s\n", r.BaseURL)
	fmt.Fprintf(w, "  run id:   %s\n", r.RunID)
	fmt.Fprintf(w, "  vus: %d, iterations: %d (%d failed), elapsed: %s\n",
		r.VUs, r.Iterations, r.Failed, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  █ checks")
	fmt.Fprintln(w)
	if len(r.Metrics.Checks) == 0 {
		fmt.Fprintln(w, "    (no checks)")
	}
	for _, c := range r.Metrics.Checks {
		fmt.Fprintf(w, "    %s %s %7.2f%%  %d / %d\n",
			mark(c.Fails == 0), pad(c.Name, 32, ' '), c.PassRate()*100, c.Passes, c.Passes+c.Fails)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  █ metrics")
	fmt.Fprintln(w)
	if v, ok := r.Metrics.Lookup("checks"); ok {
		writeMetric(w, "checks", v)
	}
	for _, name := range r.Metrics.Names() {
		v, _ := r.Metrics.Lookup(name)
		writeMetric(w, name, v)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  █ thresholds")
	fmt.Fprintln(w)
	if len(r.Thresholds.Results) == 0 {
		fmt.Fprintln(w, "    (none)")
	}
	for _, t := range r.Thresholds.Results {
		fmt.Fprintf(w, "    %s %s %s\n", mark(t.Passed), pad(t.Metric, summaryLabelWidth, ' '), t.Expr)
		if !t.Passed {
			fmt.Fprintf(w, "        %s\n", t.Error)
		}
	}
	fmt.Fprintln(w)

	if r.Passed() {
		fmt.Fprintln(w, "  PASSED")
	} else {
		fmt.Fprintln(w, "  FAILED: thresholds crossed")
	}
}

func writeMetric(w io.Writer, name string, v any) {
	label := pad(name, summaryLabelWidth, '.') + ":"
	switch s := v.(type) {
	case metrics.RateSummary:
		fmt.Fprintf(w, "    %s %.2f%% %d / %d\n", label, s.Rate*100, s.Hits, s.Total)
	case metrics.TrendSummary:
		fmt.Fprintf(w, "    %s avg=%s min=%s med=%s max=%s p(90)=%s p(95)=%s\n",
			label, ms(s.Avg), ms(s.Min), ms(s.Med), ms(s.Max), ms(s.P90), ms(s.P95))
	case metrics.CounterSummary:
		fmt.Fprintf(w, "    %s %d\n", label, s.Count)
	}
}

func pad(s string, width int, fill rune) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(string(fill), width-n)
}

func ms(v float64) string {
	return fmt.Sprintf("%.2fms", v)
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}
