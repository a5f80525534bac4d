// Package thresholds decides whether a run passed.
//
// A threshold is a CUE constraint unified with one metric's summary:
//
//	unexpected_error_rate: "rate: <=0"
//	http_req_duration:     "p95: <1000"
//
// The fields available are those of the summary type: rate, hits and
// total for rates (and "checks"); count, avg, min, med, max, p90 and p95
// in milliseconds for trends; count for counters.
//
// k6-style expressions such as "rate==0" or "p(95)<1000" are accepted
// and rewritten into the equivalent constraint.
package thresholds

import (
	"fmt"
	"regexp"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/cfergile/journal-starter/internal/metrics"
)

// Threshold is one constraint on one metric.
type Threshold struct {
	Metric string `json:"metric"`
	Expr   string `json:"expr"`
}

// Result is the outcome of one threshold.
type Result struct {
	Threshold
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

// Report is the outcome of every threshold of a run.
type Report struct {
	Passed  bool     `json:"passed"`
	Results []Result `json:"results"`
}

// FromMap flattens metric → expressions into a list ordered by metric
// name, keeping each metric's expressions in order.
func FromMap(m map[string][]string) []Threshold {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Threshold
	for _, name := range names {
		for _, expr := range m[name] {
			out = append(out, Threshold{Metric: name, Expr: expr})
		}
	}
	return out
}

// Evaluator compiles and checks thresholds. The zero value is not usable;
// call New.
type Evaluator struct {
	ctx *cue.Context
}

// New creates an evaluator with its own CUE context.
func New() *Evaluator {
	return &Evaluator{ctx: cuecontext.New()}
}

// Compile checks that expr is a valid threshold without evaluating it.
func (e *Evaluator) Compile(expr string) error {
	_, err := e.compile(expr)
	return err
}

func (e *Evaluator) compile(expr string) (cue.Value, error) {
	src := Rewrite(expr)
	v := e.ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("threshold %q: %s", expr, firstError(err))
	}
	if v.IncompleteKind() != cue.StructKind {
		return cue.Value{}, fmt.Errorf("threshold %q: must constrain summary fields, e.g. \"p95: <1000\"", expr)
	}
	return v, nil
}

// Evaluate checks every threshold against the summary. A threshold on a
// metric that was never recorded fails.
func (e *Evaluator) Evaluate(summary metrics.Summary, ts []Threshold) Report {
	report := Report{Passed: true, Results: make([]Result, 0, len(ts))}
	for _, t := range ts {
		r := Result{Threshold: t, Passed: true}
		if err := e.check(summary, t); err != nil {
			r.Passed = false
			r.Error = err.Error()
			report.Passed = false
		}
		report.Results = append(report.Results, r)
	}
	return report
}

func (e *Evaluator) check(summary metrics.Summary, t Threshold) error {
	constraint, err := e.compile(t.Expr)
	if err != nil {
		return err
	}
	value, ok := summary.Lookup(t.Metric)
	if !ok {
		return fmt.Errorf("metric %q was never recorded", t.Metric)
	}
	data := e.ctx.Encode(value)
	if err := data.Err(); err != nil {
		return fmt.Errorf("encode %s: %w", t.Metric, err)
	}
	if err := sameFields(constraint, data, t.Metric); err != nil {
		return err
	}
	if err := constraint.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", firstError(err))
	}
	return nil
}

// sameFields rejects constraints on fields the summary does not have,
// which would otherwise surface as an opaque incomplete-value error.
func sameFields(constraint, data cue.Value, metric string) error {
	it, err := constraint.Fields()
	if err != nil {
		return fmt.Errorf("%s", firstError(err))
	}
	for it.Next() {
		sel := it.Selector()
		if !data.LookupPath(cue.MakePath(sel)).Exists() {
			return fmt.Errorf("metric %q has no field %q", metric, sel.String())
		}
	}
	return nil
}

// k6Expr matches k6 threshold syntax: an aggregation, an operator and a
// number.
var k6Expr = regexp.MustCompile(`^\s*(rate|count|avg|min|med|max|p\(\s*(\d+)\s*\))\s*(==|===|!=|<=|>=|<|>)\s*(-?\d+(?:\.\d+)?)\s*$`)

// Rewrite turns a k6-style expression into a CUE constraint. Anything
// else is returned unchanged.
//
// Equality becomes a closed range so that an integer literal still
// matches a float-valued field.
func Rewrite(expr string) string {
	m := k6Expr.FindStringSubmatch(expr)
	if m == nil {
		return expr
	}
	field := m[1]
	if m[2] != "" {
		field = "p" + m[2]
	}
	op, num := m[3], m[4]
	switch op {
	case "==", "===":
		return fmt.Sprintf("%s: >=%s & <=%s", field, num, num)
	default:
		return fmt.Sprintf("%s: %s%s", field, op, num)
	}
}

func firstError(err error) string {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}
