// Package profile loads run profiles: which scenario to run, how to
// schedule it and which thresholds decide pass or fail.
package profile

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cfergile/journal-starter/internal/runner"
	"github.com/cfergile/journal-starter/internal/thresholds"
)

// Scenario names.
const (
	ScenarioSmoke = "smoke"
	ScenarioCRUD  = "crud"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Profile is a parsed run profile.
type Profile struct {
	// Name identifies the profile (required).
	Name string `yaml:"name"`

	// Description is shown in help output.
	Description string `yaml:"description,omitempty"`

	// Scenario is smoke or crud (required).
	Scenario string `yaml:"scenario"`

	// VUs is the number of concurrent virtual users.
	VUs int `yaml:"vus"`

	// Iterations is shared across VUs. Zero means run for Duration.
	Iterations int `yaml:"iterations,omitempty"`

	// Duration bounds a run without an iteration budget.
	Duration time.Duration `yaml:"duration,omitempty"`

	// Sleep is the pause after every iteration.
	Sleep time.Duration `yaml:"sleep,omitempty"`

	// Rate caps iteration starts per second across all VUs.
	Rate float64 `yaml:"rate,omitempty"`

	// MaxDuration stops an iteration-budget run that takes too long.
	MaxDuration time.Duration `yaml:"max_duration,omitempty"`

	// Thresholds maps a metric name to constraints on its summary.
	Thresholds map[string][]string `yaml:"thresholds,omitempty"`
}

// Load reads and parses a profile YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	return &p, nil
}

// Builtin returns the embedded default profile of a scenario.
func Builtin(scenario string) (*Profile, error) {
	data, err := builtinFS.ReadFile("builtin/" + scenario + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no built-in profile %q (have %s)", scenario, strings.Join(BuiltinNames(), ", "))
	}
	return Parse(data)
}

// BuiltinNames lists the embedded profiles.
func BuiltinNames() []string {
	entries, _ := builtinFS.ReadDir("builtin")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Validate checks required fields, scheduling and threshold syntax.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}

	switch p.Scenario {
	case ScenarioSmoke, ScenarioCRUD:
	case "":
		return fmt.Errorf("scenario is required")
	default:
		return fmt.Errorf("scenario must be %q or %q, got %q", ScenarioSmoke, ScenarioCRUD, p.Scenario)
	}

	if err := p.Options().Validate(); err != nil {
		return err
	}

	eval := thresholds.New()
	for _, t := range p.ThresholdList() {
		if err := eval.Compile(t.Expr); err != nil {
			return fmt.Errorf("thresholds.%s: %w", t.Metric, err)
		}
	}
	return nil
}

// Options converts the scheduling fields to runner options.
func (p *Profile) Options() runner.Options {
	return runner.Options{
		VUs:           p.VUs,
		Iterations:    p.Iterations,
		Duration:      p.Duration,
		Sleep:         p.Sleep,
		RatePerSecond: p.Rate,
		MaxDuration:   p.MaxDuration,
	}
}

// ThresholdList flattens Thresholds in a stable order.
func (p *Profile) ThresholdList() []thresholds.Threshold {
	return thresholds.FromMap(p.Thresholds)
}

// Overrides are command-line values that replace profile fields. Nil
// pointers leave the field alone.
type Overrides struct {
	VUs        *int
	Iterations *int
	Duration   *time.Duration
	Sleep      *time.Duration
	Rate       *float64
}

// Apply returns a copy of p with the overrides applied and revalidated.
//
// Setting a duration without iterations switches a shared-iterations
// profile to the constant-VUs executor.
func (p *Profile) Apply(o Overrides) (*Profile, error) {
	out := *p
	if o.VUs != nil {
		out.VUs = *o.VUs
	}
	if o.Duration != nil {
		out.Duration = *o.Duration
		if o.Iterations == nil {
			out.Iterations = 0
		}
	}
	if o.Iterations != nil {
		out.Iterations = *o.Iterations
	}
	if o.Sleep != nil {
		out.Sleep = *o.Sleep
	}
	if o.Rate != nil {
		out.Rate = *o.Rate
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid overrides: %w", err)
	}
	return &out, nil
}
