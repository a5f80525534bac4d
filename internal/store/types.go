package store

import "time"

// Run is one stored load run.
type Run struct {
	ID         string     `json:"id"`
	Scenario   string     `json:"scenario"`
	BaseURL    string     `json:"base_url"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Passed     *bool      `json:"passed,omitempty"`
	Summary    string     `json:"summary,omitempty"`
}

// CallRecord is one HTTP request made during a run together with how it
// was classified.
type CallRecord struct {
	Seq      int64         `json:"seq"`
	RunID    string        `json:"run_id"`
	VU       int           `json:"vu"`
	Iter     int           `json:"iter"`
	Step     string        `json:"step"`
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	Status   int           `json:"status"`
	Expected []int         `json:"expected"`
	OK       bool          `json:"ok"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}
