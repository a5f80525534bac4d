package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cfergile/journal-starter/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	RunID      string
	Step       string // optional - filter to one step
	Unexpected bool   // optional - only calls with an unacceptable status
	Limit      int
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Run   store.Run          `json:"run"`
	Calls []store.CallRecord `json:"calls"`
	Stats TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalCalls int `json:"total_calls"`
	Unexpected int `json:"unexpected"`
	VUs        int `json:"vus"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded calls of a run",
		Long: `Show every HTTP call a run recorded, in the order they were made.

Runs are recorded when smoke or crud is given --db. Without --run, the
most recent runs are listed.

Examples:
  journalload trace --db ./runs.db
  journalload trace --db ./runs.db --run 01912c4e-...
  journalload trace --db ./runs.db --run 01912c4e-... --step cleanup
  journalload trace --db ./runs.db --run 01912c4e-... --unexpected --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().StringVar(&opts.Step, "step", "", "filter to one step (create, read, update, list, delete, verify-delete, cleanup, health)")
	cmd.Flags().BoolVar(&opts.Unexpected, "unexpected", false, "only show calls with an unexpected status")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list when --run is not given")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required for trace")
	}
	ctx := context.Background()

	// store.Open would create a missing file; a mistyped path must not
	// read as an empty history.
	if _, err := os.Stat(opts.Database); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewExitError(ExitCommandError, fmt.Sprintf("database %s does not exist", opts.Database))
		}
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if opts.Format == "json" {
			return formatter.Success(runs)
		}
		outputRunsText(cmd.OutOrStdout(), runs)
		return nil
	}

	run, err := st.ReadRun(ctx, opts.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.RunID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	calls, err := st.ReadCalls(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read calls", err)
	}

	result := buildTrace(run, calls, opts.Step, opts.Unexpected)

	// Output results
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

// buildTrace filters calls and computes stats over the filtered set.
func buildTrace(run store.Run, calls []store.CallRecord, step string, unexpectedOnly bool) TraceResult {
	result := TraceResult{Run: run, Calls: []store.CallRecord{}}
	vus := make(map[int]bool)
	for _, c := range calls {
		if step != "" && c.Step != step {
			continue
		}
		if unexpectedOnly && c.OK {
			continue
		}
		result.Calls = append(result.Calls, c)
		vus[c.VU] = true
		if !c.OK {
			result.Stats.Unexpected++
		}
	}
	result.Stats.TotalCalls = len(result.Calls)
	result.Stats.VUs = len(vus)
	return result
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	run := result.Run
	fmt.Fprintf(w, "Trace for Run: %s\n", run.ID)
	fmt.Fprintf(w, "Scenario: %s  Base URL: %s\n", run.Scenario, run.BaseURL)
	fmt.Fprintf(w, "Status: %s\n", runStatus(run))
	fmt.Fprintln(w)

	// Calls section
	fmt.Fprintln(w, "=== Calls ===")
	if len(result.Calls) == 0 {
		fmt.Fprintln(w, "  (no calls)")
	}
	for _, c := range result.Calls {
		fmt.Fprintf(w, "  [%d] vu=%d iter=%d %-13s %s %s -> %s %s\n",
			c.Seq, c.VU, c.Iter, c.Step, c.Method, c.URL, statusText(c), mark(c.OK))
		if verbose {
			fmt.Fprintf(w, "       expected: %s  duration: %s\n",
				formatStatuses(c.Expected), c.Duration.Round(time.Microsecond))
		}
		if c.Error != "" {
			fmt.Fprintf(w, "       error: %s\n", c.Error)
		}
	}
	fmt.Fprintln(w)

	// Stats section
	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Calls: %d\n", result.Stats.TotalCalls)
	fmt.Fprintf(w, "  Unexpected:  %d\n", result.Stats.Unexpected)
	fmt.Fprintf(w, "  VUs:         %d\n", result.Stats.VUs)
}

func outputRunsText(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-5s  %s  %s  %s\n",
			r.ID, r.Scenario, r.StartedAt.Format(time.RFC3339), runStatus(r), r.BaseURL)
	}
}

func statusText(c store.CallRecord) string {
	if c.Status == 0 {
		return "ERR"
	}
	return fmt.Sprintf("%d", c.Status)
}

func formatStatuses(statuses []int) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = fmt.Sprintf("%d", s)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// runStatus returns a human-readable run status.
func runStatus(r store.Run) string {
	switch {
	case r.Passed == nil:
		return "Incomplete"
	case *r.Passed:
		return "Passed"
	default:
		return "Failed"
	}
}
