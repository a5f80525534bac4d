package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cfergile/journal-starter/internal/config"
	"github.com/cfergile/journal-starter/internal/journal"
	"github.com/cfergile/journal-starter/internal/metrics"
	"github.com/cfergile/journal-starter/internal/profile"
	"github.com/cfergile/journal-starter/internal/runner"
	"github.com/cfergile/journal-starter/internal/scenario"
	"github.com/cfergile/journal-starter/internal/store"
	"github.com/cfergile/journal-starter/internal/thresholds"
)

// RunOptions holds flags for the smoke and crud commands.
type RunOptions struct {
	*RootOptions
	Profile    string
	VUs        int
	Iterations int
	Duration   time.Duration
	Sleep      time.Duration
	Rate       float64
}

// RunReport is everything a finished run reports.
type RunReport struct {
	RunID      string            `json:"run_id"`
	Scenario   string            `json:"scenario"`
	Profile    string            `json:"profile"`
	BaseURL    string            `json:"base_url"`
	VUs        int               `json:"vus"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Iterations int64             `json:"iterations"`
	Failed     int64             `json:"iterations_failed"`
	Metrics    metrics.Summary   `json:"metrics"`
	Thresholds thresholds.Report `json:"thresholds"`
}

// Passed reports whether every threshold held.
func (r RunReport) Passed() bool {
	return r.Thresholds.Passed
}

// NewSmokeCommand creates the smoke command.
func NewSmokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Probe the health endpoint under constant load",
		Long: `Run GET /healthz from several virtual users for a fixed duration.

Default profile: 5 VUs for 30s, 1s sleep, thresholds
http_req_failed rate <= 0 and http_req_duration p95 < 800ms.

Examples:
  journalload smoke
  BASE_URL=http://localhost:8000 journalload smoke --vus 2 --duration 10s
  journalload smoke --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, profile.ScenarioSmoke, cmd)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

// NewCRUDCommand creates the crud command.
func NewCRUDCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "crud",
		Short: "Run create, read, update, list, delete cycles",
		Long: `Run one full CRUD cycle per iteration against /entries/.

Every entry written carries the "k6 " prefix. With CLEAN_OLD=true (the
default) each cycle also deletes leftover test entries from earlier runs.

Refuses to run against a production host unless ALLOW_PROD=true.

Default profile: 3 VUs sharing 3 iterations, 500ms sleep, thresholds
unexpected_error_rate rate <= 0 and http_req_duration p95 < 1000ms.

Examples:
  journalload crud
  journalload crud --vus 10 --iterations 100 --db ./runs.db
  journalload crud --profile ./soak.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, profile.ScenarioCRUD, cmd)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *RunOptions) {
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "YAML run profile (defaults to the built-in profile)")
	cmd.Flags().IntVar(&opts.VUs, "vus", 0, "number of virtual users")
	cmd.Flags().IntVar(&opts.Iterations, "iterations", 0, "total iterations shared by all VUs")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "run for this long instead of an iteration budget")
	cmd.Flags().DurationVar(&opts.Sleep, "sleep", 0, "pause after each iteration")
	cmd.Flags().Float64Var(&opts.Rate, "rate", 0, "max iteration starts per second across all VUs (0 = unlimited)")
}

func runScenario(opts *RunOptions, name string, cmd *cobra.Command) error {
	// Configuration and the production guard come first: a refused run
	// must not issue a single request.
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if name == profile.ScenarioCRUD {
		if err := cfg.GuardProduction(); err != nil {
			return WrapExitError(ExitCommandError, "refusing to run", err)
		}
	}

	prof, err := resolveProfile(opts, name, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid profile", err)
	}

	logger := newLogger(opts.RootOptions, cfg, cmd)
	logEnvFile(logger, opts.EnvFile, cfg)

	var (
		st   *store.Store
		sink scenario.CallSink
	)
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
		sink = st
	}

	doer := opts.Doer
	if doer == nil {
		doer = journal.NewPesterClient(cfg.Timeout, logger)
	}
	client := journal.NewClient(cfg.BaseURL, doer)

	reg := metrics.NewRegistry()
	rec := scenario.NewRecorder(reg, sink, logger)

	var sc runner.Scenario
	switch name {
	case profile.ScenarioSmoke:
		sc = scenario.NewSmoke(client, rec)
	case profile.ScenarioCRUD:
		sc = scenario.NewCRUD(client, rec, bool(cfg.CleanOld), logger)
	}

	r := runner.New(sc, prof.Options(), reg, logger)
	if opts.IDGenerator != nil {
		r.WithIDGenerator(opts.IDGenerator)
	}
	runID := r.NewRunID()

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	// Bookkeeping uses its own context so an interrupted run is still
	// stamped as finished.
	if st != nil {
		if err := st.BeginRun(context.Background(), store.Run{
			ID:        runID,
			Scenario:  name,
			BaseURL:   cfg.BaseURL,
			StartedAt: time.Now(),
		}); err != nil {
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}

	result, err := r.RunWithID(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	summary := reg.Summary()
	report := RunReport{
		RunID:      result.RunID,
		Scenario:   result.Scenario,
		Profile:    prof.Name,
		BaseURL:    cfg.BaseURL,
		VUs:        result.VUs,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Iterations: result.Iterations,
		Failed:     result.Failed,
		Metrics:    summary,
		Thresholds: thresholds.New().Evaluate(summary, prof.ThresholdList()),
	}

	if st != nil {
		data, err := json.Marshal(report)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode summary", err)
		}
		if err := st.FinishRun(context.Background(), runID, report.FinishedAt, report.Passed(), data); err != nil {
			logger.Error("failed to finish run record", "run_id", runID, "error", err)
		}
	}

	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
	if opts.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		renderSummary(cmd.OutOrStdout(), report)
	}

	if !report.Passed() {
		return &ExitError{Code: ExitFailure, Message: "thresholds failed", Reported: true}
	}
	return nil
}

// resolveProfile loads --profile or the built-in profile and applies the
// flags the user actually set.
func resolveProfile(opts *RunOptions, name string, cmd *cobra.Command) (*profile.Profile, error) {
	var (
		prof *profile.Profile
		err  error
	)
	if opts.Profile != "" {
		prof, err = profile.Load(opts.Profile)
	} else {
		prof, err = profile.Builtin(name)
	}
	if err != nil {
		return nil, err
	}
	if prof.Scenario != name {
		return nil, fmt.Errorf("profile %q is for the %s scenario, not %s", prof.Name, prof.Scenario, name)
	}

	var o profile.Overrides
	flags := cmd.Flags()
	if flags.Changed("vus") {
		o.VUs = &opts.VUs
	}
	if flags.Changed("iterations") {
		o.Iterations = &opts.Iterations
	}
	if flags.Changed("duration") {
		o.Duration = &opts.Duration
	}
	if flags.Changed("sleep") {
		o.Sleep = &opts.Sleep
	}
	if flags.Changed("rate") {
		o.Rate = &opts.Rate
	}
	return prof.Apply(o)
}

// newLogger configures slog from LOG_LEVEL, raised to debug by --verbose.
func newLogger(opts *RootOptions, cfg config.Config, cmd *cobra.Command) *slog.Logger {
	logLevel := cfg.SlogLevel()
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	var w io.Writer = cmd.ErrOrStderr()
	if opts.LogWriter != nil {
		w = opts.LogWriter
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	return slog.New(handler)
}

// logEnvFile reports which dotenv file, if any, configured the run.
func logEnvFile(logger *slog.Logger, requested string, cfg config.Config) {
	switch {
	case cfg.EnvFile != "":
		logger.Debug("loaded env file", "path", cfg.EnvFile)
	case requested != "":
		logger.Debug("env file not found, using process environment", "path", requested)
	}
}

// signalContext cancels on SIGINT or SIGTERM. Use command's context if
// available (for testing), otherwise create one.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after in-flight iterations", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// Execute runs the root command with args and returns the process exit
// code. Errors not already shown are written in the selected format.
func Execute(args []string, stdout, stderr io.Writer) int {
	return ExecuteWithOptions(&RootOptions{}, args, stdout, stderr)
}

// ExecuteWithOptions is Execute with injected options (for testing).
func ExecuteWithOptions(opts *RootOptions, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommandWithOptions(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Reported {
		return exitErr.Code
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose}
	if opts.Format == "json" {
		formatter.Writer = stdout
	}
	_ = formatter.Error(ErrorCode(err), err.Error(), nil)

	// cobra's own errors (unknown flag, bad args) are usage errors.
	if !errors.As(err, &exitErr) {
		return ExitCommandError
	}
	return exitErr.Code
}
