package cli

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"github.com/cfergile/journal-starter/internal/config"
	"github.com/cfergile/journal-starter/internal/fakeapi"
)

// ServeFakeOptions holds flags for the serve-fake command.
type ServeFakeOptions struct {
	*RootOptions
	Addr string
}

// NewServeFakeCommand creates the serve-fake command.
func NewServeFakeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeFakeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Serve an in-memory journal API",
		Long: `Serve an in-memory journal API for local runs.

Data lives only as long as the process. Stop with Ctrl-C.

Example:
  journalload serve-fake --addr 127.0.0.1:8000 &
  BASE_URL=http://127.0.0.1:8000 journalload crud`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeFake(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8000", "listen address")

	return cmd
}

func runServeFake(opts *ServeFakeOptions, cmd *cobra.Command) error {
	// Only LOG_LEVEL matters here; a broken BASE_URL must not stop the fake.
	cfg, err := config.Load(opts.EnvFile)
	if err != nil {
		cfg = config.Default()
	}
	logger := newLogger(opts.RootOptions, cfg, cmd)
	logEnvFile(logger, opts.EnvFile, cfg)

	ctx, stop := signalContext(cmd, logger)
	defer stop()

	api := fakeapi.New(logger)
	ready := func(addr net.Addr) {
		fmt.Fprintf(cmd.OutOrStdout(), "Fake journal API listening on http://%s\n", addr)
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	}
	if err := api.Serve(ctx, opts.Addr, ready); err != nil {
		return WrapExitError(ExitCommandError, "fake API failed", err)
	}

	logger.Info("fake API stopped gracefully")
	return nil
}

