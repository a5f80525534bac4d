package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cfergile/journal-starter/internal/journal"
	"github.com/cfergile/journal-starter/internal/runner"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	EnvFile  string
	Database string

	// Doer overrides the HTTP transport (for testing).
	// If nil, a single-attempt pester client is used.
	Doer journal.Doer

	// IDGenerator overrides run id generation (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator runner.IDGenerator

	// LogWriter receives log output. If nil, the command's stderr is used.
	LogWriter io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommandWithOptions creates the root command for the journalload
// CLI around opts, so tests can inject a transport and run ids before flags
// are parsed.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journalload",
		Short: "Load and smoke tests for the journal API",
		Long: `Drive the journal-entry API with concurrent virtual users.

smoke probes /healthz; crud runs full create, read, update, list, delete
cycles and sweeps up test entries left by earlier runs. Each run ends
with a summary of checks and metrics, and exits 1 if a threshold failed.

Configuration comes from the environment (BASE_URL, ALLOW_PROD,
CLEAN_OLD, HTTP_TIMEOUT, LOG_LEVEL), optionally loaded from --env-file.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database recording runs and calls (optional)")

	// Add subcommands
	cmd.AddCommand(NewSmokeCommand(opts))
	cmd.AddCommand(NewCRUDCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewServeFakeCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
