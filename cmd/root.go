// =============================================================================
// SEPA Direct Debit Export - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (sepaexport)
//   ├── exportCmd   (sepaexport export)
//   ├── validateCmd (sepaexport validate)
//   ├── serveCmd    (sepaexport serve)
//   └── versionCmd  (sepaexport version)
//
// The root command owns the global flags (--config, --verbose) and the
// helpers every command uses to load the configuration and build a logger.
//
// =============================================================================

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/ginjaninja78/sepa-export/internal/config"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "sepaexport",
	Short: "SEPA Direct Debit Export - create pain.008 collection files for club fees",
	Long: `sepaexport turns the billable members of a club into a SEPA Direct Debit
initiation file (ISO 20022 pain.008.002.02) that can be uploaded to the bank.

Each member's fee is resolved from the club's group -> fee mapping. Members
without a fee group, with an invalid IBAN or with an invalid BIC are left out
and reported as warnings.

Example Usage:
  sepaexport export --date 2025-10-01 --purpose "Membership 2025"
  sepaexport export --date 01.10.2025 --dry-run > preview.xml
  sepaexport validate --config ./club.yaml
  sepaexport serve --addr :8080`,

	// Execute prints the error; usage is only shown for --help.
	SilenceUsage:  true,
	SilenceErrors: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig loads the configuration file named by --config and builds the
// logger for it. Log output goes to w.
func loadConfig(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, newLogger(w, cfg.LogLevel, verbose), nil
}

// newLogger creates a text logger writing to w at the given level.
func newLogger(w io.Writer, level string, debug bool) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}
