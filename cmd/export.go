// =============================================================================
// SEPA Direct Debit Export - Export Command
// =============================================================================
//
// This file defines the 'export' command, the main command of the tool. It
// runs one complete export.
//
// COMMAND USAGE:
//   sepaexport export --date <date> [flags]
//
// FLAGS:
//   --date         : Requested collection date (YYYY-MM-DD, DD.MM.YYYY, MM/DD/YYYY, YYYYMMDD)
//   --purpose      : Remittance text (default: club.default_purpose)
//   --output-dir   : Override export_dir from the configuration
//   --allow-empty  : Write a document even if no member qualifies
//   --dry-run      : Print the document to stdout instead of storing it
//
// PROCESSING PIPELINE:
//   1. Load configuration
//   2. Assemble and validate the club profile for this run
//   3. Load members from the configured source
//   4. Run the export pipeline (filter, build)
//   5. Report skipped members
//   6. Store the document (and a rejection report)
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/ginjaninja78/sepa-export/internal/config"
	"github.com/ginjaninja78/sepa-export/internal/converter"
	"github.com/ginjaninja78/sepa-export/internal/directory"
	"github.com/ginjaninja78/sepa-export/internal/types"
	"github.com/ginjaninja78/sepa-export/internal/validation"
	"github.com/ginjaninja78/sepa-export/internal/xmlwriter"
	"github.com/ginjaninja78/sepa-export/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// exportOptions holds the flags of one export run.
type exportOptions struct {
	Date       string
	Purpose    string
	OutputDir  string
	AllowEmpty bool
	DryRun     bool
}

var exportFlags exportOptions

// =============================================================================
// EXPORT COMMAND DEFINITION
// =============================================================================

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Create a SEPA Direct Debit file for all billable members",
	Long: `The export command loads the billable members, resolves each member's fee
and writes a pain.008.002.02 document to the export directory.

Members without a fee group, with an invalid IBAN or with an invalid BIC are
skipped. Each skipped member is printed as a warning and listed in a
rejection report next to the document.

The run fails without writing anything if the club configuration is invalid,
or if no member qualifies and empty exports are not allowed.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		return runExport(cmd.Context(), cfg, logger, exportFlags, cmd.OutOrStdout(), cmd.ErrOrStderr(), time.Now())
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVar(&exportFlags.Date, "date", "", "Requested collection date")
	exportCmd.Flags().StringVar(&exportFlags.Purpose, "purpose", "", "Remittance text (default: club.default_purpose)")
	exportCmd.Flags().StringVar(&exportFlags.OutputDir, "output-dir", "", "Override the export directory")
	exportCmd.Flags().BoolVar(&exportFlags.AllowEmpty, "allow-empty", false, "Write a document even if no member qualifies")
	exportCmd.Flags().BoolVar(&exportFlags.DryRun, "dry-run", false, "Print the document to stdout instead of storing it")

	exportCmd.MarkFlagRequired("date")
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// checkClub prints every problem of the club profile to w. The returned
// error only counts them, so they are not printed twice.
func checkClub(club types.Club, w io.Writer) error {
	problems := validation.ValidateClub(club)
	if len(problems) == 0 {
		return nil
	}

	fmt.Fprint(w, validation.FormatErrors(problems))
	return fmt.Errorf("%w: %d problem(s)", converter.ErrConfigurationInvalid, len(problems))
}

// runExport runs one export. The document is written to out on a dry run;
// warnings and the summary go to errOut.
func runExport(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts exportOptions, out, errOut io.Writer, now time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// =========================================================================
	// STEP 1: CLUB PROFILE
	// =========================================================================

	date, err := validation.NormalizeExecutionDate(opts.Date)
	if err != nil {
		return err
	}

	club, err := cfg.ClubProfile(date, opts.Purpose)
	if err != nil {
		return fmt.Errorf("failed to build club profile: %w", err)
	}

	if err := checkClub(club, errOut); err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: LOAD MEMBERS
	// =========================================================================

	logger.Debug("loading members", slog.String("source", cfg.Members.Source))

	rows, err := directory.LoadMembers(ctx, cfg.Members)
	if err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}

	logger.Info("members loaded", slog.String("source", cfg.Members.Source), slog.Int("rows", len(rows)))

	// =========================================================================
	// STEP 3: EXPORT PIPELINE
	// =========================================================================

	builder := xmlwriter.NewBuilder()
	builder.Now = func() time.Time { return now }

	result, err := converter.Export(club, rows, converter.Options{
		AllowEmpty: cfg.AllowEmptyExport || opts.AllowEmpty,
		Builder:    builder,
	})

	// =========================================================================
	// STEP 4: REPORT SKIPPED MEMBERS
	// =========================================================================

	if result != nil {
		reportRejections(logger, errOut, result.Rejections)
	}

	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 5: STORE DOCUMENT
	// =========================================================================

	if opts.DryRun {
		if _, err := out.Write(result.XML); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
		printSummary(errOut, "(dry run)", result)
		return nil
	}

	dir := cfg.ExportDir
	if opts.OutputDir != "" {
		dir = opts.OutputDir
	}
	store := utils.NewExportStore(dir)

	name, err := store.Save(now, result.XML)
	if err != nil {
		return fmt.Errorf("failed to store export: %w", err)
	}

	reportPath, err := store.WriteRejectionReport(name, result.Rejections, now)
	if err != nil {
		logger.Error("writing rejection report", slog.Any("err", err))
	}

	logger.Info("export created",
		slog.String("file", name),
		slog.String("dir", dir),
		slog.Int("transactions", result.Stats.Accepted),
		slog.Int("rejected", result.Stats.Rejected),
		slog.String("control_sum", result.Stats.ControlSum.StringFixed(2)),
	)

	printSummary(errOut, name, result)
	if reportPath != "" {
		fmt.Fprintf(errOut, "Rejection report: %s\n", reportPath)
	}

	return nil
}

// reportRejections logs each skipped member and prints one warning line for
// the operator.
func reportRejections(logger *slog.Logger, w io.Writer, rejections []types.Rejection) {
	for _, rejection := range rejections {
		logger.Warn("member skipped",
			slog.String("member_id", rejection.MemberID),
			slog.String("name", rejection.Name),
			slog.String("reason", string(rejection.Reason)),
			slog.String("value", rejection.Value),
		)

		if rejection.Value != "" {
			fmt.Fprintf(w, "WARNING: skipped %s (%s): %s %q\n", rejection.Name, rejection.MemberID, rejection.Reason, rejection.Value)
		} else {
			fmt.Fprintf(w, "WARNING: skipped %s (%s): %s\n", rejection.Name, rejection.MemberID, rejection.Reason)
		}
	}
}

// printSummary prints the run totals.
func printSummary(w io.Writer, file string, result *converter.Result) {
	fmt.Fprintln(w, "\n=== Export Complete ===")
	fmt.Fprintf(w, "File:         %s\n", file)
	fmt.Fprintf(w, "Members read: %d\n", result.Stats.RowsRead)
	fmt.Fprintf(w, "Transactions: %d\n", result.Stats.Accepted)
	fmt.Fprintf(w, "Skipped:      %d\n", result.Stats.Rejected)
	fmt.Fprintf(w, "Control sum:  %s EUR\n", result.Stats.ControlSum.StringFixed(2))
}
