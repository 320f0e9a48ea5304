// =============================================================================
// SEPA Direct Debit Export - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   sepaexport validate [--date <date>]
//
// Checks the configuration and the club profile, then loads the members and
// reports which of them would be skipped. Nothing is written.
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
	"github.com/ginjaninja78/sepa-export/internal/validation"
)

var validateDate string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and the member data without exporting",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		date := validateDate
		if date == "" {
			date = time.Now().Format(validation.DateLayout)
		}

		return runValidate(cmd.Context(), cfg, logger, date, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateDate, "date", "", "Collection date to validate against (default: today)")
}

// runValidate prints the configuration problems, or the member check.
func runValidate(ctx context.Context, cfg *config.Config, logger *slog.Logger, rawDate string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	date, err := validation.NormalizeExecutionDate(rawDate)
	if err != nil {
		return err
	}

	club, err := cfg.ClubProfile(date, "")
	if err != nil {
		return err
	}

	if err := checkClub(club, out); err != nil {
		return err
	}
	fmt.Fprintln(out, "Club configuration is valid.")

	rows, err := directory.LoadMembers(ctx, cfg.Members)
	if err != nil {
		return fmt.Errorf("failed to load members: %w", err)
	}

	records, rejections := converter.FilterRecords(club, rows)
	reportRejections(logger, out, rejections)

	fmt.Fprintf(out, "Members read: %d\n", len(rows))
	fmt.Fprintf(out, "Billable:     %d\n", len(records))
	fmt.Fprintf(out, "Skipped:      %d\n", len(rejections))

	return nil
}
