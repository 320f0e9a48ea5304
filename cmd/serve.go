// =============================================================================
// SEPA Direct Debit Export - Serve Command
// =============================================================================
//
// COMMAND USAGE:
//   sepaexport serve [--addr host:port]
//
// Starts the HTTP server with the export form endpoint and the download
// endpoint. Stops on SIGINT or SIGTERM.
//
// =============================================================================

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/ginjaninja78/sepa-export/internal/directory"
	"github.com/ginjaninja78/sepa-export/internal/server"
	"github.com/ginjaninja78/sepa-export/internal/types"
	"github.com/ginjaninja78/sepa-export/pkg/utils"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the export and download HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		addr := cfg.ListenAddr
		if serveAddr != "" {
			addr = serveAddr
		}

		loader := func(ctx context.Context) ([]types.MemberRow, error) {
			return directory.LoadMembers(ctx, cfg.Members)
		}
		srv := server.New(logger, cfg, utils.NewExportStore(cfg.ExportDir), loader)

		if err := srv.Start(addr); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		logger.Info("shutting down", slog.String("addr", srv.Addr))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: listen_addr from the configuration)")
}
