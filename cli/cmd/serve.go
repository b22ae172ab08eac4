package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vigil-systems/vigil/collector/server"
	"github.com/vigil-systems/vigil/common/config"
	"github.com/vigil-systems/vigil/common/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audit event collector",
	Long: `Starts the collector HTTP service using the configuration from
$VIGIL_CONFIG_DIR/config.yaml (default /etc/vigil) and VIGIL_* environment
variables. Runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With("service", "collector")
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx, cfg, logger)
}
