package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/geofetch/geofetch/pkg/api"
)

//nolint:gochecknoglobals // Cobra flags are typically global
var serveAddr string

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a read-only API over dataset configurations",
	Long:  `Serve lists the datasets under the base path along with their produced files.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	cfg, err := LoadCLIConfig(cfgFile)
	if err != nil {
		return err
	}

	if serveAddr != "" {
		cfg.API.Addr = serveAddr
	}

	stopMetrics := startMetrics(cfg)
	defer stopMetrics()

	svc := api.NewService(&cfg.API, logger)
	if err := svc.Start(cmd.Context()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	// Graceful shutdown
	return svc.Stop()
}
