package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nghyane/query-gateway/internal/app"
	"github.com/nghyane/query-gateway/internal/bootstrap"
	"github.com/nghyane/query-gateway/internal/config"
	"github.com/nghyane/query-gateway/internal/logging"
	log "github.com/nghyane/query-gateway/internal/logging"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Long: `Start the query-gateway HTTP server.

The configuration file is watched; poll, stream and model listing settings
apply to new requests without a restart.`,
	RunE: runServe,
}

func runServe(c *cobra.Command, _ []string) error {
	logging.SetupBaseLogger()

	result, err := bootstrap.Bootstrap(cfgFile)
	if err != nil {
		return err
	}
	cfg := result.Config
	if servePort != 0 {
		cfg.Port = servePort
	}
	logging.SetDebug(cfg.Debug)
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errWatch := config.Watch(ctx, result.ConfigFilePath, func(next *config.Config) {
		bootstrap.ApplyEnvOverrides(next)
		if servePort != 0 {
			next.Port = servePort
		}
		if err := logging.ConfigureLogOutput(next.LoggingToFile); err != nil {
			log.Warnf("log output unchanged: %v", err)
		}
		a.Reload(next)
	})
	if errWatch != nil {
		log.Warnf("config hot reload disabled: %v", errWatch)
	}

	log.Infof("using config %s (backend %s, namespace %s)", result.ConfigFilePath, cfg.Backend.Type, cfg.Namespace)
	return a.Run(ctx, shutdownTimeout)
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "server port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
