package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"conductor/internal/app"
	"conductor/internal/config"
	"conductor/pkg/logging"
)

var (
	serveConfigPath string
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration engine",
	Long: `Starts the engine: loads configuration, workflow definitions, and the
plugin manifest, then serves the HTTP gateway until interrupted. SIGINT and
SIGTERM trigger a graceful shutdown that drains in-flight tasks within the
configured grace period.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "config.yaml", "Path to the configuration file")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logging.Init(logging.LevelInfo, os.Stderr)

	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	level := logging.ParseLogLevel(cfg.LogLevel)
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return application.Run(ctx)
}
