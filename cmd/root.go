package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the conductor binary.
var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Task orchestration engine",
	Long: `conductor is a task orchestration engine: it routes submitted tasks to
registered services by capability, runs multi-step workflows with dependency
ordering and failure policies, and exposes the whole pipeline over an HTTP
gateway with a live event stream.`,
	SilenceUsage: true,
}

// SetVersion injects the build version from the main package.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "conductor version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
