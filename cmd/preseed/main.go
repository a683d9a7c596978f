package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tarnmoor/preseed/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "preseed",
	Short: "Preseed - disaster-recovery restore orchestrator for ZFS service volumes",
	Long: `Preseed decides, for a freshly provisioned or recovering service volume,
whether it already contains valid data and, if not, which restore strategy
to attempt: a replica pull from a remote host (syncoid), a rollback to the
most recent local snapshot, or an object-store restore (restic).

It is designed to run once per volume from the service supervisor before
the dependent service starts, and to be safe to invoke on every boot.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		jsonOut, _ := cmd.Flags().GetBool("log-json")
		log.Init(log.Config{
			Level:      log.Level(level),
			JSONOutput: jsonOut,
		})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Preseed version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON (for the unit journal)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
}
