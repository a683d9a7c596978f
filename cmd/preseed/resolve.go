package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tarnmoor/preseed/pkg/config"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show the resolved replication target for a volume",
	Long: `Resolve the volume's replication target from the topology table using
nearest-ancestor inheritance and print the result. Useful for checking
which remote dataset a replica pull would use without running anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(file)
		if err != nil {
			return err
		}

		target := cfg.ReplicationTarget()
		if target == nil {
			fmt.Printf("No replication target for %s (disabled or no ancestor entry)\n", cfg.Dataset)
			return nil
		}

		fmt.Printf("Dataset:        %s\n", cfg.Dataset)
		fmt.Printf("Remote host:    %s\n", target.Host)
		fmt.Printf("Remote dataset: %s\n", target.Dataset)
		if target.SSHUser != "" {
			fmt.Printf("SSH user:       %s\n", target.SSHUser)
		}
		if target.SSHKeyPath != "" {
			fmt.Printf("SSH key:        %s\n", target.SSHKeyPath)
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringP("config", "f", "", "Volume config file (required)")
	_ = resolveCmd.MarkFlagRequired("config")
}
