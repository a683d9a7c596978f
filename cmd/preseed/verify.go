package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tarnmoor/preseed/pkg/config"
	"github.com/tarnmoor/preseed/pkg/orchestrator"
	"github.com/tarnmoor/preseed/pkg/zfs"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a volume's restore invariants without mutating anything",
	Long: `Inspect the volume and report whether the invariants the orchestrator
maintains actually hold: dataset present, mounted, completion marker set,
and at least one snapshot.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(file)
		if err != nil {
			return err
		}

		orch := orchestrator.New(orchestrator.Config{
			Spec:    cfg.VolumeSpec(),
			Volumes: zfs.NewManager(nil),
		})

		report, err := orch.Verify(context.Background())
		if err != nil {
			return err
		}

		if !report.DatasetExists {
			fmt.Printf("✗ dataset %s does not exist\n", cfg.Dataset)
			return fmt.Errorf("dataset missing")
		}

		fmt.Printf("✓ dataset %s exists\n", cfg.Dataset)
		printCheck(report.Mounted, "mounted")
		printCheck(report.Complete, "completion marker set")
		printCheck(report.Snapshots > 0, fmt.Sprintf("snapshots present (%d)", report.Snapshots))

		if !report.Mounted || !report.Complete || report.Snapshots == 0 {
			return fmt.Errorf("invariants violated for %s", cfg.Dataset)
		}
		return nil
	},
}

func printCheck(ok bool, what string) {
	if ok {
		fmt.Printf("✓ %s\n", what)
	} else {
		fmt.Printf("✗ %s\n", what)
	}
}

func init() {
	verifyCmd.Flags().StringP("config", "f", "", "Volume config file (required)")
	_ = verifyCmd.MarkFlagRequired("config")
}
