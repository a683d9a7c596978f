package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tarnmoor/preseed/pkg/config"
	"github.com/tarnmoor/preseed/pkg/health"
	"github.com/tarnmoor/preseed/pkg/journal"
	"github.com/tarnmoor/preseed/pkg/lock"
	"github.com/tarnmoor/preseed/pkg/metrics"
	"github.com/tarnmoor/preseed/pkg/notify"
	"github.com/tarnmoor/preseed/pkg/orchestrator"
	"github.com/tarnmoor/preseed/pkg/replication"
	"github.com/tarnmoor/preseed/pkg/restic"
	"github.com/tarnmoor/preseed/pkg/zfs"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the restore orchestrator for one volume",
	Long: `Run the restore decision for the volume described by the config file.

Exits 0 in every terminal state except a pool-health abort or a live
concurrent run, so the dependent service unit is never blocked by an
exhausted restore.

Examples:
  # Restore decision for one service volume
  preseed run -f /etc/preseed/grafana.yaml`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("config", "f", "", "Volume config file (required)")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(file)
	if err != nil {
		return err
	}
	spec := cfg.VolumeSpec()

	runner := zfs.ExecRunner{}
	zmgr := zfs.NewManager(runner)

	var store orchestrator.ObjectStore
	rcfg := cfg.ResticConfig()
	if rcfg != nil {
		store = restic.NewClient(rcfg, nil)
	}

	var notifier notify.Notifier = notify.Nop{}
	if spec.Notifications {
		notifier = notify.NewCommandNotifier(cfg.NotifyCommand)
	}

	jrnl, err := journal.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer jrnl.Close()

	orch := orchestrator.New(orchestrator.Config{
		Spec:        spec,
		Replication: cfg.ReplicationTarget(),
		Restic:      rcfg,
		Volumes:     zmgr,
		Puller:      replication.NewSyncoid(runner, cfg.SyncoidTimeout()),
		Store:       store,
		Health:      health.NewPoolChecker(zmgr, spec.Pool()),
		Notifier:    notifier,
		Journal:     jrnl,
		Metrics:     metrics.NewWriter(cfg.MetricsDir),
		Locks:       lock.NewManager(cfg.RunDir),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return orch.Run(ctx)
}
