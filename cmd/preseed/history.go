package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tarnmoor/preseed/pkg/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history [service]",
	Short: "Show past orchestrator runs from the journal",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		limit, _ := cmd.Flags().GetInt("limit")

		service := ""
		if len(args) == 1 {
			service = args[0]
		}

		jrnl, err := journal.Open(dataDir)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer jrnl.Close()

		recs, err := jrnl.List(service, limit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		fmt.Printf("%-20s  %-16s  %-10s  %-8s  %-10s  %s\n",
			"STARTED", "SERVICE", "METHOD", "STATUS", "DURATION", "MESSAGE")
		for _, r := range recs {
			fmt.Printf("%-20s  %-16s  %-10s  %-8s  %-10s  %s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Service,
				r.Method,
				r.Status,
				r.Duration().Round(time.Millisecond),
				r.Message,
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().String("data-dir", "", "Journal directory (default "+journal.DefaultDataDir+")")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs to show")
}
