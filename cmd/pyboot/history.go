package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BadgerOps/pyboot/internal/mirror"
)

var historyLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past provisioning runs and mirror probes",
		Example: `  pyboot history runs --limit 5
  pyboot history probes`,
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent provisioning runs",
		Args:  cobra.NoArgs,
		RunE:  historyRunsRun,
	}
	runsCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show (0 for all)")

	cmd.AddCommand(
		runsCmd,
		&cobra.Command{
			Use:   "probes",
			Short: "Show the latest latency measurements per mirror category",
			Args:  cobra.NoArgs,
			RunE:  historyProbesRun,
		},
	)

	return cmd
}

func historyRunsRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("history store not available")
	}

	runs, err := globalStore.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	fmt.Printf("%-22s %-16s %-8s %-10s %s\n", "Operation", "Started", "Result", "Duration", "Message")
	for _, r := range runs {
		result := "running"
		duration := "-"
		if r.Finished() {
			result = "ok"
			if !r.Success {
				result = "failed"
			}
			duration = r.Duration().Round(time.Millisecond).String()
		}
		fmt.Printf("%-22s %-16s %-8s %-10s %s\n", r.Operation, humanize.Time(r.StartedAt), result, duration, r.Message)
	}
	return nil
}

func historyProbesRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("history store not available")
	}

	for i, category := range []mirror.Category{mirror.CategoryPackageIndex, mirror.CategoryInterpreter} {
		records, err := globalStore.LatestProbes(category)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Println()
		}
		if len(records) == 0 {
			fmt.Printf("%s: no probes recorded\n", category)
			continue
		}

		fmt.Printf("%s (%s):\n", category, humanize.Time(records[0].RecordedAt))
		for _, rec := range records {
			marker := " "
			if rec.Selected {
				marker = "*"
			}
			latency := fmt.Sprintf("%dms", rec.LatencyMs)
			if rec.LatencyMs == mirror.SentinelLatencyMs {
				latency = "unreachable"
			}
			fmt.Printf("  %s %-14s %-12s %s\n", marker, rec.Label, latency, rec.URL)
		}
	}
	return nil
}
