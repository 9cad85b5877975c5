package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stagehand/internal/history"
)

var (
	historyConfigFile string
	historyLimit      int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent bootstrap runs",
	Long: `List recent bootstrap runs recorded on this host, newest first.

Example:
  stagehand history --limit 5`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historyConfigFile, "config", "c", "", "Path to config file")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Maximum number of runs to list")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := assembleConfig(historyConfigFile)
	if err != nil {
		return err
	}

	hist, err := history.New(cfg.HistoryDBPath())
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer hist.Close()

	runs, err := hist.ListRuns(context.Background(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tROLE\tSTATUS\tDURATION\tERROR")
	for _, run := range runs {
		duration := "-"
		if run.DurationSeconds != nil {
			duration = fmt.Sprintf("%.1fs", *run.DurationSeconds)
		}
		errMsg := ""
		if run.ErrorMessage != nil {
			errMsg = strings.TrimSpace(*run.ErrorMessage)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Role, run.Status, duration, errMsg)
	}
	return w.Flush()
}
