package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/docker"
	"stagehand/internal/firewall"
	"stagehand/internal/history"
	"stagehand/internal/role"
	"stagehand/pkg/cmdutil"
)

var statusConfigFile string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the host's bootstrap status",
	Long: `Show the host's current state: detected deployment role, firewall
activation, container status for the primary role, and the outcome of
the most recent bootstrap run.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusConfigFile, "config", "c", "", "Path to config file")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := assembleConfig(statusConfigFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	runner := cmdutil.System{}
	log := zerolog.Nop()

	selected := role.Detect(cfg.Playbook, cfg.RepoURL)
	fmt.Printf("Role:      %s\n", selected)

	fw := firewall.NewConfigurator(runner, log)
	if state, err := fw.Query(ctx); err != nil {
		fmt.Printf("Firewall:  unavailable (%v)\n", err)
	} else {
		fmt.Printf("Firewall:  %s\n", state)
	}

	engine := docker.NewEngine(runner, log)
	if engine.QueryEngine() == docker.EngineAbsent {
		fmt.Printf("Container: engine not installed\n")
	} else if state, err := engine.QueryContainer(ctx, cfg.ContainerName); err != nil {
		fmt.Printf("Container: %s (%v)\n", cfg.ContainerName, err)
	} else {
		fmt.Printf("Container: %s (%s)\n", cfg.ContainerName, state)
	}

	printLatestRun(ctx, cfg)
	return nil
}

// printLatestRun reports the most recent recorded run, if the history
// database is reachable and holds one.
func printLatestRun(ctx context.Context, cfg *config.Config) {
	hist, err := history.New(cfg.HistoryDBPath())
	if err != nil {
		fmt.Printf("Last run:  no history (%v)\n", err)
		return
	}
	defer hist.Close()

	rec, err := hist.LatestRun(ctx)
	if err != nil {
		fmt.Printf("Last run:  none recorded\n")
		return
	}

	line := fmt.Sprintf("Last run:  %s at %s (role %s)",
		rec.Status, rec.StartedAt.Format("2006-01-02 15:04:05 MST"), rec.Role)
	if rec.DurationSeconds != nil {
		line += fmt.Sprintf(", took %.1fs", *rec.DurationSeconds)
	}
	fmt.Println(line)

	if rec.ErrorMessage != nil && *rec.ErrorMessage != "" {
		fmt.Printf("           %s\n", strings.TrimSpace(*rec.ErrorMessage))
	}
}
