package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stagehand/internal/bootstrap"
	"stagehand/internal/config"
	"stagehand/internal/history"
	"stagehand/internal/logging"
	"stagehand/internal/role"
	"stagehand/pkg/cmdutil"
	"stagehand/pkg/fileutil"
)

var (
	runConfigFile    string
	runPlaybook      string
	runRepoURL       string
	runRepoRef       string
	runCloneDir      string
	runAPIBase       string
	runContainerName string
	runImage         string
	runLogFile       string
	runDataDir       string
	runLocale        string
	runReplace       bool
	runVerbose       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the first-boot bootstrap sequence",
	Long: `Run the full bootstrap sequence on this host.

The sequence prepares the environment (locale, secrets), installs
system packages, provisions configured data disks, declares and
enables the firewall, and finally hands off to the deployment role
selected by the configured playbook name.

Must be run as root. Safe to re-run: converged steps are skipped.`,
	RunE: runBootstrap,
}

func init() {
	// Config file flag
	runCmd.Flags().StringVarP(&runConfigFile, "config", "c", "", "Path to config file")

	// Role selection and source control
	runCmd.Flags().StringVar(&runPlaybook, "playbook", "", "Playbook whose name selects the deployment role")
	runCmd.Flags().StringVar(&runRepoURL, "repo-url", "", "Configuration repository URL (web role)")
	runCmd.Flags().StringVar(&runRepoRef, "repo-ref", "", "Branch or tag to check out (default: main)")
	runCmd.Flags().StringVar(&runCloneDir, "clone-dir", "", "Checkout directory for the configuration repository")

	// Primary role
	runCmd.Flags().StringVar(&runAPIBase, "api-base", "", "API base URL injected into the container (derived if empty)")
	runCmd.Flags().StringVar(&runContainerName, "container-name", "", "Container name (default: "+config.DefaultContainerName+")")
	runCmd.Flags().StringVar(&runImage, "image", "", "Container image (default: "+config.DefaultImage+")")
	runCmd.Flags().BoolVar(&runReplace, "replace", false, "Replace a running container instead of leaving it in place")

	// Host settings
	runCmd.Flags().StringVar(&runLogFile, "log-file", "", "Persistent log file (default: "+config.DefaultLogFile+")")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "State directory (default: "+config.DefaultDataDir+")")
	runCmd.Flags().StringVar(&runLocale, "locale", "", "System locale to install (default: en_US.UTF-8)")

	// Verbose flag
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose output")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	cfg, err := assembleConfig(runConfigFile)
	if err != nil {
		return err
	}

	if runReplace {
		cfg.Replace = true
	}
	if runVerbose {
		cfg.Verbose = true
	}

	runID := uuid.NewString()

	level := logging.InfoLevel
	if cfg.Verbose {
		level = logging.DebugLevel
	}
	closer, err := logging.Init(logging.Config{
		Level:    level,
		FilePath: cfg.LogFile,
		RunID:    runID,
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closer.Close()

	log := logging.Logger

	// Run history is best-effort: a broken database never blocks the boot.
	var hist *history.History
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", cfg.DataDir).Msg("cannot create data directory; run history disabled")
	} else if h, err := history.New(cfg.HistoryDBPath()); err != nil {
		log.Warn().Err(err).Msg("run history unavailable")
	} else {
		hist = h
		defer hist.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printRunBanner()

	if err := bootstrap.New(cfg, cmdutil.System{}, hist, runID, log).Run(ctx); err != nil {
		return err
	}

	printSuccessSummary(cfg, role.Detect(cfg.Playbook, cfg.RepoURL))
	return nil
}

// assembleConfig builds the immutable configuration record for this
// invocation: defaults, then the config file, then environment
// variables, then command-line flags.
func assembleConfig(path string) (*config.Config, error) {
	cfg := config.New()

	if path == "" {
		path = fileutil.SearchPathsOptional(config.SearchConfigPaths())
	}
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg.SetFromFlags(map[string]string{
		"playbook":       runPlaybook,
		"repo-url":       runRepoURL,
		"repo-ref":       runRepoRef,
		"clone-dir":      runCloneDir,
		"api-base":       runAPIBase,
		"container-name": runContainerName,
		"image":          runImage,
		"log-file":       runLogFile,
		"data-dir":       runDataDir,
		"locale":         runLocale,
	})

	cfg.FillDerivedValues()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
