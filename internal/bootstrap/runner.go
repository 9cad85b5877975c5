// Package bootstrap runs the first-boot sequence that turns a freshly
// provisioned host into a running service: environment preparation,
// package installation, disk provisioning, firewall configuration, and
// finally the role-specific deployment. Stages run strictly in order,
// each one idempotent, so a partial run is always safe to repeat.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"stagehand/internal/config"
	"stagehand/internal/deploy"
	"stagehand/internal/firewall"
	"stagehand/internal/history"
	"stagehand/internal/role"
	"stagehand/pkg/cmdutil"
)

// Host paths the environment stage maintains. Overridable in tests.
const (
	defaultLocaleFile = "/etc/default/locale"
	defaultFstabFile  = "/etc/fstab"
)

// Runner executes the bootstrap sequence.
type Runner struct {
	cfg    *config.Config
	runner cmdutil.Runner
	hist   *history.History
	runID  string
	log    zerolog.Logger

	euid       func() int
	localeFile string
	fstabFile  string
}

// stage is one named step of the sequence.
type stage struct {
	name string
	fn   func(context.Context) error
}

// New builds a Runner. hist may be nil, in which case no run history is
// recorded.
func New(cfg *config.Config, runner cmdutil.Runner, hist *history.History, runID string, log zerolog.Logger) *Runner {
	return &Runner{
		cfg:        cfg,
		runner:     runner,
		hist:       hist,
		runID:      runID,
		log:        log,
		euid:       os.Geteuid,
		localeFile: defaultLocaleFile,
		fstabFile:  defaultFstabFile,
	}
}

// Run executes all stages in order and logs exactly one terminal marker:
// "bootstrap succeeded" or "bootstrap failed". The returned error, when
// non-nil, names the failing stage.
func (r *Runner) Run(ctx context.Context) error {
	selected := role.Detect(r.cfg.Playbook, r.cfg.RepoURL)
	r.log.Info().
		Str("role", selected.String()).
		Str("playbook", r.cfg.Playbook).
		Msg("starting bootstrap")

	historyID := r.recordStart(ctx, selected)

	stages := []stage{
		{"environment", r.prepareEnvironment},
		{"packages", func(ctx context.Context) error { return r.installPackages(ctx, selected) }},
		{"storage", r.provisionDisks},
		{"firewall", func(ctx context.Context) error { return r.configureFirewall(ctx, selected) }},
		{"deploy", func(ctx context.Context) error { return r.dispatch(ctx, selected) }},
	}

	for _, st := range stages {
		stageLog := r.log.With().Str("stage", st.name).Logger()
		stageLog.Info().Msg("stage starting")

		if err := st.fn(ctx); err != nil {
			wrapped := fmt.Errorf("stage %s: %w", st.name, err)
			r.log.Error().Err(err).Str("stage", st.name).Msg("bootstrap failed")
			r.recordFinish(ctx, historyID, history.StatusFailed, wrapped)
			return wrapped
		}
		stageLog.Info().Msg("stage complete")
	}

	status := history.StatusSuccess
	if selected == role.Unknown {
		status = history.StatusNoOp
	}
	r.recordFinish(ctx, historyID, status, nil)
	r.log.Info().Str("role", selected.String()).Msg("bootstrap succeeded")
	return nil
}

// configureFirewall declares the baseline rules plus the selected role's
// application ports, then enables the firewall.
func (r *Runner) configureFirewall(ctx context.Context, selected role.Role) error {
	rules := firewall.NewRuleSet(r.cfg.AdminPort, selected.Ports())
	configurator := firewall.NewConfigurator(r.runner, r.log.With().Str("stage", "firewall").Logger())
	return configurator.Apply(ctx, rules)
}

// dispatch hands control to the selected deployment strategy. An Unknown
// role is a logged no-op: absence of configuration is a valid terminal
// state, not an error.
func (r *Runner) dispatch(ctx context.Context, selected role.Role) error {
	deployLog := r.log.With().Str("stage", "deploy").Logger()

	var workDir string
	switch selected {
	case role.Primary:
		if err := deploy.NewPrimary(r.cfg, r.runner, deployLog).Run(ctx); err != nil {
			return err
		}
		workDir = r.cfg.DataDir
	case role.Web:
		if err := deploy.NewWeb(r.cfg, r.runner, deployLog).Run(ctx); err != nil {
			return err
		}
		workDir = r.cfg.CloneDir
	default:
		deployLog.Info().Str("playbook", r.cfg.Playbook).Msg("no deployment role recognized; nothing to do")
		return nil
	}

	return deploy.RunHooks(ctx, r.runner, deployLog, workDir, r.cfg.PostDeploy, r.cfg.PostDeployTimeout)
}

// recordStart opens a history row for this run. History is best-effort:
// a failure to record never blocks the bootstrap itself.
func (r *Runner) recordStart(ctx context.Context, selected role.Role) int64 {
	if r.hist == nil {
		return 0
	}
	id, err := r.hist.StartRun(ctx, r.runID, selected.String())
	if err != nil {
		r.log.Warn().Err(err).Msg("could not record run start")
		return 0
	}
	return id
}

func (r *Runner) recordFinish(ctx context.Context, id int64, status string, runErr error) {
	if r.hist == nil || id == 0 {
		return
	}
	if err := r.hist.FinishRun(ctx, id, status, runErr); err != nil {
		r.log.Warn().Err(err).Msg("could not record run completion")
	}
}
