package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"stagehand/internal/ansible"
	"stagehand/internal/config"
	"stagehand/internal/gitrepo"
	"stagehand/pkg/cmdutil"
)

// gitHost is the hosting provider whose keys go into known_hosts.
const gitHost = "github.com"

// deployKeyName is the file name of the generated deploy key under the
// configured ssh directory.
const deployKeyName = "deploy_key"

// Web deploys by converging a playbook repository checkout and handing
// provisioning to ansible-playbook against this host only.
type Web struct {
	cfg    *config.Config
	syncer *gitrepo.Syncer
	driver *ansible.Driver
	log    zerolog.Logger
}

// NewWeb returns a Web deployer using the given runner for git, ssh, and
// ansible invocations.
func NewWeb(cfg *config.Config, runner cmdutil.Runner, log zerolog.Logger) *Web {
	return &Web{
		cfg:    cfg,
		syncer: gitrepo.NewSyncer(runner, log),
		driver: ansible.NewDriver(runner, log),
		log:    log,
	}
}

// Run checks out the configured repository at the configured ref and runs
// the playbook with a local-only inventory. Checkout and playbook
// failures are both fatal.
func (w *Web) Run(ctx context.Context) error {
	knownHosts := filepath.Join(w.cfg.SSHDir, "known_hosts")
	if _, err := w.syncer.EnsureKnownHost(ctx, knownHosts, gitHost); err != nil {
		return err
	}

	keyPath, err := w.ensureKey(ctx)
	if err != nil {
		return err
	}
	w.syncer.UseSSH(keyPath, knownHosts)

	if err := w.syncer.Sync(ctx, w.cfg.RepoURL, w.cfg.CloneDir, w.cfg.RepoRef); err != nil {
		return err
	}
	if head, err := w.syncer.Head(ctx, w.cfg.CloneDir); err == nil {
		w.log.Info().Str("commit", head).Str("ref", w.cfg.RepoRef).Msg("checkout ready")
	}

	inventoryPath := filepath.Join(w.cfg.DataDir, "inventory.yml")
	if err := ansible.LocalInventory().WriteFile(inventoryPath); err != nil {
		return err
	}

	return w.driver.Play(ctx, ansible.Playbook{
		Path:      w.playbookPath(),
		Inventory: inventoryPath,
		Vars:      w.extraVars(),
	})
}

// playbookPath resolves a relative playbook against the checkout.
func (w *Web) playbookPath() string {
	if filepath.IsAbs(w.cfg.Playbook) {
		return w.cfg.Playbook
	}
	return filepath.Join(w.cfg.CloneDir, w.cfg.Playbook)
}

// extraVars collects the application parameters. Empty fields are left
// out of the rendered variables entirely.
func (w *Web) extraVars() ansible.ExtraVars {
	return ansible.ExtraVars{
		APIBaseURL:     w.cfg.APIBase,
		AppRepoURL:     w.cfg.AppRepoURL,
		AppRepoRef:     w.cfg.AppRepoRef,
		AppInstallDir:  w.cfg.AppDir,
		AppPort:        w.cfg.AppPort,
		AppServiceName: w.cfg.AppService,
	}
}

// ensureKey picks the transport identity for the checkout: an explicitly
// configured key wins, HTTPS remotes need none, and ssh remotes without a
// configured key get a generated deploy key, registered upstream when an
// API token is available.
func (w *Web) ensureKey(ctx context.Context) (string, error) {
	if w.cfg.GitKey != "" {
		if _, err := os.Stat(w.cfg.GitKey); err != nil {
			return "", fmt.Errorf("configured git key %s: %w", w.cfg.GitKey, err)
		}
		return w.cfg.GitKey, nil
	}
	if !strings.HasPrefix(w.cfg.RepoURL, "git@") {
		return "", nil
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "host"
	}
	comment := "stagehand@" + hostname

	keyPath, publicKey, generated, err := gitrepo.EnsureKeyPair(w.cfg.SSHDir, deployKeyName, comment)
	if err != nil {
		return "", err
	}
	if generated {
		w.log.Info().Str("key", keyPath).Msg("generated deploy key")
	}

	title := "stagehand-" + hostname
	if err := gitrepo.UploadDeployKey(ctx, w.log, w.cfg.GitHubToken, w.cfg.RepoURL, title, publicKey); err != nil {
		return "", err
	}
	return keyPath, nil
}
