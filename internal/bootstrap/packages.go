package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stagehand/internal/role"
	"stagehand/pkg/cmdutil"
)

// basePackages are required on every host: the firewall tool and the
// interpreter the task runner depends on.
var basePackages = []string{"ufw", "python3"}

// diskPackages are only needed when data disks are configured.
var diskPackages = []string{"parted", "e2fsprogs"}

const (
	aptTimeout     = 10 * time.Minute
	serviceTimeout = 2 * time.Minute
)

// aptEnv keeps the package manager from ever prompting.
var aptEnv = []string{"DEBIAN_FRONTEND=noninteractive"}

// installPackages is the second stage: refresh the package index (one
// retry, then fatal), install the base set, and ensure the selected
// role's runtime is present with its service running.
func (r *Runner) installPackages(ctx context.Context, selected role.Role) error {
	if err := r.refreshIndex(ctx); err != nil {
		return err
	}

	packages := basePackages
	if len(r.cfg.Disks) > 0 {
		packages = append(append([]string{}, basePackages...), diskPackages...)
	}
	for _, pkg := range packages {
		if err := r.ensurePackage(ctx, pkg); err != nil {
			return err
		}
	}

	switch selected {
	case role.Primary:
		return r.ensureDocker(ctx)
	case role.Web:
		return r.ensureAnsible(ctx)
	}
	return nil
}

// refreshIndex updates the package index. A stale mirror or transient
// network failure gets exactly one retry; a second failure is fatal.
func (r *Runner) refreshIndex(ctx context.Context) error {
	opts := cmdutil.ExecOptions{Timeout: aptTimeout, Env: aptEnv}

	_, err := r.runner.Run(ctx, opts, []string{"apt-get", "update"})
	if err == nil {
		return nil
	}
	r.log.Warn().Err(err).Msg("package index refresh failed; retrying once")

	result, err := r.runner.Run(ctx, opts, []string{"apt-get", "update"})
	if err != nil {
		return fmt.Errorf("package index refresh failed after retry: %s: %w", strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}
	return nil
}

// ensurePackage installs a package unless dpkg already knows it. An
// installed package is success, not an error.
func (r *Runner) ensurePackage(ctx context.Context, pkg string) error {
	opts := cmdutil.ExecOptions{Timeout: aptTimeout, Env: aptEnv}

	if result, err := r.runner.Run(ctx, opts, []string{"dpkg", "-s", pkg}); err == nil && result.OK() {
		r.log.Debug().Str("package", pkg).Msg("package already installed")
		return nil
	}

	r.log.Info().Str("package", pkg).Msg("installing package")
	result, err := r.runner.Run(ctx, opts, []string{"apt-get", "install", "-y", pkg})
	if err != nil {
		return fmt.Errorf("installing %s: %s: %w", pkg, strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}
	return nil
}

// ensureDocker makes sure the container engine is installed, enabled,
// and started. Detection short-circuits the install: a binary on the
// PATH or an already-enabled service means no reinstall.
func (r *Runner) ensureDocker(ctx context.Context) error {
	if r.dockerPresent(ctx) {
		r.log.Info().Msg("container engine already present; skipping install")
	} else if err := r.ensurePackage(ctx, "docker.io"); err != nil {
		return err
	}

	opts := cmdutil.ExecOptions{Timeout: serviceTimeout}
	result, err := r.runner.Run(ctx, opts, []string{"systemctl", "enable", "--now", "docker"})
	if err != nil {
		return fmt.Errorf("enabling docker service: %s: %w", strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}
	return nil
}

// dockerPresent reports whether the engine is already on the host,
// either on the PATH or as an enabled service.
func (r *Runner) dockerPresent(ctx context.Context) bool {
	if _, err := r.runner.LookPath("docker"); err == nil {
		return true
	}
	opts := cmdutil.ExecOptions{Timeout: serviceTimeout}
	result, err := r.runner.Run(ctx, opts, []string{"systemctl", "is-enabled", "docker"})
	return err == nil && result.OK()
}

// ensureAnsible makes sure the task runner is installed. It has no
// service of its own.
func (r *Runner) ensureAnsible(ctx context.Context) error {
	if _, err := r.runner.LookPath("ansible-playbook"); err == nil {
		r.log.Info().Msg("task runner already present; skipping install")
		return nil
	}
	return r.ensurePackage(ctx, "ansible")
}
