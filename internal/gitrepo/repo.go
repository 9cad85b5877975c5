// Package gitrepo converges a local directory onto a git checkout at a
// configured ref. It distinguishes three starting states (missing path,
// stale non-repository directory, valid checkout) and drives each of them
// to the same end state.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stagehand/internal/security"
	"stagehand/pkg/cmdutil"
)

const (
	cloneTimeout = 5 * time.Minute
	fetchTimeout = 3 * time.Minute
	scanTimeout  = 30 * time.Second
)

// State describes what currently occupies a checkout path.
type State int

const (
	// StateMissing means nothing exists at the path.
	StateMissing State = iota
	// StateStale means the path exists but is not a usable git checkout.
	StateStale
	// StateValid means the path holds a working checkout.
	StateValid
)

func (s State) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateStale:
		return "stale"
	case StateValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Syncer clones and updates git checkouts through an external git binary.
type Syncer struct {
	runner cmdutil.Runner
	log    zerolog.Logger
	env    []string
}

// NewSyncer returns a Syncer that invokes git through the given runner.
func NewSyncer(runner cmdutil.Runner, log zerolog.Logger) *Syncer {
	return &Syncer{runner: runner, log: log}
}

// UseSSH makes all subsequent git invocations go through a non-interactive
// ssh transport bound to the given identity and known-hosts file.
func (s *Syncer) UseSSH(keyPath, knownHostsPath string) {
	s.env = []string{"GIT_SSH_COMMAND=" + BatchSSHCommand(keyPath, knownHostsPath)}
}

// BatchSSHCommand builds an ssh invocation that never prompts: batch mode,
// bounded connect timeout, and a pinned known-hosts file.
func BatchSSHCommand(keyPath, knownHostsPath string) string {
	parts := []string{
		"ssh",
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=10",
		"-o", "StrictHostKeyChecking=yes",
		"-o", "UserKnownHostsFile=" + knownHostsPath,
	}
	if keyPath != "" {
		parts = append(parts, "-i", keyPath, "-o", "IdentitiesOnly=yes")
	}
	return strings.Join(parts, " ")
}

// Query reports the state of dir as a git checkout. A directory with a .git
// entry that git itself rejects counts as stale, same as any other
// non-repository content.
func (s *Syncer) Query(ctx context.Context, dir string) State {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return StateMissing
		}
		return StateStale
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return StateStale
	}

	opts := cmdutil.ExecOptions{Dir: dir, Timeout: scanTimeout}
	result, err := s.runner.Run(ctx, opts, []string{"git", "rev-parse", "--is-inside-work-tree"})
	if err != nil || !result.OK() {
		return StateStale
	}
	return StateValid
}

// Sync converges dir onto a checkout of url at ref. A valid checkout is
// fetched and hard-reset, a stale directory is destroyed and recloned, and
// a missing path is cloned fresh. All three paths end with dir containing
// the configured ref.
func (s *Syncer) Sync(ctx context.Context, url, dir, ref string) error {
	if err := security.ValidateRepoURL(url); err != nil {
		return err
	}
	if err := security.ValidateRef(ref); err != nil {
		return err
	}

	state := s.Query(ctx, dir)
	s.log.Debug().
		Str("path", dir).
		Str("state", state.String()).
		Str("ref", ref).
		Msg("checkout state")

	switch state {
	case StateValid:
		if err := s.update(ctx, dir, ref); err != nil {
			return err
		}
	case StateStale:
		s.log.Warn().Str("path", dir).Msg("removing stale directory before clone")
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing stale checkout %s: %w", dir, err)
		}
		if err := s.clone(ctx, url, dir, ref); err != nil {
			return err
		}
	case StateMissing:
		if err := s.clone(ctx, url, dir, ref); err != nil {
			return err
		}
	}

	s.log.Info().
		Str("path", dir).
		Str("ref", ref).
		Str("initial_state", state.String()).
		Msg("checkout converged")
	return nil
}

// update fetches the ref and hard-resets the work tree onto it, discarding
// any local drift.
func (s *Syncer) update(ctx context.Context, dir, ref string) error {
	opts := cmdutil.ExecOptions{Dir: dir, Timeout: fetchTimeout, Env: s.env}

	result, err := s.runner.Run(ctx, opts, []string{"git", "fetch", "origin", ref})
	if err != nil {
		return fmt.Errorf("fetching %s: %s: %w", ref, strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}
	result, err = s.runner.Run(ctx, opts, []string{"git", "checkout", "--force", ref})
	if err != nil {
		return fmt.Errorf("checking out %s: %s: %w", ref, strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}
	result, err = s.runner.Run(ctx, opts, []string{"git", "reset", "--hard", "FETCH_HEAD"})
	if err != nil {
		return fmt.Errorf("resetting to fetched %s: %s: %w", ref, strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}
	return nil
}

// clone performs a fresh clone followed by a checkout of the ref.
func (s *Syncer) clone(ctx context.Context, url, dir, ref string) error {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", dir, err)
	}

	opts := cmdutil.ExecOptions{Timeout: cloneTimeout, Env: s.env}
	result, err := s.runner.Run(ctx, opts, []string{"git", "clone", url, dir})
	if err != nil {
		return fmt.Errorf("cloning %s: %s: %w", url, strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}

	opts.Dir = dir
	result, err = s.runner.Run(ctx, opts, []string{"git", "checkout", ref})
	if err != nil {
		return fmt.Errorf("checking out %s: %s: %w", ref, strings.TrimSpace(string(result.OutputOrEmpty())), err)
	}
	return nil
}

// Head returns the short commit hash the checkout currently sits on.
func (s *Syncer) Head(ctx context.Context, dir string) (string, error) {
	opts := cmdutil.ExecOptions{Dir: dir, Timeout: scanTimeout}
	result, err := s.runner.Run(ctx, opts, []string{"git", "rev-parse", "--short", "HEAD"})
	if err != nil {
		return "", fmt.Errorf("reading HEAD in %s: %w", dir, err)
	}
	return strings.TrimSpace(string(result.Output)), nil
}

// EnsureKnownHost makes sure the known-hosts file has an entry for host,
// scanning its keys once if absent. Repeated calls leave the file alone.
// Returns true when the file was modified.
func (s *Syncer) EnsureKnownHost(ctx context.Context, path, host string) (bool, error) {
	if hasKnownHost(path, host) {
		s.log.Debug().Str("host", host).Msg("known-hosts entry already present")
		return false, nil
	}

	result, err := s.runner.Run(ctx, cmdutil.ExecOptions{Timeout: scanTimeout}, []string{"ssh-keyscan", host})
	if err != nil {
		return false, fmt.Errorf("scanning host keys for %s: %w", host, err)
	}
	keys := strings.TrimSpace(string(result.Output))
	if keys == "" {
		return false, fmt.Errorf("scanning host keys for %s: empty result", host)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating parent of %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, security.PermPublicFile)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(keys + "\n"); err != nil {
		return false, fmt.Errorf("appending to %s: %w", path, err)
	}

	s.log.Info().Str("host", host).Str("path", path).Msg("recorded host keys")
	return true, nil
}

// hasKnownHost reports whether any known-hosts line names the host in its
// first field.
func hasKnownHost(path, host string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		for _, name := range strings.Split(fields[0], ",") {
			if name == host {
				return true
			}
		}
	}
	return false
}
