package deploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"stagehand/internal/config"
	"stagehand/pkg/cmdutil"
)

const keyscanLine = "github.com ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl"

func webConfig(t *testing.T) *config.Config {
	t.Helper()
	tmp := t.TempDir()

	cfg := config.New()
	cfg.Playbook = "site_web.yml"
	cfg.RepoURL = "https://github.com/acme/site.git"
	cfg.SSHDir = filepath.Join(tmp, "ssh")
	cfg.DataDir = filepath.Join(tmp, "data")
	cfg.CloneDir = filepath.Join(tmp, "repo")
	cfg.AppPort = "8501"
	return cfg
}

func webFake() *cmdutil.Fake {
	fake := cmdutil.NewFake()
	fake.Script("ssh-keyscan", cmdutil.FakeResult{Output: keyscanLine + "\n"})
	return fake
}

func TestWeb_FreshHostClonesAndRunsPlaybook(t *testing.T) {
	cfg := webConfig(t)
	fake := webFake()

	err := NewWeb(cfg, fake, zerolog.Nop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !fake.Ran("git clone https://github.com/acme/site.git") {
		t.Errorf("repository was not cloned, calls: %v", fake.Calls)
	}
	if !fake.Ran("ansible-playbook") {
		t.Errorf("playbook was not run, calls: %v", fake.Calls)
	}

	if _, err := os.Stat(filepath.Join(cfg.SSHDir, "known_hosts")); err != nil {
		t.Errorf("known_hosts not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "inventory.yml")); err != nil {
		t.Errorf("inventory not written: %v", err)
	}
}

func TestWeb_ValidCheckoutIsUpdatedNotRecloned(t *testing.T) {
	cfg := webConfig(t)
	if err := os.MkdirAll(filepath.Join(cfg.CloneDir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	fake := webFake()
	fake.Script("git rev-parse --is-inside-work-tree", cmdutil.FakeResult{Output: "true\n"})
	fake.Script("git rev-parse --short HEAD", cmdutil.FakeResult{Output: "abc123\n"})

	err := NewWeb(cfg, fake, zerolog.Nop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if fake.Ran("git clone") {
		t.Errorf("valid checkout must not be recloned, calls: %v", fake.Calls)
	}
	if !fake.Ran("git fetch origin main") {
		t.Errorf("checkout was not updated, calls: %v", fake.Calls)
	}
	if !fake.Ran("ansible-playbook") {
		t.Errorf("playbook was not run, calls: %v", fake.Calls)
	}
}

func TestWeb_CloneFailureSkipsPlaybook(t *testing.T) {
	cfg := webConfig(t)
	fake := webFake()
	fake.Script("git clone", cmdutil.FakeResult{
		ExitCode: 128,
		Output:   "fatal: unable to access: Could not resolve host: github.com",
	})

	err := NewWeb(cfg, fake, zerolog.Nop()).Run(context.Background())
	if err == nil {
		t.Fatal("clone failure must abort the deploy")
	}
	if !strings.Contains(err.Error(), "cloning") {
		t.Errorf("error %q does not name the clone step", err)
	}
	if fake.Ran("ansible-playbook") {
		t.Errorf("task runner must not start after a failed checkout, calls: %v", fake.Calls)
	}
}

func TestWeb_RelativePlaybookResolvesAgainstCheckout(t *testing.T) {
	cfg := webConfig(t)
	fake := webFake()

	err := NewWeb(cfg, fake, zerolog.Nop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := filepath.Join(cfg.CloneDir, "site_web.yml")
	found := false
	for _, call := range fake.Calls {
		if strings.HasPrefix(call, "ansible-playbook") && strings.Contains(call, want) {
			found = true
		}
	}
	if !found {
		t.Errorf("no ansible-playbook call references %s, calls: %v", want, fake.Calls)
	}
}

func TestWeb_AbsolutePlaybookUsedAsIs(t *testing.T) {
	cfg := webConfig(t)
	cfg.Playbook = "/opt/elsewhere/site_web.yml"
	fake := webFake()

	err := NewWeb(cfg, fake, zerolog.Nop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	found := false
	for _, call := range fake.Calls {
		if strings.HasPrefix(call, "ansible-playbook") && strings.Contains(call, "/opt/elsewhere/site_web.yml") {
			found = true
		}
	}
	if !found {
		t.Errorf("absolute playbook path not passed through, calls: %v", fake.Calls)
	}
}

func TestWeb_SSHRemoteGeneratesDeployKey(t *testing.T) {
	cfg := webConfig(t)
	cfg.RepoURL = "git@github.com:acme/site.git"

	fake := webFake()
	err := NewWeb(cfg, fake, zerolog.Nop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	keyPath := filepath.Join(cfg.SSHDir, "deploy_key")
	info, statErr := os.Stat(keyPath)
	if statErr != nil {
		t.Fatalf("deploy key not generated: %v", statErr)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("deploy key mode = %o, want 600", perm)
	}
	if _, statErr := os.Stat(keyPath + ".pub"); statErr != nil {
		t.Errorf("public half not written: %v", statErr)
	}
}

func TestWeb_HTTPSRemoteNeedsNoKey(t *testing.T) {
	cfg := webConfig(t)
	fake := webFake()

	err := NewWeb(cfg, fake, zerolog.Nop()).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, statErr := os.Stat(filepath.Join(cfg.SSHDir, "deploy_key")); !os.IsNotExist(statErr) {
		t.Error("https remote must not trigger key generation")
	}
}

func TestWeb_ConfiguredKeyMustExist(t *testing.T) {
	cfg := webConfig(t)
	cfg.GitKey = filepath.Join(t.TempDir(), "absent_key")
	fake := webFake()

	err := NewWeb(cfg, fake, zerolog.Nop()).Run(context.Background())
	if err == nil {
		t.Fatal("missing configured key must be an error")
	}
	if !strings.Contains(err.Error(), "configured git key") {
		t.Errorf("error %q does not name the key problem", err)
	}
	if fake.Ran("git clone") {
		t.Errorf("checkout must not start without its key, calls: %v", fake.Calls)
	}
}
