package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"stagehand/pkg/cmdutil"
)

func newTestSyncer(fake *cmdutil.Fake) *Syncer {
	return NewSyncer(fake, zerolog.Nop())
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, dir string)
		script  func(fake *cmdutil.Fake)
		want    State
		gitRuns bool
	}{
		{
			name:  "missing path",
			setup: func(t *testing.T, dir string) {},
			want:  StateMissing,
		},
		{
			name: "directory without git metadata",
			setup: func(t *testing.T, dir string) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					t.Fatal(err)
				}
				if err := os.WriteFile(filepath.Join(dir, "leftover.txt"), []byte("x"), 0o644); err != nil {
					t.Fatal(err)
				}
			},
			want: StateStale,
		},
		{
			name: "git metadata rejected by git",
			setup: func(t *testing.T, dir string) {
				if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
					t.Fatal(err)
				}
			},
			script: func(fake *cmdutil.Fake) {
				fake.Script("git rev-parse", cmdutil.FakeResult{ExitCode: 128, Output: "fatal: not a git repository"})
			},
			want:    StateStale,
			gitRuns: true,
		},
		{
			name: "valid checkout",
			setup: func(t *testing.T, dir string) {
				if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
					t.Fatal(err)
				}
			},
			script: func(fake *cmdutil.Fake) {
				fake.Script("git rev-parse", cmdutil.FakeResult{Output: "true\n"})
			},
			want:    StateValid,
			gitRuns: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "repo")
			tt.setup(t, dir)

			fake := cmdutil.NewFake()
			if tt.script != nil {
				tt.script(fake)
			}

			got := newTestSyncer(fake).Query(context.Background(), dir)
			if got != tt.want {
				t.Errorf("Query() = %v, want %v", got, tt.want)
			}
			if tt.gitRuns != fake.Ran("git rev-parse") {
				t.Errorf("git rev-parse ran = %v, want %v", fake.Ran("git rev-parse"), tt.gitRuns)
			}
		})
	}
}

func TestSync_MissingPathClones(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkout")
	fake := cmdutil.NewFake()

	err := newTestSyncer(fake).Sync(context.Background(), "git@github.com:acme/site.git", dir, "main")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	want := []string{
		"git clone git@github.com:acme/site.git " + dir,
		"git checkout main",
	}
	if len(fake.Calls) != len(want) {
		t.Fatalf("got %d calls %v, want %d", len(fake.Calls), fake.Calls, len(want))
	}
	for i, call := range want {
		if fake.Calls[i] != call {
			t.Errorf("call %d = %q, want %q", i, fake.Calls[i], call)
		}
	}
}

func TestSync_StaleDirectoryIsDestroyed(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkout")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "junk"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	fake := cmdutil.NewFake()
	err := newTestSyncer(fake).Sync(context.Background(), "git@github.com:acme/site.git", dir, "main")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Errorf("stale directory still present after sync")
	}
	if !fake.Ran("git clone") {
		t.Errorf("expected a fresh clone after destroying stale directory, calls: %v", fake.Calls)
	}
}

func TestSync_ValidCheckoutUpdatesInPlace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkout")
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	fake := cmdutil.NewFake()
	fake.Script("git rev-parse", cmdutil.FakeResult{Output: "true\n"})

	err := newTestSyncer(fake).Sync(context.Background(), "git@github.com:acme/site.git", dir, "release-2024")
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	want := []string{
		"git rev-parse --is-inside-work-tree",
		"git fetch origin release-2024",
		"git checkout --force release-2024",
		"git reset --hard FETCH_HEAD",
	}
	if len(fake.Calls) != len(want) {
		t.Fatalf("got %d calls %v, want %d", len(fake.Calls), fake.Calls, len(want))
	}
	for i, call := range want {
		if fake.Calls[i] != call {
			t.Errorf("call %d = %q, want %q", i, fake.Calls[i], call)
		}
	}
	if fake.Ran("git clone") {
		t.Errorf("valid checkout must not be recloned")
	}
}

func TestSync_RepeatedRunsConverge(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkout")
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}

	fake := cmdutil.NewFake()
	syncer := newTestSyncer(fake)

	for i := 0; i < 2; i++ {
		if err := syncer.Sync(context.Background(), "git@github.com:acme/site.git", dir, "main"); err != nil {
			t.Fatalf("run %d: Sync() error = %v", i+1, err)
		}
	}

	if fake.Ran("git clone") {
		t.Errorf("repeat runs must never reclone, calls: %v", fake.Calls)
	}
	if got := fake.Count("git fetch"); got != 2 {
		t.Errorf("fetch ran %d times, want 2", got)
	}
}

func TestSync_CloneFailureIsFatal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkout")
	fake := cmdutil.NewFake()
	fake.Script("git clone", cmdutil.FakeResult{
		ExitCode: 128,
		Output:   "fatal: unable to access: Could not resolve host: github.com",
	})

	err := newTestSyncer(fake).Sync(context.Background(), "https://github.com/acme/site.git", dir, "main")
	if err == nil {
		t.Fatal("Sync() succeeded despite clone failure")
	}
	if !strings.Contains(err.Error(), "cloning") {
		t.Errorf("error %q does not name the clone step", err)
	}
	if !strings.Contains(err.Error(), "Could not resolve host") {
		t.Errorf("error %q does not carry git output", err)
	}
	if fake.Ran("git checkout") {
		t.Errorf("checkout must not run after failed clone")
	}
}

func TestSync_RejectsBadInputs(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ref  string
	}{
		{"non-github url", "https://evil.example.com/repo.git", "main"},
		{"option injection in url", "--upload-pack=/bin/sh", "main"},
		{"option injection in ref", "https://github.com/acme/site.git", "-otherflag"},
		{"empty ref", "https://github.com/acme/site.git", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := cmdutil.NewFake()
			err := newTestSyncer(fake).Sync(context.Background(), tt.url, t.TempDir(), tt.ref)
			if err == nil {
				t.Fatal("Sync() accepted invalid input")
			}
			if len(fake.Calls) != 0 {
				t.Errorf("rejected input still reached git: %v", fake.Calls)
			}
		})
	}
}

func TestHead(t *testing.T) {
	fake := cmdutil.NewFake()
	fake.Script("git rev-parse --short HEAD", cmdutil.FakeResult{Output: "abc1234\n"})

	head, err := newTestSyncer(fake).Head(context.Background(), "/opt/checkout")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head != "abc1234" {
		t.Errorf("Head() = %q, want %q", head, "abc1234")
	}
}

func TestBatchSSHCommand(t *testing.T) {
	cmd := BatchSSHCommand("/etc/keys/deploy", "/etc/keys/known_hosts")

	for _, want := range []string{
		"BatchMode=yes",
		"ConnectTimeout=10",
		"UserKnownHostsFile=/etc/keys/known_hosts",
		"-i /etc/keys/deploy",
		"IdentitiesOnly=yes",
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("BatchSSHCommand() = %q, missing %q", cmd, want)
		}
	}

	noKey := BatchSSHCommand("", "/etc/keys/known_hosts")
	if strings.Contains(noKey, "-i") {
		t.Errorf("BatchSSHCommand() without key = %q, should not pass an identity", noKey)
	}
}

func TestEnsureKnownHost(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")
	scanned := "github.com ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl"

	fake := cmdutil.NewFake()
	fake.Script("ssh-keyscan", cmdutil.FakeResult{Output: scanned + "\n"})
	syncer := newTestSyncer(fake)

	added, err := syncer.EnsureKnownHost(context.Background(), path, "github.com")
	if err != nil {
		t.Fatalf("EnsureKnownHost() error = %v", err)
	}
	if !added {
		t.Error("first call should report a modification")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), scanned) {
		t.Errorf("known_hosts missing scanned entry, got: %s", data)
	}

	added, err = syncer.EnsureKnownHost(context.Background(), path, "github.com")
	if err != nil {
		t.Fatalf("second EnsureKnownHost() error = %v", err)
	}
	if added {
		t.Error("second call must not modify the file")
	}
	if got := fake.Count("ssh-keyscan"); got != 1 {
		t.Errorf("ssh-keyscan ran %d times, want 1", got)
	}
}

func TestEnsureKnownHost_EmptyScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_hosts")

	fake := cmdutil.NewFake()
	fake.Script("ssh-keyscan", cmdutil.FakeResult{Output: ""})

	_, err := newTestSyncer(fake).EnsureKnownHost(context.Background(), path, "github.com")
	if err == nil {
		t.Fatal("empty scan result should be an error")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("no file should be written on scan failure")
	}
}
