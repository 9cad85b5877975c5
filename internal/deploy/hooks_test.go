package deploy

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"stagehand/pkg/cmdutil"
)

func TestRunHooks_RunsInOrder(t *testing.T) {
	fake := cmdutil.NewFake()
	commands := []interface{}{
		"mkdir -p /srv/app/cache",
		[]interface{}{"chmod", "750", "/srv/app/cache"},
		"systemctl restart acme-web",
	}

	err := RunHooks(context.Background(), fake, zerolog.Nop(), "/srv/app", commands, 60)
	if err != nil {
		t.Fatalf("RunHooks() error = %v", err)
	}

	want := []string{
		"mkdir -p /srv/app/cache",
		"chmod 750 /srv/app/cache",
		"systemctl restart acme-web",
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

func TestRunHooks_FirstFailureStopsTheRest(t *testing.T) {
	fake := cmdutil.NewFake()
	fake.Script("systemctl restart", cmdutil.FakeResult{ExitCode: 5, Output: "Failed to restart acme-web.service"})

	commands := []interface{}{
		"systemctl restart acme-web",
		"curl -fsS http://localhost:8501/health",
	}

	err := RunHooks(context.Background(), fake, zerolog.Nop(), "/srv/app", commands, 60)
	if err == nil {
		t.Fatal("failing hook must surface an error")
	}
	if !strings.Contains(err.Error(), "Failed to restart") {
		t.Errorf("error %q does not carry command output", err)
	}
	if fake.Ran("curl") {
		t.Errorf("later hooks must not run after a failure, calls: %v", fake.Calls)
	}
}

func TestRunHooks_DisallowedCommandRejected(t *testing.T) {
	fake := cmdutil.NewFake()
	commands := []interface{}{"shutdown -r now"}

	err := RunHooks(context.Background(), fake, zerolog.Nop(), "/srv/app", commands, 60)
	if err == nil {
		t.Fatal("disallowed command must be rejected")
	}
	if len(fake.Calls) != 0 {
		t.Errorf("rejected command still executed: %v", fake.Calls)
	}
}

func TestRunHooks_MalformedCommandRejected(t *testing.T) {
	fake := cmdutil.NewFake()
	commands := []interface{}{42}

	err := RunHooks(context.Background(), fake, zerolog.Nop(), "/srv/app", commands, 60)
	if err == nil {
		t.Fatal("non-string command must be rejected")
	}
	if len(fake.Calls) != 0 {
		t.Errorf("rejected command still executed: %v", fake.Calls)
	}
}

func TestRunHooks_NoCommandsIsNoOp(t *testing.T) {
	fake := cmdutil.NewFake()

	if err := RunHooks(context.Background(), fake, zerolog.Nop(), "/srv/app", nil, 60); err != nil {
		t.Fatalf("RunHooks() error = %v", err)
	}
	if len(fake.Calls) != 0 {
		t.Errorf("no commands should run, got: %v", fake.Calls)
	}
}
