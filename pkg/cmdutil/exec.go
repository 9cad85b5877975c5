package cmdutil

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ExecOptions configures command execution.
type ExecOptions struct {
	// Dir is the working directory for the command.
	Dir string

	// Timeout is the maximum execution time.
	// If zero, no timeout is applied.
	Timeout time.Duration

	// Env contains additional environment variables for the command,
	// each in the form "KEY=value". They are appended to the parent
	// environment rather than replacing it.
	Env []string
}

// Result contains the result of a command execution.
type Result struct {
	// Output is the combined stdout and stderr.
	Output []byte

	// ExitCode is the exit code of the command.
	ExitCode int

	// Duration is how long the command took to execute.
	Duration time.Duration
}

// OK reports whether the command exited zero.
func (r *Result) OK() bool {
	return r != nil && r.ExitCode == 0
}

// OutputOrEmpty returns the captured output, tolerating a nil result so
// error paths can log whatever the command produced.
func (r *Result) OutputOrEmpty() []byte {
	if r == nil {
		return nil
	}
	return r.Output
}

// Runner executes external commands. The bootstrap stages depend on this
// interface rather than os/exec directly so that their check-then-act logic
// can be exercised against a fake host in tests.
type Runner interface {
	// Run executes argv and returns its combined output and exit code.
	Run(ctx context.Context, opts ExecOptions, argv []string) (*Result, error)

	// LookPath reports where an executable lives, or an error if it is
	// not on PATH.
	LookPath(name string) (string, error)
}

// System is the Runner backed by the real operating system.
type System struct{}

// Run executes a command with the given options. The command is provided as
// argv (program and its arguments); no shell is involved. The Result is
// returned even when err is non-nil so callers can log captured output.
func (System) Run(ctx context.Context, opts ExecOptions, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), opts.Env...)
	}

	start := time.Now()

	var result Result
	var err error
	result.Output, err = cmd.CombinedOutput()
	result.Duration = time.Since(start)

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		return &result, fmt.Errorf("command failed: %w", err)
	}

	return &result, nil
}

// LookPath wraps exec.LookPath.
func (System) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run executes a command using the real system runner. Convenience wrapper
// for callers that have no runner injected.
func Run(ctx context.Context, opts ExecOptions, argv []string) (*Result, error) {
	return System{}.Run(ctx, opts, argv)
}

// RunSimple executes a command with default options (no timeout).
func RunSimple(ctx context.Context, workDir string, argv []string) ([]byte, error) {
	result, err := Run(ctx, ExecOptions{Dir: workDir}, argv)
	if err != nil {
		if result != nil {
			return result.Output, err
		}
		return nil, err
	}
	return result.Output, nil
}

// ParseCommandString parses a shell-quoted command string into argv parts.
// This is useful when commands are stored as strings with proper quoting.
//
// Example:
//
//	"git commit -m \"my message\"" -> ["git", "commit", "-m", "my message"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// ParseCommandList parses a command that can be either a string or a list.
// This handles the two formats allowed in YAML configuration:
//   - String format: "systemctl restart myapp"
//   - List format: ["systemctl", "restart", "myapp"]
func ParseCommandList(cmd interface{}) ([]string, error) {
	switch v := cmd.(type) {
	case string:
		return ParseCommandString(v)
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("command list item %d is not a string: %T", i, item)
			}
			parts[i] = str
		}
		if len(parts) == 0 {
			return nil, fmt.Errorf("empty command list")
		}
		return parts, nil
	case []string:
		if len(v) == 0 {
			return nil, fmt.Errorf("empty command list")
		}
		return v, nil
	default:
		return nil, fmt.Errorf("invalid command type: %T (must be string or list)", cmd)
	}
}

// FormatCommand formats argv into a readable string for logging.
// Example: ["git", "commit", "-m", "my message"] -> "git commit -m 'my message'"
func FormatCommand(argv []string) string {
	if len(argv) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(argv))
	for i, part := range argv {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}
