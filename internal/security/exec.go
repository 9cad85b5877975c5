package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stagehand/pkg/cmdutil"
)

// DefaultAllowedCommands is the default set of commands allowed for
// post-deploy hooks.
var DefaultAllowedCommands = map[string]bool{
	"systemctl":        true,
	"docker":           true,
	"git":              true,
	"ansible-playbook": true,
	"ufw":              true,
	"curl":             true,
	"rsync":            true,
	"cp":               true,
	"mv":               true,
	"ln":               true,
	"mkdir":            true,
	"chmod":            true,
	"chown":            true,
	"python3":          true,
	"make":             true,
}

// SandboxedExecutor provides safe command execution with validation.
// Commands run without a shell, against an allow-list, with shell
// metacharacters rejected in arguments.
type SandboxedExecutor struct {
	// AllowedCommands is the map of commands that are permitted to run.
	AllowedCommands map[string]bool

	// WorkDir is the working directory for command execution.
	WorkDir string

	// Env contains extra environment variables for the command.
	Env []string

	// Timeout bounds each command. Zero means no limit.
	Timeout time.Duration

	// Runner executes the validated command.
	Runner cmdutil.Runner
}

// NewSandboxedExecutor creates a new sandboxed executor with default settings.
func NewSandboxedExecutor(workDir string, runner cmdutil.Runner) *SandboxedExecutor {
	return &SandboxedExecutor{
		AllowedCommands: DefaultAllowedCommands,
		WorkDir:         workDir,
		Runner:          runner,
	}
}

// Execute runs a command with validation.
// Returns the combined stdout/stderr output and any error.
func (e *SandboxedExecutor) Execute(ctx context.Context, cmdParts []string) ([]byte, error) {
	if err := e.ValidateCommandParts(cmdParts); err != nil {
		return nil, err
	}

	result, err := e.Runner.Run(ctx, cmdutil.ExecOptions{
		Dir:     e.WorkDir,
		Env:     e.Env,
		Timeout: e.Timeout,
	}, cmdParts)
	if result == nil {
		return nil, err
	}
	return result.Output, err
}

// ValidateCommandParts validates a command before execution.
// This can be used to pre-validate commands without executing them.
func (e *SandboxedExecutor) ValidateCommandParts(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	baseCmd := cmdParts[0]
	if !e.AllowedCommands[baseCmd] {
		return fmt.Errorf("command not allowed: %s", baseCmd)
	}

	for i, arg := range cmdParts[1:] {
		if containsShellMetachars(arg) {
			return fmt.Errorf("argument %d contains shell metacharacters: %s", i+1, arg)
		}
	}

	return nil
}

// containsShellMetachars checks if a string contains shell metacharacters.
// These characters can be used for command injection attacks.
func containsShellMetachars(s string) bool {
	dangerous := []string{
		";",  // Command separator
		"|",  // Pipe
		"&",  // Background/AND
		"$",  // Variable expansion
		"`",  // Command substitution
		"\n", // Newline (command separator)
		">",  // Redirect output
		"<",  // Redirect input
		"(",  // Subshell start
		")",  // Subshell end
		"{",  // Brace expansion start
		"}",  // Brace expansion end
		"*",  // Glob wildcard
		"?",  // Glob single char
		"[",  // Glob character class
		"]",  // Glob character class end
		"\\", // Escape character
		"'",  // Single quote (can bypass some protections)
		"\"", // Double quote (can bypass some protections)
	}

	for _, char := range dangerous {
		if strings.Contains(s, char) {
			return true
		}
	}

	return false
}

// AddAllowedCommand adds a command to the allowed list.
// Use with caution - only add commands you trust.
func (e *SandboxedExecutor) AddAllowedCommand(cmd string) {
	if e.AllowedCommands == nil {
		e.AllowedCommands = make(map[string]bool)
	}
	e.AllowedCommands[cmd] = true
}

// IsCommandAllowed checks if a command is in the allowed list.
func (e *SandboxedExecutor) IsCommandAllowed(cmd string) bool {
	return e.AllowedCommands[cmd]
}
