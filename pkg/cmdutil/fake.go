package cmdutil

import (
	"context"
	"fmt"
	"strings"
)

// FakeResult scripts the outcome of one fake command invocation.
type FakeResult struct {
	Output   string
	ExitCode int
	Err      error
}

// Fake is a scripted Runner for tests. Commands are matched against scripted
// results by the longest prefix of their shell-quoted form; unmatched
// commands succeed with empty output. Results scripted for the same prefix
// are consumed in order, with the last one repeating.
type Fake struct {
	// Calls records every executed command, shell-quoted.
	Calls []string

	// Responses maps a command prefix to its scripted results.
	Responses map[string][]FakeResult

	// Missing lists executable names LookPath reports as absent.
	Missing map[string]bool
}

// NewFake returns an empty Fake on which every command succeeds.
func NewFake() *Fake {
	return &Fake{
		Responses: make(map[string][]FakeResult),
		Missing:   make(map[string]bool),
	}
}

// Script appends scripted results for commands matching prefix.
func (f *Fake) Script(prefix string, res ...FakeResult) {
	f.Responses[prefix] = append(f.Responses[prefix], res...)
}

// Run records the command and returns its scripted result.
func (f *Fake) Run(ctx context.Context, opts ExecOptions, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	formatted := FormatCommand(argv)
	f.Calls = append(f.Calls, formatted)

	res := f.next(formatted)
	result := &Result{
		Output:   []byte(res.Output),
		ExitCode: res.ExitCode,
	}
	if res.Err != nil {
		return result, res.Err
	}
	if res.ExitCode != 0 {
		return result, fmt.Errorf("command failed: exit status %d", res.ExitCode)
	}
	return result, nil
}

// LookPath reports a fake path under /usr/bin unless the name is Missing.
func (f *Fake) LookPath(name string) (string, error) {
	if f.Missing[name] {
		return "", fmt.Errorf("exec: %q: executable file not found in $PATH", name)
	}
	return "/usr/bin/" + name, nil
}

// Ran reports whether any recorded call starts with prefix.
func (f *Fake) Ran(prefix string) bool {
	return f.Count(prefix) > 0
}

// Count returns how many recorded calls start with prefix.
func (f *Fake) Count(prefix string) int {
	n := 0
	for _, call := range f.Calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

// next pops the scripted result for the longest matching prefix.
func (f *Fake) next(formatted string) FakeResult {
	longest := ""
	for prefix := range f.Responses {
		if strings.HasPrefix(formatted, prefix) && len(prefix) > len(longest) {
			longest = prefix
		}
	}
	if longest == "" {
		return FakeResult{}
	}

	queue := f.Responses[longest]
	res := queue[0]
	if len(queue) > 1 {
		f.Responses[longest] = queue[1:]
	}
	return res
}
