// Package ansible renders inventories and extra-vars for ansible-playbook
// runs and drives the playbook binary. All inputs are typed structs; YAML
// and JSON are produced only at the process boundary.
package ansible

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"stagehand/pkg/cmdutil"
)

// playTimeout bounds a single playbook run. Provisioning playbooks install
// packages and build artifacts, so this is generous.
const playTimeout = 30 * time.Minute

// errorTail limits how much playbook output an error message carries.
const errorTail = 2048

// Host holds per-host connection variables.
type Host struct {
	Connection        string `yaml:"ansible_connection,omitempty"`
	PythonInterpreter string `yaml:"ansible_python_interpreter,omitempty"`
}

// Group is a named set of hosts.
type Group struct {
	Hosts map[string]Host `yaml:"hosts"`
}

// Inventory is the full host inventory for a playbook run.
type Inventory struct {
	All Group `yaml:"all"`
}

// LocalInventory returns an inventory containing only this machine, with a
// local connection so no ssh transport is involved.
func LocalInventory() Inventory {
	return Inventory{
		All: Group{
			Hosts: map[string]Host{
				"localhost": {
					Connection:        "local",
					PythonInterpreter: "/usr/bin/python3",
				},
			},
		},
	}
}

// Render produces the YAML form of the inventory.
func (inv Inventory) Render() ([]byte, error) {
	data, err := yaml.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("rendering inventory: %w", err)
	}
	return data, nil
}

// WriteFile renders the inventory to a file, creating parent directories
// as needed.
func (inv Inventory) WriteFile(path string) error {
	data, err := inv.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ExtraVars carries the variables handed to a playbook. Zero-valued fields
// are left out of the rendered form entirely, so the playbook's own
// defaults apply.
type ExtraVars struct {
	APIBaseURL     string `json:"api_base_url,omitempty"`
	AppRepoURL     string `json:"app_repo_url,omitempty"`
	AppRepoRef     string `json:"app_repo_ref,omitempty"`
	AppInstallDir  string `json:"app_install_dir,omitempty"`
	AppPort        string `json:"app_port,omitempty"`
	AppServiceName string `json:"app_service_name,omitempty"`
}

// Empty reports whether no variable is set.
func (v ExtraVars) Empty() bool {
	return v == ExtraVars{}
}

// Render produces the JSON form ansible-playbook accepts after -e.
func (v ExtraVars) Render() (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("rendering extra vars: %w", err)
	}
	return string(data), nil
}

// Playbook describes one ansible-playbook invocation.
type Playbook struct {
	// Path is the playbook file to run.
	Path string
	// Inventory is the inventory file path.
	Inventory string
	// Vars are handed to the run as extra vars when non-empty.
	Vars ExtraVars
}

// Args builds the full ansible-playbook argument vector. Verbosity is
// pinned at -vvvv so the durable log captures full task detail.
func (p Playbook) Args() ([]string, error) {
	if p.Path == "" {
		return nil, fmt.Errorf("playbook path is empty")
	}
	if p.Inventory == "" {
		return nil, fmt.Errorf("inventory path is empty")
	}

	args := []string{"ansible-playbook", "-i", p.Inventory}
	if !p.Vars.Empty() {
		vars, err := p.Vars.Render()
		if err != nil {
			return nil, err
		}
		args = append(args, "-e", vars)
	}
	args = append(args, "-vvvv", p.Path)
	return args, nil
}

// Driver runs playbooks through an external ansible-playbook binary.
type Driver struct {
	runner cmdutil.Runner
	log    zerolog.Logger
}

// NewDriver returns a Driver that invokes ansible-playbook through the
// given runner.
func NewDriver(runner cmdutil.Runner, log zerolog.Logger) *Driver {
	return &Driver{runner: runner, log: log}
}

// Play runs the playbook from its own directory so relative role and file
// references resolve. A non-zero exit is returned as an error carrying the
// tail of the run output.
func (d *Driver) Play(ctx context.Context, pb Playbook) error {
	args, err := pb.Args()
	if err != nil {
		return err
	}

	d.log.Info().Str("playbook", pb.Path).Msg("running playbook")

	opts := cmdutil.ExecOptions{Dir: filepath.Dir(pb.Path), Timeout: playTimeout}
	result, err := d.runner.Run(ctx, opts, args)
	if err != nil {
		output := strings.TrimSpace(string(result.OutputOrEmpty()))
		d.log.Error().
			Str("playbook", pb.Path).
			Int("exit_code", exitCode(result)).
			Msg("playbook failed")
		return fmt.Errorf("playbook %s: %s: %w", pb.Path, tail(output, errorTail), err)
	}

	d.log.Info().
		Str("playbook", pb.Path).
		Dur("duration", resultDuration(result)).
		Msg("playbook completed")
	d.log.Debug().Str("playbook", pb.Path).Msg(strings.TrimSpace(string(result.Output)))
	return nil
}

func exitCode(r *cmdutil.Result) int {
	if r == nil {
		return -1
	}
	return r.ExitCode
}

func resultDuration(r *cmdutil.Result) time.Duration {
	if r == nil {
		return 0
	}
	return r.Duration
}

// tail returns at most n trailing bytes of s, cut at a line boundary when
// possible.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := s[len(s)-n:]
	if i := strings.IndexByte(cut, '\n'); i >= 0 && i < len(cut)-1 {
		cut = cut[i+1:]
	}
	return cut
}
