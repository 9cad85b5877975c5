// Package docker drives the container engine for the direct-deploy
// strategy. The engine is an external process: every operation shells
// out to the docker CLI, and container state is read back with pure
// query functions so the deploy logic can decide before acting.
package docker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stagehand/pkg/cmdutil"
)

const (
	pullTimeout   = 10 * time.Minute
	launchTimeout = 2 * time.Minute
)

// EngineState reports whether the container engine is installed.
type EngineState int

const (
	EngineAbsent EngineState = iota
	EnginePresent
)

func (s EngineState) String() string {
	if s == EnginePresent {
		return "present"
	}
	return "absent"
}

// ContainerState is the lifecycle state of a named container.
type ContainerState int

const (
	ContainerAbsent ContainerState = iota
	ContainerRunning
	ContainerStopped
)

func (s ContainerState) String() string {
	switch s {
	case ContainerRunning:
		return "running"
	case ContainerStopped:
		return "stopped"
	default:
		return "absent"
	}
}

// PortMap publishes a container port on the host.
type PortMap struct {
	Host      int
	Container int
}

// VolumeMount attaches a named volume at a container path.
type VolumeMount struct {
	Name string
	Path string
}

// Spec describes the container to run.
type Spec struct {
	Name          string
	Image         string
	Ports         []PortMap
	Env           map[string]string
	Volumes       []VolumeMount
	RestartPolicy string
}

// RunArgs renders the spec as docker CLI arguments. Environment keys are
// sorted so the rendered command is stable.
func (s *Spec) RunArgs() []string {
	args := []string{"run", "-d", "--name", s.Name}

	if s.RestartPolicy != "" {
		args = append(args, "--restart", s.RestartPolicy)
	}

	for _, p := range s.Ports {
		args = append(args, "-p", fmt.Sprintf("%d:%d", p.Host, p.Container))
	}

	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, s.Env[k]))
	}

	for _, v := range s.Volumes {
		args = append(args, "-v", fmt.Sprintf("%s:%s", v.Name, v.Path))
	}

	return append(args, s.Image)
}

// Engine runs docker CLI operations.
type Engine struct {
	runner cmdutil.Runner
	log    zerolog.Logger
}

// NewEngine creates an engine handle using the given runner.
func NewEngine(runner cmdutil.Runner, log zerolog.Logger) *Engine {
	return &Engine{runner: runner, log: log}
}

// QueryEngine reports whether the engine binary is installed.
func (e *Engine) QueryEngine() EngineState {
	if _, err := e.runner.LookPath("docker"); err != nil {
		return EngineAbsent
	}
	return EnginePresent
}

// QueryContainer returns the state of the named container.
func (e *Engine) QueryContainer(ctx context.Context, name string) (ContainerState, error) {
	result, err := e.runner.Run(ctx, cmdutil.ExecOptions{},
		[]string{"docker", "inspect", "--format", "{{.State.Status}}", name})
	if err != nil {
		output := string(result.OutputOrEmpty())
		if strings.Contains(output, "No such object") || strings.Contains(output, "No such container") {
			return ContainerAbsent, nil
		}
		return ContainerAbsent, fmt.Errorf("inspecting container %s: %w (output: %s)",
			name, err, strings.TrimSpace(output))
	}

	switch status := strings.TrimSpace(string(result.Output)); status {
	case "running":
		return ContainerRunning, nil
	case "created", "exited", "paused", "dead", "restarting":
		return ContainerStopped, nil
	default:
		return ContainerAbsent, fmt.Errorf("unrecognized container status %q for %s", status, name)
	}
}

// Pull fetches the image. Failure is fatal for the run.
func (e *Engine) Pull(ctx context.Context, image string) error {
	e.log.Info().Str("image", image).Msg("pulling image")

	result, err := e.runner.Run(ctx, cmdutil.ExecOptions{Timeout: pullTimeout},
		[]string{"docker", "pull", image})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w (output: %s)",
			image, err, strings.TrimSpace(string(result.OutputOrEmpty())))
	}
	return nil
}

// Remove force-removes the named container. Used to clean up stopped or
// crashed instances before a fresh launch.
func (e *Engine) Remove(ctx context.Context, name string) error {
	e.log.Info().Str("container", name).Msg("removing container")

	result, err := e.runner.Run(ctx, cmdutil.ExecOptions{},
		[]string{"docker", "rm", "--force", name})
	if err != nil {
		return fmt.Errorf("removing container %s: %w (output: %s)",
			name, err, strings.TrimSpace(string(result.OutputOrEmpty())))
	}
	return nil
}

// Launch starts a container from the spec. Failure is fatal for the run.
func (e *Engine) Launch(ctx context.Context, spec *Spec) error {
	e.log.Info().Str("container", spec.Name).Str("image", spec.Image).Msg("launching container")

	argv := append([]string{"docker"}, spec.RunArgs()...)
	result, err := e.runner.Run(ctx, cmdutil.ExecOptions{Timeout: launchTimeout}, argv)
	if err != nil {
		return fmt.Errorf("launching container %s: %w (output: %s)",
			spec.Name, err, strings.TrimSpace(string(result.OutputOrEmpty())))
	}
	return nil
}

// StatusText returns one line describing the named container for
// operator display.
func (e *Engine) StatusText(ctx context.Context, name string) (string, error) {
	result, err := e.runner.Run(ctx, cmdutil.ExecOptions{},
		[]string{"docker", "ps", "--all", "--filter", "name=" + name,
			"--format", "{{.Names}}\t{{.Status}}\t{{.Image}}"})
	if err != nil {
		return "", fmt.Errorf("listing container %s: %w", name, err)
	}
	return strings.TrimSpace(string(result.Output)), nil
}
