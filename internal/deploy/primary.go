// Package deploy implements the two deployment strategies a bootstrap run
// can dispatch to: direct container launch (primary role) and
// repository-plus-playbook provisioning (web role). Both converge on a
// running service and report through the shared run log.
package deploy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"stagehand/internal/config"
	"stagehand/internal/docker"
	"stagehand/internal/role"
	"stagehand/pkg/cmdutil"
	"stagehand/pkg/netutil"
)

// Named volumes for the primary container: application data and the
// embedded database.
const (
	dataVolume    = "notebook_data"
	dataMount     = "/app/data"
	surrealVolume = "surreal_data"
	surrealMount  = "/mydata"

	apiEnvVar = "API_BASE_URL"
)

// Primary deploys the application as a single container on the host's
// engine. At most one instance runs at a time: an already-running
// container is left alone unless replacement was explicitly requested.
type Primary struct {
	cfg    *config.Config
	engine *docker.Engine
	log    zerolog.Logger
}

// NewPrimary returns a Primary deployer driving the engine through the
// given runner.
func NewPrimary(cfg *config.Config, runner cmdutil.Runner, log zerolog.Logger) *Primary {
	return &Primary{
		cfg:    cfg,
		engine: docker.NewEngine(runner, log),
		log:    log,
	}
}

// Run converges the host onto a running container of the configured image.
func (p *Primary) Run(ctx context.Context) error {
	if p.engine.QueryEngine() == docker.EngineAbsent {
		return fmt.Errorf("container engine not found on PATH")
	}

	name := p.cfg.ContainerName
	state, err := p.engine.QueryContainer(ctx, name)
	if err != nil {
		return err
	}

	switch state {
	case docker.ContainerRunning:
		if !p.cfg.Replace {
			status, statusErr := p.engine.StatusText(ctx, name)
			if statusErr == nil {
				p.log.Info().Str("container", name).Str("status", status).Msg("container already running; leaving it in place")
			} else {
				p.log.Info().Str("container", name).Msg("container already running; leaving it in place")
			}
			return nil
		}
		p.log.Info().Str("container", name).Msg("replacement requested; removing running container")
		if err := p.engine.Remove(ctx, name); err != nil {
			return err
		}
	case docker.ContainerStopped:
		p.log.Info().Str("container", name).Msg("removing stopped container before relaunch")
		if err := p.engine.Remove(ctx, name); err != nil {
			return err
		}
	}

	if err := p.engine.Pull(ctx, p.cfg.Image); err != nil {
		return err
	}

	apiBase := p.cfg.APIBase
	if apiBase == "" {
		if ip := netutil.PrimaryAddress(); ip != "" {
			apiBase = fmt.Sprintf("http://%s:%d", ip, role.Primary.Ports()[0])
		} else {
			p.log.Warn().Msg("no routable address derived; launching with empty API base")
		}
	}

	spec := ContainerSpec(p.cfg, apiBase)
	if err := p.engine.Launch(ctx, spec); err != nil {
		return err
	}

	p.log.Info().
		Str("container", name).
		Str("image", p.cfg.Image).
		Str("api_base", apiBase).
		Msg("container launched")
	return nil
}

// ContainerSpec builds the container description for the primary role:
// the role's ports mapped one-to-one, the API base advertised to the
// application, both persistent volumes, and a restart policy that
// survives reboots unless an operator stops the container.
func ContainerSpec(cfg *config.Config, apiBase string) *docker.Spec {
	ports := role.Primary.Ports()
	mappings := make([]docker.PortMap, 0, len(ports))
	for _, port := range ports {
		mappings = append(mappings, docker.PortMap{Host: port, Container: port})
	}

	return &docker.Spec{
		Name:  cfg.ContainerName,
		Image: cfg.Image,
		Ports: mappings,
		Env:   map[string]string{apiEnvVar: apiBase},
		Volumes: []docker.VolumeMount{
			{Name: dataVolume, Path: dataMount},
			{Name: surrealVolume, Path: surrealMount},
		},
		RestartPolicy: "unless-stopped",
	}
}
