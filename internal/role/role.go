// Package role decides which deployment strategy a host executes. The
// decision is made exactly once, at the top of a run, from the basename
// of the configured playbook path; every stage after that receives the
// typed value instead of re-deriving it from strings.
package role

import "path/filepath"

// Role is the deployment strategy selected for this host.
type Role int

const (
	// Unknown means no recognized deployment is configured. The run
	// still succeeds: "nothing to do" is a valid terminal state.
	Unknown Role = iota

	// Primary deploys the service directly as a container.
	Primary

	// Web checks out a configuration repository and delegates to the
	// task runner.
	Web
)

// Playbook basenames recognized as role indicators.
const (
	primaryIndicator = "site"
	webIndicator     = "site_web"
)

func (r Role) String() string {
	switch r {
	case Primary:
		return "primary"
	case Web:
		return "web"
	default:
		return "unknown"
	}
}

// Detect derives the role from the configured playbook path and the
// repository URL. The web strategy needs a source repository; a web
// indicator without one yields Unknown rather than a doomed deploy.
func Detect(playbook, repoURL string) Role {
	if playbook == "" {
		return Unknown
	}

	base := filepath.Base(playbook)
	ext := filepath.Ext(base)
	if ext != ".yml" && ext != ".yaml" {
		return Unknown
	}
	name := base[:len(base)-len(ext)]

	switch name {
	case primaryIndicator:
		return Primary
	case webIndicator:
		if repoURL == "" {
			return Unknown
		}
		return Web
	default:
		return Unknown
	}
}

// Ports returns the application ports this role exposes through the
// firewall, beyond the common HTTP/HTTPS pair.
func (r Role) Ports() []int {
	switch r {
	case Primary:
		return []int{5055, 8502}
	case Web:
		return []int{8501}
	default:
		return nil
	}
}
