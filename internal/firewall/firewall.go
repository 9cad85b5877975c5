// Package firewall declares and enforces the host's inbound allow-list
// through ufw. Rules are set-like: declaring one that already exists is
// a no-op, and the firewall is only enabled after every rule of the set
// has been declared so the administrative port is never blocked without
// its rate-limit rule in place.
package firewall

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"stagehand/pkg/cmdutil"
)

// Action is what a rule does with matching traffic.
type Action int

const (
	// Allow admits connections unconditionally.
	Allow Action = iota
	// Limit admits connections but throttles repeated attempts,
	// used for the administrative port.
	Limit
)

func (a Action) String() string {
	if a == Limit {
		return "limit"
	}
	return "allow"
}

// Rule is one (port, protocol, action) tuple.
type Rule struct {
	Port   int
	Proto  string
	Action Action
}

// Target renders the rule's port/protocol argument, e.g. "22/tcp".
func (r Rule) Target() string {
	return fmt.Sprintf("%d/%s", r.Port, r.Proto)
}

// RuleSet is an ordered, duplicate-free collection of rules.
type RuleSet struct {
	rules []Rule
}

// Add appends a rule unless an identical one is already present.
func (rs *RuleSet) Add(r Rule) {
	for _, existing := range rs.rules {
		if existing == r {
			return
		}
	}
	rs.rules = append(rs.rules, r)
}

// Rules returns the rules in declaration order.
func (rs *RuleSet) Rules() []Rule {
	return rs.rules
}

// Empty reports whether the set holds no rules.
func (rs *RuleSet) Empty() bool {
	return len(rs.rules) == 0
}

// NewRuleSet builds the bootstrap rule set: rate-limited administrative
// port, HTTP and HTTPS, then the role's application ports.
func NewRuleSet(adminPort int, rolePorts []int) RuleSet {
	var rs RuleSet
	rs.Add(Rule{Port: adminPort, Proto: "tcp", Action: Limit})
	rs.Add(Rule{Port: 80, Proto: "tcp", Action: Allow})
	rs.Add(Rule{Port: 443, Proto: "tcp", Action: Allow})
	for _, port := range rolePorts {
		rs.Add(Rule{Port: port, Proto: "tcp", Action: Allow})
	}
	return rs
}

// State is the firewall's activation state.
type State int

const (
	StateUnknown State = iota
	StateInactive
	StateActive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Configurator applies rule sets to the host firewall.
type Configurator struct {
	runner cmdutil.Runner
	log    zerolog.Logger
}

// NewConfigurator creates a configurator using the given runner.
func NewConfigurator(runner cmdutil.Runner, log zerolog.Logger) *Configurator {
	return &Configurator{runner: runner, log: log}
}

// Query returns the firewall's current activation state.
func (c *Configurator) Query(ctx context.Context) (State, error) {
	result, err := c.runner.Run(ctx, cmdutil.ExecOptions{}, []string{"ufw", "status"})
	if err != nil {
		return StateUnknown, fmt.Errorf("querying firewall status: %w", err)
	}

	output := string(result.Output)
	switch {
	case strings.Contains(output, "Status: active"):
		return StateActive, nil
	case strings.Contains(output, "Status: inactive"):
		return StateInactive, nil
	default:
		return StateUnknown, fmt.Errorf("unrecognized firewall status output: %q", strings.TrimSpace(output))
	}
}

// Apply declares every rule in the set, then enables the firewall if it
// is not already active. Declaring an existing rule is a no-op; the
// enable step is forced so it never prompts.
func (c *Configurator) Apply(ctx context.Context, rs RuleSet) error {
	if rs.Empty() {
		return fmt.Errorf("refusing to enable firewall with no rules declared")
	}

	for _, rule := range rs.Rules() {
		argv := []string{"ufw", rule.Action.String(), rule.Target()}
		c.log.Info().Str("rule", rule.Target()).Str("action", rule.Action.String()).Msg("declaring firewall rule")

		result, err := c.runner.Run(ctx, cmdutil.ExecOptions{}, argv)
		if err != nil {
			return fmt.Errorf("declaring rule %s %s: %w (output: %s)",
				rule.Action, rule.Target(), err, strings.TrimSpace(string(result.OutputOrEmpty())))
		}
	}

	state, err := c.Query(ctx)
	if err != nil {
		return err
	}
	if state == StateActive {
		c.log.Info().Msg("firewall already active")
		return nil
	}

	c.log.Info().Msg("enabling firewall")
	result, err := c.runner.Run(ctx, cmdutil.ExecOptions{}, []string{"ufw", "--force", "enable"})
	if err != nil {
		return fmt.Errorf("enabling firewall: %w (output: %s)",
			err, strings.TrimSpace(string(result.OutputOrEmpty())))
	}

	return nil
}

// StatusText returns the firewall tool's own verbose status output for
// operator display.
func (c *Configurator) StatusText(ctx context.Context) (string, error) {
	result, err := c.runner.Run(ctx, cmdutil.ExecOptions{}, []string{"ufw", "status", "verbose"})
	if err != nil {
		return "", fmt.Errorf("querying firewall status: %w", err)
	}
	return string(result.Output), nil
}
