package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"stagehand/internal/config"
	"stagehand/internal/firewall"
	"stagehand/internal/role"
)

var (
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

func init() {
	// Not a terminal, disable colors
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		colorGreen = ""
		colorReset = ""
	}
}

func printRunBanner() {
	fmt.Println()
	fmt.Println("===========================================")
	fmt.Println("==    Stagehand bootstrap starting...    ==")
	fmt.Println("===========================================")
	fmt.Println()
}

func printSuccessSummary(cfg *config.Config, selected role.Role) {
	rules := firewall.NewRuleSet(cfg.AdminPort, selected.Ports())
	var ruleText []string
	for _, rule := range rules.Rules() {
		ruleText = append(ruleText, fmt.Sprintf("%s %s", rule.Action, rule.Target()))
	}

	fmt.Println()
	fmt.Println("==========================================")
	fmt.Printf("  %sBootstrap Complete!%s\n", colorGreen, colorReset)
	fmt.Println("==========================================")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Role:       %s\n", selected)
	fmt.Printf("  Firewall:   %s\n", strings.Join(ruleText, ", "))
	fmt.Printf("  Logs:       %s\n", cfg.LogFile)
	fmt.Printf("  Database:   %s\n", cfg.HistoryDBPath())
	switch selected {
	case role.Primary:
		fmt.Printf("  Container:  %s (%s)\n", cfg.ContainerName, cfg.Image)
	case role.Web:
		fmt.Printf("  Checkout:   %s @ %s\n", cfg.CloneDir, cfg.RepoRef)
	}
	fmt.Println()
	fmt.Println("Follow up:")
	fmt.Println("  Status:     stagehand status")
	fmt.Println("  History:    stagehand history")
	switch selected {
	case role.Primary:
		fmt.Printf("  Container:  docker logs -f %s\n", cfg.ContainerName)
	case role.Web:
		fmt.Printf("  Playbook:   less %s\n", cfg.LogFile)
	}
	fmt.Println()
}
