package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"skillhost/pkg/config"
	"skillhost/pkg/logger"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
)

const appName = "skillhost"

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	fmt.Printf("  Go: %s\n", runtime.Version())
}

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   appName,
		Short: "Skill orchestration runtime with deterministic routing, scheduling, and memory",
		Long: strings.TrimSpace(`skillhost routes requests to declared skills, executes their
commands with timeouts and cancellation, fans decomposable work out to
supervised subagents, and keeps a heartbeat checklist plus one-shot
cron deliveries running in the background.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newGatewayCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newCronCommand())
	root.AddCommand(newSkillsCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func applyDebugFlag(cmd *cobra.Command) {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logger.SetLevel(logger.DEBUG)
	}
}

func configPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".skillhost", "config.json")
}

func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configPath())
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build/version metadata",
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.skillhost config and workspace templates",
		Example: "  skillhost onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return onboard()
		},
	}
}

func onboard() error {
	cfgPath := configPath()
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Println("Config already exists:", cfgPath)
	} else {
		if err := config.SaveConfig(cfgPath, config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Println("✓ Created config:", cfgPath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	workspace := cfg.WorkspacePath()
	for _, dir := range []string{workspace, filepath.Join(workspace, "skills")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create workspace dir: %w", err)
		}
	}

	heartbeatPath := filepath.Join(workspace, "HEARTBEAT.md")
	if _, err := os.Stat(heartbeatPath); os.IsNotExist(err) {
		checklist := "# Heartbeat checklist\n# One item per line; each routes through skills like live input.\n"
		if err := os.WriteFile(heartbeatPath, []byte(checklist), 0644); err != nil {
			return fmt.Errorf("write heartbeat checklist: %w", err)
		}
		fmt.Println("✓ Created heartbeat checklist:", heartbeatPath)
	}

	samplePath := filepath.Join(workspace, "skills", "uptime")
	if _, err := os.Stat(samplePath); os.IsNotExist(err) {
		if err := os.MkdirAll(samplePath, 0755); err != nil {
			return err
		}
		sample := `---
name: uptime
description: Report how long the host has been up
metadata: {'skillhost': {'emoji': '⏱️', 'command': 'uptime'}}
---

Reports host uptime via the system uptime command.
`
		if err := os.WriteFile(filepath.Join(samplePath, "SKILL.md"), []byte(sample), 0644); err != nil {
			return err
		}
		fmt.Println("✓ Installed sample skill: uptime")
	}

	fmt.Println("\nNext steps:")
	fmt.Println("  skillhost chat            # talk to the runtime locally")
	fmt.Println("  skillhost gateway         # run channels + scheduler + health server")
	return nil
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and runtime readiness",
		Example: "  skillhost status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return statusCmd()
		},
	}
}

func statusCmd() error {
	cfgPath := configPath()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	check := func(ok bool) string {
		if ok {
			return "✓"
		}
		return "✗"
	}

	_, cfgErr := os.Stat(cfgPath)
	fmt.Println("Config:", cfgPath, check(cfgErr == nil))

	workspace := cfg.WorkspacePath()
	_, wsErr := os.Stat(workspace)
	fmt.Println("Workspace:", workspace, check(wsErr == nil))

	memoryDB := filepath.Join(workspace, "state", "memory.db")
	if _, err := os.Stat(memoryDB); err == nil {
		fmt.Println("Memory DB:", memoryDB, "✓")
	} else {
		fmt.Println("Memory DB:", memoryDB, "not initialized")
	}

	store, err := openSkillStore(cfg)
	if err != nil {
		fmt.Println("Skills:", "load failed:", err)
	} else {
		reg := store.Current()
		fmt.Printf("Skills: %d loaded\n", reg.Len())
	}

	discordReady := strings.TrimSpace(cfg.Channels.Discord.Token) != ""
	fmt.Println("Discord token:", check(discordReady))
	fmt.Printf("Heartbeat: enabled=%v every %dm\n", cfg.Heartbeat.Enabled, cfg.Heartbeat.Interval)
	fmt.Printf("Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	return nil
}
