package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"skillhost/pkg/skills"
)

func newSkillsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect loaded skills and their availability",
	}
	cmd.AddCommand(newSkillsListCommand())
	cmd.AddCommand(newSkillsShowCommand())
	return cmd
}

func newSkillsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List skills in load order with availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openSkillStore(cfg)
			if err != nil {
				return fmt.Errorf("load skills: %w", err)
			}

			reg := store.Current()
			all := reg.ListAll()
			if len(all) == 0 {
				fmt.Println("No skills installed.")
				return nil
			}

			avail := skills.CheckAll(reg, skills.CaptureEnv(reg))

			fmt.Println("\nSkills:")
			fmt.Println("--------")
			for _, info := range all {
				marker := "✓"
				note := ""
				if a := avail[info.Name]; !a.OK {
					marker = "✗"
					note = " (" + a.Reason() + ")"
				}
				flags := ""
				if info.AlwaysOn {
					flags = " [always-on]"
				}
				fmt.Printf("  %s %s%s%s\n", marker, info.Name, flags, note)
				if info.Description != "" {
					fmt.Printf("    %s\n", info.Description)
				}
			}
			return nil
		},
	}
}

func newSkillsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a skill's manifest details and body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openSkillStore(cfg)
			if err != nil {
				return fmt.Errorf("load skills: %w", err)
			}

			reg := store.Current()
			info, ok := reg.Lookup(args[0])
			if !ok {
				return fmt.Errorf("skill %q not found", args[0])
			}

			fmt.Printf("Name: %s\n", info.Name)
			fmt.Printf("Description: %s\n", info.Description)
			if info.Emoji != "" {
				fmt.Printf("Emoji: %s\n", info.Emoji)
			}
			fmt.Printf("Always-on: %v\n", info.AlwaysOn)
			if len(info.RequiresEnv) > 0 {
				fmt.Printf("Requires env: %s\n", strings.Join(info.RequiresEnv, ", "))
			}
			if len(info.RequiresBins) > 0 {
				fmt.Printf("Requires bins: %s\n", strings.Join(info.RequiresBins, ", "))
			}
			if info.Command != "" {
				fmt.Printf("Command: %s\n", info.Command)
			}
			if info.FetchURL != "" {
				fmt.Printf("Fetch: %s\n", info.FetchURL)
			}

			loader := skills.NewSkillsLoader(cfg.WorkspacePath(), "", "")
			if body, ok := loader.LoadSkill(info.Name); ok && strings.TrimSpace(body) != "" {
				fmt.Println("\n" + strings.TrimSpace(body))
			}
			return nil
		},
	}
}
