package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"skillhost/pkg/agent"
	"skillhost/pkg/bus"
	"skillhost/pkg/memory"
)

func newChatCommand() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the runtime locally (interactive or one-shot)",
		Example: strings.Join([]string{
			"  skillhost chat",
			"  skillhost chat --message \"check the work queue depth\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyDebugFlag(cmd)
			return runChat(message)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot request instead of interactive mode")
	return cmd
}

func runChat(message string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	skillStore, err := openSkillStore(cfg)
	if err != nil {
		return fmt.Errorf("load skills: %w", err)
	}

	memoryStore, err := memory.NewStore(filepath.Join(cfg.WorkspacePath(), "state", "memory.db"))
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer memoryStore.Close()

	msgBus := bus.NewMessageBus()
	defer msgBus.Close()
	agentLoop := agent.NewAgentLoop(cfg, msgBus, skillStore, memoryStore)
	defer agentLoop.Stop()

	if strings.TrimSpace(message) != "" {
		response, err := agentLoop.ProcessDirect(context.Background(), message, "cli", "direct")
		if err != nil {
			return err
		}
		fmt.Printf("\n%s %s\n", appName, response)
		return nil
	}

	fmt.Printf("%s interactive mode (Ctrl+C to exit)\n\n", appName)
	interactiveMode(agentLoop)
	return nil
}

func interactiveMode(agentLoop *agent.AgentLoop) {
	prompt := fmt.Sprintf("%s You: ", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".skillhost_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(agentLoop)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleChatLine(agentLoop, line) {
			return
		}
	}
}

func simpleInteractiveMode(agentLoop *agent.AgentLoop) {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Printf("%s You: ", appName)
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}
		if !handleChatLine(agentLoop, line) {
			return
		}
	}
}

func handleChatLine(agentLoop *agent.AgentLoop, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if input == "exit" || input == "quit" {
		fmt.Println("Goodbye!")
		return false
	}

	response, err := agentLoop.ProcessDirect(context.Background(), input, "cli", "direct")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return true
	}
	fmt.Printf("\n%s %s\n\n", appName, response)
	return true
}
