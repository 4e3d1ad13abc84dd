package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skillhost/pkg/agent"
	"skillhost/pkg/bus"
	"skillhost/pkg/channels"
	"skillhost/pkg/config"
	"skillhost/pkg/cron"
	"skillhost/pkg/health"
	"skillhost/pkg/heartbeat"
	"skillhost/pkg/logger"
	"skillhost/pkg/memory"
	"skillhost/pkg/skills"
	"skillhost/pkg/tools"
)

func openSkillStore(cfg *config.Config) (*skills.Store, error) {
	loader := skills.NewSkillsLoader(cfg.WorkspacePath(), "", "")
	return skills.NewStore(loader)
}

func cronStorePath(cfg *config.Config) string {
	return filepath.Join(cfg.WorkspacePath(), "cron", "jobs.json")
}

func newGatewayCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "gateway",
		Short:   "Run channel adapters, scheduler, heartbeat, and health server",
		Example: "  skillhost gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyDebugFlag(cmd)
			return runGateway()
		},
	}
}

func runGateway() error {
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
	agentLoop := agent.NewAgentLoop(cfg, msgBus, skillStore, memoryStore)

	reg := skillStore.Current()
	avail := skills.CheckAll(reg, skills.CaptureEnv(reg))
	available := 0
	for _, info := range reg.ListAll() {
		if avail.Available(info.Name) {
			available++
		}
	}
	fmt.Printf("✓ Skills: %d/%d available\n", available, reg.Len())

	cronService := setupCronService(cfg, agentLoop, msgBus)
	cronService.Start()
	defer cronService.Stop()

	heartbeatService := heartbeat.NewHeartbeatService(
		cfg.WorkspacePath(),
		cfg.Heartbeat.Interval,
		cfg.Heartbeat.Enabled,
	)
	heartbeatService.SetBus(msgBus)
	heartbeatService.SetHandler(func(prompt, channel, chatID string) *tools.ToolResult {
		if channel == "" || chatID == "" {
			channel, chatID = "cli", "direct"
		}
		response, err := agentLoop.ProcessHeartbeat(context.Background(), prompt, channel, chatID)
		if err != nil {
			return tools.ErrorResult(fmt.Sprintf("Heartbeat error: %v", err))
		}
		if response == agent.HeartbeatOK {
			return tools.SilentResult("Heartbeat OK")
		}
		return tools.UserResult(response)
	})
	heartbeatService.Start()
	defer heartbeatService.Stop()

	channelManager, err := channels.NewManager(cfg, msgBus)
	if err != nil {
		return fmt.Errorf("create channel manager: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := channelManager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}
	enabledChannels := channelManager.GetEnabledChannels()
	if len(enabledChannels) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabledChannels, ", "))
	} else {
		fmt.Println("✓ No external channels configured (CLI only)")
	}

	healthServer := health.NewServer(cfg.Gateway.Host, cfg.Gateway.Port)
	go func() {
		if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("health", "Health server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
	fmt.Printf("✓ Health endpoints at http://%s:%d/health and /ready\n", cfg.Gateway.Host, cfg.Gateway.Port)

	go agentLoop.Run(ctx)
	healthServer.SetReady(true)

	fmt.Println("Press Ctrl+C to stop")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	healthServer.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := channelManager.StopAll(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Channel shutdown error", map[string]interface{}{
			"error": err.Error(),
		})
	}
	agentLoop.Stop()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.WarnCF("gateway", "Health server shutdown error", map[string]interface{}{
			"error": err.Error(),
		})
	}
	msgBus.Close()
	return nil
}

// setupCronService routes due jobs through the agent pipeline. Jobs
// flagged for delivery publish their result to the target channel.
func setupCronService(cfg *config.Config, agentLoop *agent.AgentLoop, msgBus *bus.MessageBus) *cron.CronService {
	cronService := cron.NewCronService(cronStorePath(cfg), nil)
	cronService.SetOnJob(func(job *cron.CronJob) (string, error) {
		channel, chatID := job.Payload.Channel, job.Payload.To
		response, err := agentLoop.ProcessDirect(context.Background(), job.Payload.Message, channel, chatID)
		if err != nil {
			return "", err
		}
		if job.Payload.Deliver && channel != "" && chatID != "" {
			msgBus.PublishOutbound(bus.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: response,
			})
		}
		return response, nil
	})
	return cronService
}
