package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Runtime    RuntimeConfig    `json:"runtime"`
	Router     RouterConfig     `json:"router"`
	Supervisor SupervisorConfig `json:"supervisor"`
	Heartbeat  HeartbeatConfig  `json:"heartbeat"`
	Channels   ChannelsConfig   `json:"channels"`
	Gateway    GatewayConfig    `json:"gateway"`
	Tools      ToolsConfig      `json:"tools"`
	mu         sync.RWMutex
}

type RuntimeConfig struct {
	Workspace           string `json:"workspace" env:"SKILLHOST_RUNTIME_WORKSPACE"`
	RestrictToWorkspace bool   `json:"restrict_to_workspace" env:"SKILLHOST_RUNTIME_RESTRICT_TO_WORKSPACE"`
	TaskTimeoutSeconds  int    `json:"task_timeout_seconds" env:"SKILLHOST_RUNTIME_TASK_TIMEOUT_SECONDS"`
}

type RouterConfig struct {
	// BaselineConfidence is assigned to always-on skills in every
	// routing decision, ahead of any utterance-matched skill.
	BaselineConfidence float64 `json:"baseline_confidence" env:"SKILLHOST_ROUTER_BASELINE_CONFIDENCE"`
	MaxMatches         int     `json:"max_matches" env:"SKILLHOST_ROUTER_MAX_MATCHES"`
}

type SupervisorConfig struct {
	MaxConcurrent int `json:"max_concurrent" env:"SKILLHOST_SUPERVISOR_MAX_CONCURRENT"`
	// GraceSeconds bounds how long cancelled subagents may take to
	// reach their terminal state before the supervisor gives up waiting.
	GraceSeconds int `json:"grace_seconds" env:"SKILLHOST_SUPERVISOR_GRACE_SECONDS"`
}

type HeartbeatConfig struct {
	Enabled  bool `json:"enabled" env:"SKILLHOST_HEARTBEAT_ENABLED"`
	Interval int  `json:"interval" env:"SKILLHOST_HEARTBEAT_INTERVAL"` // minutes
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"SKILLHOST_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"SKILLHOST_CHANNELS_DISCORD_ALLOW_FROM"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"SKILLHOST_GATEWAY_HOST"`
	Port int    `json:"port" env:"SKILLHOST_GATEWAY_PORT"`
}

type FetchToolConfig struct {
	MaxBytes       int `json:"max_bytes" env:"SKILLHOST_TOOLS_FETCH_MAX_BYTES"`
	TimeoutSeconds int `json:"timeout_seconds" env:"SKILLHOST_TOOLS_FETCH_TIMEOUT_SECONDS"`
}

type ExecToolConfig struct {
	TimeoutSeconds int `json:"timeout_seconds" env:"SKILLHOST_TOOLS_EXEC_TIMEOUT_SECONDS"`
}

type ToolsConfig struct {
	Fetch FetchToolConfig `json:"fetch"`
	Exec  ExecToolConfig  `json:"exec"`
}

func DefaultConfig() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Workspace:           "~/.skillhost/workspace",
			RestrictToWorkspace: true,
			TaskTimeoutSeconds:  120,
		},
		Router: RouterConfig{
			BaselineConfidence: 1.0,
			MaxMatches:         5,
		},
		Supervisor: SupervisorConfig{
			MaxConcurrent: 4,
			GraceSeconds:  10,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Interval: 30, // default 30 minutes
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18890,
		},
		Tools: ToolsConfig{
			Fetch: FetchToolConfig{
				MaxBytes:       50000,
				TimeoutSeconds: 30,
			},
			Exec: ExecToolConfig{
				TimeoutSeconds: 60,
			},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Runtime.Workspace)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
