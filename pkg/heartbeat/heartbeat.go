package heartbeat

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"skillhost/pkg/bus"
	"skillhost/pkg/logger"
	"skillhost/pkg/tools"
)

const heartbeatFile = "HEARTBEAT.md"

// Handler runs one heartbeat: the checklist content is the utterance
// fed through the same routing/execution pipeline as live input.
type Handler func(prompt, channel, chatID string) *tools.ToolResult

// HeartbeatService fires the standing checklist on a fixed interval.
// It is a two-state machine: active (recurring fires) or paused (none).
// Transitions happen only through Enable/Disable; there is no terminal
// state while the process runs.
type HeartbeatService struct {
	workspace string
	interval  time.Duration

	mu      sync.Mutex
	enabled bool
	handler Handler
	msgBus  *bus.MessageBus
	channel string
	chatID  string
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewHeartbeatService(workspace string, intervalMinutes int, enabled bool) *HeartbeatService {
	if intervalMinutes <= 0 {
		intervalMinutes = 30
	}
	return &HeartbeatService{
		workspace: workspace,
		interval:  time.Duration(intervalMinutes) * time.Minute,
		enabled:   enabled,
	}
}

func (s *HeartbeatService) SetBus(msgBus *bus.MessageBus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgBus = msgBus
}

func (s *HeartbeatService) SetHandler(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// SetTarget sets the channel/chat a heartbeat's visible output goes to.
func (s *HeartbeatService) SetTarget(channel, chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = channel
	s.chatID = chatID
}

func (s *HeartbeatService) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		s.enabled = true
		logger.InfoC("heartbeat", "Heartbeat enabled")
	}
}

func (s *HeartbeatService) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		s.enabled = false
		logger.InfoC("heartbeat", "Heartbeat paused")
	}
}

func (s *HeartbeatService) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *HeartbeatService) Start() {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	interval := s.interval
	s.mu.Unlock()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				s.Beat()
			}
		}
	}()
	logger.InfoCF("heartbeat", "Heartbeat service started", map[string]interface{}{
		"interval": interval.String(),
	})
}

func (s *HeartbeatService) Stop() {
	s.mu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

// Beat runs a single heartbeat immediately. Paused services and empty
// checklists both skip silently.
func (s *HeartbeatService) Beat() {
	s.mu.Lock()
	enabled := s.enabled
	handler := s.handler
	msgBus := s.msgBus
	channel, chatID := s.channel, s.chatID
	s.mu.Unlock()

	if !enabled || handler == nil {
		return
	}

	prompt := s.readChecklist()
	if prompt == "" {
		logger.DebugC("heartbeat", "No heartbeat checklist, skipping")
		return
	}

	result := handler(prompt, channel, chatID)
	if result == nil {
		return
	}
	if result.IsError {
		logger.WarnCF("heartbeat", "Heartbeat run failed", map[string]interface{}{
			"error": result.Output,
		})
		return
	}
	if result.Silent {
		return
	}
	if msgBus != nil && channel != "" && chatID != "" {
		msgBus.PublishOutbound(bus.OutboundMessage{
			Channel: channel,
			ChatID:  chatID,
			Content: result.UserText(),
		})
	}
}

func (s *HeartbeatService) readChecklist() string {
	data, err := os.ReadFile(filepath.Join(s.workspace, heartbeatFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
