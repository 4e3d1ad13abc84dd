package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"skillhost/pkg/bus"
	"skillhost/pkg/config"
	"skillhost/pkg/logger"
	"skillhost/pkg/memory"
	"skillhost/pkg/router"
	"skillhost/pkg/skills"
	"skillhost/pkg/subagent"
	"skillhost/pkg/task"
	"skillhost/pkg/tools"
	"skillhost/pkg/utils"
)

// HeartbeatOK is returned when a heartbeat run found nothing to do.
const HeartbeatOK = "HEARTBEAT_OK"

// Pipeline-level failure reasons, raised before a tool invocation is
// ever built.
const (
	reasonNoRoute  = "no_route"
	reasonNoAction = "no_action"
)

// AgentLoop drives the routing+execution pipeline: inbound utterance ->
// route against the skill registry -> execute the routed skill's
// invocation -> record a memory note -> outbound response. Multi-line
// requests fan out through the subagent supervisor, one line each.
type AgentLoop struct {
	config     *config.Config
	bus        *bus.MessageBus
	skillStore *skills.Store
	router     *router.Router
	tools      *tools.ToolRegistry
	executor   *task.Executor
	supervisor *subagent.Supervisor
	memory     *memory.Store
	running    atomic.Bool
	cancel     context.CancelFunc
}

// createToolRegistry wires the three invocation categories every skill
// command can reach: shell execution, network fetch, message delivery.
func createToolRegistry(cfg *config.Config, msgBus *bus.MessageBus) *tools.ToolRegistry {
	registry := tools.NewToolRegistry()

	execTool := tools.NewExecTool(cfg.WorkspacePath(), cfg.Runtime.RestrictToWorkspace)
	if cfg.Tools.Exec.TimeoutSeconds > 0 {
		execTool.SetTimeout(time.Duration(cfg.Tools.Exec.TimeoutSeconds) * time.Second)
	}
	registry.Register(execTool)

	registry.Register(tools.NewFetchTool(cfg.Tools.Fetch.MaxBytes,
		time.Duration(cfg.Tools.Fetch.TimeoutSeconds)*time.Second))

	messageTool := tools.NewMessageTool()
	messageTool.SetSendCallback(func(channel, chatID, content string) error {
		msgBus.PublishOutbound(bus.OutboundMessage{
			Channel: channel,
			ChatID:  chatID,
			Content: content,
		})
		return nil
	})
	registry.Register(messageTool)

	return registry
}

func NewAgentLoop(cfg *config.Config, msgBus *bus.MessageBus, skillStore *skills.Store, memoryStore *memory.Store) *AgentLoop {
	registry := createToolRegistry(cfg, msgBus)

	taskTimeout := time.Duration(cfg.Runtime.TaskTimeoutSeconds) * time.Second

	a := &AgentLoop{
		config:     cfg,
		bus:        msgBus,
		skillStore: skillStore,
		router: router.New(
			router.WithBaselineConfidence(cfg.Router.BaselineConfidence),
			router.WithMaxMatches(cfg.Router.MaxMatches),
		),
		tools:    registry,
		executor: task.NewExecutor(registry, taskTimeout),
		memory:   memoryStore,
	}

	a.supervisor = subagent.NewSupervisor(
		func(ctx context.Context, tk *task.Task) task.Result {
			// Subagents run the same pipeline in isolation: no chat
			// target, results flow back only through the handle.
			return a.runSingle(ctx, tk, "", "")
		},
		int64(cfg.Supervisor.MaxConcurrent),
		time.Duration(cfg.Supervisor.GraceSeconds)*time.Second,
	)

	return a
}

func (a *AgentLoop) RegisterTool(tool tools.Tool) {
	a.tools.Register(tool)
}

func (a *AgentLoop) Supervisor() *subagent.Supervisor {
	return a.supervisor
}

// Run consumes inbound messages until ctx is done.
func (a *AgentLoop) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running.Store(true)
	logger.InfoC("agent", "Agent loop started")

	for {
		msg, ok := a.bus.ConsumeInbound(runCtx)
		if !ok {
			if runCtx.Err() != nil {
				a.running.Store(false)
				logger.InfoC("agent", "Agent loop stopped")
				return
			}
			continue
		}
		go a.handleInbound(runCtx, msg)
	}
}

func (a *AgentLoop) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.supervisor.Shutdown()
	if err := a.tools.Close(); err != nil {
		logger.WarnCF("agent", "Tool close failures", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (a *AgentLoop) IsRunning() bool {
	return a.running.Load()
}

func (a *AgentLoop) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	logger.InfoCF("agent", "Processing message", map[string]interface{}{
		"channel": msg.Channel,
		"sender":  msg.SenderID,
		"preview": utils.Truncate(msg.Content, 80),
	})

	response, err := a.ProcessDirect(ctx, msg.Content, msg.Channel, msg.ChatID)
	if err != nil {
		response = fmt.Sprintf("Sorry, I can't handle that: %v", err)
	}
	if response == "" {
		return
	}

	a.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: response,
	})
}

// ProcessDirect runs one request through routing and execution and
// returns the user-facing response. A request with several non-empty
// lines is decomposed: each line becomes a subagent, results merge in
// line order.
func (a *AgentLoop) ProcessDirect(ctx context.Context, content, channel, chatID string) (string, error) {
	lines := decompose(content)
	if len(lines) == 0 {
		return "", errors.New("empty request")
	}

	results, err := a.processLines(ctx, lines, channel, chatID)
	if err != nil {
		return "", err
	}
	if len(results) == 1 {
		return renderResult(results[0])
	}
	return mergeResults(lines, results), nil
}

// processLines executes each line to a terminal result. A single line
// runs inline; several fan out through the supervisor.
func (a *AgentLoop) processLines(ctx context.Context, lines []string, channel, chatID string) ([]task.Result, error) {
	if len(lines) == 1 {
		tk := task.New("", lines[0], "")
		return []task.Result{a.runSingle(ctx, tk, channel, chatID)}, nil
	}

	parent := task.New("", strings.Join(lines, "\n"), "")
	handles := make([]*subagent.Handle, 0, len(lines))
	for _, line := range lines {
		handles = append(handles, a.supervisor.Spawn(ctx, parent.ID, line))
	}

	results, err := a.supervisor.AwaitAll(ctx, handles)
	if err != nil {
		a.supervisor.CancelParent(parent.ID)
		return nil, err
	}
	return results, nil
}

// ProcessHeartbeat runs the standing checklist through the same
// pipeline. Heartbeats carry no session history; checklist items that
// route nowhere are fine, and a run where nothing was actionable
// reports HeartbeatOK.
func (a *AgentLoop) ProcessHeartbeat(ctx context.Context, prompt, channel, chatID string) (string, error) {
	lines := decompose(prompt)
	if len(lines) == 0 {
		return HeartbeatOK, nil
	}

	results, err := a.processLines(ctx, lines, channel, chatID)
	if err != nil {
		return "", err
	}

	var actionableLines []string
	var actionable []task.Result
	for i, result := range results {
		if result.Status == task.StatusFailed &&
			(result.Reason == reasonNoRoute || result.Reason == reasonNoAction) {
			continue
		}
		actionableLines = append(actionableLines, lines[i])
		actionable = append(actionable, result)
	}
	if len(actionable) == 0 {
		return HeartbeatOK, nil
	}
	return mergeResults(actionableLines, actionable), nil
}

type pipelineError struct {
	reason string
	detail string
}

func (e *pipelineError) Error() string {
	if e.detail != "" {
		return e.detail
	}
	return e.reason
}

// runSingle is the routing+execution pipeline for one utterance. It
// always leaves the task in a terminal state.
func (a *AgentLoop) runSingle(ctx context.Context, tk *task.Task, channel, chatID string) task.Result {
	reg := a.skillStore.Current()
	avail := skills.CheckAll(reg, skills.CaptureEnv(reg))

	matches, err := a.router.Route(tk.Intent, reg, avail)
	if err != nil {
		tk.Fail("", reasonNoRoute)
		return tk.Result()
	}

	inv, skill, ok := a.buildInvocation(ctx, matches, tk.Intent, channel, chatID)
	if !ok {
		tk.Fail(describeMatches(matches), reasonNoAction)
		return tk.Result()
	}
	tk.SkillName = skill.Name

	result, err := a.executor.Execute(ctx, tk, inv)
	if err != nil {
		return tk.Result()
	}

	if result.Status == task.StatusSucceeded && a.memory != nil && result.Output != "" {
		note := fmt.Sprintf("%s: %s", skill.Name, utils.Truncate(utils.FirstLine(result.Output), 200))
		if _, nerr := a.memory.AppendNote(ctx, time.Now(), note, "executor"); nerr != nil {
			logger.WarnCF("agent", "Failed to record memory note", map[string]interface{}{
				"error": nerr.Error(),
			})
		}
	}
	return result
}

// buildInvocation turns the first match carrying a command or fetch
// template into a tool invocation. Skills that are instructions only
// (no template) are skipped.
func (a *AgentLoop) buildInvocation(ctx context.Context, matches []router.SkillMatch, utterance, channel, chatID string) (task.Invocation, *skills.SkillInfo, bool) {
	args := map[string]interface{}{
		"input":   utterance,
		"channel": channel,
		"chat_id": chatID,
	}
	if a.memory != nil {
		if snapshot, err := a.memory.ContextSnapshot(ctx, 3); err == nil {
			args["memory"] = snapshot
		}
	}

	for _, match := range matches {
		skill := match.Skill
		switch {
		case skill.Command != "":
			command, err := tools.RenderCommandTemplate(skill.Command, args)
			if err != nil {
				logger.WarnCF("agent", "Skill command template rejected", map[string]interface{}{
					"skill": skill.Name,
					"error": err.Error(),
				})
				continue
			}
			return task.Invocation{
				Tool:    "exec",
				Args:    map[string]interface{}{"command": command},
				Channel: channel,
				ChatID:  chatID,
			}, skill, true
		case skill.FetchURL != "":
			url, err := tools.RenderURLTemplate(skill.FetchURL, args)
			if err != nil {
				logger.WarnCF("agent", "Skill fetch template rejected", map[string]interface{}{
					"skill": skill.Name,
					"error": err.Error(),
				})
				continue
			}
			return task.Invocation{
				Tool:    "fetch",
				Args:    map[string]interface{}{"url": url},
				Channel: channel,
				ChatID:  chatID,
			}, skill, true
		}
	}
	return task.Invocation{}, nil, false
}

// decompose splits a request into independent sub-requests, one per
// non-empty line. Checklist bullets lose their leading markers.
func decompose(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func renderResult(result task.Result) (string, error) {
	switch result.Status {
	case task.StatusSucceeded:
		return result.Output, nil
	case task.StatusCancelled:
		return "", &pipelineError{reason: task.ReasonCancelled, detail: "request cancelled"}
	default:
		return "", &pipelineError{
			reason: result.Reason,
			detail: failureDetail(result),
		}
	}
}

func failureDetail(result task.Result) string {
	switch result.Reason {
	case reasonNoRoute:
		return "no skill routes this request"
	case reasonNoAction:
		if result.Output != "" {
			return fmt.Sprintf("matched skills define no executable action (%s)", result.Output)
		}
		return "matched skills define no executable action"
	case task.ReasonTimeout:
		return "execution timed out"
	default:
		if result.Output != "" {
			return fmt.Sprintf("execution failed: %s", utils.FirstLine(result.Output))
		}
		return fmt.Sprintf("execution failed (%s)", result.Reason)
	}
}

// mergeResults reports every sub-request's terminal state in input
// order. Failures appear alongside successes, never silently dropped.
func mergeResults(lines []string, results []task.Result) string {
	var b strings.Builder
	for i, result := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		switch result.Status {
		case task.StatusSucceeded:
			fmt.Fprintf(&b, "%s\n%s", lines[i], result.Output)
		case task.StatusCancelled:
			fmt.Fprintf(&b, "%s\n(cancelled)", lines[i])
		default:
			fmt.Fprintf(&b, "%s\n(failed: %s)", lines[i], failureDetail(result))
		}
	}
	return b.String()
}

func describeMatches(matches []router.SkillMatch) string {
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, match.Skill.Name)
	}
	return strings.Join(names, ", ")
}
