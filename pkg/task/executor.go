package task

import (
	"context"
	"errors"
	"time"

	"skillhost/pkg/logger"
	"skillhost/pkg/tools"
	"skillhost/pkg/utils"
)

// Invocation describes what a task actually does: one tool call.
// Shell execution, network fetch and message delivery all go through
// the same boundary: a fallible, timeout-bounded tool invocation.
type Invocation struct {
	Tool    string
	Args    map[string]interface{}
	Channel string
	ChatID  string
}

// Executor runs tasks to a terminal state. It never retries on its own;
// retry policy belongs to callers.
type Executor struct {
	tools   *tools.ToolRegistry
	timeout time.Duration
}

func NewExecutor(registry *tools.ToolRegistry, timeout time.Duration) *Executor {
	return &Executor{
		tools:   registry,
		timeout: timeout,
	}
}

// Execute drives a task pending->running->terminal. The underlying tool
// invocation happens at most once: a second Execute on the same task
// returns an error without side effects. On timeout the tool's process
// or request is terminated via context and the task fails with a
// timeout reason. If ctx is cancelled before completion the task is
// cancelled and any partial output is discarded.
func (e *Executor) Execute(ctx context.Context, t *Task, inv Invocation) (Result, error) {
	if err := t.start(); err != nil {
		return t.Result(), err
	}

	logger.InfoCF("executor", "Task started", map[string]interface{}{
		"task_id": t.ID,
		"skill":   t.SkillName,
		"tool":    inv.Tool,
		"intent":  utils.Truncate(t.Intent, 120),
	})

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result := e.tools.ExecuteWithContext(runCtx, inv.Tool, inv.Args, inv.Channel, inv.ChatID, nil)

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		t.Cancel(ReasonCancelled)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		t.fail("", ReasonTimeout)
	case result.IsError:
		t.fail(result.Output, ReasonToolError)
	default:
		t.succeed(result.Output)
	}

	final := t.Result()
	logger.InfoCF("executor", "Task finished", map[string]interface{}{
		"task_id":     t.ID,
		"status":      string(final.Status),
		"reason":      final.Reason,
		"duration_ms": final.FinishedAt.Sub(final.StartedAt).Milliseconds(),
	})
	return final, nil
}
