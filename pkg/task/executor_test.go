package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillhost/pkg/tools"
)

type fakeTool struct {
	name  string
	calls atomic.Int32
	run   func(ctx context.Context, args map[string]interface{}) *tools.ToolResult
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake" }

func (f *fakeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	f.calls.Add(1)
	return f.run(ctx, args)
}

func newExecutorWith(t *testing.T, tool *fakeTool, timeout time.Duration) *Executor {
	t.Helper()
	reg := tools.NewToolRegistry()
	reg.Register(tool)
	return NewExecutor(reg, timeout)
}

func TestExecuteSucceeds(t *testing.T) {
	tool := &fakeTool{name: "echo", run: func(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
		return tools.UserResult("done")
	}}
	exec := newExecutorWith(t, tool, time.Second)

	tk := New("", "say hi", "greeter")
	result, err := exec.Execute(context.Background(), tk, Invocation{Tool: "echo"})
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, "done", result.Output)
	assert.True(t, result.Terminal())
	assert.False(t, result.FinishedAt.Before(result.StartedAt))
}

func TestExecuteToolErrorFailsTask(t *testing.T) {
	tool := &fakeTool{name: "broken", run: func(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
		return tools.ErrorResult("exit 1")
	}}
	exec := newExecutorWith(t, tool, time.Second)

	tk := New("", "do a thing", "broken-skill")
	result, err := exec.Execute(context.Background(), tk, Invocation{Tool: "broken"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, ReasonToolError, result.Reason)
	assert.Equal(t, "exit 1", result.Output)
}

func TestExecuteAtMostOnce(t *testing.T) {
	tool := &fakeTool{name: "echo", run: func(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
		return tools.UserResult("ok")
	}}
	exec := newExecutorWith(t, tool, time.Second)

	tk := New("", "once", "echo")
	_, err := exec.Execute(context.Background(), tk, Invocation{Tool: "echo"})
	require.NoError(t, err)

	_, err = exec.Execute(context.Background(), tk, Invocation{Tool: "echo"})
	require.Error(t, err)
	assert.Equal(t, int32(1), tool.calls.Load(), "tool must run at most once per task")
	assert.Equal(t, StatusSucceeded, tk.Status())
}

func TestExecuteTimeout(t *testing.T) {
	tool := &fakeTool{name: "slow", run: func(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
		select {
		case <-ctx.Done():
			return tools.ErrorResult("interrupted")
		case <-time.After(2 * time.Second):
			return tools.UserResult("too late")
		}
	}}
	exec := newExecutorWith(t, tool, 50*time.Millisecond)

	tk := New("", "slow work", "slow-skill")
	result, err := exec.Execute(context.Background(), tk, Invocation{Tool: "slow"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, ReasonTimeout, result.Reason)
	assert.Empty(t, result.Output)
}

func TestExecuteCancellationDiscardsOutput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tool := &fakeTool{name: "slow", run: func(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
		<-ctx.Done()
		return tools.UserResult("partial output")
	}}
	exec := newExecutorWith(t, tool, time.Second)

	tk := New("parent-1", "cancel me", "slow-skill")
	done := make(chan Result, 1)
	go func() {
		result, _ := exec.Execute(ctx, tk, Invocation{Tool: "slow"})
		done <- result
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		assert.Equal(t, StatusCancelled, result.Status)
		assert.Equal(t, ReasonCancelled, result.Reason)
		assert.Empty(t, result.Output, "cancelled partial output must be discarded")
	case <-time.After(2 * time.Second):
		t.Fatal("execution did not finish after cancel")
	}
}

func TestCancelPendingTask(t *testing.T) {
	tk := New("", "never ran", "idle")
	require.NoError(t, tk.Cancel(""))
	assert.Equal(t, StatusCancelled, tk.Status())

	tool := &fakeTool{name: "echo", run: func(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
		return tools.UserResult("ok")
	}}
	exec := newExecutorWith(t, tool, time.Second)
	_, err := exec.Execute(context.Background(), tk, Invocation{Tool: "echo"})
	require.Error(t, err, "cancelled task must not start")
	assert.Equal(t, int32(0), tool.calls.Load())
}

func TestCancelTerminalTaskRejected(t *testing.T) {
	tk := New("", "done already", "echo")
	require.NoError(t, tk.start())
	require.NoError(t, tk.succeed("ok"))
	if err := tk.Cancel(""); err == nil {
		t.Fatal("expected error cancelling a terminal task")
	}
	assert.Equal(t, StatusSucceeded, tk.Status())
	assert.Equal(t, "ok", tk.Result().Output)
}
