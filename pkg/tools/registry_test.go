package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name    string
	result  *ToolResult
	gotArgs map[string]interface{}
	gotCtx  context.Context
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }

func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	s.gotArgs = args
	s.gotCtx = ctx
	return s.result
}

type closableStub struct {
	stubTool
	closeErr error
	closed   bool
}

func (s *closableStub) Close() error {
	s.closed = true
	return s.closeErr
}

func TestRegistryExecute(t *testing.T) {
	reg := NewToolRegistry()
	tool := &stubTool{name: "greet", result: UserResult("hi")}
	reg.Register(tool)

	result := reg.Execute(context.Background(), "greet", map[string]interface{}{"who": "world"})
	require.False(t, result.IsError)
	assert.Equal(t, "hi", result.Output)
	assert.Equal(t, "world", tool.gotArgs["who"])
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	reg := NewToolRegistry()
	result := reg.Execute(context.Background(), "nope", nil)
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "not found")
}

func TestRegistryExecuteNilResult(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(&stubTool{name: "broken", result: nil})
	result := reg.Execute(context.Background(), "broken", nil)
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "nil result")
}

func TestRegistryExecuteWithContextPlumbsChannel(t *testing.T) {
	reg := NewToolRegistry()
	tool := &stubTool{name: "probe", result: SilentResult("ok")}
	reg.Register(tool)

	reg.ExecuteWithContext(context.Background(), "probe", nil, "discord", "chat-1", nil)
	channel, chatID := channelChatFromContext(tool.gotCtx)
	assert.Equal(t, "discord", channel)
	assert.Equal(t, "chat-1", chatID)
}

func TestRegistryCloseAggregatesErrors(t *testing.T) {
	reg := NewToolRegistry()
	ok := &closableStub{stubTool: stubTool{name: "ok"}}
	bad := &closableStub{stubTool: stubTool{name: "bad"}, closeErr: errors.New("boom")}
	reg.Register(ok)
	reg.Register(bad)

	err := reg.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
}

func TestSanitizeToolArgs(t *testing.T) {
	args := map[string]interface{}{
		"api_key":    "sk-abc",
		"Auth-Token": "xyz",
		"command":    "echo hi",
		"count":      3,
	}
	sanitized := sanitizeToolArgs(args)
	assert.Equal(t, "<redacted>", sanitized["api_key"])
	assert.Equal(t, "<redacted>", sanitized["Auth-Token"])
	assert.Equal(t, "echo hi", sanitized["command"])
	assert.Equal(t, 3, sanitized["count"])
}
