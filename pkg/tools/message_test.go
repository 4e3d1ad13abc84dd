package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageToolSends(t *testing.T) {
	tool := NewMessageTool()
	var gotChannel, gotChatID, gotContent string
	tool.SetSendCallback(func(channel, chatID, content string) error {
		gotChannel, gotChatID, gotContent = channel, chatID, content
		return nil
	})
	tool.SetContext("discord", "chat-9")

	result := tool.Execute(context.Background(), map[string]interface{}{"content": "hello"})
	require.False(t, result.IsError, "output: %s", result.Output)
	assert.True(t, result.Silent)
	assert.Equal(t, "discord", gotChannel)
	assert.Equal(t, "chat-9", gotChatID)
	assert.Equal(t, "hello", gotContent)
}

func TestMessageToolContextValueOverridesDefault(t *testing.T) {
	tool := NewMessageTool()
	var gotChannel, gotChatID string
	tool.SetSendCallback(func(channel, chatID, content string) error {
		gotChannel, gotChatID = channel, chatID
		return nil
	})
	tool.SetContext("cli", "stale")

	ctx := withToolExecutionContext(context.Background(), "discord", "fresh", nil)
	result := tool.Execute(ctx, map[string]interface{}{"content": "hi"})
	require.False(t, result.IsError)
	assert.Equal(t, "discord", gotChannel)
	assert.Equal(t, "fresh", gotChatID)
}

func TestMessageToolNoTarget(t *testing.T) {
	tool := NewMessageTool()
	tool.SetSendCallback(func(channel, chatID, content string) error { return nil })
	result := tool.Execute(context.Background(), map[string]interface{}{"content": "hi"})
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "no target")
}

func TestMessageToolSendFailure(t *testing.T) {
	tool := NewMessageTool()
	tool.SetSendCallback(func(channel, chatID, content string) error {
		return errors.New("network down")
	})
	tool.SetContext("discord", "chat-1")
	result := tool.Execute(context.Background(), map[string]interface{}{"content": "hi"})
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "network down")
}

func TestMessageToolMissingContent(t *testing.T) {
	tool := NewMessageTool()
	result := tool.Execute(context.Background(), map[string]interface{}{})
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "content is required")
}
