package tools

import (
	"context"
	"fmt"
	"sync"
)

type SendCallback func(channel, chatID, content string) error

// MessageTool delivers a message to a user on a chat channel. The send
// happens at most once per invocation; delivery failures surface as
// errors to the caller, never retried here.
type MessageTool struct {
	sendCallback   SendCallback
	defaultChannel string
	defaultChatID  string
	mu             sync.RWMutex
}

func NewMessageTool() *MessageTool {
	return &MessageTool{}
}

func (t *MessageTool) Name() string {
	return "message"
}

func (t *MessageTool) Description() string {
	return "Send a message to the user on a chat channel."
}

func (t *MessageTool) SetContext(channel, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.defaultChannel = channel
	t.defaultChatID = chatID
}

func (t *MessageTool) SetSendCallback(callback SendCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendCallback = callback
}

func (t *MessageTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return ErrorResult("content is required")
	}

	channel, _ := args["channel"].(string)
	chatID, _ := args["chat_id"].(string)
	ctxChannel, ctxChatID := channelChatFromContext(ctx)

	if channel == "" {
		channel = ctxChannel
	}
	if chatID == "" {
		chatID = ctxChatID
	}
	t.mu.RLock()
	if channel == "" {
		channel = t.defaultChannel
	}
	if chatID == "" {
		chatID = t.defaultChatID
	}
	sendCallback := t.sendCallback
	t.mu.RUnlock()

	if channel == "" || chatID == "" {
		return ErrorResult("no target channel/chat specified")
	}
	if sendCallback == nil {
		return ErrorResult("message sending not configured")
	}

	if err := sendCallback(channel, chatID, content); err != nil {
		return ErrorResult(fmt.Sprintf("sending message: %v", err)).WithError(err)
	}

	// Silent: the user already received the message directly.
	return SilentResult(fmt.Sprintf("Message sent to %s:%s", channel, chatID))
}
