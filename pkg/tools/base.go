package tools

import "context"

// Tool is the interface that all tools must implement.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// ContextualTool is an optional interface for tools that need the
// current message context (channel, chatID).
type ContextualTool interface {
	Tool
	SetContext(channel, chatID string)
}

// AsyncCallback is invoked by async tools when their background work
// reaches a terminal state.
type AsyncCallback func(ctx context.Context, result *ToolResult)

// AsyncTool is an optional interface for tools that acknowledge
// immediately and report completion through a callback.
type AsyncTool interface {
	Tool
	SetCallback(cb AsyncCallback)
}

// ClosableTool is an optional interface for tools that hold runtime
// resources and require explicit teardown when the runtime stops.
type ClosableTool interface {
	Tool
	Close() error
}

type toolExecutionContext struct {
	channel       string
	chatID        string
	asyncCallback AsyncCallback
}

type toolExecutionContextKey struct{}

// withToolExecutionContext annotates a call context with per-execution metadata.
func withToolExecutionContext(ctx context.Context, channel, chatID string, asyncCallback AsyncCallback) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := toolExecutionContextFromContext(ctx); ok {
		if channel == "" {
			channel = existing.channel
		}
		if chatID == "" {
			chatID = existing.chatID
		}
		if asyncCallback == nil {
			asyncCallback = existing.asyncCallback
		}
	}
	return context.WithValue(ctx, toolExecutionContextKey{}, toolExecutionContext{
		channel:       channel,
		chatID:        chatID,
		asyncCallback: asyncCallback,
	})
}

func toolExecutionContextFromContext(ctx context.Context) (toolExecutionContext, bool) {
	if ctx == nil {
		return toolExecutionContext{}, false
	}
	execCtx, ok := ctx.Value(toolExecutionContextKey{}).(toolExecutionContext)
	return execCtx, ok
}

func channelChatFromContext(ctx context.Context) (string, string) {
	execCtx, ok := toolExecutionContextFromContext(ctx)
	if !ok {
		return "", ""
	}
	return execCtx.channel, execCtx.chatID
}

func asyncCallbackFromContext(ctx context.Context) AsyncCallback {
	execCtx, ok := toolExecutionContextFromContext(ctx)
	if !ok {
		return nil
	}
	return execCtx.asyncCallback
}
