package tools

// ToolResult is the outcome of a single tool invocation.
type ToolResult struct {
	// Output is what the caller (task executor, heartbeat handler)
	// consumes as the invocation's captured output.
	Output string
	// ForUser overrides Output when the result is shown to the user.
	ForUser string
	// Silent marks results the dispatcher should not forward to the
	// user (the tool already delivered its effect, e.g. message send).
	Silent bool
	// Async marks a result that only acknowledges a started background
	// operation; completion arrives via an AsyncCallback.
	Async   bool
	IsError bool
	Err     error
}

// UserText returns what the user should see for this result.
func (r *ToolResult) UserText() string {
	if r.ForUser != "" {
		return r.ForUser
	}
	return r.Output
}

func UserResult(text string) *ToolResult {
	return &ToolResult{Output: text, ForUser: text}
}

func SilentResult(text string) *ToolResult {
	return &ToolResult{Output: text, Silent: true}
}

func AsyncResult(text string) *ToolResult {
	return &ToolResult{Output: text, Async: true, Silent: true}
}

func ErrorResult(text string) *ToolResult {
	return &ToolResult{Output: text, IsError: true}
}

func (r *ToolResult) WithError(err error) *ToolResult {
	r.Err = err
	return r
}
