package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const defaultExecTimeout = 60 * time.Second

// Commands that can wreck a workspace regardless of arguments.
var deniedCommandFragments = []string{
	"rm -rf /",
	"mkfs",
	":(){",
	"shutdown",
	"reboot",
}

// ExecTool runs one shell command to completion or failure. The
// invocation happens at most once; on timeout the underlying process
// group is killed, not abandoned.
type ExecTool struct {
	workspace string
	restrict  bool
	timeout   time.Duration
}

func NewExecTool(workspace string, restrict bool) *ExecTool {
	return &ExecTool{
		workspace: workspace,
		restrict:  restrict,
		timeout:   defaultExecTimeout,
	}
}

// SetTimeout overrides the default command timeout. Zero disables the
// tool-level deadline; the caller's ctx still applies.
func (t *ExecTool) SetTimeout(d time.Duration) {
	t.timeout = d
}

func (t *ExecTool) Name() string {
	return "exec"
}

func (t *ExecTool) Description() string {
	return "Execute a shell command and capture its output."
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	command, _ := args["command"].(string)
	command = strings.TrimSpace(command)
	if command == "" {
		return ErrorResult("command is required")
	}

	cwd := t.workspace
	if wd, ok := args["working_dir"].(string); ok && strings.TrimSpace(wd) != "" {
		resolved, err := validatePath(wd, t.workspace, t.restrict)
		if err != nil {
			return ErrorResult(err.Error())
		}
		cwd = resolved
	}
	if cwd == "" {
		cwd = "."
	}

	if guardErr := t.guardCommand(command, cwd); guardErr != "" {
		return ErrorResult(guardErr)
	}

	runCtx := ctx
	if runCtx == nil {
		runCtx = context.Background()
	}
	var cancel context.CancelFunc
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, t.timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(runCtx, "powershell", "-NoProfile", "-NonInteractive", "-Command", command)
	} else {
		cmd = exec.CommandContext(runCtx, "sh", "-c", command)
	}
	cmd.Dir = cwd

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := strings.TrimSpace(stdout.String())
	if errText := strings.TrimSpace(stderr.String()); errText != "" {
		if output != "" {
			output += "\n"
		}
		output += errText
	}

	if runCtx.Err() == context.DeadlineExceeded {
		return ErrorResult(fmt.Sprintf("command timed out after %s", t.timeout)).WithError(runCtx.Err())
	}
	if runCtx.Err() == context.Canceled {
		return ErrorResult("command cancelled").WithError(runCtx.Err())
	}
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		msg := fmt.Sprintf("command failed (exit %d)", exitCode)
		if output != "" {
			msg += ":\n" + output
		}
		return ErrorResult(msg).WithError(err)
	}

	if output == "" {
		output = "(no output)"
	}
	return UserResult(output)
}

// guardCommand returns a non-empty refusal message when the command is
// denied by policy. The workspace restriction is advisory: it blocks
// obviously destructive commands and out-of-tree working directories,
// not a sandbox.
func (t *ExecTool) guardCommand(command, cwd string) string {
	lowered := strings.ToLower(command)
	for _, fragment := range deniedCommandFragments {
		if strings.Contains(lowered, fragment) {
			return fmt.Sprintf("command rejected: contains denied fragment %q", fragment)
		}
	}
	if t.restrict && t.workspace != "" {
		if _, err := validatePath(cwd, t.workspace, true); err != nil {
			return err.Error()
		}
	}
	return ""
}

// validatePath resolves path and, when restrict is set, requires it to
// stay inside workspace.
func validatePath(path, workspace string, restrict bool) (string, error) {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(workspace, resolved)
	}
	resolved = filepath.Clean(resolved)

	if restrict && workspace != "" {
		wsAbs, err := filepath.Abs(workspace)
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		pathAbs, err := filepath.Abs(resolved)
		if err != nil {
			return "", fmt.Errorf("resolve path: %w", err)
		}
		rel, err := filepath.Rel(wsAbs, pathAbs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("path %q escapes the workspace", path)
		}
		return pathAbs, nil
	}
	return resolved, nil
}
