package tools

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecToolRunsCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh-specific test")
	}
	tool := NewExecTool(t.TempDir(), true)
	result := tool.Execute(context.Background(), map[string]interface{}{
		"command": "echo hello",
	})
	require.False(t, result.IsError, "output: %s", result.Output)
	assert.Equal(t, "hello", result.Output)
}

func TestExecToolMissingCommand(t *testing.T) {
	tool := NewExecTool(t.TempDir(), true)
	result := tool.Execute(context.Background(), map[string]interface{}{})
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "command is required")
}

func TestExecToolDeniedFragment(t *testing.T) {
	tool := NewExecTool(t.TempDir(), true)
	result := tool.Execute(context.Background(), map[string]interface{}{
		"command": "rm -rf / --no-preserve-root",
	})
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "denied fragment")
}

func TestExecToolTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh-specific test")
	}
	tool := NewExecTool(t.TempDir(), true)
	tool.SetTimeout(100 * time.Millisecond)
	result := tool.Execute(context.Background(), map[string]interface{}{
		"command": "sleep 5",
	})
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "timed out")
}

func TestExecToolExitCode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh-specific test")
	}
	tool := NewExecTool(t.TempDir(), true)
	result := tool.Execute(context.Background(), map[string]interface{}{
		"command": "echo boom >&2; exit 3",
	})
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "exit 3")
	assert.Contains(t, result.Output, "boom")
}

func TestExecToolWorkingDirEscape(t *testing.T) {
	tool := NewExecTool(t.TempDir(), true)
	result := tool.Execute(context.Background(), map[string]interface{}{
		"command":     "pwd",
		"working_dir": "../../outside",
	})
	require.True(t, result.IsError)
	assert.Contains(t, result.Output, "escapes the workspace")
}

func TestValidatePathUnrestricted(t *testing.T) {
	resolved, err := validatePath("/tmp/anywhere", t.TempDir(), false)
	require.NoError(t, err)
	if !strings.HasPrefix(resolved, "/tmp") && runtime.GOOS != "windows" {
		t.Fatalf("unexpected resolution: %s", resolved)
	}
}
