package agent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skillhost/pkg/bus"
	"skillhost/pkg/config"
	"skillhost/pkg/memory"
	"skillhost/pkg/skills"
	"skillhost/pkg/task"
)

func writeSkill(t *testing.T, workspace, dir, content string) {
	t.Helper()
	skillDir := filepath.Join(workspace, "skills", dir)
	require.NoError(t, os.MkdirAll(skillDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0644))
}

func newTestLoop(t *testing.T, workspace string) (*AgentLoop, *bus.MessageBus, *memory.Store) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("sh-specific tests")
	}

	cfg := config.DefaultConfig()
	cfg.Runtime.Workspace = workspace
	cfg.Runtime.TaskTimeoutSeconds = 10

	loader := skills.NewSkillsLoader(workspace, "", "")
	store, err := skills.NewStore(loader)
	require.NoError(t, err)

	memStore, err := memory.NewStore(filepath.Join(workspace, "state", "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { memStore.Close() })

	msgBus := bus.NewMessageBus()
	t.Cleanup(msgBus.Close)

	loop := NewAgentLoop(cfg, msgBus, store, memStore)
	t.Cleanup(loop.Stop)
	return loop, msgBus, memStore
}

func TestProcessDirectExecutesRoutedSkill(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "echo-greeting", `---
name: echo-greeting
description: Echo a greeting back to the user
metadata: {'skillhost': {'command': 'echo routed'}}
---
Echo skill.
`)

	loop, _, memStore := newTestLoop(t, workspace)

	response, err := loop.ProcessDirect(context.Background(), "echo a greeting please", "cli", "direct")
	require.NoError(t, err)
	assert.Equal(t, "routed", response)

	notes, err := memStore.NotesForDate(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Content, "echo-greeting: routed")
}

func TestProcessDirectNoRoute(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "wallet", `---
name: wallet
description: Check wallet balances
metadata: {'skillhost': {'command': 'echo balance'}}
---
`)

	loop, _, _ := newTestLoop(t, workspace)

	_, err := loop.ProcessDirect(context.Background(), "zzzz qqqq", "cli", "direct")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no skill routes")
}

func TestProcessDirectSkipsUnavailableSkill(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "gated", `---
name: gated
description: Gated behavior behind a credential
metadata: {'skillhost': {'command': 'echo secret', 'requires': {'env': ['SKILLHOST_TEST_NO_SUCH_VAR']}}}
---
`)

	loop, _, _ := newTestLoop(t, workspace)

	_, err := loop.ProcessDirect(context.Background(), "run the gated behavior", "cli", "direct")
	require.Error(t, err, "unavailable skill must never execute")
}

func TestProcessDirectMultilineFansOut(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "alpha-step", `---
name: alpha-step
description: Run the alpha step
metadata: {'skillhost': {'command': 'echo alpha-done'}}
---
`)
	writeSkill(t, workspace, "beta-step", `---
name: beta-step
description: Run the beta step
metadata: {'skillhost': {'command': 'echo beta-done'}}
---
`)

	loop, _, _ := newTestLoop(t, workspace)

	response, err := loop.ProcessDirect(context.Background(),
		"- run the alpha step\n- run the beta step", "cli", "direct")
	require.NoError(t, err)

	alphaIdx := strings.Index(response, "alpha-done")
	betaIdx := strings.Index(response, "beta-done")
	require.GreaterOrEqual(t, alphaIdx, 0)
	require.GreaterOrEqual(t, betaIdx, 0)
	assert.Less(t, alphaIdx, betaIdx, "results keep request line order")
}

func TestProcessDirectMultilineIsolatesFailures(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "good-step", `---
name: good-step
description: Run the good step
metadata: {'skillhost': {'command': 'echo good'}}
---
`)
	writeSkill(t, workspace, "bad-step", `---
name: bad-step
description: Run the bad step
metadata: {'skillhost': {'command': 'exit 7'}}
---
`)

	loop, _, _ := newTestLoop(t, workspace)

	response, err := loop.ProcessDirect(context.Background(),
		"- run the good step\n- run the bad step", "cli", "direct")
	require.NoError(t, err)
	assert.Contains(t, response, "good")
	assert.Contains(t, response, "failed")
}

func TestProcessHeartbeatNothingActionable(t *testing.T) {
	workspace := t.TempDir()
	loop, _, _ := newTestLoop(t, workspace)

	response, err := loop.ProcessHeartbeat(context.Background(),
		"# Checklist\n- some unroutable chore", "cli", "direct")
	require.NoError(t, err)
	assert.Equal(t, HeartbeatOK, response)
}

func TestProcessHeartbeatRunsActionableItems(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "queue-check", `---
name: queue-check
description: Check the work queue depth
metadata: {'skillhost': {'command': 'echo queue-empty'}}
---
`)

	loop, _, _ := newTestLoop(t, workspace)

	response, err := loop.ProcessHeartbeat(context.Background(),
		"- check the work queue depth\n- some unroutable chore", "cli", "direct")
	require.NoError(t, err)
	assert.Contains(t, response, "queue-empty")
	assert.NotContains(t, response, "unroutable")
}

func TestRunHandlesInboundAndRepliesOutbound(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "echo-request", `---
name: echo-request
description: Echo the request text
metadata: {'skillhost': {'command': 'echo {{input}}'}}
---
`)

	loop, msgBus, _ := newTestLoop(t, workspace)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	msgBus.PublishInbound(bus.InboundMessage{
		Channel:  "discord",
		SenderID: "u1",
		ChatID:   "chat-1",
		Content:  "echo the request text",
	})

	outCtx, outCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer outCancel()
	msg, ok := msgBus.SubscribeOutbound(outCtx)
	require.True(t, ok)
	assert.Equal(t, "discord", msg.Channel)
	assert.Equal(t, "chat-1", msg.ChatID)
	assert.Contains(t, msg.Content, "echo the request text")
}

func TestTimeoutMarksTaskFailed(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "sleeper", `---
name: sleeper
description: Sleep for a long while
metadata: {'skillhost': {'command': 'sleep 30'}}
---
`)

	cfg := config.DefaultConfig()
	cfg.Runtime.Workspace = workspace
	cfg.Runtime.TaskTimeoutSeconds = 1

	loader := skills.NewSkillsLoader(workspace, "", "")
	store, err := skills.NewStore(loader)
	require.NoError(t, err)
	msgBus := bus.NewMessageBus()
	t.Cleanup(msgBus.Close)

	loop := NewAgentLoop(cfg, msgBus, store, nil)
	t.Cleanup(loop.Stop)

	start := time.Now()
	_, err = loop.ProcessDirect(context.Background(), "sleep for a long while", "cli", "direct")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDecompose(t *testing.T) {
	lines := decompose("# heading\n- first item\n\n* second item\nthird line\n")
	assert.Equal(t, []string{"first item", "second item", "third line"}, lines)
}

func TestMergeResultsReportsEveryState(t *testing.T) {
	results := []task.Result{
		{Status: task.StatusSucceeded, Output: "ok"},
		{Status: task.StatusFailed, Reason: task.ReasonTimeout},
		{Status: task.StatusCancelled},
	}
	merged := mergeResults([]string{"one", "two", "three"}, results)
	assert.Contains(t, merged, "ok")
	assert.Contains(t, merged, "timed out")
	assert.Contains(t, merged, "(cancelled)")
	for _, line := range []string{"one", "two", "three"} {
		assert.Contains(t, merged, line)
	}
}

func TestProcessHeartbeatEmptyChecklist(t *testing.T) {
	workspace := t.TempDir()
	loop, _, _ := newTestLoop(t, workspace)

	response, err := loop.ProcessHeartbeat(context.Background(), "", "", "")
	require.NoError(t, err)
	assert.Equal(t, HeartbeatOK, response)
}
