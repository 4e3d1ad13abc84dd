package skills

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_MissingEnvMarksUnavailable(t *testing.T) {
	info := &SkillInfo{
		Name:        "wallet",
		Description: "wallet lookups",
		RequiresEnv: []string{"API_KEY"},
	}
	snap := EnvSnapshot{Env: map[string]string{}, Bins: map[string]bool{}}

	avail := Check(info, snap)
	assert.False(t, avail.OK)
	assert.Equal(t, []string{"API_KEY"}, avail.MissingEnv)
	assert.Contains(t, avail.Reason(), "API_KEY")
}

func TestCheck_EmptyEnvValueCountsAsMissing(t *testing.T) {
	info := &SkillInfo{Name: "wallet", Description: "d", RequiresEnv: []string{"API_KEY"}}
	snap := EnvSnapshot{Env: map[string]string{"API_KEY": "   "}, Bins: map[string]bool{}}

	assert.False(t, Check(info, snap).OK)
}

func TestCheck_IdempotentForSameSnapshot(t *testing.T) {
	info := &SkillInfo{
		Name:         "tracer",
		Description:  "d",
		RequiresEnv:  []string{"TOKEN"},
		RequiresBins: []string{"jq", "curl"},
	}
	snap := EnvSnapshot{
		Env:  map[string]string{"TOKEN": "x"},
		Bins: map[string]bool{"jq": true, "curl": false},
	}

	first := Check(info, snap)
	second := Check(info, snap)
	assert.Equal(t, first.OK, second.OK)
	assert.Equal(t, first.MissingEnv, second.MissingEnv)
	assert.Equal(t, first.MissingBins, second.MissingBins)
	assert.Equal(t, []string{"curl"}, first.MissingBins)
}

func TestCheck_AlwaysOnGetsNoExemption(t *testing.T) {
	info := &SkillInfo{
		Name:        "core",
		Description: "core behaviors",
		AlwaysOn:    true,
		RequiresEnv: []string{"CORE_TOKEN"},
	}
	snap := EnvSnapshot{Env: map[string]string{}, Bins: map[string]bool{}}

	assert.False(t, Check(info, snap).OK)
}

func TestCheckAll_CoversEveryManifest(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "core", "---\nname: core\ndescription: core behaviors\n---\n")
	writeSkill(t, workspace, "wallet", `---
name: wallet
description: wallet lookups
metadata: {"skillhost": {"requires": {"env": ["API_KEY"]}}}
---
`)

	reg, err := LoadRegistry(NewSkillsLoader(workspace, "", ""))
	require.NoError(t, err)

	snap := EnvSnapshot{Env: map[string]string{}, Bins: map[string]bool{}}
	set := CheckAll(reg, snap)

	assert.True(t, set.Available("core"))
	assert.False(t, set.Available("wallet"))
	assert.False(t, set.Available("unknown"))
}
