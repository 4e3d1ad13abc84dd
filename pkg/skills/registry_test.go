package skills

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistry_DeterministicOrder(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "zebra", "---\nname: zebra\ndescription: last by name\n---\n")
	writeSkill(t, workspace, "apple", "---\nname: apple\ndescription: first by name\n---\n")
	writeSkill(t, workspace, "mango", "---\nname: mango\ndescription: middle by name\n---\n")

	reg, err := LoadRegistry(NewSkillsLoader(workspace, "", ""))
	require.NoError(t, err)

	all := reg.ListAll()
	require.Len(t, all, 3)
	assert.Equal(t, "apple", all[0].Name)
	assert.Equal(t, "mango", all[1].Name)
	assert.Equal(t, "zebra", all[2].Name)
	assert.Equal(t, 0, all[0].LoadOrder())
	assert.Equal(t, 2, all[2].LoadOrder())
}

func TestLoadRegistry_DuplicateNameFails(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "alpha", "---\nname: shared\ndescription: one\n---\n")
	writeSkill(t, workspace, "beta", "---\nname: shared\ndescription: two\n---\n")

	_, err := LoadRegistry(NewSkillsLoader(workspace, "", ""))
	require.Error(t, err)

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "shared", loadErr.Name)
	assert.Contains(t, loadErr.Reason, "duplicate")
}

func TestLoadRegistry_ListAlwaysOn(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "core", `---
name: core
description: core behaviors
metadata: {"skillhost": {"always": true}}
---
`)
	writeSkill(t, workspace, "extra", "---\nname: extra\ndescription: optional helper\n---\n")

	reg, err := LoadRegistry(NewSkillsLoader(workspace, "", ""))
	require.NoError(t, err)

	always := reg.ListAlwaysOn()
	require.Len(t, always, 1)
	assert.Equal(t, "core", always[0].Name)
}

func TestStore_FailedReloadKeepsActiveRegistry(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "core", "---\nname: core\ndescription: core behaviors\n---\n")

	store, err := NewStore(NewSkillsLoader(workspace, "", ""))
	require.NoError(t, err)
	before := store.Current()
	require.Equal(t, 1, before.Len())

	// Introduce a duplicate, then reload: the reload must fail and the
	// registry observed by readers must be the previous snapshot.
	writeSkill(t, workspace, "core-copy", "---\nname: core\ndescription: duplicate of core\n---\n")

	err = store.Reload()
	require.Error(t, err)
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))

	after := store.Current()
	assert.Same(t, before, after)
	assert.Equal(t, 1, after.Len())
}

func TestStore_ReloadSwapsWholeRegistry(t *testing.T) {
	workspace := t.TempDir()
	writeSkill(t, workspace, "core", "---\nname: core\ndescription: core behaviors\n---\n")

	store, err := NewStore(NewSkillsLoader(workspace, "", ""))
	require.NoError(t, err)
	before := store.Current()

	writeSkill(t, workspace, "wallet", "---\nname: wallet\ndescription: wallet lookups\n---\n")
	require.NoError(t, store.Reload())

	after := store.Current()
	assert.NotSame(t, before, after)
	assert.Equal(t, 2, after.Len())

	// The old snapshot is immutable and still answers consistently.
	assert.Equal(t, 1, before.Len())
}
