package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentCreateBootstrapsWorkspace(t *testing.T) {
	base := t.TempDir()
	reg, err := NewAgentRegistry(filepath.Join(base, "state", "agents.json"), filepath.Join(base, "agents"), testLogger())
	require.NoError(t, err)

	agent, err := reg.Create("agent_eth_5m", "ETH scalper", "# SOUL", "# MANUAL")
	require.NoError(t, err)
	assert.Equal(t, "ready", agent.Status)

	for _, dir := range []string{
		"hooks",
		"strategies",
		"journal/daily",
		"journal/trade_logs",
		"memory/notes",
		"artifacts/backtests",
		"artifacts/reports",
		"state",
	} {
		info, err := os.Stat(filepath.Join(agent.WorkspacePath, dir))
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}

	soul, err := os.ReadFile(filepath.Join(agent.WorkspacePath, "SOUL.md"))
	require.NoError(t, err)
	assert.Equal(t, "# SOUL\n", string(soul))

	memory, err := os.ReadFile(filepath.Join(agent.WorkspacePath, "memory", "MEMORY.md"))
	require.NoError(t, err)
	assert.Equal(t, "# MEMORY\n", string(memory))

	state, err := os.ReadFile(filepath.Join(agent.WorkspacePath, "state", "agent_state.json"))
	require.NoError(t, err)
	assert.Contains(t, string(state), `"agentId": "agent_eth_5m"`)
	assert.Contains(t, string(state), `"status": "idle"`)
}

func TestAgentCreateNeverOverwritesExistingFiles(t *testing.T) {
	base := t.TempDir()
	reg, err := NewAgentRegistry(filepath.Join(base, "agents.json"), filepath.Join(base, "agents"), testLogger())
	require.NoError(t, err)

	agent, err := reg.Create("agent_eth_5m", "first", "# SOUL v1", "# MANUAL")
	require.NoError(t, err)

	soulPath := filepath.Join(agent.WorkspacePath, "SOUL.md")
	require.NoError(t, os.WriteFile(soulPath, []byte("operator edited\n"), 0o644))

	_, err = reg.Create("agent_eth_5m", "second", "# SOUL v2", "# MANUAL")
	require.NoError(t, err)

	soul, err := os.ReadFile(soulPath)
	require.NoError(t, err)
	assert.Equal(t, "operator edited\n", string(soul))
}

func TestAgentCreateUpsertPreservesCreatedAt(t *testing.T) {
	base := t.TempDir()
	reg, err := NewAgentRegistry(filepath.Join(base, "agents.json"), filepath.Join(base, "agents"), testLogger())
	require.NoError(t, err)

	first, err := reg.Create("agent_a", "one", "s", "m")
	require.NoError(t, err)
	second, err := reg.Create("agent_a", "two", "s", "m")
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "two", second.Label)
	assert.Len(t, reg.List(), 1)
}

func TestAgentRegistryReloadsIdenticalState(t *testing.T) {
	base := t.TempDir()
	statePath := filepath.Join(base, "agents.json")

	reg, err := NewAgentRegistry(statePath, filepath.Join(base, "agents"), testLogger())
	require.NoError(t, err)
	original, err := reg.Create("agent_a", "one", "s", "m")
	require.NoError(t, err)

	reloaded, err := NewAgentRegistry(statePath, filepath.Join(base, "agents"), testLogger())
	require.NoError(t, err)
	got, ok := reloaded.Get("agent_a")
	require.True(t, ok)
	assert.Equal(t, original, got)
}
