package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/tradegate/internal/config"
	"github.com/openclaw/tradegate/internal/queue"
)

func testWireConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.Agents.WorkspaceBaseDir = filepath.Join(base, "agents")
	cfg.Accounts = []config.AccountConfig{{
		AccountID:         "acct_demo_1",
		ConnectorID:       "metaapi",
		ProviderAccountID: "prov_1",
		Mode:              "demo",
		Label:             "Demo",
		AllowedSymbols:    []string{"ETHUSDm"},
	}}
	return cfg
}

func TestWireBuildsAllSubsystems(t *testing.T) {
	cfg := testWireConfig(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	deps, cleanup, err := Wire(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Gateway.Audit)
	assert.NotNil(t, deps.Gateway.RiskEngine)
	assert.NotNil(t, deps.Gateway.Control)
	assert.NotNil(t, deps.Gateway.Memory)
	assert.NotNil(t, deps.Gateway.Metrics)
	assert.NotNil(t, deps.Queues)
	assert.NotNil(t, deps.Pipeline)

	// Config accounts are registered at boot.
	account, found := deps.Gateway.Accounts.Get("acct_demo_1")
	require.True(t, found)
	assert.Equal(t, "connected", account.Status)

	// The memory db lives inside the data dir.
	_, err = os.Stat(filepath.Join(cfg.DataDir, "memory.db"))
	assert.NoError(t, err)
}

func TestWireRestoresQueuesFromSnapshot(t *testing.T) {
	cfg := testWireConfig(t)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	deps, cleanup, err := Wire(context.Background(), cfg, logger)
	require.NoError(t, err)

	_, err = deps.Queues.Submit(queue.Request{
		RequestID: "ar_1",
		AgentID:   "agent_eth_5m",
		Kind:      "hook_trigger",
	})
	require.NoError(t, err)
	cleanup()

	again, cleanup2, err := Wire(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer cleanup2()

	status := again.Queues.Status("agent_eth_5m")
	require.NotNil(t, status.ActiveRequestID)
	assert.Equal(t, "ar_1", *status.ActiveRequestID)
}

func TestAccountSymbolsDeduplicates(t *testing.T) {
	cfg := testWireConfig(t)
	cfg.Accounts = append(cfg.Accounts, config.AccountConfig{
		AccountID:         "acct_2",
		ConnectorID:       "metaapi",
		ProviderAccountID: "prov_2",
		Mode:              "demo",
		Label:             "Second",
		AllowedSymbols:    []string{"ETHUSDm", "BTCUSDm"},
	})

	symbols := accountSymbols(cfg)
	assert.ElementsMatch(t, []string{"ETHUSDm", "BTCUSDm"}, symbols)
}
