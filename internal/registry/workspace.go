package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// workspaceDirs is the directory tree bootstrapped for every agent.
var workspaceDirs = []string{
	"hooks",
	"strategies",
	filepath.Join("journal", "daily"),
	filepath.Join("journal", "trade_logs"),
	filepath.Join("memory", "notes"),
	filepath.Join("artifacts", "backtests"),
	filepath.Join("artifacts", "reports"),
	"state",
}

// BootstrapWorkspace creates the agent's workspace directory tree and seed
// files under baseDir. Existing files are never overwritten, so repeated
// creates are safe.
func BootstrapWorkspace(baseDir, agentID, soulTemplate, manualTemplate string) (string, error) {
	workspacePath := filepath.Join(baseDir, agentID)

	for _, dir := range workspaceDirs {
		if err := os.MkdirAll(filepath.Join(workspacePath, dir), 0o755); err != nil {
			return "", fmt.Errorf("registry: create workspace dir %s: %w", dir, err)
		}
	}

	seeds := []struct {
		path    string
		content string
	}{
		{filepath.Join(workspacePath, "SOUL.md"), strings.TrimSpace(soulTemplate) + "\n"},
		{filepath.Join(workspacePath, "TRADING_MANUAL.md"), strings.TrimSpace(manualTemplate) + "\n"},
		{filepath.Join(workspacePath, "memory", "MEMORY.md"), "# MEMORY\n"},
		{filepath.Join(workspacePath, "journal", "learnings.md"), "# Learnings\n"},
	}
	for _, seed := range seeds {
		if err := writeIfMissing(seed.path, []byte(seed.content)); err != nil {
			return "", err
		}
	}

	statePath := filepath.Join(workspacePath, "state", "agent_state.json")
	if _, err := os.Stat(statePath); os.IsNotExist(err) {
		state, err := json.MarshalIndent(map[string]any{
			"agentId":   agentID,
			"status":    "idle",
			"lastRunId": nil,
		}, "", "  ")
		if err != nil {
			return "", fmt.Errorf("registry: marshal agent state: %w", err)
		}
		if err := os.WriteFile(statePath, append(state, '\n'), 0o644); err != nil {
			return "", fmt.Errorf("registry: write agent state: %w", err)
		}
	}

	return workspacePath, nil
}

func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("registry: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("registry: write %s: %w", path, err)
	}
	return nil
}
