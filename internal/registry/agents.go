package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Agent is one registered trading agent with a bootstrapped workspace.
type Agent struct {
	AgentID       string `json:"agentId"`
	Label         string `json:"label"`
	Status        string `json:"status"`
	WorkspacePath string `json:"workspacePath"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// AgentRegistry maps agent ids to records and owns workspace bootstrap.
type AgentRegistry struct {
	mu               sync.Mutex
	agents           map[string]*Agent
	statePath        string
	workspaceBaseDir string
	logger           *slog.Logger
	now              func() time.Time
}

type agentFile struct {
	Version int     `json:"version"`
	Agents  []Agent `json:"agents"`
}

// NewAgentRegistry loads existing state and ensures the workspace base
// directory exists.
func NewAgentRegistry(statePath, workspaceBaseDir string, logger *slog.Logger) (*AgentRegistry, error) {
	if err := os.MkdirAll(workspaceBaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: create workspace base dir: %w", err)
	}
	r := &AgentRegistry{
		agents:           make(map[string]*Agent),
		statePath:        statePath,
		workspaceBaseDir: workspaceBaseDir,
		logger:           logger.With(slog.String("component", "agent_registry")),
		now:              time.Now,
	}
	if statePath != "" {
		if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
			return nil, fmt.Errorf("registry: create state dir: %w", err)
		}
		r.load()
	}
	return r, nil
}

// Create upserts an agent, bootstrapping its workspace first. Repeating a
// create refreshes the label and updatedAt but preserves createdAt.
func (r *AgentRegistry) Create(agentID, label, soulTemplate, manualTemplate string) (Agent, error) {
	workspacePath, err := BootstrapWorkspace(r.workspaceBaseDir, agentID, soulTemplate, manualTemplate)
	if err != nil {
		return Agent{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC().Format(time.RFC3339Nano)
	agent, ok := r.agents[agentID]
	if !ok {
		agent = &Agent{
			AgentID:   agentID,
			CreatedAt: now,
		}
		r.agents[agentID] = agent
	}
	agent.Label = label
	agent.Status = "ready"
	agent.WorkspacePath = workspacePath
	agent.UpdatedAt = now

	r.saveLocked()
	return *agent, nil
}

// Get returns the agent record for the given id.
func (r *AgentRegistry) Get(agentID string) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return Agent{}, false
	}
	return *agent, true
}

// List returns all agents.
func (r *AgentRegistry) List() []Agent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, *agent)
	}
	return out
}

// WorkspaceBaseDir returns the directory agents are bootstrapped under.
func (r *AgentRegistry) WorkspaceBaseDir() string {
	return r.workspaceBaseDir
}

// PublicPayload is the wire shape of an agent record.
func (a Agent) PublicPayload() map[string]any {
	return map[string]any{
		"agentId":       a.AgentID,
		"label":         a.Label,
		"status":        a.Status,
		"workspacePath": a.WorkspacePath,
		"createdAt":     a.CreatedAt,
		"updatedAt":     a.UpdatedAt,
	}
}

func (r *AgentRegistry) load() {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("registry: read agents file failed", slog.String("error", err.Error()))
		}
		return
	}

	var file agentFile
	if err := json.Unmarshal(data, &file); err != nil {
		r.logger.Warn("registry: agents file is not valid JSON", slog.String("error", err.Error()))
		return
	}
	for i := range file.Agents {
		agent := file.Agents[i]
		if agent.AgentID == "" {
			r.logger.Warn("registry: skipping agent row without agentId")
			continue
		}
		r.agents[agent.AgentID] = &agent
	}
}

func (r *AgentRegistry) saveLocked() {
	if r.statePath == "" {
		return
	}

	file := agentFile{Version: 1, Agents: make([]Agent, 0, len(r.agents))}
	for _, agent := range r.agents {
		file.Agents = append(file.Agents, *agent)
	}
	sort.Slice(file.Agents, func(i, j int) bool {
		return file.Agents[i].AgentID < file.Agents[j].AgentID
	})

	payload, err := json.Marshal(file)
	if err != nil {
		r.logger.Error("registry: marshal agents failed", slog.String("error", err.Error()))
		return
	}
	if err := writeAtomic(r.statePath, payload); err != nil {
		r.logger.Error("registry: write agents failed", slog.String("error", err.Error()))
	}
}
