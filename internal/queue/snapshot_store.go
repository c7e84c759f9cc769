package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// snapshotFileVersion guards the on-disk schema.
const snapshotFileVersion = 1

type snapshotFile struct {
	Version int                        `json:"version"`
	Queues  map[string]json.RawMessage `json:"queues"`
}

// SnapshotStore persists all agent queues to a single JSON file. Writes go
// through a temp file and rename so a crash mid-write never corrupts the
// previous snapshot.
type SnapshotStore struct {
	path   string
	logger *slog.Logger
}

// NewSnapshotStore creates a store writing to statePath, creating parent
// directories as needed.
func NewSnapshotStore(statePath string, logger *slog.Logger) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(statePath), 0o755); err != nil {
		return nil, fmt.Errorf("queue: create state dir: %w", err)
	}
	return &SnapshotStore{
		path:   statePath,
		logger: logger.With(slog.String("component", "queue_snapshot")),
	}, nil
}

// Save writes every queue keyed by agent id. Map keys are emitted in
// sorted order by the JSON encoder.
func (s *SnapshotStore) Save(queues map[string]*AgentQueue) error {
	raw := make(map[string]json.RawMessage, len(queues))
	for agentID, q := range queues {
		encoded, err := json.Marshal(q.Snapshot())
		if err != nil {
			return fmt.Errorf("queue: marshal snapshot for %s: %w", agentID, err)
		}
		raw[agentID] = encoded
	}

	payload, err := json.Marshal(snapshotFile{Version: snapshotFileVersion, Queues: raw})
	if err != nil {
		return fmt.Errorf("queue: marshal snapshot file: %w", err)
	}

	if err := renameio.WriteFile(s.path, payload, 0o644); err != nil {
		return fmt.Errorf("queue: write snapshot file: %w", err)
	}
	return nil
}

// Load reconstructs all queues. A missing file, invalid JSON, or a
// non-object queues field yields an empty map; individually malformed
// queue entries are skipped with a diagnostic.
func (s *SnapshotStore) Load() map[string]*AgentQueue {
	queues := make(map[string]*AgentQueue)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("queue: read snapshot file failed", slog.String("error", err.Error()))
		}
		return queues
	}

	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.Warn("queue: snapshot file is not valid JSON", slog.String("error", err.Error()))
		return queues
	}
	if file.Queues == nil {
		return queues
	}

	for agentID, raw := range file.Queues {
		var snapshot Snapshot
		if err := json.Unmarshal(raw, &snapshot); err != nil {
			s.logger.Warn("queue: skipping malformed snapshot entry",
				slog.String("agent_id", agentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		q, err := FromSnapshot(snapshot)
		if err != nil {
			s.logger.Warn("queue: skipping invalid snapshot entry",
				slog.String("agent_id", agentID),
				slog.String("error", err.Error()),
			)
			continue
		}
		queues[agentID] = q
	}
	return queues
}
