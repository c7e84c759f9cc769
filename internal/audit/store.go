// Package audit maintains the append-only operator action log. Every
// security-relevant gateway method writes one self-contained JSON record
// per line to <data>/audit.jsonl; a successful append is durable (synced)
// before the caller sends its response.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one audit record. Field order here is the canonical on-disk
// field order.
type Entry struct {
	AuditID string         `json:"auditId"`
	TS      string         `json:"ts"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`
	TraceID string         `json:"traceId"`
	Data    map[string]any `json:"data"`
}

// Mirror receives a copy of every appended entry. It exists so deployments
// can tee the file log into a queryable store; mirror failures are logged
// and never fail the append.
type Mirror interface {
	Insert(ctx context.Context, entry Entry) error
}

// Store appends audit entries to a newline-delimited JSON file.
type Store struct {
	path   string
	mirror Mirror
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates the audit store rooted at dataDir, creating the
// directory if needed. mirror may be nil.
func NewStore(dataDir string, mirror Mirror, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create data dir: %w", err)
	}
	return &Store{
		path:   filepath.Join(dataDir, "audit.jsonl"),
		mirror: mirror,
		logger: logger.With(slog.String("component", "audit")),
	}, nil
}

// Path returns the location of the audit log file.
func (s *Store) Path() string {
	return s.path
}

// Append writes one entry and syncs the file before returning. The file is
// opened per append and closed after, so no handle outlives the call.
func (s *Store) Append(ctx context.Context, actor, action, traceID string, data map[string]any) (Entry, error) {
	if data == nil {
		data = map[string]any{}
	}
	entry := Entry{
		AuditID: "audit_" + shortHex(12),
		TS:      time.Now().UTC().Format(time.RFC3339Nano),
		Actor:   actor,
		Action:  action,
		TraceID: traceID,
		Data:    data,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal entry: %w", err)
	}

	s.mu.Lock()
	err = s.appendLine(line)
	s.mu.Unlock()
	if err != nil {
		return Entry{}, err
	}

	if s.mirror != nil {
		if err := s.mirror.Insert(ctx, entry); err != nil {
			s.logger.Warn("audit: mirror insert failed",
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
		}
	}

	return entry, nil
}

func (s *Store) appendLine(line []byte) error {
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open log: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: append entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("audit: sync log: %w", err)
	}
	return nil
}

// ReadAll returns every entry in insertion order. Blank lines are skipped;
// a missing file yields an empty slice.
func (s *Store) ReadAll() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("audit: parse entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: read log: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func shortHex(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if len(id) > n {
		id = id[:n]
	}
	return id
}
