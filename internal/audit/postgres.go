package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresMirror tees audit entries into an audit_log table so operators
// can query the trail without parsing the jsonl file. The file remains the
// source of truth; the mirror is best-effort.
type PostgresMirror struct {
	pool *pgxpool.Pool
}

// NewPostgresMirror connects to the given DSN and ensures the audit_log
// table exists.
func NewPostgresMirror(ctx context.Context, dsn string) (*PostgresMirror, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: connect postgres mirror: %w", err)
	}

	const ddl = `CREATE TABLE IF NOT EXISTS audit_log (
		audit_id TEXT PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		trace_id TEXT NOT NULL,
		data JSONB
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit: ensure audit_log table: %w", err)
	}

	return &PostgresMirror{pool: pool}, nil
}

// Insert writes one entry into audit_log.
func (m *PostgresMirror) Insert(ctx context.Context, entry Entry) error {
	dataJSON, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("audit: marshal mirror data: %w", err)
	}

	const query = `INSERT INTO audit_log (audit_id, ts, actor, action, trace_id, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (audit_id) DO NOTHING`
	if _, err := m.pool.Exec(ctx, query,
		entry.AuditID, entry.TS, entry.Actor, entry.Action, entry.TraceID, dataJSON,
	); err != nil {
		return fmt.Errorf("audit: insert mirror entry: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (m *PostgresMirror) Close() {
	m.pool.Close()
}
