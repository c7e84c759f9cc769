package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), nil, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	return store
}

func TestAppendAndReadAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Append(ctx, "user", "risk.preview", "req_1", map[string]any{"allowed": true})
	require.NoError(t, err)
	second, err := store.Append(ctx, "user", "trades.place", "req_2", nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.AuditID, "audit_"))
	assert.Len(t, first.AuditID, len("audit_")+12)
	assert.NotEqual(t, first.AuditID, second.AuditID)

	entries, err := store.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "risk.preview", entries[0].Action)
	assert.Equal(t, "req_1", entries[0].TraceID)
	assert.Equal(t, "trades.place", entries[1].Action)
	assert.NotNil(t, entries[1].Data)
}

func TestReadAllMissingFile(t *testing.T) {
	store := newTestStore(t)

	entries, err := store.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAppendCanonicalFieldOrder(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Append(context.Background(), "user", "risk.emergencyStop", "req_9", map[string]any{"action": "pauseTrading"})
	require.NoError(t, err)

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	line := strings.TrimSpace(string(raw))
	assert.True(t, strings.HasPrefix(line, `{"auditId":`))

	order := []string{`"auditId"`, `"ts"`, `"actor"`, `"action"`, `"traceId"`, `"data"`}
	last := -1
	for _, key := range order {
		idx := strings.Index(line, key)
		require.GreaterOrEqual(t, idx, 0, key)
		assert.Greater(t, idx, last, key)
		last = idx
	}
}

func TestReadAllSkipsBlankLines(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, "user", "devices.pair", "req_1", nil)
	require.NoError(t, err)

	file, err := os.OpenFile(store.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString("\n\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = store.Append(ctx, "user", "devices.unpair", "req_2", nil)
	require.NoError(t, err)

	entries, err := store.ReadAll()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

type captureMirror struct {
	entries []Entry
}

func (m *captureMirror) Insert(_ context.Context, entry Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func TestMirrorReceivesEntries(t *testing.T) {
	mirror := &captureMirror{}
	store, err := NewStore(t.TempDir(), mirror, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)

	_, err = store.Append(context.Background(), "user", "trades.place", "req_1", nil)
	require.NoError(t, err)

	require.Len(t, mirror.entries, 1)
	assert.Equal(t, "trades.place", mirror.entries[0].Action)
}

func TestStoreCreatesDataDir(t *testing.T) {
	base := t.TempDir()
	nested := filepath.Join(base, "data", "deep")

	store, err := NewStore(nested, nil, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)

	_, err = store.Append(context.Background(), "user", "agents.create", "req_1", nil)
	require.NoError(t, err)

	_, err = os.Stat(store.Path())
	assert.NoError(t, err)
}
