package queue

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newTestSnapshotStore(t *testing.T) *SnapshotStore {
	t.Helper()
	store, err := NewSnapshotStore(filepath.Join(t.TempDir(), "state", "agent_queues.json"), testLogger())
	require.NoError(t, err)
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestSnapshotStore(t)

	q1 := New(Settings{Mode: ModeFollowup, Cap: 50, DropPolicy: DropOld})
	q1.Enqueue(request("ar_1"), 10)
	q1.Enqueue(request("ar_2"), 11)

	q2 := New(Settings{Mode: ModeCollect, Cap: 5, DropPolicy: DropNew, DebounceMs: 200})
	q2.Enqueue(request("ar_3"), 20)

	require.NoError(t, store.Save(map[string]*AgentQueue{
		"agent_a": q1,
		"agent_b": q2,
	}))

	loaded := store.Load()
	require.Len(t, loaded, 2)
	assert.Equal(t, q1.Snapshot(), loaded["agent_a"].Snapshot())
	assert.Equal(t, q2.Snapshot(), loaded["agent_b"].Snapshot())
}

func TestSaveWritesVersionedSortedFile(t *testing.T) {
	store := newTestSnapshotStore(t)

	require.NoError(t, store.Save(map[string]*AgentQueue{
		"zeta":  New(DefaultSettings()),
		"alpha": New(DefaultSettings()),
	}))

	raw, err := os.ReadFile(store.path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(1), decoded["version"])

	// The encoder emits map keys sorted; verify alpha precedes zeta in the
	// raw bytes.
	text := string(raw)
	assert.Less(t, strings.Index(text, `"alpha"`), strings.Index(text, `"zeta"`))
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	store := newTestSnapshotStore(t)
	assert.Empty(t, store.Load())
}

func TestLoadInvalidJSONReturnsEmpty(t *testing.T) {
	store := newTestSnapshotStore(t)
	require.NoError(t, os.WriteFile(store.path, []byte("{not json"), 0o644))
	assert.Empty(t, store.Load())
}

func TestLoadNonObjectQueuesReturnsEmpty(t *testing.T) {
	store := newTestSnapshotStore(t)
	require.NoError(t, os.WriteFile(store.path, []byte(`{"version":1,"queues":[1,2]}`), 0o644))
	assert.Empty(t, store.Load())
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	store := newTestSnapshotStore(t)

	good := New(DefaultSettings())
	good.Enqueue(request("ar_1"), 1)
	goodRaw, err := json.Marshal(good.Snapshot())
	require.NoError(t, err)

	file := map[string]any{
		"version": 1,
		"queues": map[string]json.RawMessage{
			"agent_good": goodRaw,
			"agent_bad":  json.RawMessage(`{"settings":{"mode":"bogus"}}`),
			"agent_ugly": json.RawMessage(`"not an object"`),
		},
	}
	raw, err := json.Marshal(file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.path, raw, 0o644))

	loaded := store.Load()
	require.Len(t, loaded, 1)
	assert.Contains(t, loaded, "agent_good")
}
