package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	base := t.TempDir()
	idx, err := NewIndex(filepath.Join(base, "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx, base
}

func writeMarkdown(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIndexAndSearch(t *testing.T) {
	idx, base := newTestIndex(t)
	workspace := filepath.Join(base, "workspace")
	writeMarkdown(t, workspace, "MEMORY.md", "# MEMORY\n\nETH breakout strategy works best on the 5m timeframe.\n")
	writeMarkdown(t, workspace, "notes/lessons.md", "# Lessons\n\nNever trade during rollover spreads.\n")

	require.NoError(t, idx.IndexWorkspace(workspace))

	results, err := idx.Search("breakout timeframe", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Snippet, "breakout strategy")
	assert.Equal(t, 1, results[0].StartLine)
	assert.Greater(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)
	assert.Equal(t, "fts", results[0].Source)
}

func TestSearchEmptyQuery(t *testing.T) {
	idx, _ := newTestIndex(t)

	results, err := idx.Search("   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchQuotesHostileInput(t *testing.T) {
	idx, base := newTestIndex(t)
	workspace := filepath.Join(base, "workspace")
	writeMarkdown(t, workspace, "MEMORY.md", "candle AND close\n")
	require.NoError(t, idx.IndexWorkspace(workspace))

	// FTS operators in the raw query must not produce syntax errors.
	_, err := idx.Search(`candle AND NOT ("close`, 10)
	require.NoError(t, err)
}

func TestReindexReplacesChunks(t *testing.T) {
	idx, base := newTestIndex(t)
	workspace := filepath.Join(base, "workspace")
	path := writeMarkdown(t, workspace, "MEMORY.md", "alpha strategy notes\n")
	require.NoError(t, idx.IndexWorkspace(workspace))

	require.NoError(t, os.WriteFile(path, []byte("omega strategy notes\n"), 0o644))
	require.NoError(t, idx.IndexWorkspace(workspace))

	results, err := idx.Search("alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search("omega", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestChunkingLongFile(t *testing.T) {
	idx, base := newTestIndex(t)
	workspace := filepath.Join(base, "workspace")

	content := ""
	for i := 0; i < 30; i++ {
		content += "line of journal text\n"
	}
	content += "needle sentence at the end\n"
	writeMarkdown(t, workspace, "journal.md", content)

	require.NoError(t, idx.IndexWorkspace(workspace))

	results, err := idx.Search("needle sentence", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	// Lines 25-31 form the final chunk.
	assert.Equal(t, 25, results[0].StartLine)
	assert.Equal(t, 31, results[0].EndLine)
}

func TestMaxResultsLimit(t *testing.T) {
	idx, base := newTestIndex(t)
	workspace := filepath.Join(base, "workspace")
	for i := 0; i < 5; i++ {
		writeMarkdown(t, workspace, filepath.Join("notes", string(rune('a'+i))+".md"), "shared keyword here\n")
	}
	require.NoError(t, idx.IndexWorkspace(workspace))

	results, err := idx.Search("shared keyword", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}
