// Package memory wraps the local full-text search index behind the single
// narrow contract the gateway needs: index a workspace, search it. Storage
// is a sqlite database with an FTS5 shadow table; the handle lives for the
// process and is safe for concurrent use.
package memory

import (
	"database/sql"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// chunkSize is the number of lines per indexed markdown chunk.
const chunkSize = 12

// SearchResult is one matching chunk.
type SearchResult struct {
	Path      string  `json:"path"`
	StartLine int     `json:"startLine"`
	EndLine   int     `json:"endLine"`
	Snippet   string  `json:"snippet"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
}

// Index is the sqlite-backed full-text index.
type Index struct {
	db *sql.DB
}

// NewIndex opens (creating if needed) the database at dbPath and ensures
// the schema exists.
func NewIndex(dbPath string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("memory: create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open db: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// Close releases the database handle.
func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) initializeSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			snippet TEXT NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts
			USING fts5(snippet, content='chunks', content_rowid='id')`,
	}
	for _, statement := range statements {
		if _, err := i.db.Exec(statement); err != nil {
			return fmt.Errorf("memory: initialize schema: %w", err)
		}
	}
	return nil
}

// IndexWorkspace walks workspaceDir for markdown files and (re)indexes
// each in 12-line chunks.
func (i *Index) IndexWorkspace(workspaceDir string) error {
	var markdownFiles []string
	err := filepath.WalkDir(workspaceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".md") {
			markdownFiles = append(markdownFiles, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("memory: walk workspace: %w", err)
	}
	sort.Strings(markdownFiles)

	for _, file := range markdownFiles {
		if err := i.reindexFile(file); err != nil {
			return err
		}
	}
	return nil
}

func (i *Index) reindexFile(path string) error {
	if err := i.deleteChunksForPath(path); err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("memory: read %s: %w", path, err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}

	for start := 0; start < len(lines); start += chunkSize {
		end := start + chunkSize
		if end > len(lines) {
			end = len(lines)
		}
		snippet := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		if snippet == "" {
			continue
		}

		result, err := i.db.Exec(
			`INSERT INTO chunks(path, start_line, end_line, snippet) VALUES(?, ?, ?, ?)`,
			path, start+1, end, snippet,
		)
		if err != nil {
			return fmt.Errorf("memory: insert chunk: %w", err)
		}
		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("memory: chunk row id: %w", err)
		}
		if _, err := i.db.Exec(
			`INSERT INTO chunks_fts(rowid, snippet) VALUES(?, ?)`,
			rowID, snippet,
		); err != nil {
			return fmt.Errorf("memory: insert fts chunk: %w", err)
		}
	}
	return nil
}

func (i *Index) deleteChunksForPath(path string) error {
	rows, err := i.db.Query(`SELECT id FROM chunks WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("memory: query chunks for %s: %w", path, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("memory: scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("memory: iterate chunk ids: %w", err)
	}

	for _, id := range ids {
		if _, err := i.db.Exec(`DELETE FROM chunks_fts WHERE rowid = ?`, id); err != nil {
			return fmt.Errorf("memory: delete fts chunk: %w", err)
		}
	}
	if _, err := i.db.Exec(`DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return fmt.Errorf("memory: delete chunks: %w", err)
	}
	return nil
}

// Search runs an FTS query and returns up to maxResults chunks ranked by
// bm25. Scores are normalized to (0, 1].
func (i *Index) Search(query string, maxResults int) ([]SearchResult, error) {
	normalized := normalizeQuery(query)
	if normalized == "" {
		return []SearchResult{}, nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	rows, err := i.db.Query(
		`SELECT c.path, c.start_line, c.end_line, c.snippet, bm25(chunks_fts) AS rank
		 FROM chunks_fts
		 JOIN chunks c ON chunks_fts.rowid = c.id
		 WHERE chunks_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		normalized, maxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var result SearchResult
		var rank float64
		if err := rows.Scan(&result.Path, &result.StartLine, &result.EndLine, &result.Snippet, &rank); err != nil {
			return nil, fmt.Errorf("memory: scan search row: %w", err)
		}
		result.Score = 1 / (1 + math.Abs(rank))
		result.Source = "fts"
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterate search rows: %w", err)
	}
	return results, nil
}

// normalizeQuery quotes each token and joins with AND so free-form
// operator input never hits FTS syntax errors.
func normalizeQuery(query string) string {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.ReplaceAll(strings.TrimSpace(field), `"`, "")
		if token == "" {
			continue
		}
		tokens = append(tokens, `"`+token+`"`)
	}
	return strings.Join(tokens, " AND ")
}
