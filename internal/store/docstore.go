package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteDocumentStore persists chunk content in SQLite, keyed by
// (workspace_id, source_id, position). It backs pipeline enrichment and
// sibling-window fetches during context expansion.
type SQLiteDocumentStore struct {
	db *sql.DB
}

const docStoreSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	workspace_id     TEXT NOT NULL,
	source_id        TEXT NOT NULL,
	position         INTEGER NOT NULL,
	content          TEXT NOT NULL,
	heading_path     TEXT,
	estimated_tokens INTEGER NOT NULL DEFAULT 0,
	is_code          INTEGER NOT NULL DEFAULT 0,
	code_language    TEXT,
	metadata         TEXT,
	PRIMARY KEY (workspace_id, source_id, position)
);
CREATE INDEX IF NOT EXISTS idx_chunks_source
	ON chunks(workspace_id, source_id, position);
`

// NewSQLiteDocumentStore opens (or creates) the chunk database at path.
// Use ":memory:" for tests.
func NewSQLiteDocumentStore(path string) (*SQLiteDocumentStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("document store pragma: %w", err)
		}
	}
	if _, err := db.Exec(docStoreSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("document store schema: %w", err)
	}
	return &SQLiteDocumentStore{db: db}, nil
}

// SaveChunks upserts chunks for a workspace in one transaction.
func (s *SQLiteDocumentStore) SaveChunks(ctx context.Context, workspaceID string, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks
			(workspace_id, source_id, position, content, heading_path,
			 estimated_tokens, is_code, code_language, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, source_id, position) DO UPDATE SET
			content = excluded.content,
			heading_path = excluded.heading_path,
			estimated_tokens = excluded.estimated_tokens,
			is_code = excluded.is_code,
			code_language = excluded.code_language,
			metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		heading, err := marshalJSON(c.HeadingPath)
		if err != nil {
			return fmt.Errorf("marshal heading path: %w", err)
		}
		meta, err := marshalJSON(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		_, err = stmt.ExecContext(ctx, workspaceID, c.SourceID, c.Position,
			c.Content, heading, c.EstimatedTokens, boolToInt(c.IsCode),
			c.CodeLanguage, meta)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.Key(), err)
		}
	}
	return tx.Commit()
}

// GetChunks fetches chunks by key in one query. Missing keys are simply
// absent from the result.
func (s *SQLiteDocumentStore) GetChunks(ctx context.Context, workspaceID string, keys []ChunkKey) ([]*Chunk, error) {
	if len(keys) == 0 {
		return []*Chunk{}, nil
	}
	var sb strings.Builder
	args := make([]any, 0, 1+2*len(keys))
	args = append(args, workspaceID)
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?,?)")
		args = append(args, k.SourceID, k.Position)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT source_id, position, content, heading_path, estimated_tokens,
		       is_code, code_language, metadata
		FROM chunks
		WHERE workspace_id = ? AND (source_id, position) IN (VALUES %s)`,
		sb.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetRange fetches chunks of one source with positions in [lo, hi],
// ordered by position ascending.
func (s *SQLiteDocumentStore) GetRange(ctx context.Context, workspaceID, sourceID string, lo, hi int) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, position, content, heading_path, estimated_tokens,
		       is_code, code_language, metadata
		FROM chunks
		WHERE workspace_id = ? AND source_id = ? AND position BETWEEN ? AND ?
		ORDER BY position ASC`, workspaceID, sourceID, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("get range: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// AllChunks returns the workspace corpus ordered by (source_id, position).
func (s *SQLiteDocumentStore) AllChunks(ctx context.Context, workspaceID string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, position, content, heading_path, estimated_tokens,
		       is_code, code_language, metadata
		FROM chunks
		WHERE workspace_id = ?
		ORDER BY source_id ASC, position ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("all chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// Count returns the number of chunks stored for a workspace.
func (s *SQLiteDocumentStore) Count(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE workspace_id = ?`, workspaceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteDocumentStore) Close() error {
	return s.db.Close()
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		var c Chunk
		var heading, meta, lang sql.NullString
		var isCode int
		err := rows.Scan(&c.SourceID, &c.Position, &c.Content, &heading,
			&c.EstimatedTokens, &isCode, &lang, &meta)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.IsCode = isCode != 0
		c.CodeLanguage = lang.String
		if heading.Valid && heading.String != "" {
			if err := json.Unmarshal([]byte(heading.String), &c.HeadingPath); err != nil {
				return nil, fmt.Errorf("unmarshal heading path: %w", err)
			}
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &c.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chunk rows: %w", err)
	}
	if chunks == nil {
		chunks = []*Chunk{}
	}
	return chunks, nil
}

func marshalJSON(v any) (string, error) {
	switch x := v.(type) {
	case []string:
		if x == nil {
			return "", nil
		}
	case map[string]string:
		if x == nil {
			return "", nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
