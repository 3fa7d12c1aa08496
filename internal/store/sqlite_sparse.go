package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteSparseIndex is a persistent BM25 backend on SQLite FTS5. The FTS
// table holds tokenized chunk content; a companion table maps FTS rowids
// to chunk keys. bm25() returns negated scores in SQLite, so ordering is
// ascending and the sign is flipped on the way out.
type SQLiteSparseIndex struct {
	db  *sql.DB
	cfg SparseConfig
}

const sqliteSparseSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
	content,
	tokenize = 'unicode61'
);
CREATE TABLE IF NOT EXISTS chunk_keys (
	rowid INTEGER PRIMARY KEY,
	source_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	UNIQUE(source_id, position)
);
`

// NewSQLiteSparseIndex opens (or creates) the FTS index at path. Use
// ":memory:" for an ephemeral index.
func NewSQLiteSparseIndex(path string, cfg SparseConfig) (*SQLiteSparseIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSparseSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteSparseIndex{db: db, cfg: cfg}, nil
}

// Index adds or replaces chunks in one transaction.
func (s *SQLiteSparseIndex) Index(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range chunks {
		if err := s.deleteOne(ctx, tx, c.Key()); err != nil {
			return err
		}
		// Store the normalized token stream so FTS matching agrees with
		// the in-memory backend's tokenizer.
		tokens := strings.Join(Tokenize(c.Content, s.cfg), " ")
		res, err := tx.ExecContext(ctx, `INSERT INTO chunk_fts(content) VALUES (?)`, tokens)
		if err != nil {
			return fmt.Errorf("insert fts row: %w", err)
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("fts rowid: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunk_keys(rowid, source_id, position) VALUES (?, ?, ?)`,
			rowid, c.SourceID, c.Position)
		if err != nil {
			return fmt.Errorf("insert chunk key: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteSparseIndex) deleteOne(ctx context.Context, tx *sql.Tx, key ChunkKey) error {
	var rowid int64
	err := tx.QueryRowContext(ctx,
		`SELECT rowid FROM chunk_keys WHERE source_id = ? AND position = ?`,
		key.SourceID, key.Position).Scan(&rowid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup chunk key: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_fts WHERE rowid = ?`, rowid); err != nil {
		return fmt.Errorf("delete fts row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_keys WHERE rowid = ?`, rowid); err != nil {
		return fmt.Errorf("delete chunk key: %w", err)
	}
	return nil
}

// Delete removes chunks by key.
func (s *SQLiteSparseIndex) Delete(ctx context.Context, keys []ChunkKey) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()
	for _, k := range keys {
		if err := s.deleteOne(ctx, tx, k); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search runs an FTS5 OR-query over the tokenized terms. Scores come back
// positive and ranked descending.
func (s *SQLiteSparseIndex) Search(ctx context.Context, query string, limit int) ([]*SparseResult, error) {
	terms := Tokenize(query, s.cfg)
	if len(terms) == 0 || limit <= 0 {
		return []*SparseResult{}, nil
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	match := strings.Join(quoted, " OR ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT k.source_id, k.position, -bm25(chunk_fts) AS score
		FROM chunk_fts
		JOIN chunk_keys k ON k.rowid = chunk_fts.rowid
		WHERE chunk_fts MATCH ?
		ORDER BY bm25(chunk_fts) ASC
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var results []*SparseResult
	for rows.Next() {
		var r SparseResult
		if err := rows.Scan(&r.Key.SourceID, &r.Key.Position, &r.Score); err != nil {
			return nil, fmt.Errorf("scan fts row: %w", err)
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fts rows: %w", err)
	}
	if results == nil {
		results = []*SparseResult{}
	}
	return results, nil
}

// Stats reports document and term counts from the FTS vocabulary.
func (s *SQLiteSparseIndex) Stats() *IndexStats {
	stats := &IndexStats{}
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM chunk_keys`).Scan(&stats.DocumentCount)
	return stats
}

func (s *SQLiteSparseIndex) Close() error {
	return s.db.Close()
}
