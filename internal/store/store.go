package store

import (
	"database/sql"
	"fmt"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

const (
	metaKeyDimension = "dimension"
	// MetaKeyModel records which embedding model produced a project's rows.
	MetaKeyModel = "embedding_model"
)

// Store owns one project's chunk table and its paired vec0 embedding table
// in a SQLite database. It is the sole mutator of index rows; the walker and
// watcher only go through its operations. Reads run concurrently with writes
// under WAL.
type Store struct {
	db       *sql.DB
	project  string
	metric   string
	table    string
	vecTable string

	mu  sync.Mutex // guards schema creation and dim
	dim int
}

// Open creates or opens the database at path and binds the store to one
// project's tables, derived from baseTable and the sanitized project name.
// The embedding dimension is restored from metadata if the project was
// indexed before; otherwise it is fixed by the first EnsureSchema call.
func Open(path, baseTable, project, metric string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(metaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init meta schema: %w", err)
	}
	if metric != "cosine" && metric != "l2" {
		metric = "cosine"
	}

	s := &Store{
		db:       db,
		project:  project,
		metric:   metric,
		table:    TableName(baseTable, project),
		vecTable: vecTableName(baseTable, project),
	}

	if v, err := s.GetMeta(metaKeyDimension); err != nil {
		db.Close()
		return nil, fmt.Errorf("read dimension: %w", err)
	} else if v != "" {
		if _, err := fmt.Sscanf(v, "%d", &s.dim); err != nil {
			db.Close()
			return nil, fmt.Errorf("parse stored dimension %q: %w", v, err)
		}
	}
	return s, nil
}

// Project returns the project name this store is bound to.
func (s *Store) Project() string { return s.project }

// Dimension returns the embedding dimension, or 0 before the first write.
func (s *Store) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}

// EnsureSchema creates the project's tables sized to dim if they don't exist
// yet. It is idempotent; once a dimension is established every later call
// must match it.
func (s *Store) EnsureSchema(dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dim)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 {
		if dim != s.dim {
			return fmt.Errorf("embedding dimension %d does not match project dimension %d", dim, s.dim)
		}
		return nil
	}

	if _, err := s.db.Exec(chunkTableDDL(s.table)); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	if _, err := s.db.Exec(vecTableDDL(s.vecTable, dim, s.metric)); err != nil {
		return fmt.Errorf("create table %s: %w", s.vecTable, err)
	}
	if err := s.setMetaLocked(metaKeyDimension, fmt.Sprintf("%d", dim)); err != nil {
		return err
	}
	s.dim = dim
	return nil
}

// FileHash returns the stored content hash for a path, or "" if the path has
// no rows.
func (s *Store) FileHash(path string) (string, error) {
	if s.Dimension() == 0 {
		return "", nil
	}
	var hash string
	err := s.db.QueryRow(
		fmt.Sprintf("SELECT content_hash FROM %s WHERE file_path = ? LIMIT 1", s.table), path,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// ReplaceFile swaps a path's rows for the given chunk set in one
// transaction: a concurrent search sees either the old rows or the new ones,
// never a partial mix. An empty chunk set just clears the path.
func (s *Store) ReplaceFile(path, contentHash string, chunks []Chunk) error {
	if len(chunks) > 0 {
		if err := s.EnsureSchema(len(chunks[0].Vector)); err != nil {
			return err
		}
	} else if s.Dimension() == 0 {
		return nil // nothing indexed yet, nothing to clear
	}
	dim := s.Dimension()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteFileTx(tx, s.table, s.vecTable, path); err != nil {
		return err
	}

	insertRow, err := tx.Prepare(fmt.Sprintf(
		"INSERT INTO %s (project, file_path, chunk_index, chunk_text, content_hash, updated_at) VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)",
		s.table,
	))
	if err != nil {
		return err
	}
	defer insertRow.Close()

	insertVec, err := tx.Prepare(fmt.Sprintf(
		"INSERT INTO %s (chunk_id, embedding) VALUES (?, ?)", s.vecTable,
	))
	if err != nil {
		return err
	}
	defer insertVec.Close()

	for _, c := range chunks {
		if len(c.Vector) != dim {
			return fmt.Errorf("chunk %d of %s: dimension %d does not match project dimension %d",
				c.Index, path, len(c.Vector), dim)
		}
		res, err := insertRow.Exec(s.project, path, c.Index, c.Text, contentHash)
		if err != nil {
			return fmt.Errorf("insert chunk %d of %s: %w", c.Index, path, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		blob, err := sqlite_vec.SerializeFloat32(c.Vector)
		if err != nil {
			return fmt.Errorf("serialize embedding for chunk %d of %s: %w", c.Index, path, err)
		}
		if _, err := insertVec.Exec(id, blob); err != nil {
			return fmt.Errorf("insert embedding for chunk %d of %s: %w", c.Index, path, err)
		}
	}
	return tx.Commit()
}

// DeleteFile removes all rows for a path. Deleting a path with no rows is a
// silent no-op.
func (s *Store) DeleteFile(path string) error {
	if s.Dimension() == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := deleteFileTx(tx, s.table, s.vecTable, path); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteFileTx(tx *sql.Tx, table, vecTable, path string) error {
	rows, err := tx.Query(fmt.Sprintf("SELECT id FROM %s WHERE file_path = ?", table), path)
	if err != nil {
		return err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE chunk_id = ?", vecTable), id); err != nil {
			return err
		}
	}
	_, err = tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE file_path = ?", table), path)
	return err
}

// Search returns the k nearest chunks to the query vector, closest first.
// An empty (never-written) project or a non-positive k yields no results.
func (s *Store) Search(queryVector []float32, k int) ([]SearchResult, error) {
	dim := s.Dimension()
	if dim == 0 || k <= 0 {
		return nil, nil
	}
	if len(queryVector) != dim {
		return nil, fmt.Errorf("query dimension %d does not match project dimension %d", len(queryVector), dim)
	}
	blob, err := sqlite_vec.SerializeFloat32(queryVector)
	if err != nil {
		return nil, fmt.Errorf("serialize query embedding: %w", err)
	}

	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT c.file_path, c.chunk_index, c.chunk_text, v.distance
		FROM %s v
		JOIN %s c ON c.id = v.chunk_id
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance
	`, s.vecTable, s.table), blob, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.FilePath, &r.ChunkIndex, &r.Text, &r.Distance); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListFiles returns every indexed path with its chunk count.
func (s *Store) ListFiles() ([]FileInfo, error) {
	if s.Dimension() == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(fmt.Sprintf(
		"SELECT file_path, COUNT(*), MAX(updated_at) FROM %s GROUP BY file_path ORDER BY file_path", s.table,
	))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileInfo
	for rows.Next() {
		var f FileInfo
		if err := rows.Scan(&f.Path, &f.Chunks, &f.UpdatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Clear removes every row from the project's tables but keeps the schema.
// Used when the embedding model changes and everything must be re-embedded.
func (s *Store) Clear() error {
	if s.Dimension() == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM " + s.vecTable); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM " + s.table); err != nil {
		return err
	}
	return tx.Commit()
}

// Drop removes the project's tables and metadata entirely. Invoked when the
// project itself is deleted.
func (s *Store) Drop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("DROP TABLE IF EXISTS " + s.vecTable); err != nil {
		return fmt.Errorf("drop %s: %w", s.vecTable, err)
	}
	if _, err := s.db.Exec("DROP TABLE IF EXISTS " + s.table); err != nil {
		return fmt.Errorf("drop %s: %w", s.table, err)
	}
	// Escape LIKE wildcards: table names contain underscores, and a bare
	// `_` would match metadata of sibling projects.
	if _, err := s.db.Exec(`DELETE FROM semdex_meta WHERE key LIKE ? ESCAPE '\'`, likeEscape(s.table)+"/%"); err != nil {
		return err
	}
	s.dim = 0
	return nil
}

// GetMeta returns a project-scoped metadata value, or "" if not set.
func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM semdex_meta WHERE key = ?", s.table+"/"+key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetMeta sets a project-scoped metadata key-value pair.
func (s *Store) SetMeta(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMetaLocked(key, value)
}

func (s *Store) setMetaLocked(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO semdex_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		s.table+"/"+key, value,
	)
	return err
}

// Close closes the underlying database pool.
func (s *Store) Close() error {
	return s.db.Close()
}
