package fragment

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO

	cerrors "github.com/ctxforge/ctxforge/internal/errors"
)

// SQLiteStore persists fragments and file-modification records so that,
// per spec.md §6, both survive a process restart for incremental indexing.
// The pool is limited to one open connection, so all reads and writes
// through a SQLiteStore are serialised on that connection.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed store at
// path. An empty path opens an in-memory database, useful for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, cerrors.Wrap(err, cerrors.ErrCodeFileNotFound, "create store directory")
			}
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, cerrors.Wrap(err, cerrors.ErrCodeCorruptIndex, "open sqlite database")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fragments (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			content TEXT NOT NULL,
			signature TEXT,
			language TEXT,
			embedding BLOB,
			metadata TEXT,
			last_modified INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fragments_file_path ON fragments(file_path)`,
		`CREATE TABLE IF NOT EXISTS mod_records (
			path TEXT PRIMARY KEY,
			last_indexed_mtime INTEGER NOT NULL,
			file_size INTEGER NOT NULL,
			checksum TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return cerrors.Wrap(err, cerrors.ErrCodeCorruptIndex, "migrate fragment store schema")
		}
	}
	return nil
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	var v []float32
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	return v
}

func (s *SQLiteStore) Put(f *Fragment) error {
	return s.PutBatch([]*Fragment{f})
}

func (s *SQLiteStore) PutBatch(fs []*Fragment) error {
	for _, f := range fs {
		if f.StartLine < 1 || f.EndLine < f.StartLine {
			return cerrors.ValidationError("fragment line range invalid").WithDetail("id", f.ID)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrCodeVectorDBError, "begin fragment batch transaction")
	}
	stmt, err := tx.Prepare(`INSERT INTO fragments
		(id, file_path, name, kind, start_line, end_line, content, signature, language, embedding, metadata, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_path=excluded.file_path, name=excluded.name, kind=excluded.kind,
			start_line=excluded.start_line, end_line=excluded.end_line, content=excluded.content,
			signature=excluded.signature, language=excluded.language, embedding=excluded.embedding,
			metadata=excluded.metadata, last_modified=excluded.last_modified`)
	if err != nil {
		tx.Rollback()
		return cerrors.Wrap(err, cerrors.ErrCodeVectorDBError, "prepare fragment upsert")
	}
	defer stmt.Close()

	for _, f := range fs {
		meta, _ := json.Marshal(f.Metadata)
		if _, err := stmt.Exec(f.ID, f.FilePath, f.Name, string(f.Kind), f.StartLine, f.EndLine,
			f.Content, f.Signature, f.Language, encodeEmbedding(f.Embedding), string(meta),
			f.LastModified.UnixMilli()); err != nil {
			tx.Rollback()
			return cerrors.Wrap(err, cerrors.ErrCodeVectorDBError, "insert fragment").WithDetail("id", f.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return cerrors.Wrap(err, cerrors.ErrCodeVectorDBError, "commit fragment batch")
	}
	return nil
}

func (s *SQLiteStore) scanFragment(row interface {
	Scan(dest ...any) error
}) (*Fragment, error) {
	var f Fragment
	var kind, metaJSON string
	var embedding []byte
	var lastModified int64
	if err := row.Scan(&f.ID, &f.FilePath, &f.Name, &kind, &f.StartLine, &f.EndLine,
		&f.Content, &f.Signature, &f.Language, &embedding, &metaJSON, &lastModified); err != nil {
		return nil, err
	}
	f.Kind = Kind(kind)
	f.Embedding = decodeEmbedding(embedding)
	f.LastModified = time.UnixMilli(lastModified)
	if metaJSON != "" {
		_ = json.Unmarshal([]byte(metaJSON), &f.Metadata)
	}
	return &f, nil
}

func (s *SQLiteStore) Get(id string) (*Fragment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(`SELECT id, file_path, name, kind, start_line, end_line, content, signature, language, embedding, metadata, last_modified FROM fragments WHERE id = ?`, id)
	f, err := s.scanFragment(row)
	if err != nil {
		return nil, false
	}
	return f, true
}

func (s *SQLiteStore) GetBatch(ids []string) []*Fragment {
	out := make([]*Fragment, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.Get(id); ok {
			out = append(out, f)
		}
	}
	return out
}

func (s *SQLiteStore) DeleteByFile(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT id FROM fragments WHERE file_path = ?`, path)
	if err != nil {
		return nil
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	rows.Close()
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.Exec(`DELETE FROM fragments WHERE file_path = ?`, path); err != nil {
		slog.Warn("fragment_delete_by_file_failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	return ids
}

func (s *SQLiteStore) FragmentsForFile(path string) []*Fragment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, file_path, name, kind, start_line, end_line, content, signature, language, embedding, metadata, last_modified FROM fragments WHERE file_path = ?`, path)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []*Fragment
	for rows.Next() {
		f, err := s.scanFragment(rows)
		if err == nil {
			out = append(out, f)
		}
	}
	return out
}

func (s *SQLiteStore) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id FROM fragments`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if rows.Scan(&id) == nil {
			out = append(out, id)
		}
	}
	return out
}

func (s *SQLiteStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM fragments`).Scan(&n)
	return n
}

func (s *SQLiteStore) GetModRecord(path string) (*FileModificationRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rec FileModificationRecord
	var mtime int64
	err := s.db.QueryRow(`SELECT path, last_indexed_mtime, file_size, checksum FROM mod_records WHERE path = ?`, path).
		Scan(&rec.Path, &mtime, &rec.FileSize, &rec.Checksum)
	if err != nil {
		return nil, false
	}
	rec.LastIndexedMtime = time.UnixMilli(mtime)
	return &rec, true
}

func (s *SQLiteStore) SetModRecord(rec *FileModificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO mod_records (path, last_indexed_mtime, file_size, checksum)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET last_indexed_mtime=excluded.last_indexed_mtime,
			file_size=excluded.file_size, checksum=excluded.checksum`,
		rec.Path, rec.LastIndexedMtime.UnixMilli(), rec.FileSize, rec.Checksum)
	if err != nil {
		return cerrors.Wrap(err, cerrors.ErrCodeVectorDBError, "upsert mod record")
	}
	return nil
}

func (s *SQLiteStore) DeleteModRecord(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec(`DELETE FROM mod_records WHERE path = ?`, path)
}

func (s *SQLiteStore) AllModRecords() []*FileModificationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT path, last_indexed_mtime, file_size, checksum FROM mod_records`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []*FileModificationRecord
	for rows.Next() {
		var rec FileModificationRecord
		var mtime int64
		if rows.Scan(&rec.Path, &mtime, &rec.FileSize, &rec.Checksum) == nil {
			rec.LastIndexedMtime = time.UnixMilli(mtime)
			out = append(out, &rec)
		}
	}
	return out
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLiteStore)(nil)
