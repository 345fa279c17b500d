package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/archivetools/indexd/internal/symsearch"
)

// toolCacheSize bounds the in-process caches of registered tools.
const toolCacheSize = 256

// Store is the SQLite-backed IndexerStorage. The ctags symbol index is
// maintained in a Bleve index beside the database.
type Store struct {
	mu      sync.RWMutex
	db      *sql.DB
	path    string
	lock    *DirLock
	symbols *symsearch.Index
	closed  bool

	// toolCache maps tool identity (name+version+fingerprint) to its
	// registered row; toolIDCache maps the numeric id back to the tool.
	toolCache   *lru.Cache[string, ToolInfo]
	toolIDCache *lru.Cache[int64, ToolInfo]
}

// Verify interface implementation at compile time
var _ IndexerStorage = (*Store)(nil)

// Open opens or creates the indexer storage in the given data directory.
// An empty dir creates an in-memory store for testing. The directory is
// guarded by a cross-process lock; a second opener fails fast instead of
// corrupting the database.
func Open(dir string) (*Store, error) {
	var (
		dsn     string
		lock    *DirLock
		symPath string
	)
	if dir == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
		lock = NewDirLock(dir)
		ok, err := lock.TryLock()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("data directory %s is locked by another process", dir)
		}
		dsn = filepath.Join(dir, "indexer.db")
		symPath = filepath.Join(dir, "symbols.bleve")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		unlock(lock)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite (DSN params are
	// ignored by the driver)
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			unlock(lock)
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	symbols, err := symsearch.Open(symPath)
	if err != nil {
		_ = db.Close()
		unlock(lock)
		return nil, err
	}

	toolCache, _ := lru.New[string, ToolInfo](toolCacheSize)
	toolIDCache, _ := lru.New[int64, ToolInfo](toolCacheSize)

	s := &Store{
		db:          db,
		path:        dir,
		lock:        lock,
		symbols:     symbols,
		toolCache:   toolCache,
		toolIDCache: toolIDCache,
	}

	if err := s.initSchema(); err != nil {
		_ = symbols.Close()
		_ = db.Close()
		unlock(lock)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func unlock(lock *DirLock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}

// initSchema creates the tool and per-kind result tables.
func (s *Store) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- Registered indexer tools; identity is (name, version, configuration),
	-- with the configuration compared via its canonical-JSON fingerprint.
	CREATE TABLE IF NOT EXISTS tools (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		version TEXT NOT NULL,
		configuration TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (name, version, fingerprint)
	);

	-- Scalar kinds: one row per (content, tool)
	CREATE TABLE IF NOT EXISTS content_mimetype (
		content_id TEXT NOT NULL,
		mimetype TEXT NOT NULL,
		encoding TEXT NOT NULL,
		tool_id INTEGER NOT NULL REFERENCES tools(id),
		PRIMARY KEY (content_id, tool_id)
	);

	CREATE TABLE IF NOT EXISTS content_language (
		content_id TEXT NOT NULL,
		lang TEXT NOT NULL,
		tool_id INTEGER NOT NULL REFERENCES tools(id),
		PRIMARY KEY (content_id, tool_id)
	);

	CREATE TABLE IF NOT EXISTS content_metadata (
		content_id TEXT NOT NULL,
		metadata TEXT NOT NULL,
		tool_id INTEGER NOT NULL REFERENCES tools(id),
		PRIMARY KEY (content_id, tool_id)
	);

	-- Multi-valued kinds: one row per element, unique over the full tuple
	CREATE TABLE IF NOT EXISTS content_ctags (
		content_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		line INTEGER NOT NULL,
		lang TEXT NOT NULL,
		tool_id INTEGER NOT NULL REFERENCES tools(id),
		UNIQUE (content_id, tool_id, name, kind, line, lang)
	);
	CREATE INDEX IF NOT EXISTS idx_content_ctags_key
		ON content_ctags (content_id, tool_id);

	CREATE TABLE IF NOT EXISTS content_license (
		content_id TEXT NOT NULL,
		license TEXT NOT NULL,
		tool_id INTEGER NOT NULL REFERENCES tools(id),
		UNIQUE (content_id, tool_id, license)
	);
	CREATE INDEX IF NOT EXISTS idx_content_license_key
		ON content_license (content_id, tool_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// missing returns, in input order, the content ids from keys that have no
// row in table under the paired tool id.
func (s *Store) missing(ctx context.Context, table string, keys []Key) ([]ContentID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("storage is closed")
	}
	if len(keys) == 0 {
		return nil, nil
	}

	stmt, err := s.db.PrepareContext(ctx,
		`SELECT 1 FROM `+table+` WHERE content_id = ? AND tool_id = ? LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare existence check: %w", err)
	}
	defer stmt.Close()

	var absent []ContentID
	for _, key := range keys {
		var one int
		err := stmt.QueryRowContext(ctx, key.ID.String(), key.ToolID).Scan(&one)
		switch {
		case err == sql.ErrNoRows:
			absent = append(absent, key.ID)
		case err != nil:
			return nil, fmt.Errorf("existence check failed: %w", err)
		}
	}
	return absent, nil
}

// inPlaceholders renders "?,?,..." for n values.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// idArgs converts content ids to driver arguments in hex form.
func idArgs(ids []ContentID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	return args
}

// Close releases the database, the symbol index and the directory lock.
// Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if err := s.symbols.Close(); err != nil {
		firstErr = err
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
