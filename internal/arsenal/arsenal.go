// Package arsenal is the persistent parts library. Every component the
// pipeline sources from the web, a vision pass, or manual seeding lands
// here, so later builds can resolve parts without touching the network.
//
// Storage is a single SQLite file. With cgo the sqlite-vec extension is
// compiled in and similarity search runs as a vec0 KNN query; without it
// the store ranks stored embedding blobs in process, and when no
// embedding engine is attached at all it degrades to keyword matching.
package arsenal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quadforge/internal/embedding"
	"quadforge/internal/logging"
)

// Store is the SQLite-backed parts and project library.
type Store struct {
	db       *sql.DB
	mu       sync.RWMutex
	path     string
	embedder embedding.Engine
	dims     int

	// vectorExt is true when the sqlite-vec extension answered the
	// version probe and the vec0 index is usable.
	vectorExt bool
}

// Open opens (or creates) the arsenal database at path. The embedding
// engine is optional: with nil the store still works, it just answers
// SimilarParts with keyword matching instead of vector ranking.
func Open(path string, embedder embedding.Engine) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryArsenal, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create arsenal directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open arsenal database: %w", err)
	}

	// SQLite handles one writer at a time. A single pooled connection
	// avoids SQLITE_BUSY churn between the pipeline and the TUI.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.ArsenalDebug("pragma failed (%s): %v", pragma, err)
		}
	}

	s := &Store{
		db:       db,
		path:     path,
		embedder: embedder,
		dims:     embedding.DefaultDims,
	}
	if embedder != nil {
		s.dims = embedder.Dimensions()
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	s.detectVectorExt()
	if s.vectorExt {
		if err := s.rebuildVectorIndex(); err != nil {
			logging.ArsenalWarn("vector index rebuild failed, continuing without it: %v", err)
			s.vectorExt = false
		}
	}

	logging.Arsenal("Arsenal open at %s (vector search: %v)", path, s.vectorExt)
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// HasVectorIndex reports whether KNN queries run inside SQLite.
func (s *Store) HasVectorIndex() bool {
	return s.vectorExt
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS parts (
		id           TEXT PRIMARY KEY,
		category     TEXT NOT NULL,
		product_name TEXT NOT NULL UNIQUE,
		url          TEXT,
		image_url    TEXT,
		price        REAL,
		currency     TEXT,
		vendor       TEXT,
		description  TEXT,
		specs_json   TEXT,
		provenance   TEXT,
		embedding    BLOB,
		created_at   TEXT,
		updated_at   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_parts_category ON parts(category)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		intent      TEXT,
		design_json TEXT,
		status      TEXT,
		created_at  TEXT,
		updated_at  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS build_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL,
		generation INTEGER,
		verdict    TEXT,
		notes      TEXT,
		ts         TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_build_log_project ON build_log(project_id)`,
}

func (s *Store) initSchema() error {
	// Statements run one at a time; multi-statement Exec support
	// differs between the two drivers.
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize arsenal schema: %w", err)
		}
	}
	return nil
}

// detectVectorExt probes for sqlite-vec. The probe fails cleanly on the
// pure-Go driver, which never loads the extension.
func (s *Store) detectVectorExt() {
	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		logging.ArsenalDebug("sqlite-vec not available: %v", err)
		s.vectorExt = false
		return
	}
	ddl := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS parts_vec USING vec0(embedding float[%d] distance_metric=cosine)",
		s.dims)
	if _, err := s.db.Exec(ddl); err != nil {
		logging.ArsenalWarn("vec0 table creation failed: %v", err)
		s.vectorExt = false
		return
	}
	logging.ArsenalDebug("sqlite-vec %s active, vec0 index ready", version)
	s.vectorExt = true
}

// rebuildVectorIndex reloads the vec0 index from the embedding column.
// The column is the source of truth so a database written by a build
// without the extension picks up KNN the first time one with it opens.
func (s *Store) rebuildVectorIndex() error {
	if _, err := s.db.Exec("DELETE FROM parts_vec"); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"INSERT INTO parts_vec(rowid, embedding) SELECT rowid, embedding FROM parts WHERE embedding IS NOT NULL AND length(embedding) = ?",
		s.dims*4)
	return err
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// execWrite serializes mutating statements behind the store mutex.
func (s *Store) execWrite(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.ExecContext(ctx, query, args...)
}
