// Package store implements the persistent inverted-index backing: an
// embedded SQLite database holding the files, postings, meta, and
// path-search tables, guarded by a host-wide advisory file lock so that
// exactly one writer can mutate it at a time.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
)

// DirName is the on-disk directory source-fast keeps its index under,
// relative to a project root.
const DirName = ".source_fast"

// dbFileName is the SQLite database file within DirName.
const dbFileName = "index.db"

// lockFileName is the advisory lock file within DirName.
const lockFileName = ".lock"

// Meta keys required by the data model.
const (
	MetaSchemaVersion = "schema_version"
	MetaVCSHead       = "vcs_head"
	MetaRootPath      = "root_path"
	MetaLastIndexedAt = "last_indexed_at"
)

// Store wraps the database handle and the exclusive-writer file lock.
type Store struct {
	db          *sql.DB
	lock        *flock.Flock
	lockTimeout time.Duration
	dir         string
	logger      *zap.Logger
}

// FileRecord mirrors a row of the files table.
type FileRecord struct {
	ID          uint32
	Path        string
	Mtime       int64
	Size        int64
	ContentHash uint64
	TrigramSet  []uint32
}

// Open opens (creating if necessary) the store rooted at <root>/.source_fast.
// It returns a *errors.Error of KindCorrupt if the schema cannot be created
// or an existing database carries a schema version this build doesn't
// understand; callers (the Indexer) are expected to remove the directory and
// retry on that specific error. No integrity check is run: a file the
// driver cannot read fails earlier, while setting pragmas, as KindIOError.
// logger may be nil, in which case lock
// acquisition and Busy events go unlogged.
func Open(root string, lockTimeout time.Duration, logger *zap.Logger) (*Store, error) {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "mkdir", err).WithPath(dir)
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "open", err).WithPath(dbPath)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, srcerrors.New(srcerrors.KindIOError, "pragma", err)
		}
	}

	s := &Store{
		db:          db,
		lock:        flock.New(filepath.Join(dir, lockFileName)),
		lockTimeout: lockTimeout,
		dir:         dir,
		logger:      logger,
	}

	if err := s.ensureSchema(root); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the directory the store's files live under.
func (s *Store) Path() string {
	return s.dir
}

// Close releases the database handle. It does not remove on-disk files.
func (s *Store) Close() error {
	return s.db.Close()
}

// Remove deletes the store's on-disk directory under root entirely; this is
// the "drop and recreate" response to a Corrupt store. It does not close any
// open Store handle.
func Remove(root string) error {
	return os.RemoveAll(filepath.Join(root, DirName))
}

func (s *Store) ensureSchema(root string) error {
	for _, stmt := range schemaDDL {
		if _, err := s.db.Exec(stmt); err != nil {
			return srcerrors.New(srcerrors.KindCorrupt, "ensure_schema", err)
		}
	}

	version, ok, err := s.getMetaLocked(MetaSchemaVersion)
	if err != nil {
		return srcerrors.New(srcerrors.KindCorrupt, "read_schema_version", err)
	}
	if !ok {
		if _, err := s.db.Exec(`INSERT INTO meta(key, value) VALUES (?, ?)`,
			MetaSchemaVersion, fmt.Sprintf("%d", schemaVersion)); err != nil {
			return srcerrors.New(srcerrors.KindCorrupt, "write_schema_version", err)
		}
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO meta(key, value) VALUES (?, ?)`,
			MetaRootPath, root); err != nil {
			return srcerrors.New(srcerrors.KindCorrupt, "write_root_path", err)
		}
		return nil
	}

	if version != fmt.Sprintf("%d", schemaVersion) {
		return srcerrors.Corrupt
	}
	return nil
}

// GetMeta reads a metadata key outside any transaction.
func (s *Store) GetMeta(key string) (string, bool, error) {
	return s.getMetaLocked(key)
}

func (s *Store) getMetaLocked(key string) (string, bool, error) {
	var value sql.NullString
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value.String, true, nil
}

// acquireLock waits up to s.lockTimeout for the exclusive writer lock,
// retrying with bounded backoff, and fails with Busy if the window elapses.
func (s *Store) acquireLock(ctx context.Context) error {
	deadline := time.Now().Add(s.lockTimeout)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = s.lockTimeout

	operation := func() error {
		if time.Now().After(deadline) {
			return backoff.Permanent(srcerrors.Busy)
		}
		locked, err := s.lock.TryLock()
		if err != nil {
			return backoff.Permanent(srcerrors.New(srcerrors.KindIOError, "lock", err))
		}
		if !locked {
			return fmt.Errorf("store locked by another writer")
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		var se *srcerrors.Error
		if stderrors.As(err, &se) {
			if s.logger != nil {
				s.logger.Warn("store lock not acquired", zap.Duration("timeout", s.lockTimeout), zap.Error(se))
			}
			return se
		}
		if s.logger != nil {
			s.logger.Warn("store lock not acquired", zap.Duration("timeout", s.lockTimeout))
		}
		return srcerrors.Busy
	}
	if s.logger != nil {
		s.logger.Debug("store lock acquired")
	}
	return nil
}

func (s *Store) releaseLock() error {
	return s.lock.Unlock()
}
