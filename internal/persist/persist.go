// Package persist durably stores one shard's vector records and graph
// nodes. It is modeled on the teacher's SQLite FTS5 index (WAL mode, pure
// Go modernc.org/sqlite driver, single-writer connection pool), adapted
// from a full-text index into a generic key/value store keyed by the
// logical namespaces a shard needs: "meta" (one row), "record/<id>",
// "node/<node_id>", and "entry" (the current entry point + max layer).
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// Key namespaces, matching the logical records a shard's write-through
// path produces on every mutating operation.
const (
	KeyMeta  = "meta"
	KeyEntry = "entry"
)

// RecordKey returns the logical key for a record/<id> row.
func RecordKey(id string) string { return "record/" + id }

// NodeKey returns the logical key for a node/<node_id> row.
func NodeKey(nodeID uint64) string { return fmt.Sprintf("node/%d", nodeID) }

// Store is a durable key/value namespace backed by SQLite in WAL mode.
// Every Put/Delete pair within a Batch call commits as a single
// transaction, giving the shard controller the atomic multi-key commit
// the write-through path needs.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open creates or opens the SQLite-backed store at dir/data.db, plus a
// gofrs/flock advisory lock file at dir/data.db.lock guarding against a
// second process opening the same shard concurrently (SQLite's own
// locking only protects against concurrent writers, not concurrent
// full-process ownership of the same shard).
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "data.db")
	lockPath := dbPath + ".lock"

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("persist: acquire shard lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("persist: shard at %s is already open by another process", dir)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("persist: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			_ = fl.Unlock()
			return nil, fmt.Errorf("persist: set pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: dbPath, lock: fl}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		_ = fl.Unlock()
		return nil, fmt.Errorf("persist: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Entry is one key/value pair within a Batch write.
type Entry struct {
	Key       string
	Value     []byte
	Tombstone bool // true deletes Key instead of setting Value
}

// Batch atomically applies entries to the kv table within a single SQLite
// transaction, so a crash mid-batch never leaves a partially-applied
// write: SQLite's own transaction log is the atomicity mechanism here,
// there is no separate write-ahead journal table to replay.
func (s *Store) Batch(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if e.Tombstone {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, e.Key); err != nil {
				return fmt.Errorf("persist: delete %s: %w", e.Key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv(key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			e.Key, e.Value); err != nil {
			return fmt.Errorf("persist: put %s: %w", e.Key, err)
		}
	}

	return tx.Commit()
}

// ReplaceNamespaces atomically clears every key under each of
// deletePrefixes and then applies newEntries, all within one transaction.
// This is what Compact uses to swap an entire shard's node/* and
// record/* rows for the rebuilt set in a single commit, rather than
// issuing a delete-everything batch followed by a separate insert batch
// that a crash could land between.
func (s *Store) ReplaceNamespaces(ctx context.Context, deletePrefixes []string, newEntries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persist: begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, prefix := range deletePrefixes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key >= ? AND key < ?`, prefix, prefix+"\xff"); err != nil {
			return fmt.Errorf("persist: clear prefix %s: %w", prefix, err)
		}
	}
	for _, e := range newEntries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv(key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			e.Key, e.Value); err != nil {
			return fmt.Errorf("persist: put %s: %w", e.Key, err)
		}
	}

	return tx.Commit()
}

// Get returns the raw bytes stored at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persist: get %s: %w", key, err)
	}
	return value, true, nil
}

// ScanPrefix returns every key/value pair whose key starts with prefix,
// used at startup to replay all record/* and node/* rows.
func (s *Store) ScanPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE key >= ? AND key < ?`,
		prefix, prefix+"\xff")
	if err != nil {
		return nil, fmt.Errorf("persist: scan prefix %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("persist: scan row: %w", err)
		}
		out[key] = value
	}
	return out, rows.Err()
}

// Checkpoint forces the WAL back into the main database file, used before
// taking an external backup or before a clean shutdown.
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close releases the database connection and the inter-process lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	closeErr := s.db.Close()
	lockErr := s.lock.Unlock()
	if closeErr != nil {
		return closeErr
	}
	return lockErr
}
