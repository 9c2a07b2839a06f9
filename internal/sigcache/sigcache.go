// Package sigcache caches computed library-tree signatures between runs.
// The library rarely changes, so repeat analyses can skip re-hashing files
// whose size and mtime are unchanged.
package sigcache

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"
)

// Cache is a SQLite-backed signature store keyed by (path, size, mtime).
type Cache struct {
	db   *sql.DB
	path string

	// Batch buffer for Put calls.
	mu    sync.Mutex
	batch []entry
}

type entry struct {
	path      string
	size      int64
	mtimeNano int64
	partial   string
	full      string
}

const flushThreshold = 256

// Open opens (or creates) the cache database for the given library root.
// The DB is stored at $XDG_CACHE_HOME/shelfgap/<root-id>.db or
// ~/.cache/shelfgap/<root-id>.db.
func Open(libraryRoot string) (*Cache, error) {
	dbPath := cachePath(rootID(libraryRoot))

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	c := &Cache{db: db, path: dbPath}
	if err := c.init(libraryRoot); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init(root string) error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS signatures (
			path    TEXT PRIMARY KEY,
			size    INTEGER NOT NULL,
			mtime   INTEGER NOT NULL,
			partial TEXT NOT NULL,
			full    TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES ('library_root', ?)", root)
	if err != nil {
		return fmt.Errorf("store meta: %w", err)
	}
	return nil
}

// Get returns the cached partial and full hashes for a file, matching on
// size and mtime so stale entries are treated as misses. Either hash may be
// empty if it was never computed in the run that stored the entry.
func (c *Cache) Get(path string, size, mtimeNano int64) (partial, full string, ok bool) {
	var storedSize, storedMtime int64
	err := c.db.QueryRow(
		"SELECT size, mtime, partial, full FROM signatures WHERE path = ?", path,
	).Scan(&storedSize, &storedMtime, &partial, &full)
	if err != nil {
		return "", "", false
	}
	if storedSize != size || storedMtime != mtimeNano {
		return "", "", false
	}
	return partial, full, true
}

// Put records computed hashes for a file. Writes are batched; an existing
// entry for the path is replaced, which also evicts stale data.
func (c *Cache) Put(path string, size, mtimeNano int64, partial, full string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.batch = append(c.batch, entry{
		path:      path,
		size:      size,
		mtimeNano: mtimeNano,
		partial:   partial,
		full:      full,
	})
	if len(c.batch) >= flushThreshold {
		return c.flushLocked()
	}
	return nil
}

// Flush writes any pending batch entries to the database.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Cache) flushLocked() error {
	if len(c.batch) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO signatures (path, size, mtime, partial, full) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range c.batch {
		if _, err := stmt.Exec(e.path, e.size, e.mtimeNano, e.partial, e.full); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", e.path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	c.batch = c.batch[:0]
	return nil
}

// Close flushes any pending writes and closes the database.
func (c *Cache) Close() error {
	flushErr := c.Flush()
	closeErr := c.db.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Path returns the path to the cache database file.
func (c *Cache) Path() string {
	return c.path
}

// rootID computes a deterministic cache ID from the library root path.
func rootID(root string) string {
	h := blake3.New()
	h.Write([]byte(root))
	digest := h.Sum(nil)
	return hex.EncodeToString(digest[:8])
}

func cachePath(id string) string {
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "shelfgap-"+id+".db")
		}
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, "shelfgap", id+".db")
}
