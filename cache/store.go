// Package cache stores compiled bytecode images in SQLite, keyed by a hash of
// the source text.
package cache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"github.com/zeebo/xxh3"
	_ "modernc.org/sqlite"

	"github.com/chazu/monkey/compiler"
	"github.com/chazu/monkey/vm"
)

var log = commonlog.GetLogger("monkey.cache")

// Store is a compile cache backed by a SQLite database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Key returns the cache key for a source text. It changes whenever the
// source or the image format version changes.
func Key(source string) string {
	sum := xxh3.HashString128(source).Bytes()
	return fmt.Sprintf("%s-v%d", hex.EncodeToString(sum[:]), vm.ImageVersion)
}

// Open opens (creating if needed) the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS bytecode (
		key     TEXT PRIMARY KEY,
		image   BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get looks up key. A miss returns (nil, false, nil).
func (s *Store) Get(ctx context.Context, key string) (*vm.Bytecode, bool, error) {
	var image []byte
	err := s.db.QueryRowContext(ctx, "SELECT image FROM bytecode WHERE key = ?", key).Scan(&image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying cache: %w", err)
	}

	bc, err := vm.UnmarshalBytecode(image)
	if err != nil {
		return nil, false, fmt.Errorf("decoding cached image %s: %w", key, err)
	}
	return bc, true, nil
}

// Put stores bc under key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key string, bc *vm.Bytecode) error {
	image, err := vm.MarshalBytecode(bc)
	if err != nil {
		return fmt.Errorf("encoding image: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO bytecode (key, image, created) VALUES (?, ?, ?)",
		key, image, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving image: %w", err)
	}
	return nil
}

// Len returns the number of cached images.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bytecode").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// Compile returns the bytecode for source, from the cache when present and
// otherwise by compiling it and storing the result. The boolean reports a
// cache hit. Compile errors are returned unchanged and are not cached. A
// cache that cannot be read or written only costs a recompile.
func (s *Store) Compile(ctx context.Context, source string) (*vm.Bytecode, bool, error) {
	key := Key(source)

	bc, ok, err := s.Get(ctx, key)
	if err != nil {
		log.Warningf("cache read failed, recompiling: %s", err)
	} else if ok {
		log.Debugf("cache hit %s", key)
		return bc, true, nil
	}

	log.Debugf("cache miss %s", key)
	bc, err = compiler.CompileSource(source)
	if err != nil {
		return nil, false, err
	}

	if err := s.Put(ctx, key, bc); err != nil {
		log.Warningf("cache write failed: %s", err)
	}
	return bc, false, nil
}
