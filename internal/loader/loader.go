// Package loader is the persisted module store: it keys a compiled
// bytecode.Module by the content hash of its serialized form and saves it
// to either of two pluggable SQL backends, selected by the DSN scheme in
// internal/config.
package loader

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"golang.org/x/crypto/blake2b"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"avenir/internal/bytecode"
)

// ErrModuleNotFound indicates the requested content hash isn't in the store.
var ErrModuleNotFound = errors.New("loader: module not found")

// Store persists compiled modules keyed by content hash.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open opens the backend named by dsn's scheme ("sqlite" or "postgres")
// and ensures the modules table exists.
func Open(dsn string) (*Store, error) {
	driver, dataSource, err := resolveDriver(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("loader: opening %s store: %w", driver, err)
	}

	ddl := "CREATE TABLE IF NOT EXISTS modules (hash TEXT PRIMARY KEY, data BLOB NOT NULL)"
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("loader: creating modules table: %w", err)
	}

	log.Printf("loader: opened %s module store", driver)
	return &Store{db: db, postgres: driver == "postgres"}, nil
}

func resolveDriver(dsn string) (driver, dataSource string, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("loader: parsing dsn %q: %w", dsn, err)
	}
	switch u.Scheme {
	case "sqlite":
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), nil
	case "postgres", "postgresql":
		return "postgres", dsn, nil
	default:
		return "", "", fmt.Errorf("loader: unsupported store dsn scheme %q", u.Scheme)
	}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ContentHash returns the blake2b-256 digest of a module's serialized form,
// used as its store key and for idempotence verification: compiling the
// same source twice with debug info off must produce the same hash.
func ContentHash(m *bytecode.Module) (string, error) {
	data, err := encode(m)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%x", sum), nil
}

func encode(m *bytecode.Module) ([]byte, error) {
	var buf bytes.Buffer
	if err := bytecode.WriteModule(&buf, m); err != nil {
		return nil, fmt.Errorf("loader: serializing module: %w", err)
	}
	return buf.Bytes(), nil
}

// Save persists m under its content hash and returns that hash. Saving the
// same content twice is a no-op on the second call.
func (s *Store) Save(m *bytecode.Module) (string, error) {
	hash, err := ContentHash(m)
	if err != nil {
		return "", err
	}
	data, err := encode(m)
	if err != nil {
		return "", err
	}

	if _, err := s.db.Exec(s.rebind("DELETE FROM modules WHERE hash = ?"), hash); err != nil {
		return "", fmt.Errorf("loader: clearing prior entry for %s: %w", hash, err)
	}
	if _, err := s.db.Exec(s.rebind("INSERT INTO modules (hash, data) VALUES (?, ?)"), hash, data); err != nil {
		return "", fmt.Errorf("loader: saving module %s: %w", hash, err)
	}

	log.Printf("loader: saved module %s (%d bytes)", hash, len(data))
	return hash, nil
}

// Load retrieves and deserializes the module stored under hash.
func (s *Store) Load(hash string) (*bytecode.Module, error) {
	var data []byte
	row := s.db.QueryRow(s.rebind("SELECT data FROM modules WHERE hash = ?"), hash)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, fmt.Errorf("loader: loading module %s: %w", hash, err)
	}

	m, err := bytecode.ReadModule(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loader: decoding module %s: %w", hash, err)
	}
	return m, nil
}

// rebind rewrites "?" placeholders to lib/pq's "$1"-style ordinal form when
// the store's backend is Postgres; modernc.org/sqlite accepts "?" as-is.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
