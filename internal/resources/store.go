package resources

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	// Pure-Go SQLite driver for database/sql (used by SQLStore).
	_ "github.com/glebarez/sqlite"
)

// Store persists name → file path registrations.
type Store interface {
	Put(name, path string) error
	Delete(name string) error
	Get(name string) (string, bool, error)
	Names() ([]string, error)
	Close() error
}

// MemoryStore keeps registrations in a map. It is the default store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (m *MemoryStore) Put(name, path string) error {
	m.mu.Lock()
	m.entries[name] = path
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(name string) error {
	m.mu.Lock()
	delete(m.entries, name)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.entries[name]
	return p, ok, nil
}

func (m *MemoryStore) Names() ([]string, error) {
	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for n := range m.entries {
		names = append(names, n)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Close() error { return nil }

// SQLStore keeps registrations in a SQLite table so they survive restarts.
type SQLStore struct {
	DB *sql.DB
}

var _ Store = (*SQLStore)(nil)

const schema = `CREATE TABLE IF NOT EXISTS local_resources (
	name TEXT PRIMARY KEY,
	path TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// OpenSQLStore opens (or creates) the SQLite database at dbPath.
func OpenSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening resource database %q: %w", dbPath, err)
	}
	// Enable WAL mode for better concurrent access.
	_, _ = db.Exec("PRAGMA journal_mode=WAL")
	return newSQLStore(db)
}

// NewSQLStoreMemory creates an in-memory SQLStore for testing.
func NewSQLStoreMemory() (*SQLStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory resource database: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)
	return newSQLStore(db)
}

func newSQLStore(db *sql.DB) (*SQLStore, error) {
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating resource table: %w", err)
	}
	return &SQLStore{DB: db}, nil
}

func (s *SQLStore) Put(name, path string) error {
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO local_resources (name, path, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`, name, path)
	if err != nil {
		return fmt.Errorf("storing resource %q: %w", name, err)
	}
	return nil
}

func (s *SQLStore) Delete(name string) error {
	if _, err := s.DB.Exec(`DELETE FROM local_resources WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting resource %q: %w", name, err)
	}
	return nil
}

func (s *SQLStore) Get(name string) (string, bool, error) {
	var p string
	err := s.DB.QueryRow(`SELECT path FROM local_resources WHERE name = ?`, name).Scan(&p)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading resource %q: %w", name, err)
	}
	return p, true, nil
}

func (s *SQLStore) Names() ([]string, error) {
	rows, err := s.DB.Query(`SELECT name FROM local_resources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing resources: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
