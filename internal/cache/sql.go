package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const fragmentTable = "blockpage_fragments"

// SQLStore keeps fragments in a SQL table. It works with the "sqlite" and
// "postgres" drivers.
type SQLStore struct {
	db      *sql.DB
	backend string
}

// OpenSQLite opens (or creates) a SQLite fragment database at path.
func OpenSQLite(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "open", Err: err}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "open", Err: err}
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	return newSQLStore(db, "sqlite")
}

// OpenPostgres connects to PostgreSQL. An empty dsn falls back to
// DATABASE_URL.
func OpenPostgres(dsn string) (*SQLStore, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, &StoreError{Backend: "postgres", Op: "open", Err: errors.New("database connection required (set cache.dsn or DATABASE_URL env)")}
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &StoreError{Backend: "postgres", Op: "open", Err: err}
	}

	// Configure connection pool
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return newSQLStore(db, "postgres")
}

func newSQLStore(db *sql.DB, backend string) (*SQLStore, error) {
	s := &SQLStore{db: db, backend: backend}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &StoreError{Backend: backend, Op: "connect", Err: err}
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		hash TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	)`, fragmentTable)
	if _, err := db.ExecContext(ctx, create); err != nil {
		db.Close()
		return nil, &StoreError{Backend: backend, Op: "migrate", Err: err}
	}
	return s, nil
}

// rebind rewrites ? placeholders to $N for postgres.
func rebind(backend, query string) string {
	if backend != "postgres" {
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

func (s *SQLStore) err(op, hash string, err error) error {
	return &StoreError{Backend: s.backend, Op: op, Hash: hash, Err: err}
}

// Get reads a fragment.
func (s *SQLStore) Get(ctx context.Context, hash string) (string, bool, error) {
	q := rebind(s.backend, "SELECT content FROM "+fragmentTable+" WHERE hash = ?")
	var content string
	err := s.db.QueryRowContext(ctx, q, hash).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.err("get", hash, err)
	}
	return content, true, nil
}

// Exists reports whether hash has a row.
func (s *SQLStore) Exists(ctx context.Context, hash string) (bool, error) {
	q := rebind(s.backend, "SELECT 1 FROM "+fragmentTable+" WHERE hash = ?")
	var one int
	err := s.db.QueryRowContext(ctx, q, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, s.err("exists", hash, err)
	}
	return true, nil
}

// Put upserts a fragment.
func (s *SQLStore) Put(ctx context.Context, hash, content string) error {
	q := rebind(s.backend, "INSERT INTO "+fragmentTable+" (hash, content, updated_at) VALUES (?, ?, ?) "+
		"ON CONFLICT (hash) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at")
	if _, err := s.db.ExecContext(ctx, q, hash, content, time.Now().Unix()); err != nil {
		return s.err("put", hash, err)
	}
	return nil
}

// Delete removes a fragment.
func (s *SQLStore) Delete(ctx context.Context, hash string) error {
	q := rebind(s.backend, "DELETE FROM "+fragmentTable+" WHERE hash = ?")
	if _, err := s.db.ExecContext(ctx, q, hash); err != nil {
		return s.err("delete", hash, err)
	}
	return nil
}

// Flush removes every fragment.
func (s *SQLStore) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+fragmentTable); err != nil {
		return s.err("flush", "", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
