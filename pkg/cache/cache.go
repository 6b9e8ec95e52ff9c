// Package cache persists orchestration results keyed by feature-vector
// hash. Entries are write-once: a key is only ever associated with one
// value, so concurrent writers racing on the same key are harmless.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	// DataFileName is the default SQLite file name.
	DataFileName = "cache.db"

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

//go:embed sql/*.sql
var ddl embed.FS

// Store is a TTL result cache over database/sql. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// OpenSQLite opens (and if needed creates) a file-backed store.
func OpenSQLite(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("path not specified")
	}
	return open(driverSQLite, path)
}

// OpenPostgres connects to an existing Postgres database and ensures the
// cache table exists.
func OpenPostgres(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn not specified")
	}
	return open(driverPostgres, dsn)
}

func open(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	b, err := ddl.ReadFile(fmt.Sprintf("sql/%s.sql", driver))
	if err != nil {
		return nil, fmt.Errorf("reading schema for %s: %w", driver, err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, driver: driver, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key if present and not expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	q := s.rebind("SELECT val FROM results WHERE key = ? AND (expires_at = 0 OR expires_at > ?)")

	var val []byte
	err := s.db.QueryRowContext(ctx, q, key, s.now().Unix()).Scan(&val)
	switch {
	case err == sql.ErrNoRows:
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return val, true, nil
}

// Set stores val under key. A ttl of zero or less means the entry never
// expires. An existing entry for the key is left untouched.
func (s *Store) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	now := s.now()
	var expires int64
	if ttl > 0 {
		expires = now.Add(ttl).Unix()
	}

	q := s.rebind("INSERT INTO results (key, val, created_at, expires_at) VALUES (?, ?, ?, ?) ON CONFLICT (key) DO NOTHING")
	if _, err := s.db.ExecContext(ctx, q, key, val, now.Unix(), expires); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns the number removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	q := s.rebind("DELETE FROM results WHERE expires_at != 0 AND expires_at <= ?")
	res, err := s.db.ExecContext(ctx, q, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged rows: %w", err)
	}
	return n, nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int64 `json:"entries" yaml:"entries"`
	Expired int64 `json:"expired" yaml:"expired"`
}

// GetStats returns entry counts, including entries past their TTL that
// have not been purged yet.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	q := s.rebind(`SELECT COUNT(*),
		COUNT(CASE WHEN expires_at != 0 AND expires_at <= ? THEN 1 END)
		FROM results`)

	var st Stats
	if err := s.db.QueryRowContext(ctx, q, s.now().Unix()).Scan(&st.Entries, &st.Expired); err != nil {
		return nil, fmt.Errorf("reading cache stats: %w", err)
	}
	return &st, nil
}

// rebind rewrites ? placeholders to the $n form Postgres expects.
func (s *Store) rebind(q string) string {
	if s.driver != driverPostgres {
		return q
	}
	var out []byte
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			out = append(out, fmt.Sprintf("$%d", n)...)
			continue
		}
		out = append(out, q[i])
	}
	return string(out)
}
