package geocode

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Cache is a persistent address-lookup cache backed by SQLite. Building
// addresses are stable, so re-runs and backfills reuse earlier lookups
// instead of re-querying the geocoding service. Misses are cached too: an
// address the service could not resolve last month will not resolve today.
type Cache struct {
	conn *sql.DB
	path string
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS geocode_cache (
	query     TEXT PRIMARY KEY,
	address   TEXT NOT NULL DEFAULT '',
	building  TEXT NOT NULL DEFAULT '',
	lat       REAL NOT NULL DEFAULT 0,
	lon       REAL NOT NULL DEFAULT 0,
	matches   INTEGER NOT NULL DEFAULT 0,
	cached_at TEXT NOT NULL
);
`

// OpenCache creates or opens the cache database at the given path.
func OpenCache(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec(cacheSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}

	return &Cache{conn: conn, path: path}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.conn.Close()
}

// Get looks up a cached result. The result is nil for a cached miss. The
// second return reports whether the query was cached at all.
func (c *Cache) Get(query string) (*Result, bool, error) {
	row := c.conn.QueryRow(
		`SELECT address, building, lat, lon, matches FROM geocode_cache WHERE query = ?`, query)

	var r Result
	err := row.Scan(&r.Address, &r.Building, &r.Lat, &r.Lon, &r.Matches)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache: %w", err)
	}
	if r.Matches == 0 {
		return nil, true, nil
	}
	return &r, true, nil
}

// Put stores a lookup result. A nil result records a miss.
func (c *Cache) Put(query string, r *Result) error {
	now := time.Now().UTC().Format(time.RFC3339)

	if r == nil {
		_, err := c.conn.Exec(
			`INSERT OR REPLACE INTO geocode_cache (query, cached_at) VALUES (?, ?)`, query, now)
		if err != nil {
			return fmt.Errorf("writing cache miss: %w", err)
		}
		return nil
	}

	_, err := c.conn.Exec(
		`INSERT OR REPLACE INTO geocode_cache (query, address, building, lat, lon, matches, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		query, r.Address, r.Building, r.Lat, r.Lon, r.Matches, now)
	if err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return nil
}
