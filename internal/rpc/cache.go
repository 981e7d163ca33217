// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dotandev/traploc/internal/logger"
)

// The fetch cache is a single SQLite database (~/.traploc/cache.db)
// holding raw RPC responses keyed by request. Entries carry a TTL and
// the network they came from so they can be pruned selectively.

var (
	dbMu sync.Mutex
	db   *sql.DB
)

const cacheSchema = `
CREATE TABLE IF NOT EXISTS rpc_cache (
	cache_key  TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	network    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rpc_cache_network ON rpc_cache(network);
`

// DefaultDBPath returns the fetch cache database location, honoring
// TRAPLOC_CACHE_DIR.
func DefaultDBPath() (string, error) {
	if dir := os.Getenv("TRAPLOC_CACHE_DIR"); dir != "" {
		return filepath.Join(dir, "cache.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".traploc", "cache.db"), nil
}

// InitCacheWithDB installs an already-open database handle (used by
// tests with :memory:) and creates the schema.
func InitCacheWithDB(d *sql.DB) error {
	if _, err := d.Exec(cacheSchema); err != nil {
		return fmt.Errorf("failed to create fetch cache schema: %w", err)
	}
	dbMu.Lock()
	defer dbMu.Unlock()
	if db != nil {
		_ = db.Close()
	}
	db = d
	return nil
}

// CloseCache closes the database handle if one is open.
func CloseCache() {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db != nil {
		_ = db.Close()
		db = nil
	}
}

// ensureDB opens (and memoizes) the on-disk database, creating the
// schema on first use.
func ensureDB() (*sql.DB, error) {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db != nil {
		return db, nil
	}

	path, err := DefaultDBPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fetch cache %q: %w", path, err)
	}
	if _, err := d.Exec(cacheSchema); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("failed to create fetch cache schema: %w", err)
	}

	db = d
	return db, nil
}

// Get returns the cached value for key, reporting found=false for
// missing or expired entries.
func Get(key string) (string, bool, error) {
	d, err := ensureDB()
	if err != nil {
		return "", false, err
	}

	var (
		value     string
		expiresAt int64
	)
	err = d.QueryRow("SELECT value, expires_at FROM rpc_cache WHERE cache_key = ?", key).
		Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if time.Now().UnixNano() > expiresAt {
		// Expired; remove lazily.
		if _, err := d.Exec("DELETE FROM rpc_cache WHERE cache_key = ?", key); err != nil {
			logger.Logger.Warn("Failed to evict expired cache entry", "key", key, "error", err)
		}
		return "", false, nil
	}
	return value, true, nil
}

// SetWithTTLAndNetwork upserts a cache entry with the given lifetime,
// tagged with the originating network.
func SetWithTTLAndNetwork(key, value string, ttl time.Duration, network string) error {
	d, err := ensureDB()
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = d.Exec(`
INSERT INTO rpc_cache (cache_key, value, network, created_at, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
	value = excluded.value,
	network = excluded.network,
	created_at = excluded.created_at,
	expires_at = excluded.expires_at`,
		key, value, network, now.UnixNano(), now.Add(ttl).UnixNano())
	return err
}

// CleanFilter selects fetch cache entries for removal. Filters combine
// with AND; at least one must be set.
type CleanFilter struct {
	OlderThan time.Duration
	Network   string
	All       bool
}

// CleanByFilter removes matching entries and returns how many were
// deleted.
func CleanByFilter(f CleanFilter) (int, error) {
	if !f.All && f.OlderThan == 0 && f.Network == "" {
		return 0, fmt.Errorf("no filter specified: use All, OlderThan, or Network")
	}

	d, err := ensureDB()
	if err != nil {
		return 0, err
	}

	query := "DELETE FROM rpc_cache WHERE 1=1"
	var args []any
	if !f.All {
		if f.OlderThan > 0 {
			query += " AND created_at < ?"
			args = append(args, time.Now().Add(-f.OlderThan).UnixNano())
		}
		if f.Network != "" {
			query += " AND network = ?"
			args = append(args, f.Network)
		}
	}

	res, err := d.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
