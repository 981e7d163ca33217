// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package sourcemap maps WASM instruction offsets back to contract
// source locations and caches the work across debugging sessions.
//
// The cache is content-addressed: entries are keyed by the SHA-256 hash
// of the module bytes, so identical modules share one cache file no
// matter where they live on disk. Entries are written atomically (temp
// file + rename) under an OS-level advisory file lock, making the cache
// safe against concurrent traploc processes. Every failure on the read
// path degrades to a miss; the worst case is a redundant decode.
package sourcemap

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dotandev/traploc/internal/logger"
)

const cacheDirName = "sourcemaps"

// CacheEntry is the persisted resolution state for one WASM module.
type CacheEntry struct {
	// WasmHash is the 64-character lowercase hex SHA-256 of the module.
	WasmHash string
	// HasSymbols records whether the module carried debug sections when
	// the entry was built. A cached entry is only trusted when this
	// matches the flag recomputed for the module being looked up.
	HasSymbols bool
	// Mappings holds previously resolved offset -> location rows.
	Mappings map[uint64]SourceLocation
	// CreatedAt is a unix timestamp.
	CreatedAt int64
}

// EntryInfo is lightweight per-entry metadata for inventory listings.
type EntryInfo struct {
	WasmHash     string
	HasSymbols   bool
	MappingCount int
	CreatedAt    int64
	FileSize     int64
}

// Cache is a content-addressed, cross-process-safe store of decoded
// source mappings.
type Cache struct {
	dir string
}

// DefaultCacheDir returns the cache root, honoring TRAPLOC_CACHE_DIR and
// falling back to ~/.traploc/cache/sourcemaps.
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv("TRAPLOC_CACHE_DIR"); dir != "" {
		return filepath.Join(dir, cacheDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".traploc", "cache", cacheDirName), nil
}

// NewCache creates a cache rooted at the default directory.
func NewCache() (*Cache, error) {
	dir, err := DefaultCacheDir()
	if err != nil {
		return nil, err
	}
	return NewCacheAt(dir)
}

// NewCacheAt creates a cache rooted at dir, creating it if needed.
func NewCacheAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %q: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// ComputeWasmHash returns the hex-encoded SHA-256 of the module bytes.
func ComputeWasmHash(wasmBytes []byte) string {
	sum := sha256.Sum256(wasmBytes)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) entryPath(wasmHash string) string {
	return filepath.Join(c.dir, wasmHash+".bin")
}

func lockPath(entryPath string) string {
	return entryPath + ".lock"
}

// Get returns the cached entry for wasmHash, or nil on a miss. With
// bypass set it returns nil without touching disk, forcing a fresh
// decode. Any I/O, locking, or decoding failure is treated as a miss.
func (c *Cache) Get(wasmHash string, bypass bool) *CacheEntry {
	if bypass {
		logger.Logger.Debug("Cache bypassed, re-decoding WASM symbols", "wasm_hash", shortHash(wasmHash))
		return nil
	}

	path := c.entryPath(wasmHash)
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	// Shared lock so a reader never races a writer mid-replace.
	lf, err := acquireLock(lockPath(path), false)
	if err != nil {
		logger.Logger.Warn("Failed to acquire read lock", "wasm_hash", shortHash(wasmHash), "error", err)
		return nil
	}
	defer releaseLock(lf)

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Logger.Warn("Failed to read cache entry", "path", path, "error", err)
		return nil
	}

	var entry CacheEntry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		// Corrupt or foreign-format entry; it will be regenerated.
		logger.Logger.Warn("Corrupt cache entry, ignoring", "path", path, "error", err)
		return nil
	}

	logger.Logger.Debug("Cache hit", "wasm_hash", shortHash(wasmHash), "mappings", len(entry.Mappings))
	return &entry
}

// Store persists entry, replacing any previous file for the same hash.
// The write goes to a temp file in the cache directory and is committed
// with an atomic rename, so concurrent readers never observe a partial
// file.
func (c *Cache) Store(entry *CacheEntry) error {
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	path := c.entryPath(entry.WasmHash)

	lf, err := acquireLock(lockPath(path), true)
	if err != nil {
		return fmt.Errorf("failed to acquire write lock: %w", err)
	}
	defer releaseLock(lf)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	tmpPath := filepath.Join(c.dir, entry.WasmHash+".tmp")
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}

	logger.Logger.Debug("Cached source map", "wasm_hash", shortHash(entry.WasmHash), "mappings", len(entry.Mappings))
	return nil
}

// Clear removes every cache entry file (lock files stay) and returns
// the number removed.
func (c *Cache) Clear() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	count := 0
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".bin") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, de.Name())); err != nil {
			return count, fmt.Errorf("failed to delete cache file: %w", err)
		}
		count++
	}
	return count, nil
}

// List returns metadata for every readable entry without keeping the
// full mapping tables around.
func (c *Cache) List() ([]EntryInfo, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var infos []EntryInfo
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".bin") {
			continue
		}
		entry := c.Get(strings.TrimSuffix(de.Name(), ".bin"), false)
		if entry == nil {
			continue
		}
		var size int64
		if fi, err := de.Info(); err == nil {
			size = fi.Size()
		}
		infos = append(infos, EntryInfo{
			WasmHash:     entry.WasmHash,
			HasSymbols:   entry.HasSymbols,
			MappingCount: len(entry.Mappings),
			CreatedAt:    entry.CreatedAt,
			FileSize:     size,
		})
	}
	return infos, nil
}

// Size returns the total size in bytes of all files in the cache
// directory.
func (c *Cache) Size() (int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var total int64
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		total += fi.Size()
	}
	return total, nil
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
