// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package sourcemap

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := NewCacheAt(t.TempDir())
	require.NoError(t, err)
	return cache
}

func testEntry(hash string) *CacheEntry {
	return &CacheEntry{
		WasmHash:   hash,
		HasSymbols: true,
		Mappings: map[uint64]SourceLocation{
			0x1234: {File: "src/lib.rs", Line: 42, Column: 10},
		},
		CreatedAt: 1234567890,
	}
}

func TestComputeWasmHash(t *testing.T) {
	wasmBytes := []byte{0x00, 0x61, 0x73, 0x6d}

	hash := ComputeWasmHash(wasmBytes)
	require.Len(t, hash, 64)
	require.Equal(t, hash, ComputeWasmHash(wasmBytes))

	// A single-bit change must change the hash.
	flipped := append([]byte(nil), wasmBytes...)
	flipped[0] ^= 0x01
	require.NotEqual(t, hash, ComputeWasmHash(flipped))
}

func TestStoreAndGet(t *testing.T) {
	cache := newTestCache(t)
	hash := ComputeWasmHash([]byte{0x00, 0x61, 0x73, 0x6d})

	require.NoError(t, cache.Store(testEntry(hash)))

	got := cache.Get(hash, false)
	require.NotNil(t, got)
	require.Equal(t, hash, got.WasmHash)
	require.True(t, got.HasSymbols)
	require.Equal(t, map[uint64]SourceLocation{
		0x1234: {File: "src/lib.rs", Line: 42, Column: 10},
	}, got.Mappings)
	require.EqualValues(t, 1234567890, got.CreatedAt)
}

func TestGetMissing(t *testing.T) {
	cache := newTestCache(t)
	require.Nil(t, cache.Get("nonexistent_hash_12345678901234567890123456789012", false))
}

func TestGetBypass(t *testing.T) {
	cache := newTestCache(t)
	hash := ComputeWasmHash([]byte{0x00, 0x61, 0x73, 0x6d})

	require.NoError(t, cache.Store(testEntry(hash)))
	require.NotNil(t, cache.Get(hash, false))

	// Bypass always misses, regardless of what is stored.
	require.Nil(t, cache.Get(hash, true))
	require.Nil(t, cache.Get("does-not-exist", true))
}

func TestStoreIdempotent(t *testing.T) {
	cache := newTestCache(t)
	hash := ComputeWasmHash([]byte{0x00, 0x61, 0x73, 0x6d})

	require.NoError(t, cache.Store(testEntry(hash)))
	require.NoError(t, cache.Store(testEntry(hash)))

	infos, err := cache.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.NotNil(t, cache.Get(hash, false))
}

func TestClear(t *testing.T) {
	cache := newTestCache(t)

	// Empty directory clears cleanly.
	count, err := cache.Clear()
	require.NoError(t, err)
	require.Zero(t, count)

	hashes := []string{
		ComputeWasmHash([]byte{0x01}),
		ComputeWasmHash([]byte{0x02}),
		ComputeWasmHash([]byte{0x03}),
	}
	for _, h := range hashes {
		require.NoError(t, cache.Store(testEntry(h)))
	}

	count, err = cache.Clear()
	require.NoError(t, err)
	require.Equal(t, len(hashes), count)

	for _, h := range hashes {
		require.Nil(t, cache.Get(h, false))
	}
}

func TestClearKeepsLockFiles(t *testing.T) {
	cache := newTestCache(t)
	hash := ComputeWasmHash([]byte{0x0A})
	require.NoError(t, cache.Store(testEntry(hash)))

	_, err := cache.Clear()
	require.NoError(t, err)

	// The lock file created for the entry survives the clear.
	_, err = os.Stat(filepath.Join(cache.Dir(), hash+".bin.lock"))
	require.NoError(t, err)
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	cache := newTestCache(t)
	hash := ComputeWasmHash([]byte{0x0B})

	require.NoError(t, os.WriteFile(
		filepath.Join(cache.Dir(), hash+".bin"),
		[]byte("not a gob stream"), 0o600))

	require.Nil(t, cache.Get(hash, false))
}

func TestList(t *testing.T) {
	cache := newTestCache(t)

	infos, err := cache.List()
	require.NoError(t, err)
	require.Empty(t, infos)

	hash := ComputeWasmHash([]byte{0x0C})
	require.NoError(t, cache.Store(testEntry(hash)))

	infos, err = cache.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, hash, infos[0].WasmHash)
	require.True(t, infos[0].HasSymbols)
	require.Equal(t, 1, infos[0].MappingCount)
	require.Positive(t, infos[0].FileSize)
}

func TestSize(t *testing.T) {
	cache := newTestCache(t)

	size, err := cache.Size()
	require.NoError(t, err)
	require.Zero(t, size)

	require.NoError(t, cache.Store(testEntry(ComputeWasmHash([]byte{0x0D}))))

	size, err = cache.Size()
	require.NoError(t, err)
	require.Positive(t, size)
}

func TestConcurrentWritersDistinctHashes(t *testing.T) {
	dir := t.TempDir()

	// Independent Cache values share the directory, as two traploc
	// processes would.
	var wg sync.WaitGroup
	hashes := []string{
		ComputeWasmHash([]byte{0x10}),
		ComputeWasmHash([]byte{0x20}),
	}
	errs := make([]error, len(hashes))
	for i, h := range hashes {
		wg.Add(1)
		go func(i int, h string) {
			defer wg.Done()
			cache, err := NewCacheAt(dir)
			if err != nil {
				errs[i] = err
				return
			}
			errs[i] = cache.Store(testEntry(h))
		}(i, h)
	}
	wg.Wait()

	cache, err := NewCacheAt(dir)
	require.NoError(t, err)
	for i, h := range hashes {
		require.NoError(t, errs[i])
		require.NotNil(t, cache.Get(h, false))
	}
}

func TestStoreWriteFailureRemovesTempFile(t *testing.T) {
	cache := newTestCache(t)
	hash := ComputeWasmHash([]byte{0x01})

	// Occupy the temp path with a directory so the write itself fails.
	tmpPath := filepath.Join(cache.Dir(), hash+".tmp")
	require.NoError(t, os.Mkdir(tmpPath, 0o755))

	require.Error(t, cache.Store(testEntry(hash)))

	// The failed write must not leave the temp path behind.
	_, err := os.Stat(tmpPath)
	require.True(t, os.IsNotExist(err))
}
