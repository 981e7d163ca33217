// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	require.NoError(t, InitCacheWithDB(db))
	t.Cleanup(CloseCache)
}

func TestGetMissing(t *testing.T) {
	setupTestDB(t)

	_, found, err := Get("nope")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSetAndGet(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetWithTTLAndNetwork("k1", "v1", time.Hour, "mainnet"))

	v, found, err := Get("k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", v)
}

func TestSetOverwrites(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetWithTTLAndNetwork("k1", "v1", time.Hour, "mainnet"))
	require.NoError(t, SetWithTTLAndNetwork("k1", "v2", time.Hour, "testnet"))

	v, found, err := Get("k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", v)
}

func TestExpiredEntryIsAMiss(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetWithTTLAndNetwork("k1", "v1", -time.Second, "mainnet"))

	_, found, err := Get("k1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCleanByFilterNoFilter(t *testing.T) {
	setupTestDB(t)
	_, err := CleanByFilter(CleanFilter{})
	require.Error(t, err)
}

func TestCleanByFilterAll(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetWithTTLAndNetwork("k1", "v1", time.Hour, "mainnet"))
	require.NoError(t, SetWithTTLAndNetwork("k2", "v2", time.Hour, "testnet"))

	removed, err := CleanByFilter(CleanFilter{All: true})
	require.NoError(t, err)
	require.Equal(t, 2, removed)
}

func TestCleanByFilterByNetwork(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetWithTTLAndNetwork("k1", "v1", time.Hour, "mainnet"))
	require.NoError(t, SetWithTTLAndNetwork("k2", "v2", time.Hour, "testnet"))

	removed, err := CleanByFilter(CleanFilter{Network: "testnet"})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, found, err := Get("k1")
	require.NoError(t, err)
	require.True(t, found)
}

func TestCleanByFilterByAge(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetWithTTLAndNetwork("old", "v", time.Hour, "mainnet"))

	d, err := ensureDB()
	require.NoError(t, err)
	oldTime := time.Now().Add(-10 * 24 * time.Hour).UnixNano()
	_, err = d.Exec("UPDATE rpc_cache SET created_at = ? WHERE cache_key = 'old'", oldTime)
	require.NoError(t, err)

	require.NoError(t, SetWithTTLAndNetwork("fresh", "v", time.Hour, "mainnet"))

	removed, err := CleanByFilter(CleanFilter{OlderThan: 7 * 24 * time.Hour})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, found, err := Get("fresh")
	require.NoError(t, err)
	require.True(t, found)
}

func TestCleanByFilterByNetworkAndAge(t *testing.T) {
	setupTestDB(t)

	require.NoError(t, SetWithTTLAndNetwork("old-main", "v", time.Hour, "mainnet"))
	require.NoError(t, SetWithTTLAndNetwork("old-test", "v", time.Hour, "testnet"))

	d, err := ensureDB()
	require.NoError(t, err)
	oldTime := time.Now().Add(-10 * 24 * time.Hour).UnixNano()
	_, err = d.Exec("UPDATE rpc_cache SET created_at = ? WHERE cache_key IN ('old-main','old-test')", oldTime)
	require.NoError(t, err)

	removed, err := CleanByFilter(CleanFilter{
		OlderThan: 7 * 24 * time.Hour,
		Network:   "mainnet",
	})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, found, err := Get("old-test")
	require.NoError(t, err)
	require.True(t, found)
}
