// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package sourcemap

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// buildDebugLine assembles a single-unit DWARF32 v4 .debug_line section
// mapping addr to src/test.rs at the given line.
func buildDebugLine(addr uint32, line int) []byte {
	var hdr []byte
	hdr = append(hdr, 1, 1, 1) // min_instr_length, max_ops, default_is_stmt
	hdr = append(hdr, 0xFB)    // line_base = -5
	hdr = append(hdr, 14, 13)  // line_range, opcode_base
	hdr = append(hdr, []byte{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}...)
	hdr = append(hdr, []byte("src\x00")...)
	hdr = append(hdr, 0)
	hdr = append(hdr, []byte("test.rs\x00")...)
	hdr = append(hdr, 1, 0, 0)
	hdr = append(hdr, 0)

	var ops []byte
	ops = append(ops, 0, 5, 2) // DW_LINE_set_address
	ops = binary.LittleEndian.AppendUint32(ops, addr)
	ops = append(ops, 3, byte(line-1)) // DW_LNS_advance_line (line-1 must fit one SLEB byte)
	ops = append(ops, 1)               // DW_LNS_copy
	ops = append(ops, 0, 1, 1)         // DW_LINE_end_sequence

	body := binary.LittleEndian.AppendUint16(nil, 4)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(hdr)))
	body = append(body, hdr...)
	body = append(body, ops...)

	section := binary.LittleEndian.AppendUint32(nil, uint32(len(body)))
	return append(section, body...)
}

func encodeSectionSize(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func customSection(name string, content []byte) []byte {
	payload := append(encodeSectionSize(uint32(len(name))), []byte(name)...)
	payload = append(payload, content...)
	out := []byte{0}
	out = append(out, encodeSectionSize(uint32(len(payload)))...)
	return append(out, payload...)
}

// buildWasmWithSymbols returns a module whose .debug_line maps addr to
// src/test.rs:line.
func buildWasmWithSymbols(addr uint32, line int) []byte {
	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	mod = append(mod, customSection(".debug_info", []byte{0x01})...)
	mod = append(mod, customSection(".debug_line", buildDebugLine(addr, line))...)
	return mod
}

func bareWasm() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

func TestResolverWithoutSymbols(t *testing.T) {
	r := NewResolver(bareWasm(), WithoutCache())

	require.False(t, r.HasDebugSymbols())
	require.Len(t, r.WasmHash(), 64)
	require.Nil(t, r.Resolve(context.Background(), 0x1234))
}

func TestResolverDecodesLocation(t *testing.T) {
	r := NewResolver(buildWasmWithSymbols(0x1000, 42), WithoutCache())

	require.True(t, r.HasDebugSymbols())

	loc := r.Resolve(context.Background(), 0x1000)
	require.NotNil(t, loc)
	require.Equal(t, "src/test.rs", loc.File)
	require.EqualValues(t, 42, loc.Line)
	require.Zero(t, loc.Column)

	require.Nil(t, r.Resolve(context.Background(), 0x2000))
}

func TestResolverSaveAndReloadFromCache(t *testing.T) {
	dir := t.TempDir()
	mod := buildWasmWithSymbols(0x1000, 42)

	r := NewResolver(mod, WithCacheDir(dir))
	require.NotNil(t, r.Resolve(context.Background(), 0x1000))
	require.NoError(t, r.SaveCache())

	// A second session over the same module bytes serves the lookup from
	// the cached mapping table.
	r2 := NewResolver(mod, WithCacheDir(dir))
	require.Len(t, r2.cached, 1)

	loc := r2.Resolve(context.Background(), 0x1000)
	require.NotNil(t, loc)
	require.Equal(t, "src/test.rs", loc.File)
	require.EqualValues(t, 42, loc.Line)
}

func TestResolverCacheBypass(t *testing.T) {
	dir := t.TempDir()
	mod := buildWasmWithSymbols(0x1000, 42)

	r := NewResolver(mod, WithCacheDir(dir))
	require.NotNil(t, r.Resolve(context.Background(), 0x1000))
	require.NoError(t, r.SaveCache())

	r2 := NewResolver(mod, WithCacheDir(dir), WithCacheBypass())
	require.Empty(t, r2.cached)

	// Decoding still works; the cache is just not consulted.
	require.NotNil(t, r2.Resolve(context.Background(), 0x1000))
}

func TestResolverRejectsSymbolFlagMismatch(t *testing.T) {
	dir := t.TempDir()
	mod := bareWasm()
	hash := ComputeWasmHash(mod)

	// Poison the cache: an entry claiming symbols for a module that has
	// none must not satisfy lookups.
	cache, err := NewCacheAt(dir)
	require.NoError(t, err)
	require.NoError(t, cache.Store(&CacheEntry{
		WasmHash:   hash,
		HasSymbols: true,
		Mappings: map[uint64]SourceLocation{
			0x1234: {File: "evil.rs", Line: 1},
		},
		CreatedAt: time.Now().Unix(),
	}))

	r := NewResolver(mod, WithCacheDir(dir))
	require.Empty(t, r.cached)
	require.Nil(t, r.Resolve(context.Background(), 0x1234))
}

func TestResolverSaveCacheNoSymbolsIsNoop(t *testing.T) {
	dir := t.TempDir()

	r := NewResolver(bareWasm(), WithCacheDir(dir))
	require.NoError(t, r.SaveCache())

	cache, err := NewCacheAt(dir)
	require.NoError(t, err)
	infos, err := cache.List()
	require.NoError(t, err)
	require.Empty(t, infos)
}

func TestResolverGitHubLink(t *testing.T) {
	r := NewResolver(buildWasmWithSymbols(0x1000, 42),
		WithoutCache(),
		WithGitHubLinker(&GitHubLinker{
			baseURL:  "https://github.com/acme/contract",
			revision: "abc123",
		}))

	loc := r.Resolve(context.Background(), 0x1000)
	require.NotNil(t, loc)
	require.Equal(t, "https://github.com/acme/contract/blob/abc123/src/test.rs#L42", loc.GitHubLink)
}

func TestResolverConcurrentResolve(t *testing.T) {
	// A single resolver is shared across daemon handler goroutines, so
	// repeated lookups of the same offset must be safe to run in
	// parallel while the resolved table fills in.
	r := NewResolver(buildWasmWithSymbols(0x1000, 42), WithoutCache())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				loc := r.Resolve(ctx, 0x1000)
				if loc == nil || loc.Line != 42 {
					t.Errorf("unexpected location: %+v", loc)
					return
				}
				// Misses exercise the table write path too.
				r.Resolve(ctx, 0xDEAD)
			}
		}()
	}
	wg.Wait()
}
