// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package sourcemap

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dotandev/traploc/internal/dwarfline"
	"github.com/dotandev/traploc/internal/logger"
	"github.com/dotandev/traploc/internal/telemetry"
	"github.com/dotandev/traploc/internal/wasm"
)

// Resolver turns WASM instruction offsets into source locations for one
// module. Construction computes the module hash, checks for debug
// symbols, and consults the cache; lookups then hit the cached mapping
// table or fall back to decoding the line program on demand.
//
// Resolutions performed during the session accumulate in memory and are
// only written back by an explicit SaveCache call; the persistence
// policy belongs to the caller, not the cache.
type Resolver struct {
	wasmHash   string
	hasSymbols bool
	debugLine  []byte

	cache   *Cache
	noCache bool
	bypass  bool
	linker  *GitHubLinker

	// mu guards the mapping tables; a resolver may be shared across
	// goroutines (the daemon keeps one per module hash).
	mu       sync.Mutex
	cached   map[uint64]SourceLocation
	resolved map[uint64]SourceLocation
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCacheDir roots the resolver's cache at dir instead of the default
// directory.
func WithCacheDir(dir string) ResolverOption {
	return func(r *Resolver) {
		cache, err := NewCacheAt(dir)
		if err != nil {
			logger.Logger.Warn("Failed to create source map cache, caching disabled", "error", err)
			return
		}
		r.cache = cache
	}
}

// WithoutCache disables the disk cache entirely.
func WithoutCache() ResolverOption {
	return func(r *Resolver) {
		r.cache = nil
		r.noCache = true
	}
}

// WithCacheBypass keeps the cache attached for SaveCache but skips it on
// lookup, forcing a fresh decode.
func WithCacheBypass() ResolverOption {
	return func(r *Resolver) {
		r.bypass = true
	}
}

// WithGitHubLinker annotates resolved locations with repository browse
// links. A nil linker is allowed and leaves locations unannotated.
func WithGitHubLinker(l *GitHubLinker) ResolverOption {
	return func(r *Resolver) {
		r.linker = l
	}
}

// NewResolver builds a resolver for the given module bytes. Unless
// configured otherwise it attaches the default cache; cache construction
// failure only disables caching, it never fails resolver construction.
func NewResolver(wasmBytes []byte, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		wasmHash:   ComputeWasmHash(wasmBytes),
		hasSymbols: wasm.HasDebugSymbols(wasmBytes),
		resolved:   make(map[uint64]SourceLocation),
	}

	if r.hasSymbols {
		section, err := wasm.DebugLineSection(wasmBytes)
		if err != nil {
			logger.Logger.Warn("Failed to extract .debug_line section", "error", err)
		}
		r.debugLine = section
	}

	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil && !r.noCache {
		cache, err := NewCache()
		if err != nil {
			logger.Logger.Warn("Failed to create source map cache, caching disabled", "error", err)
		} else {
			r.cache = cache
		}
	}

	if r.cache != nil {
		if entry := r.cache.Get(r.wasmHash, r.bypass); entry != nil {
			// A stale entry recorded for a module without symbols must
			// not satisfy lookups once symbols are present (and vice
			// versa).
			if entry.HasSymbols == r.hasSymbols {
				r.cached = entry.Mappings
			} else {
				logger.Logger.Warn("Cache entry symbol flag mismatch, ignoring entry",
					"wasm_hash", shortHash(r.wasmHash),
					"cached", entry.HasSymbols,
					"actual", r.hasSymbols)
			}
		}
	}

	return r
}

// HasDebugSymbols reports whether the module carries debug sections.
func (r *Resolver) HasDebugSymbols() bool {
	return r.hasSymbols
}

// WasmHash returns the module's content hash used as the cache key.
func (r *Resolver) WasmHash() string {
	return r.wasmHash
}

// Resolve maps one WASM offset to a source location, or nil if the
// module has no symbols or the offset never appears in the line table.
func (r *Resolver) Resolve(ctx context.Context, wasmOffset uint64) *SourceLocation {
	_, span := telemetry.GetTracer().Start(ctx, "sourcemap_resolve")
	span.SetAttributes(
		attribute.String("wasm.hash", shortHash(r.wasmHash)),
		attribute.Int64("wasm.offset", int64(wasmOffset)),
	)
	defer span.End()

	r.mu.Lock()
	if loc, ok := r.cached[wasmOffset]; ok {
		r.mu.Unlock()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return r.annotate(loc)
	}
	if loc, ok := r.resolved[wasmOffset]; ok {
		r.mu.Unlock()
		return r.annotate(loc)
	}
	r.mu.Unlock()

	if !r.hasSymbols || len(r.debugLine) == 0 {
		return nil
	}

	// The decode itself only reads the section bytes, so it runs
	// unlocked; a duplicate decode for the same offset is harmless.
	entry, ok := dwarfline.ResolveAddress(r.debugLine, wasmOffset)
	if !ok {
		return nil
	}

	loc := SourceLocation{
		File:   entry.File,
		Line:   entry.Line,
		Column: entry.Column,
	}
	r.mu.Lock()
	r.resolved[wasmOffset] = loc
	r.mu.Unlock()
	return r.annotate(loc)
}

// SaveCache persists every mapping resolved so far, merged over the
// entry already on disk (if any). It is a no-op without a cache or when
// nothing new was resolved for a symbol-less module.
func (r *Resolver) SaveCache() error {
	if r.cache == nil {
		return nil
	}

	r.mu.Lock()
	if !r.hasSymbols && len(r.resolved) == 0 {
		r.mu.Unlock()
		return nil
	}
	mappings := make(map[uint64]SourceLocation, len(r.cached)+len(r.resolved))
	for off, loc := range r.cached {
		mappings[off] = loc
	}
	for off, loc := range r.resolved {
		mappings[off] = loc
	}
	r.mu.Unlock()

	return r.cache.Store(&CacheEntry{
		WasmHash:   r.wasmHash,
		HasSymbols: r.hasSymbols,
		Mappings:   mappings,
		CreatedAt:  time.Now().Unix(),
	})
}

// annotate returns a copy of loc with the GitHub link filled in when a
// linker is configured.
func (r *Resolver) annotate(loc SourceLocation) *SourceLocation {
	if r.linker != nil && loc.GitHubLink == "" {
		loc.GitHubLink = r.linker.Link(loc.File, loc.Line)
	}
	return &loc
}
