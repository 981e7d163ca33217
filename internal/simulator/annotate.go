// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package simulator

import (
	"context"

	"github.com/dotandev/traploc/internal/logger"
	"github.com/dotandev/traploc/internal/sourcemap"
)

// Annotate resolves every wasm offset in resp to a source location using
// the given resolver. The top-level trap offset and each stack frame that
// carries an offset get their SourceLocation field filled. Offsets that
// do not map to any line table row are left unannotated.
func Annotate(ctx context.Context, resp *SimulationResponse, r *sourcemap.Resolver) {
	if resp == nil || r == nil || !r.HasDebugSymbols() {
		return
	}

	if resp.WasmOffset != nil {
		if loc := r.Resolve(ctx, *resp.WasmOffset); loc != nil {
			resp.SourceLocation = loc
			logger.Logger.Debug("Annotated trap offset",
				"offset", *resp.WasmOffset,
				"file", loc.File,
				"line", loc.Line)
		}
	}

	if resp.StackTrace == nil {
		return
	}
	for i := range resp.StackTrace.Frames {
		f := &resp.StackTrace.Frames[i]
		if f.WasmOffset == nil {
			continue
		}
		if loc := r.Resolve(ctx, *f.WasmOffset); loc != nil {
			f.SourceLocation = loc
		}
	}
}
