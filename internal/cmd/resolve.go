// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dotandev/traploc/internal/errors"
	"github.com/dotandev/traploc/internal/logger"
	"github.com/dotandev/traploc/internal/sourcemap"
)

var (
	resolveNoCacheFlag    bool
	resolveRefreshFlag    bool
	resolveGithubLinkFlag bool
	resolveRepoRootFlag   string
	resolveJSONFlag       bool
)

var resolveCmd = &cobra.Command{
	Use:     "resolve <wasm-file> <offset>...",
	GroupID: "debugging",
	Short:   "Map WASM trap offsets to source locations",
	Long: `Decode the DWARF line tables in a WASM contract and map one or more
instruction offsets back to source file and line.

Offsets accept decimal or 0x-prefixed hex. Decoded mappings are cached
under ~/.traploc/cache/sourcemaps keyed by the module's SHA-256, so
repeated lookups against the same build skip the decode entirely.`,
	Example: `  # Resolve a single trap offset
  traploc resolve contract.wasm 0x1a2b

  # Resolve several offsets at once
  traploc resolve contract.wasm 4096 8192 0xdead

  # Skip the disk cache entirely
  traploc resolve contract.wasm 0x1a2b --no-cache

  # Re-decode even if a cached entry exists
  traploc resolve contract.wasm 0x1a2b --refresh

  # Attach GitHub permalinks using the local checkout
  traploc resolve contract.wasm 0x1a2b --github-link --repo-root ./contract`,
	Args: cobra.MinimumNArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveNoCacheFlag, "no-cache", false, "Do not read or write the on-disk source map cache")
	resolveCmd.Flags().BoolVar(&resolveRefreshFlag, "refresh", false, "Ignore any cached entry and re-decode the line tables")
	resolveCmd.Flags().BoolVar(&resolveGithubLinkFlag, "github-link", false, "Attach GitHub permalinks to resolved locations")
	resolveCmd.Flags().StringVar(&resolveRepoRootFlag, "repo-root", ".", "Git checkout used to derive GitHub permalinks")
	resolveCmd.Flags().BoolVar(&resolveJSONFlag, "json", false, "Print results as JSON")

	rootCmd.AddCommand(resolveCmd)
}

func parseOffset(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.WrapValidationError("invalid offset " + strconv.Quote(s))
	}
	return v, nil
}

type resolvedOffset struct {
	Offset   uint64                    `json:"offset"`
	Location *sourcemap.SourceLocation `json:"location,omitempty"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	wasmPath := args[0]

	offsets := make([]uint64, 0, len(args)-1)
	for _, arg := range args[1:] {
		off, err := parseOffset(arg)
		if err != nil {
			return err
		}
		offsets = append(offsets, off)
	}

	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return errors.WrapValidationError("cannot read wasm file: " + err.Error())
	}

	var opts []sourcemap.ResolverOption
	if resolveNoCacheFlag {
		opts = append(opts, sourcemap.WithoutCache())
	}
	if resolveRefreshFlag {
		opts = append(opts, sourcemap.WithCacheBypass())
	}
	if resolveGithubLinkFlag {
		if linker := sourcemap.NewGitHubLinker(resolveRepoRootFlag); linker != nil {
			opts = append(opts, sourcemap.WithGitHubLinker(linker))
		} else {
			logger.Logger.Warn("Cannot derive GitHub remote, links disabled", "repo_root", resolveRepoRootFlag)
		}
	}

	resolver := sourcemap.NewResolver(wasmBytes, opts...)

	if !resolver.HasDebugSymbols() {
		color.Yellow("Module %s carries no DWARF debug sections.", wasmPath)
		fmt.Println("Rebuild the contract with debug info, e.g:")
		fmt.Println("  cargo build --profile release-with-debug")
		return nil
	}

	results := make([]resolvedOffset, 0, len(offsets))
	for _, off := range offsets {
		results = append(results, resolvedOffset{
			Offset:   off,
			Location: resolver.Resolve(ctx, off),
		})
	}

	if !resolveNoCacheFlag {
		if err := resolver.SaveCache(); err != nil {
			logger.Logger.Warn("Failed to persist source map cache", "error", err)
		}
	}

	if resolveJSONFlag {
		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return errors.WrapMarshalFailed(err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Module: %s (sha256 %s)\n\n", wasmPath, resolver.WasmHash()[:12])
	for _, r := range results {
		if r.Location == nil {
			color.Red("  0x%-8x -> no line table row", r.Offset)
			continue
		}
		loc := fmt.Sprintf("%s:%d", r.Location.File, r.Location.Line)
		if r.Location.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, r.Location.Column)
		}
		color.Green("  0x%-8x -> %s", r.Offset, loc)
		if r.Location.GitHubLink != "" {
			fmt.Printf("               %s\n", r.Location.GitHubLink)
		}
	}
	return nil
}
