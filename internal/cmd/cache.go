// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotandev/traploc/internal/errors"
	"github.com/dotandev/traploc/internal/rpc"
	"github.com/dotandev/traploc/internal/sourcemap"
)

var (
	cacheForceFlag     bool
	cleanOlderThanFlag int
	cleanNetworkFlag   string
	cleanAllFlag       bool
)

var cacheCmd = &cobra.Command{
	Use:     "cache",
	GroupID: "management",
	Short:   "Manage the source map and RPC fetch caches",
	Long: `Manage the local caches traploc keeps on disk.

Two caches exist:
  - Source map cache: decoded offset-to-line mappings, one file per
    WASM module hash (~/.traploc/cache/sourcemaps, configurable via
    TRAPLOC_CACHE_DIR)
  - RPC fetch cache: transaction responses in a local SQLite database
    (~/.traploc/cache.db)

Available subcommands:
  status  - View cache size and entry counts
  list    - List cached source map entries
  clear   - Delete all cached source maps
  clean   - Prune the RPC fetch cache by date or network`,
	Example: `  # Check cache status
  traploc cache status

  # List source map entries
  traploc cache list

  # Clear all source maps
  traploc cache clear --force

  # Remove RPC entries older than 7 days
  traploc cache clean --older-than 7`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := sourcemap.NewCache()
		if err != nil {
			return err
		}

		size, err := cache.Size()
		if err != nil {
			return errors.WrapValidationError(fmt.Sprintf("failed to calculate cache size: %v", err))
		}
		entries, err := cache.List()
		if err != nil {
			return errors.WrapValidationError(fmt.Sprintf("failed to list cache entries: %v", err))
		}

		mappings := 0
		for _, e := range entries {
			mappings += e.MappingCount
		}

		fmt.Printf("Cache directory: %s\n", cache.Dir())
		fmt.Printf("Cache size: %s\n", formatBytes(size))
		fmt.Printf("Modules cached: %d\n", len(entries))
		fmt.Printf("Mappings cached: %d\n", mappings)
		return nil
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached source map entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := sourcemap.NewCache()
		if err != nil {
			return err
		}
		entries, err := cache.List()
		if err != nil {
			return errors.WrapValidationError(fmt.Sprintf("failed to list cache entries: %v", err))
		}
		if len(entries) == 0 {
			fmt.Println("Cache is empty")
			return nil
		}

		fmt.Printf("%-14s %-8s %-10s %-10s %s\n", "MODULE", "SYMBOLS", "MAPPINGS", "SIZE", "CREATED")
		for _, e := range entries {
			symbols := "yes"
			if !e.HasSymbols {
				symbols = "no"
			}
			created := time.Unix(e.CreatedAt, 0).Format("2006-01-02 15:04")
			fmt.Printf("%-14s %-8s %-10d %-10s %s\n",
				e.WasmHash[:12], symbols, e.MappingCount, formatBytes(e.FileSize), created)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached source maps",
	Long: `Remove every cached source map entry.

This action cannot be undone. Use --force to skip confirmation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := sourcemap.NewCache()
		if err != nil {
			return err
		}

		if !cacheForceFlag {
			fmt.Printf("This will delete ALL cached source maps in %s\n", cache.Dir())
			fmt.Print("Are you sure? (yes/no): ")
			var response string
			if _, err := fmt.Scanln(&response); err != nil {
				return errors.WrapValidationError(fmt.Sprintf("failed to read confirmation input: %v", err))
			}
			if response != "yes" && response != "y" {
				fmt.Println("Cache clear cancelled")
				return nil
			}
		}

		removed, err := cache.Clear()
		if err != nil {
			return errors.WrapValidationError(fmt.Sprintf("failed to clear cache: %v", err))
		}
		fmt.Printf("%d cache entries removed.\n", removed)
		return nil
	},
}

var cacheCleanRPCCmd = &cobra.Command{
	Use:   "clean",
	Short: "Prune the local SQLite RPC fetch cache by date or network",
	Long: `Remove entries from the local SQLite RPC fetch cache (~/.traploc/cache.db).

Filter options:
  --older-than <days>  Remove entries created more than N days ago
  --network <name>     Remove entries for a specific network (e.g. mainnet, testnet)
  --all                Remove all cached RPC entries

At least one filter must be specified. Filters can be combined.`,
	Example: `  # Remove entries older than 7 days
  traploc cache clean --older-than 7

  # Remove all testnet entries
  traploc cache clean --network testnet

  # Remove all RPC cache entries
  traploc cache clean --all`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cleanAllFlag && cleanOlderThanFlag == 0 && cleanNetworkFlag == "" {
			return errors.WrapValidationError("no filter specified: use --all, --older-than, or --network")
		}

		filter := rpc.CleanFilter{
			OlderThan: time.Duration(cleanOlderThanFlag) * 24 * time.Hour,
			Network:   cleanNetworkFlag,
			All:       cleanAllFlag,
		}

		removed, err := rpc.CleanByFilter(filter)
		if err != nil {
			return errors.WrapValidationError(fmt.Sprintf("RPC cache clean failed: %v", err))
		}

		fmt.Printf("%d RPC cache entries removed.\n", removed)
		return nil
	},
}

// formatBytes converts bytes to human-readable format
func formatBytes(bytes int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(bytes)
	unitIndex := 0

	for size >= 1024 && unitIndex < len(units)-1 {
		size /= 1024
		unitIndex++
	}

	if unitIndex == 0 {
		return fmt.Sprintf("%.0f %s", size, units[unitIndex])
	}
	return fmt.Sprintf("%.2f %s", size, units[unitIndex])
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCleanRPCCmd)

	cacheClearCmd.Flags().BoolVarP(&cacheForceFlag, "force", "f", false, "Skip confirmation prompt")
	cacheCleanRPCCmd.Flags().IntVar(&cleanOlderThanFlag, "older-than", 0, "Remove entries older than N days")
	cacheCleanRPCCmd.Flags().StringVar(&cleanNetworkFlag, "network", "", "Remove entries for a specific network")
	cacheCleanRPCCmd.Flags().BoolVar(&cleanAllFlag, "all", false, "Remove all RPC cache entries")

	rootCmd.AddCommand(cacheCmd)
}
