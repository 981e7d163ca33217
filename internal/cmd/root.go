// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotandev/traploc/internal/errors"
	"github.com/dotandev/traploc/internal/telemetry"
)

// InterruptExitCode is returned by the process when a command is stopped
// by SIGINT or SIGTERM.
const InterruptExitCode = 130

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "traploc",
	Short: "Traploc - WASM trap to source location resolver",
	Long: `Traploc maps WASM trap offsets in Soroban contracts back to the
Rust source lines that produced them.

It decodes the DWARF line tables embedded in a contract's custom
sections, caches the decoded mappings on disk keyed by module hash, and
can replay failed Stellar transactions locally to recover the trap
offset in the first place.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx); err != nil {
		return err
	}
	defer telemetry.Shutdown(context.Background())

	return rootCmd.ExecuteContext(ctx)
}

// IsInterrupted reports whether err was caused by SIGINT or SIGTERM.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "debugging", Title: "Debugging Commands:"},
		&cobra.Group{ID: "management", Title: "Management Commands:"},
		&cobra.Group{ID: "development", Title: "Development Commands:"},
	)
}
