// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set via ldflags during release builds:
// -ldflags "-X github.com/dotandev/traploc/internal/cmd.Version=v1.2.3"
var Version = "0.1.0-alpha"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of traploc",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("traploc version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
