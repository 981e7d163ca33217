// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotandev/traploc/internal/daemon"
)

var (
	servePortFlag    string
	serveNetworkFlag string
	serveTokenFlag   string
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "development",
	Short:   "Run the JSON-RPC daemon for editor integrations",
	Long: `Start a long-running JSON-RPC server exposing trap resolution and
transaction replay.

Editor plugins and CI jobs can call Daemon.ResolveAddress and
Daemon.DebugTransaction over HTTP instead of spawning the CLI for every
lookup. Resolvers are kept in memory per module hash, so repeated
lookups against the same build are cheap.`,
	Example: `  # Serve on the default port
  traploc serve

  # Serve with authentication
  traploc serve --port 9090 --auth-token secret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := daemon.NewServer(daemon.Config{
			Network:   serveNetworkFlag,
			AuthToken: serveTokenFlag,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Starting daemon on port %s (network %s)\n", servePortFlag, serveNetworkFlag)
		return server.Start(cmd.Context(), servePortFlag)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePortFlag, "port", "p", "8547", "Port to listen on")
	serveCmd.Flags().StringVarP(&serveNetworkFlag, "network", "n", "testnet", "Stellar network to use")
	serveCmd.Flags().StringVar(&serveTokenFlag, "auth-token", "", "Require this bearer token on every request")

	rootCmd.AddCommand(serveCmd)
}
