// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dotandev/traploc/internal/errors"
	"github.com/dotandev/traploc/internal/logger"
	"github.com/dotandev/traploc/internal/rpc"
	"github.com/dotandev/traploc/internal/simulator"
	"github.com/dotandev/traploc/internal/sourcemap"
)

var (
	debugNetworkFlag string
	debugRPCURLFlag  string
	debugVerboseFlag bool
	debugWasmFlag    string
	debugArgsFlag    []string
	debugNoCacheFlag bool
)

var debugCmd = &cobra.Command{
	Use:     "debug <transaction-hash>",
	GroupID: "debugging",
	Short:   "Replay a failed Soroban transaction and locate the trap",
	Long: `Fetch a transaction envelope from the Stellar network, replay it in the
local simulator, and map any WASM trap back to source.

When --wasm points at the contract build that produced the failure, the
trap offset and every stack frame are annotated with file and line. The
decoded line tables are cached on disk keyed by module hash.

With --wasm alone (no hash), the contract is executed locally against
mock state instead of replaying a network transaction.`,
	Example: `  # Replay a failed transaction and symbolize the trap
  traploc debug 5c0a12...ab --wasm ./target/contract.wasm

  # Replay against mainnet
  traploc debug 5c0a12...ab --network mainnet

  # Execute a contract locally with mock arguments
  traploc debug --wasm ./contract.wasm --args '["arg1","arg2"]'`,
	Args: cobra.MaximumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		switch rpc.Network(debugNetworkFlag) {
		case rpc.Testnet, rpc.Mainnet, rpc.Futurenet:
			return nil
		default:
			return errors.WrapInvalidNetwork(debugNetworkFlag)
		}
	},
	RunE: runDebug,
}

func init() {
	debugCmd.Flags().StringVarP(&debugNetworkFlag, "network", "n", "testnet", "Stellar network to use (testnet, mainnet, futurenet)")
	debugCmd.Flags().StringVar(&debugRPCURLFlag, "rpc-url", "", "Custom Horizon endpoint")
	debugCmd.Flags().BoolVarP(&debugVerboseFlag, "verbose", "v", false, "Enable verbose output")
	debugCmd.Flags().StringVar(&debugWasmFlag, "wasm", "", "Path to the contract WASM build (enables trap symbolication)")
	debugCmd.Flags().StringSliceVar(&debugArgsFlag, "args", []string{}, "Mock arguments for local replay (JSON array of strings)")
	debugCmd.Flags().BoolVar(&debugNoCacheFlag, "no-cache", false, "Do not read or write the on-disk source map cache")

	rootCmd.AddCommand(debugCmd)
}

func runDebug(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		if debugWasmFlag == "" {
			return errors.WrapValidationError("transaction hash is required when not using --wasm")
		}
		return runLocalReplay(cmd)
	}
	return runNetworkReplay(cmd, args[0])
}

func runLocalReplay(cmd *cobra.Command) error {
	ctx := cmd.Context()

	if _, err := os.Stat(debugWasmFlag); os.IsNotExist(err) {
		return errors.WrapValidationError("WASM file not found: " + debugWasmFlag)
	}

	color.Yellow("Local replay uses mock state, not ledger data.")
	fmt.Printf("WASM file: %s\n", debugWasmFlag)
	if len(debugArgsFlag) > 0 {
		fmt.Printf("Arguments: %v\n", debugArgsFlag)
	}
	fmt.Println()

	runner, err := simulator.NewRunner()
	if err != nil {
		return err
	}

	req := &simulator.SimulationRequest{
		WasmPath: &debugWasmFlag,
		MockArgs: &debugArgsFlag,
	}

	resp, err := runner.Run(req)
	if err != nil {
		return err
	}

	annotateFromWasm(ctx, resp)
	printSimulation(resp)
	return nil
}

func runNetworkReplay(cmd *cobra.Command, txHash string) error {
	ctx := cmd.Context()

	fmt.Printf("Debugging transaction: %s\n", txHash)
	fmt.Printf("Network: %s\n", debugNetworkFlag)
	if debugRPCURLFlag != "" {
		fmt.Printf("RPC URL: %s\n", debugRPCURLFlag)
	}
	fmt.Println()

	var client *rpc.Client
	if debugRPCURLFlag != "" {
		client = rpc.NewClientWithURL(debugRPCURLFlag, rpc.Network(debugNetworkFlag))
	} else {
		var err error
		client, err = rpc.NewClient(rpc.Network(debugNetworkFlag))
		if err != nil {
			return err
		}
	}

	txResp, err := client.GetTransaction(ctx, txHash)
	if err != nil {
		return err
	}

	if debugVerboseFlag {
		fmt.Printf("Envelope XDR length: %d bytes\n", len(txResp.EnvelopeXdr))
		fmt.Printf("ResultMeta XDR length: %d bytes\n", len(txResp.ResultMetaXdr))
		fmt.Println()
	}

	runner, err := simulator.NewRunner()
	if err != nil {
		return err
	}

	simReq := &simulator.SimulationRequest{
		EnvelopeXdr:   txResp.EnvelopeXdr,
		ResultMetaXdr: txResp.ResultMetaXdr,
	}
	if debugWasmFlag != "" {
		simReq.WasmPath = &debugWasmFlag
	}

	fmt.Println("Replaying transaction locally...")
	resp, err := runner.Run(simReq)
	if err != nil {
		return err
	}

	annotateFromWasm(ctx, resp)
	printSimulation(resp)
	return nil
}

// annotateFromWasm fills source locations into resp when --wasm points at
// a build with debug sections.
func annotateFromWasm(ctx context.Context, resp *simulator.SimulationResponse) {
	if debugWasmFlag == "" || resp == nil {
		return
	}

	wasmBytes, err := os.ReadFile(debugWasmFlag)
	if err != nil {
		logger.Logger.Warn("Cannot read wasm for symbolication", "path", debugWasmFlag, "error", err)
		return
	}

	var opts []sourcemap.ResolverOption
	if debugNoCacheFlag {
		opts = append(opts, sourcemap.WithoutCache())
	}
	resolver := sourcemap.NewResolver(wasmBytes, opts...)
	if !resolver.HasDebugSymbols() {
		logger.Logger.Info("Module carries no debug sections, skipping symbolication",
			"path", debugWasmFlag)
		return
	}

	simulator.Annotate(ctx, resp, resolver)

	if !debugNoCacheFlag {
		if err := resolver.SaveCache(); err != nil {
			logger.Logger.Warn("Failed to persist source map cache", "error", err)
		}
	}
}

func printSimulation(resp *simulator.SimulationResponse) {
	fmt.Println()
	if resp.Status == "success" {
		color.Green("Replay completed successfully")
	} else {
		color.Red("Replay trapped: %s", resp.Error)
	}
	fmt.Println()

	if resp.SourceLocation != nil {
		loc := fmt.Sprintf("%s:%d", resp.SourceLocation.File, resp.SourceLocation.Line)
		if resp.SourceLocation.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, resp.SourceLocation.Column)
		}
		color.Cyan("Trap location: %s", loc)
		if resp.SourceLocation.GitHubLink != "" {
			fmt.Printf("  %s\n", resp.SourceLocation.GitHubLink)
		}
		fmt.Println()
	} else if resp.WasmOffset != nil {
		fmt.Printf("Trap offset: 0x%x (no source mapping, pass --wasm with a debug build)\n\n", *resp.WasmOffset)
	}

	if resp.StackTrace != nil && len(resp.StackTrace.Frames) > 0 {
		color.Cyan("Stack trace:")
		for _, f := range resp.StackTrace.Frames {
			name := "<unknown>"
			if f.FuncName != nil {
				name = *f.FuncName
			}
			line := fmt.Sprintf("  #%d %s", f.Index, name)
			if f.WasmOffset != nil {
				line += fmt.Sprintf(" @ 0x%x", *f.WasmOffset)
			}
			if f.SourceLocation != nil {
				line += fmt.Sprintf("  %s:%d", f.SourceLocation.File, f.SourceLocation.Line)
			}
			fmt.Println(line)
		}
		fmt.Println()
	}

	if len(resp.Logs) > 0 {
		color.Cyan("Logs:")
		for _, log := range resp.Logs {
			fmt.Printf("  %s\n", log)
		}
		fmt.Println()
	}

	if len(resp.Events) > 0 {
		color.Cyan("Events:")
		for _, event := range resp.Events {
			fmt.Printf("  %s\n", event)
		}
		fmt.Println()
	}

	if debugVerboseFlag {
		jsonBytes, err := json.MarshalIndent(resp, "", "  ")
		if err == nil {
			fmt.Println(string(jsonBytes))
		}
	}
}
