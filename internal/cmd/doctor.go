// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"github.com/spf13/cobra"

	"github.com/dotandev/traploc/internal/rpc"
	"github.com/dotandev/traploc/internal/simulator"
	"github.com/dotandev/traploc/internal/sourcemap"
)

// minSimVersion is the oldest simulator release whose responses carry
// wasm_offset and stack_trace fields.
const minSimVersion = "0.2.0"

type DependencyStatus struct {
	Name      string
	Installed bool
	Version   string
	Path      string
	FixHint   string
}

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	GroupID: "development",
	Short:   "Diagnose development environment setup",
	Long: `Check the status of required dependencies and local state.

This command verifies:
  - Simulator binary (traploc-sim) presence and minimum version
  - Source map cache directory writability
  - Reachability of the configured Horizon endpoint

Use this to troubleshoot installation issues or verify your setup.`,
	Example: `  # Check environment status
  traploc doctor

  # View detailed diagnostics
  traploc doctor --verbose`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")

	fmt.Println("Traploc Environment Diagnostics")
	fmt.Println("===============================")
	fmt.Println()

	dependencies := []DependencyStatus{
		checkSimulator(verbose),
		checkCacheDir(verbose),
		checkRPC(verbose),
	}

	allOK := true
	for _, dep := range dependencies {
		status := "[OK]"
		statusColor := "\033[32m"
		if !dep.Installed {
			status = "[FAIL]"
			statusColor = "\033[31m"
			allOK = false
		}

		fmt.Printf("%s%s\033[0m %s", statusColor, status, dep.Name)
		if dep.Installed && dep.Version != "" {
			fmt.Printf(" (%s)", dep.Version)
		}
		fmt.Println()

		if verbose && dep.Path != "" {
			fmt.Printf("  Path: %s\n", dep.Path)
		}
		if !dep.Installed && dep.FixHint != "" {
			fmt.Printf("  \033[33m-> %s\033[0m\n", dep.FixHint)
		}
	}

	fmt.Println()

	if allOK {
		fmt.Println("\033[32m[OK] All dependencies are installed and ready!\033[0m")
		return nil
	}

	fmt.Println("\033[33mSome dependencies are missing. Follow the hints above to fix.\033[0m")
	return nil
}

func checkSimulator(verbose bool) DependencyStatus {
	dep := DependencyStatus{
		Name:    "Simulator Binary (traploc-sim)",
		FixHint: "Build the simulator (cd simulator && cargo build --release) or set TRAPLOC_SIM_PATH",
	}

	runner, err := simulator.NewRunner()
	if err != nil {
		return dep
	}
	dep.Installed = true
	dep.Path = runner.BinaryPath

	out, err := exec.Command(runner.BinaryPath, "--version").Output()
	if err != nil {
		dep.Version = "unknown"
		return dep
	}

	// Output looks like "traploc-sim 0.2.1"
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) == 0 {
		dep.Version = "unknown"
		return dep
	}
	raw := fields[len(fields)-1]
	dep.Version = raw

	installed, err := goversion.NewVersion(raw)
	if err != nil {
		return dep
	}
	minimum := goversion.Must(goversion.NewVersion(minSimVersion))
	if installed.LessThan(minimum) {
		dep.Installed = false
		dep.FixHint = fmt.Sprintf("simulator %s is older than required %s, rebuild it", raw, minSimVersion)
	}
	return dep
}

func checkCacheDir(verbose bool) DependencyStatus {
	dep := DependencyStatus{
		Name:    "Source map cache",
		FixHint: "Ensure the cache directory is writable or set TRAPLOC_CACHE_DIR",
	}

	dir, err := sourcemap.DefaultCacheDir()
	if err != nil {
		return dep
	}
	dep.Path = dir

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return dep
	}
	probe := filepath.Join(dir, ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return dep
	}
	os.Remove(probe)

	dep.Installed = true
	return dep
}

func checkRPC(verbose bool) DependencyStatus {
	dep := DependencyStatus{
		Name:    "Horizon endpoint",
		FixHint: "Check network connectivity or pass --rpc-url to debug",
	}

	client, err := rpc.NewClient(rpc.Testnet)
	if err != nil {
		return dep
	}
	root, err := client.Horizon.Root()
	if err != nil {
		if verbose {
			dep.FixHint = "Horizon root check failed: " + err.Error()
		}
		return dep
	}

	dep.Installed = true
	dep.Version = root.HorizonVersion
	return dep
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed diagnostic information")
}
