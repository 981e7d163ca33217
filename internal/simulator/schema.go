// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package simulator

import "github.com/dotandev/traploc/internal/sourcemap"

type SimulationRequest struct {
	EnvelopeXdr    string            `json:"envelope_xdr"`
	ResultMetaXdr  string            `json:"result_meta_xdr"`
	LedgerEntries  map[string]string `json:"ledger_entries,omitempty"`
	Timestamp      int64             `json:"timestamp,omitempty"`
	LedgerSequence uint32            `json:"ledger_sequence,omitempty"`
	WasmPath       *string           `json:"wasm_path,omitempty"`
	MockArgs       *[]string         `json:"mock_args,omitempty"`
}

type CategorizedEvent struct {
	EventType  string   `json:"event_type"`
	ContractID *string  `json:"contract_id,omitempty"`
	Topics     []string `json:"topics"`
	Data       string   `json:"data"`
}

type BudgetUsage struct {
	CPUInstructions    uint64  `json:"cpu_instructions"`
	MemoryBytes        uint64  `json:"memory_bytes"`
	OperationsCount    int     `json:"operations_count"`
	CPULimit           uint64  `json:"cpu_limit"`
	MemoryLimit        uint64  `json:"memory_limit"`
	CPUUsagePercent    float64 `json:"cpu_usage_percent"`
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
}

// WasmStackTrace is the trap backtrace the simulator extracts from the
// interpreter error chain. Frames are ordered innermost first.
type WasmStackTrace struct {
	TrapKind       interface{}  `json:"trap_kind"`
	RawMessage     string       `json:"raw_message"`
	Frames         []StackFrame `json:"frames"`
	SorobanWrapped bool         `json:"soroban_wrapped"`
}

type StackFrame struct {
	Index      int     `json:"index"`
	FuncIndex  *uint32 `json:"func_index,omitempty"`
	FuncName   *string `json:"func_name,omitempty"`
	WasmOffset *uint64 `json:"wasm_offset,omitempty"`
	Module     *string `json:"module,omitempty"`

	// Filled in by Annotate; the simulator itself never sets it.
	SourceLocation *sourcemap.SourceLocation `json:"source_location,omitempty"`
}

type SimulationResponse struct {
	Status            string             `json:"status"`
	Error             string             `json:"error,omitempty"`
	ErrorCode         string             `json:"error_code,omitempty"`
	Events            []string           `json:"events,omitempty"`
	CategorizedEvents []CategorizedEvent `json:"categorized_events,omitempty"`
	Logs              []string           `json:"logs,omitempty"`
	BudgetUsage       *BudgetUsage       `json:"budget_usage,omitempty"`
	StackTrace        *WasmStackTrace    `json:"stack_trace,omitempty"`
	WasmOffset        *uint64            `json:"wasm_offset,omitempty"`

	SourceLocation *sourcemap.SourceLocation `json:"source_location,omitempty"`
}
