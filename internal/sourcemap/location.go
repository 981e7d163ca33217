// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package sourcemap

// SourceLocation is a resolved source position for a WASM instruction
// offset. Line is 1-based (clamped, never negative); Column 0 means
// unknown and is omitted from JSON. ColumnEnd is reserved for ranges.
type SourceLocation struct {
	File       string  `json:"file"`
	Line       uint32  `json:"line"`
	Column     uint32  `json:"column,omitempty"`
	ColumnEnd  *uint32 `json:"column_end,omitempty"`
	GitHubLink string  `json:"github_link,omitempty"`
}
