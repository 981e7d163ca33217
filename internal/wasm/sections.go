// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package wasm provides the minimal WASM binary inspection the resolver
// needs: walking custom sections and extracting the DWARF debug sections
// Rust toolchains embed in contract builds.
package wasm

import "errors"

// ErrInvalidModule indicates the bytes are not a valid WASM module.
var ErrInvalidModule = errors.New("invalid WASM module")

const (
	// SectionDebugInfo and SectionDebugLine are the custom section names
	// carrying DWARF data.
	SectionDebugInfo = ".debug_info"
	SectionDebugLine = ".debug_line"
)

var magic = []byte{0x00, 0x61, 0x73, 0x6d}

// IsModule reports whether data starts with the WASM magic number.
func IsModule(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	for i, b := range magic {
		if data[i] != b {
			return false
		}
	}
	return true
}

// CustomSections walks the module and returns the contents of every
// custom (id 0) section keyed by name. Malformed section framing ends
// the walk; sections parsed before the fault are still returned.
func CustomSections(data []byte) map[string][]byte {
	sections := make(map[string][]byte)
	if !IsModule(data) {
		return sections
	}

	i := 8 // magic + version
	for i < len(data) {
		sectionID := data[i]
		i++

		size, n := readVarUint32(data[i:])
		if n == 0 {
			break
		}
		i += n

		if sectionID != 0 {
			i += int(size)
			continue
		}

		nameLen, n := readVarUint32(data[i:])
		if n == 0 {
			break
		}
		if i+n+int(nameLen) > len(data) {
			break
		}
		name := string(data[i+n : i+n+int(nameLen)])

		contentSize := int(size) - (n + int(nameLen))
		contentStart := i + n + int(nameLen)
		if contentSize < 0 || contentStart+contentSize > len(data) {
			break
		}
		sections[name] = data[contentStart : contentStart+contentSize]
		i = contentStart + contentSize
	}

	return sections
}

// HasDebugSymbols reports whether the module carries both the
// .debug_info and .debug_line custom sections. It is the fast gate run
// before any DWARF decoding.
func HasDebugSymbols(data []byte) bool {
	sections := CustomSections(data)
	_, hasInfo := sections[SectionDebugInfo]
	_, hasLine := sections[SectionDebugLine]
	return hasInfo && hasLine
}

// DebugLineSection returns the raw bytes of the .debug_line custom
// section, or ErrInvalidModule / nil-section accordingly.
func DebugLineSection(data []byte) ([]byte, error) {
	if !IsModule(data) {
		return nil, ErrInvalidModule
	}
	section, ok := CustomSections(data)[SectionDebugLine]
	if !ok {
		return nil, nil
	}
	return section, nil
}

// readVarUint32 decodes a WASM LEB128-encoded u32, returning the value
// and the number of bytes consumed (0 on malformed input).
func readVarUint32(data []byte) (uint32, int) {
	var (
		res   uint32
		shift uint
	)
	for i, b := range data {
		if shift >= 32 {
			return 0, 0
		}
		res |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return res, i + 1
		}
		shift += 7
	}
	return 0, 0
}
