// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildModule assembles a WASM header followed by a custom section per
// entry, in order.
func buildModule(sections map[string][]byte, order []string) []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	for _, name := range order {
		content := sections[name]
		payload := append(encodeVarUint32(uint32(len(name))), []byte(name)...)
		payload = append(payload, content...)

		out = append(out, 0) // custom section id
		out = append(out, encodeVarUint32(uint32(len(payload)))...)
		out = append(out, payload...)
	}
	return out
}

func encodeVarUint32(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func TestIsModule(t *testing.T) {
	require.True(t, IsModule([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}))
	require.False(t, IsModule([]byte{0x7f, 0x45, 0x4c, 0x46, 0, 0, 0, 0}))
	require.False(t, IsModule([]byte{0x00, 0x61, 0x73}))
}

func TestCustomSections(t *testing.T) {
	mod := buildModule(map[string][]byte{
		".debug_info": {0xAA},
		".debug_line": {0xBB, 0xCC},
		"name":        {0x01},
	}, []string{".debug_info", ".debug_line", "name"})

	sections := CustomSections(mod)
	require.Equal(t, []byte{0xAA}, sections[".debug_info"])
	require.Equal(t, []byte{0xBB, 0xCC}, sections[".debug_line"])
	require.Equal(t, []byte{0x01}, sections["name"])
}

func TestHasDebugSymbols(t *testing.T) {
	both := buildModule(map[string][]byte{
		".debug_info": {0x01},
		".debug_line": {0x02},
	}, []string{".debug_info", ".debug_line"})
	require.True(t, HasDebugSymbols(both))

	infoOnly := buildModule(map[string][]byte{
		".debug_info": {0x01},
	}, []string{".debug_info"})
	require.False(t, HasDebugSymbols(infoOnly))

	// Bare header, no sections at all.
	require.False(t, HasDebugSymbols([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}))
}

func TestDebugLineSection(t *testing.T) {
	mod := buildModule(map[string][]byte{
		".debug_line": {0xDE, 0xAD},
	}, []string{".debug_line"})

	section, err := DebugLineSection(mod)
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD}, section)

	section, err = DebugLineSection([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	require.Nil(t, section)

	_, err = DebugLineSection([]byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrInvalidModule)
}

func TestCustomSectionsTruncated(t *testing.T) {
	mod := buildModule(map[string][]byte{
		".debug_line": {0xBB, 0xCC, 0xDD},
	}, []string{".debug_line"})

	// Cutting the module mid-section must not panic and must drop the
	// incomplete section.
	sections := CustomSections(mod[:len(mod)-2])
	require.NotContains(t, sections, ".debug_line")
}
