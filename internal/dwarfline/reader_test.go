// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package dwarfline

import "testing"

func TestReadULEB128(t *testing.T) {
	// 300 encodes as 0xAC 0x02.
	v, n, ok := readULEB128([]byte{0xAC, 0x02}, 0)
	if !ok || v != 300 || n != 2 {
		t.Fatalf("got (%d, %d, %v), want (300, 2, true)", v, n, ok)
	}

	// 624485 encodes as 0xE5 0x8E 0x26.
	v, n, ok = readULEB128([]byte{0xE5, 0x8E, 0x26}, 0)
	if !ok || v != 624485 || n != 3 {
		t.Fatalf("got (%d, %d, %v), want (624485, 3, true)", v, n, ok)
	}
}

func TestReadULEB128Truncated(t *testing.T) {
	if _, _, ok := readULEB128([]byte{0x80, 0x80}, 0); ok {
		t.Fatal("expected failure on unterminated encoding")
	}
	if _, _, ok := readULEB128(nil, 0); ok {
		t.Fatal("expected failure on empty input")
	}
}

func TestReadULEB128ShiftOverflow(t *testing.T) {
	// Eleven continuation groups would shift past 64 bits.
	data := make([]byte, 11)
	for i := range data {
		data[i] = 0x81
	}
	if _, _, ok := readULEB128(data, 0); ok {
		t.Fatal("expected overflow guard to reject the encoding")
	}
}

func TestReadULEB128TenthGroupBits(t *testing.T) {
	// Nine continuation groups put the tenth at shift 63, where only a
	// single bit still fits in the result.
	data := make([]byte, 10)
	for i := 0; i < 9; i++ {
		data[i] = 0x80
	}

	data[9] = 0x01
	v, n, ok := readULEB128(data, 0)
	if !ok || v != 1<<63 || n != 10 {
		t.Fatalf("got (%d, %d, %v), want (1<<63, 10, true)", v, n, ok)
	}

	// Any higher bit in the tenth group would be shifted out silently.
	data[9] = 0x02
	if _, _, ok := readULEB128(data, 0); ok {
		t.Fatal("expected rejection of tenth-group bits beyond 64")
	}
}

func TestReadSLEB128(t *testing.T) {
	// -1 encodes as 0x7F.
	v, n, ok := readSLEB128([]byte{0x7F}, 0)
	if !ok || v != -1 || n != 1 {
		t.Fatalf("got (%d, %d, %v), want (-1, 1, true)", v, n, ok)
	}

	// -624485 encodes as 0x9B 0xF1 0x59.
	v, n, ok = readSLEB128([]byte{0x9B, 0xF1, 0x59}, 0)
	if !ok || v != -624485 || n != 3 {
		t.Fatalf("got (%d, %d, %v), want (-624485, 3, true)", v, n, ok)
	}

	// Positive value with clear sign bit in the final group.
	v, n, ok = readSLEB128([]byte{0x3F}, 0)
	if !ok || v != 63 || n != 1 {
		t.Fatalf("got (%d, %d, %v), want (63, 1, true)", v, n, ok)
	}
}

func TestReadCString(t *testing.T) {
	data := []byte("src\x00test.rs\x00")

	s, n, ok := readCString(data, 0)
	if !ok || s != "src" || n != 4 {
		t.Fatalf("got (%q, %d, %v), want (\"src\", 4, true)", s, n, ok)
	}

	s, n, ok = readCString(data, 4)
	if !ok || s != "test.rs" || n != 8 {
		t.Fatalf("got (%q, %d, %v), want (\"test.rs\", 8, true)", s, n, ok)
	}

	if _, _, ok := readCString([]byte("no terminator"), 0); ok {
		t.Fatal("expected failure without terminator")
	}
}

func TestFixedWidthReadsBounds(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}

	if v, ok := readUint16(data, 0); !ok || v != 0x0201 {
		t.Fatalf("readUint16 = (%#x, %v)", v, ok)
	}
	if _, ok := readUint16(data, 2); ok {
		t.Fatal("readUint16 past end should fail")
	}
	if _, ok := readUint32(data, 0); ok {
		t.Fatal("readUint32 past end should fail")
	}
	if _, ok := readUint8(data, 3); ok {
		t.Fatal("readUint8 past end should fail")
	}
	if v, ok := readInt8([]byte{0xFF}, 0); !ok || v != -1 {
		t.Fatalf("readInt8 = (%d, %v), want (-1, true)", v, ok)
	}
}
