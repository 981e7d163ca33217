// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package dwarfline

import "encoding/binary"

// Primitive accessors over a raw byte slice with an explicit cursor.
// Every read is bounds-checked and reports failure through its ok result
// instead of panicking; multi-byte integers are little-endian.

func readUint8(data []byte, pos int) (uint8, bool) {
	if pos < 0 || pos >= len(data) {
		return 0, false
	}
	return data[pos], true
}

func readInt8(data []byte, pos int) (int8, bool) {
	b, ok := readUint8(data, pos)
	return int8(b), ok
}

func readUint16(data []byte, pos int) (uint16, bool) {
	if pos < 0 || pos+2 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data[pos : pos+2]), true
}

func readUint32(data []byte, pos int) (uint32, bool) {
	if pos < 0 || pos+4 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[pos : pos+4]), true
}

// readCString reads a null-terminated string starting at pos. The
// returned length includes the terminator.
func readCString(data []byte, pos int) (string, int, bool) {
	if pos < 0 || pos >= len(data) {
		return "", 0, false
	}
	for i := pos; i < len(data); i++ {
		if data[i] == 0 {
			return string(data[pos:i]), i - pos + 1, true
		}
	}
	return "", 0, false
}

// readULEB128 decodes an unsigned Little Endian Base 128 number. It
// fails rather than silently wrapping once the shift would pass 64 bits.
func readULEB128(data []byte, pos int) (uint64, int, bool) {
	var (
		result uint64
		shift  uint
		n      int
	)
	for {
		b, ok := readUint8(data, pos+n)
		if !ok {
			return 0, 0, false
		}
		n++
		// The 10th group sits at shift 63 and can only contribute one
		// bit; anything larger would be shifted out silently.
		if shift == 63 && b&0x7f > 1 {
			return 0, 0, false
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, n, true
		}
		shift += 7
		if shift >= 64 {
			return 0, 0, false
		}
	}
}

// readSLEB128 decodes a signed Little Endian Base 128 number,
// sign-extending from the high bit of the final group when fewer than 64
// bits were consumed.
func readSLEB128(data []byte, pos int) (int64, int, bool) {
	var (
		result int64
		shift  uint
		n      int
		b      uint8
		ok     bool
	)
	for {
		b, ok = readUint8(data, pos+n)
		if !ok {
			return 0, 0, false
		}
		n++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift >= 64 {
			return 0, 0, false
		}
	}
	if shift < 64 && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, n, true
}
