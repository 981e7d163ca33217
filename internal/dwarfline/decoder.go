// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

// Package dwarfline decodes the DWARF line-number program embedded in a
// WASM module's .debug_line section, mapping one instruction address to a
// source file, line, and column.
//
// It is a targeted replay, not a general DWARF library: a single DWARF32
// v2-v5 compilation unit is parsed and its opcode stream executed until
// the first row matching the target address. 64-bit DWARF, multi-unit
// aggregation, and inline chains are out of scope.
package dwarfline

// Standard opcodes (DWARF v4, section 6.2.5.2).
const (
	DW_LNS_copy         = 1
	DW_LNS_advance_pc   = 2
	DW_LNS_advance_line = 3
	DW_LNS_set_file     = 4
	DW_LNS_set_column   = 5
	DW_LNS_negate_stmt  = 6
)

// Extended opcodes.
const (
	DW_LINE_end_sequence = 1
	DW_LINE_set_address  = 2
)

// dwarf64Marker in the unit_length field signals 64-bit DWARF, which
// this decoder does not support.
const dwarf64Marker = 0xffffffff

// Entry is one resolved row of the line table. Line is 1-based and
// clamped to 0 on underflow; Column 0 means unknown.
type Entry struct {
	File   string
	Line   uint32
	Column uint32
}

// registers is the line-number state machine register file. A line
// program may contain several independent address sequences; the
// registers reset to their initial values on every end_sequence.
type registers struct {
	address uint64
	file    int
	line    int64
	column  uint64
}

func newRegisters() registers {
	return registers{file: 1, line: 1}
}

type fileEntry struct {
	name     string
	dirIndex int
}

// program holds one parsed compilation-unit header plus its file and
// directory tables. The opcode stream only indexes into the tables.
type program struct {
	data    []byte
	unitEnd int

	version        uint16
	minInstrLength uint8
	maxOpsPerInstr uint8
	lineBase       int8
	lineRange      uint8
	opcodeBase     uint8
	stdOpLengths   []uint8

	includeDirs []string
	fileNames   []fileEntry
}

// parseProgram decodes the unit header and the directory and file name
// tables, returning the program and the offset where the opcode stream
// begins. header_length is authoritative for the stream start,
// independent of how many bytes the table parsing consumed.
func parseProgram(data []byte) (*program, int, bool) {
	pos := 0

	unitLength, ok := readUint32(data, pos)
	if !ok || unitLength == dwarf64Marker {
		return nil, 0, false
	}
	pos += 4

	unitEnd := pos + int(unitLength)
	if unitEnd > len(data) {
		return nil, 0, false
	}

	version, ok := readUint16(data, pos)
	if !ok || version < 2 || version > 5 {
		return nil, 0, false
	}
	pos += 2

	headerLength, ok := readUint32(data, pos)
	if !ok {
		return nil, 0, false
	}
	pos += 4
	programStart := pos + int(headerLength)

	p := &program{data: data, unitEnd: unitEnd, version: version}

	if p.minInstrLength, ok = readUint8(data, pos); !ok {
		return nil, 0, false
	}
	pos++

	// maximum_ops_per_instruction was introduced in DWARF v4.
	p.maxOpsPerInstr = 1
	if version >= 4 {
		if p.maxOpsPerInstr, ok = readUint8(data, pos); !ok {
			return nil, 0, false
		}
		pos++
	}
	if p.minInstrLength == 0 || p.maxOpsPerInstr == 0 {
		return nil, 0, false
	}

	// default_is_stmt is irrelevant to address lookup.
	if _, ok = readUint8(data, pos); !ok {
		return nil, 0, false
	}
	pos++

	if p.lineBase, ok = readInt8(data, pos); !ok {
		return nil, 0, false
	}
	pos++

	if p.lineRange, ok = readUint8(data, pos); !ok || p.lineRange == 0 {
		return nil, 0, false
	}
	pos++

	if p.opcodeBase, ok = readUint8(data, pos); !ok {
		return nil, 0, false
	}
	pos++

	stdCount := int(p.opcodeBase) - 1
	if stdCount < 0 {
		stdCount = 0
	}
	if pos+stdCount > len(data) {
		return nil, 0, false
	}
	p.stdOpLengths = append([]uint8(nil), data[pos:pos+stdCount]...)
	pos += stdCount

	// include_directories: null-terminated strings, list terminated by an
	// empty string. Index 0 is the compilation directory.
	p.includeDirs = []string{""}
	for {
		b, ok := readUint8(data, pos)
		if !ok {
			return nil, 0, false
		}
		if b == 0 {
			pos++
			break
		}
		s, n, ok := readCString(data, pos)
		if !ok {
			return nil, 0, false
		}
		p.includeDirs = append(p.includeDirs, s)
		pos += n
	}

	// file_names: (name, dir_index, mtime, length) entries terminated by
	// a zero byte. Index 0 is unused per the format.
	p.fileNames = []fileEntry{{}}
	for {
		b, ok := readUint8(data, pos)
		if !ok {
			return nil, 0, false
		}
		if b == 0 {
			break
		}
		name, n, ok := readCString(data, pos)
		if !ok {
			return nil, 0, false
		}
		pos += n
		dirIdx, n, ok := readULEB128(data, pos)
		if !ok {
			return nil, 0, false
		}
		pos += n
		if _, n, ok = readULEB128(data, pos); !ok { // mtime, discarded
			return nil, 0, false
		}
		pos += n
		if _, n, ok = readULEB128(data, pos); !ok { // length, discarded
			return nil, 0, false
		}
		pos += n
		p.fileNames = append(p.fileNames, fileEntry{name: name, dirIndex: int(dirIdx)})
	}

	if programStart > unitEnd {
		return nil, 0, false
	}
	return p, programStart, true
}

// step executes the single opcode at pos, mutating regs, and reports
// whether the opcode emitted a row. It returns the position of the next
// opcode; ok is false on any structural fault.
func (p *program) step(regs *registers, pos int) (next int, emitted bool, ok bool) {
	opcode, ok := readUint8(p.data, pos)
	if !ok {
		return 0, false, false
	}
	pos++

	switch {
	case opcode == 0:
		return p.stepExtended(regs, pos)

	case opcode < p.opcodeBase:
		return p.stepStandard(regs, opcode, pos)

	default:
		// Special opcode: a packed address and line delta that also
		// emits a row.
		adjusted := opcode - p.opcodeBase
		opAdvance := adjusted / p.lineRange
		lineDelta := int64(p.lineBase) + int64(adjusted%p.lineRange)

		regs.address += uint64(opAdvance) * uint64(p.minInstrLength) / uint64(p.maxOpsPerInstr)
		regs.line += lineDelta
		return pos, true, true
	}
}

func (p *program) stepExtended(regs *registers, pos int) (int, bool, bool) {
	extLen, n, ok := readULEB128(p.data, pos)
	if !ok || extLen == 0 {
		// The declared length covers the sub-opcode byte, so zero means
		// there is no sub-opcode to read.
		return 0, false, false
	}
	pos += n
	extEnd := pos + int(extLen)
	if extEnd > len(p.data) || extEnd < pos {
		return 0, false, false
	}

	sub, ok := readUint8(p.data, pos)
	if !ok {
		return 0, false, false
	}
	pos++

	switch sub {
	case DW_LINE_end_sequence:
		*regs = newRegisters()
	case DW_LINE_set_address:
		// 4-byte address, 32-bit WASM target.
		if pos+4 > extEnd {
			return 0, false, false
		}
		addr, ok := readUint32(p.data, pos)
		if !ok {
			return 0, false, false
		}
		regs.address = uint64(addr)
	default:
		// Unknown extended opcode: skip the declared length.
	}
	return extEnd, false, true
}

func (p *program) stepStandard(regs *registers, opcode uint8, pos int) (int, bool, bool) {
	switch opcode {
	case DW_LNS_copy:
		return pos, true, true

	case DW_LNS_advance_pc:
		operand, n, ok := readULEB128(p.data, pos)
		if !ok {
			return 0, false, false
		}
		regs.address += operand * uint64(p.minInstrLength) / uint64(p.maxOpsPerInstr)
		return pos + n, false, true

	case DW_LNS_advance_line:
		delta, n, ok := readSLEB128(p.data, pos)
		if !ok {
			return 0, false, false
		}
		regs.line += delta
		return pos + n, false, true

	case DW_LNS_set_file:
		f, n, ok := readULEB128(p.data, pos)
		if !ok {
			return 0, false, false
		}
		regs.file = int(f)
		return pos + n, false, true

	case DW_LNS_set_column:
		c, n, ok := readULEB128(p.data, pos)
		if !ok {
			return 0, false, false
		}
		regs.column = c
		return pos + n, false, true

	case DW_LNS_negate_stmt:
		// Statement flag does not affect address lookup.
		return pos, false, true

	default:
		// Consume the declared operand count and ignore.
		count := 0
		if int(opcode)-1 < len(p.stdOpLengths) {
			count = int(p.stdOpLengths[opcode-1])
		}
		for i := 0; i < count; i++ {
			_, n, ok := readULEB128(p.data, pos)
			if !ok {
				return 0, false, false
			}
			pos += n
		}
		return pos, false, true
	}
}

// entryAt builds the resolved row for the current register values, using
// the file and directory tables. It fails if the file index is out of
// range.
func (p *program) entryAt(regs *registers) (Entry, bool) {
	if regs.file < 0 || regs.file >= len(p.fileNames) {
		return Entry{}, false
	}
	fe := p.fileNames[regs.file]

	dir := ""
	if fe.dirIndex >= 0 && fe.dirIndex < len(p.includeDirs) {
		dir = p.includeDirs[fe.dirIndex]
	}
	path := fe.name
	if dir != "" {
		path = dir + "/" + fe.name
	}

	line := regs.line
	if line < 0 {
		line = 0
	}
	return Entry{
		File:   path,
		Line:   uint32(line),
		Column: uint32(regs.column),
	}, true
}

// ResolveAddress replays the line program in data until the first row
// whose address equals targetAddr and returns the corresponding entry.
// It returns ok=false on any structural inconsistency (truncated data,
// 64-bit DWARF, unsupported version, zero-valued divisor fields) or if
// the address is never reached.
func ResolveAddress(data []byte, targetAddr uint64) (Entry, bool) {
	p, pos, ok := parseProgram(data)
	if !ok {
		return Entry{}, false
	}

	regs := newRegisters()
	for pos < p.unitEnd {
		next, emitted, ok := p.step(&regs, pos)
		if !ok {
			return Entry{}, false
		}
		if emitted && regs.address == targetAddr {
			return p.entryAt(&regs)
		}
		pos = next
	}
	return Entry{}, false
}
