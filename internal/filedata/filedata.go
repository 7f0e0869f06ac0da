// Package filedata implements the DSO file-container loader summarized
// informally in spec §6: it turns a raw .dso file into the read-only
// disasm.FileData view the disassembler consumes. The disassembler
// never sees these bytes directly, only this interface — the loader is
// a swappable external collaborator, not part of the core (spec §1).
package filedata

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/torquescript/dsodecompile/internal/decompileerr"
	"github.com/torquescript/dsodecompile/internal/disasm"
)

// minVersion and maxVersion bound the header version word this loader
// understands. The opcode table (internal/opcode) does not vary across
// this range; --version on the CLI only cross-checks against what the
// file itself declares.
const (
	minVersion = 1
	maxVersion = 33
)

// File is the in-memory view of a loaded DSO file. It implements
// disasm.FileData.
type File struct {
	version uint32

	strings []byte
	floats  []float64
	code    []uint32

	// identOffsets records which code offsets the fixup table listed.
	// Only those offsets are real identifier references; any other
	// offset an (unexpected) caller queries resolves to ("", false)
	// regardless of the word sitting there.
	identOffsets map[uint32]bool
}

var _ disasm.FileData = (*File)(nil)

// Version reports the DSO format version this file's header declared.
func (f *File) Version() uint32 { return f.version }

// Load reads a DSO file from r: header version word, global string
// table, global float table, length-prefixed code segment, identifier
// fixup table. Every listed fixup offset is patched into the code
// segment before Load returns, so the disassembler's Op reads already
// see resolved values, per spec §6 ("the core assumes this fixup has
// already been applied").
func Load(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)

	version, err := readU32(br)
	if err != nil {
		return nil, decompileerr.Wrap(decompileerr.Format, err, "reading DSO header")
	}
	if version < minVersion || version > maxVersion {
		return nil, decompileerr.New(decompileerr.Format, "unsupported DSO version %d", version)
	}

	strTab, err := readByteSection(br)
	if err != nil {
		return nil, decompileerr.Wrap(decompileerr.Format, err, "reading global string table")
	}

	floatCount, err := readU32(br)
	if err != nil {
		return nil, decompileerr.Wrap(decompileerr.Format, err, "reading float table count")
	}
	floats := make([]float64, floatCount)
	for i := range floats {
		bits, err := readU64(br)
		if err != nil {
			return nil, decompileerr.Wrap(decompileerr.Format, err, "reading float table entry %d", i)
		}
		floats[i] = math.Float64frombits(bits)
	}

	codeCount, err := readU32(br)
	if err != nil {
		return nil, decompileerr.Wrap(decompileerr.Format, err, "reading code segment length")
	}
	code := make([]uint32, codeCount)
	for i := range code {
		w, err := readU32(br)
		if err != nil {
			return nil, decompileerr.Wrap(decompileerr.Format, err, "reading code word %d", i)
		}
		code[i] = w
	}

	fixupCount, err := readU32(br)
	if err != nil {
		return nil, decompileerr.Wrap(decompileerr.Format, err, "reading identifier fixup count")
	}

	identOffsets := make(map[uint32]bool)
	for i := uint32(0); i < fixupCount; i++ {
		value, err := readU32(br)
		if err != nil {
			return nil, decompileerr.Wrap(decompileerr.Format, err, "reading fixup entry %d value", i)
		}
		offsetCount, err := readU32(br)
		if err != nil {
			return nil, decompileerr.Wrap(decompileerr.Format, err, "reading fixup entry %d offset count", i)
		}
		for j := uint32(0); j < offsetCount; j++ {
			offset, err := readU32(br)
			if err != nil {
				return nil, decompileerr.Wrap(decompileerr.Format, err, "reading fixup entry %d offset %d", i, j)
			}
			if offset >= uint32(len(code)) {
				return nil, decompileerr.New(decompileerr.Format, "fixup offset %d outside code segment of length %d", offset, len(code))
			}
			code[offset] = value
			identOffsets[offset] = true
		}
	}

	return &File{
		version:      version,
		strings:      strTab,
		floats:       floats,
		code:         code,
		identOffsets: identOffsets,
	}, nil
}

func readU32(r io.Reader) (uint32, error) {
	var w uint32
	if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
		return 0, err
	}
	return w, nil
}

func readU64(r io.Reader) (uint64, error) {
	var w uint64
	if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
		return 0, err
	}
	return w, nil
}

func readByteSection(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// CodeSize implements disasm.FileData.
func (f *File) CodeSize() uint32 { return uint32(len(f.code)) }

// Op implements disasm.FileData.
func (f *File) Op(at uint32) uint32 {
	if at >= uint32(len(f.code)) {
		return 0
	}
	return f.code[at]
}

// Identifier implements disasm.FileData. at is the code offset the
// operand word was read from, not the word itself: only offsets the
// fixup table actually listed are identifier references, regardless
// of what raw (the already-patched word sitting at that offset)
// contains.
func (f *File) Identifier(at uint32, raw uint32) (string, bool) {
	if !f.identOffsets[at] {
		return "", false
	}
	return f.StringTable(raw), true
}

// StringTable implements disasm.FileData: raw is a byte offset into
// the global string table, and the string runs to the next NUL (or to
// the end of the table, if somehow unterminated).
func (f *File) StringTable(raw uint32) string {
	if raw >= uint32(len(f.strings)) {
		return ""
	}
	end := raw
	for end < uint32(len(f.strings)) && f.strings[end] != 0 {
		end++
	}
	return string(f.strings[raw:end])
}

// FloatTable implements disasm.FileData: raw indexes directly into the
// global float table.
func (f *File) FloatTable(raw uint32) float64 {
	if raw >= uint32(len(f.floats)) {
		return 0
	}
	return f.floats[raw]
}
