// Package elf hand-parses the fixed-layout ELF64/AArch64 header and
// program header arrays directly out of an in-memory image, the same
// way this kernel reads every other fixed-offset structure out of a raw
// byte buffer. The standard library's debug/elf is deliberately not
// used here: it is built around an io.ReaderAt-backed host file and
// pulls in generic multi-class/multi-machine handling this kernel never
// needs,
// since every process image loaded is frozen to one class (ELF64) and
// one machine (AArch64) — grounded on
// original_source/p1c0_kernel/src/elf.rs's ElfParser, which makes the
// same narrowing.
package elf

import (
	"encoding/binary"
	"fmt"
)

// EType is the ELF file type (e_type).
type EType uint16

const (
	ETypeNone        EType = 0
	ETypeRelocatable EType = 1
	ETypeExecutable  EType = 2
	ETypeSharedObject EType = 3
	ETypeCore        EType = 4
)

// PType is a program header's segment type (p_type).
type PType uint32

const (
	PTypeNull PType = 0
	PTypeLoad PType = 1
	PTypeDynamic PType = 2
	PTypeInterp PType = 3
	PTypeNote PType = 4
)

const (
	pfExec  = 1 << 0
	pfWrite = 1 << 1
	pfRead  = 1 << 2

	ehdrSize = 64
	phdrSize = 56
	shdrSize = 64

	elfMagic0, elfMagic1, elfMagic2, elfMagic3 = 0x7f, 'E', 'L', 'F'
	elfClass64                                  = 2
	elfDataLSB                                  = 1
	machineAArch64                              = 183
)

// Error is a parse-time failure, matching process.rs's elf::Error being
// wrapped into process::Error::ElfError.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "elf: " + e.Reason }

// Permissions is a program header's {read, write, exec} flag triple, one
// bool per PF_R/PF_W/PF_X bit.
type Permissions struct {
	Read, Write, Exec bool
}

// ProgramHeader is one PT_* entry.
type ProgramHeader struct {
	Type     PType
	Flags    uint32
	Offset   uint64
	VAddr    uint64
	PAddr    uint64
	FileSize uint64
	MemSize  uint64
	Align    uint64
}

// Permissions collapses a program header's RWX flag bits.
func (p ProgramHeader) Permissions() Permissions {
	return Permissions{
		Read:  p.Flags&pfRead != 0,
		Write: p.Flags&pfWrite != 0,
		Exec:  p.Flags&pfExec != 0,
	}
}

// File is a parsed ELF64 image. It keeps a reference to the source
// byte slice so SegmentData can return file-backed segment contents
// without copying.
type File struct {
	raw   []byte
	typ   EType
	entry uint64
	phdrs []ProgramHeader

	shstrtab []byte
	sections []sectionHeader
}

type sectionHeader struct {
	name  uint32
	addr  uint64
	sType uint32
}

// Type is the file's e_type.
func (f *File) Type() EType { return f.typ }

// Entry is the file's e_entry (before any ASLR offset is applied).
func (f *File) Entry() uint64 { return f.entry }

// ProgramHeaders returns every parsed program header, in file order.
func (f *File) ProgramHeaders() []ProgramHeader { return f.phdrs }

// SegmentData returns the file-backed bytes for a PT_LOAD header —
// shorter than MemSize whenever the segment has a BSS tail.
func (f *File) SegmentData(ph ProgramHeader) []byte {
	return f.raw[ph.Offset : ph.Offset+ph.FileSize]
}

// SectionName returns the name of the section whose sh_addr matches the
// program header's VAddr, or "" if none matches — mirroring
// matching_section_name's "unwrap_or("")" fallback in process.rs.
func (f *File) SectionName(ph ProgramHeader) string {
	if ph.VAddr == 0 {
		return ""
	}
	for _, sh := range f.sections {
		if sh.addr == ph.VAddr {
			return cString(f.shstrtab, sh.name)
		}
	}
	return ""
}

// Parse validates the ELF64/AArch64 header and decodes every program
// header (and, best-effort, the section header string table used for
// segment-name lookup).
func Parse(data []byte) (*File, error) {
	if len(data) < ehdrSize {
		return nil, &Error{Reason: "image shorter than an ELF64 header"}
	}
	if data[0] != elfMagic0 || data[1] != elfMagic1 || data[2] != elfMagic2 || data[3] != elfMagic3 {
		return nil, &Error{Reason: "bad magic"}
	}
	if data[4] != elfClass64 {
		return nil, &Error{Reason: "not an ELF64 image"}
	}
	if data[5] != elfDataLSB {
		return nil, &Error{Reason: "not little-endian"}
	}

	le := binary.LittleEndian
	machine := le.Uint16(data[18:20])
	if machine != machineAArch64 {
		return nil, &Error{Reason: fmt.Sprintf("unsupported machine %d, want AArch64", machine)}
	}

	f := &File{
		raw:   data,
		typ:   EType(le.Uint16(data[16:18])),
		entry: le.Uint64(data[24:32]),
	}

	phoff := le.Uint64(data[32:40])
	phentsize := uint64(le.Uint16(data[54:56]))
	phnum := uint64(le.Uint16(data[56:58]))
	if phentsize != 0 && phentsize != phdrSize {
		return nil, &Error{Reason: "unexpected program header entry size"}
	}

	for i := uint64(0); i < phnum; i++ {
		base := phoff + i*phentsize
		if base+phdrSize > uint64(len(data)) {
			return nil, &Error{Reason: "program header table runs past end of image"}
		}
		p := data[base : base+phdrSize]
		f.phdrs = append(f.phdrs, ProgramHeader{
			Type:     PType(le.Uint32(p[0:4])),
			Flags:    le.Uint32(p[4:8]),
			Offset:   le.Uint64(p[8:16]),
			VAddr:    le.Uint64(p[16:24]),
			PAddr:    le.Uint64(p[24:32]),
			FileSize: le.Uint64(p[32:40]),
			MemSize:  le.Uint64(p[40:48]),
			Align:    le.Uint64(p[48:56]),
		})
	}

	f.parseSections(le)
	return f, nil
}

// parseSections is best-effort: a stripped or minimal image may carry no
// section headers at all, in which case SectionName always returns "".
func (f *File) parseSections(le binary.ByteOrder) {
	shoff := le.Uint64(f.raw[40:48])
	shentsize := uint64(le.Uint16(f.raw[58:60]))
	shnum := uint64(le.Uint16(f.raw[60:62]))
	shstrndx := uint64(le.Uint16(f.raw[62:64]))
	if shoff == 0 || shnum == 0 || shentsize != shdrSize {
		return
	}

	type raw struct {
		name, sType uint32
		offset, size, addr uint64
	}
	var headers []raw
	for i := uint64(0); i < shnum; i++ {
		base := shoff + i*shentsize
		if base+shdrSize > uint64(len(f.raw)) {
			return
		}
		s := f.raw[base : base+shdrSize]
		headers = append(headers, raw{
			name:   le.Uint32(s[0:4]),
			sType:  le.Uint32(s[4:8]),
			addr:   le.Uint64(s[16:24]),
			offset: le.Uint64(s[24:32]),
			size:   le.Uint64(s[32:40]),
		})
	}
	if shstrndx >= uint64(len(headers)) {
		return
	}
	strtab := headers[shstrndx]
	if strtab.offset+strtab.size > uint64(len(f.raw)) {
		return
	}
	f.shstrtab = f.raw[strtab.offset : strtab.offset+strtab.size]
	for _, h := range headers {
		f.sections = append(f.sections, sectionHeader{name: h.name, addr: h.addr, sType: h.sType})
	}
}

func cString(strtab []byte, offset uint32) string {
	if strtab == nil || uint64(offset) >= uint64(len(strtab)) {
		return ""
	}
	end := offset
	for end < uint32(len(strtab)) && strtab[end] != 0 {
		end++
	}
	return string(strtab[offset:end])
}
