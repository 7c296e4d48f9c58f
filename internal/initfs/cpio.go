// Package initfs is the embedded root filesystem reader (component K): a
// "new ASCII" (070701) CPIO archive reader plus a tiny open/read/seek/
// close shim over it.
//
// Grounded directly on original_source/p1c0_kernel/src/filesystem/cpio.rs
// (header field byte offsets, parse_hex32's nibble decoding, the 4-byte
// alignment of name and data, the TRAILER!!! sentinel) and
// filesystem/initfs.rs (find_node's depth-first linear scan, the
// FileDescription cursor fields, and read's past-size EndOfFile check).
// The hand-rolled fixed-offset byte parsing follows the same
// "no encoding/binary" shape internal/elf already established for this
// kernel's other ASCII/binary fixed-layout readers.
package initfs

import "fmt"

const (
	magic      = "070701"
	headerSize = 110
)

const (
	offInode    = 6
	offMode     = 14
	offUID      = 22
	offGID      = 30
	offNlink    = 38
	offMtime    = 46
	offFilesize = 54
	offNamesize = 94
	offCheck    = 102
)

// file mode bits, S_IFMT and its members — matches
// filesystem/permissions.rs's constants closely enough to classify entries.
const (
	sIFMT  = 0o170000
	sIFIFO = 0o010000
	sIFCHR = 0o020000
	sIFDIR = 0o040000
	sIFBLK = 0o060000
	sIFREG = 0o100000
	sIFLNK = 0o120000
	sIFSOCK = 0o140000
)

// FileType classifies an entry's mode bits.
type FileType int

const (
	TypeUnknown FileType = iota
	TypeFIFO
	TypeCharDevice
	TypeDirectory
	TypeBlockDevice
	TypeRegular
	TypeSymlink
	TypeSocket
)

func typeFromMode(mode uint32) (FileType, error) {
	switch mode & sIFMT {
	case sIFIFO:
		return TypeFIFO, nil
	case sIFCHR:
		return TypeCharDevice, nil
	case sIFDIR:
		return TypeDirectory, nil
	case sIFBLK:
		return TypeBlockDevice, nil
	case sIFREG:
		return TypeRegular, nil
	case sIFLNK:
		return TypeSymlink, nil
	case sIFSOCK:
		return TypeSocket, nil
	default:
		return TypeUnknown, &Error{Reason: fmt.Sprintf("invalid file mode %#o", mode)}
	}
}

// Error is a parse or operation failure.
type Error struct{ Reason string }

func (e *Error) Error() string { return "initfs: " + e.Reason }

// entry is one parsed CPIO header plus the archive offsets needed to
// locate its name and data.
type entry struct {
	inode, mode, uid, gid uint32
	namesize, filesize    uint32
	name                  string
	dataOffset            int
	nextEntryOffset       int
}

func parseHex32(field []byte) (uint32, bool) {
	if len(field) != 8 {
		return 0, false
	}
	var v uint32
	for _, c := range field {
		var nibble uint32
		switch {
		case c >= '0' && c <= '9':
			nibble = uint32(c - '0')
		case c >= 'a' && c <= 'f':
			nibble = uint32(c-'a') + 10
		case c >= 'A' && c <= 'F':
			nibble = uint32(c-'A') + 10
		default:
			return 0, false
		}
		v = (v << 4) + nibble
	}
	return v, true
}

func field(data []byte, off int) (uint32, error) {
	v, ok := parseHex32(data[off : off+8])
	if !ok {
		return 0, &Error{Reason: "malformed hex header field"}
	}
	return v, nil
}

// align4 rounds n up to the next multiple of 4, matching the archive's
// name/data padding.
func align4(n int) int { return (n + 3) &^ 3 }

// parseEntry decodes the CPIO header at the start of data. A nil entry
// with a nil error means the TRAILER!!! sentinel was reached — the
// archive's declared end, per cpio::parse_entry's Ok(None) case.
func parseEntry(data []byte) (*entry, error) {
	if len(data) < headerSize {
		return nil, &Error{Reason: "header smaller than expected"}
	}
	if string(data[:len(magic)]) != magic {
		return nil, &Error{Reason: "invalid cpio magic"}
	}

	check, err := field(data, offCheck)
	if err != nil {
		return nil, err
	}
	if check != 0 {
		return nil, &Error{Reason: "nonzero check field"}
	}

	namesize, err := field(data, offNamesize)
	if err != nil {
		return nil, err
	}
	filesize, err := field(data, offFilesize)
	if err != nil {
		return nil, err
	}

	nameOffset := headerSize
	if uint64(nameOffset)+uint64(namesize) > uint64(len(data)) || namesize == 0 {
		return nil, &Error{Reason: "name runs past end of archive"}
	}
	dataOffset := align4(nameOffset + int(namesize))
	nextEntryOffset := align4(dataOffset + int(filesize))

	name := string(data[nameOffset : nameOffset+int(namesize)-1]) // drop NUL terminator
	name = stripNamePrefix(name)

	if name == "TRAILER!!!" {
		return nil, nil
	}

	inode, err := field(data, offInode)
	if err != nil {
		return nil, err
	}
	mode, err := field(data, offMode)
	if err != nil {
		return nil, err
	}
	uid, err := field(data, offUID)
	if err != nil {
		return nil, err
	}
	gid, err := field(data, offGID)
	if err != nil {
		return nil, err
	}

	return &entry{
		inode:           inode,
		mode:            mode,
		uid:             uid,
		gid:             gid,
		namesize:        namesize,
		filesize:        filesize,
		name:            name,
		dataOffset:      dataOffset,
		nextEntryOffset: nextEntryOffset,
	}, nil
}

// stripNamePrefix drops a leading "./" or "/", matching parse_entry's
// normalization so archive-relative and absolute-looking paths resolve
// the same node.
func stripNamePrefix(name string) string {
	switch {
	case len(name) >= 2 && name[:2] == "./":
		return name[2:]
	case len(name) >= 1 && name[0] == '/':
		return name[1:]
	default:
		return name
	}
}
