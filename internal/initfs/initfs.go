package initfs

// SeekWhence selects the reference point a Seek offset is relative to.
type SeekWhence int

const (
	SeekStart SeekWhence = iota
	SeekCurrent
	SeekEnd
)

// OpenMode is the access mode a File is opened with. The embedded
// archive is read-only, matching FilesystemDevice::open's "mode !=
// OpenMode::Read ⇒ OperationNotSupported" guard.
type OpenMode int

const (
	OpenRead OpenMode = iota
)

var (
	ErrOperationNotSupported = &Error{Reason: "operation not supported"}
	ErrFileNotFound          = &Error{Reason: "file not found"}
	ErrEndOfFile             = &Error{Reason: "end of file"}
	ErrInvalidFilesystem     = &Error{Reason: "invalid filesystem image"}
)

// Archive is a CPIO "070701" image mounted read-only, the way
// mount_from_static_data wraps a &'static [u8] into an InitFsDevice.
type Archive struct {
	data []byte
}

// Mount validates that data begins with at least one well-formed CPIO
// entry and wraps it as an Archive, mirroring
// InitFsDriver::mount_from_static_data's "parse the first entry, reject
// an archive that is empty or malformed" check.
func Mount(data []byte) (*Archive, error) {
	e, err := parseEntry(data)
	if err != nil {
		return nil, ErrInvalidFilesystem
	}
	if e == nil {
		return nil, ErrInvalidFilesystem
	}
	return &Archive{data: data}, nil
}

// File is an open handle into the archive: a cursor over one entry's
// data region, matching FileDescription's block_offset/size/read_offset
// fields.
type File struct {
	archive     *Archive
	blockOffset int
	filetype    FileType
	mode        uint32
	uid, gid    uint32
	size        int
	readOffset  int
}

// Type returns the entry's file type, derived from its mode bits.
func (f *File) Type() FileType { return f.filetype }

// Size returns the entry's declared size in bytes.
func (f *File) Size() int { return f.size }

// Open scans the archive depth-first for path, matching find_node's
// linear walk (the archive's declared ordering guarantees a directory's
// children all appear before any sibling at the same depth). path may
// carry a leading "/"; it is stripped before comparison, matching
// find_node's own strip_prefix('/').
func (a *Archive) Open(path string, mode OpenMode) (*File, error) {
	if mode != OpenRead {
		return nil, ErrOperationNotSupported
	}
	path = stripNamePrefix(path)

	offset := 0
	for {
		e, err := parseEntry(a.data[offset:])
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, ErrFileNotFound
		}
		if e.name == path {
			ft, err := typeFromMode(e.mode)
			if err != nil {
				return nil, err
			}
			return &File{
				archive:     a,
				blockOffset: offset,
				filetype:    ft,
				mode:        e.mode,
				uid:         e.uid,
				gid:         e.gid,
				size:        int(e.filesize),
			}, nil
		}
		offset += e.nextEntryOffset
	}
}

// Read copies up to len(buf) bytes starting at the file's current
// cursor, advances the cursor, and returns the count copied. It returns
// ErrEndOfFile only when the cursor was already strictly past Size on
// entry (at exactly Size it returns 0, nil) — a short read (buffer
// longer than the remaining bytes) is not an error, matching read's own
// available_bytes/copy_size clamping.
func (f *File) Read(buf []byte) (int, error) {
	e, err := parseEntry(f.archive.data[f.blockOffset:])
	if err != nil {
		return 0, err
	}
	dataOffset := f.blockOffset + e.dataOffset

	if f.readOffset > f.size {
		return 0, ErrEndOfFile
	}

	available := f.size - f.readOffset
	n := len(buf)
	if n > available {
		n = available
	}

	start := dataOffset + f.readOffset
	copy(buf[:n], f.archive.data[start:start+n])
	f.readOffset += n
	return n, nil
}

// Seek repositions the read cursor and returns the resulting absolute
// offset. Start/CurrentPosition/End are all supported; negative
// resulting offsets are rejected rather than clamped.
func (f *File) Seek(offset int, whence SeekWhence) (int, error) {
	var base int
	switch whence {
	case SeekStart:
		base = 0
	case SeekCurrent:
		base = f.readOffset
	case SeekEnd:
		base = f.size
	default:
		return 0, &Error{Reason: "invalid seek whence"}
	}

	pos := base + offset
	if pos < 0 {
		return 0, &Error{Reason: "seek before start of file"}
	}
	f.readOffset = pos
	return pos, nil
}

// Close is a no-op: the archive is a read-only in-memory image with no
// underlying resource to release, matching InitFsDevice::close.
func (f *File) Close() {}
