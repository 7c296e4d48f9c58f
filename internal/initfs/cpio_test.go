package initfs

import "testing"

// buildArchive hand-assembles a minimal "070701" CPIO archive containing
// the given name/mode/data entries, terminated by a TRAILER!!! record —
// the exact byte layout parseEntry expects (110-byte hex header, name
// padded to a 4-byte boundary, data padded to a 4-byte boundary).
func buildArchive(t *testing.T, entries []struct {
	name string
	mode uint32
	data []byte
}) []byte {
	t.Helper()
	var out []byte

	writeEntry := func(name string, mode uint32, data []byte) {
		nameBytes := append([]byte(name), 0)
		hdr := make([]byte, headerSize)
		copy(hdr, magic)
		putHex := func(off int, v uint32) {
			const hexDigits = "0123456789abcdef"
			for i := 7; i >= 0; i-- {
				hdr[off+i] = hexDigits[v&0xf]
				v >>= 4
			}
		}
		putHex(offInode, 1)
		putHex(offMode, mode)
		putHex(offUID, 0)
		putHex(offGID, 0)
		putHex(offNlink, 1)
		putHex(offMtime, 0)
		putHex(offFilesize, uint32(len(data)))
		putHex(offNamesize, uint32(len(nameBytes)))
		putHex(offCheck, 0)

		out = append(out, hdr...)
		out = append(out, nameBytes...)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
		out = append(out, data...)
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
	}

	for _, e := range entries {
		writeEntry(e.name, e.mode, e.data)
	}
	writeEntry("TRAILER!!!", 0, nil)
	return out
}

func TestMountRejectsEmptyArchive(t *testing.T) {
	img := buildArchive(t, nil)
	if _, err := Mount(img); err != ErrInvalidFilesystem {
		t.Fatalf("Mount err = %v, want ErrInvalidFilesystem", err)
	}
}

func TestMountRejectsGarbage(t *testing.T) {
	if _, err := Mount([]byte("not a cpio archive at all, much too short")); err != ErrInvalidFilesystem {
		t.Fatalf("Mount err = %v, want ErrInvalidFilesystem", err)
	}
}

func TestOpenFindsEntryAndStripsPrefixes(t *testing.T) {
	img := buildArchive(t, []struct {
		name string
		mode uint32
		data []byte
	}{
		{name: "./bin/init", mode: sIFREG | 0o755, data: []byte("hello world")},
	})
	a, err := Mount(img)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	for _, path := range []string{"bin/init", "/bin/init"} {
		f, err := a.Open(path, OpenRead)
		if err != nil {
			t.Fatalf("Open(%q): %v", path, err)
		}
		if f.Type() != TypeRegular {
			t.Fatalf("Type() = %v, want TypeRegular", f.Type())
		}
		if f.Size() != len("hello world") {
			t.Fatalf("Size() = %d, want %d", f.Size(), len("hello world"))
		}
	}
}

func TestOpenMissingFileFails(t *testing.T) {
	img := buildArchive(t, []struct {
		name string
		mode uint32
		data []byte
	}{
		{name: "a", mode: sIFREG, data: []byte("x")},
	})
	a, err := Mount(img)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if _, err := a.Open("missing", OpenRead); err != ErrFileNotFound {
		t.Fatalf("Open err = %v, want ErrFileNotFound", err)
	}
}

func TestReadCopiesAndAdvancesCursor(t *testing.T) {
	img := buildArchive(t, []struct {
		name string
		mode uint32
		data []byte
	}{
		{name: "greeting", mode: sIFREG, data: []byte("hello world")},
	})
	a, err := Mount(img)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	f, err := a.Open("greeting", OpenRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 5 || string(buf) != "hello" {
		t.Fatalf("Read = %d,%q want 5,hello", n, buf)
	}

	rest := make([]byte, 100)
	n, err = f.Read(rest)
	if err != nil {
		t.Fatalf("second Read: %v", err)
	}
	if n != len(" world") || string(rest[:n]) != " world" {
		t.Fatalf("second Read = %d,%q want %d,' world'", n, rest[:n], len(" world"))
	}

	n, err = f.Read(rest)
	if err != nil || n != 0 {
		t.Fatalf("read exactly at EOF should return 0,nil (not EndOfFile); got %d,%v", n, err)
	}

	// A cursor can only move strictly past size via an explicit Seek
	// (Read's own copy_size clamp never lets read_offset exceed size);
	// only then does Read's "read_offset > size" guard fire.
	if _, err := f.Seek(1, SeekEnd); err != nil {
		t.Fatalf("Seek past end: %v", err)
	}
	if _, err := f.Read(rest); err != ErrEndOfFile {
		t.Fatalf("read with cursor past EOF err = %v, want ErrEndOfFile", err)
	}
}

func TestSeekSupportsAllWhences(t *testing.T) {
	img := buildArchive(t, []struct {
		name string
		mode uint32
		data []byte
	}{
		{name: "f", mode: sIFREG, data: []byte("0123456789")},
	})
	a, err := Mount(img)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	f, err := a.Open("f", OpenRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if pos, err := f.Seek(3, SeekStart); err != nil || pos != 3 {
		t.Fatalf("Seek(3,Start) = %d,%v want 3,nil", pos, err)
	}
	buf := make([]byte, 2)
	if _, err := f.Read(buf); err != nil || string(buf) != "34" {
		t.Fatalf("Read after seek = %q,%v want 34,nil", buf, err)
	}

	if pos, err := f.Seek(-1, SeekCurrent); err != nil || pos != 4 {
		t.Fatalf("Seek(-1,Current) = %d,%v want 4,nil", pos, err)
	}

	if pos, err := f.Seek(0, SeekEnd); err != nil || pos != 10 {
		t.Fatalf("Seek(0,End) = %d,%v want 10,nil", pos, err)
	}

	if _, err := f.Seek(-100, SeekStart); err == nil {
		t.Fatal("expected negative resulting offset to fail")
	}
}

func TestDirectoryEntryTypeIsDirectory(t *testing.T) {
	img := buildArchive(t, []struct {
		name string
		mode uint32
		data []byte
	}{
		{name: "etc", mode: sIFDIR | 0o755, data: nil},
	})
	a, err := Mount(img)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	f, err := a.Open("etc", OpenRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if f.Type() != TypeDirectory {
		t.Fatalf("Type() = %v, want TypeDirectory", f.Type())
	}
}
