//go:build aarch64

package process

import "unsafe"

// writeAt copies data into the fast-mapped VA at the given byte offset.
// On real hardware the fast-map window is backed by a genuine page
// table entry, so this is a direct pointer write via
// unsafe.Pointer(uintptr(...)) against a fixed physical location.
func writeAt(va uint64, offset uint64, data []byte) {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(va+offset))), len(data))
	copy(dst, data)
}

// readAt reads n bytes back from the fast-mapped VA at the given byte
// offset.
func readAt(va uint64, offset uint64, n int) []byte {
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(va+offset))), n)
	return append([]byte(nil), src...)
}
