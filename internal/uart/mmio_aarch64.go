//go:build aarch64

package uart

import "unsafe"

func mmioWrite32(addr uint64, v uint32) {
	*(*uint32)(unsafe.Pointer(uintptr(addr))) = v
}

func mmioRead32(addr uint64) uint32 {
	return *(*uint32)(unsafe.Pointer(uintptr(addr)))
}
