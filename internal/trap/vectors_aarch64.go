//go:build aarch64

package trap

import (
	"unsafe"

	"corekernel/internal/arch"
)

// exceptionVectorsStart is the linker/assembly-provided 16-entry vector
// table, matching go/mazarin/exceptions.go's exception_vectors_start
// convention: a zero-length array whose address is the symbol, the
// actual table contents living in hand-written assembly outside this
// package.
var exceptionVectorsStart [0]byte

// Install points VBAR_EL1 at the vector table. Must run once, early,
// before any maskable exception can legitimately be taken.
func Install() {
	arch.SetVbarEl1(uint64(uintptr(unsafe.Pointer(&exceptionVectorsStart))))
}
