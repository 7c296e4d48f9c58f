package boot

import "fmt"

// RelocationType identifies the ELF relocation kind a RelaEntry carries.
// Only RelativeAArch64 is ever expected in a statically-linked kernel
// image; anything else means the image was built or loaded wrong.
type RelocationType uint64

// RelativeAArch64 matches arch::R_AARCH64_RELATIVE: the only relocation
// type a PIE-relocatable kernel image should ever contain.
const RelativeAArch64 RelocationType = 1027

// RelaEntry mirrors arch::RelaEntry's field layout, as read directly out
// of the kernel image's .rela.dyn section.
type RelaEntry struct {
	Offset uint64
	Type   RelocationType
	Addend uint64
}

// Memory is the minimal write surface ApplyRelocations needs. On
// aarch64 it is backed by direct unsafe-pointer stores (memory_aarch64.go);
// host builds use a plain address-keyed map stand-in (memory_generic.go)
// or a test fake, so relocation logic itself stays architecture-free.
type Memory interface {
	WriteUint64(addr uint64, v uint64)
}

// UnsupportedRelocationError reports a relocation entry this kernel does
// not know how to apply. Per the boot-time relocation policy (unsupported
// types abort rather than get skipped), ApplyRelocations returns this
// immediately on the first unrecognized entry instead of continuing.
type UnsupportedRelocationError struct {
	Offset uint64
	Type   RelocationType
}

func (e *UnsupportedRelocationError) Error() string {
	return fmt.Sprintf("boot: unsupported relocation type %d at offset %x", e.Type, e.Offset)
}

// ApplyRelocations matches apply_rela: applies every entry in rela
// against base, the address the image currently executes at. Used for
// the low-half, pre-MMU relocation pass in jump_to_high_kernel.
func ApplyRelocations(mem Memory, base uint64, rela []RelaEntry) error {
	for _, e := range rela {
		if e.Type != RelativeAArch64 {
			return &UnsupportedRelocationError{Offset: e.Offset, Type: e.Type}
		}
		mem.WriteUint64(base+e.Offset, base+e.Addend)
	}
	return nil
}

// ApplyRelocationsHighHalf matches apply_rela_from_existing: applies
// every entry in rela computing the new, high-half value (newBase +
// addend) but writing it through the identity mapping still addressed by
// oldBase, since the MMU has just been enabled but the low-half mapping
// used to reach this code is still live. Used for the second relocation
// pass in jump_to_high_kernel, after enableMMU runs but before the jump
// to the high-half entry point.
func ApplyRelocationsHighHalf(mem Memory, oldBase, newBase uint64, rela []RelaEntry) error {
	for _, e := range rela {
		if e.Type != RelativeAArch64 {
			return &UnsupportedRelocationError{Offset: e.Offset, Type: e.Type}
		}
		mem.WriteUint64(oldBase+e.Offset, newBase+e.Addend)
	}
	return nil
}
