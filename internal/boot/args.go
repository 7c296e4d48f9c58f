// Package boot is the boot/relocation subsystem (component E): the
// EL2→EL1 privilege drop, R_AARCH64_RELATIVE self-relocation (applied
// twice — once at the low-half load address, once at the high-half
// kernel base after the MMU is up), and the MMU bring-up sequence
// memmgr.EarlyInit's enableMMU callback runs.
//
// Grounded on original_source/p1c0_kernel/src/init.rs (start_rust's
// CurrentEL dispatch into transition_to_el1/el1_entry,
// jump_to_high_kernel's two-phase relocation) and
// the BootArgs handoff field layout and relocation scheme a
// self-relocating AArch64 kernel needs at the EL2/EL1 boundary, in the
// same init.go/register-seam shape the rest of this kernel uses for
// hardware-facing code.
package boot

// VideoArgs mirrors BootVideoArgs: the framebuffer geometry handed off
// by the bootloader, before any driver has touched it.
type VideoArgs struct {
	Base    uint64
	Display uint64
	Stride  uint64
	Width   uint64
	Height  uint64
	Depth   uint64
}

// Args mirrors BootArgs's field set: a fixed-layout structure the
// bootloader hands off, whose layout is part of the external ABI (spec
// §6's "Boot handoff"). The 608-byte command-line buffer is unparsed
// text; internal/boot does nothing with it beyond carrying it through.
type Args struct {
	Revision, Version   uint16
	VirtBase, PhysBase  uint64
	MemSize             uint64
	TopOfKernelData     uint64
	Video               VideoArgs
	MachineType         uint32
	DeviceTree          uint64
	DeviceTreeSize      uint32
	Cmdline             [608]byte
	BootFlags           uint64
	MemSizeActual       uint64
}
