// Package arch declares the AArch64 register and barrier primitives the
// rest of the kernel is built on. The real implementations are backed by
// externally-assembled symbols reached through //go:linkname (set_vbar_el1,
// read_daif, tlbi_vmalle1, ...) — no assembly source ships in this
// module; it is provided by the boot toolchain. A second, pure-Go
// implementation (arch_generic.go) backs non-aarch64 builds so that every
// package built on top of arch remains testable with `go test` on a
// regular host.
package arch

// DAIF bit positions, matching the ARM architecture manual numbering.
const (
	DAIFBitF = 1 << 6 // FIQ mask
	DAIFBitI = 1 << 7 // IRQ mask
	DAIFBitA = 1 << 8 // SError mask
	DAIFBitD = 1 << 9 // Debug mask

	DAIFMaskAll = DAIFBitD | DAIFBitA | DAIFBitI | DAIFBitF
)

// SPSR_EL1.M field values selecting the exception level and stack-pointer
// register an eret lands in. SPSREL1t matches thread.rs's
// `spsr.write(SPSR_EL1::M::EL1t)` for kernel threads; SPSREL0t is spec
// §4.H's `spsr=EL0t` for a freshly-built process's initial thread. Both
// leave the DAIF mask bits above the M field clear (interrupts unmasked).
const (
	SPSREL0t = 0b0000
	SPSREL1t = 0b0100
)

// Exception levels as returned by CurrentEL, matching
// arch::get_exception_level's EL2/EL1 discrimination in start_rust.
const (
	EL1 = 1
	EL2 = 2
)
