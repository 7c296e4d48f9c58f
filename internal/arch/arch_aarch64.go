//go:build aarch64

package arch

import _ "unsafe" // for go:linkname

//go:linkname asmReadDAIF arch.read_daif
func asmReadDAIF() uint64

//go:linkname asmWriteDAIF arch.write_daif
func asmWriteDAIF(v uint64)

//go:linkname asmDsbSy arch.dsb_sy
func asmDsbSy()

//go:linkname asmDsbIshst arch.dsb_ishst
func asmDsbIshst()

//go:linkname asmIsb arch.isb
func asmIsb()

//go:linkname asmInvalidateTLBAll arch.tlbi_vmalle1
func asmInvalidateTLBAll()

//go:linkname asmInvalidateTLBVA arch.tlbi_vaae1
func asmInvalidateTLBVA(va uint64)

//go:linkname asmReadSctlrEl1 arch.read_sctlr_el1
func asmReadSctlrEl1() uint64

//go:linkname asmWriteSctlrEl1 arch.write_sctlr_el1
func asmWriteSctlrEl1(v uint64)

//go:linkname asmWriteMairEl1 arch.write_mair_el1
func asmWriteMairEl1(v uint64)

//go:linkname asmWriteTcrEl1 arch.write_tcr_el1
func asmWriteTcrEl1(v uint64)

//go:linkname asmWriteTtbr0El1 arch.write_ttbr0_el1
func asmWriteTtbr0El1(v uint64)

//go:linkname asmWriteTtbr1El1 arch.write_ttbr1_el1
func asmWriteTtbr1El1(v uint64)

//go:linkname asmSetVbarEl1 arch.set_vbar_el1
func asmSetVbarEl1(v uint64)

//go:linkname asmWaitForInterrupt arch.wfi
func asmWaitForInterrupt()

//go:linkname asmCurrentEL arch.current_el
func asmCurrentEL() uint64

//go:linkname asmDropToEL1 arch.drop_to_el1
func asmDropToEL1()

// ReadDAIF returns the current DAIF mask bits.
func ReadDAIF() uint64 { return asmReadDAIF() }

// WriteDAIF restores a previously-read DAIF value.
func WriteDAIF(v uint64) { asmWriteDAIF(v) }

// MaskDAIF sets all four DAIF bits, disabling all asynchronous exceptions.
func MaskDAIF() { asmWriteDAIF(asmReadDAIF() | DAIFMaskAll) }

// DsbSy issues a full system data synchronization barrier.
func DsbSy() { asmDsbSy() }

// DsbIshst issues an inner-shareable store barrier, used before and after
// page-table and lock-word updates.
func DsbIshst() { asmDsbIshst() }

// Isb issues an instruction synchronization barrier.
func Isb() { asmIsb() }

// InvalidateTLBAll performs a full TLB invalidate (vmalle1).
func InvalidateTLBAll() { asmInvalidateTLBAll() }

// InvalidateTLBVA invalidates the TLB entry for a single VA (vaae1), used
// after fast-map page changes.
func InvalidateTLBVA(va uint64) { asmInvalidateTLBVA(va) }

// ReadSctlrEl1 reads SCTLR_EL1.
func ReadSctlrEl1() uint64 { return asmReadSctlrEl1() }

// WriteSctlrEl1 writes SCTLR_EL1.
func WriteSctlrEl1(v uint64) { asmWriteSctlrEl1(v) }

// WriteMairEl1 programs MAIR_EL1.
func WriteMairEl1(v uint64) { asmWriteMairEl1(v) }

// WriteTcrEl1 programs TCR_EL1.
func WriteTcrEl1(v uint64) { asmWriteTcrEl1(v) }

// WriteTtbr0El1 programs TTBR0_EL1 (low-half table base).
func WriteTtbr0El1(v uint64) { asmWriteTtbr0El1(v) }

// WriteTtbr1El1 programs TTBR1_EL1 (high-half table base).
func WriteTtbr1El1(v uint64) { asmWriteTtbr1El1(v) }

// SetVbarEl1 installs the exception vector base address.
func SetVbarEl1(v uint64) { asmSetVbarEl1(v) }

// WaitForInterrupt issues wfi, parking the core until the next
// interrupt — used by the idle thread's spin loop.
func WaitForInterrupt() { asmWaitForInterrupt() }

// CurrentEL reads CurrentEL.EL, returning EL1 or EL2 — matching
// start_rust's CurrentEL.read_as_enum dispatch between el1_entry and
// transition_to_el1.
func CurrentEL() uint64 { return asmCurrentEL() }

// DropToEL1 programs CNTHCTL_EL2/CNTVOFF_EL2/HCR_EL2/SPSR_EL2/ELR_EL2
// and erets. This drop erets to the instruction right after the call
// site rather than into a distinct entry function with its own stack
// (SPSR_EL2.M=EL1h keeps SP_EL1, already valid since the boot stack is
// set up before this runs) — there is no second entry point to thread
// through, since Go's init flow is one continuous function. Must only
// be called when CurrentEL() == EL2.
func DropToEL1() { asmDropToEL1() }
