package boot

import (
	"fmt"

	"corekernel/internal/addrspace"
	"corekernel/internal/arch"
	"corekernel/internal/memmgr"
	"corekernel/internal/mmu"
	"corekernel/internal/physmem"
)

// MAIR_EL1 index assignment. Fixed here rather than imported from
// internal/mmu, whose Attribute.mairIndex is deliberately unexported (the
// encoding is mmu's own business once the MMU is live); boot time is the
// one place that must agree with it ahead of time, since it programs the
// register mmu's descriptors will be interpreted against. The three
// values below are the byte-per-index MAIR attribute encodings: index 0
// is Normal, Write-Back, Read/Write-Allocate (matching mmu.AttrNormal),
// index 1 is Device-nGnRnE (matching mmu.AttrDeviceNGNRNE), index 2 is
// Device-nGnRE (matching mmu.AttrDeviceNGNRE).
const (
	mairNormalWB    = 0xFF
	mairDeviceNGnRnE = 0x00
	mairDeviceNGnRE  = 0x04
)

func mairEl1Value() uint64 {
	return uint64(mairNormalWB) | uint64(mairDeviceNGnRnE)<<8 | uint64(mairDeviceNGnRE)<<16
}

// TCR_EL1 field layout, 16KiB granule, 48-bit PA, inner-shareable,
// write-back cacheable tables. TG0 and TG1 use different encodings for the same 16KiB
// granule (an AArch64 TCR quirk): TG0=0b10, TG1=0b01.
const (
	tcrSZ      = 16 // T0SZ/T1SZ: 48-bit VA space
	tcrIRGNWBWA = 0b01
	tcrORGNWBWA = 0b01
	tcrSHInner  = 0b11
	tcrTG0_16K  = 0b10
	tcrTG1_16K  = 0b01
	tcrIPS_48   = 0b101
)

func tcrEl1Value() uint64 {
	var v uint64
	v |= uint64(tcrSZ) << 0  // T0SZ
	v |= uint64(tcrIRGNWBWA) << 8
	v |= uint64(tcrORGNWBWA) << 10
	v |= uint64(tcrSHInner) << 12
	v |= uint64(tcrTG0_16K) << 14
	v |= uint64(tcrSZ) << 16 // T1SZ
	v |= uint64(tcrIRGNWBWA) << 24
	v |= uint64(tcrORGNWBWA) << 26
	v |= uint64(tcrSHInner) << 28
	v |= uint64(tcrTG1_16K) << 30
	v |= uint64(tcrIPS_48) << 32
	return v
}

// SCTLR_EL1 enable bits this kernel turns on at boot: M (MMU enable), C
// (data cache enable), I (instruction cache enable). Every other bit is
// left at its reset value.
const (
	sctlrM = 1 << 0
	sctlrC = 1 << 2
	sctlrI = 1 << 12
)

// Config describes everything Bootstrap needs to take the kernel from
// its freshly-loaded, possibly-EL2, pre-MMU state to a running high-half
// kernel with memmgr fully initialized — the Go-side equivalent of
// start_rust plus jump_to_high_kernel plus kernel_prelude's memory setup.
type Config struct {
	// LoadBase is the physical address the image currently executes at.
	LoadBase uint64
	// KernelBase is the high-half virtual address the kernel relocates
	// itself to run at, matching virt_base in BootArgs.
	KernelBase uint64
	// Rela is the kernel image's own .rela.dyn relocation table.
	Rela []RelaEntry

	// VBarEl1 is the address of the installed exception vector table,
	// programmed into VBAR_EL1 as part of enableMMU, before the jump to
	// the high half (component F installs the real handlers once
	// running there; this is the bring-up vector).
	VBarEl1 uint64

	DRAM       []memmgr.Region
	MMIO       []memmgr.Region
	Sections   []memmgr.Region
	DeviceTree memmgr.Region

	LinearMapOffset uint64
	HeapRegion      memmgr.Region
	DRAMPages       []physmem.Region
	ReservedPages   []physmem.Region
}

// Bootstrap runs the full EL2→EL1 drop, two-phase relocation, and
// memmgr early/late init sequence, matching start_rust/jump_to_high_kernel/
// kernel_prelude's combined responsibility. mem is the write surface the
// relocation passes use; on aarch64 this is DirectMemory{}, a thin wrapper
// over raw pointer stores.
func Bootstrap(cfg Config, mem Memory) error {
	if arch.CurrentEL() == arch.EL2 {
		arch.DropToEL1()
	}

	if err := ApplyRelocations(mem, cfg.LoadBase, cfg.Rela); err != nil {
		return fmt.Errorf("boot: low-half relocation: %w", err)
	}

	lowSource := newBumpTableSource()
	highSource := newBumpTableSource()
	lowRoot, _, err := lowSource.AllocTable()
	if err != nil {
		return fmt.Errorf("boot: allocating low-half root table: %w", err)
	}
	highRoot, _, err := highSource.AllocTable()
	if err != nil {
		return fmt.Errorf("boot: allocating high-half root table: %w", err)
	}

	low := &mmu.Engine{Source: lowSource, Fences: memmgr.Fences(), RootPA: lowRoot}
	high := &mmu.Engine{Source: highSource, Fences: memmgr.Fences(), RootPA: highRoot}
	kernel := addrspace.NewKernelSpace(high, low)

	enableMMU := func() error {
		arch.WriteMairEl1(mairEl1Value())
		arch.WriteTcrEl1(tcrEl1Value())
		arch.WriteTtbr0El1(low.RootPA)
		arch.WriteTtbr1El1(high.RootPA)
		arch.SetVbarEl1(cfg.VBarEl1)
		arch.DsbIshst()
		arch.Isb()
		arch.WriteSctlrEl1(arch.ReadSctlrEl1() | sctlrM | sctlrC | sctlrI)
		arch.Isb()
		return nil
	}

	if err := memmgr.EarlyInit(kernel, cfg.DRAM, cfg.MMIO, cfg.Sections, enableMMU); err != nil {
		return fmt.Errorf("boot: early init: %w", err)
	}

	if err := ApplyRelocationsHighHalf(mem, cfg.LoadBase, cfg.KernelBase, cfg.Rela); err != nil {
		return fmt.Errorf("boot: high-half relocation: %w", err)
	}

	if err := memmgr.LateInit(cfg.LinearMapOffset, cfg.HeapRegion, cfg.DRAMPages, cfg.ReservedPages, cfg.Sections, cfg.DeviceTree); err != nil {
		return fmt.Errorf("boot: late init: %w", err)
	}

	return nil
}
