package boot

import (
	"testing"

	"corekernel/internal/arch"
	"corekernel/internal/memmgr"
	"corekernel/internal/mmu"
	"corekernel/internal/physmem"
)

// TestBootstrapFullSequence exercises the whole sequence Bootstrap is
// responsible for against the host-simulated arch seam: starting from
// EL2, it should drop to EL1, relocate the low-half image, bring the
// (simulated) MMU up, relocate a second time against the high-half base,
// and hand off into a fully initialized memmgr.
func TestBootstrapFullSequence(t *testing.T) {
	arch.SetCurrentELForTest(arch.EL2)

	const loadBase = 0x4000_0000
	const kernelBase = 0xFFFF_0000_4000_0000
	const pageSize = mmu.PageSize

	cfg := Config{
		LoadBase:   loadBase,
		KernelBase: kernelBase,
		Rela: []RelaEntry{
			{Offset: 0x10, Type: RelativeAArch64, Addend: 0x100},
		},
		VBarEl1: loadBase,
		DRAM: []memmgr.Region{
			{Name: "dram", PA: loadBase, Size: pageSize * 8},
		},
		Sections: []memmgr.Region{
			{Name: "text", PA: loadBase, Size: pageSize},
		},
		LinearMapOffset: 0xFFFF_8000_0000_0000,
		HeapRegion:      memmgr.Region{PA: loadBase + 2*pageSize, Size: pageSize * 4},
		DRAMPages:       []physmem.Region{{PA: loadBase, NumPages: 8}},
	}

	mem := NewDirectMemory()

	if err := Bootstrap(cfg, mem); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	if arch.CurrentEL() != arch.EL1 {
		t.Fatalf("CurrentEL after Bootstrap = %d, want EL1", arch.CurrentEL())
	}

	// Both relocation passes ran: the high-half pass overwrites the same
	// word the low-half pass wrote, through the still-live low-half
	// address, with the new kernelBase-relative value.
	if got := mem.ReadUint64(loadBase + 0x10); got != kernelBase+0x100 {
		t.Fatalf("final relocated value: got %x, want %x", got, uint64(kernelBase+0x100))
	}

	// memmgr is now live: a MapLogical call should succeed.
	if _, err := memmgr.MapLogical("test-region", loadBase+3*pageSize, pageSize, mmu.PermPair{Privileged: mmu.PermRW}); err != nil {
		t.Fatalf("MapLogical after Bootstrap: %v", err)
	}
}

func TestSetCurrentELForTestSelectsEL1(t *testing.T) {
	arch.SetCurrentELForTest(arch.EL1)
	if arch.CurrentEL() != arch.EL1 {
		t.Fatal("expected EL1")
	}
}
