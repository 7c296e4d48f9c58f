package memmgr

import (
	"testing"

	"corekernel/internal/addrspace"
	"corekernel/internal/mmu"
	"corekernel/internal/physmem"
)

type fakeTables struct {
	next   uint64
	tables map[uint64]*mmu.Table
}

func newFakeTables() *fakeTables {
	return &fakeTables{next: 0xA000_0000, tables: map[uint64]*mmu.Table{}}
}

func (f *fakeTables) AllocTable() (uint64, bool, error) {
	pa := f.next
	f.next += mmu.PageSize
	f.tables[pa] = &mmu.Table{}
	return pa, false, nil
}

func (f *fakeTables) FreeTable(pa uint64) { delete(f.tables, pa) }

func (f *fakeTables) Access(pa uint64) *mmu.Table { return f.tables[pa] }

func newEngine(src *fakeTables) *mmu.Engine {
	root, _, _ := src.AllocTable()
	return &mmu.Engine{Source: src, Fences: mmu.NopFences{}, RootPA: root}
}

// TestLifecycle drives EarlyInit -> LateInit and then exercises every
// operation the facade exposes, end to end against fake tables.
func TestLifecycle(t *testing.T) {
	src := newFakeTables()
	kernel := addrspace.NewKernelSpace(newEngine(src), newEngine(src))

	const linearOffset = 0xFFFF_0000_0000_0000
	dram := []Region{{Name: "dram", PA: 0x4000_0000, Size: mmu.PageSize * 8}}
	kernelSections := []Region{{Name: "text", PA: 0x4000_0000, Size: mmu.PageSize}}

	mmuEnabled := false
	if err := EarlyInit(kernel, dram, nil, kernelSections, func() error { mmuEnabled = true; return nil }); err != nil {
		t.Fatalf("EarlyInit: %v", err)
	}
	if !mmuEnabled {
		t.Fatal("expected enableMMU callback to run")
	}

	heapRegion := Region{PA: 0x4000_2000, Size: mmu.PageSize * 4}

	if err := LateInit(linearOffset, heapRegion,
		[]physmem.Region{{PA: 0x4000_0000, NumPages: 8}},
		nil, kernelSections, Region{}); err != nil {
		t.Fatalf("LateInit: %v", err)
	}

	va, err := MapLogical("data", 0x4000_4000, mmu.PageSize, mmu.PermPair{Privileged: mmu.PermRW})
	if err != nil {
		t.Fatalf("MapLogical: %v", err)
	}
	if va != 0x4000_4000+linearOffset {
		t.Fatalf("MapLogical va = 0x%x, want 0x%x", va, uint64(0x4000_4000+linearOffset))
	}

	ioVA, err := MapIO("uart", 0x3000_0000, mmu.PageSize)
	if err != nil {
		t.Fatalf("MapIO: %v", err)
	}
	if ioVA != addrspace.MMIOBase {
		t.Fatalf("MapIO va = 0x%x, want MMIOBase", ioVA)
	}

	region, err := RequestAnyPages(2)
	if err != nil {
		t.Fatalf("RequestAnyPages: %v", err)
	}
	if region.NumPages != 2 {
		t.Fatalf("region.NumPages = %d, want 2", region.NumPages)
	}
	if err := ReleasePages(region); err != nil {
		t.Fatalf("ReleasePages: %v", err)
	}

	var sawVA uint64
	err = DoWithFastMap(0x5000_0000, mmu.PermPair{Privileged: mmu.PermRW}, func(fastVA uint64) error {
		sawVA = fastVA
		return nil
	})
	if err != nil {
		t.Fatalf("DoWithFastMap: %v", err)
	}
	if sawVA != addrspace.FastMapVA {
		t.Fatalf("fast-map callback saw 0x%x, want FastMapVA", sawVA)
	}

	pa, err := TranslateKernelAddress(va)
	if err != nil {
		t.Fatalf("TranslateKernelAddress: %v", err)
	}
	if pa != 0x4000_4000 {
		t.Fatalf("TranslateKernelAddress = 0x%x, want 0x4000_4000", pa)
	}

	base, ok := HeapAlloc(64)
	if !ok {
		t.Fatal("HeapAlloc failed")
	}
	if !HeapFree(base) {
		t.Fatal("HeapFree failed")
	}
}
