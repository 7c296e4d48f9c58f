package addrspace

import (
	"testing"

	"corekernel/internal/mmu"
)

// fakeTables is a minimal in-memory mmu.TableSource, letting this package's
// tests exercise real mmu.Engine walks without physical memory.
type fakeTables struct {
	next   uint64
	tables map[uint64]*mmu.Table
}

func newFakeTables() *fakeTables {
	return &fakeTables{next: 0x9000_0000, tables: map[uint64]*mmu.Table{}}
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

func newTestKernelSpace() *KernelSpace {
	src := newFakeTables()
	return NewKernelSpace(newEngine(src), newEngine(src))
}

func rw() mmu.PermPair { return mmu.PermPair{Privileged: mmu.PermRW, Unprivileged: mmu.PermNone} }

func TestAddLogicalRangeRejectsOverlap(t *testing.T) {
	ks := newTestKernelSpace()
	if _, err := ks.AddLogicalRange("kernel-text", 0x1000_0000, 0x0, mmu.PageSize, mmu.AttrNormal, rw()); err != nil {
		t.Fatalf("first AddLogicalRange: %v", err)
	}
	_, err := ks.AddLogicalRange("kernel-data", 0x1000_0000, mmu.PageSize, mmu.PageSize, mmu.AttrNormal, rw())
	if err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestAddLogicalRangeRejectsDuplicateName(t *testing.T) {
	ks := newTestKernelSpace()
	if _, err := ks.AddLogicalRange("dup", 0x2000_0000, 0x0, mmu.PageSize, mmu.AttrNormal, rw()); err != nil {
		t.Fatalf("first AddLogicalRange: %v", err)
	}
	_, err := ks.AddLogicalRange("dup", 0x3000_0000, 0x1000_0000, mmu.PageSize, mmu.AttrNormal, rw())
	if _, ok := err.(*RangeExistsError); !ok {
		t.Fatalf("got %v, want RangeExistsError", err)
	}
}

func TestMapIOBumpsWindowAndNeverReclaims(t *testing.T) {
	ks := newTestKernelSpace()
	va1, err := ks.MapIO("uart", 0x2000_0000, mmu.PageSize)
	if err != nil {
		t.Fatalf("MapIO: %v", err)
	}
	if va1 != MMIOBase {
		t.Fatalf("first MMIO VA = 0x%x, want MMIOBase 0x%x", va1, MMIOBase)
	}
	va2, err := ks.MapIO("gic", 0x2001_0000, mmu.PageSize)
	if err != nil {
		t.Fatalf("MapIO: %v", err)
	}
	if va2 != va1+mmu.PageSize {
		t.Fatalf("second MMIO VA = 0x%x, want 0x%x", va2, va1+mmu.PageSize)
	}

	if err := ks.RemoveRangeByName("uart"); err != nil {
		t.Fatalf("RemoveRangeByName: %v", err)
	}
	va3, err := ks.MapIO("timer", 0x2002_0000, mmu.PageSize)
	if err != nil {
		t.Fatalf("MapIO: %v", err)
	}
	if va3 == va1 {
		t.Fatal("expected MMIO offset to never be reclaimed after removal")
	}
}

func TestFastMapInvokesCallbackThenUnmaps(t *testing.T) {
	ks := newTestKernelSpace()
	var seenVA uint64
	err := ks.FastMap(0x5000_0000, rw(), func(va uint64) error {
		seenVA = va
		kind, _, outPA, found := ks.High.Walk(va)
		if !found || kind != mmu.KindPage || outPA != 0x5000_0000 {
			t.Fatalf("fast-map page not visible inside callback: found=%v kind=%v outPA=0x%x", found, kind, outPA)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("FastMap: %v", err)
	}
	if seenVA != FastMapVA {
		t.Fatalf("callback saw va=0x%x, want FastMapVA 0x%x", seenVA, FastMapVA)
	}
	if _, _, _, found := ks.High.Walk(FastMapVA); found {
		t.Fatal("expected fast-map page to be unmapped after FastMap returns")
	}
}

func TestResolveAddress(t *testing.T) {
	ks := newTestKernelSpace()
	const linearOffset = 0xFFFF_0000_0000_0000
	if _, err := ks.AddLogicalRange("dram", linearOffset+0x4000_0000, 0x4000_0000, mmu.PageSize, mmu.AttrNormal, rw()); err != nil {
		t.Fatalf("AddLogicalRange: %v", err)
	}
	pa, err := ks.ResolveAddress(linearOffset+0x4000_0000, linearOffset)
	if err != nil {
		t.Fatalf("ResolveAddress: %v", err)
	}
	if pa != 0x4000_0000 {
		t.Fatalf("pa = 0x%x, want 0x4000_0000", pa)
	}

	mmioVA, err := ks.MapIO("reg", 0x6000_0000, mmu.PageSize)
	if err != nil {
		t.Fatalf("MapIO: %v", err)
	}
	pa, err = ks.ResolveAddress(mmioVA+0x10, linearOffset)
	if err != nil {
		t.Fatalf("ResolveAddress mmio: %v", err)
	}
	if pa != 0x6000_0010 {
		t.Fatalf("pa = 0x%x, want 0x6000_0010", pa)
	}

	if _, err := ks.ResolveAddress(0x1234, linearOffset); err != ErrInvalidAddress {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestProcessSpaceMapSection(t *testing.T) {
	src := newFakeTables()
	ps := NewProcessSpace(newEngine(src))

	perms := mmu.ForProcess(mmu.PermRX)
	if err := ps.MapSection("text", 0x0_0040_0000, 0x7000_0000, mmu.PageSize, perms); err != nil {
		t.Fatalf("MapSection: %v", err)
	}
	kind, _, outPA, found := ps.Table.Walk(0x0_0040_0000)
	if !found || kind != mmu.KindPage || outPA != 0x7000_0000 {
		t.Fatalf("section mapping missing: found=%v kind=%v outPA=0x%x", found, kind, outPA)
	}

	err := ps.MapSection("text", 0x0_0041_0000, 0x7001_0000, mmu.PageSize, perms)
	if _, ok := err.(*RangeExistsError); !ok {
		t.Fatalf("expected RangeExistsError for duplicate section name, got %v", err)
	}
}
