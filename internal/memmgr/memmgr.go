// Package memmgr is the memory manager facade (component D): a single
// spinlock-guarded mediator over the physical frame allocator
// (internal/physmem), the page-table engine (internal/mmu), and the
// address space manager (internal/addrspace), exposing the same small
// surface every other subsystem calls through: map_io, map_logical,
// request_any_pages, do_with_fast_map, translate_kernel_address, plus the
// two-phase early_init/late_init boot lifecycle.
//
// Composed as one function that calls each subsystem's init in order,
// split across an early_init/late_init boot lifecycle: early_init builds
// the identity map and turns the MMU on, late_init runs once relocation
// has moved execution to the high half.
package memmgr

import (
	"errors"
	"unsafe"

	"corekernel/internal/addrspace"
	"corekernel/internal/arch"
	"corekernel/internal/mmu"
	"corekernel/internal/physmem"
	"corekernel/internal/spinlock"
)

// ErrNotInitialized is returned by any operation attempted before
// EarlyInit has run.
var ErrNotInitialized = errors.New("memmgr: not initialized")

// Region is a physical extent declared by the device tree or the linker,
// fed to EarlyInit/LateInit to build the identity map and seed the frame
// allocator.
type Region struct {
	Name string
	PA   uint64
	Size uint64
}

type state struct {
	frames *physmem.Allocator
	kernel *addrspace.KernelSpace
	heap   *Heap

	linearMapOffset uint64
	mmuEnabled      bool
}

var manager = spinlock.New(state{})

// EarlyInit runs before the MMU is enabled: it identity-maps every
// declared DRAM and MMIO region plus the kernel's own sections (at their
// physical placement) into the low-half table, then enables the MMU.
func EarlyInit(kernel *addrspace.KernelSpace, dram, mmio, sections []Region, enableMMU func() error) error {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()

	for _, r := range append(append(append([]Region{}, dram...), mmio...), sections...) {
		perms := mmu.PermPair{Privileged: mmu.PermRW, Unprivileged: mmu.PermNone}
		if err := kernel.Low.MapRegion(r.PA, r.PA, r.Size, mmu.AttrNormal, perms, mmu.InvalidateAll); err != nil {
			return err
		}
	}

	if enableMMU != nil {
		if err := enableMMU(); err != nil {
			return err
		}
	}

	s.kernel = kernel
	s.mmuEnabled = true
	return nil
}

// LateInit runs once relocation has moved execution to the high half: it
// installs the heap allocator over heapRegion, registers each kernel
// section as a named logical range, maps the device tree into the high
// half, tears down the low-half identity map, and seeds the frame
// allocator with the DRAM left over after subtracting the kernel,
// device-tree and framebuffer regions.
func LateInit(linearMapOffset uint64, heapRegion Region, dram []physmem.Region, reserved []physmem.Region, sections []Region, deviceTree Region) error {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.kernel == nil {
		return ErrNotInitialized
	}

	s.linearMapOffset = linearMapOffset
	s.heap = NewHeap(heapRegion.PA+linearMapOffset, heapRegion.Size)

	for _, sec := range sections {
		perms := mmu.PermPair{Privileged: mmu.PermRW, Unprivileged: mmu.PermNone}
		if _, err := s.kernel.AddLogicalRange(sec.Name, sec.PA+linearMapOffset, sec.PA, sec.Size, mmu.AttrNormal, perms); err != nil {
			return err
		}
	}

	if deviceTree.Size > 0 {
		perms := mmu.PermPair{Privileged: mmu.PermRW, Unprivileged: mmu.PermNone}
		if _, err := s.kernel.AddVirtualRange("device-tree", deviceTree.PA+linearMapOffset, deviceTree.PA, deviceTree.Size, mmu.AttrNormal, perms); err != nil {
			return err
		}
	}

	frames := &physmem.Allocator{}
	for _, region := range dram {
		if err := frames.AddRegion(region.PA, region.NumPages); err != nil {
			return err
		}
	}
	for _, region := range reserved {
		if err := frames.StealRegion(region.PA, region.NumPages); err != nil {
			return err
		}
	}
	s.frames = frames

	if err := s.kernel.Low.UnmapRegion(0, 1<<47, mmu.InvalidateAll); err != nil {
		return err
	}
	s.kernel.Low = nil

	return nil
}

// MapIO allocates the next MMIO window and maps pa there.
func MapIO(name string, pa, size uint64) (uint64, error) {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.kernel == nil {
		return 0, ErrNotInitialized
	}
	return s.kernel.MapIO(name, pa, size)
}

// MapLogical installs a page-level logical-map entry for pa, using the
// caller-specified size and permissions.
func MapLogical(name string, pa, size uint64, perms mmu.PermPair) (uint64, error) {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.kernel == nil {
		return 0, ErrNotInitialized
	}
	va := pa + s.linearMapOffset
	r, err := s.kernel.AddLogicalRange(name, va, pa, size, mmu.AttrNormal, perms)
	if err != nil {
		return 0, err
	}
	return r.VA(), nil
}

// RequestAnyPages draws n frames from the physical frame allocator,
// first-fit.
func RequestAnyPages(n uint64) (physmem.Region, error) {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.frames == nil {
		return physmem.Region{}, ErrNotInitialized
	}
	return s.frames.RequestAnyPages(n)
}

// ReleasePages returns a previously-requested region to the physical
// frame allocator.
func ReleasePages(r physmem.Region) error {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.frames == nil {
		return ErrNotInitialized
	}
	return s.frames.ReleasePages(r)
}

// DoWithFastMap maps pa at the kernel's reserved fast-map VA, invokes f,
// then unmaps it — the mechanism by which kernel code touches arbitrary
// physical pages not yet part of any address space.
func DoWithFastMap(pa uint64, perms mmu.PermPair, f func(va uint64) error) error {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.kernel == nil {
		return ErrNotInitialized
	}
	return s.kernel.FastMap(pa, perms, f)
}

// TranslateKernelAddress resolves a kernel VA to its physical address.
func TranslateKernelAddress(va uint64) (uint64, error) {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.kernel == nil {
		return 0, ErrNotInitialized
	}
	return s.kernel.ResolveAddress(va, s.linearMapOffset)
}

// HeapAlloc draws size bytes from the installed kernel heap.
func HeapAlloc(size uint64) (uint64, bool) {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.heap == nil {
		return 0, false
	}
	return s.heap.Alloc(size)
}

// HeapFree returns a heap allocation made by HeapAlloc.
func HeapFree(base uint64) bool {
	g := manager.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.heap == nil {
		return false
	}
	return s.heap.Free(base)
}

// tableSource is the production mmu.TableSource backing every page table
// this kernel builds after LateInit — a process's low-half table
// (component H) or any other engine rooted post-boot. AllocTable draws a
// single zero-filled frame from the physical allocator; Access resolves
// a table's PA through the kernel's own linear map when the MMU is on.
// Tables built this way are never "early" (the static bump arena is
// only used by the boot-time bring-up tables during early boot).
type tableSource struct{}

func (tableSource) AllocTable() (pa uint64, early bool, err error) {
	r, err := RequestAnyPages(1)
	if err != nil {
		return 0, false, err
	}
	*(tableSource{}).Access(r.PA) = mmu.Table{}
	return r.PA, false, nil
}

func (tableSource) FreeTable(pa uint64) {
	_ = ReleasePages(physmem.Region{PA: pa, NumPages: 1})
}

func (tableSource) Access(pa uint64) *mmu.Table {
	g := manager.Lock()
	off := g.Value().linearMapOffset
	g.Unlock()
	return (*mmu.Table)(unsafe.Pointer(uintptr(pa + off)))
}

// TableSource returns the production mmu.TableSource described above.
func TableSource() mmu.TableSource { return tableSource{} }

// archFences adapts internal/arch's barrier and TLB-invalidate
// primitives to mmu.Fences; the same functions back both the real
// aarch64 build and the generic host build, so this adapter needs no
// build tags of its own.
type archFences struct{}

func (archFences) DsbIshst()              { arch.DsbIshst() }
func (archFences) Isb()                   { arch.Isb() }
func (archFences) InvalidateTLBAll()      { arch.InvalidateTLBAll() }
func (archFences) InvalidateTLBVA(va uint64) { arch.InvalidateTLBVA(va) }

// Fences returns the production mmu.Fences adapter described above.
func Fences() mmu.Fences { return archFences{} }
