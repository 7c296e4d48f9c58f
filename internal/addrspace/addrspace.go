// Package addrspace is the address space manager: the kernel's high/low
// tables with their logical, MMIO and virtual named ranges, the fast-map
// page, and a process's low-half table with the virtual ranges that own
// its backing physical regions.
//
// Named ranges are tracked through a small Go interface (addrspace.Range)
// implemented by three concrete range structs rather than one generic
// container, and searched with plain linear slice scans — nothing in
// this component needs more than dozens of entries at once.
package addrspace

import (
	"errors"
	"fmt"

	"corekernel/internal/mmu"
)

const maxNameLength = 32

var (
	// ErrNameTooLong rejects range names longer than a fixed bound, the
	// same constraint a statically-sized name buffer would enforce.
	ErrNameTooLong = errors.New("addrspace: name exceeds maximum length")
	// ErrInvalidAddress is returned by ResolveAddress when va is in
	// neither the linear map nor any MMIO range.
	ErrInvalidAddress = errors.New("addrspace: address does not resolve")
)

// RangeNotFoundError names the range a lookup failed to find.
type RangeNotFoundError struct{ Name string }

func (e *RangeNotFoundError) Error() string {
	return fmt.Sprintf("addrspace: no range named %q", e.Name)
}

// RangeExistsError names a range whose name collides with an existing one.
type RangeExistsError struct{ Name string }

func (e *RangeExistsError) Error() string {
	return fmt.Sprintf("addrspace: range %q already exists", e.Name)
}

// RangeOverlapsError names the existing range a new one would overlap.
type RangeOverlapsError struct{ Name string }

func (e *RangeOverlapsError) Error() string {
	return fmt.Sprintf("addrspace: overlaps existing range %q", e.Name)
}

// Range is any named virtual-address extent tracked by a KernelSpace or
// ProcessSpace.
type Range interface {
	Name() string
	VA() uint64
	SizeBytes() uint64
}

func endVA(r Range) uint64 { return r.VA() + r.SizeBytes() }

func overlaps(r Range, va, size uint64) bool {
	aStart, aEnd := r.VA(), endVA(r)
	bStart, bEnd := va, va+size
	return aStart < bEnd && aEnd > bStart
}

func checkName(name string) error {
	if len(name) == 0 || len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// LogicalRange is a page-level mapping of a physical frame into the
// kernel's linear map, e.g. a kernel section or a heap-backed allocation.
type LogicalRange struct {
	name       string
	la         uint64
	size       uint64
	Attr       mmu.Attribute
	Perms      mmu.PermPair
	PhysRegion *uint64 // base PA of the owned physical region, if any
}

func (r *LogicalRange) Name() string      { return r.name }
func (r *LogicalRange) VA() uint64        { return r.la }
func (r *LogicalRange) SizeBytes() uint64 { return r.size }

// VirtualRange is a free-form high-half mapping not backed by the linear
// map (e.g. the device tree's high-half alias).
type VirtualRange struct {
	name  string
	va    uint64
	size  uint64
	Attr  mmu.Attribute
	Perms mmu.PermPair
}

func (r *VirtualRange) Name() string      { return r.name }
func (r *VirtualRange) VA() uint64        { return r.va }
func (r *VirtualRange) SizeBytes() uint64 { return r.size }

// MMIORange is a bump-allocated window into the 4 GiB MMIO region mapping
// device registers at pa to va.
type MMIORange struct {
	name string
	va   uint64
	pa   uint64
	size uint64
}

func (r *MMIORange) Name() string      { return r.name }
func (r *MMIORange) VA() uint64        { return r.va }
func (r *MMIORange) SizeBytes() uint64 { return r.size }
func (r *MMIORange) PA() uint64        { return r.pa }

// Top-of-high-half layout: the fast-map page occupies the very last page
// of the address space; a reserved 4 GiB MMIO window sits directly below
// it and is bump-allocated by MapIO.
const (
	topVA     = ^uint64(0)
	FastMapVA = topVA &^ (mmu.PageSize - 1)
	MMIOSize  = uint64(4) << 30
	MMIOBase  = FastMapVA - MMIOSize
)

// KernelSpace is the kernel's address space: a high-half table, a
// low-half identity table (torn down post-relocation), and the three
// named range lists.
type KernelSpace struct {
	High *mmu.Engine
	Low  *mmu.Engine

	logical    []*LogicalRange
	virtual    []*VirtualRange
	mmio       []*MMIORange
	mmioOffset uint64
}

// NewKernelSpace wires a KernelSpace to its two already-constructed page
// table engines.
func NewKernelSpace(high, low *mmu.Engine) *KernelSpace {
	return &KernelSpace{High: high, Low: low}
}

func (k *KernelSpace) all() []Range {
	ranges := make([]Range, 0, len(k.logical)+len(k.virtual)+len(k.mmio))
	for _, r := range k.logical {
		ranges = append(ranges, r)
	}
	for _, r := range k.virtual {
		ranges = append(ranges, r)
	}
	for _, r := range k.mmio {
		ranges = append(ranges, r)
	}
	return ranges
}

func (k *KernelSpace) checkOverlaps(va, size uint64) error {
	for _, r := range k.all() {
		if overlaps(r, va, size) {
			return &RangeOverlapsError{Name: r.Name()}
		}
	}
	return nil
}

func (k *KernelSpace) findByName(name string) (Range, bool) {
	for _, r := range k.all() {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

// AddLogicalRange installs a page mapping of pa at la (the logical
// address, whose VA is la's trivial linear-map translation) and records
// it as a named range, rejecting name clashes and VA overlaps.
func (k *KernelSpace) AddLogicalRange(name string, la, pa, size uint64, attr mmu.Attribute, perms mmu.PermPair) (*LogicalRange, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := k.checkOverlaps(la, size); err != nil {
		return nil, err
	}
	if _, ok := k.findByName(name); ok {
		return nil, &RangeExistsError{Name: name}
	}
	if err := k.High.MapRegion(la, pa, size, attr, perms, mmu.InvalidateAll); err != nil {
		return nil, err
	}
	r := &LogicalRange{name: name, la: la, size: size, Attr: attr, Perms: perms}
	k.logical = append(k.logical, r)
	return r, nil
}

// AddVirtualRange installs a free-form high-half mapping, e.g. for the
// device tree's high-half alias.
func (k *KernelSpace) AddVirtualRange(name string, va, pa, size uint64, attr mmu.Attribute, perms mmu.PermPair) (*VirtualRange, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := k.checkOverlaps(va, size); err != nil {
		return nil, err
	}
	if _, ok := k.findByName(name); ok {
		return nil, &RangeExistsError{Name: name}
	}
	if err := k.High.MapRegion(va, pa, size, attr, perms, mmu.InvalidateAll); err != nil {
		return nil, err
	}
	r := &VirtualRange{name: name, va: va, size: size, Attr: attr, Perms: perms}
	k.virtual = append(k.virtual, r)
	return r, nil
}

// MapIO bump-allocates the next window in the reserved MMIO region and
// maps pa there as Device-nGnRnE, never reclaiming VA space even if the
// range is later removed — matching allocate_io_range's one-way bump
// offset.
func (k *KernelSpace) MapIO(name string, pa, size uint64) (uint64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	numPages := (size + mmu.PageSize - 1) / mmu.PageSize
	span := numPages * mmu.PageSize
	if k.mmioOffset+span > MMIOSize {
		panic("addrspace: MMIO range is exhausted")
	}
	va := MMIOBase + k.mmioOffset
	k.mmioOffset += span

	perms := mmu.PermPair{Privileged: mmu.PermRW, Unprivileged: mmu.PermNone}
	if err := k.High.MapRegion(va, pa, span, mmu.AttrDeviceNGNRNE, perms, mmu.InvalidateAll); err != nil {
		return 0, err
	}
	k.mmio = append(k.mmio, &MMIORange{name: name, va: va, pa: pa, size: size})
	return va, nil
}

// RemoveRangeByName unmaps and forgets the named range, wherever it lives.
func (k *KernelSpace) RemoveRangeByName(name string) error {
	for i, r := range k.logical {
		if r.name == name {
			if err := k.High.UnmapRegion(r.la, r.size, mmu.InvalidateAll); err != nil {
				return err
			}
			k.logical = append(k.logical[:i], k.logical[i+1:]...)
			return nil
		}
	}
	for i, r := range k.virtual {
		if r.name == name {
			if err := k.High.UnmapRegion(r.va, r.size, mmu.InvalidateAll); err != nil {
				return err
			}
			k.virtual = append(k.virtual[:i], k.virtual[i+1:]...)
			return nil
		}
	}
	for i, r := range k.mmio {
		if r.name == name {
			if err := k.High.UnmapRegion(r.va, r.size, mmu.InvalidateAll); err != nil {
				return err
			}
			k.mmio = append(k.mmio[:i], k.mmio[i+1:]...)
			return nil
		}
	}
	return &RangeNotFoundError{Name: name}
}

// FastMap installs pa at the reserved fast-map VA with perms, invalidates
// just that VA, invokes f, then unmaps and invalidates again — the
// mechanism by which kernel code briefly touches an arbitrary physical
// page that is not yet part of any address space.
func (k *KernelSpace) FastMap(pa uint64, perms mmu.PermPair, f func(va uint64) error) error {
	if err := k.High.MapRegion(FastMapVA, pa, mmu.PageSize, mmu.AttrNormal, perms, mmu.InvalidateVA); err != nil {
		return err
	}
	ferr := f(FastMapVA)
	if err := k.High.UnmapRegion(FastMapVA, mmu.PageSize, mmu.InvalidateVA); err != nil {
		if ferr == nil {
			return err
		}
	}
	return ferr
}

// ResolveAddress maps a kernel VA back to its physical address: the
// trivial linear-map subtraction if va falls within a logical range's
// (identity-offset) span, else a linear scan of the MMIO ranges.
func (k *KernelSpace) ResolveAddress(va uint64, linearMapOffset uint64) (uint64, error) {
	if va >= linearMapOffset {
		pa := va - linearMapOffset
		for _, r := range k.logical {
			if overlaps(r, va, 1) {
				return pa, nil
			}
		}
	}
	for _, r := range k.mmio {
		if overlaps(r, va, 1) {
			return r.pa + (va - r.va), nil
		}
	}
	return 0, ErrInvalidAddress
}

// ProcessSpace is one process's low-half table plus the named virtual
// ranges that own their backing physical regions.
type ProcessSpace struct {
	Table *mmu.Engine

	ranges []*processRange
}

type processRange struct {
	VirtualRange
	PhysBase uint64
}

// NewProcessSpace wires a ProcessSpace to its low-half page table engine.
func NewProcessSpace(table *mmu.Engine) *ProcessSpace {
	return &ProcessSpace{Table: table}
}

func (p *ProcessSpace) checkOverlaps(va, size uint64) error {
	for _, r := range p.ranges {
		if overlaps(&r.VirtualRange, va, size) {
			return &RangeOverlapsError{Name: r.Name()}
		}
	}
	return nil
}

func (p *ProcessSpace) findByName(name string) (*processRange, bool) {
	for _, r := range p.ranges {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

// MapSection installs a page mapping of physBase at va with perms and
// records it as a named, physical-region-owning range — the
// map_section operation process construction (component H) drives once
// per ELF segment.
func (p *ProcessSpace) MapSection(name string, va, physBase, size uint64, perms mmu.PermPair) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := p.checkOverlaps(va, size); err != nil {
		return err
	}
	if _, ok := p.findByName(name); ok {
		return &RangeExistsError{Name: name}
	}
	if err := p.Table.MapRegion(va, physBase, size, mmu.AttrNormal, perms, mmu.InvalidateAll); err != nil {
		return err
	}
	p.ranges = append(p.ranges, &processRange{
		VirtualRange: VirtualRange{name: name, va: va, size: size, Attr: mmu.AttrNormal, Perms: perms},
		PhysBase:     physBase,
	})
	return nil
}
