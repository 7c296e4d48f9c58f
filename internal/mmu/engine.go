package mmu

// TableSource supplies and resolves the physical pages that back level
// tables. Tables allocated before the MMU is enabled come from a
// statically-reserved bump arena and are marked "early" (never freed);
// ordinary tables are allocated from the frame allocator post-MMU and are
// freed on demote/unmap. Access must return an addressable pointer to the
// table's contents — translated through the kernel logical map if the MMU
// is on, or a direct host pointer in unit tests.
type TableSource interface {
	AllocTable() (pa uint64, early bool, err error)
	FreeTable(pa uint64)
	Access(pa uint64) *Table
}

// Fences is the seam over the DSB/ISB/TLB-invalidate primitives so the
// walker's control flow is host-testable without real hardware. The
// freestanding build wires this to internal/arch; host tests use a
// no-op or call-counting fake.
type Fences interface {
	DsbIshst()
	Isb()
	InvalidateTLBAll()
	InvalidateTLBVA(va uint64)
}

// NopFences is a Fences implementation that does nothing; useful in tests
// that only care about descriptor contents.
type NopFences struct{}

func (NopFences) DsbIshst()             {}
func (NopFences) Isb()                  {}
func (NopFences) InvalidateTLBAll()     {}
func (NopFences) InvalidateTLBVA(uint64) {}

// InvalidateMode selects the TLB discipline a mapping change requires: a
// full invalidate after changes to a general (process or kernel) table,
// or a single-VA invalidate after a fast-map page change.
type InvalidateMode uint8

const (
	InvalidateAll InvalidateMode = iota
	InvalidateVA
)

// Engine walks and mutates one root table (a kernel high-half table, a
// kernel low-half identity table, or a process's low-half table).
type Engine struct {
	Source TableSource
	Fences Fences
	RootPA uint64
}

func (e *Engine) fences() Fences {
	if e.Fences != nil {
		return e.Fences
	}
	return NopFences{}
}

// MapRegion installs (va, va+size) -> (pa, pa+size) with the given
// attribute and permission pair.
func (e *Engine) MapRegion(va, pa, size uint64, attr Attribute, perms PermPair, mode InvalidateMode) error {
	if va%PageSize != 0 || pa%PageSize != 0 {
		return ErrUnaligned
	}
	ap, pxn, uxn, err := EncodePermissions(perms)
	if err != nil {
		return err
	}
	size = alignUp(size)

	f := e.fences()
	f.DsbIshst()
	err = e.mapLevel(Level0, e.RootPA, va, pa, size, attr, ap, pxn, uxn)
	if err != nil {
		return err
	}
	e.invalidate(mode, va)
	f.Isb()
	return err
}

func (e *Engine) mapLevel(level Level, tablePA, va, pa, remaining uint64, attr Attribute, ap uint8, pxn, uxn bool) error {
	table := e.Source.Access(tablePA)
	for remaining > 0 {
		entrySize := level.entrySize()
		offsetInEntry := va & (entrySize - 1)
		chunk := entrySize - offsetInEntry
		if chunk > remaining {
			chunk = remaining
		}
		aligned := offsetInEntry == 0
		idx := level.index(va)
		d := table[idx]
		kind := d.Kind(level)

		switch {
		case level.canLeaf() && aligned && chunk == entrySize:
			switch kind {
			case KindInvalid:
				table[idx] = NewLeafDescriptor(level, pa, attr, ap, pxn, uxn)
			case KindBlock, KindPage:
				if d.OutputAddress() != pa {
					return &OverlapError{VA: va, Level: level}
				}
				// Idempotent remap: identical (pa, attrs, perms) leaves
				// the table unchanged.
			default:
				return &OverlapError{VA: va, Level: level}
			}
		default:
			var childPA uint64
			switch kind {
			case KindInvalid:
				newPA, early, err := e.Source.AllocTable()
				if err != nil {
					return err
				}
				table[idx] = NewTableDescriptor(newPA, early)
				childPA = newPA
			case KindTable:
				childPA = d.OutputAddress()
			default:
				return &OverlapError{VA: va, Level: level}
			}
			if err := e.mapLevel(level.next(), childPA, va, pa, chunk, attr, ap, pxn, uxn); err != nil {
				return err
			}
		}

		va += chunk
		pa += chunk
		remaining -= chunk
	}
	return nil
}

// UnmapRegion invalidates (va, va+size), demoting any Block descriptor
// that the range only partially covers into a freshly-allocated table
// that re-maps the block's remainder.
func (e *Engine) UnmapRegion(va, size uint64, mode InvalidateMode) error {
	if va%PageSize != 0 {
		return ErrUnaligned
	}
	size = alignUp(size)

	f := e.fences()
	f.DsbIshst()
	err := e.unmapLevel(Level0, e.RootPA, va, size)
	e.invalidate(mode, va)
	f.Isb()
	return err
}

func (e *Engine) unmapLevel(level Level, tablePA, va, remaining uint64) error {
	table := e.Source.Access(tablePA)
	for remaining > 0 {
		entrySize := level.entrySize()
		offsetInEntry := va & (entrySize - 1)
		chunk := entrySize - offsetInEntry
		if chunk > remaining {
			chunk = remaining
		}
		aligned := offsetInEntry == 0
		idx := level.index(va)
		d := table[idx]
		kind := d.Kind(level)

		switch kind {
		case KindInvalid:
			// Nothing mapped here; unmapping an already-unmapped range is
			// not an error.
		case KindPage:
			// Pages are always invalidated wholesale.
			table[idx] = 0
		case KindBlock:
			if aligned && chunk == entrySize {
				table[idx] = 0
				break
			}
			// Demote: allocate a fresh L3 table that re-maps the whole
			// block's remainder, then recurse to invalidate the
			// requested sub-range within it.
			blockPA := d.OutputAddress()
			flags := d.Flags()
			newPA, early, err := e.Source.AllocTable()
			if err != nil {
				return err
			}
			newTable := e.Source.Access(newPA)
			pageCount := uint64(entrySize / PageSize)
			for i := uint64(0); i < pageCount; i++ {
				newTable[i] = NewLeafDescriptor(Level3, blockPA+i*PageSize, Attribute(flags.MAIRIndex), flags.AP, flags.PXN, flags.UXN)
			}
			table[idx] = NewTableDescriptor(newPA, early)
			if err := e.unmapLevel(Level3, newPA, va, chunk); err != nil {
				return err
			}
		case KindTable:
			if err := e.unmapLevel(level.next(), d.OutputAddress(), va, chunk); err != nil {
				return err
			}
		}

		va += chunk
		remaining -= chunk
	}
	return nil
}

func (e *Engine) invalidate(mode InvalidateMode, va uint64) {
	f := e.fences()
	if mode == InvalidateVA {
		f.InvalidateTLBVA(va)
	} else {
		f.InvalidateTLBAll()
	}
}

// Walk finds the descriptor currently mapping va, if any, returning its
// kind, the level it was found at, and its output address. Used by
// translateKernelAddress-style VA->PA resolution and by tests asserting
// the exact table contents end-to-end mapping scenarios describe.
func (e *Engine) Walk(va uint64) (kind Kind, level Level, outputAddress uint64, found bool) {
	tablePA := e.RootPA
	for lvl := Level0; lvl < numLevels; lvl++ {
		table := e.Source.Access(tablePA)
		idx := lvl.index(va)
		d := table[idx]
		k := d.Kind(lvl)
		switch k {
		case KindInvalid:
			return KindInvalid, lvl, 0, false
		case KindBlock, KindPage:
			return k, lvl, d.OutputAddress(), true
		case KindTable:
			tablePA = d.OutputAddress()
		}
	}
	return KindInvalid, Level3, 0, false
}
