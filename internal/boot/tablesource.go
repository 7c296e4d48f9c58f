package boot

import (
	"errors"
	"unsafe"

	"corekernel/internal/mmu"
)

// bumpArenaPages sizes the static table arena EarlyInit's root tables are
// carved from. The kernel's low-half identity map, high-half map, and a
// handful of early block/page splits easily fit in a few dozen 16KiB
// tables; sized generously since this memory is never reclaimed.
const bumpArenaPages = 64

// bumpArena is the static, linker-placed backing store for every page
// table built before the frame allocator exists. Unlike
// memmgr's tableSource (component D), which draws frames from
// physmem once LateInit has seeded it, this arena is simply part of the
// kernel image's own .bss — identity-addressable on real hardware before
// the MMU is on, and an ordinary Go array under `go test`. Matches spec
// §4.B's "early" table flag: tables allocated here are marked early and
// are never freed, exactly as init.rs's own bring-up tables are never
// torn down.
var bumpArena [bumpArenaPages][mmu.PageSize]byte

// bumpTableSource is the mmu.TableSource used to build the kernel's
// initial root tables in Bootstrap, before memmgr.EarlyInit has run.
type bumpTableSource struct {
	next int
}

var errArenaExhausted = errors.New("boot: static table arena exhausted")

func (s *bumpTableSource) AllocTable() (pa uint64, early bool, err error) {
	if s.next >= bumpArenaPages {
		return 0, false, errArenaExhausted
	}
	addr := uint64(uintptr(unsafe.Pointer(&bumpArena[s.next][0])))
	s.next++
	return addr, true, nil
}

// FreeTable is a no-op: early tables are never freed.
func (s *bumpTableSource) FreeTable(pa uint64) {}

// Access resolves pa directly: the arena is identity-addressable both
// before the MMU is enabled (real PA == real VA at this stage of boot)
// and under `go test` (pa is already a host pointer value).
func (s *bumpTableSource) Access(pa uint64) *mmu.Table {
	return (*mmu.Table)(unsafe.Pointer(uintptr(pa)))
}

// newBumpTableSource returns a fresh early-table allocator, one per boot.
func newBumpTableSource() *bumpTableSource {
	return &bumpTableSource{}
}
