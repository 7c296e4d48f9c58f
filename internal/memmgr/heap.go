package memmgr

// heapSegment is one node of the kernel heap's doubly-linked free/used
// list. Rather than casting a raw start address via unsafe.Pointer into
// a segment header — there is no backing OS allocator to borrow that
// trick from — segments here are ordinary Go values, and the "heap" is
// the region of physical memory late_init hands to NewHeap. The
// allocator keeps a single address-ordered list and does best-fit
// search, splitting and neighbour coalescing over it.
type heapSegment struct {
	next, prev  *heapSegment
	allocated   bool
	size        uint64
	base        uint64
}

// Heap is a best-fit doubly-linked-list allocator over one contiguous
// range, used for the kernel's general-purpose (non-page-granularity)
// allocations once late_init installs it.
type Heap struct {
	head *heapSegment
}

// NewHeap creates a heap covering [base, base+size).
func NewHeap(base, size uint64) *Heap {
	return &Heap{head: &heapSegment{base: base, size: size}}
}

// Alloc finds the best-fitting free segment, splitting it if it is
// larger than needed, and returns the base address of the allocation.
func (h *Heap) Alloc(size uint64) (uint64, bool) {
	var best *heapSegment
	var bestDiff uint64 = ^uint64(0)

	for seg := h.head; seg != nil; seg = seg.next {
		if seg.allocated || seg.size < size {
			continue
		}
		diff := seg.size - size
		if diff < bestDiff {
			best = seg
			bestDiff = diff
		}
	}
	if best == nil {
		return 0, false
	}

	const minSplitRemainder = 32
	if best.size-size >= minSplitRemainder {
		remainder := &heapSegment{
			base: best.base + size,
			size: best.size - size,
			next: best.next,
			prev: best,
		}
		if best.next != nil {
			best.next.prev = remainder
		}
		best.next = remainder
		best.size = size
	}
	best.allocated = true
	return best.base, true
}

// Free marks the segment starting at base as free again and coalesces it
// with either neighbour that is also free.
func (h *Heap) Free(base uint64) bool {
	for seg := h.head; seg != nil; seg = seg.next {
		if seg.base != base {
			continue
		}
		seg.allocated = false
		if next := seg.next; next != nil && !next.allocated {
			seg.size += next.size
			seg.next = next.next
			if next.next != nil {
				next.next.prev = seg
			}
		}
		if prev := seg.prev; prev != nil && !prev.allocated {
			prev.size += seg.size
			prev.next = seg.next
			if seg.next != nil {
				seg.next.prev = prev
			}
		}
		return true
	}
	return false
}
