//go:build !aarch64

package boot

// DirectMemory backs ApplyRelocations/ApplyRelocationsHighHalf on a host
// build with a map keyed by address, mirroring process/memwrite_generic.go's
// writeSim stand-in: there is no real physical address space to poke on
// `go test`, so writes land in an ordinary Go map and tests read them back
// through the same type.
type DirectMemory struct {
	words map[uint64]uint64
}

// NewDirectMemory returns a ready-to-use simulated address space.
func NewDirectMemory() *DirectMemory {
	return &DirectMemory{words: make(map[uint64]uint64)}
}

func (m *DirectMemory) WriteUint64(addr uint64, v uint64) {
	if m.words == nil {
		m.words = make(map[uint64]uint64)
	}
	m.words[addr] = v
}

// ReadUint64 lets tests observe a simulated write.
func (m *DirectMemory) ReadUint64(addr uint64) uint64 {
	return m.words[addr]
}
