//go:build !aarch64

package process

// On a host build there is no real MMU behind a fast-mapped VA, so
// writeAt/readAt simulate the window with a va-indexed scratch buffer
// instead of dereferencing a bogus pointer — the same register-access
// seam internal/arch's generic build uses for DAIF/SCTLR/TLB state.
// Since DoWithFastMap always hands out the same fixed VA and each call
// completes before the next starts, one growable buffer per VA is
// enough to let copySection/mapArguments exercise their real
// byte-layout logic under `go test`.
var writeSim = map[uint64][]byte{}

func writeAt(va uint64, offset uint64, data []byte) {
	buf := writeSim[va]
	need := int(offset) + len(data)
	if len(buf) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	writeSim[va] = buf
}

func readAt(va uint64, offset uint64, n int) []byte {
	buf := writeSim[va]
	out := make([]byte, n)
	if int(offset) < len(buf) {
		copy(out, buf[offset:])
	}
	return out
}
