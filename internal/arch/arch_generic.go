//go:build !aarch64

package arch

// Generic, non-aarch64 stand-ins for the register primitives above. These
// back ordinary `go test` runs on a development host: there is no real
// DAIF/SCTLR/TLB to touch, so state is simulated in package-level
// variables. Logic built on top of arch (spinlock nesting, MMU table
// construction, scheduler bookkeeping) is exercised against this seam
// instead of real hardware.

var (
	simDAIF   uint64
	simSctlr  uint64
	simMair   uint64
	simTcr    uint64
	simTtbr0  uint64
	simTtbr1  uint64
	simVbar   uint64
)

func ReadDAIF() uint64    { return simDAIF }
func WriteDAIF(v uint64)  { simDAIF = v }
func MaskDAIF()           { simDAIF |= DAIFMaskAll }
func DsbSy()              {}
func DsbIshst()           {}
func Isb()                {}
func InvalidateTLBAll()   {}
func InvalidateTLBVA(uint64) {}

func ReadSctlrEl1() uint64   { return simSctlr }
func WriteSctlrEl1(v uint64) { simSctlr = v }
func WriteMairEl1(v uint64)  { simMair = v }
func WriteTcrEl1(v uint64)   { simTcr = v }
func WriteTtbr0El1(v uint64) { simTtbr0 = v }
func WriteTtbr1El1(v uint64) { simTtbr1 = v }
func SetVbarEl1(v uint64)    { simVbar = v }

// WaitForInterrupt is a no-op stand-in for wfi; callers never observe a
// real interrupt on a host build, so it simply returns.
func WaitForInterrupt() {}

// simEL lets tests drive both branches of the EL2/EL1 boot path without
// a real CurrentEL register; it defaults to EL1, the common case for
// code that runs after boot.
var simEL uint64 = EL1

// CurrentEL returns the simulated exception level.
func CurrentEL() uint64 { return simEL }

// DropToEL1 simulates the privilege drop by moving simEL to EL1; a host
// build has no real EL2 to leave.
func DropToEL1() { simEL = EL1 }

// SetCurrentELForTest lets a host-build test exercise the EL2 branch of
// boot-time code that branches on CurrentEL, since there is no real
// register to boot into EL2 with under `go test`.
func SetCurrentELForTest(el uint64) { simEL = el }
