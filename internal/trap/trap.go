// Package trap is the exception vector dispatch layer (component F): a
// 16-entry vector trampoline target, the saved-register Exception
// Context, and the synchronous/IRQ/FIQ/SError dispatch table.
//
// An ExceptionInfo-style record carries the vector class, //go:linkname
// register accessors reach ESR/ELR/etc., Dispatch is the assembly-called
// entry point, and the EC_* exception-class constants classify the
// fault, with a "log full description, then halt" policy for classes
// this kernel does not otherwise handle. The ARM-correct AArch64 SVC
// class value is 0b010101 (EC_SVC_EL0) — a value some exception-class
// tables collide on with EC_TRAP_SVE (0b010100) by mistake; this table
// keeps them distinct. FIQ handling implements the "acknowledge timer,
// run scheduler" sequence.
package trap

import "corekernel/internal/klog"

// Exception class values extracted from ESR_EL1 bits 31:26. Kept from the
// teacher's naming; EC_SVC_EL0_A64 is corrected to 0b010101 (see package
// doc).
const (
	ECUnknown         = 0b000000
	ECTrapWFx         = 0b000001
	ECTrapMsrMrs      = 0b010001
	ECTrapSVE         = 0b010100
	ECSVCEL0A64       = 0b010101
	ECPrefetchAbortEL0 = 0b100000
	ECPrefetchAbortELx = 0b100001
	ECDataAbortEL0     = 0b100100
	ECDataAbortELx     = 0b100101
	ECBreakpointELx    = 0b110001
	ECIllegalExecution = 0b011110
)

// Type identifies which of the four vector classes delivered the
// exception, matching go/mazarin/exceptions.go's SYNC_EXCEPTION/IRQ/FIQ/
// SERROR constants.
type Type uint32

const (
	Sync Type = iota
	IRQ
	FIQ
	SError
)

// Context is the saved register frame an exception entry pushes,
// ordered so a bulk restore can reproduce the interrupted state.
type Context struct {
	GPR  [31]uint64
	SPEL0 uint64
	ELR   uint64
	SPSR  uint64
	ESR   uint64
	FAR   uint64
}

// EC returns the ESR_EL1 exception class field (bits 31:26).
func (c *Context) EC() uint64 { return (c.ESR >> 26) & 0x3F }

// ISS returns the ESR_EL1 instruction-specific syndrome field.
func (c *Context) ISS() uint32 { return uint32(c.ESR & 0xFFFFFF) }

// SVCImmediate returns the 16-bit immediate of an SVC instruction, valid
// only when EC() is ECSVCEL0A64.
func (c *Context) SVCImmediate() uint16 { return uint16(c.ESR & 0xFFFF) }

// Handlers bundles the callbacks dispatch delegates to, so this package
// depends on neither internal/syscall nor internal/sched directly
// (avoiding an import cycle: both of those depend on trap.Context).
type Handlers struct {
	// Syscall handles an SVC64 exception from a lower EL. It must update
	// ctx in place (e.g. ctx.GPR[0] with a return value).
	Syscall func(ctx *Context)
	// UserAbort handles a data/instruction abort taken from a lower EL:
	// log the fault and terminate the current process with a non-zero
	// exit code.
	UserAbort func(ctx *Context)
	// TimerFIQ acknowledges the timer and reloads CNTV_TVAL, then invokes
	// the scheduler.
	TimerFIQ func(ctx *Context)
}

var handlers Handlers

// Init installs the callback set dispatch uses. Must be called once
// during boot before interrupts/exceptions can legitimately fire.
func Init(h Handlers) { handlers = h }

// Dispatch is called from the assembly vector trampoline with the fully
// populated Context and the vector class that fired. Unhandled
// synchronous classes (same-EL, or a class this kernel
// does not model) and all IRQ/SError deliveries panic with a full context
// dump — this core has no IRQ controller driver and does not expect
// same-EL synchronous faults.
func Dispatch(ctx *Context, t Type) {
	switch t {
	case FIQ:
		if handlers.TimerFIQ != nil {
			handlers.TimerFIQ(ctx)
			return
		}
		panicWithContext(ctx, "unhandled FIQ (no timer handler installed)")
	case IRQ:
		panicWithContext(ctx, "unhandled IRQ")
	case SError:
		panicWithContext(ctx, "SError")
	case Sync:
		dispatchSync(ctx)
	}
}

func dispatchSync(ctx *Context) {
	switch ctx.EC() {
	case ECSVCEL0A64:
		if handlers.Syscall != nil {
			handlers.Syscall(ctx)
			return
		}
		panicWithContext(ctx, "SVC with no syscall handler installed")
	case ECDataAbortEL0, ECPrefetchAbortEL0:
		if handlers.UserAbort != nil {
			handlers.UserAbort(ctx)
			return
		}
		panicWithContext(ctx, "user abort with no handler installed")
	default:
		panicWithContext(ctx, "unhandled synchronous exception class")
	}
}

func panicWithContext(ctx *Context, reason string) {
	klog.Panic("%s: elr=0x%x esr=0x%x ec=0x%x spsr=0x%x far=0x%x", reason, ctx.ELR, ctx.ESR, ctx.EC(), ctx.SPSR, ctx.FAR)
}
