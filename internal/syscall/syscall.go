// Package syscall is the SVC dispatch table: each syscall is identified
// by its 16-bit SVC immediate and looked up in a small table of name and
// handler. Each handler reads its own arguments out of the saved context
// frame and writes its own return value to ctx.GPR[0]; the table carries
// no per-call argument or return-type signature.
package syscall

import (
	"corekernel/internal/arch"
	"corekernel/internal/klog"
	"corekernel/internal/process"
	"corekernel/internal/sched"
	"corekernel/internal/trap"
)

// Immediates for every syscall the core implements: the baseline
// Noop/Reboot/Multiply smoke-test calls plus the thread/process control
// calls (Yield/Exit/WaitPID).
const (
	Noop    uint16 = 0
	Reboot  uint16 = 1
	Yield   uint16 = 2
	Exit    uint16 = 3
	WaitPID uint16 = 4
	Multiply uint16 = 0x8000
)

// waiter is one thread blocked in wait_pid(pid), parked until the target
// process is killed.
type waiter struct {
	pid uint64
	tcb *sched.TCB
}

var waiters []*waiter

// descriptor is one syscall's handler: it reads whatever arguments it
// needs directly out of ctx.GPR and, if it returns a value, writes it to
// ctx.GPR[0] itself.
type descriptor struct {
	name    string
	handler func(ctx *trap.Context)
}

var table = map[uint16]descriptor{
	Noop:     {name: "noop", handler: handleNoop},
	Reboot:   {name: "reboot", handler: handleReboot},
	Yield:    {name: "yield", handler: handleYield},
	Exit:     {name: "exit", handler: handleExit},
	WaitPID:  {name: "wait_pid", handler: handleWaitPID},
	Multiply: {name: "multiply", handler: handleMultiply},
}

// Handle is the trap.Handlers.Syscall callback: it looks the SVC
// immediate up in the dispatch table and runs the matching handler,
// panicking on an unrecognized immediate.
func Handle(ctx *trap.Context) {
	imm := ctx.SVCImmediate()
	d, ok := table[imm]
	if !ok {
		klog.Panic("syscall: unknown syscall number %x", uint32(imm))
		return
	}
	klog.Info("syscall: %s", d.name)
	d.handler(ctx)
}

func handleNoop(ctx *trap.Context) {}

// handleReboot logs the request and hangs: a real reset needs a watchdog
// timer driver this core does not have, so there is nothing to trigger
// the actual reset.
func handleReboot(ctx *trap.Context) {
	klog.Warn("syscall: reboot requested, halting (no watchdog timer driver)")
	for {
		arch.WaitForInterrupt()
	}
}

func handleMultiply(ctx *trap.Context) {
	a := uint32(ctx.GPR[0])
	b := uint32(ctx.GPR[1])
	ctx.GPR[0] = uint64(a * b)
}

// handleYield triggers the same round-robin step a timer FIQ would, with
// the calling thread's context already saved in ctx.
func handleYield(ctx *trap.Context) {
	sched.RunScheduler(ctx)
}

// handleExit terminates the calling thread's owning process, wakes any
// thread parked in wait_pid for it, and installs the next ready thread's
// frame into ctx — KillCurrent has already cleared the current slot, so
// a plain RunScheduler call would see no current thread and no-op,
// erets back into the now-dead thread.
func handleExit(ctx *trap.Context) {
	code := ctx.GPR[0]
	h, err := process.KillCurrent(code)
	if err != nil {
		klog.Warn("syscall: exit with no current process: %s", err.Error())
	} else {
		wakeWaiters(h.PID(), code)
	}
	sched.Reschedule(ctx)
}

// handleWaitPID parks the calling thread until pid exits. If pid is
// already a zombie (or unknown — the process registry never reaps, so
// "unknown" only happens for a pid that was never valid), it returns the
// exit code immediately; otherwise the caller is pulled out of rotation
// via sched.Block until a later handleExit's wakeWaiters resolves it.
func handleWaitPID(ctx *trap.Context) {
	pid := ctx.GPR[0]

	if code, ok := exitCodeIfKilled(pid); ok {
		ctx.GPR[0] = code
		return
	}

	blocked := sched.Block(ctx)
	waiters = append(waiters, &waiter{pid: pid, tcb: blocked})
}

func exitCodeIfKilled(pid uint64) (uint64, bool) {
	h, ok := process.ValidatePID(pid)
	if !ok {
		return 0, true
	}
	var code uint64
	var killed bool
	process.WithProcess(h, func(p *process.Process) {
		if p.State == process.StateKilled {
			killed = true
			code = p.ExitCode
		}
	})
	return code, killed
}

// wakeWaiters resolves every thread parked in wait_pid(pid): the parked
// thread's saved x0 becomes the exit code, and it is pushed back onto
// the ready queue.
func wakeWaiters(pid uint64, code uint64) {
	kept := waiters[:0]
	for _, w := range waiters {
		if w.pid == pid {
			w.tcb.SetReturnValue(code)
			sched.Unblock(w.tcb)
			continue
		}
		kept = append(kept, w)
	}
	waiters = kept
}
