package syscall

import (
	"testing"

	"corekernel/internal/addrspace"
	"corekernel/internal/klog"
	"corekernel/internal/memmgr"
	"corekernel/internal/mmu"
	"corekernel/internal/physmem"
	"corekernel/internal/process"
	"corekernel/internal/sched"
	"corekernel/internal/trap"
)

// fakeTables mirrors memmgr_test.go's fake page-table backing store, the
// same pattern process_test.go uses to drive memmgr's lifecycle without a
// real MMU.
type fakeTables struct {
	next   uint64
	tables map[uint64]*mmu.Table
}

func newFakeTables() *fakeTables {
	return &fakeTables{next: 0xC000_0000, tables: map[uint64]*mmu.Table{}}
}

func (f *fakeTables) AllocTable() (uint64, bool, error) {
	pa := f.next
	f.next += mmu.PageSize
	f.tables[pa] = &mmu.Table{}
	return pa, false, nil
}

func (f *fakeTables) FreeTable(pa uint64) { delete(f.tables, pa) }

func (f *fakeTables) Access(pa uint64) *mmu.Table { return f.tables[pa] }

func newEngine(src *fakeTables) *mmu.Engine {
	root, _, _ := src.AllocTable()
	return &mmu.Engine{Source: src, Fences: mmu.NopFences{}, RootPA: root}
}

var memmgrReady bool

// setupMemmgr drives memmgr's EarlyInit/LateInit exactly once per test
// binary: memmgr, like sched and process, keeps package-level state, and
// re-running EarlyInit a second time would double-register the DRAM pool.
func setupMemmgr(t *testing.T) {
	t.Helper()
	if memmgrReady {
		return
	}
	src := newFakeTables()
	kernel := addrspace.NewKernelSpace(newEngine(src), newEngine(src))

	dram := []memmgr.Region{{Name: "dram", PA: 0x5000_0000, Size: mmu.PageSize * 64}}
	kernelSections := []memmgr.Region{{Name: "text", PA: 0x5000_0000, Size: mmu.PageSize}}

	if err := memmgr.EarlyInit(kernel, dram, nil, kernelSections, func() error { return nil }); err != nil {
		t.Fatalf("memmgr.EarlyInit: %v", err)
	}

	heapRegion := memmgr.Region{PA: 0x5000_2000, Size: mmu.PageSize * 4}
	if err := memmgr.LateInit(0xFFFF_0000_0000_0000, heapRegion,
		[]physmem.Region{{PA: 0x5000_0000, NumPages: 64}},
		nil, kernelSections, memmgr.Region{}); err != nil {
		t.Fatalf("memmgr.LateInit: %v", err)
	}
	memmgrReady = true
}

// spawnProcess builds and starts a minimal process, returning its handle
// and the TID of its sole thread.
func spawnProcess(t *testing.T, name string) (process.Handle, uint64) {
	t.Helper()
	b, err := process.NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	b.PushArgument(name)
	b.SetEntrypoint(0x1000)
	h, err := b.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	var tid uint64
	if !process.WithProcess(h, func(p *process.Process) { tid = p.ThreadIDs[0] }) {
		t.Fatal("WithProcess: process not found right after Start")
	}
	return h, tid
}

// runSchedulerUntilCurrent ticks the round-robin scheduler until tid is
// current, tolerating whatever other threads earlier tests in this binary
// left queued ahead of it.
func runSchedulerUntilCurrent(t *testing.T, tid uint64) {
	t.Helper()
	if cur, ok := sched.Current(); !ok {
		sched.Initialize()
	} else if cur == tid {
		return
	}
	for i := 0; i < 10000; i++ {
		if cur, ok := sched.Current(); ok && cur == tid {
			return
		}
		sched.RunScheduler(&trap.Context{})
	}
	t.Fatalf("scheduler never cycled to thread %d", tid)
}

func svcContext(imm uint16, args ...uint64) *trap.Context {
	ctx := &trap.Context{ESR: uint64(imm)}
	for i, a := range args {
		ctx.GPR[i] = a
	}
	return ctx
}

func TestHandleNoopDoesNotPanic(t *testing.T) {
	setupMemmgr(t)
	ctx := svcContext(Noop)
	Handle(ctx)
}

func TestHandleMultiplyMultipliesLowWords(t *testing.T) {
	setupMemmgr(t)
	ctx := svcContext(Multiply, 6, 7)
	Handle(ctx)
	if ctx.GPR[0] != 42 {
		t.Fatalf("GPR[0] = %d, want 42", ctx.GPR[0])
	}
}

func TestHandleYieldRunsScheduler(t *testing.T) {
	setupMemmgr(t)
	_, tid := spawnProcess(t, "yielder")
	runSchedulerUntilCurrent(t, tid)

	ctx := svcContext(Yield)
	Handle(ctx)

	if cur, ok := sched.Current(); !ok || cur == tid {
		t.Fatalf("Current() = (%d, %v), expected scheduler to move on from %d", cur, ok, tid)
	}
}

func TestHandleExitKillsOwningProcessAndReschedules(t *testing.T) {
	setupMemmgr(t)
	h, tid := spawnProcess(t, "quitter")
	runSchedulerUntilCurrent(t, tid)

	ctx := svcContext(Exit, 9)
	Handle(ctx)

	var state process.State
	var code uint64
	if !process.WithProcess(h, func(p *process.Process) { state = p.State; code = p.ExitCode }) {
		t.Fatal("WithProcess: process vanished")
	}
	if state != process.StateKilled || code != 9 {
		t.Fatalf("state=%v code=%d, want StateKilled/9", state, code)
	}
	if cur, ok := sched.Current(); !ok || cur == tid {
		t.Fatalf("Current() = (%d, %v), expected reschedule away from killed thread %d", cur, ok, tid)
	}
}

func TestHandleWaitPIDReturnsImmediatelyForZombie(t *testing.T) {
	setupMemmgr(t)
	h, tid := spawnProcess(t, "zombie")
	runSchedulerUntilCurrent(t, tid)
	Handle(svcContext(Exit, 3))

	waiterCtx := svcContext(WaitPID, h.PID())
	Handle(waiterCtx)
	if waiterCtx.GPR[0] != 3 {
		t.Fatalf("GPR[0] = %d, want 3 (zombie's exit code)", waiterCtx.GPR[0])
	}
}

func TestHandleWaitPIDBlocksThenWakesOnExit(t *testing.T) {
	setupMemmgr(t)
	target, targetTID := spawnProcess(t, "target")
	_, waiterTID := spawnProcess(t, "waiter")

	runSchedulerUntilCurrent(t, waiterTID)
	waiterCtx := svcContext(WaitPID, target.PID())
	Handle(waiterCtx)

	if cur, ok := sched.Current(); !ok || cur == waiterTID {
		t.Fatalf("Current() = (%d, %v), expected Block to install another thread in place of %d", cur, ok, waiterTID)
	}

	found := false
	for _, w := range waiters {
		if w.tcb.TID() == waiterTID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected waiter to be parked in the waiters list")
	}

	runSchedulerUntilCurrent(t, targetTID)
	resumeCtx := svcContext(Exit, 11)
	Handle(resumeCtx)

	// resumeCtx now holds the current thread's frame; keep rotating it
	// through the scheduler until the woken waiter's saved frame is the
	// one installed.
	for i := 0; i < 10000; i++ {
		if cur, ok := sched.Current(); ok && cur == waiterTID {
			break
		}
		sched.RunScheduler(resumeCtx)
	}
	if cur, ok := sched.Current(); !ok || cur != waiterTID {
		t.Fatalf("scheduler never cycled back to woken waiter %d", waiterTID)
	}
	if resumeCtx.GPR[0] != 11 {
		t.Fatalf("woken waiter's restored GPR[0] = %d, want 11 (written via SetReturnValue)", resumeCtx.GPR[0])
	}
}

func TestHandleUnknownSyscallPanics(t *testing.T) {
	setupMemmgr(t)
	klog.Init(discardWriter{}, func() { panic("unreachable syscall") })
	defer klog.Init(discardWriter{}, nil)
	defer func() {
		if recover() == nil {
			t.Fatal("expected an unknown syscall to halt via klog.Panic")
		}
	}()
	Handle(svcContext(0x4242))
}

type discardWriter struct{}

func (discardWriter) WriteByte(byte) {}
