package sched

import (
	"testing"

	"corekernel/internal/arch"
	"corekernel/internal/trap"
)

func TestRunSchedulerNoopWithoutCurrent(t *testing.T) {
	ctx := &trap.Context{ELR: 0x1234}
	RunScheduler(ctx)
	if ctx.ELR != 0x1234 {
		t.Fatal("expected RunScheduler to be a no-op before Initialize")
	}
}

func TestSpawnAssignsMonotonicTIDs(t *testing.T) {
	a := Spawn(func() {})
	b := Spawn(func() {})
	if b.TID() <= a.TID() {
		t.Fatalf("expected monotonically increasing TIDs, got %d then %d", a.TID(), b.TID())
	}
}

func TestBuilderSetsName(t *testing.T) {
	tcb := NewBuilder().Name("worker").Spawn(func() {})
	if tcb.Name() != "worker" {
		t.Fatalf("Name() = %q, want %q", tcb.Name(), "worker")
	}
}

func TestSpawnProcessSeedsEntryFrame(t *testing.T) {
	tcb := SpawnProcess("init", 0x1000, 0x2000, 3, 0x3000, 0x4000)
	if tcb.elr != 0x1000 || tcb.spEl0 != 0x2000 {
		t.Fatalf("elr/spEl0 = %#x/%#x, want 0x1000/0x2000", tcb.elr, tcb.spEl0)
	}
	if tcb.regs[0] != 3 || tcb.regs[1] != 0x3000 || tcb.regs[2] != 0x4000 {
		t.Fatalf("unexpected entry registers: %+v", tcb.regs[:3])
	}
	if tcb.spsr != arch.SPSREL0t {
		t.Fatalf("spsr = %#x, want EL0t", tcb.spsr)
	}
}

func TestRemoveThreadsDropsFromReadyQueueAndCurrent(t *testing.T) {
	victim := Spawn(func() {})
	survivor := Spawn(func() {})

	g := state.Lock()
	s := g.Value()
	s.current = victim
	g.Unlock()

	RemoveThreads([]uint64{victim.TID()})

	if _, ok := Current(); ok {
		t.Fatal("expected current slot to be cleared after removing the current thread")
	}

	g = state.Lock()
	s = g.Value()
	found := false
	for tcb := s.threads.pop(); tcb != nil; tcb = s.threads.pop() {
		if tcb.tid == survivor.TID() {
			found = true
		}
		if tcb.tid == victim.TID() {
			t.Fatalf("removed thread %d still present in ready queue", victim.TID())
		}
	}
	g.Unlock()
	if !found {
		t.Fatal("expected surviving thread to remain in the ready queue")
	}
}

func TestReschedulePopsQueueHeadIntoCtx(t *testing.T) {
	a := Spawn(func() {})

	g := state.Lock()
	s := g.Value()
	s.current = nil
	a.elr = 0x7777
	a.spEl0 = 0x8888
	a.spsr = arch.SPSREL1t
	g.Unlock()

	ctx := &trap.Context{}
	Reschedule(ctx)

	if ctx.ELR != 0x7777 || ctx.SPEL0 != 0x8888 || ctx.SPSR != arch.SPSREL1t {
		t.Fatalf("ctx = {elr:%#x spEl0:%#x spsr:%#x}, want thread a's saved frame", ctx.ELR, ctx.SPEL0, ctx.SPSR)
	}
	if tid, ok := Current(); !ok || tid != a.TID() {
		t.Fatalf("Current() = (%d, %v), want (%d, true)", tid, ok, a.TID())
	}
}
