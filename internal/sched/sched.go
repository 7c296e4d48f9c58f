// Package sched is the scheduler/thread subsystem (component G): thread
// control blocks, a single ready queue, round-robin run_scheduler, and
// the idle thread.
//
// The thread control block carries tid, name, entry closure, stack, and
// saved elr/spsr/sp_el0/gpr; a Builder provides a name/stack-size/spawn
// chain; run_scheduler has a push-then-pop round-robin body with a "no
// current thread yet ⇒ no-op" guard; initialize spawns the idle thread
// and erets into the first ready TCB. This is a custom TCB/ready-queue
// design rather than a hosted goroutine scheduler built on preemptible
// goroutines and futex emulation — only the dsb/isb-around-
// critical-section fence placement pattern carries over from that
// style of design. On thread-closure return, the wrapper around a
// thread's entry closure calls the same process-exit path a normal
// process return uses, rather than panicking (see DESIGN.md).
package sched

import (
	"reflect"
	"unsafe"

	"corekernel/internal/arch"
	"corekernel/internal/spinlock"
	"corekernel/internal/trap"
)

const defaultStackSize = 4096

// TCB is a thread control block: the saved register frame plus the
// bookkeeping needed to place it in the ready queue or the current slot.
type TCB struct {
	tid   uint64
	name  string
	entry func()
	stack []uint64

	regs  [31]uint64
	elr   uint64
	spsr  uint64
	spEl0 uint64

	next, prev *TCB
}

// Name returns the thread's name, or "" if it was spawned anonymously.
func (t *TCB) Name() string { return t.name }

// TID returns the thread's monotonically assigned identifier.
func (t *TCB) TID() uint64 { return t.tid }

// SetReturnValue overwrites the thread's saved x0, the register a
// blocked syscall's return value is written into before Unblock makes
// the thread runnable again — component I's wait_pid uses this to
// deliver the woken exit code, since the thread isn't current when the
// result becomes known.
func (t *TCB) SetReturnValue(v uint64) { t.regs[0] = v }

type list struct {
	head, tail *TCB
}

func (l *list) push(t *TCB) {
	t.prev, t.next = l.tail, nil
	if l.tail != nil {
		l.tail.next = t
	} else {
		l.head = t
	}
	l.tail = t
}

func (l *list) pop() *TCB {
	t := l.head
	if t == nil {
		return nil
	}
	l.head = t.next
	if l.head != nil {
		l.head.prev = nil
	} else {
		l.tail = nil
	}
	t.next, t.prev = nil, nil
	return t
}

type schedState struct {
	threads list
	current *TCB
	nextTID uint64
}

var state = spinlock.New(schedState{})

// OnExit is invoked by the thread-entry wrapper once a thread's closure
// returns, so the host kernel can remove it from the schedulable set.
// Wired by internal/process to the same exit(0) path a process's normal
// termination syscall uses.
var OnExit func(tid uint64)

// threadStartPC stands in for thread.rs's `thread_start as usize`: the
// entry PC installed in a freshly-spawned thread's saved ELR, so that
// initialize/run_scheduler's eret lands back in threadStart. Obtained via
// reflection rather than a linker symbol since threadStart is ordinary Go
// code, not hand-written assembly.
var threadStartPC = uint64(reflect.ValueOf(threadStart).Pointer())

func addressOf[T any](p *T) uint64 { return uint64(uintptr(unsafe.Pointer(p))) }

func threadStart(tcb *TCB) {
	entry := tcb.entry
	tcb.entry = nil
	if entry != nil {
		entry()
	}
	if OnExit != nil {
		OnExit(tcb.tid)
	}
	for {
		arch.WaitForInterrupt()
	}
}

// Builder collects a thread's name and stack size before Spawn, mirroring
// thread.rs's Builder.
type Builder struct {
	name      string
	stackSize int
}

// NewBuilder returns a Builder with sensible defaults: an anonymous
// name and a 4096-word (32 KiB) stack, sized generously since this kernel's
// threads run real Go closures rather than tight assembly-level entry
// points.
func NewBuilder() *Builder { return &Builder{stackSize: defaultStackSize} }

// Name sets the thread's name.
func (b *Builder) Name(name string) *Builder { b.name = name; return b }

// StackSize sets the thread's stack size in 8-byte words.
func (b *Builder) StackSize(words int) *Builder { b.stackSize = words; return b }

// Spawn creates a new thread running fn and appends it to the ready
// queue.
func (b *Builder) Spawn(fn func()) *TCB {
	stackSize := b.stackSize
	if stackSize <= 0 {
		stackSize = defaultStackSize
	}
	stack := make([]uint64, stackSize)

	g := state.Lock()
	s := g.Value()
	tid := s.nextTID
	s.nextTID++

	tcb := &TCB{
		tid:   tid,
		name:  b.name,
		entry: fn,
		stack: stack,
		spsr:  arch.SPSREL1t,
	}
	tcb.spEl0 = addressOf(&stack[len(stack)-1])
	tcb.elr = threadStartPC
	tcb.regs[0] = addressOf(tcb)

	s.threads.push(tcb)
	g.Unlock()
	return tcb
}

// Spawn is the package-level convenience matching thread.rs's free
// function spawn().
func Spawn(fn func()) *TCB { return NewBuilder().Spawn(fn) }

// SpawnProcess creates the initial thread for a freshly-built process
// process loader's initial thread: unlike a kernel thread, its stack
// lives in the process's own address space rather than a
// kernel-allocated Go slice, and it erets straight into user code at
// EL0 rather than through threadStart, with x0=argc, x1=&argv[0],
// x2=&envp[0], sp=stack_top, elr=entry, spsr=EL0t.
func SpawnProcess(name string, entryVA, stackTopVA, argc, argv, envp uint64) *TCB {
	g := state.Lock()
	s := g.Value()
	tid := s.nextTID
	s.nextTID++

	tcb := &TCB{
		tid:   tid,
		name:  name,
		spsr:  arch.SPSREL0t,
		elr:   entryVA,
		spEl0: stackTopVA,
	}
	tcb.regs[0] = argc
	tcb.regs[1] = argv
	tcb.regs[2] = envp

	s.threads.push(tcb)
	g.Unlock()
	return tcb
}

// RemoveThreads strips every thread whose tid appears in tids from the
// ready queue, and clears the current slot if it matches one of them so
// the next scheduler tick installs a replacement — the kill path for
// tearing down every thread of a terminated process, purging them from
// the ready queue including the current one.
func RemoveThreads(tids []uint64) {
	if len(tids) == 0 {
		return
	}
	dying := func(tid uint64) bool {
		for _, t := range tids {
			if t == tid {
				return true
			}
		}
		return false
	}

	g := state.Lock()
	s := g.Value()

	var kept list
	for t := s.threads.pop(); t != nil; t = s.threads.pop() {
		if dying(t.tid) {
			continue
		}
		kept.push(t)
	}
	s.threads = kept

	if s.current != nil && dying(s.current.tid) {
		s.current = nil
	}
	g.Unlock()
}

// Initialize spawns the idle thread, makes the first ready thread
// current, and returns the TCB the caller should eret into. It must be
// called exactly once, at the end of boot.
func Initialize() *TCB {
	g := state.Lock()
	s := g.Value()
	if s.current != nil {
		g.Unlock()
		panic("sched: Initialize called twice")
	}
	g.Unlock()

	NewBuilder().Name("idle").StackSize(128).Spawn(func() {
		for {
			arch.WaitForInterrupt()
		}
	})

	g = state.Lock()
	s = g.Value()
	thread := s.threads.pop()
	if thread == nil {
		g.Unlock()
		panic("sched: no threads found")
	}
	s.current = thread
	g.Unlock()
	return thread
}

// RunScheduler performs one round-robin tick: it saves ctx into the
// current TCB, pushes it to the tail of the ready queue, pops the head,
// and restores its saved state into ctx. If no thread is current
// (scheduler not started yet), it is a no-op.
func RunScheduler(ctx *trap.Context) {
	g := state.Lock()
	defer g.Unlock()
	s := g.Value()

	current := s.current
	if current == nil {
		return
	}
	s.current = nil

	current.spsr = ctx.SPSR
	current.spEl0 = ctx.SPEL0
	current.regs = ctx.GPR
	current.elr = ctx.ELR

	s.threads.push(current)
	next := s.threads.pop()

	ctx.SPSR = next.spsr
	ctx.SPEL0 = next.spEl0
	ctx.GPR = next.regs
	ctx.ELR = next.elr

	s.current = next
}

// Reschedule installs the head of the ready queue as current and copies
// its saved frame into ctx. Unlike RunScheduler it never pushes a
// "current" thread back onto the queue first — component H's exit
// syscall calls this after KillCurrent has already removed the dying
// thread (and cleared the current slot) to pick its replacement before
// the SVC handler returns, since a plain RunScheduler call would see
// current == nil and no-op, erets straight back into the thread that
// was just killed.
func Reschedule(ctx *trap.Context) {
	g := state.Lock()
	s := g.Value()
	next := s.threads.pop()
	if next == nil {
		g.Unlock()
		panic("sched: no ready thread to reschedule")
	}
	ctx.SPSR = next.spsr
	ctx.SPEL0 = next.spEl0
	ctx.GPR = next.regs
	ctx.ELR = next.elr
	s.current = next
	g.Unlock()
}

// Block removes the current thread from scheduling without requeuing
// it, saves ctx into its TCB, installs the next ready thread into ctx,
// and returns the blocked TCB so the caller can hold onto it until some
// later event calls Unblock — component I's wait_pid parking primitive.
// Unlike RunScheduler, a blocked thread is not pushed to the ready
// queue's tail, so it cannot be picked again until explicitly unblocked.
func Block(ctx *trap.Context) *TCB {
	g := state.Lock()
	s := g.Value()
	current := s.current
	if current == nil {
		g.Unlock()
		panic("sched: Block called with no current thread")
	}
	current.spsr = ctx.SPSR
	current.spEl0 = ctx.SPEL0
	current.regs = ctx.GPR
	current.elr = ctx.ELR
	s.current = nil

	next := s.threads.pop()
	if next == nil {
		g.Unlock()
		panic("sched: no ready thread available to take over while blocking")
	}
	ctx.SPSR = next.spsr
	ctx.SPEL0 = next.spEl0
	ctx.GPR = next.regs
	ctx.ELR = next.elr
	s.current = next

	g.Unlock()
	return current
}

// Unblock returns a thread previously taken out of rotation by Block to
// the tail of the ready queue, making it schedulable again.
func Unblock(tcb *TCB) {
	g := state.Lock()
	g.Value().threads.push(tcb)
	g.Unlock()
}

// Current returns the TID of the currently-running thread, or (0, false)
// if the scheduler has not started.
func Current() (uint64, bool) {
	g := state.Lock()
	defer g.Unlock()
	s := g.Value()
	if s.current == nil {
		return 0, false
	}
	return s.current.tid, true
}
