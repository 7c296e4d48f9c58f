// Package process is the process loader (component H): an ELF64 image
// becomes a process address space, a populated stack and argv/envp
// page, and one runnable thread.
//
// Backtrace symbolication is out of scope, so only the PID/zombie
// bookkeeping around process construction is implemented here. Section
// copying clears each page in full and then copies exactly
// min(chunkSize, remaining) bytes into its front, since the frame
// allocator does not clear the frames it hands out.
package process

import (
	"encoding/binary"
	"errors"
	"fmt"

	"corekernel/internal/addrspace"
	"corekernel/internal/elf"
	"corekernel/internal/klog"
	"corekernel/internal/memmgr"
	"corekernel/internal/mmu"
	"corekernel/internal/sched"
	"corekernel/internal/spinlock"
)

// init wires sched's thread-closure-return hook to process termination:
// a kernel thread whose entry closure returns exits the same way an
// explicit exit syscall would, rather than panicking. Threads with no
// owning process (the idle thread, any bare kernel worker spawned via
// sched.Spawn) simply have nothing to clean up.
func init() {
	sched.OnExit = func(tid uint64) {
		if _, err := KillCurrent(0); err != nil && err != ErrNoCurrentProcess {
			klog.Warn("process: exit cleanup failed for tid %d: %s", tid, err.Error())
		}
	}
}

const (
	stackSize  = 32 * 1024
	pageSize   = mmu.PageSize
	stackBase  = 0xF00000000000
	argsBase   = 0xF80000000000
)

// Errors returned by process construction and lookup, mirroring
// process::Error's variants (address-space/memory/thread wrapping is
// flattened here since Go propagates the underlying error directly).
var (
	ErrNoCurrentProcess        = errors.New("process: no current process")
	ErrInvalidBase             = errors.New("process: invalid ASLR base")
	ErrUnsupportedExecutable   = errors.New("process: not an executable or shared object")
	ErrUnalignedLoadableSegment = errors.New("process: loadable segment is not page-aligned")
	ErrNoEntryPoint            = errors.New("process: builder has no entry point set")
)

// State is a process's lifecycle state.
type State int

const (
	StateRunning State = iota
	StateKilled
)

// Handle is an opaque, comparable reference to a registered process.
type Handle struct{ pid uint64 }

// PID returns the raw process identifier, matching ProcessHandle::get_raw.
func (h Handle) PID() uint64 { return h.pid }

// Process is one running (or zombie) process: its address space, the
// thread IDs it owns, and its exit status once killed.
type Process struct {
	PID         uint64
	AddressSpace *addrspace.ProcessSpace
	ThreadIDs   []uint64
	State       State
	ExitCode    uint64
	ASLRBase    uint64
}

type registry struct {
	processes []*Process
	nextPID   uint64
}

var procs = spinlock.New(registry{})

func findLocked(r *registry, pid uint64) *Process {
	for _, p := range r.processes {
		if p.PID == pid {
			return p
		}
	}
	return nil
}

// ValidatePID returns a Handle for pid if a process with that PID is
// registered, matching validate_pid.
func ValidatePID(pid uint64) (Handle, bool) {
	g := procs.Lock()
	defer g.Unlock()
	if findLocked(g.Value(), pid) == nil {
		return Handle{}, false
	}
	return Handle{pid: pid}, true
}

// WithProcess runs f against the process identified by h, matching
// do_with_process. Returns false if no such process is registered.
func WithProcess(h Handle, f func(p *Process)) bool {
	g := procs.Lock()
	defer g.Unlock()
	p := findLocked(g.Value(), h.pid)
	if p == nil {
		return false
	}
	f(p)
	return true
}

// Builder collects argv, envp, the entry point, the ASLR base, and the
// per-section mapping requests for a new process, matching process.rs's
// Builder.
type Builder struct {
	space       *addrspace.ProcessSpace
	arguments   []string
	envKeys     []string
	environment map[string]string
	entrypoint  uint64
	hasEntry    bool
	aslrBase    uint64
	elfData     []byte
}

// NewBuilder allocates a fresh process address space (one root table,
// drawn from the same frame allocator every other physical allocation
// comes from) and returns a Builder over it.
func NewBuilder() (*Builder, error) {
	root, err := memmgr.RequestAnyPages(1)
	if err != nil {
		return nil, err
	}
	engine := &mmu.Engine{Source: memmgr.TableSource(), Fences: memmgr.Fences(), RootPA: root.PA}
	return &Builder{
		space:       addrspace.NewProcessSpace(engine),
		environment: map[string]string{},
	}, nil
}

// SetEntrypoint records the process's entry VA.
func (b *Builder) SetEntrypoint(va uint64) { b.entrypoint = va; b.hasEntry = true }

// SetELFData keeps the raw image around for symbolication-style
// re-parsing, kept here only so a future debugging facility has it
// available.
func (b *Builder) SetELFData(data []byte) { b.elfData = data }

// SetASLRBase records the per-process ASLR offset added to the stack,
// args page, and every loaded segment's VA.
func (b *Builder) SetASLRBase(base uint64) { b.aslrBase = base }

// PushArgument appends one argv entry.
func (b *Builder) PushArgument(arg string) { b.arguments = append(b.arguments, arg) }

// PushEnvironmentVariable sets one envp entry.
func (b *Builder) PushEnvironmentVariable(key, value string) {
	if _, exists := b.environment[key]; !exists {
		b.envKeys = append(b.envKeys, key)
	}
	b.environment[key] = value
}

// copySection copies data into pmr's frames one page at a time via
// do_with_fast_map, since freshly-allocated frames are not yet reachable
// through the kernel's linear view. Each page copies exactly
// min(PAGE_SIZE, remaining source bytes) into its front and zeroes the
// rest itself, rather than trusting a zero-on-alloc guarantee the frame
// allocator doesn't actually provide — a page recycled from a prior
// process's ReleasePages call may still hold its old contents, and a
// BSS-only tail page (chunk == 0) must still come out zero.
func copySection(base uint64, numPages uint64, data []byte) error {
	remaining := len(data)
	offset := 0
	zero := make([]byte, pageSize)
	for i := uint64(0); i < numPages; i++ {
		pa := base + i*pageSize
		chunk := pageSize
		if remaining < chunk {
			chunk = remaining
		}
		pageData := data[offset:minInt(len(data), offset+chunk)]
		err := memmgr.DoWithFastMap(pa, mmu.PermPair{Privileged: mmu.PermRW, Unprivileged: mmu.PermNone}, func(va uint64) error {
			writeAt(va, 0, zero)
			writeAt(va, 0, pageData)
			return nil
		})
		if err != nil {
			return err
		}
		remaining -= chunk
		offset += chunk
	}
	if remaining != 0 {
		return fmt.Errorf("process: copy_section left %d bytes uncopied", remaining)
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func numPagesFromBytes(size uint64) uint64 {
	return (size + pageSize - 1) / pageSize
}

// MapSection allocates ceil(sizeBytes/PAGE_SIZE) zero-filled frames,
// copies data into them, and installs a named range in the process
// address space at va with for_process(perms) permissions, matching
// process.rs's Builder::map_section.
func (b *Builder) MapSection(name string, va uint64, sizeBytes uint64, data []byte, perms mmu.Permission) error {
	numPages := numPagesFromBytes(sizeBytes)
	region, err := memmgr.RequestAnyPages(numPages)
	if err != nil {
		return err
	}
	if err := copySection(region.PA, numPages, data); err != nil {
		return err
	}
	return b.space.MapSection(name, va, region.PA, numPages*pageSize, mmu.ForProcess(perms))
}

func (b *Builder) mapStack() (uint64, error) {
	numPages := numPagesFromBytes(stackSize)
	region, err := memmgr.RequestAnyPages(numPages)
	if err != nil {
		return 0, err
	}
	stackVA := stackBase + b.aslrBase
	if err := b.space.MapSection(".stack", stackVA, region.PA, numPages*pageSize, mmu.ForProcess(mmu.PermRW)); err != nil {
		return 0, err
	}
	return stackVA, nil
}

// mapArguments lays out argv/envp strings and pointer arrays into one
// page at argsBase+aslrBase, matching process.rs's Builder::map_arguments
// byte layout exactly: strings first, then pointer-aligned argv[], then
// envp[], each null-terminated/null-terminated-array.
func (b *Builder) mapArguments() (argc uint64, argv uint64, envp uint64, err error) {
	region, err := memmgr.RequestAnyPages(1)
	if err != nil {
		return 0, 0, 0, err
	}
	argsVAStart := argsBase + b.aslrBase
	if err := b.space.MapSection(".args", argsVAStart, region.PA, pageSize, mmu.ForProcess(mmu.PermRO)); err != nil {
		return 0, 0, 0, err
	}

	var argVAs, envVAs []uint64
	mapErr := memmgr.DoWithFastMap(region.PA, mmu.PermPair{Privileged: mmu.PermRW, Unprivileged: mmu.PermNone}, func(tmpVA uint64) error {
		offset := uint64(0)
		copyString := func(s string) (uint64, error) {
			length := uint64(len(s))
			if offset+length+1 > pageSize {
				return 0, fmt.Errorf("process: argv/envp page overflowed")
			}
			writeAt(tmpVA, offset, append([]byte(s), 0))
			va := argsVAStart + offset
			offset += length + 1
			return va, nil
		}

		for _, arg := range b.arguments {
			va, err := copyString(arg)
			if err != nil {
				return err
			}
			argVAs = append(argVAs, va)
		}
		for _, key := range b.envKeys {
			va, err := copyString(key + "=" + b.environment[key])
			if err != nil {
				return err
			}
			envVAs = append(envVAs, va)
		}

		copySlice := func(slice []uint64) (uint64, error) {
			sizeBytes := uint64(len(slice)+1) * 8
			if rem := offset % 8; rem != 0 {
				offset += 8 - rem
			}
			va := argsVAStart + offset
			if offset+sizeBytes > pageSize {
				return 0, fmt.Errorf("process: argv/envp pointer array overflowed")
			}
			raw := make([]byte, sizeBytes)
			for i, v := range slice {
				binary.LittleEndian.PutUint64(raw[i*8:], v)
			}
			writeAt(tmpVA, offset, raw)
			offset += sizeBytes
			return va, nil
		}

		var serr error
		argv, serr = copySlice(argVAs)
		if serr != nil {
			return serr
		}
		envp, serr = copySlice(envVAs)
		return serr
	})
	if mapErr != nil {
		return 0, 0, 0, mapErr
	}
	return uint64(len(argVAs)), argv, envp, nil
}

// Start reserves a PID, maps the stack and argv/envp page, registers the
// process, spawns its initial thread at EL0, and returns a Handle,
// matching process.rs's Builder::start.
func (b *Builder) Start() (Handle, error) {
	if !b.hasEntry {
		return Handle{}, ErrNoEntryPoint
	}
	stackVA, err := b.mapStack()
	if err != nil {
		return Handle{}, err
	}
	argc, argv, envp, err := b.mapArguments()
	if err != nil {
		return Handle{}, err
	}

	g := procs.Lock()
	r := g.Value()
	pid := r.nextPID
	r.nextPID++

	p := &Process{
		PID:          pid,
		AddressSpace: b.space,
		State:        StateRunning,
		ASLRBase:     b.aslrBase,
	}

	thread := sched.SpawnProcess(fmt.Sprintf("pid-%d", pid), b.entrypoint, stackVA+stackSize-8, argc, argv, envp)
	p.ThreadIDs = append(p.ThreadIDs, thread.TID())

	r.processes = append(r.processes, p)
	g.Unlock()

	return Handle{pid: pid}, nil
}

// NewFromELF parses elfData, maps every PT_LOAD segment at vaddr+aslr
// with permissions derived from the segment's flags, and returns a
// Builder ready to Start, matching process.rs's new_from_elf_data. name
// becomes argv[0].
func NewFromELF(name string, elfData []byte, aslr uint64) (*Builder, error) {
	image, err := elf.Parse(elfData)
	if err != nil {
		return nil, err
	}
	if image.Type() != elf.ETypeExecutable && image.Type() != elf.ETypeSharedObject {
		return nil, ErrUnsupportedExecutable
	}

	b, err := NewBuilder()
	if err != nil {
		return nil, err
	}

	segmentIndex := 0
	for _, ph := range image.ProgramHeaders() {
		if ph.Type != elf.PTypeLoad {
			continue
		}
		vaddr := ph.VAddr + aslr
		if vaddr%pageSize != 0 {
			return nil, ErrUnalignedLoadableSegment
		}
		perm, err := segmentPermission(ph)
		if err != nil {
			return nil, err
		}
		sectionName := image.SectionName(ph)
		if sectionName == "" {
			// addrspace requires a non-empty, <=32-byte range name, so
			// this falls back to a synthetic name for any segment with
			// no matching section header.
			sectionName = fmt.Sprintf("segment%d", segmentIndex)
		}
		segmentIndex++
		if err := b.MapSection(sectionName, vaddr, ph.MemSize, image.SegmentData(ph), perm); err != nil {
			return nil, err
		}
	}

	b.SetASLRBase(aslr)
	b.SetEntrypoint(image.Entry() + aslr)
	b.SetELFData(elfData)
	b.PushArgument(name)
	return b, nil
}

func segmentPermission(ph elf.ProgramHeader) (mmu.Permission, error) {
	p := ph.Permissions()
	switch {
	case p.Read && p.Write && !p.Exec:
		return mmu.PermRW, nil
	case p.Read && !p.Write && !p.Exec:
		return mmu.PermRO, nil
	case !p.Write && p.Exec:
		return mmu.PermRX, nil
	case p.Read && p.Write && p.Exec:
		return mmu.PermRWX, nil
	default:
		return 0, fmt.Errorf("process: unsupported ELF segment permission set read=%v write=%v exec=%v", p.Read, p.Write, p.Exec)
	}
}

// KillCurrent terminates the process owning the currently-running
// thread: it purges every one of the process's threads from the ready
// queue (the current one included), marks the process Killed(code), and
// returns its Handle. Matches kill_current_process, minus the
// wait_pid-waiter wakeup, which lives in internal/syscall where the
// waiter list is tracked.
func KillCurrent(code uint64) (Handle, error) {
	tid, ok := sched.Current()
	if !ok {
		return Handle{}, ErrNoCurrentProcess
	}

	g := procs.Lock()
	r := g.Value()
	var target *Process
	for _, p := range r.processes {
		for _, t := range p.ThreadIDs {
			if t == tid {
				target = p
			}
		}
	}
	if target == nil {
		g.Unlock()
		return Handle{}, ErrNoCurrentProcess
	}
	target.State = StateKilled
	target.ExitCode = code
	tids := append([]uint64{}, target.ThreadIDs...)
	pid := target.PID
	g.Unlock()

	sched.RemoveThreads(tids)
	return Handle{pid: pid}, nil
}
