// Command kernel is the freestanding entry point: KernelMain is called
// directly by the assembly boot stub with a pointer to the bootloader's
// handoff structure and the boot.Config assembled from it. main()
// itself is a dummy, required only because this module still builds as
// a Go c-archive — it is never invoked on real hardware.
package main

import (
	_ "embed"

	"corekernel/internal/arch"
	"corekernel/internal/boot"
	"corekernel/internal/initfs"
	"corekernel/internal/klog"
	"corekernel/internal/memmgr"
	"corekernel/internal/process"
	"corekernel/internal/sched"
	"corekernel/internal/syscall"
	"corekernel/internal/trap"
	"corekernel/internal/uart"
)

// uartPhysBase is the PL011 UART's physical MMIO base on the QEMU virt
// machine this kernel targets, matching uart_qemu.go's QEMU_UART_BASE.
const uartPhysBase = 0x0900_0000

// rootfs is the initfs CPIO image built into the kernel binary, matching
// filesystem.rs's `static CPIO_ARCHIVE: &[u8] = include_bytes!(...)`.
//
//go:embed rootfs.cpio
var rootfs []byte

// consoleUART is the PL011 instance klog logs through once MMIO is
// mapped. The pre-MMU bring-up writes nowhere (klog.Init isn't called
// until after Bootstrap returns): console bring-up otherwise comes
// first in KernelMain, except this kernel additionally needs memmgr's
// MapIO before it has a logical address for the UART to live at.
var consoleUART = uart.PL011{Base: uartPhysBase}

// handleUserAbort logs the fault and terminates the current process
// with a non-zero exit code, the contract for EL0 data/instruction
// aborts.
func handleUserAbort(ctx *trap.Context) {
	klog.Warn("user abort: elr=%x far=%x esr=%x", ctx.ELR, ctx.FAR, ctx.ESR)
	if _, err := process.KillCurrent(1); err != nil {
		klog.Panic("user abort: no current process to kill")
		return
	}
	sched.Reschedule(ctx)
}

// handleTimerFIQ acknowledges the timer tick and lets the scheduler pick
// the next thread. Timer reload/acknowledge is a hardware-register
// sequence this kernel has no driver for yet (no CNTV_TVAL/CNTV_CTL
// wiring exists in internal/arch); RunScheduler still runs every tick
// so preemption works even without it.
func handleTimerFIQ(ctx *trap.Context) {
	sched.RunScheduler(ctx)
}

// loadInitProcess mounts the embedded initfs image, reads the init
// binary fully into memory, and starts it as the first userspace
// process, matching run_initcalls' "load and start the init program"
// step in init.rs.
func loadInitProcess() {
	archive, err := initfs.Mount(rootfs)
	if err != nil {
		klog.Panic("initfs: mount failed")
		return
	}
	f, err := archive.Open("init", initfs.OpenRead)
	if err != nil {
		klog.Panic("initfs: init binary not found")
		return
	}
	defer f.Close()

	data := make([]byte, f.Size())
	for total := 0; total < len(data); {
		n, err := f.Read(data[total:])
		if err != nil && err != initfs.ErrEndOfFile {
			klog.Panic("initfs: reading init binary failed")
			return
		}
		if n == 0 {
			break
		}
		total += n
	}

	builder, err := process.NewFromELF("init", data, 0)
	if err != nil {
		klog.Panic("process: loading init failed")
		return
	}
	if _, err := builder.Start(); err != nil {
		klog.Panic("process: starting init failed")
		return
	}
}

// KernelMain is the entry point called from the boot stub once the core
// is executing in a stable EL (EL2 or EL1) with a valid stack and a
// pointer to the bootloader's BootArgs-equivalent handoff structure,
// exactly matching go/mazarin/kernel.go's KernelMain contract. cfg is
// assembled by the boot stub from the same handoff data args points to
// (load/kernel base, relocation table, DRAM/MMIO layout); it is not
// re-derived from args here because that translation is itself
// platform-specific (device-tree parsing on some boot paths, a fixed
// QEMU virt-machine layout on others) and belongs with the stub, not
// with the architecture-independent bring-up sequence in internal/boot.
func KernelMain(args *boot.Args, cfg boot.Config) {
	_ = args

	var mem boot.Memory = boot.DirectMemory{}
	if err := boot.Bootstrap(cfg, mem); err != nil {
		// klog isn't wired yet: there is nothing to log to before
		// Bootstrap succeeds, so an unrecoverable early failure spins
		// silently rather than fabricating a console it cannot prove
		// works.
		for {
		}
	}

	uartVA, err := memmgr.MapIO("uart0", consoleUART.Base, 0x1000)
	if err != nil {
		for {
		}
	}
	consoleUART.Base = uartVA
	consoleUART.Init()
	klog.Init(consoleUART, func() {
		for {
			arch.WaitForInterrupt()
		}
	})

	trap.Init(trap.Handlers{
		Syscall:   syscall.Handle,
		UserAbort: handleUserAbort,
		TimerFIQ:  handleTimerFIQ,
	})

	sched.Initialize()
	klog.Info("kernel: scheduler initialized")

	loadInitProcess()
	klog.Info("kernel: init process started")

	// The boot thread becomes the idle thread: park here forever,
	// letting exceptions and the scheduler do the rest, matching
	// thread.rs's idle-loop convention.
	for {
		arch.WaitForInterrupt()
	}
}

// Dummy main() required by Go's c-archive build mode; never runs on real
// hardware, matching kernel.go's own placeholder main().
func main() {
	for {
	}
}
