// Package uart drives the PL011 UART klog.Init wires up as the kernel's
// log sink, and that the idle/debug console reads from.
//
// The PL011 register offsets and init/putc/getc sequence are wrapped in
// a small typed register struct rather than file-scoped mmio_write/
// mmio_read calls against one hardcoded peripheral base, since this
// kernel has more than one MMIO-backed driver (boot's enableMMU, this
// console) and each needs its own base address.
package uart

// Register offsets within a PL011 UART's MMIO window, matching
// uart_qemu.go's QEMU_UART_* constants.
const (
	offDR   = 0x00
	offFR   = 0x18
	offIBRD = 0x24
	offFBRD = 0x28
	offLCRH = 0x2C
	offCR   = 0x30
	offICR  = 0x44
)

const (
	frTXFF = 1 << 5 // transmit FIFO full
	frRXFE = 1 << 4 // receive FIFO empty
)

// PL011 is a single UART instance mapped at Base, reached through
// memmgr's MMIO window (MapIO) rather than a hardcoded physical address.
// This kernel's boot sequence brings memmgr up before installing the
// console, so the UART is addressed the same way every other MMIO
// device is, rather than needing a special early hardcoded base.
type PL011 struct {
	Base uint64
}

// Init programs baud rate and line control and enables the UART,
// matching uart_init_pl011's register sequence.
func (u PL011) Init() {
	mmioWrite32(u.Base+offCR, 0)
	mmioWrite32(u.Base+offICR, 0x7FF)
	mmioWrite32(u.Base+offIBRD, 1)
	mmioWrite32(u.Base+offFBRD, 40)
	mmioWrite32(u.Base+offLCRH, (1<<4)|(1<<5)|(1<<6))
	mmioWrite32(u.Base+offCR, (1<<0)|(1<<8)|(1<<9))
}

// WriteByte blocks until the transmit FIFO has room, then writes b —
// implements klog.Writer, matching uartPutc's busy-wait.
func (u PL011) WriteByte(b byte) {
	for mmioRead32(u.Base+offFR)&frTXFF != 0 {
	}
	mmioWrite32(u.Base+offDR, uint32(b))
}

// ReadByte blocks until a byte is available, matching uartGetc.
func (u PL011) ReadByte() byte {
	for mmioRead32(u.Base+offFR)&frRXFE != 0 {
	}
	return byte(mmioRead32(u.Base + offDR))
}
