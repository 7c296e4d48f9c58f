package mmu

import "corekernel/bitfield"

// Attribute is the memory type a leaf descriptor carries, selecting a
// MAIR_EL1 index programmed during MMU initialisation.
type Attribute uint8

const (
	AttrNormal Attribute = iota
	AttrDeviceNGNRNE
	AttrDeviceNGNRE
)

func (a Attribute) mairIndex() uint8 {
	switch a {
	case AttrNormal:
		return 0
	case AttrDeviceNGNRNE:
		return 1
	case AttrDeviceNGNRE:
		return 2
	default:
		panic("mmu: invalid attribute")
	}
}

// shareability picks the SH field: Normal memory is inner-shareable;
// device memory carries no meaningful shareability and is left
// non-shareable.
func (a Attribute) shareability() uint8 {
	if a == AttrNormal {
		return 0b11
	}
	return 0b00
}

// Kind is the descriptor's logical tag, independent of which raw bit
// pattern encodes it at a given level.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindTable
	KindBlock
	KindPage
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "Invalid"
	case KindTable:
		return "Table"
	case KindBlock:
		return "Block"
	case KindPage:
		return "Page"
	default:
		return "?"
	}
}

// Descriptor is one 64-bit translation table entry. Bit 0 is Valid, bit 1
// is the Table/Page type bit (1 at every Table and Page descriptor, 0 at
// Block descriptors — the real AArch64 encoding), bits 2-12 hold the
// packed attribute/permission/early-sentinel flags from
// bitfield.DescriptorFlags, and bits 14-47 hold the 16 KiB-aligned output
// physical address (of the next table, for Table descriptors; of the
// mapped frame, for Block/Page descriptors).
type Descriptor uint64

const (
	descBitValid = 1 << 0
	descBitTable = 1 << 1
	descFlagsLow = 2
	descFlagsBits = 11
	descAddrMask  = ^uint64(0x3FFF) // clears bits 0-13
)

// Kind reports this descriptor's logical tag. Level context is required
// because the same raw bit pattern (Valid|Table) means "Table" at Levels
// 0-2 and "Page" at Level 3 — only Level 2 may hold a Block (Valid,
// Table bit clear).
func (d Descriptor) Kind(level Level) Kind {
	if d&descBitValid == 0 {
		return KindInvalid
	}
	tableBit := d&descBitTable != 0
	if level == Level3 {
		if tableBit {
			return KindPage
		}
		return KindInvalid
	}
	if tableBit {
		return KindTable
	}
	if level == Level2 {
		return KindBlock
	}
	return KindInvalid
}

// OutputAddress returns the descriptor's 16 KiB-aligned output address.
func (d Descriptor) OutputAddress() uint64 {
	return uint64(d) & descAddrMask
}

// Flags returns the packed attribute/permission/early-sentinel bits.
func (d Descriptor) Flags() bitfield.DescriptorFlags {
	packed := uint16((uint64(d) >> descFlagsLow) & (1<<descFlagsBits - 1))
	return bitfield.UnpackDescriptorFlags(packed)
}

func encodeDescriptor(kind Kind, pa uint64, flags bitfield.DescriptorFlags) (Descriptor, error) {
	packed, err := bitfield.PackDescriptorFlags(flags)
	if err != nil {
		return 0, err
	}
	raw := uint64(descBitValid) | (pa & descAddrMask) | (uint64(packed) << descFlagsLow)
	switch kind {
	case KindTable, KindPage:
		raw |= descBitTable
	case KindBlock:
		// table bit stays clear
	default:
		panic("mmu: cannot encode KindInvalid as a descriptor")
	}
	return Descriptor(raw), nil
}

// NewTableDescriptor builds a Table descriptor pointing at pa. early marks
// tables allocated from the boot-time bump arena, which are never freed.
func NewTableDescriptor(pa uint64, early bool) Descriptor {
	d, err := encodeDescriptor(KindTable, pa, bitfield.DescriptorFlags{Early: early})
	if err != nil {
		panic(err)
	}
	return d
}

// NewLeafDescriptor builds a Block (Level2) or Page (Level3) descriptor.
func NewLeafDescriptor(level Level, pa uint64, attr Attribute, ap uint8, pxn, uxn bool) Descriptor {
	kind := KindPage
	if level == Level2 {
		kind = KindBlock
	}
	d, err := encodeDescriptor(kind, pa, bitfield.DescriptorFlags{
		MAIRIndex:    attr.mairIndex(),
		Shareability: attr.shareability(),
		AccessFlag:   true,
		AP:           ap,
		PXN:          pxn,
		UXN:          uxn,
	})
	if err != nil {
		panic(err)
	}
	return d
}

// Table is one level table: 2048 descriptor entries, 16 KiB-aligned,
// occupying exactly one page.
type Table [EntriesPerTable]Descriptor
