package bitfield

// DescriptorFlags packs the attribute portion of a page-table leaf
// descriptor — everything except the output address and the
// Valid/Table/Page tag bits, which the mmu package folds in separately at
// their architected bit positions. Generalises the PageFlags packer to the
// wider attribute set a Descriptor Entry carries (MAIR index, shareability,
// access flag, AP/PXN/UXN permission bits, and the early-arena sentinel).
type DescriptorFlags struct {
	// MAIRIndex selects the MAIR_EL1 attribute slot (Normal, Device-nGnRnE,
	// Device-nGnRE).
	MAIRIndex uint8 `bitfield:",3"`

	// Shareability is the descriptor's SH field.
	Shareability uint8 `bitfield:",2"`

	// AccessFlag must be set for the descriptor to be usable without
	// raising an access-flag fault.
	AccessFlag bool `bitfield:",1"`

	// AP is the AP[2:1] permission encoding.
	AP uint8 `bitfield:",2"`

	// PXN and UXN gate execute permission for EL1 and EL0 respectively.
	PXN bool `bitfield:",1"`
	UXN bool `bitfield:",1"`

	// Early marks a table descriptor allocated from the boot-time bump
	// arena; such tables are never freed.
	Early bool `bitfield:",1"`
}

// PackDescriptorFlags packs f into its 16-bit wire representation.
func PackDescriptorFlags(f DescriptorFlags) (uint16, error) {
	packed, err := Pack(f, &Config{NumBits: 16})
	if err != nil {
		return 0, err
	}
	return uint16(packed), nil
}

// UnpackDescriptorFlags is PackDescriptorFlags's inverse, hand-tracking the
// bitfield tag widths above in the same way UnpackPageFlags does.
func UnpackDescriptorFlags(packed uint16) DescriptorFlags {
	return DescriptorFlags{
		MAIRIndex:    uint8(packed) & 0x7,
		Shareability: uint8(packed>>3) & 0x3,
		AccessFlag:   packed&(1<<5) != 0,
		AP:           uint8(packed>>6) & 0x3,
		PXN:          packed&(1<<8) != 0,
		UXN:          packed&(1<<9) != 0,
		Early:        packed&(1<<10) != 0,
	}
}
