package mmu

import "fmt"

// Permission is one side of a Range's {privileged, unprivileged} access
// pair.
type Permission uint8

const (
	PermNone Permission = iota
	PermRO
	PermRW
	PermRX
	PermRWX
)

func (p Permission) execAllowed() bool { return p == PermRX || p == PermRWX }

// PermPair is the full permission pair attached to a Range.
type PermPair struct {
	Privileged   Permission
	Unprivileged Permission
}

// ErrInvalidPermissions is returned by EncodePermissions for any pair not
// representable by the hardware AP/XN encoding.
var ErrInvalidPermissions = fmt.Errorf("mmu: invalid permission pair")

// EncodePermissions maps a {privileged, unprivileged} pair to AP[2:1] and
// PXN/UXN. Only the four listed combinations (and the priv/unpriv value
// groups they abbreviate) are accepted.
func EncodePermissions(pair PermPair) (ap uint8, pxn, uxn bool, err error) {
	priv, unpriv := pair.Privileged, pair.Unprivileged

	switch {
	case unpriv == PermNone && (priv == PermRW || priv == PermRWX):
		return 0b00, !priv.execAllowed(), true, nil
	case unpriv == PermNone && (priv == PermRX || priv == PermRO):
		return 0b10, !priv.execAllowed(), true, nil
	case priv == PermRW && (unpriv == PermRW || unpriv == PermRWX):
		return 0b01, true, !unpriv.execAllowed(), nil
	case (priv == PermRX || priv == PermRO) && (unpriv == PermRX || unpriv == PermRO):
		return 0b11, !priv.execAllowed(), !unpriv.execAllowed(), nil
	default:
		return 0, false, false, ErrInvalidPermissions
	}
}

// DecodePermissions is EncodePermissions's inverse: for every pair
// EncodePermissions accepts, DecodePermissions(EncodePermissions(pair))
// reproduces pair exactly.
func DecodePermissions(ap uint8, pxn, uxn bool) PermPair {
	switch ap {
	case 0b00:
		priv := PermRW
		if !pxn {
			priv = PermRWX
		}
		return PermPair{Privileged: priv, Unprivileged: PermNone}
	case 0b10:
		priv := PermRO
		if !pxn {
			priv = PermRX
		}
		return PermPair{Privileged: priv, Unprivileged: PermNone}
	case 0b01:
		unpriv := PermRW
		if !uxn {
			unpriv = PermRWX
		}
		return PermPair{Privileged: PermRW, Unprivileged: unpriv}
	case 0b11:
		priv := PermRO
		if !pxn {
			priv = PermRX
		}
		unpriv := PermRO
		if !uxn {
			unpriv = PermRX
		}
		return PermPair{Privileged: priv, Unprivileged: unpriv}
	default:
		panic("mmu: invalid AP value")
	}
}

// ForProcess derives the privileged-read-implied permission pair a
// process segment gets once loaded:
// RX -> priv RO, RWX -> priv RW, RW -> RW, RO -> RO (unprivileged side
// unchanged).
func ForProcess(unpriv Permission) PermPair {
	switch unpriv {
	case PermRX:
		return PermPair{Privileged: PermRO, Unprivileged: PermRX}
	case PermRWX:
		return PermPair{Privileged: PermRW, Unprivileged: PermRWX}
	case PermRW:
		return PermPair{Privileged: PermRW, Unprivileged: PermRW}
	case PermRO:
		return PermPair{Privileged: PermRO, Unprivileged: PermRO}
	default:
		panic("mmu: unsupported process segment permission")
	}
}
