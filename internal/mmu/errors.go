package mmu

import "fmt"

// OverlapError is returned by MapRegion when the range it was asked to map
// collides with an existing leaf descriptor mapped to a different output
// address.
type OverlapError struct {
	VA    uint64
	Level Level
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("mmu: va=0x%x overlaps an existing mapping at level %d", e.VA, e.Level)
}

// ErrUnaligned is returned when a caller-supplied address is not
// PageSize-aligned where alignment is required.
var ErrUnaligned = fmt.Errorf("mmu: address is not page-aligned")
