package physmem

import (
	"errors"
	"testing"
)

func regionsEqual(t *testing.T, a *Allocator, want []Region) {
	t.Helper()
	got := a.Regions()
	if len(got) != len(want) {
		t.Fatalf("region count = %d, want %d (%+v)", len(got), len(want), got)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("region[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAddRegionRejectsOverlap(t *testing.T) {
	var a Allocator
	if err := a.AddRegion(0x10000, 10); err != nil {
		t.Fatalf("AddRegion: %v", err)
	}
	err := a.AddRegion(0x10000+5*PageSize, 10)
	var overlap *OverlapError
	if !errors.As(err, &overlap) {
		t.Fatalf("expected OverlapError, got %v", err)
	}
}

func TestAddRegionCoalescesAdjacent(t *testing.T) {
	var a Allocator
	if err := a.AddRegion(0x100000, 4); err != nil {
		t.Fatal(err)
	}
	if err := a.AddRegion(0x100000+4*PageSize, 4); err != nil {
		t.Fatal(err)
	}
	regionsEqual(t, &a, []Region{{PA: 0x100000, NumPages: 8}})

	if err := a.AddRegion(0x100000-3*PageSize, 3); err != nil {
		t.Fatal(err)
	}
	regionsEqual(t, &a, []Region{{PA: 0x100000 - 3*PageSize, NumPages: 11}})
}

// TestAddStealRoundTrip verifies the round-trip property:
// add(R); steal(R) returns the allocator to its prior logical state.
func TestAddStealRoundTrip(t *testing.T) {
	var a Allocator
	if err := a.AddRegion(0x20000, 29); err != nil {
		t.Fatal(err)
	}
	if err := a.StealRegion(0x20000, 29); err != nil {
		t.Fatal(err)
	}
	regionsEqual(t, &a, nil)
}

// TestFrameAllocatorCoalesceScenario exercises interleaved add/steal/add
// sequences that should coalesce back into a single region.
func TestFrameAllocatorCoalesceScenario(t *testing.T) {
	var a Allocator
	const base = 0x10000
	if err := a.AddRegion(base, 29); err != nil {
		t.Fatal(err)
	}
	if err := a.StealRegion(base, 29); err != nil {
		t.Fatal(err)
	}
	if err := a.AddRegion(base, 29); err != nil {
		t.Fatal(err)
	}
	if err := a.AddRegion(base+29*PageSize, 1); err != nil {
		t.Fatal(err)
	}
	regionsEqual(t, &a, []Region{{PA: base, NumPages: 30}})
}

func TestStealMiddleSplitsRegion(t *testing.T) {
	var a Allocator
	const base = 0x10000000000
	if err := a.AddRegion(base, 1000); err != nil {
		t.Fatal(err)
	}
	if err := a.StealRegion(base+100*PageSize, 50); err != nil {
		t.Fatal(err)
	}
	regionsEqual(t, &a, []Region{
		{PA: base, NumPages: 100},
		{PA: base + 150*PageSize, NumPages: 850},
	})
}

func TestStealUnavailableRange(t *testing.T) {
	var a Allocator
	if err := a.AddRegion(0x1000000, 10); err != nil {
		t.Fatal(err)
	}
	if err := a.StealRegion(0x2000000, 5); !errors.Is(err, ErrRegionNotAvailable) {
		t.Fatalf("expected ErrRegionNotAvailable, got %v", err)
	}
}

func TestRequestAnyPagesFirstFit(t *testing.T) {
	var a Allocator
	if err := a.AddRegion(0x1000000, 4); err != nil {
		t.Fatal(err)
	}
	if err := a.AddRegion(0x2000000, 16); err != nil {
		t.Fatal(err)
	}
	got, err := a.RequestAnyPages(10)
	if err != nil {
		t.Fatal(err)
	}
	if got.PA != 0x2000000 || got.NumPages != 10 {
		t.Fatalf("got %+v", got)
	}
}

func TestRequestAndReleasePages(t *testing.T) {
	var a Allocator
	if err := a.AddRegion(0x4000000, 100); err != nil {
		t.Fatal(err)
	}
	r, err := a.RequestPages(0x4000000+10*PageSize, 5)
	if err != nil {
		t.Fatal(err)
	}
	regionsEqual(t, &a, []Region{
		{PA: 0x4000000, NumPages: 10},
		{PA: 0x4000000 + 15*PageSize, NumPages: 85},
	})
	if err := a.ReleasePages(r); err != nil {
		t.Fatal(err)
	}
	regionsEqual(t, &a, []Region{{PA: 0x4000000, NumPages: 100}})
}

func TestAddRegionRejectsZeroPages(t *testing.T) {
	var a Allocator
	if err := a.AddRegion(0x1000, 0); err == nil {
		t.Fatal("expected error adding a zero-page region")
	}
}
