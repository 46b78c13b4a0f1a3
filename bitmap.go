package dash

import "math/bits"

// Bitmap layout, 32 bits:
//
//	bits 31..18  allocation, one bit per slot
//	bits 17..14  reserved for stash allocation
//	bits 13..4   probe flags, one bit per slot
//	bits  3..0   number of occupied slots
//
// The probe flag of slot s lives at bit 4+s, so the flags of slots 10..13
// spill into the reserved stash range. Nothing writes stash bits today.
const (
	// SlotsPerBucket is the fixed capacity of a bucket.
	SlotsPerBucket = 14

	countMask  uint32 = 1<<4 - 1
	probeShift        = 4
	allocShift        = 18
	slotMask   uint32 = 1<<SlotsPerBucket - 1
)

// SlotCount returns the number of occupied slots encoded in w.
func SlotCount(w uint32) int {
	return int(w & countMask)
}

// AllocationBits returns the slot allocation mask; bit s is set iff slot s
// holds a pair.
func AllocationBits(w uint32) uint32 {
	return w >> allocShift
}

// ProbeBits returns the mask of slots whose pair is hosted here on behalf
// of a neighboring bucket.
func ProbeBits(w uint32) uint32 {
	return (w >> probeShift) & slotMask
}

// findEmptySlot returns the lowest unoccupied slot.
func findEmptySlot(w uint32) (int, bool) {
	if SlotCount(w) == SlotsPerBucket {
		return 0, false
	}
	return bits.TrailingZeros32(^AllocationBits(w)), true
}

// setSlot marks slot as allocated (and hosted, if probe) and bumps the count.
func setSlot(w uint32, slot int, probe bool) uint32 {
	w |= 1 << (slot + allocShift)
	if probe {
		w |= 1 << (slot + probeShift)
	}
	return w + 1
}

// clearSlot undoes setSlot. slot must be allocated in w.
func clearSlot(w uint32, slot int) uint32 {
	w &^= 1<<(slot+allocShift) | 1<<(slot+probeShift)
	return w - 1
}
