package dash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap_Decode(t *testing.T) {
	tests := []struct {
		name  string
		word  uint32
		count int
		alloc uint32
		probe uint32
	}{
		{"empty", 0, 0, 0, 0},
		// 0000 0000 0001 1111 0000 0000 0000 0101
		{"five owned", 0b11111<<allocShift | 5, 5, 0b11111, 0},
		{"hosted slot 13", 1<<(13+allocShift) | 1<<(13+probeShift) | 1, 1, 1 << 13, 1 << 13},
		{"full", slotMask<<allocShift | SlotsPerBucket, SlotsPerBucket, slotMask, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.count, SlotCount(tt.word))
			assert.Equal(t, tt.alloc, AllocationBits(tt.word))
			assert.Equal(t, tt.probe, ProbeBits(tt.word))
		})
	}
}

func TestBitmap_FindEmptySlot(t *testing.T) {
	slot, ok := findEmptySlot(0)
	assert.True(t, ok)
	assert.Equal(t, 0, slot)

	// slots {0,2} occupied
	slot, ok = findEmptySlot(0b101<<allocShift | 2)
	assert.True(t, ok)
	assert.Equal(t, 1, slot)

	slot, ok = findEmptySlot((slotMask>>1)<<allocShift | (SlotsPerBucket - 1))
	assert.True(t, ok)
	assert.Equal(t, SlotsPerBucket-1, slot)

	_, ok = findEmptySlot(slotMask<<allocShift | SlotsPerBucket)
	assert.False(t, ok)
}

func TestBitmap_SetAndClearSlot(t *testing.T) {
	var w uint32
	for s := 0; s < SlotsPerBucket; s++ {
		w = setSlot(w, s, s%2 == 1)
		assert.Equal(t, s+1, SlotCount(w))
	}
	assert.Equal(t, slotMask, AllocationBits(w))
	assert.Equal(t, uint32(0b10101010101010), ProbeBits(w))

	for s := SlotsPerBucket - 1; s >= 0; s-- {
		w = clearSlot(w, s)
		assert.Equal(t, s, SlotCount(w))
	}
	assert.Equal(t, uint32(0), w)
}

func TestFingerprint_Array(t *testing.T) {
	var a fingerprintArray
	for i := 0; i < fingerprintBytes; i++ {
		a.set(i, uint8(0xF0+i))
	}
	for i := 0; i < fingerprintBytes; i++ {
		assert.Equal(t, uint8(0xF0+i), a.get(i))
	}
	a.set(5, 0)
	assert.Equal(t, uint8(0), a.get(5))
	assert.Equal(t, uint8(0xF4), a.get(4))
	assert.Equal(t, uint8(0xF6), a.get(6))
}

func TestFingerprint_Match(t *testing.T) {
	var a fingerprintArray
	fps := []uint8{0x00, 0x01, 0x80, 0x01, 0xFF, 0x00, 0x7F, 0x01, 0, 0, 0, 0, 0x01, 0x80}
	for i, fp := range fps {
		a.set(i, fp)
	}
	// reserved region must never match
	for i := SlotsPerBucket; i < fingerprintBytes; i++ {
		a.set(i, 0x01)
	}

	want := func(fp uint8) uint32 {
		var m uint32
		for i, f := range fps {
			if f == fp {
				m |= 1 << i
			}
		}
		return m
	}
	for _, fp := range []uint8{0x00, 0x01, 0x7F, 0x80, 0xFF, 0x42} {
		assert.Equal(t, want(fp), a.match(fp), "fp %#x", fp)
	}
}

func TestMarkZeroBytes_NoFalsePositives(t *testing.T) {
	// 0x0100 is the classic false positive of the borrow-based SWAR test.
	assert.Equal(t, uint32(0x80800080), markZeroBytes(0x00000100))
	assert.Equal(t, uint32(0), markZeroBytes(0x01010101))
	assert.Equal(t, uint32(0x80808080), markZeroBytes(0))
}

func TestFingerprint_FromHash(t *testing.T) {
	assert.Equal(t, uint8(0xAB), Fingerprint(0xAB00000000000000))
	assert.Equal(t, Hash([]byte("dash")), HashString("dash"))
	assert.NotEqual(t, HashString("a"), HashString("b"))
}
