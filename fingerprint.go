package dash

import (
	"math/bits"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const (
	// fingerprintBytes covers one byte per slot plus four reserved bytes
	// for overflow members held on behalf of the previous bucket.
	fingerprintBytes = 18
	fingerprintWords = (fingerprintBytes + 3) / 4
)

// Hash is the hash function callers are expected to derive bucket routing
// and fingerprints from, so that every layer agrees on the same bits.
func Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// HashString is Hash for string keys without the []byte conversion.
func HashString(key string) uint64 {
	return xxhash.Sum64String(key)
}

// Fingerprint extracts the one-byte fingerprint from a hash. It uses the
// top byte so that it stays independent of the low bits used to pick a
// bucket.
func Fingerprint(h uint64) uint8 {
	return uint8(h >> 56)
}

// fingerprintArray stores the 18 fingerprint bytes in 32-bit words so
// optimistic readers can load them without racing the writer.
type fingerprintArray [fingerprintWords]atomic.Uint32

func (a *fingerprintArray) get(idx int) uint8 {
	return uint8(a[idx>>2].Load() >> ((idx & 3) << 3))
}

// set must be called with the bucket lock held.
func (a *fingerprintArray) set(idx int, fp uint8) {
	w := &a[idx>>2]
	shift := (idx & 3) << 3
	w.Store(w.Load()&^(0xff<<shift) | uint32(fp)<<shift)
}

// match returns a slot mask with bit s set iff fingerprint byte s equals fp.
// Only the slot range is considered; reserved bytes never match.
func (a *fingerprintArray) match(fp uint8) uint32 {
	b := broadcast(fp)
	var mask uint32
	for i := 0; i < (SlotsPerBucket+3)/4; i++ {
		zero := markZeroBytes(a[i].Load() ^ b)
		for zero != 0 {
			mask |= 1 << (i<<2 + bits.TrailingZeros32(zero)>>3)
			zero &= zero - 1
		}
	}
	return mask & slotMask
}

// broadcast replicates a byte value across all bytes of an uint32.
func broadcast(b uint8) uint32 {
	return 0x01010101 * uint32(b)
}

// markZeroBytes sets the most significant bit of every zero byte in w.
// Unlike the borrow-based SWAR trick it has no false positives, so the
// result can be used as a slot mask directly.
func markZeroBytes(w uint32) uint32 {
	const lo7 = 0x7f7f7f7f
	return ^((w&lo7 + lo7) | w | lo7)
}
