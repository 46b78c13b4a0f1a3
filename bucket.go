// Package dash provides the bucket of a Dash-style extendible hash index:
// a fixed array of 14 slots tagged with one-byte fingerprints, an occupancy
// word that packs allocation bits, probe bits and a slot count, and a
// version lock that supports optimistic lock coupling.
//
// The directory and segment layers that route keys to buckets, split them
// and displace pairs between neighbors are built on top of this package.
package dash

import (
	"errors"
	"fmt"
	"math/bits"
	"sync/atomic"
)

// ErrBucketFull is returned by Insert when all SlotsPerBucket slots are
// occupied. The owning segment is expected to split, probe a neighbor, or
// grow the index.
var ErrBucketFull = errors.New("dash: bucket is full")

// Bucket is one fixed-capacity bucket of an extendible hash index.
//
// Writers must hold the bucket lock around Insert and Delete. Readers may
// either hold the lock or read optimistically and validate the version
// afterwards, which is what Get does.
//
// A Bucket must not be copied after first use.
type Bucket[K comparable] struct {
	pairs        [SlotsPerBucket]atomic.Pointer[Pair[K]]
	fingerprints fingerprintArray

	// Overflow members from the previous bucket (stash). Declared for the
	// displacement scheme of the segment layer; no operation writes them.
	overflowCount  uint8
	overflowMember uint8
	overflowIndex  uint8
	overflowBitmap uint8

	bitmap atomic.Uint32
	lock   *VersionLock
}

// OverflowState is a snapshot of the stash bookkeeping fields.
type OverflowState struct {
	Count  uint8
	Member uint8
	Index  uint8
	Bitmap uint8
}

// NewBucket returns an empty, unlocked bucket with its own lock at version 0.
func NewBucket[K comparable]() *Bucket[K] {
	return NewBucketWithLock[K](NewVersionLock())
}

// NewBucketWithLock returns an empty bucket guarded by a lock owned by the
// caller, typically a lock shared by a whole segment.
func NewBucketWithLock[K comparable](l *VersionLock) *Bucket[K] {
	if l == nil {
		panic("dash: nil VersionLock")
	}
	return &Bucket[K]{lock: l}
}

// VersionLock returns the lock guarding the bucket.
func (b *Bucket[K]) VersionLock() *VersionLock { return b.lock }

// Lock acquires the bucket lock, spinning until it succeeds.
func (b *Bucket[K]) Lock() { b.lock.Lock() }

// TryLock makes a single attempt to acquire the bucket lock.
func (b *Bucket[K]) TryLock() bool { return b.lock.TryLock() }

// Unlock releases the bucket lock and bumps its version.
func (b *Bucket[K]) Unlock() { b.lock.Unlock() }

// ResetLock zeroes the lock word. A holder whose lock was reset panics on
// its matching Unlock.
func (b *Bucket[K]) ResetLock() { b.lock.Reset() }

// IsLocked reports whether the bucket lock is held.
func (b *Bucket[K]) IsLocked() bool { return b.lock.IsLocked() }

// Version returns the version counter of the bucket lock.
func (b *Bucket[K]) Version() uint32 { return b.lock.Version() }

// WithLock runs fn with the bucket lock held. The lock is released on
// every exit path, including a panic in fn.
func (b *Bucket[K]) WithLock(fn func()) {
	b.lock.Lock()
	defer b.lock.Unlock()
	fn()
}

// Insert stores a copy of the pair in the lowest free slot and returns
// that slot. probe marks the pair as hosted here while its home is another
// bucket. Insert does not look for an existing key: inserting a key twice
// creates two pairs.
//
// The caller must hold the bucket lock.
func (b *Bucket[K]) Insert(key K, value Value, fp uint8, probe bool) (int, error) {
	bm := b.bitmap.Load()
	slot, ok := findEmptySlot(bm)
	if !ok {
		return -1, ErrBucketFull
	}
	b.pairs[slot].Store(NewPair(key, value))
	b.fingerprints.set(slot, fp)
	b.bitmap.Store(setSlot(bm, slot, probe))
	return slot, nil
}

// Delete clears slot and reports whether it held a pair.
//
// The caller must hold the bucket lock.
func (b *Bucket[K]) Delete(slot int) bool {
	if slot < 0 || slot >= SlotsPerBucket {
		return false
	}
	bm := b.bitmap.Load()
	if AllocationBits(bm)&(1<<slot) == 0 {
		return false
	}
	b.bitmap.Store(clearSlot(bm, slot))
	b.pairs[slot].Store(nil)
	return true
}

// Find returns the slot holding key. Candidate slots are picked by
// fingerprint and confirmed by key equality. Hosted and owned pairs are
// both considered; use IsHosted to tell them apart.
//
// The caller must hold the lock, or validate the version afterwards.
func (b *Bucket[K]) Find(key K, fp uint8) (int, bool) {
	slot, p := b.find(key, fp)
	return slot, p != nil
}

func (b *Bucket[K]) find(key K, fp uint8) (int, *Pair[K]) {
	m := b.fingerprints.match(fp) & AllocationBits(b.bitmap.Load())
	for ; m != 0; m &= m - 1 {
		slot := bits.TrailingZeros32(m)
		if p := b.pairs[slot].Load(); p != nil && p.Key == key {
			return slot, p
		}
	}
	return -1, nil
}

// Get looks key up without taking the lock. It retries until it observes
// a read that no writer interfered with. Calling Get while holding the
// bucket lock never returns.
func (b *Bucket[K]) Get(key K, fp uint8) (Value, bool) {
	spins := 0
	for {
		version, stable := b.lock.ReadBegin()
		if stable {
			_, p := b.find(key, fp)
			if b.lock.Validate(version) {
				if p == nil {
					return nil, false
				}
				return p.Value, true
			}
		}
		delay(&spins)
	}
}

// Pair returns the pair in slot, or nil if the slot is empty.
func (b *Bucket[K]) Pair(slot int) *Pair[K] {
	if slot < 0 || slot >= SlotsPerBucket {
		return nil
	}
	return b.pairs[slot].Load()
}

// Fingerprint returns the fingerprint recorded for slot. It is only
// meaningful while the slot is occupied.
func (b *Bucket[K]) Fingerprint(slot int) uint8 {
	return b.fingerprints.get(slot)
}

// ReservedFingerprints returns the four fingerprint bytes set aside for
// overflow members.
func (b *Bucket[K]) ReservedFingerprints() (fps [fingerprintBytes - SlotsPerBucket]uint8) {
	for i := range fps {
		fps[i] = b.fingerprints.get(SlotsPerBucket + i)
	}
	return fps
}

// Overflow returns the stash bookkeeping fields.
func (b *Bucket[K]) Overflow() OverflowState {
	return OverflowState{
		Count:  b.overflowCount,
		Member: b.overflowMember,
		Index:  b.overflowIndex,
		Bitmap: b.overflowBitmap,
	}
}

// Bitmap returns the packed occupancy word.
func (b *Bucket[K]) Bitmap() uint32 {
	return b.bitmap.Load()
}

// Count returns the number of occupied slots.
func (b *Bucket[K]) Count() int {
	return SlotCount(b.bitmap.Load())
}

// IsHosted reports whether slot holds a pair whose home is another bucket.
func (b *Bucket[K]) IsHosted(slot int) bool {
	if slot < 0 || slot >= SlotsPerBucket {
		return false
	}
	return ProbeBits(b.bitmap.Load())&(1<<slot) != 0
}

// Range calls fn for every occupied slot in index order until fn
// returns false.
func (b *Bucket[K]) Range(fn func(slot int, p *Pair[K]) bool) {
	for m := AllocationBits(b.bitmap.Load()); m != 0; m &= m - 1 {
		slot := bits.TrailingZeros32(m)
		p := b.pairs[slot].Load()
		if p == nil {
			continue
		}
		if !fn(slot, p) {
			return
		}
	}
}

func (b *Bucket[K]) String() string {
	bm := b.bitmap.Load()
	return fmt.Sprintf(
		"Bucket{count: %d, alloc: %014b, probe: %014b, version: %d, locked: %v}",
		SlotCount(bm),
		AllocationBits(bm),
		ProbeBits(bm),
		b.lock.Version(),
		b.lock.IsLocked(),
	)
}
