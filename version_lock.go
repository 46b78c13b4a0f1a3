package dash

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	// lockBit is the exclusive-lock flag, the remaining 31 bits
	// hold the version counter.
	lockBit     uint32 = 1 << 31
	versionMask uint32 = lockBit - 1

	// spinsBeforeYield bounds the busy loop before a waiter hands its P
	// back to the scheduler.
	spinsBeforeYield = 128

	minLockBackoff = time.Microsecond
	maxLockBackoff = time.Millisecond
)

// VersionLock is a spinlock and version counter packed into one 32-bit
// word. Every Unlock bumps the version, so optimistic readers can detect
// that a writer ran while they were reading:
//
//	v, ok := l.ReadBegin()
//	// ... read bucket state ...
//	if ok && l.Validate(v) { /* the read is consistent */ }
//
// A VersionLock is shared by reference: the owning segment keeps it alive
// and any number of buckets may point at the same lock.
// A VersionLock must not be copied after first use.
type VersionLock struct {
	_    noCopy
	word atomic.Uint32

	//lint:ignore U1000 prevents false sharing
	pad [(CacheLineSize - unsafe.Sizeof(struct {
		word atomic.Uint32
	}{})%CacheLineSize) % CacheLineSize]byte
}

// NewVersionLock returns an unlocked lock at version 0.
func NewVersionLock() *VersionLock {
	return &VersionLock{}
}

// Lock spins until the lock flag is set by this caller.
// It never gives up and cannot be cancelled; see LockContext.
//
// Partially references:
// [https://github.com/facebook/folly/blob/main/folly/synchronization/PicoSpinLock.h]
func (l *VersionLock) Lock() {
	cur := l.word.Load()
	if l.word.CompareAndSwap(cur&versionMask, cur|lockBit) {
		return
	}
	l.slowLock()
}

func (l *VersionLock) slowLock() {
	spins := 0
	for !l.TryLock() {
		delay(&spins)
	}
}

// TryLock makes a single attempt to set the lock flag.
func (l *VersionLock) TryLock() bool {
	cur := l.word.Load() & versionMask
	return l.word.CompareAndSwap(cur, cur|lockBit)
}

// LockContext acquires the lock like Lock, but backs off between attempts
// and gives up when ctx is done.
func (l *VersionLock) LockContext(ctx context.Context) error {
	if l.TryLock() {
		return nil
	}
	backoff := minLockBackoff
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if l.TryLock() {
			return nil
		}
		backoff = min(backoff*2, maxLockBackoff)
		timer.Reset(backoff)
	}
}

// Unlock clears the lock flag and increments the version in a single store.
// It must only be called by the current holder.
func (l *VersionLock) Unlock() {
	cur := l.word.Load()
	if cur&lockBit == 0 {
		panic("dash: unlock of unlocked VersionLock")
	}
	l.word.Store((cur + 1) & versionMask)
}

// Reset unconditionally zeroes the word, dropping both the flag and the
// version. It is meant for initialization and recovery only: a holder whose
// lock was reset no longer owns it, and its matching Unlock panics.
func (l *VersionLock) Reset() {
	l.word.Store(0)
}

// IsLocked reports whether some caller currently holds the lock.
func (l *VersionLock) IsLocked() bool {
	return l.word.Load()&lockBit != 0
}

// Version returns the number of unlocks so far, modulo 2^31.
func (l *VersionLock) Version() uint32 {
	return l.word.Load() & versionMask
}

// ReadBegin starts an optimistic read. ok is false while a writer holds
// the lock, in which case the caller should retry later.
func (l *VersionLock) ReadBegin() (version uint32, ok bool) {
	w := l.word.Load()
	return w, w&lockBit == 0
}

// Validate reports whether no writer has acquired the lock since the
// ReadBegin that returned version.
func (l *VersionLock) Validate(version uint32) bool {
	return l.word.Load() == version
}

func delay(spins *int) {
	if *spins < spinsBeforeYield {
		*spins++
		return
	}
	runtime.Gosched()
	*spins = 0
}
