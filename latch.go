package fosterbtree

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// writerBit marks the latch as exclusively held; the remaining bits of the
// state word count concurrent shared holders.
const writerBit uint32 = 1 << 31

// Latch is a read/write latch protecting one page. State is a single
// atomic word (writer flag + reader count); a plain mutex serializes
// writers and waiters without itself protecting any data. sync.RWMutex
// isn't used directly because the tree needs the non-blocking Attempt*
// variants it doesn't expose.
type Latch struct {
	state atomic.Uint32
	wmu   sync.Mutex
}

// AttemptRead increments the reader count iff no writer currently holds
// the latch. Never blocks.
func (l *Latch) AttemptRead() bool {
	for {
		old := l.state.Load()
		if old&writerBit != 0 {
			return false
		}
		if l.state.CompareAndSwap(old, old+1) {
			return true
		}
	}
}

// AcquireRead blocks until a shared hold is granted. While a writer holds
// the latch it waits on wmu (the writer holds wmu for the duration of its
// write section) instead of busy-spinning continuously.
func (l *Latch) AcquireRead() {
	for !l.AttemptRead() {
		l.wmu.Lock()
		l.wmu.Unlock() // wait for the writer's critical section to end, then retry
		runtime.Gosched()
	}
}

// ReleaseRead drops one shared hold.
func (l *Latch) ReleaseRead() {
	l.state.Add(^uint32(0)) // -1
}

// AttemptWrite takes the internal mutex non-blockingly, then attempts to
// transition the state word from expectedPrev to writerBit. expectedPrev is
// 0 for a fresh exclusive acquire or a live reader count for an upgrade.
// Never blocks; on any failure the mutex is released and the latch is
// unchanged.
func (l *Latch) AttemptWrite(expectedPrev uint32) bool {
	if !l.wmu.TryLock() {
		return false
	}
	if l.state.CompareAndSwap(expectedPrev, writerBit) {
		return true
	}
	l.wmu.Unlock()
	return false
}

// AcquireWrite blocks until an exclusive hold is granted: it takes the
// mutex (blocking out other writers and upgraders), then spins until all
// readers have drained before claiming writerBit.
func (l *Latch) AcquireWrite() {
	l.wmu.Lock()
	for {
		old := l.state.Load()
		if old&^writerBit == 0 && l.state.CompareAndSwap(old, writerBit) {
			return
		}
		runtime.Gosched()
	}
}

// ReleaseWrite clears the latch and releases the mutex taken by
// AttemptWrite/AcquireWrite.
func (l *Latch) ReleaseWrite() {
	l.state.Store(0)
	l.wmu.Unlock()
}

// AttemptUpgrade upgrades a shared hold to exclusive iff the calling thread
// is the sole reader (state == 1); never blocks. Callers treat failure as
// benign and skip the structural change they wanted the upgrade for.
func (l *Latch) AttemptUpgrade() bool {
	return l.AttemptWrite(1)
}

// Downgrade converts an exclusive hold into a single shared hold. The
// caller must currently hold the write latch (via AcquireWrite or
// AttemptWrite); Downgrade releases wmu, since the caller no longer holds
// exclusive title once this returns.
func (l *Latch) Downgrade() {
	l.state.Store(1)
	l.wmu.Unlock()
}

// HasReader reports whether any shared hold is outstanding.
func (l *Latch) HasReader() bool {
	return l.state.Load()&^writerBit != 0
}

// HasWriter reports whether the latch is exclusively held.
func (l *Latch) HasWriter() bool {
	return l.state.Load()&writerBit != 0
}
