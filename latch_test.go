package fosterbtree

import (
	"sync"
	"testing"
)

func TestLatchReadersShareWritersExclude(t *testing.T) {
	var l Latch
	if !l.AttemptRead() {
		t.Fatalf("first AttemptRead should succeed")
	}
	if !l.AttemptRead() {
		t.Fatalf("second concurrent AttemptRead should succeed")
	}
	if l.AttemptWrite(0) {
		t.Fatalf("AttemptWrite should fail while readers are active")
	}
	l.ReleaseRead()
	l.ReleaseRead()
	if !l.AttemptWrite(0) {
		t.Fatalf("AttemptWrite should succeed once all readers release")
	}
	if l.AttemptRead() {
		t.Fatalf("AttemptRead should fail while a writer holds the latch")
	}
	l.ReleaseWrite()
}

func TestLatchUpgradeRequiresSoleReader(t *testing.T) {
	var l Latch
	l.AttemptRead()
	l.AttemptRead()
	if l.AttemptUpgrade() {
		t.Fatalf("upgrade should fail with two readers")
	}
	l.ReleaseRead()
	if !l.AttemptUpgrade() {
		t.Fatalf("upgrade should succeed with exactly one reader")
	}
	l.ReleaseWrite()
}

func TestLatchDowngrade(t *testing.T) {
	var l Latch
	l.AcquireWrite()
	l.Downgrade()
	if !l.HasReader() {
		t.Fatalf("expected a shared hold after downgrade")
	}
	if l.HasWriter() {
		t.Fatalf("writer bit should be clear after downgrade")
	}
	if !l.AttemptRead() {
		t.Fatalf("a second reader should be admitted after downgrade")
	}
}

func TestLatchConcurrentReadersAllRelease(t *testing.T) {
	var l Latch
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.AcquireRead()
			defer l.ReleaseRead()
		}()
	}
	wg.Wait()
	if l.HasReader() {
		t.Fatalf("no readers should remain after all goroutines finish")
	}
}
