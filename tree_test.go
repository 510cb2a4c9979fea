package fosterbtree

import (
	"math/rand"
	"sync"
	"testing"
)

func newTestTree() *Tree[int64, int64] {
	return NewTree(Config[int64, int64]{
		KeyCodec:   Int64KeyCodec{},
		ValueCodec: Int64ValueCodecForTest{},
	})
}

func TestTreePutGetRemove(t *testing.T) {
	tr := newTestTree()
	const n = 10000
	for i := int64(0); i < n; i++ {
		if err := tr.Put(i, i*2, false); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	for i := int64(0); i < n; i++ {
		v, ok := tr.Get(i)
		if !ok || v != i*2 {
			t.Fatalf("get %d: got %d, %v, want %d, true", i, v, ok, i*2)
		}
	}
	for i := int64(0); i < n; i += 2 {
		if !tr.Remove(i) {
			t.Fatalf("remove %d: expected true", i)
		}
	}
	for i := int64(0); i < n; i++ {
		v, ok := tr.Get(i)
		if i%2 == 0 {
			if ok {
				t.Fatalf("key %d should have been removed, still has value %d", i, v)
			}
		} else if !ok || v != i*2 {
			t.Fatalf("odd key %d: got %d, %v, want %d, true", i, v, ok, i*2)
		}
	}
	if err := tr.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

func TestTreeDuplicateKeyRejectedUnlessUpsert(t *testing.T) {
	tr := newTestTree()
	if err := tr.Put(1, 100, false); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tr.Put(1, 200, false); err != ErrDuplicateKey {
		t.Fatalf("put duplicate: got %v, want ErrDuplicateKey", err)
	}
	if err := tr.Put(1, 200, true); err != nil {
		t.Fatalf("upsert put: %v", err)
	}
	v, ok := tr.Get(1)
	if !ok || v != 200 {
		t.Fatalf("get after upsert: got %d, %v, want 200, true", v, ok)
	}
}

func TestTreeRootGrowsUnderLoad(t *testing.T) {
	tr := newTestTree()
	for i := int64(0); i < 50000; i++ {
		if err := tr.Put(i, i, false); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	if tr.root().page.Level() == 0 {
		t.Fatalf("expected the root to have grown past a single leaf")
	}
	if err := tr.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

func TestTreeRangeAfter(t *testing.T) {
	tr := newTestTree()
	for i := int64(0); i < 500; i++ {
		tr.Put(i, i, false)
	}
	it := tr.RangeAfter(int64(250))
	var got []int64
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, k)
	}
	if len(got) != 249 {
		t.Fatalf("RangeAfter(250) returned %d keys, want 249", len(got))
	}
	for i, k := range got {
		if k != int64(251+i) {
			t.Fatalf("RangeAfter out of order at index %d: got %d, want %d", i, k, 251+i)
		}
	}
}

// TestGetThroughParentAdoptsFosterChild builds a two-level tree by hand
// (a branch root with a single leaf child that already has an
// unabsorbed foster child), then performs a Get through the parent and
// asserts adoption actually ran: the parent gains a second separator
// for the foster key, and the leaf's foster pointer is cleared in favor
// of a high fence at the same key.
func TestGetThroughParentAdoptsFosterChild(t *testing.T) {
	mgr := newNodeManager(Int64KeyCodec{})
	root := mgr.newRoot()
	vc := Int64ValueCodecForTest{}

	leaf := mgr.newNode(0)
	fillLeaf(t, leaf.page, vc, 0)
	sibling := mgr.newNode(0)
	if err := split(leaf, sibling, vc); err != nil {
		t.Fatalf("split: %v", err)
	}
	fosterKey, ok := leaf.page.FosterKey()
	if !ok {
		t.Fatalf("leaf has no foster key after split")
	}

	root.page.SetLevel(1)
	minKey := Int64KeyCodec{}.MinKey()
	if res := insertRecord(root.page, pointerValueCodec{}, minKey, leaf.id, true); res != ResultInserted {
		t.Fatalf("seeding root separator: got %v", res)
	}

	tr := &Tree[int64, int64]{
		mgr:      mgr,
		adoption: EagerAdoption[int64]{},
		kcodec:   Int64KeyCodec{},
		vcodec:   vc,
		logger:   NopLogger{},
	}

	v, found := tr.Get(fosterKey)
	if !found || v != fosterKey {
		t.Fatalf("Get(%d) = %d, %v, want %d, true", fosterKey, v, found, fosterKey)
	}

	if root.page.slotCount() != 2 {
		t.Fatalf("root should have gained a separator via adoption, has %d slots", root.page.slotCount())
	}
	if _, hasFoster := leaf.page.FosterPtr(); hasFoster {
		t.Fatalf("leaf's foster pointer should have been cleared by adoption")
	}
	hf, ok := leaf.page.HighFence()
	if !ok || hf != fosterKey {
		t.Fatalf("leaf's high fence = %v, %v, want %d, true", hf, ok, fosterKey)
	}
	if err := tr.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants: %v", err)
	}
}

func TestHotNodesReflectsAccessFrequency(t *testing.T) {
	tr := newTestTree()
	const n = 5000
	for i := int64(0); i < n; i++ {
		if err := tr.Put(i, i, false); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	hot := tr.leafFor(10)
	hot.latch.ReleaseRead()
	cold := tr.leafFor(int64(n - 10))
	cold.latch.ReleaseRead()
	if hot.id == cold.id {
		t.Fatalf("test setup needs two distinct leaves, got the same node %d for both keys", hot.id)
	}

	// Enough lookups to outrank the root, which was counted on every
	// insert while it was still the only leaf.
	for i := 0; i < 500; i++ {
		if _, ok := tr.Get(10); !ok {
			t.Fatalf("get 10: expected true")
		}
	}

	hotCount := tr.mgr.hotCount(hot.id)
	coldCount := tr.mgr.hotCount(cold.id)
	if hotCount <= coldCount {
		t.Fatalf("expected repeatedly accessed node to have a higher hot count: hot=%d cold=%d", hotCount, coldCount)
	}

	top := tr.HotNodes(1)
	if len(top) != 1 || top[0] != hot.id {
		t.Fatalf("HotNodes(1) = %v, want [%d]", top, hot.id)
	}
}

func TestTreeConcurrentPutGet(t *testing.T) {
	tr := newTestTree()
	const workers = 8
	const perWorker = 2000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := int64(w * perWorker)
			r := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < perWorker; i++ {
				k := base + int64(i)
				if err := tr.Put(k, k, false); err != nil {
					t.Errorf("worker %d put %d: %v", w, k, err)
					return
				}
				if r.Intn(4) == 0 {
					tr.Get(base + int64(r.Intn(i+1)))
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		base := int64(w * perWorker)
		for i := 0; i < perWorker; i++ {
			k := base + int64(i)
			v, ok := tr.Get(k)
			if !ok || v != k {
				t.Fatalf("missing or wrong value for key %d: got %d, %v", k, v, ok)
			}
		}
	}
}
