package fosterbtree

import "testing"

func fillLeaf(t *testing.T, p *Page[int64], vc ValueCodec[int64], start int64) int64 {
	t.Helper()
	k := start
	for {
		if insertRecord(p, vc, k, k, true) == ResultFull {
			return k
		}
		k++
	}
}

func TestSplitProducesConsistentFosterChild(t *testing.T) {
	mgr := newNodeManager(Int64KeyCodec{})
	n := mgr.newRoot()
	vc := Int64ValueCodecForTest{}
	fillLeaf(t, n.page, vc, 0)

	c := mgr.newNode(n.page.Level())
	if err := split(n, c, vc); err != nil {
		t.Fatalf("split: %v", err)
	}
	if !checkFosterConsistency(n.page, c.page) {
		t.Fatalf("foster fence/key mismatch after split")
	}
	if !allKeysInRange(n.page) {
		t.Fatalf("n has a key outside its own range after split")
	}
	if !allKeysInRange(c.page) {
		t.Fatalf("c has a key outside its own range after split")
	}
	fk, ok := n.page.FosterKey()
	if !ok {
		t.Fatalf("n has no foster key after split")
	}
	clf, ok := c.page.LowFence()
	if !ok || clf != fk {
		t.Fatalf("c's low fence (%v, %v) does not match n's foster key %v", clf, ok, fk)
	}
	if n.page.slotCount() == 0 || c.page.slotCount() == 0 {
		t.Fatalf("split left one side empty: n=%d c=%d", n.page.slotCount(), c.page.slotCount())
	}
}

func TestKeyRangeContainsRespectsFosterKey(t *testing.T) {
	mgr := newNodeManager(Int64KeyCodec{})
	n := mgr.newRoot()
	n.page.SetLowFence(int64(0))
	n.page.SetHighFence(int64(100))
	if !keyRangeContains(n.page, 50) {
		t.Fatalf("50 should be in [0, 100]")
	}
	n.page.SetFosterKey(int64(40))
	if keyRangeContains(n.page, 50) {
		t.Fatalf("50 should be excluded once foster key 40 is set")
	}
	if !keyRangeContains(n.page, 30) {
		t.Fatalf("30 should still be contained below the foster key")
	}
	if keyRangeContains(n.page, -1) {
		t.Fatalf("-1 should be excluded by the low fence")
	}
}

func TestGrowMakesRootTaller(t *testing.T) {
	mgr := newNodeManager(Int64KeyCodec{})
	root := mgr.newRoot()
	vc := Int64ValueCodecForTest{}
	fillLeaf(t, root.page, vc, 0)
	newChild := mgr.newNode(root.page.Level())

	if err := grow(root, newChild, vc); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if root.page.Level() != newChild.page.Level()+1 {
		t.Fatalf("root level %d, newChild level %d", root.page.Level(), newChild.page.Level())
	}
	if root.page.slotCount() != 1 {
		t.Fatalf("root should hold exactly one separator after growth, got %d", root.page.slotCount())
	}
	ptr := findChildPointer(root.page, 0)
	if ptr != newChild.id {
		t.Fatalf("root's single separator points at %d, want %d", ptr, newChild.id)
	}
	if newChild.page.slotCount() == 0 {
		t.Fatalf("newChild lost root's records during growth")
	}
}
