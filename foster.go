package fosterbtree

// node bundles a page with the identity and latch the tree needs to
// address and protect it. Page itself stays free of both, so the same
// slotted-page primitive could serve a future on-disk binding without
// carrying in-memory-only concerns.
type node[K any] struct {
	id    NodePointer
	page  *Page[K]
	latch Latch
}

// --- foster field accessors -------------------------------------------------

func (p *Page[K]) clearFosterField(field int) {
	if !p.fosterFieldValid(field) {
		return
	}
	ptr := p.fosterFieldBlock(field)
	var length int
	if field == fieldFosterPtr {
		length = 8
	} else {
		_, length = p.codec.DecodeKey(p.payloadWindow(ptr))
	}
	p.freePayload(ptr, length)
	p.setFosterFieldValid(field, false)
}

// setFosterField frees any previous encoding of field and re-packs the
// new one at the top of the heap. An in-place partial shift that only
// moves the fields below the resized one would also work; freeing then
// reallocating at the top reaches the same postcondition (every valid
// foster field packed contiguously at the high end) with a simpler,
// always-correct procedure — see DESIGN.md.
func (p *Page[K]) setFosterField(field int, length int, write func([]byte)) bool {
	p.clearFosterField(field)
	ptr, ok := p.allocateEndPayload(length)
	if !ok {
		return false
	}
	write(p.payloadBytes(ptr, length))
	p.setFosterFieldBlock(field, ptr)
	p.setFosterFieldValid(field, true)
	return true
}

// LowFence returns the node's low fence key; ok is false for -infinity.
func (p *Page[K]) LowFence() (k K, ok bool) {
	if !p.fosterFieldValid(fieldLowKey) {
		return k, false
	}
	k, _ = decodeKeyAt(p, p.fosterFieldBlock(fieldLowKey))
	return k, true
}

// SetLowFence installs a low fence key.
func (p *Page[K]) SetLowFence(k K) bool {
	return p.setFosterField(fieldLowKey, p.codec.KeyLen(k), func(dst []byte) { p.codec.EncodeKey(dst, k) })
}

// ClearLowFence removes the low fence (-infinity).
func (p *Page[K]) ClearLowFence() { p.clearFosterField(fieldLowKey) }

// HighFence returns the node's high fence key; ok is false for +infinity.
func (p *Page[K]) HighFence() (k K, ok bool) {
	if !p.fosterFieldValid(fieldHighKey) {
		return k, false
	}
	k, _ = decodeKeyAt(p, p.fosterFieldBlock(fieldHighKey))
	return k, true
}

// SetHighFence installs a high fence key.
func (p *Page[K]) SetHighFence(k K) bool {
	return p.setFosterField(fieldHighKey, p.codec.KeyLen(k), func(dst []byte) { p.codec.EncodeKey(dst, k) })
}

// ClearHighFence removes the high fence (+infinity).
func (p *Page[K]) ClearHighFence() { p.clearFosterField(fieldHighKey) }

// FosterKey returns the separator between this node and its foster child.
func (p *Page[K]) FosterKey() (k K, ok bool) {
	if !p.fosterFieldValid(fieldFosterKey) {
		return k, false
	}
	k, _ = decodeKeyAt(p, p.fosterFieldBlock(fieldFosterKey))
	return k, true
}

// SetFosterKey installs the foster separator key.
func (p *Page[K]) SetFosterKey(k K) bool {
	return p.setFosterField(fieldFosterKey, p.codec.KeyLen(k), func(dst []byte) { p.codec.EncodeKey(dst, k) })
}

// ClearFosterKey removes the foster separator: this is always the state
// of a freshly created, still-empty foster child.
func (p *Page[K]) ClearFosterKey() { p.clearFosterField(fieldFosterKey) }

// FosterPtr returns the handle of this node's foster child, if any.
func (p *Page[K]) FosterPtr() (ptr NodePointer, ok bool) {
	if !p.fosterFieldValid(fieldFosterPtr) {
		return nilPointer, false
	}
	ptr, _ = pointerValueCodec{}.DecodeValue(p.payloadWindow(p.fosterFieldBlock(fieldFosterPtr)))
	return ptr, true
}

// SetFosterPtr installs the foster child pointer.
func (p *Page[K]) SetFosterPtr(ptr NodePointer) bool {
	return p.setFosterField(fieldFosterPtr, 8, func(dst []byte) { pointerValueCodec{}.EncodeValue(dst, ptr) })
}

// ClearFosterPtr removes the foster child pointer ("no foster child").
func (p *Page[K]) ClearFosterPtr() { p.clearFosterField(fieldFosterPtr) }

// --- containment tests -------------------------------------------------

// keyRangeContains reports whether k falls within a node's declared key
// range: at or above the low fence, and below the foster key if a foster
// child is present (the foster key is always tighter than the high
// fence), otherwise at or below the high fence.
func keyRangeContains[K any](p *Page[K], k K) bool {
	if low, ok := p.LowFence(); ok && p.codec.Compare(k, low) < 0 {
		return false
	}
	if fk, ok := p.FosterKey(); ok {
		return p.codec.Compare(k, fk) < 0
	}
	if high, ok := p.HighFence(); ok && p.codec.Compare(k, high) > 0 {
		return false
	}
	return true
}

// --- split / rebalance / grow -----------------------------------------------

// addFosterChild installs c as n's foster child: c inherits n's high fence
// (or +infinity) as both its low and high fence, absorbs whatever foster
// chain n already had (including n's foster key, if any), and n's foster
// pointer becomes c. Precondition: c is empty. Storing n's foster pointer
// takes one payload block on n; on a page with no free block left
// SetFosterPtr fails here, and split stores the pointer once rebalance
// has moved records out.
func addFosterChild[K any](n, c *node[K]) error {
	if c.page.slotCount() != 0 {
		return ErrInvalidFosterChild
	}
	if hf, ok := n.page.HighFence(); ok {
		c.page.SetLowFence(hf)
		c.page.SetHighFence(hf)
	}
	if fk, ok := n.page.FosterKey(); ok {
		c.page.SetFosterKey(fk)
	}
	if fp, ok := n.page.FosterPtr(); ok {
		c.page.SetFosterPtr(fp)
	}
	n.page.SetFosterPtr(c.id)
	return nil
}

// rebalance moves the upper half of n's records into its (empty) foster
// child c, then fixes up fences: n's foster key and c's low fence both
// become the promoted split key, and c's high fence becomes n's old high
// fence. Precondition: n has a foster child c, and c is empty.
func rebalance[K any, V any](n, c *node[K], vcodec ValueCodec[V]) error {
	total := n.page.slotCount()
	splitSlot := total / 2
	s := n.page.getSlot(splitSlot)
	splitKey, _ := decodeKeyAt(n.page, s.ptr)
	count := total - splitSlot

	if !moveRecords(c.page, n.page, vcodec, 0, splitSlot, count) {
		return errPageFull
	}
	n.page.SetFosterKey(splitKey)
	c.page.SetLowFence(splitKey)
	if hf, ok := n.page.HighFence(); ok {
		c.page.SetHighFence(hf)
	}
	return nil
}

// split gives n a foster child c and moves half of n's records into it:
// addFosterChild(n, c) followed by rebalance(n, c), then storing n's
// foster pointer if n was too full to take it before the move.
func split[K any, V any](n, c *node[K], vcodec ValueCodec[V]) error {
	if err := addFosterChild(n, c); err != nil {
		return err
	}
	if err := rebalance(n, c, vcodec); err != nil {
		return err
	}
	if _, ok := n.page.FosterPtr(); !ok && !n.page.SetFosterPtr(c.id) {
		return errPageFull
	}
	return nil
}

// grow makes the tree one level taller: it demotes root's current
// contents (records, foster key, foster pointer, fences) into newChild,
// then rewrites root as a level-(newChild.level+1) branch holding a
// single separator — the minimum-key sentinel — pointing at newChild.
// The root's own identity (its handle) never changes; only its contents
// do.
func grow[K any, V any](root, newChild *node[K], vcodec ValueCodec[V]) error {
	n := root.page.slotCount()
	if n > 0 {
		if !moveRecords(newChild.page, root.page, vcodec, 0, 0, n) {
			return errPageFull
		}
	}
	newChild.page.SetLevel(root.page.Level())
	if lf, ok := root.page.LowFence(); ok {
		newChild.page.SetLowFence(lf)
	}
	if hf, ok := root.page.HighFence(); ok {
		newChild.page.SetHighFence(hf)
	}
	if fk, ok := root.page.FosterKey(); ok {
		newChild.page.SetFosterKey(fk)
		root.page.ClearFosterKey()
	}
	if fp, ok := root.page.FosterPtr(); ok {
		newChild.page.SetFosterPtr(fp)
		root.page.ClearFosterPtr()
	}

	root.page.ClearLowFence()
	root.page.ClearHighFence()
	root.page.SetLevel(newChild.page.Level() + 1)

	minKey := root.page.codec.MinKey()
	ptrCodec := pointerValueCodec{}
	if res := insertRecord(root.page, ptrCodec, minKey, newChild.id, true); res != ResultInserted {
		return errPageFull
	}
	return nil
}

// --- whole-page invariant checks (used by Tree.CheckInvariants) ------------

// allKeysInRange checks, for a single page, that every stored key
// satisfies the node's own fence/foster containment test.
func allKeysInRange[K any](p *Page[K]) bool {
	n := p.slotCount()
	for i := uint16(0); i < n; i++ {
		s := p.getSlot(i)
		k, _ := decodeKeyAt(p, s.ptr)
		if !keyRangeContains(p, k) {
			return false
		}
	}
	return true
}

// checkFosterConsistency checks that a node and its foster child, when
// one is present, agree on the boundary between them.
func checkFosterConsistency[K any](n, c *Page[K]) bool {
	fk, ok := n.FosterKey()
	if !ok {
		return true
	}
	clf, ok := c.LowFence()
	if !ok || n.codec.Compare(fk, clf) != 0 {
		return false
	}
	nHigh, nOk := n.HighFence()
	cHigh, cOk := c.HighFence()
	if nOk != cOk {
		return false
	}
	if nOk && n.codec.Compare(nHigh, cHigh) != 0 {
		return false
	}
	return true
}
