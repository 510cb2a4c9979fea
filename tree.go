package fosterbtree

import "fmt"

// Tree is a concurrent, in-memory ordered map: point insertion, point
// lookup, point removal and single-node range iteration over keys of
// type K to values of type V. The zero value is not usable; construct
// with NewTree.
type Tree[K any, V any] struct {
	mgr      *nodeManager[K]
	adoption Adoption[K]
	kcodec   KeyCodec[K]
	vcodec   ValueCodec[V]
	logger   Logger
	debug    int
}

// NewTree builds an empty tree: a single root leaf, no fences, no foster
// child.
func NewTree[K any, V any](cfg Config[K, V]) *Tree[K, V] {
	if cfg.KeyCodec == nil || cfg.ValueCodec == nil {
		panic("fosterbtree: NewTree requires KeyCodec and ValueCodec")
	}
	adoption := cfg.Adoption
	if adoption == nil {
		adoption = EagerAdoption[K]{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = NopLogger{}
	}
	t := &Tree[K, V]{
		mgr:      newNodeManager(cfg.KeyCodec),
		adoption: adoption,
		kcodec:   cfg.KeyCodec,
		vcodec:   cfg.ValueCodec,
		logger:   logger,
		debug:    cfg.DebugLevel,
	}
	t.mgr.newRoot()
	return t
}

func (t *Tree[K, V]) root() *node[K] { return t.mgr.get(t.mgr.rootID()) }

// HotNodes returns up to n node handles most frequently visited by
// descendToChild/Get/Put/Remove, most-visited first. It is a debug/
// telemetry helper backed by the node manager's ristretto-sampled access
// counter, not a first-class query.
func (t *Tree[K, V]) HotNodes(n int) []NodePointer { return t.mgr.HotNodes(n) }

// descendToChild moves down from parent (already read-latched) to the
// child covering k, applying eager adoption along the way: if the chosen
// child carries a foster key, its foster child is folded into parent as
// a new separator before descent continues, so a foster chain is normally
// absorbed by the next traversal through its parent; when the
// non-blocking upgrade fails, the chain stays for a later traversal to
// absorb. parent's latch is
// released before returning; the returned node is read-latched, or nil
// if parent's own foster chain ran out before covering k (a concurrent
// structural change; the caller restarts the descent from the root).
func (t *Tree[K, V]) descendToChild(parent *node[K], k K) *node[K] {
	// parent itself may carry an unresolved foster key from a split that
	// hasn't been adopted into its own parent yet: its separators only
	// cover its own (possibly truncated) range, so k must be walked
	// forward along parent's foster chain before its separators can be
	// trusted, the same way leaf lookups walk their own foster chain.
	for !keyRangeContains(parent.page, k) {
		fp, ok := parent.page.FosterPtr()
		if !ok {
			parent.latch.ReleaseRead()
			return nil
		}
		next := t.mgr.get(fp)
		next.latch.AcquireRead()
		parent.latch.ReleaseRead()
		parent = next
	}

	for {
		childID := findChildPointer(parent.page, k)
		child := t.mgr.get(childID)
		child.latch.AcquireRead()

		if _, hasFoster := child.page.FosterKey(); hasFoster {
			if parent.latch.AttemptUpgrade() {
				adopted, err := t.adoption.TryAdopt(t.mgr, parent, child, t.growRootFn(parent))
				if err == nil && adopted {
					t.logger.Logf(RecordAdopt, "adopted foster child of node %d into node %d", child.id, parent.id)
					child.latch.ReleaseRead()
					parent.latch.Downgrade()
					continue // re-resolve the child pointer against parent's new contents
				}
				parent.latch.Downgrade()
			}
			// Non-blocking upgrade failed or adoption made no change: proceed
			// with the stale-but-safe child; a later traversal retries.
		}

		t.mgr.recordAccess(child.id)
		parent.latch.ReleaseRead()
		return child
	}
}

// growRootFn returns a closure TryAdopt can call to grow the tree when
// parent turns out to be the root and has no room for a new separator.
// It is nil unless parent is currently the root.
func (t *Tree[K, V]) growRootFn(parent *node[K]) func() (*node[K], error) {
	if parent.id != t.mgr.rootID() {
		return nil
	}
	return func() (*node[K], error) {
		newChild := t.mgr.newNode(parent.page.Level())
		// The root's own records are branch separators (NodePointer
		// values) at every level above the leaves; only a leaf root's
		// records use the tree's value codec.
		var err error
		if parent.page.Level() == 0 {
			err = grow(parent, newChild, t.vcodec)
		} else {
			err = grow(parent, newChild, pointerValueCodec{})
		}
		if err != nil {
			return nil, err
		}
		t.logger.Logf(RecordGrow, "grew root %d, new level %d", parent.id, parent.page.Level())
		return newChild, nil
	}
}

// leafFor performs a full latch-coupled root-to-leaf descent for k,
// returning a read-latched leaf. If a descent step loses track of k (a
// concurrent split moved it out from under a stale foster chain), the
// whole descent restarts from the root.
func (t *Tree[K, V]) leafFor(k K) *node[K] {
	for {
		n := t.root()
		n.latch.AcquireRead()
		lost := false
		for n.page.Level() > 0 {
			child := t.descendToChild(n, k)
			if child == nil {
				lost = true
				break
			}
			n = child
		}
		if !lost {
			return n
		}
	}
}

// walkFosterChain advances from a read-latched node along its foster
// pointer while k does not fall in the node's own range, latch-coupling
// forward. It returns a read-latched node whose range contains k.
func (t *Tree[K, V]) walkFosterChain(n *node[K], k K) *node[K] {
	for !keyRangeContains(n.page, k) {
		fp, ok := n.page.FosterPtr()
		if !ok {
			// No foster child and out of range: a concurrent structural
			// change moved things around; the caller re-descends from root.
			n.latch.ReleaseRead()
			return nil
		}
		next := t.mgr.get(fp)
		next.latch.AcquireRead()
		n.latch.ReleaseRead()
		n = next
	}
	return n
}

// Get looks up k. It is total: a missing key reports ok == false, never
// an error.
func (t *Tree[K, V]) Get(k K) (v V, ok bool) {
	n := t.leafFor(k)
	n = t.walkFosterChain(n, k)
	if n == nil {
		n = t.leafFor(k) // restart once; the tree only grows more stable meanwhile
	}
	defer n.latch.ReleaseRead()
	t.mgr.recordAccess(n.id)
	return findValue(n.page, t.vcodec, k)
}

// Put inserts k/v. If k is already present, Put returns ErrDuplicateKey
// unless upsert is true, in which case the existing value is replaced.
func (t *Tree[K, V]) Put(k K, v V, upsert bool) error {
	for {
		n := t.leafFor(k)
		n.latch.ReleaseRead()
		n.latch.AcquireWrite()
		leaf := t.walkFosterChainWrite(n, k)
		if leaf == nil {
			continue // walkFosterChainWrite already released n's write latch
		}
		n = leaf

		if upsert {
			removeRecord(n.page, t.vcodec, k)
		}
		res := insertRecord(n.page, t.vcodec, k, v, true)
		switch res {
		case ResultInserted:
			t.mgr.recordAccess(n.id)
			n.latch.ReleaseWrite()
			t.logger.Logf(RecordInsert, "inserted key into node %d", n.id)
			if t.debug >= 3 {
				return t.CheckInvariants()
			}
			return nil
		case ResultDuplicate:
			n.latch.ReleaseWrite()
			return ErrDuplicateKey
		case ResultFull:
			sibling := t.mgr.newNode(n.page.Level())
			if err := split(n, sibling, t.vcodec); err != nil {
				n.latch.ReleaseWrite()
				return fmt.Errorf("fosterbtree: split node %d: %w", n.id, err)
			}
			t.logger.Logf(RecordRebalance, "split node %d, new foster child %d, %v free", n.id, sibling.id, n.page.freeSpace())

			if n.id == t.mgr.rootID() {
				// n has no parent to adopt sibling into. Grow the tree so
				// the next descent finds a branch above n and adopts
				// sibling normally, then retry the whole insert.
				newChild := t.mgr.newNode(n.page.Level())
				err := grow(n, newChild, t.vcodec)
				n.latch.ReleaseWrite()
				if err != nil {
					return fmt.Errorf("fosterbtree: grow root: %w", err)
				}
				t.logger.Logf(RecordGrow, "grew root %d, new level %d", n.id, n.page.Level())
				continue
			}

			target := n
			if keyRangeContains(sibling.page, k) {
				target = sibling
			}
			res = insertRecord(target.page, t.vcodec, k, v, true)
			if res == ResultInserted {
				t.mgr.recordAccess(target.id)
			}
			n.latch.ReleaseWrite()
			if res == ResultInserted {
				t.logger.Logf(RecordInsert, "inserted key into node %d", target.id)
				if t.debug >= 3 {
					return t.CheckInvariants()
				}
				return nil
			}
			// Extremely unlikely: even the freshly split half is full for
			// this one record. Retry the whole operation from the root.
			continue
		}
	}
}

// walkFosterChainWrite is walkFosterChain's write-latched counterpart,
// used once the caller has released its read latch on the first
// candidate leaf and taken the write latch on it instead. Like
// walkFosterChain, it releases whichever
// node's latch it currently holds before reporting failure: on a nil
// return the caller holds nothing and must re-descend from the root, not
// reuse or release n itself.
func (t *Tree[K, V]) walkFosterChainWrite(n *node[K], k K) *node[K] {
	if n.page.Level() != 0 {
		// A root leaf grew into a branch between the caller's read and
		// write latches.
		n.latch.ReleaseWrite()
		return nil
	}
	for !keyRangeContains(n.page, k) {
		fp, ok := n.page.FosterPtr()
		if !ok {
			n.latch.ReleaseWrite()
			return nil
		}
		next := t.mgr.get(fp)
		next.latch.AcquireWrite()
		n.latch.ReleaseWrite()
		n = next
	}
	return n
}

// Remove deletes k, reporting whether it was present.
func (t *Tree[K, V]) Remove(k K) bool {
	for {
		n := t.leafFor(k)
		n.latch.ReleaseRead()
		n.latch.AcquireWrite()
		leaf := t.walkFosterChainWrite(n, k)
		if leaf == nil {
			continue // walkFosterChainWrite already released n's write latch
		}
		removed := removeRecord(leaf.page, t.vcodec, k)
		if removed {
			t.mgr.recordAccess(leaf.id)
			t.logger.Logf(RecordRemove, "removed key from node %d", leaf.id)
		}
		leaf.latch.ReleaseWrite()
		return removed
	}
}

// RangeAfter returns an iterator over the keys strictly greater than k
// (or every key, if k's own leaf is the leftmost and k precedes it),
// walking forward as it exhausts each page: along the foster pointer
// where the page has one, otherwise by descending again from the root to
// the leaf that starts at the page's high fence. It is a thin convenience
// built from leafCursor and those two steps, not a first-class range
// index.
type RangeAfter[K any, V any] struct {
	tree *Tree[K, V]
	node *node[K]
	cur  *leafCursor[K, V]
}

// RangeAfter starts a forward iteration just past k.
func (t *Tree[K, V]) RangeAfter(k K) *RangeAfter[K, V] {
	var n *node[K]
	for n == nil {
		// nil means walkFosterChain released the leaf; descend again.
		n = t.walkFosterChain(t.leafFor(k), k)
	}
	cur := newLeafCursor(n.page, t.vcodec)
	pos, found := locate(n.page, k)
	if found {
		pos++
	}
	cur.idx = pos
	return &RangeAfter[K, V]{tree: t, node: n, cur: cur}
}

// Next returns the next key/value pair, advancing across foster
// boundaries as needed. ok is false once the chain is exhausted.
func (r *RangeAfter[K, V]) Next() (k K, v V, ok bool) {
	for {
		if r.node == nil {
			return k, v, false
		}
		if k, v, ok = r.cur.Next(); ok {
			return k, v, true
		}
		fp, has := r.node.page.FosterPtr()
		if !has {
			// An adopted leaf keeps no pointer to its right neighbour; that
			// neighbour is the leaf whose range starts at this one's high fence.
			hf, bounded := r.node.page.HighFence()
			r.node.latch.ReleaseRead()
			r.node = nil
			if !bounded {
				return k, v, false
			}
			nx := r.tree.RangeAfter(hf)
			if pos, found := locate(nx.node.page, hf); found {
				nx.cur.idx = pos // hf itself is the neighbour's first key
			}
			r.node, r.cur = nx.node, nx.cur
			continue
		}
		next := r.tree.mgr.get(fp)
		next.latch.AcquireRead()
		r.node.latch.ReleaseRead()
		r.node = next
		r.cur = newLeafCursor(next.page, r.tree.vcodec)
	}
}

// Close releases the latch RangeAfter is holding. Callers that iterate
// to exhaustion (Next returning ok == false) need not call Close.
func (r *RangeAfter[K, V]) Close() {
	if r.node != nil {
		r.node.latch.ReleaseRead()
		r.node = nil
	}
}

// CheckInvariants walks every reachable node and verifies the slot
// ordering, key-range containment and foster-key/fence consistency
// checks defined in node.go and foster.go. It is intended for tests and
// for Config.DebugLevel >= 3, not for the hot path: it takes no latches
// and is therefore only safe to call when no other goroutine is
// mutating the tree.
func (t *Tree[K, V]) CheckInvariants() error {
	seen := make(map[NodePointer]bool)
	var walk func(id NodePointer) error
	walk = func(id NodePointer) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		n := t.mgr.get(id)
		if !isSorted(n.page) {
			return fmt.Errorf("fosterbtree: node %d is not sorted", id)
		}
		if !allKeysInRange(n.page) {
			return fmt.Errorf("fosterbtree: node %d has a key outside its declared range", id)
		}
		if fp, ok := n.page.FosterPtr(); ok {
			fc := t.mgr.get(fp)
			if !checkFosterConsistency(n.page, fc.page) {
				return fmt.Errorf("fosterbtree: node %d and foster child %d disagree on fences", id, fp)
			}
			if err := walk(fp); err != nil {
				return err
			}
		}
		if n.page.Level() > 0 {
			cur := newLeafCursor(n.page, pointerValueCodec{})
			for {
				_, ptr, ok := cur.Next()
				if !ok {
					break
				}
				if err := walk(ptr); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(t.mgr.rootID())
}
