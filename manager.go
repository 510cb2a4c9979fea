package fosterbtree

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
)

// nodeManager owns node identity: it allocates fresh nodes, resolves a
// NodePointer handle back to its *node, and tracks which nodes are
// currently hot under an access-frequency counter (fed by recordAccess
// from every branch descent and every leaf put/get/remove, read back by
// hotCount/HotNodes) used only for debug telemetry, sampled at every
// Config.DebugLevel, never for eviction — there is no buffer pool here, every node
// lives in the process heap for the life of the tree.
type nodeManager[K any] struct {
	codec  KeyCodec[K]
	nextID atomic.Uint64

	mu    sync.RWMutex
	nodes map[NodePointer]*node[K]
	root  NodePointer

	hot *ristretto.Cache[uint64, int64]
}

func newNodeManager[K any](codec KeyCodec[K]) *nodeManager[K] {
	hot, err := ristretto.NewCache(&ristretto.Config[uint64, int64]{
		NumCounters: 1e4,
		MaxCost:     1e4,
		BufferItems: 64,
		Metrics:     false,
	})
	if err != nil {
		// A misconfigured cache is a programmer error, not a runtime
		// condition callers can react to; the counter is diagnostic only.
		hot = nil
	}
	return &nodeManager[K]{
		codec: codec,
		nodes: make(map[NodePointer]*node[K]),
		hot:   hot,
	}
}

func (m *nodeManager[K]) newNode(level uint8) *node[K] {
	id := NodePointer(m.nextID.Add(1))
	n := &node[K]{id: id, page: newPage(m.codec, level)}
	m.mu.Lock()
	m.nodes[id] = n
	m.mu.Unlock()
	return n
}

// newRoot allocates the tree's permanent root node. Its handle never
// changes for the lifetime of the tree; growth rewrites its contents
// in place (see grow in foster.go).
func (m *nodeManager[K]) newRoot() *node[K] {
	n := m.newNode(0)
	m.root = n.id
	return n
}

func (m *nodeManager[K]) rootID() NodePointer { return m.root }

// get resolves a handle to its node. Every handle a caller holds was
// itself obtained from this manager (as a foster pointer, a branch
// separator's value, or the stored root), so a missing entry indicates a
// programming error rather than a condition to recover from.
func (m *nodeManager[K]) get(id NodePointer) *node[K] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[id]
}

// allocateLike allocates a fresh, empty node at the same level as like —
// the node manager's half of a foster split or a branch-level adoption
// overflow (the other half, wiring the new node in as a foster child, is
// addFosterChild in foster.go).
func (m *nodeManager[K]) allocateLike(like *node[K]) (*node[K], error) {
	return m.newNode(like.page.Level()), nil
}

// recordAccess bumps the hot-node counter for id. Best effort: a nil
// cache (construction failed) or a full write buffer silently drops the
// sample, since this feeds telemetry only.
func (m *nodeManager[K]) recordAccess(id NodePointer) {
	if m.hot == nil {
		return
	}
	key := uint64(id)
	count, _ := m.hot.Get(key)
	m.hot.Set(key, count+1, 1)
}

// hotCount returns the sampled access count for id, for debug logging.
// Wait drains the cache's asynchronous write buffer first so a hotCount
// call always reflects every recordAccess that happened-before it —
// ristretto's own tests use the same Wait-before-Get pattern to avoid
// racing the buffer.
func (m *nodeManager[K]) hotCount(id NodePointer) int64 {
	if m.hot == nil {
		return 0
	}
	m.hot.Wait()
	count, _ := m.hot.Get(uint64(id))
	return count
}

// HotNodes returns up to n live node handles ordered by descending
// recorded access count (ties broken by handle, for determinism). It is
// the read side of the access-frequency counter recordAccess feeds,
// exposed for debug/telemetry consumers.
func (m *nodeManager[K]) HotNodes(n int) []NodePointer {
	if m.hot == nil || n <= 0 {
		return nil
	}
	m.mu.RLock()
	ids := make([]NodePointer, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool {
		ci, cj := m.hotCount(ids[i]), m.hotCount(ids[j])
		if ci != cj {
			return ci > cj
		}
		return ids[i] < ids[j]
	})
	if len(ids) > n {
		ids = ids[:n]
	}
	return ids
}
