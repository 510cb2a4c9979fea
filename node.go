package fosterbtree

// InsertResult is the outcome of insertRecord.
type InsertResult int

const (
	ResultInserted InsertResult = iota
	ResultDuplicate
	ResultFull
)

// decodeKeyAt decodes the key stored at payload block ptr, returning the
// key and the number of bytes it occupies (so the caller can find where
// the value bytes start).
func decodeKeyAt[K any](p *Page[K], ptr uint16) (K, int) {
	return p.codec.DecodeKey(p.payloadWindow(ptr))
}

// payloadWindow exposes the payload heap from ptr to the end of the page;
// decoders consume only as many bytes as their own length prefix or fixed
// width says, so a window that runs past the end of one record's bytes
// into the next record (or unused space) is harmless.
func (p *Page[K]) payloadWindow(ptr uint16) []byte {
	return p.buf[int(ptr)*Alignment:]
}

// locate combines the PMNK binary search with a full-key tie-break: it
// finds k's exact slot if present, otherwise the position preserving
// full-key order within a run of slots that share a PMNK.
func locate[K any](p *Page[K], k K) (pos uint16, found bool) {
	pmnk := p.codec.PMNK(k)
	pos, foundPMNK := binarySearch(p, pmnk)
	if !foundPMNK {
		return pos, false
	}
	n := p.slotCount()
	for pos < n {
		s := p.getSlot(pos)
		if s.pmnk != pmnk {
			break
		}
		kk, _ := decodeKeyAt(p, s.ptr)
		switch c := p.codec.Compare(k, kk); {
		case c == 0:
			return pos, true
		case c < 0:
			return pos, false
		default:
			pos++
		}
	}
	return pos, false
}

// insertRecord finds the insertion point, allocates the payload, inserts
// the slot and encodes the record. sorted=false always appends (bulk
// build buffers); sorted=true rejects duplicates.
func insertRecord[K any, V any](p *Page[K], vcodec ValueCodec[V], k K, v V, sorted bool) InsertResult {
	pmnk := p.codec.PMNK(k)
	pos := p.slotCount()
	if sorted {
		var found bool
		pos, found = locate(p, k)
		if found {
			return ResultDuplicate
		}
	}
	length := p.codec.KeyLen(k) + vcodec.ValueLen(v)
	ptr, ok := p.allocatePayload(length)
	if !ok {
		return ResultFull
	}
	if !p.insertSlot(pos) {
		p.freePayload(ptr, length)
		return ResultFull
	}
	buf := p.payloadBytes(ptr, length)
	n := p.codec.EncodeKey(buf, k)
	vcodec.EncodeValue(buf[n:], v)
	p.setSlot(pos, slot{pmnk: pmnk, ptr: ptr, ghost: false})
	return ResultInserted
}

// findValue looks up k and returns its decoded value.
func findValue[K any, V any](p *Page[K], vcodec ValueCodec[V], k K) (V, bool) {
	var zero V
	pos, found := locate(p, k)
	if !found {
		return zero, false
	}
	s := p.getSlot(pos)
	_, kn := decodeKeyAt(p, s.ptr)
	v, _ := vcodec.DecodeValue(p.payloadWindow(s.ptr)[kn:])
	return v, true
}

// findChildPointer resolves the child that should hold k: branch
// separators are ascending and the leftmost equals the minimum-key
// sentinel, so the covering child is the exact match if present, else
// the nearest slot with a smaller key.
func findChildPointer[K any](p *Page[K], k K) NodePointer {
	pos, found := locate(p, k)
	idx := pos
	if !found && pos > 0 {
		idx = pos - 1
	}
	s := p.getSlot(idx)
	_, kn := decodeKeyAt(p, s.ptr)
	ptr, _ := pointerValueCodec{}.DecodeValue(p.payloadWindow(s.ptr)[kn:])
	return ptr
}

// removeRecord finds k, frees its payload and deletes its slot.
func removeRecord[K any, V any](p *Page[K], vcodec ValueCodec[V], k K) bool {
	pos, found := locate(p, k)
	if !found {
		return false
	}
	s := p.getSlot(pos)
	_, kn := decodeKeyAt(p, s.ptr)
	_, vn := vcodec.DecodeValue(p.payloadWindow(s.ptr)[kn:])
	p.freePayload(s.ptr, kn+vn)
	p.deleteSlot(pos)
	return true
}

// moveRecords is an atomic group move: allocate slots and payloads in
// dest, copy, then delete the originals from src. If any dest allocation
// fails partway through, all partial dest work is rolled back and src is
// left completely untouched.
func moveRecords[K any, V any](dest, src *Page[K], vcodec ValueCodec[V], destSlot, srcSlot, count uint16) bool {
	type placed struct {
		pos    uint16
		ptr    uint16
		length int
	}
	done := make([]placed, 0, count)

	for i := uint16(0); i < count; i++ {
		s := src.getSlot(srcSlot + i)
		kk, kn := decodeKeyAt(src, s.ptr)
		_, vn := vcodec.DecodeValue(src.payloadWindow(s.ptr)[kn:])
		length := kn + vn

		ptr, ok := dest.allocatePayload(length)
		if !ok {
			break
		}
		pos := destSlot + i
		if !dest.insertSlot(pos) {
			dest.freePayload(ptr, length)
			break
		}
		copy(dest.payloadBytes(ptr, length), src.payloadWindow(s.ptr)[:length])
		dest.setSlot(pos, slot{pmnk: dest.codec.PMNK(kk), ptr: ptr, ghost: false})
		done = append(done, placed{pos: pos, ptr: ptr, length: length})
	}

	if uint16(len(done)) != count {
		for i := len(done) - 1; i >= 0; i-- {
			dest.freePayload(done[i].ptr, done[i].length)
			dest.deleteSlot(done[i].pos)
		}
		return false
	}

	for i := int(count) - 1; i >= 0; i-- {
		s := src.getSlot(srcSlot + uint16(i))
		_, kn := decodeKeyAt(src, s.ptr)
		_, vn := vcodec.DecodeValue(src.payloadWindow(s.ptr)[kn:])
		src.freePayload(s.ptr, kn+vn)
		src.deleteSlot(srcSlot + uint16(i))
	}
	return true
}

// isSorted checks that PMNKs are non-decreasing and full keys are
// strictly increasing across the slot vector.
func isSorted[K any](p *Page[K]) bool {
	n := p.slotCount()
	for i := uint16(1); i < n; i++ {
		prev, cur := p.getSlot(i-1), p.getSlot(i)
		if cur.pmnk < prev.pmnk {
			return false
		}
		pk, _ := decodeKeyAt(p, prev.ptr)
		ck, _ := decodeKeyAt(p, cur.ptr)
		if p.codec.Compare(pk, ck) >= 0 {
			return false
		}
	}
	return true
}

// leafCursor walks the records of a single page in slot order. Range
// scans across a foster chain are built on top of this in tree.go's
// RangeAfter.
type leafCursor[K any, V any] struct {
	page   *Page[K]
	vcodec ValueCodec[V]
	idx    uint16
}

func newLeafCursor[K any, V any](p *Page[K], vcodec ValueCodec[V]) *leafCursor[K, V] {
	return &leafCursor[K, V]{page: p, vcodec: vcodec}
}

// Next advances the cursor, returning false once every slot has been
// visited.
func (c *leafCursor[K, V]) Next() (K, V, bool) {
	var zk K
	var zv V
	if c.idx >= c.page.slotCount() {
		return zk, zv, false
	}
	s := c.page.getSlot(c.idx)
	k, kn := decodeKeyAt(c.page, s.ptr)
	v, _ := c.vcodec.DecodeValue(c.page.payloadWindow(s.ptr)[kn:])
	c.idx++
	return k, v, true
}
