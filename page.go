package fosterbtree

import "encoding/binary"

// Slotted page layout constants. PageSize and Alignment are the two
// tunable knobs; SlotSize/HeaderSize follow from the chosen PMNK width
// and header field set.
const (
	PageSize    = 4096 // default page size, bytes
	Alignment   = 8    // payload block size, bytes
	HeaderSize  = 16   // slotCount, payloadBeginBlock, level, validBits, reserved, 4 foster field pointers
	SlotSize    = 4    // pmnk (2B) + payload-ptr-and-ghost (2B)
	totalBlocks = PageSize / Alignment
	// maxSlotOffset is the largest payload block index a slot's 15-bit
	// pointer field can address; totalBlocks is always far below it, so
	// this only documents the field width rather than gating anything.
	maxSlotOffset = 1<<15 - 1
)

// header field byte offsets within Page.buf
const (
	offSlotCount    = 0
	offPayloadBegin = 2
	offLevel        = 4
	offValidBits    = 5
	offFosterFields = 8 // 4 x uint16, one per foster field
)

// foster field indices into the header's fosterFieldBlock array and validBits.
const (
	fieldLowKey = iota
	fieldHighKey
	fieldFosterKey
	fieldFosterPtr
	numFosterFields
)

// slot is the decoded form of one slot-vector entry.
type slot struct {
	pmnk  PMNK
	ptr   uint16 // payload block index
	ghost bool
}

// Page is a fixed-size byte container holding a slot vector that grows
// upward from the header and a payload heap that grows downward from the
// page end, plus the header fields the foster extension needs: a level
// and four foster-field pointers with individual valid bits. Page is
// generic only in the key codec it needs to keep PMNK/fence comparisons
// consistent; values are handled by free functions in node.go so a single
// Page type serves both leaf pages (V = user value) and branch pages
// (V = NodePointer) — see DESIGN.md.
type Page[K any] struct {
	buf   [PageSize]byte
	codec KeyCodec[K]
}

// newPage allocates an empty page: no slots, full payload heap, level 0,
// no foster fields set.
func newPage[K any](codec KeyCodec[K], level uint8) *Page[K] {
	p := &Page[K]{codec: codec}
	p.setSlotCount(0)
	p.setPayloadBeginBlock(totalBlocks)
	p.buf[offLevel] = level
	p.buf[offValidBits] = 0
	return p
}

func (p *Page[K]) slotCount() uint16 { return binary.LittleEndian.Uint16(p.buf[offSlotCount:]) }
func (p *Page[K]) setSlotCount(n uint16) {
	binary.LittleEndian.PutUint16(p.buf[offSlotCount:], n)
}

func (p *Page[K]) payloadBeginBlock() uint16 {
	return binary.LittleEndian.Uint16(p.buf[offPayloadBegin:])
}
func (p *Page[K]) setPayloadBeginBlock(b uint16) {
	binary.LittleEndian.PutUint16(p.buf[offPayloadBegin:], b)
}

// Level returns the node's level: 0 for a leaf, >0 for a branch.
func (p *Page[K]) Level() uint8 { return p.buf[offLevel] }

// SetLevel sets the node's level.
func (p *Page[K]) SetLevel(l uint8) { p.buf[offLevel] = l }

func (p *Page[K]) fosterFieldValid(field int) bool {
	return p.buf[offValidBits]&(1<<uint(field)) != 0
}

func (p *Page[K]) setFosterFieldValid(field int, valid bool) {
	if valid {
		p.buf[offValidBits] |= 1 << uint(field)
	} else {
		p.buf[offValidBits] &^= 1 << uint(field)
	}
}

func (p *Page[K]) fosterFieldBlock(field int) uint16 {
	off := offFosterFields + field*2
	return binary.LittleEndian.Uint16(p.buf[off:])
}

func (p *Page[K]) setFosterFieldBlock(field int, block uint16) {
	off := offFosterFields + field*2
	binary.LittleEndian.PutUint16(p.buf[off:], block)
}

// slotOffset returns the byte offset of slot i in the slot vector.
func (p *Page[K]) slotOffset(i uint16) int { return HeaderSize + int(i)*SlotSize }

func (p *Page[K]) getSlot(i uint16) slot {
	off := p.slotOffset(i)
	pmnk := binary.LittleEndian.Uint16(p.buf[off:])
	pg := binary.LittleEndian.Uint16(p.buf[off+2:])
	return slot{
		pmnk:  pmnk,
		ptr:   pg &^ (1 << 15),
		ghost: pg&(1<<15) != 0,
	}
}

func (p *Page[K]) setSlot(i uint16, s slot) {
	off := p.slotOffset(i)
	binary.LittleEndian.PutUint16(p.buf[off:], s.pmnk)
	pg := s.ptr
	if s.ghost {
		pg |= 1 << 15
	}
	binary.LittleEndian.PutUint16(p.buf[off+2:], pg)
}

// freeSpace returns the number of bytes available between the slot vector
// and the payload heap.
func (p *Page[K]) freeSpace() int {
	used := HeaderSize + int(p.slotCount())*SlotSize
	begin := int(p.payloadBeginBlock()) * Alignment
	return begin - used
}

func blocksFor(length int) int { return (length + Alignment - 1) / Alignment }

// allocatePayload reserves ceil(length/A) blocks at the low end of the
// payload heap, lowering payload_begin. Fails without side effects if free
// space is insufficient.
func (p *Page[K]) allocatePayload(length int) (ptr uint16, ok bool) {
	blocks := blocksFor(length)
	if blocks == 0 {
		return p.payloadBeginBlock(), true
	}
	if p.freeSpace() < blocks*Alignment {
		return 0, false
	}
	begin := p.payloadBeginBlock() - uint16(blocks)
	p.setPayloadBeginBlock(begin)
	return begin, true
}

// shiftBlocks memmoves the payload region [from, from+count) blocks to
// [to, to+count) and rewrites every slot pointer and foster-field pointer
// whose target lay in the shifted range. It performs no capacity checks;
// callers verify free space first.
func (p *Page[K]) shiftBlocks(to, from, count uint16) {
	if to == from || count == 0 {
		return
	}
	src := p.buf[int(from)*Alignment : int(from+count)*Alignment]
	tmp := make([]byte, len(src))
	copy(tmp, src)
	copy(p.buf[int(to)*Alignment:int(to+count)*Alignment], tmp)

	delta := int(to) - int(from)
	remap := func(ptr uint16) uint16 {
		if ptr >= from && ptr < from+count {
			return uint16(int(ptr) + delta)
		}
		return ptr
	}
	n := p.slotCount()
	for i := uint16(0); i < n; i++ {
		s := p.getSlot(i)
		newPtr := remap(s.ptr)
		if newPtr != s.ptr {
			s.ptr = newPtr
			p.setSlot(i, s)
		}
	}
	for f := 0; f < numFosterFields; f++ {
		if p.fosterFieldValid(f) {
			b := p.fosterFieldBlock(f)
			if nb := remap(b); nb != b {
				p.setFosterFieldBlock(f, nb)
			}
		}
	}
}

// allocateEndPayload reserves blocks adjacent to the top of the heap
// (nearest the page end), shifting every currently-used payload block
// downward to make room. Used exclusively by the fence/foster fields to
// stay packed contiguously at the high end of the heap.
func (p *Page[K]) allocateEndPayload(length int) (ptr uint16, ok bool) {
	blocks := blocksFor(length)
	if blocks == 0 {
		return totalBlocks, true
	}
	if p.freeSpace() < blocks*Alignment {
		return 0, false
	}
	oldBegin := p.payloadBeginBlock()
	newBegin := oldBegin - uint16(blocks)
	count := uint16(totalBlocks) - oldBegin
	if count > 0 {
		p.shiftBlocks(newBegin, oldBegin, count)
	}
	p.setPayloadBeginBlock(newBegin)
	return uint16(totalBlocks) - uint16(blocks), true
}

// freePayload releases the blocks at ptr by shifting every payload between
// payload_begin and ptr upward (toward the page end) by ceil(length/A)
// blocks, then raising payload_begin. Freeing the last (lowest) payload is
// a no-op shift.
func (p *Page[K]) freePayload(ptr uint16, length int) {
	blocks := uint16(blocksFor(length))
	if blocks == 0 {
		return
	}
	begin := p.payloadBeginBlock()
	if ptr > begin {
		p.shiftBlocks(begin+blocks, begin, ptr-begin)
	}
	p.setPayloadBeginBlock(begin + blocks)
}

// insertSlot shifts the slot vector to open a gap at pos, returning false
// if there is no free space for one more slot.
func (p *Page[K]) insertSlot(pos uint16) bool {
	if p.freeSpace() < SlotSize {
		return false
	}
	n := p.slotCount()
	for i := n; i > pos; i-- {
		p.setSlot(i, p.getSlot(i-1))
	}
	p.setSlotCount(n + 1)
	return true
}

// deleteSlot removes the slot at pos, shifting later slots down.
func (p *Page[K]) deleteSlot(pos uint16) {
	n := p.slotCount()
	for i := pos; i+1 < n; i++ {
		p.setSlot(i, p.getSlot(i+1))
	}
	p.setSlotCount(n - 1)
}

// payloadBytes returns the length-byte window starting at the given block
// pointer, for reading or writing an encoded (key, value) record.
func (p *Page[K]) payloadBytes(ptr uint16, length int) []byte {
	start := int(ptr) * Alignment
	return p.buf[start : start+length]
}

// sortSlots stably sorts the slot vector by PMNK, breaking ties by full key
// comparison — used when converting an append-only build buffer (sorted =
// false inserts) into normal sorted order.
func (p *Page[K]) sortSlots(decodeKey func(ptr uint16) K) {
	n := int(p.slotCount())
	slots := make([]slot, n)
	for i := 0; i < n; i++ {
		slots[i] = p.getSlot(uint16(i))
	}
	keys := make([]K, n)
	for i, s := range slots {
		keys[i] = decodeKey(s.ptr)
	}
	// insertion sort: stable, and n is bounded by how many records fit on
	// one page, so this never dominates.
	for i := 1; i < n; i++ {
		j := i
		for j > 0 {
			less := slots[j].pmnk < slots[j-1].pmnk ||
				(slots[j].pmnk == slots[j-1].pmnk && p.codec.Compare(keys[j], keys[j-1]) < 0)
			if !less {
				break
			}
			slots[j], slots[j-1] = slots[j-1], slots[j]
			keys[j], keys[j-1] = keys[j-1], keys[j]
			j--
		}
	}
	for i := 0; i < n; i++ {
		p.setSlot(uint16(i), slots[i])
	}
}
