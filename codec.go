package fosterbtree

import "encoding/binary"

// PMNK is the poor-man's-normalized-key: a fixed-size prefix of a key held
// directly in the slot so in-page binary search never dereferences the
// payload heap. Fixed at a 2-byte unsigned integer; a wider prefix would
// need a reflection-driven codec disproportionate to what this package
// covers (see DESIGN.md, Open Questions).
type PMNK = uint16

// KeyCodec supplies everything a page needs to order, index and
// (de)serialize keys of one type: comparison, PMNK extraction and byte
// encoding, grouped behind one value so a Page never needs a type switch.
type KeyCodec[K any] interface {
	// Compare returns <0, 0, >0 as a<b, a==b, a>b under the key's total order.
	Compare(a, b K) int
	// PMNK extracts the fixed-size prefix used for in-page binary search.
	PMNK(k K) PMNK
	// KeyLen returns the number of bytes EncodeKey will write for k.
	KeyLen(k K) int
	// EncodeKey serializes k at the start of dst, returning bytes written.
	EncodeKey(dst []byte, k K) int
	// DecodeKey deserializes a key from the start of src, returning the key
	// and the number of bytes consumed.
	DecodeKey(src []byte) (K, int)
	// MinKey returns the distinguished minimum-key sentinel: the leftmost
	// branch separator on every branch page always equals this value, so
	// every key in the tree compares >= it.
	MinKey() K
}

// ValueCodec supplies byte (de)serialization for values of one type,
// mirroring KeyCodec on the value side.
type ValueCodec[V any] interface {
	ValueLen(v V) int
	EncodeValue(dst []byte, v V) int
	DecodeValue(src []byte) (V, int)
}

// StringKeyCodec implements KeyCodec[string]: variable-length keys,
// length-prefixed with a 16-bit count.
type StringKeyCodec struct{}

func (StringKeyCodec) Compare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (StringKeyCodec) PMNK(k string) PMNK {
	var b [2]byte
	copy(b[:], k) // zero-extends keys shorter than the PMNK width
	return PMNK(b[0])<<8 | PMNK(b[1])
}

func (StringKeyCodec) KeyLen(k string) int { return 2 + len(k) }

func (StringKeyCodec) EncodeKey(dst []byte, k string) int {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(len(k)))
	n := copy(dst[2:], k)
	return 2 + n
}

func (StringKeyCodec) DecodeKey(src []byte) (string, int) {
	n := int(binary.LittleEndian.Uint16(src[0:2]))
	return string(src[2 : 2+n]), 2 + n
}

func (StringKeyCodec) MinKey() string { return "" }

// Int64KeyCodec implements KeyCodec[int64]: a fixed-width scalar key wider
// than the PMNK prefix, so the record payload carries the full 8-byte key
// alongside the value.
type Int64KeyCodec struct{}

func (Int64KeyCodec) Compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// PMNK flips the sign bit so two's-complement order becomes unsigned order,
// then keeps the high 16 bits: pmnk(a) < pmnk(b) implies a < b, with equal
// PMNK only when a and b share their top 16 (sign-flipped) bits.
func (Int64KeyCodec) PMNK(k int64) PMNK {
	u := uint64(k) ^ (1 << 63)
	return PMNK(u >> 48)
}

func (Int64KeyCodec) KeyLen(int64) int { return 8 }

func (Int64KeyCodec) EncodeKey(dst []byte, k int64) int {
	binary.BigEndian.PutUint64(dst[0:8], uint64(k)^(1<<63))
	return 8
}

func (Int64KeyCodec) DecodeKey(src []byte) (int64, int) {
	u := binary.BigEndian.Uint64(src[0:8]) ^ (1 << 63)
	return int64(u), 8
}

func (Int64KeyCodec) MinKey() int64 { return -1 << 63 }

// BytesValueCodec implements ValueCodec[[]byte] with a 16-bit length prefix.
type BytesValueCodec struct{}

func (BytesValueCodec) ValueLen(v []byte) int { return 2 + len(v) }

func (BytesValueCodec) EncodeValue(dst []byte, v []byte) int {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(len(v)))
	n := copy(dst[2:], v)
	return 2 + n
}

func (BytesValueCodec) DecodeValue(src []byte) ([]byte, int) {
	n := int(binary.LittleEndian.Uint16(src[0:2]))
	out := make([]byte, n)
	copy(out, src[2:2+n])
	return out, 2 + n
}

// StringValueCodec implements ValueCodec[string], same wire shape as
// BytesValueCodec.
type StringValueCodec struct{}

func (StringValueCodec) ValueLen(v string) int { return 2 + len(v) }

func (StringValueCodec) EncodeValue(dst []byte, v string) int {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(len(v)))
	n := copy(dst[2:], v)
	return 2 + n
}

func (StringValueCodec) DecodeValue(src []byte) (string, int) {
	n := int(binary.LittleEndian.Uint16(src[0:2]))
	return string(src[2 : 2+n]), 2 + n
}

// NodePointer is an opaque node handle: branch slots hold the handle of
// their child, foster pointers hold the handle of a foster child. It is a
// process-heap table index, not a raw Go pointer, so a child reference is
// a plain fixed-width value that can be encoded into a page like any
// other value and never confuses the garbage collector about what a
// slotted page's byte array contains.
type NodePointer uint64

// nilPointer means "no child" / "no foster child".
const nilPointer NodePointer = 0

// pointerValueCodec implements ValueCodec[NodePointer] for branch node
// separator values.
type pointerValueCodec struct{}

func (pointerValueCodec) ValueLen(NodePointer) int { return 8 }

func (pointerValueCodec) EncodeValue(dst []byte, v NodePointer) int {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(v))
	return 8
}

func (pointerValueCodec) DecodeValue(src []byte) (NodePointer, int) {
	return NodePointer(binary.LittleEndian.Uint64(src[0:8])), 8
}
