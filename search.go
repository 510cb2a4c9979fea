package fosterbtree

// binarySearch searches the slot vector keyed on PMNK. When pmnk is not
// present the returned pos is the first index whose PMNK is >= pmnk (the
// insertion point); if pos == n, the key would sort past every slot.
// Tie-breaking on equal PMNK (there may be several slots sharing a PMNK
// prefix) is left to the caller.
func binarySearch[K any](p *Page[K], pmnk PMNK) (pos uint16, foundExactPMNK bool) {
	n := p.slotCount()
	lo, hi := uint16(0), n
	for lo < hi {
		mid := lo + (hi-lo)/2
		s := p.getSlot(mid)
		switch {
		case s.pmnk < pmnk:
			lo = mid + 1
		case s.pmnk > pmnk:
			hi = mid
		default:
			// Walk back to the first slot sharing this PMNK so callers see
			// every candidate when they break ties by full key.
			for mid > 0 && p.getSlot(mid-1).pmnk == pmnk {
				mid--
			}
			return mid, true
		}
	}
	return lo, false
}
