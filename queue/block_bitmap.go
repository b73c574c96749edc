package queue

// blockBitmap stores the block bits of one queue entry. Most entries wait
// on fewer than 64 reasons so the first word is inline.
type blockBitmap struct {
	low  uint64
	high []uint64
}

func (b *blockBitmap) word(index BlockIndex, grow bool) *uint64 {
	w := int(index) / 64
	if w == 0 {
		return &b.low
	}
	w--
	if w >= len(b.high) {
		if !grow {
			return nil
		}
		b.high = append(b.high, make([]uint64, w+1-len(b.high))...)
	}
	return &b.high[w]
}

func (b *blockBitmap) set(index BlockIndex) bool {
	w := b.word(index, true)
	mask := uint64(1) << (uint(index) % 64)
	old := *w
	*w |= mask
	return old&mask == 0
}

func (b *blockBitmap) clear(index BlockIndex) bool {
	w := b.word(index, false)
	if w == nil {
		return false
	}
	mask := uint64(1) << (uint(index) % 64)
	old := *w
	*w &^= mask
	return old&mask != 0
}

func (b *blockBitmap) test(index BlockIndex) bool {
	w := b.word(index, false)
	return w != nil && *w&(uint64(1)<<(uint(index)%64)) != 0
}

func (b *blockBitmap) isZero() bool {
	if b.low != 0 {
		return false
	}
	for _, w := range b.high {
		if w != 0 {
			return false
		}
	}
	return true
}
