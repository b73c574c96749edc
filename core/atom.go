package core

import "encoding/binary"

// AtomBytes is the wire width of one atom (96 bits).
const AtomBytes = 12

const (
	// EmptyType is the element type of vacant sites.
	EmptyType uint16 = 0
	// IllegalType never appears in a sane atom.
	IllegalType uint16 = 0xFFFF

	checkSeed = 0xA5
)

// Atom is the opaque contents of one site: a 16-bit element type, nine
// bytes of state, and a trailing check byte.
type Atom [AtomBytes]byte

// EmptyAtom is the sealed vacant atom.
var EmptyAtom = MakeAtom(EmptyType, 0)

// MakeAtom builds and seals an atom carrying data in its state bytes.
func MakeAtom(typ uint16, data uint64) Atom {
	var a Atom
	binary.BigEndian.PutUint16(a[0:2], typ)
	binary.BigEndian.PutUint64(a[2:10], data)
	a.Seal()
	return a
}

// Type returns the element type.
func (a Atom) Type() uint16 {
	return binary.BigEndian.Uint16(a[0:2])
}

// Data returns the first eight state bytes.
func (a Atom) Data() uint64 {
	return binary.BigEndian.Uint64(a[2:10])
}

// Seal recomputes the check byte after the atom has been edited.
func (a *Atom) Seal() {
	a[AtomBytes-1] = a.check()
}

// IsSane reports whether the atom may be written into live site state.
func (a Atom) IsSane() bool {
	return a[AtomBytes-1] == a.check() && a.Type() != IllegalType
}

func (a Atom) check() byte {
	sum := byte(checkSeed)
	for _, b := range a[:AtomBytes-1] {
		sum = (sum << 1) | (sum >> 7)
		sum ^= b
	}
	return sum
}
