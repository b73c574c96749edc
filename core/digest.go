package core

import "golang.org/x/crypto/sha3"

// Digest fingerprints the atoms of r. Coordinates are hashed relative to
// r.Min so the same region seen from two tile frames hashes equally.
func Digest(r Rect, get func(SPoint) Atom) [32]byte {
	h := sha3.New256()
	r.Each(func(p SPoint) bool {
		rel := p.Sub(r.Min)
		a := get(p)
		h.Write([]byte{byte(rel.X), byte(rel.Y)})
		h.Write(a[:])
		return true
	})
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
