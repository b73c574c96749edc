package tile

import "github.com/example/tile_itc/core"

// Sites stores the atoms of a tile's owned sites and cache ring.
type Sites struct {
	rect  core.Rect
	atoms []core.Atom
}

// NewSites returns a grid of empty atoms covering g's grid rectangle.
func NewSites(g core.Geometry) *Sites {
	r := g.GridRect()
	s := &Sites{rect: r, atoms: make([]core.Atom, r.Area())}
	for i := range s.atoms {
		s.atoms[i] = core.EmptyAtom
	}
	return s
}

// Rect returns the covered rectangle.
func (s *Sites) Rect() core.Rect { return s.rect }

// Get returns the atom at p, or the zero atom when p is off the grid.
func (s *Sites) Get(p core.SPoint) core.Atom {
	idx := s.rect.Index(p)
	if idx < 0 {
		return core.Atom{}
	}
	return s.atoms[idx]
}

// Set stores a at p and reports whether p is on the grid.
func (s *Sites) Set(p core.SPoint, a core.Atom) bool {
	idx := s.rect.Index(p)
	if idx < 0 {
		return false
	}
	s.atoms[idx] = a
	return true
}

// Fill assigns fn(p) to every site of r that is on the grid.
func (s *Sites) Fill(r core.Rect, fn func(p core.SPoint) core.Atom) {
	r.Intersect(s.rect).Each(func(p core.SPoint) bool {
		s.Set(p, fn(p))
		return true
	})
}

// Digest fingerprints the atoms of r.
func (s *Sites) Digest(r core.Rect) [32]byte {
	return core.Digest(r, s.Get)
}
