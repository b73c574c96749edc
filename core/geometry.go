package core

import "fmt"

// MaxRadius is the largest event-window radius the RING encoding can carry.
const MaxRadius = 7

// maxSpan bounds grid coordinates so that RING centers fit a signed byte.
const maxSpan = 128

// Geometry describes the site layout shared by every tile of a grid: each
// tile owns Width×Height sites and caches a ring of Radius sites around
// them. Tiles sit on a brick lattice where rows are offset by half a tile.
type Geometry struct {
	Width  int
	Height int
	Radius int
}

// NewGeometry validates and returns a tile geometry.
func NewGeometry(width, height, radius int) (Geometry, error) {
	g := Geometry{Width: width, Height: height, Radius: radius}
	return g, g.Validate()
}

// Validate checks that the cache ring only ever reaches direct neighbors.
func (g Geometry) Validate() error {
	if g.Radius < 1 || g.Radius > MaxRadius {
		return fmt.Errorf("radius must be within [1,%d], got %d", MaxRadius, g.Radius)
	}
	if g.Width%2 != 0 {
		return fmt.Errorf("width must be even, got %d", g.Width)
	}
	if g.Width < 2*g.Radius {
		return fmt.Errorf("width %d too small for radius %d", g.Width, g.Radius)
	}
	if g.Height < g.Radius {
		return fmt.Errorf("height %d too small for radius %d", g.Height, g.Radius)
	}
	if g.Width+2*g.Radius > maxSpan || g.Height+2*g.Radius > maxSpan {
		return fmt.Errorf("tile %dx%d with radius %d exceeds wire coordinate range", g.Width, g.Height, g.Radius)
	}
	return nil
}

// OwnedRect is the set of sites the tile is authoritative for.
func (g Geometry) OwnedRect() Rect {
	return R(0, 0, g.Width, g.Height)
}

// GridRect is the owned rect plus the surrounding cache ring.
func (g Geometry) GridRect() Rect {
	return R(-g.Radius, -g.Radius, g.Width+g.Radius, g.Height+g.Radius)
}

// NeighborOffset returns the origin of the neighbor in direction d,
// expressed in this tile's frame.
func (g Geometry) NeighborOffset(d Dir) SPoint {
	switch d {
	case DirE:
		return Pt(g.Width, 0)
	case DirW:
		return Pt(-g.Width, 0)
	case DirNE:
		return Pt(g.Width/2, -g.Height)
	case DirNW:
		return Pt(-g.Width/2, -g.Height)
	case DirSE:
		return Pt(g.Width/2, g.Height)
	case DirSW:
		return Pt(-g.Width/2, g.Height)
	}
	panic(fmt.Sprintf("no neighbor in direction %v", d))
}

// NeighborOwned returns the sites owned by the neighbor in direction d.
func (g Geometry) NeighborOwned(d Dir) Rect {
	return g.OwnedRect().Translate(g.NeighborOffset(d))
}

// CacheRect is the part of our cache ring mirrored from neighbor d.
func (g Geometry) CacheRect(d Dir) Rect {
	return g.GridRect().Intersect(g.NeighborOwned(d))
}

// VisibleRect is the part of our owned sites that neighbor d caches.
func (g Geometry) VisibleRect(d Dir) Rect {
	return g.OwnedRect().Intersect(g.GridRect().Translate(g.NeighborOffset(d)))
}

// SharedRect is every site that both this tile and neighbor d hold.
func (g Geometry) SharedRect(d Dir) Rect {
	return g.GridRect().Intersect(g.GridRect().Translate(g.NeighborOffset(d)))
}

// ToWire encodes a local coordinate as the unsigned pair carried in
// cache-update triples.
func (g Geometry) ToWire(p SPoint) (uint8, uint8, bool) {
	x, y := p.X+g.Radius, p.Y+g.Radius
	if x < 0 || x > 0xFF || y < 0 || y > 0xFF {
		return 0, 0, false
	}
	return uint8(x), uint8(y), true
}

// FromWire decodes a triple coordinate sent by the neighbor in direction
// from into this tile's frame.
func (g Geometry) FromWire(x, y uint8, from Dir) SPoint {
	return Pt(int(x)-g.Radius, int(y)-g.Radius).Add(g.NeighborOffset(from))
}
