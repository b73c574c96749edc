package core

import "fmt"

// SPoint is a signed site coordinate in a tile's local frame. The owned
// sites of a tile start at the origin.
type SPoint struct {
	X int
	Y int
}

// Pt is shorthand for SPoint{x, y}.
func Pt(x, y int) SPoint {
	return SPoint{X: x, Y: y}
}

func (p SPoint) Add(q SPoint) SPoint {
	return SPoint{X: p.X + q.X, Y: p.Y + q.Y}
}

func (p SPoint) Sub(q SPoint) SPoint {
	return SPoint{X: p.X - q.X, Y: p.Y - q.Y}
}

// Manhattan returns the taxicab distance between p and q.
func (p SPoint) Manhattan(q SPoint) int {
	return abs(p.X-q.X) + abs(p.Y-q.Y)
}

func (p SPoint) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Rect is a half-open rectangle [Min, Max).
type Rect struct {
	Min SPoint
	Max SPoint
}

// R builds the rectangle [x0,x1)×[y0,y1).
func R(x0, y0, x1, y1 int) Rect {
	return Rect{Min: Pt(x0, y0), Max: Pt(x1, y1)}
}

// Empty reports whether the rectangle contains no sites.
func (r Rect) Empty() bool {
	return r.Min.X >= r.Max.X || r.Min.Y >= r.Max.Y
}

// Area returns the number of sites in r.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return (r.Max.X - r.Min.X) * (r.Max.Y - r.Min.Y)
}

func (r Rect) Contains(p SPoint) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

// Intersect returns the overlap of r and o, which may be empty.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		Min: Pt(max(r.Min.X, o.Min.X), max(r.Min.Y, o.Min.Y)),
		Max: Pt(min(r.Max.X, o.Max.X), min(r.Max.Y, o.Max.Y)),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// Translate shifts r by p.
func (r Rect) Translate(p SPoint) Rect {
	return Rect{Min: r.Min.Add(p), Max: r.Max.Add(p)}
}

// Index returns the raster position of p inside r, or -1.
func (r Rect) Index(p SPoint) int {
	if !r.Contains(p) {
		return -1
	}
	return (p.Y-r.Min.Y)*(r.Max.X-r.Min.X) + (p.X - r.Min.X)
}

// At is the inverse of Index.
func (r Rect) At(idx int) SPoint {
	w := r.Max.X - r.Min.X
	return Pt(r.Min.X+idx%w, r.Min.Y+idx/w)
}

// Each visits the sites of r in raster order until fn returns false.
func (r Rect) Each(fn func(p SPoint) bool) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if !fn(Pt(x, y)) {
				return
			}
		}
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("[%v-%v)", r.Min, r.Max)
}

// Disc is a Manhattan ball: every site within Radius steps of Center.
type Disc struct {
	Center SPoint
	Radius int
}

func (d Disc) Contains(p SPoint) bool {
	return d.Center.Manhattan(p) <= d.Radius
}

// Bounds returns the smallest rectangle covering d.
func (d Disc) Bounds() Rect {
	return R(d.Center.X-d.Radius, d.Center.Y-d.Radius, d.Center.X+d.Radius+1, d.Center.Y+d.Radius+1)
}

// Conflicts reports whether d and o share at least one site.
func (d Disc) Conflicts(o Disc) bool {
	return d.Center.Manhattan(o.Center) <= d.Radius+o.Radius
}

// Touches reports whether any site of d lies inside r.
func (d Disc) Touches(r Rect) bool {
	if r.Empty() {
		return false
	}
	nearest := Pt(clamp(d.Center.X, r.Min.X, r.Max.X-1), clamp(d.Center.Y, r.Min.Y, r.Max.Y-1))
	return d.Contains(nearest)
}

// Each visits the sites of d that also lie in clip, in raster order.
func (d Disc) Each(clip Rect, fn func(p SPoint) bool) {
	d.Bounds().Intersect(clip).Each(func(p SPoint) bool {
		if !d.Contains(p) {
			return true
		}
		return fn(p)
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
