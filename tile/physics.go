package tile

import (
	"math/rand/v2"

	"github.com/example/tile_itc/core"
)

// Physics is the event rule applied inside a locked window.
type Physics interface {
	Execute(w *Window)
}

// PhysicsFunc adapts a function to Physics.
type PhysicsFunc func(w *Window)

func (f PhysicsFunc) Execute(w *Window) { f(w) }

// Window is the view an event has of its disc. Writes are recorded so
// they can be shipped to the neighbors holding a lock.
type Window struct {
	sites   *Sites
	disc    core.Disc
	rng     *rand.Rand
	changed []core.SPoint
	seen    map[core.SPoint]struct{}
}

func newWindow(sites *Sites, disc core.Disc, rng *rand.Rand) *Window {
	return &Window{sites: sites, disc: disc, rng: rng, seen: make(map[core.SPoint]struct{})}
}

func (w *Window) Center() core.SPoint { return w.disc.Center }
func (w *Window) Radius() int         { return w.disc.Radius }
func (w *Window) Rand() *rand.Rand    { return w.rng }

// Contains reports whether p is addressable from this window.
func (w *Window) Contains(p core.SPoint) bool {
	return w.disc.Contains(p) && w.sites.Rect().Contains(p)
}

// Get returns the atom at p, or the zero atom outside the window.
func (w *Window) Get(p core.SPoint) core.Atom {
	if !w.Contains(p) {
		return core.Atom{}
	}
	return w.sites.Get(p)
}

// Set writes a sane atom at p. It reports false outside the window or
// for an insane atom.
func (w *Window) Set(p core.SPoint, a core.Atom) bool {
	if !w.Contains(p) || !a.IsSane() {
		return false
	}
	if w.sites.Get(p) == a {
		return true
	}
	w.sites.Set(p, a)
	if _, ok := w.seen[p]; !ok {
		w.seen[p] = struct{}{}
		w.changed = append(w.changed, p)
	}
	return true
}

// Changed lists written sites in first-write order.
func (w *Window) Changed() []core.SPoint { return w.changed }

// SwapPhysics moves the center atom to a random site of the window.
type SwapPhysics struct{}

func (SwapPhysics) Execute(w *Window) {
	r := w.Radius()
	if r == 0 {
		return
	}
	dx := w.Rand().IntN(2*r+1) - r
	rest := r - abs(dx)
	dy := w.Rand().IntN(2*rest+1) - rest
	c := w.Center()
	q := core.Pt(c.X+dx, c.Y+dy)
	if q == c || !w.Contains(q) {
		return
	}
	a, b := w.Get(c), w.Get(q)
	w.Set(c, b)
	w.Set(q, a)
}

// CounterPhysics bumps the data of every non-empty atom in the window.
type CounterPhysics struct{}

func (CounterPhysics) Execute(w *Window) {
	w.disc.Each(w.sites.Rect(), func(p core.SPoint) bool {
		a := w.Get(p)
		if a.Type() != core.EmptyType {
			w.Set(p, core.MakeAtom(a.Type(), a.Data()+1))
		}
		return true
	})
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
