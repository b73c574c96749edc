package tile

import (
	"fmt"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/queue"
)

// WindowState is the lifecycle stage of an event window.
type WindowState uint8

const (
	WindowFree WindowState = iota
	WindowAcquiring
	WindowExecuting
	WindowAborting
	WindowPassive
)

func (s WindowState) String() string {
	switch s {
	case WindowFree:
		return "FREE"
	case WindowAcquiring:
		return "ACQUIRING"
	case WindowExecuting:
		return "EXECUTING"
	case WindowAborting:
		return "ABORTING"
	case WindowPassive:
		return "PASSIVE"
	}
	return fmt.Sprintf("WindowState(%d)", uint8(s))
}

// EWHandle names an active window slot at one point in its life. A handle
// goes stale as soon as the slot is released.
type EWHandle struct {
	slot int32
	gen  uint32
}

// Valid reports whether the handle was ever issued.
func (h EWHandle) Valid() bool { return h.gen != 0 }

// Slot returns the arena slot.
func (h EWHandle) Slot() int { return int(h.slot) }

func (h EWHandle) String() string {
	return fmt.Sprintf("ew%d.%d", h.slot, h.gen)
}

// EventWindow is a disc of sites an event reads and writes atomically.
// Active windows originate locally and hold one circuit number per
// neighbor they touch; passive windows mirror a neighbor's granted lock.
type EventWindow struct {
	handle   EWHandle
	passive  bool
	state    WindowState
	disc     core.Disc
	circuits [core.DirCount]int8
	entry    queue.EntryID
	dir      core.Dir
	number   int
	started  int64
}

func (w *EventWindow) Handle() EWHandle   { return w.handle }
func (w *EventWindow) Passive() bool      { return w.passive }
func (w *EventWindow) State() WindowState { return w.state }
func (w *EventWindow) Disc() core.Disc    { return w.disc }
func (w *EventWindow) Started() int64     { return w.started }

// Circuit returns the circuit number held toward d.
func (w *EventWindow) Circuit(d core.Dir) (int, bool) {
	n := w.circuits[d]
	return int(n), n >= 0
}

// CircuitCount returns how many neighbors the window is bound to.
func (w *EventWindow) CircuitCount() int {
	count := 0
	for _, n := range w.circuits {
		if n >= 0 {
			count++
		}
	}
	return count
}

func (w *EventWindow) clearCircuits() {
	for i := range w.circuits {
		w.circuits[i] = -1
	}
}

// windowArena is a fixed pool of active window slots addressed by
// generation-checked handles.
type windowArena struct {
	slots []EventWindow
	free  []int32
}

func newWindowArena(size int) windowArena {
	a := windowArena{slots: make([]EventWindow, size), free: make([]int32, 0, size)}
	for i := size - 1; i >= 0; i-- {
		a.slots[i].handle.slot = int32(i)
		a.slots[i].clearCircuits()
		a.free = append(a.free, int32(i))
	}
	return a
}

func (a *windowArena) alloc() (*EventWindow, bool) {
	if len(a.free) == 0 {
		return nil, false
	}
	slot := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	w := &a.slots[slot]
	w.handle.gen++
	if w.handle.gen == 0 {
		w.handle.gen = 1
	}
	return w, true
}

func (a *windowArena) get(h EWHandle) *EventWindow {
	if !h.Valid() || int(h.slot) >= len(a.slots) {
		return nil
	}
	w := &a.slots[h.slot]
	if w.handle != h || w.state == WindowFree {
		return nil
	}
	return w
}

func (a *windowArena) release(w *EventWindow) {
	if w.state == WindowFree {
		invariant("double release of %v", w.handle)
	}
	handle := w.handle
	*w = EventWindow{handle: handle}
	w.clearCircuits()
	a.free = append(a.free, handle.slot)
}

func (a *windowArena) inUse() int {
	return len(a.slots) - len(a.free)
}

// each visits occupied slots until fn returns false.
func (a *windowArena) each(fn func(w *EventWindow) bool) {
	for i := range a.slots {
		if a.slots[i].state == WindowFree {
			continue
		}
		if !fn(&a.slots[i]) {
			return
		}
	}
}
