// Package simulator holds the scheduled fault plan driven alongside a
// tile grid simulation.
package simulator

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/example/tile_itc/core"
)

// FaultKind names a scheduled disturbance.
type FaultKind string

const (
	// FaultReset forces one link of a tile back to SHUT.
	FaultReset FaultKind = "reset"
	// FaultSever cuts the wire behind one link.
	FaultSever FaultKind = "sever"
	// FaultRestore reconnects a severed wire.
	FaultRestore FaultKind = "restore"
	// FaultDemote drops a tile's advertised protocol level to zero on one link.
	FaultDemote FaultKind = "demote"
	// FaultPromote restores the configured protocol level.
	FaultPromote FaultKind = "promote"
)

func (k FaultKind) valid() bool {
	switch k {
	case FaultReset, FaultSever, FaultRestore, FaultDemote, FaultPromote:
		return true
	}
	return false
}

// Fault is one disturbance applied to the link of Tile toward Dir.
type Fault struct {
	Tick int64
	Kind FaultKind
	Tile int
	Dir  core.Dir
}

func (f Fault) String() string {
	return fmt.Sprintf("%d:%s:%d:%v", f.Tick, f.Kind, f.Tile, f.Dir)
}

// ParseFault reads the "tick:kind:tile:dir" form, e.g. "200:sever:3:NE".
func ParseFault(s string) (Fault, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 {
		return Fault{}, fmt.Errorf("fault %q: want tick:kind:tile:dir", s)
	}
	tick, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || tick < 0 {
		return Fault{}, fmt.Errorf("fault %q: bad tick", s)
	}
	kind := FaultKind(strings.ToLower(parts[1]))
	if !kind.valid() {
		return Fault{}, fmt.Errorf("fault %q: unknown kind %q", s, parts[1])
	}
	tile, err := strconv.Atoi(parts[2])
	if err != nil || tile < 0 {
		return Fault{}, fmt.Errorf("fault %q: bad tile", s)
	}
	dir, err := core.ParseDir(strings.ToUpper(parts[3]))
	if err != nil {
		return Fault{}, fmt.Errorf("fault %q: %w", s, err)
	}
	if !dir.IsITC() {
		return Fault{}, fmt.Errorf("fault %q: %v has no link", s, dir)
	}
	return Fault{Tick: tick, Kind: kind, Tile: tile, Dir: dir}, nil
}

// FaultHandler applies faults and determines whether processing should continue.
type FaultHandler interface {
	HandleFault(Fault) bool
}

// FaultHandlerFunc adapts a function into a FaultHandler.
type FaultHandlerFunc func(Fault) bool

// HandleFault calls the underlying function.
func (f FaultHandlerFunc) HandleFault(x Fault) bool {
	if f == nil {
		return true
	}
	return f(x)
}

// Plan hands out faults in tick order; faults sharing a tick keep their
// configured order.
type Plan struct {
	faults []Fault
	next   int
}

// NewPlan builds a plan from faults in any order.
func NewPlan(faults []Fault) *Plan {
	sorted := make([]Fault, len(faults))
	copy(sorted, faults)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })
	return &Plan{faults: sorted}
}

// ParsePlan parses every entry with ParseFault.
func ParsePlan(entries []string) (*Plan, error) {
	faults := make([]Fault, 0, len(entries))
	for _, s := range entries {
		f, err := ParseFault(s)
		if err != nil {
			return nil, err
		}
		faults = append(faults, f)
	}
	return NewPlan(faults), nil
}

// Remaining reports how many faults have not been handed out.
func (p *Plan) Remaining() int {
	if p == nil {
		return 0
	}
	return len(p.faults) - p.next
}

// NextDue reports the tick of the next fault.
func (p *Plan) NextDue() (int64, bool) {
	if p.Remaining() == 0 {
		return 0, false
	}
	return p.faults[p.next].Tick, true
}

// DrainDue dispatches every fault due at or before now until the handler
// asks to stop.
func (p *Plan) DrainDue(now int64, h FaultHandler) bool {
	if p == nil || h == nil {
		return true
	}
	for p.next < len(p.faults) && p.faults[p.next].Tick <= now {
		f := p.faults[p.next]
		p.next++
		if !h.HandleFault(f) {
			return false
		}
	}
	return true
}
