package core

import "fmt"

// LinkState is the negotiated state of one inter-tile link.
type LinkState uint8

const (
	// LinkShut means no remote interaction; the tile runs purely locally.
	LinkShut LinkState = iota
	// LinkDrain waits for the peer to leave SHUT and for local windows to finish.
	LinkDrain
	// LinkCacheXG streams the border cache in both directions.
	LinkCacheXG
	// LinkOpen permits spanning events.
	LinkOpen
)

// LinkStateCount is the number of link states.
const LinkStateCount = 4

var linkStateNames = [LinkStateCount]string{"SHUT", "DRAIN", "CACHEXG", "OPEN"}

func (s LinkState) String() string {
	if s >= LinkStateCount {
		return fmt.Sprintf("LinkState(%d)", uint8(s))
	}
	return linkStateNames[s]
}

// Valid reports whether s is a defined state.
func (s LinkState) Valid() bool {
	return s < LinkStateCount
}

// CircuitState tracks one lock attempt through a circuit slot.
type CircuitState uint8

const (
	CircuitUnused CircuitState = iota
	CircuitBound
	CircuitRung
	CircuitAnswered
	CircuitDeclined
	CircuitDropped
	CircuitTalked
	CircuitHungup
)

var circuitStateNames = [...]string{"UNUSED", "BOUND", "RUNG", "ANSWERED", "DECLINED", "DROPPED", "TALKED", "HUNGUP"}

func (s CircuitState) String() string {
	if int(s) >= len(circuitStateNames) {
		return fmt.Sprintf("CircuitState(%d)", uint8(s))
	}
	return circuitStateNames[s]
}

// Held reports whether the circuit grants cache-write permission.
func (s CircuitState) Held() bool {
	return s == CircuitAnswered || s == CircuitTalked
}

// NeedsRelease reports whether both peers must exchange a release before
// the slot can be reused.
func (s CircuitState) NeedsRelease() bool {
	return s == CircuitRung || s == CircuitAnswered || s == CircuitTalked
}
