package tile

import (
	"errors"
	"fmt"

	"github.com/example/tile_itc/core"
)

// Link-fatal protocol violations.
var (
	ErrWrongDirection    = errors.New("packet addressed to another direction")
	ErrBadLinkState      = errors.New("undefined link state in packet")
	ErrPeerAhead         = errors.New("peer advanced past DRAIN while we are shut")
	ErrPeerBehind        = errors.New("peer fell back to an earlier state")
	ErrUnexpectedLink    = errors.New("link packet not valid in current state")
	ErrCircuitBeforeOpen = errors.New("circuit traffic before link open")
	ErrCircuitState      = errors.New("operation invalid for circuit state")
	ErrBadRing           = errors.New("lock request outside shared region")
	ErrOutOfBounds       = errors.New("site outside permitted region")
	ErrInsaneAtom        = errors.New("atom failed sanity check")
	ErrCacheComplete     = errors.New("cache data after exchange completed")
)

// Reset causes that do not come from a bad packet.
var (
	ErrPeerIncompatible = errors.New("peer protocol level incompatible")
	ErrDrainBusy        = errors.New("event windows still active while draining")
	ErrDrainStalled     = errors.New("peer never left SHUT")
	ErrForced           = errors.New("reset requested")
)

// Reasons an event window did not run.
var (
	ErrBadWindow      = errors.New("window outside owned sites")
	ErrWindowConflict = errors.New("window overlaps a held window")
	ErrLinkBusy       = errors.New("window touches a link that is not open")
	ErrNoSlot         = errors.New("no free event window slot")
	ErrNoCircuit      = errors.New("no free circuit")
	ErrDeclined       = errors.New("neighbor declined lock")
	ErrYoinked        = errors.New("lost lock tie-break")
	ErrLinkReset      = errors.New("link reset")
)

// ProtocolError wraps a violation with the link and operation it hit.
type ProtocolError struct {
	Dir core.Dir
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("itc %v: %s: %v", e.Dir, e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolErr(d core.Dir, op string, err error) error {
	return &ProtocolError{Dir: d, Op: op, Err: err}
}

// InvariantError is the panic value raised when bookkeeping is found
// inconsistent. It signals a defect, never a remote fault.
type InvariantError struct {
	What string
}

func (e *InvariantError) Error() string {
	return "tile invariant violated: " + e.What
}

func invariant(format string, args ...any) {
	panic(&InvariantError{What: fmt.Sprintf(format, args...)})
}
