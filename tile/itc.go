package tile

import (
	"errors"
	"fmt"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/hooks"
	"github.com/example/tile_itc/link"
)

// LinkStats counts traffic and faults on one link.
type LinkStats struct {
	Resets          uint64 `json:"resets"`
	Opens           uint64 `json:"opens"`
	PacketsShipped  uint64 `json:"packets_shipped"`
	PacketsReceived uint64 `json:"packets_received"`
	Discarded       uint64 `json:"discarded"`
	AtomsSent       uint64 `json:"atoms_sent"`
	AtomsReceived   uint64 `json:"atoms_received"`
	LocksGranted    uint64 `json:"locks_granted"`
	LocksRefused    uint64 `json:"locks_refused"`
	LastCause       string `json:"last_cause,omitempty"`
}

// T2ITC runs the link protocol toward one neighbor. It owns the link
// state, both circuit tables and the passive windows granted to the peer.
type T2ITC struct {
	tile  *Tile
	dir   core.Dir
	ch    link.Channel
	state core.LinkState

	timerGen uint64
	active   [core.CircuitCount]Circuit
	passive  [core.CircuitCount]Circuit
	claims   [core.CircuitCount]EventWindow
	free     []int

	recvComplete bool
	sentComplete bool
	peerLeftShut bool
	cursor       int
	drainSince   int64
	resetting    bool

	stats LinkStats
}

func newT2ITC(t *Tile, d core.Dir) *T2ITC {
	itc := &T2ITC{tile: t, dir: d, free: make([]int, 0, core.CircuitCount)}
	for i := range itc.active {
		itc.active[i].number = i
		itc.passive[i].number = i
		itc.passive[i].passive = true
	}
	itc.reinitCircuits()
	return itc
}

func (itc *T2ITC) Dir() core.Dir                { return itc.dir }
func (itc *T2ITC) State() core.LinkState        { return itc.state }
func (itc *T2ITC) Attached() bool               { return itc.ch != nil }
func (itc *T2ITC) Stats() LinkStats             { return itc.stats }
func (itc *T2ITC) FreeCircuits() int            { return len(itc.free) }
func (itc *T2ITC) ActiveCircuit(n int) Circuit  { return itc.active[n] }
func (itc *T2ITC) PassiveCircuit(n int) Circuit { return itc.passive[n] }

// LockNeeded reports whether windows touching this link must lock it.
func (itc *T2ITC) LockNeeded() bool { return itc.state >= core.LinkOpen }

// Registered counts windows that still hold a circuit on this link.
func (itc *T2ITC) Registered() int {
	count := len(itc.registeredActive())
	for i := range itc.claims {
		if itc.claims[i].state != WindowFree {
			count++
		}
	}
	return count
}

// borderWindows counts local windows, locked or not, whose disc reaches
// the sites shared with this neighbor.
func (itc *T2ITC) borderWindows() int {
	g := itc.tile.cfg.Geometry
	vis, cache := g.VisibleRect(itc.dir), g.CacheRect(itc.dir)
	count := 0
	itc.tile.arena.each(func(w *EventWindow) bool {
		if w.disc.Touches(vis) || w.disc.Touches(cache) {
			count++
		}
		return true
	})
	return count
}

func (itc *T2ITC) registeredActive() []EWHandle {
	var out []EWHandle
	for i := range itc.active {
		c := &itc.active[i]
		if c.window.Valid() {
			out = append(out, c.window)
		}
	}
	return out
}

func (itc *T2ITC) compatible() bool {
	return itc.ch != nil && itc.ch.PeerLevel() >= itc.tile.cfg.MinPeerLevel
}

func (itc *T2ITC) reinitCircuits() {
	itc.free = itc.free[:0]
	for i := range itc.active {
		itc.active[i].reinit()
		itc.passive[i].reinit()
		itc.claims[i] = EventWindow{}
		itc.claims[i].clearCircuits()
		itc.free = append(itc.free, i)
	}
}

func (itc *T2ITC) start() {
	if itc.ch == nil {
		return
	}
	if err := itc.ch.Open(); err != nil {
		itc.tile.log.Err().
			Int("tile", itc.tile.id).
			Stringer("dir", itc.dir).
			Err(err).
			Log("open channel")
	}
	itc.scheduleWait(WaitShortRandom)
}

func (itc *T2ITC) scheduleWait(k Wait) {
	if itc.ch == nil {
		return
	}
	itc.timerGen++
	gen := itc.timerGen
	t := itc.tile
	t.sched.After(t.cfg.Waits.delay(k, t.rng), func() {
		if gen != itc.timerGen || !t.running {
			return
		}
		itc.onTimeout()
	})
}

func (itc *T2ITC) onTimeout() {
	switch itc.state {
	case core.LinkShut:
		itc.timeoutShut()
	case core.LinkDrain:
		itc.timeoutDrain()
	case core.LinkCacheXG:
		itc.timeoutCacheXG()
	case core.LinkOpen:
		itc.timeoutOpen()
	}
}

func (itc *T2ITC) setState(s core.LinkState) {
	if s == itc.state {
		return
	}
	from := itc.state
	itc.state = s
	t := itc.tile
	if s == core.LinkOpen {
		itc.stats.Opens++
	}
	t.log.Debug().
		Int("tile", t.id).
		Stringer("dir", itc.dir).
		Stringer("from", from).
		Stringer("to", s).
		Log("link state")
	t.hookErr(t.broker.EmitLinkState(&hooks.LinkStateContext{
		Tile: t.id,
		Dir:  itc.dir,
		From: from,
		To:   s,
		Tick: t.sched.Now(),
	}))
}

func (itc *T2ITC) timeoutShut() {
	if !itc.compatible() {
		itc.scheduleWait(WaitShortRandom)
		return
	}
	if err := itc.sendLink(nil); err != nil {
		itc.scheduleWait(WaitShortRandom)
		return
	}
	itc.drainSince = itc.tile.sched.Now()
	itc.setState(core.LinkDrain)
	itc.scheduleWait(WaitLong)
}

func (itc *T2ITC) timeoutDrain() {
	if !itc.compatible() {
		itc.reset(ErrPeerIncompatible)
		return
	}
	if itc.Registered() > 0 {
		itc.reset(ErrDrainBusy)
		return
	}
	stalled := itc.tile.sched.Now()-itc.drainSince > itc.tile.cfg.DrainStall
	// windows spawned while SHUT may still write our visible sites
	if itc.borderWindows() > 0 {
		if stalled {
			itc.reset(ErrDrainBusy)
			return
		}
		itc.scheduleWait(WaitShortRandom)
		return
	}
	if !itc.peerLeftShut {
		if stalled {
			itc.reset(ErrDrainStalled)
			return
		}
		itc.scheduleWait(WaitShortRandom)
		return
	}
	itc.cursor = 0
	itc.sentComplete = false
	itc.setState(core.LinkCacheXG)
	itc.scheduleWait(WaitImmediate)
}

func (itc *T2ITC) timeoutCacheXG() {
	if !itc.compatible() {
		itc.reset(ErrPeerIncompatible)
		return
	}
	if !itc.sentComplete {
		if err := itc.shipCache(); err != nil {
			if errors.Is(err, link.ErrFull) {
				itc.scheduleWait(WaitShortRandom)
				return
			}
			itc.reset(err)
			return
		}
	}
	if itc.sentComplete && itc.recvComplete {
		itc.open()
		return
	}
	if itc.sentComplete {
		itc.scheduleWait(WaitFull)
		return
	}
	itc.scheduleWait(WaitImmediate)
}

func (itc *T2ITC) timeoutOpen() {
	if !itc.compatible() {
		itc.reset(ErrPeerIncompatible)
		return
	}
	if err := itc.sendLink(nil); err != nil && !errors.Is(err, link.ErrFull) {
		itc.reset(err)
		return
	}
	itc.scheduleWait(WaitLong)
}

func (itc *T2ITC) open() {
	itc.setState(core.LinkOpen)
	itc.scheduleWait(WaitLong)
}

// Reset forces the link back to SHUT. A nil cause is reported as ErrForced.
func (itc *T2ITC) Reset(cause error) {
	if cause == nil {
		cause = ErrForced
	}
	itc.reset(cause)
}

func (itc *T2ITC) reset(cause error) {
	if itc.resetting {
		return
	}
	itc.resetting = true
	defer func() { itc.resetting = false }()

	t := itc.tile
	prev := itc.state
	if itc.ch != nil {
		_ = itc.ch.Close()
		_ = itc.ch.Open()
	}
	victims := itc.registeredActive()
	itc.reinitCircuits()
	for _, h := range victims {
		t.abortWindow(h, ErrLinkReset)
	}
	itc.recvComplete = false
	itc.sentComplete = false
	itc.peerLeftShut = false
	itc.cursor = 0
	itc.setState(core.LinkShut)
	itc.stats.Resets++
	itc.stats.LastCause = cause.Error()
	itc.scheduleWait(WaitShortRandom)
	t.logReset(itc, prev, cause)
	t.hookErr(t.broker.EmitLinkReset(&hooks.LinkResetContext{
		Tile:  t.id,
		Dir:   itc.dir,
		State: prev,
		Cause: cause,
		Tick:  t.sched.Now(),
	}))
}

// Poll handles up to budget inbound packets and returns how many it read.
// Any violation resets the link and ends the poll.
func (itc *T2ITC) Poll(budget int) int {
	if itc.ch == nil {
		return 0
	}
	epoch := itc.stats.Resets
	handled := 0
	for handled < budget {
		raw, err := itc.ch.ReadPacket()
		if errors.Is(err, link.ErrNoData) {
			break
		}
		if err != nil {
			itc.reset(err)
			break
		}
		handled++
		itc.stats.PacketsReceived++
		if err := itc.handlePacket(raw); err != nil {
			itc.reset(err)
			break
		}
		if itc.stats.Resets != epoch {
			break
		}
	}
	return handled
}

func (itc *T2ITC) handlePacket(raw []byte) error {
	pkt, err := core.ParsePacket(raw)
	if err != nil {
		return protocolErr(itc.dir, "parse", err)
	}
	if pkt.Header.Dir != itc.dir.Opposite() {
		return protocolErr(itc.dir, "route", fmt.Errorf("%w: header says %v", ErrWrongDirection, pkt.Header.Dir))
	}
	if pkt.Header.Sub.IsCircuit() {
		return itc.handleCircuit(pkt.Header, pkt.Payload)
	}
	return itc.handleLink(core.LinkState(pkt.Header.Arg), pkt.Payload)
}

func (itc *T2ITC) handleLink(peer core.LinkState, payload []byte) error {
	if !peer.Valid() {
		return protocolErr(itc.dir, "link", ErrBadLinkState)
	}
	op := "link " + peer.String()
	status := func() error {
		if len(payload) != 0 {
			return protocolErr(itc.dir, op, core.ErrBadPayload)
		}
		return nil
	}
	switch itc.state {
	case core.LinkShut:
		if peer > core.LinkDrain {
			return protocolErr(itc.dir, op, ErrPeerAhead)
		}
		if err := status(); err != nil {
			return err
		}
		itc.peerLeftShut = true
	case core.LinkDrain:
		switch peer {
		case core.LinkShut, core.LinkDrain:
			if err := status(); err != nil {
				return err
			}
			itc.peerLeftShut = true
		case core.LinkCacheXG:
			itc.peerLeftShut = true
			return itc.ingestCache(payload)
		default:
			return protocolErr(itc.dir, op, ErrUnexpectedLink)
		}
	case core.LinkCacheXG:
		switch peer {
		case core.LinkShut:
			return protocolErr(itc.dir, op, ErrPeerBehind)
		case core.LinkDrain:
			return status()
		case core.LinkCacheXG:
			return itc.ingestCache(payload)
		default:
			return protocolErr(itc.dir, op, ErrUnexpectedLink)
		}
	case core.LinkOpen:
		if peer < core.LinkOpen {
			return protocolErr(itc.dir, op, ErrPeerBehind)
		}
		return status()
	}
	return nil
}

func (itc *T2ITC) send(h core.Header, payload []byte) error {
	raw, err := core.Packet{Header: h, Payload: payload}.Marshal()
	if err != nil {
		return err
	}
	if err := itc.ch.WritePacket(raw); err != nil {
		return err
	}
	itc.stats.PacketsShipped++
	return nil
}

func (itc *T2ITC) sendLink(payload []byte) error {
	return itc.send(core.LinkHeader(itc.dir, itc.state), payload)
}
