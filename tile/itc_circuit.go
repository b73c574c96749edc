package tile

import (
	"fmt"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/hooks"
)

func (itc *T2ITC) sendCircuit(sub core.SubChannel, c *Circuit, payload []byte) error {
	if err := itc.send(core.CircuitHeader(itc.dir, sub, c.number), payload); err != nil {
		return err
	}
	itc.traceCircuit(sub, c, true)
	return nil
}

func (itc *T2ITC) traceCircuit(sub core.SubChannel, c *Circuit, sent bool) {
	t := itc.tile
	t.log.Trace().
		Int("tile", t.id).
		Stringer("dir", itc.dir).
		Stringer("op", sub).
		Stringer("circuit", c).
		Bool("sent", sent).
		Log("circuit")
	if !t.broker.HasCircuitHooks() {
		return
	}
	t.hookErr(t.broker.EmitCircuit(&hooks.CircuitContext{
		Tile:    t.id,
		Dir:     itc.dir,
		Number:  c.number,
		Passive: c.passive,
		Sent:    sent,
		Op:      sub,
		State:   c.state,
		Tick:    t.sched.Now(),
	}))
}

func (itc *T2ITC) handleCircuit(h core.Header, payload []byte) error {
	switch itc.state {
	case core.LinkShut:
		itc.stats.Discarded++
		return nil
	case core.LinkDrain, core.LinkCacheXG:
		return protocolErr(itc.dir, h.Sub.String(), ErrCircuitBeforeOpen)
	}
	n := int(h.Arg)
	if n >= core.CircuitCount {
		return protocolErr(itc.dir, h.Sub.String(), fmt.Errorf("%w: circuit %d", ErrCircuitState, n))
	}
	empty := func() error {
		if len(payload) != 0 {
			return protocolErr(itc.dir, h.Sub.String(), core.ErrBadPayload)
		}
		return nil
	}
	switch h.Sub {
	case core.SubRing:
		return itc.onRing(n, payload)
	case core.SubAnswer:
		if err := empty(); err != nil {
			return err
		}
		return itc.onAnswer(n)
	case core.SubBusy:
		if err := empty(); err != nil {
			return err
		}
		return itc.onBusy(n)
	case core.SubTalk:
		return itc.onTalk(n, payload)
	case core.SubHangup:
		if err := empty(); err != nil {
			return err
		}
		return itc.onHangup(n)
	case core.SubFlash:
		if err := empty(); err != nil {
			return err
		}
		return itc.onFlash(n)
	}
	return protocolErr(itc.dir, h.Sub.String(), core.ErrReservedSubChannel)
}

func (itc *T2ITC) circuitErr(sub core.SubChannel, c *Circuit) error {
	return protocolErr(itc.dir, sub.String(), fmt.Errorf("%w: %v", ErrCircuitState, c))
}

// onRing arbitrates a lock request from the peer. The claim is granted
// only when every conflicting local claim is a RUNG window that loses the
// yoink tie-break on this link.
func (itc *T2ITC) onRing(n int, payload []byte) error {
	c := &itc.passive[n]
	if c.state != core.CircuitUnused {
		return itc.circuitErr(core.SubRing, c)
	}
	r, err := core.DecodeRing(payload)
	if err != nil {
		return protocolErr(itc.dir, "RING", err)
	}
	g := itc.tile.cfg.Geometry
	disc := core.Disc{Center: r.Center(), Radius: int(r.Radius)}
	if !g.NeighborOwned(itc.dir).Contains(disc.Center) || disc.Radius > g.Radius ||
		!(disc.Touches(g.VisibleRect(itc.dir)) || disc.Touches(g.CacheRect(itc.dir))) {
		return protocolErr(itc.dir, "RING", fmt.Errorf("%w: %v r%d", ErrBadRing, disc.Center, disc.Radius))
	}
	theirs := int8(0)
	if r.Yoink {
		theirs = 1
	}
	itc.traceCircuit(core.SubRing, c, false)

	t := itc.tile
	grant, losers := t.arbitrate(itc, disc, theirs)
	if !grant {
		itc.stats.LocksRefused++
		return itc.sendCircuit(core.SubBusy, c, nil)
	}
	epoch := itc.stats.Resets
	for _, h := range losers {
		t.abortWindow(h, ErrYoinked)
	}
	if itc.stats.Resets != epoch {
		return nil
	}
	c.state = core.CircuitAnswered
	c.yoink = theirs
	w := &itc.claims[n]
	w.passive = true
	w.state = WindowPassive
	w.disc = disc
	w.dir = itc.dir
	w.number = n
	w.started = t.sched.Now()
	itc.stats.LocksGranted++
	return itc.sendCircuit(core.SubAnswer, c, nil)
}

func (itc *T2ITC) onAnswer(n int) error {
	c := &itc.active[n]
	switch c.state {
	case core.CircuitRung:
		c.state = core.CircuitAnswered
		itc.traceCircuit(core.SubAnswer, c, false)
		itc.tile.answered(c.window, itc.dir)
		return nil
	case core.CircuitDropped:
		itc.traceCircuit(core.SubAnswer, c, false)
		itc.freeActive(n)
		return nil
	}
	return itc.circuitErr(core.SubAnswer, c)
}

func (itc *T2ITC) onBusy(n int) error {
	c := &itc.active[n]
	switch c.state {
	case core.CircuitRung:
		c.state = core.CircuitDeclined
		itc.traceCircuit(core.SubBusy, c, false)
		itc.tile.abortWindow(c.window, ErrDeclined)
		return nil
	case core.CircuitDropped:
		itc.traceCircuit(core.SubBusy, c, false)
		itc.freeActive(n)
		return nil
	}
	return itc.circuitErr(core.SubBusy, c)
}

// onTalk applies the peer's window changes once every triple checks out.
func (itc *T2ITC) onTalk(n int, payload []byte) error {
	c := &itc.passive[n]
	if !c.state.Held() {
		return itc.circuitErr(core.SubTalk, c)
	}
	triples, err := core.DecodeTriples(payload)
	if err != nil {
		return protocolErr(itc.dir, "TALK", err)
	}
	g := itc.tile.cfg.Geometry
	shared := g.SharedRect(itc.dir)
	disc := itc.claims[n].disc
	pts := make([]core.SPoint, len(triples))
	for i, tr := range triples {
		p := g.FromWire(tr.X, tr.Y, itc.dir)
		if !disc.Contains(p) || !shared.Contains(p) {
			return protocolErr(itc.dir, "TALK", fmt.Errorf("%w: %v", ErrOutOfBounds, p))
		}
		if !tr.Atom.IsSane() {
			return protocolErr(itc.dir, "TALK", fmt.Errorf("%w at %v", ErrInsaneAtom, p))
		}
		pts[i] = p
	}
	for i, tr := range triples {
		itc.tile.sites.Set(pts[i], tr.Atom)
	}
	c.state = core.CircuitTalked
	c.shipped += len(triples)
	itc.stats.AtomsReceived += uint64(len(triples))
	itc.traceCircuit(core.SubTalk, c, false)
	return nil
}

func (itc *T2ITC) onHangup(n int) error {
	c := &itc.passive[n]
	if !c.state.Held() {
		return itc.circuitErr(core.SubHangup, c)
	}
	itc.releasePassive(n, core.SubHangup)
	return nil
}

func (itc *T2ITC) onFlash(n int) error {
	c := &itc.passive[n]
	switch c.state {
	case core.CircuitUnused:
		// The BUSY for this ring already crossed the FLASH.
		itc.traceCircuit(core.SubFlash, c, false)
		return nil
	case core.CircuitAnswered:
		itc.releasePassive(n, core.SubFlash)
		return nil
	}
	return itc.circuitErr(core.SubFlash, c)
}

func (itc *T2ITC) releasePassive(n int, sub core.SubChannel) {
	c := &itc.passive[n]
	c.state = core.CircuitHungup
	itc.traceCircuit(sub, c, false)
	itc.claims[n] = EventWindow{}
	itc.claims[n].clearCircuits()
	c.reinit()
}

// bind reserves a random free circuit number for the window h.
func (itc *T2ITC) bind(h EWHandle) (int, bool) {
	if len(itc.free) == 0 {
		return -1, false
	}
	rng := itc.tile.rng
	i := rng.IntN(len(itc.free))
	n := itc.free[i]
	itc.free[i] = itc.free[len(itc.free)-1]
	itc.free = itc.free[:len(itc.free)-1]
	c := &itc.active[n]
	if c.state != core.CircuitUnused {
		invariant("free circuit %v on %v", c, itc.dir)
	}
	c.state = core.CircuitBound
	c.window = h
	c.yoink = int8(rng.IntN(2))
	return n, true
}

func (itc *T2ITC) freeActive(n int) {
	itc.active[n].reinit()
	itc.free = append(itc.free, n)
}

func (itc *T2ITC) ring(n int, disc core.Disc) error {
	c := &itc.active[n]
	if c.state != core.CircuitBound {
		invariant("ring on %v", c)
	}
	rel := disc.Center.Sub(itc.tile.cfg.Geometry.NeighborOffset(itc.dir))
	if rel.X < -128 || rel.X > 127 || rel.Y < -128 || rel.Y > 127 {
		invariant("ring center %v out of range toward %v", rel, itc.dir)
	}
	payload, err := core.RingPayload{
		X:      int8(rel.X),
		Y:      int8(rel.Y),
		Radius: uint8(disc.Radius),
		Yoink:  c.yoink == 1,
	}.Encode()
	if err != nil {
		return err
	}
	c.state = core.CircuitRung
	if err := itc.sendCircuit(core.SubRing, c, payload); err != nil {
		c.state = core.CircuitBound
		return err
	}
	return nil
}

// talk ships the changed sites the peer can see, in packets of at most
// MaxTriples. The circuit ends TALKED even when nothing was shipped.
func (itc *T2ITC) talk(n int, changed []core.SPoint) error {
	c := &itc.active[n]
	if !c.state.Held() {
		invariant("talk on %v", c)
	}
	g := itc.tile.cfg.Geometry
	shared := g.SharedRect(itc.dir)
	batch := make([]core.Triple, 0, core.MaxTriples)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := itc.sendCircuit(core.SubTalk, c, core.AppendTriples(nil, batch...)); err != nil {
			return err
		}
		c.shipped += len(batch)
		itc.stats.AtomsSent += uint64(len(batch))
		batch = batch[:0]
		return nil
	}
	for _, p := range changed {
		if !shared.Contains(p) {
			continue
		}
		x, y, _ := g.ToWire(p)
		batch = append(batch, core.Triple{X: x, Y: y, Atom: itc.tile.sites.Get(p)})
		if len(batch) == core.MaxTriples {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	c.state = core.CircuitTalked
	return nil
}

func (itc *T2ITC) hangup(n int) error {
	c := &itc.active[n]
	if !c.state.Held() {
		invariant("hangup on %v", c)
	}
	c.state = core.CircuitHungup
	err := itc.sendCircuit(core.SubHangup, c, nil)
	itc.freeActive(n)
	return err
}

// releaseFor gives up circuit n on behalf of an aborting window. Nothing
// happens if the circuit no longer belongs to h.
func (itc *T2ITC) releaseFor(h EWHandle, n int) error {
	c := &itc.active[n]
	if c.window != h {
		return nil
	}
	switch {
	case c.state == core.CircuitBound || c.state == core.CircuitDeclined:
		itc.freeActive(n)
		return nil
	case !c.state.NeedsRelease():
		invariant("release of %v for %v", c, h)
		return nil
	case c.state.Held():
		return itc.hangup(n)
	}
	c.state = core.CircuitDropped
	c.window = EWHandle{}
	return itc.sendCircuit(core.SubFlash, c, nil)
}
