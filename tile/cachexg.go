package tile

import (
	"fmt"

	"github.com/example/tile_itc/core"
)

// shipCache sends the next batch of visible atoms, or the empty
// terminator once the cursor has covered the visible rectangle.
func (itc *T2ITC) shipCache() error {
	g := itc.tile.cfg.Geometry
	vis := g.VisibleRect(itc.dir)
	total := vis.Area()
	if itc.cursor >= total {
		if err := itc.sendLink(nil); err != nil {
			return err
		}
		itc.sentComplete = true
		return nil
	}
	end := min(itc.cursor+core.MaxTriples, total)
	payload := make([]byte, 0, (end-itc.cursor)*core.TripleLen)
	for i := itc.cursor; i < end; i++ {
		p := vis.At(i)
		x, y, ok := g.ToWire(p)
		if !ok {
			invariant("visible site %v has no wire form", p)
		}
		payload = core.AppendTriples(payload, core.Triple{X: x, Y: y, Atom: itc.tile.sites.Get(p)})
	}
	if err := itc.sendLink(payload); err != nil {
		return err
	}
	itc.stats.AtomsSent += uint64(end - itc.cursor)
	itc.cursor = end
	return nil
}

// ingestCache applies one CACHEXG packet from the peer. The batch is
// validated in full before any site is written.
func (itc *T2ITC) ingestCache(payload []byte) error {
	if len(payload) == 0 {
		if itc.recvComplete {
			return protocolErr(itc.dir, "cachexg", ErrCacheComplete)
		}
		itc.recvComplete = true
		if itc.state == core.LinkCacheXG && itc.sentComplete {
			itc.open()
		}
		return nil
	}
	if itc.recvComplete {
		return protocolErr(itc.dir, "cachexg", ErrCacheComplete)
	}
	triples, err := core.DecodeTriples(payload)
	if err != nil {
		return protocolErr(itc.dir, "cachexg", err)
	}
	g := itc.tile.cfg.Geometry
	cache := g.CacheRect(itc.dir)
	pts := make([]core.SPoint, len(triples))
	for i, tr := range triples {
		p := g.FromWire(tr.X, tr.Y, itc.dir)
		if !cache.Contains(p) {
			return protocolErr(itc.dir, "cachexg", fmt.Errorf("%w: %v not in %v", ErrOutOfBounds, p, cache))
		}
		if !tr.Atom.IsSane() {
			return protocolErr(itc.dir, "cachexg", fmt.Errorf("%w at %v", ErrInsaneAtom, p))
		}
		pts[i] = p
	}
	for i, tr := range triples {
		itc.tile.sites.Set(pts[i], tr.Atom)
	}
	itc.stats.AtomsReceived += uint64(len(triples))
	return nil
}
