package tile

import (
	"testing"

	"github.com/example/tile_itc/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairConvergesAndExchangesCaches(t *testing.T) {
	p := newPair(t, nil, nil)
	p.a.Populate(0.5, 4)
	p.b.Populate(0.5, 4)
	g := p.a.Geometry()
	require.NotEqual(t, p.a.Sites().Digest(g.CacheRect(core.DirE)), p.b.Sites().Digest(g.VisibleRect(core.DirW)))

	p.open(t)
	p.requireConsistent(t)

	for _, itc := range []*T2ITC{p.linkA(), p.linkB()} {
		s := itc.Stats()
		assert.Equal(t, uint64(1), s.Opens)
		assert.Zero(t, s.Resets, s.LastCause)
		assert.Equal(t, uint64(g.VisibleRect(itc.Dir()).Area()), s.AtomsSent)
		assert.Equal(t, uint64(g.CacheRect(itc.Dir()).Area()), s.AtomsReceived)
		requireIdle(t, itc)
	}

	// keepalives hold the link open
	p.run(200)
	assert.True(t, p.bothOpen())
	assert.Zero(t, p.linkA().Stats().Resets)
}

func TestResetIsIdempotentInShut(t *testing.T) {
	f := newFakePeer(t, nil, 0)
	itc := f.itc()
	require.Equal(t, core.LinkShut, itc.State())

	itc.Reset(nil)
	itc.Reset(nil)
	assert.Equal(t, core.LinkShut, itc.State())
	requireIdle(t, itc)
	require.Len(t, f.resets, 2)
	assert.ErrorIs(t, f.resets[1], ErrForced)
	assert.Equal(t, ErrForced.Error(), itc.Stats().LastCause)
}

func TestIncompatiblePeerStaysShut(t *testing.T) {
	f := newFakePeer(t, nil, 0)
	f.run(300)
	assert.Equal(t, core.LinkShut, f.itc().State())
	assert.Empty(t, f.drain())
	assert.Empty(t, f.resets)
}

func TestCircuitPacketsIgnoredWhileShut(t *testing.T) {
	f := newFakePeer(t, nil, 0)
	f.sendCircuit(core.SubAnswer, 3, nil)
	f.sendCircuit(core.SubFlash, 4, nil)
	f.sendLink(core.LinkShut, nil)
	f.run(4)
	itc := f.itc()
	assert.Equal(t, core.LinkShut, itc.State())
	assert.Equal(t, uint64(2), itc.Stats().Discarded)
	assert.True(t, itc.peerLeftShut)
	assert.Empty(t, f.resets)
}

func TestWrongDirectionResets(t *testing.T) {
	f := newFakePeer(t, nil, 0)
	f.send(core.LinkHeader(core.DirE, core.LinkShut), nil)
	f.run(4)
	require.Len(t, f.resets, 1)
	assert.ErrorIs(t, f.resets[0], ErrWrongDirection)
}

func TestPeerAheadWhileShutResets(t *testing.T) {
	f := newFakePeer(t, nil, 0)
	f.sendLink(core.LinkOpen, nil)
	f.run(4)
	require.Len(t, f.resets, 1)
	assert.ErrorIs(t, f.resets[0], ErrPeerAhead)
	var perr *ProtocolError
	require.ErrorAs(t, f.resets[0], &perr)
	assert.Equal(t, core.DirE, perr.Dir)
}

func TestMalformedHeaderResets(t *testing.T) {
	f := newFakePeer(t, nil, 0)
	require.NoError(t, f.ep.WritePacket([]byte{0x00, 0x00}))
	f.run(4)
	require.Len(t, f.resets, 1)
	assert.ErrorIs(t, f.resets[0], core.ErrBadHeader)
}

func TestCacheTripleOutsideRectResetsWithoutWriting(t *testing.T) {
	f := newFakePeer(t, nil, 1)
	f.toCacheXG()
	g := f.tile.Geometry()
	sites := f.tile.Sites()
	inCache := core.Pt(g.Width, 3)
	owned := core.Pt(g.Width-2, 3)
	beforeCache, beforeOwned := sites.Get(inCache), sites.Get(owned)

	payload := peerTriple(g, core.Pt(0, 3), core.MakeAtom(7, 1))
	payload = append(payload, peerTriple(g, core.Pt(-2, 3), core.MakeAtom(7, 2))...)
	f.sendLink(core.LinkCacheXG, payload)
	f.run(1)

	require.Len(t, f.resets, 1)
	assert.ErrorIs(t, f.resets[0], ErrOutOfBounds)
	assert.Equal(t, core.LinkShut, f.itc().State())
	assert.Equal(t, beforeCache, sites.Get(inCache))
	assert.Equal(t, beforeOwned, sites.Get(owned))
}

func TestCacheInsaneAtomResets(t *testing.T) {
	f := newFakePeer(t, nil, 1)
	f.toCacheXG()
	g := f.tile.Geometry()
	f.sendLink(core.LinkCacheXG, peerTriple(g, core.Pt(1, 1), core.Atom{}))
	f.run(2)
	require.Len(t, f.resets, 1)
	assert.ErrorIs(t, f.resets[0], ErrInsaneAtom)
}

func TestCacheAfterTerminatorResets(t *testing.T) {
	f := newFakePeer(t, nil, 1)
	f.toCacheXG()
	f.sendLink(core.LinkCacheXG, nil)
	f.sendLink(core.LinkCacheXG, nil)
	f.run(2)
	require.NotEmpty(t, f.resets)
	assert.ErrorIs(t, f.resets[0], ErrCacheComplete)
}

func TestCacheXGIngestsPeerAtoms(t *testing.T) {
	f := newFakePeer(t, nil, 1)
	f.toCacheXG()
	g := f.tile.Geometry()
	atom := core.MakeAtom(9, 1234)
	f.sendLink(core.LinkCacheXG, peerTriple(g, core.Pt(2, 5), atom))
	f.sendLink(core.LinkCacheXG, nil)
	require.True(t, runUntil(f.q, f.q.Now()+100, func() bool { return f.itc().State() == core.LinkOpen }))
	assert.Equal(t, atom, f.tile.Sites().Get(core.Pt(g.Width+2, 5)))
	assert.Empty(t, f.resets)
}

func TestCircuitTrafficBeforeOpenResets(t *testing.T) {
	f := newFakePeer(t, nil, 1)
	f.toCacheXG()
	f.sendCircuit(core.SubRing, 0, ring(t, core.Pt(16, 6), 1, false))
	f.run(2)
	require.Len(t, f.resets, 1)
	assert.ErrorIs(t, f.resets[0], ErrCircuitBeforeOpen)
}

func TestPeerFallingBackResetsOpenLink(t *testing.T) {
	f := newFakePeer(t, nil, 1)
	f.toOpen()
	f.sendLink(core.LinkShut, nil)
	f.run(1)
	require.Len(t, f.resets, 1)
	assert.ErrorIs(t, f.resets[0], ErrPeerBehind)
	assert.Equal(t, core.LinkShut, f.itc().State())
}

func TestDrainStallResets(t *testing.T) {
	f := newFakePeer(t, func(cfg *Config) { cfg.DrainStall = 20 }, 1)
	require.True(t, runUntil(f.q, 400, func() bool { return len(f.resets) > 0 }))
	assert.ErrorIs(t, f.resets[0], ErrDrainStalled)
}

func TestDrainWaitsForWindowsOnVisibleSites(t *testing.T) {
	fakes := newFakePeers(t, nil, map[core.Dir]int{core.DirE: 0, core.DirNE: 1})
	east, ne := fakes[core.DirE], fakes[core.DirNE]
	tl := east.tile
	g := tl.Geometry()
	tl.Populate(1, 4)
	ne.toOpen()
	require.Equal(t, core.LinkShut, east.itc().State())

	// locks NE and writes sites the east neighbor caches
	h, err := tl.Spawn(core.Disc{Center: core.Pt(13, 1), Radius: 2})
	require.NoError(t, err)
	n, ok := tl.Window(h).Circuit(core.DirNE)
	require.True(t, ok)
	_, ok = tl.Window(h).Circuit(core.DirE)
	require.False(t, ok)

	east.ep.SetLevel(1)
	east.sendLink(core.LinkShut, nil)
	east.run(60)
	assert.Equal(t, core.LinkDrain, east.itc().State())
	assert.NotNil(t, tl.Window(h))

	ne.sendCircuit(core.SubAnswer, n, nil)
	require.True(t, runUntil(east.q, east.q.Now()+100, func() bool { return tl.Stats().Executed == 1 }))
	require.True(t, runUntil(east.q, east.q.Now()+300, func() bool { return east.itc().State() == core.LinkCacheXG }))
	east.sendLink(core.LinkCacheXG, nil)
	require.True(t, runUntil(east.q, east.q.Now()+300, func() bool { return east.itc().State() == core.LinkOpen }))

	shipped := 0
	for _, pkt := range east.drain() {
		if pkt.Header.Sub != core.SubLink {
			continue
		}
		triples, err := core.DecodeTriples(pkt.Payload)
		require.NoError(t, err)
		for _, tr := range triples {
			p := core.Pt(int(tr.X)-g.Radius, int(tr.Y)-g.Radius)
			assert.Equal(t, tl.Sites().Get(p), tr.Atom, "stale %v", p)
			shipped++
		}
	}
	assert.Equal(t, g.VisibleRect(core.DirE).Area(), shipped)
	assert.Empty(t, east.resets)
	assert.Empty(t, ne.resets)
}

func TestDrainResetsWhenBorderWindowNeverFinishes(t *testing.T) {
	fakes := newFakePeers(t, func(cfg *Config) { cfg.DrainStall = 40 }, map[core.Dir]int{core.DirE: 0, core.DirNE: 1})
	east, ne := fakes[core.DirE], fakes[core.DirNE]
	ne.toOpen()
	_, err := east.tile.Spawn(core.Disc{Center: core.Pt(13, 1), Radius: 2})
	require.NoError(t, err)

	east.ep.SetLevel(1)
	east.sendLink(core.LinkShut, nil)
	require.True(t, runUntil(east.q, east.q.Now()+400, func() bool { return len(east.resets) > 0 }))
	assert.ErrorIs(t, east.resets[0], ErrDrainBusy)
	assert.Empty(t, ne.resets)
}

func TestResetMidCacheXGRestartsCleanly(t *testing.T) {
	p := newPair(t, nil, nil)
	p.a.Populate(0.4, 3)
	p.b.Populate(0.4, 3)
	p.a.Start()
	p.b.Start()
	require.True(t, runUntil(p.q, 1000, func() bool { return p.linkA().State() == core.LinkCacheXG }))

	p.linkA().Reset(nil)
	assert.Equal(t, core.LinkShut, p.linkA().State())
	assert.False(t, p.linkA().recvComplete)
	assert.False(t, p.linkA().sentComplete)

	require.True(t, runUntil(p.q, p.q.Now()+2000, p.bothOpen))
	p.requireConsistent(t)
	requireIdle(t, p.linkA())
	requireIdle(t, p.linkB())
}

func TestSeveredPipeRecovers(t *testing.T) {
	p := newPair(t, nil, nil)
	p.open(t)
	p.pipe.Sever()
	p.run(50)
	assert.Equal(t, core.LinkShut, p.linkA().State())
	assert.Equal(t, core.LinkShut, p.linkB().State())

	p.pipe.Restore()
	require.True(t, runUntil(p.q, p.q.Now()+2000, p.bothOpen))
	assert.Equal(t, uint64(2), p.linkA().Stats().Opens)
}
