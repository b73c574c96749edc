package tile

import (
	"errors"
	"testing"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/hooks"
	"github.com/example/tile_itc/link"
	"github.com/example/tile_itc/queue"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Geometry = core.Geometry{Width: 16, Height: 12, Radius: 4}
	cfg.Waits = Waits{Immediate: 1, ShortRandom: 4, Random: 8, Full: 8, Long: 16}
	cfg.EventInterval = 0
	cfg.ResetLogRate = nil
	cfg.Seed = 42
	return cfg
}

func runUntil(q *queue.TimeQueue, limit int64, cond func() bool) bool {
	for q.Now() < limit {
		if cond() {
			return true
		}
		q.RunUntil(q.Now() + 1)
	}
	return cond()
}

// pair is two live tiles, b east of a.
type pair struct {
	q    *queue.TimeQueue
	a, b *Tile
	pipe *link.Pipe
}

func newPair(t *testing.T, mutate func(cfg *Config), physics Physics) *pair {
	t.Helper()
	q := queue.NewTimeQueue()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	a, err := New(1, cfg, q, physics)
	require.NoError(t, err)
	b, err := New(2, cfg, q, physics)
	require.NoError(t, err)
	pipe := link.NewPipe(link.PipeConfig{Name: "a-b", Latency: 1, Clock: q.Now, LevelA: 1, LevelB: 1})
	require.NoError(t, a.Attach(core.DirE, pipe.A()))
	require.NoError(t, b.Attach(core.DirW, pipe.B()))
	return &pair{q: q, a: a, b: b, pipe: pipe}
}

func (p *pair) linkA() *T2ITC { return p.a.ITC(core.DirE) }
func (p *pair) linkB() *T2ITC { return p.b.ITC(core.DirW) }

func (p *pair) bothOpen() bool {
	return p.linkA().State() == core.LinkOpen && p.linkB().State() == core.LinkOpen
}

func (p *pair) open(t *testing.T) {
	t.Helper()
	p.a.Start()
	p.b.Start()
	require.True(t, runUntil(p.q, p.q.Now()+1000, p.bothOpen), "link never opened: a=%v b=%v", p.linkA().State(), p.linkB().State())
}

func (p *pair) run(ticks int64) { p.q.RunUntil(p.q.Now() + ticks) }

func (p *pair) requireConsistent(t *testing.T) {
	t.Helper()
	g := p.a.Geometry()
	require.Equal(t, p.a.Sites().Digest(g.CacheRect(core.DirE)), p.b.Sites().Digest(g.VisibleRect(core.DirW)), "a's cache of b")
	require.Equal(t, p.b.Sites().Digest(g.CacheRect(core.DirW)), p.a.Sites().Digest(g.VisibleRect(core.DirE)), "b's cache of a")
}

func requireIdle(t *testing.T, itc *T2ITC) {
	t.Helper()
	for n := 0; n < core.CircuitCount; n++ {
		require.Equal(t, core.CircuitUnused, itc.ActiveCircuit(n).State(), "active %d", n)
		require.Equal(t, core.CircuitUnused, itc.PassiveCircuit(n).State(), "passive %d", n)
	}
	require.Equal(t, core.CircuitCount, itc.FreeCircuits())
	require.Zero(t, itc.Registered())
}

// fakePeer drives the far end of one of a tile's links by hand.
type fakePeer struct {
	t      *testing.T
	q      *queue.TimeQueue
	tile   *Tile
	dir    core.Dir
	ep     *link.Endpoint
	resets []error
}

func newFakePeer(t *testing.T, mutate func(cfg *Config), level int) *fakePeer {
	t.Helper()
	return newFakePeers(t, mutate, map[core.Dir]int{core.DirE: level})[core.DirE]
}

// newFakePeers starts one tile with a hand-driven peer at the given
// protocol level on each listed direction.
func newFakePeers(t *testing.T, mutate func(cfg *Config), levels map[core.Dir]int) map[core.Dir]*fakePeer {
	t.Helper()
	q := queue.NewTimeQueue()
	cfg := testConfig()
	cfg.Broker = hooks.NewPluginBroker()
	if mutate != nil {
		mutate(&cfg)
	}
	tl, err := New(1, cfg, q, CounterPhysics{})
	require.NoError(t, err)
	fakes := make(map[core.Dir]*fakePeer, len(levels))
	for d, level := range levels {
		pipe := link.NewPipe(link.PipeConfig{Name: "fake-" + d.String(), Latency: 1, Clock: q.Now, LevelA: 1, LevelB: level})
		require.NoError(t, tl.Attach(d, pipe.A()))
		require.NoError(t, pipe.B().Open())
		fakes[d] = &fakePeer{t: t, q: q, tile: tl, dir: d, ep: pipe.B()}
	}
	cfg.Broker.RegisterLinkReset(func(ctx *hooks.LinkResetContext) error {
		if f, ok := fakes[ctx.Dir]; ok {
			f.resets = append(f.resets, ctx.Cause)
		}
		return nil
	})
	tl.Start()
	return fakes
}

func (f *fakePeer) itc() *T2ITC { return f.tile.ITC(f.dir) }

func (f *fakePeer) run(ticks int64) { f.q.RunUntil(f.q.Now() + ticks) }

func (f *fakePeer) send(h core.Header, payload []byte) {
	f.t.Helper()
	raw, err := core.Packet{Header: h, Payload: payload}.Marshal()
	require.NoError(f.t, err)
	require.NoError(f.t, f.ep.WritePacket(raw))
}

func (f *fakePeer) sendLink(state core.LinkState, payload []byte) {
	f.send(core.LinkHeader(f.dir.Opposite(), state), payload)
}

func (f *fakePeer) sendCircuit(sub core.SubChannel, n int, payload []byte) {
	f.send(core.CircuitHeader(f.dir.Opposite(), sub, n), payload)
}

func (f *fakePeer) drain() []core.Packet {
	f.t.Helper()
	var out []core.Packet
	for {
		raw, err := f.ep.ReadPacket()
		if errors.Is(err, link.ErrNoData) {
			return out
		}
		require.NoError(f.t, err)
		pkt, err := core.ParsePacket(raw)
		require.NoError(f.t, err)
		out = append(out, pkt)
	}
}

// circuitOps drains the link and keeps only circuit packets.
func (f *fakePeer) circuitOps() []core.Header {
	var out []core.Header
	for _, pkt := range f.drain() {
		if pkt.Header.Sub.IsCircuit() {
			out = append(out, pkt.Header)
		}
	}
	return out
}

func (f *fakePeer) toCacheXG() {
	f.t.Helper()
	f.sendLink(core.LinkShut, nil)
	require.True(f.t, runUntil(f.q, f.q.Now()+500, func() bool {
		return f.itc().State() == core.LinkCacheXG
	}), "stuck in %v", f.itc().State())
}

func (f *fakePeer) toOpen() {
	f.t.Helper()
	f.toCacheXG()
	f.sendLink(core.LinkCacheXG, nil)
	require.True(f.t, runUntil(f.q, f.q.Now()+500, func() bool {
		return f.itc().State() == core.LinkOpen
	}), "stuck in %v", f.itc().State())
	f.drain()
	require.Empty(f.t, f.resets)
}

// ring builds a RING body for a center given in the tile's frame.
func ring(t *testing.T, center core.SPoint, radius int, yoink bool) []byte {
	t.Helper()
	b, err := core.RingPayload{X: int8(center.X), Y: int8(center.Y), Radius: uint8(radius), Yoink: yoink}.Encode()
	require.NoError(t, err)
	return b
}

// peerTriple encodes an atom at a site given in the peer's frame.
func peerTriple(g core.Geometry, p core.SPoint, a core.Atom) []byte {
	return core.AppendTriples(nil, core.Triple{X: uint8(p.X + g.Radius), Y: uint8(p.Y + g.Radius), Atom: a})
}
