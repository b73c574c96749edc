package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/hooks"
	"github.com/example/tile_itc/journal"
	"github.com/example/tile_itc/link"
	"github.com/example/tile_itc/plugins/tracelog"
	"github.com/example/tile_itc/queue"
	"github.com/example/tile_itc/simulator"
	"github.com/example/tile_itc/tile"
	"github.com/joeycumines/logiface"
)

// eastward lists the directions each tile creates pipes toward; the
// neighbor attaches the opposite end.
var eastward = [...]core.Dir{core.DirNE, core.DirE, core.DirSE}

type gridPos struct {
	Row, Col int
}

// endKey names one tile's side of a link.
type endKey struct {
	tile int
	dir  core.Dir
}

type gridLink struct {
	from, to int
	dir      core.Dir // from's direction toward to
	pipe     *link.Pipe
}

// Simulator is a brick-lattice grid of tiles joined by pipes.
type Simulator struct {
	cfg   *Config
	clock *queue.TimeQueue   // virtual time; nil in real-time mode
	rt    *RealtimeScheduler // nil in virtual-time mode
	sched tile.Scheduler

	tiles  []*tile.Tile
	places []gridPos
	links  []*gridLink
	ends   map[endKey]*link.Endpoint
	pipes  map[endKey]*link.Pipe

	registry *hooks.Registry
	plan     *simulator.Plan
	log      *logiface.Logger[logiface.Event]

	quiesced bool
	finished bool
	done     func()
}

// NewSimulator validates cfg and builds the grid. Plugins named in the
// config are loaded; Close releases them.
func NewSimulator(cfg *Config) (*Simulator, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	plan, err := simulator.ParsePlan(cfg.Faults)
	if err != nil {
		return nil, err
	}
	s := &Simulator{
		cfg:   cfg,
		ends:  make(map[endKey]*link.Endpoint),
		pipes: make(map[endKey]*link.Pipe),
		plan:  plan,
		log:   GetLogger(),
	}
	if cfg.Realtime {
		rt, err := NewRealtimeScheduler(time.Duration(cfg.TickMicros) * time.Microsecond)
		if err != nil {
			return nil, err
		}
		s.rt, s.sched = rt, rt
	} else {
		s.clock = queue.NewTimeQueue()
		s.sched = s.clock
	}

	if err := s.loadPlugins(); err != nil {
		return nil, err
	}
	if err := s.buildTiles(); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.buildLinks()
	return s, nil
}

func (s *Simulator) loadPlugins() error {
	s.registry = hooks.NewRegistry(hooks.NewPluginBroker())
	if err := tracelog.Register(s.registry, tracelog.Options{Logger: s.log}); err != nil {
		return err
	}
	if err := journal.Register(s.registry, s.cfg.JournalPath); err != nil {
		return err
	}
	names := append([]string(nil), s.cfg.Plugins...)
	if s.cfg.JournalPath != "" && !contains(names, journal.PluginName) {
		names = append(names, journal.PluginName)
	}
	if err := s.registry.Load(names); err != nil {
		_ = s.registry.Close()
		return err
	}
	return nil
}

func (s *Simulator) physics() tile.Physics {
	if s.cfg.Physics == PhysicsCounter {
		return tile.CounterPhysics{}
	}
	return tile.SwapPhysics{}
}

func (s *Simulator) tileConfig() tile.Config {
	c := tile.DefaultConfig()
	c.Geometry = core.Geometry{Width: s.cfg.TileWidth, Height: s.cfg.TileHeight, Radius: s.cfg.Radius}
	c.MinPeerLevel = s.cfg.MinPeerLevel
	c.Waits = s.cfg.Waits
	c.EventRadius = s.cfg.EventRadius
	c.EventInterval = s.cfg.EventInterval
	c.WindowSlots = s.cfg.WindowSlots
	c.Seed = s.cfg.Seed
	c.Logger = s.log
	c.Broker = s.registry.Broker()
	return c
}

func (s *Simulator) buildTiles() error {
	tc := s.tileConfig()
	physics := s.physics()
	for r := 0; r < s.cfg.Rows; r++ {
		for c := 0; c < s.cfg.Columns; c++ {
			id := len(s.tiles)
			t, err := tile.New(id, tc, s.sched, physics)
			if err != nil {
				return fmt.Errorf("tile %d: %w", id, err)
			}
			t.Populate(s.cfg.Density, s.cfg.AtomTypes)
			s.tiles = append(s.tiles, t)
			s.places = append(s.places, gridPos{Row: r, Col: c})
		}
	}
	return nil
}

// origin places tile (row, col) on the brick lattice; odd rows shift east
// by half a tile.
func (s *Simulator) origin(p gridPos) core.SPoint {
	x := p.Col * s.cfg.TileWidth
	if p.Row%2 == 1 {
		x += s.cfg.TileWidth / 2
	}
	return core.Pt(x, p.Row*s.cfg.TileHeight)
}

func (s *Simulator) level(id int) int {
	if s.cfg.IsLegacy(id) {
		return 0
	}
	return s.cfg.ProtocolLevel
}

func (s *Simulator) buildLinks() {
	byOrigin := make(map[core.SPoint]int, len(s.tiles))
	for id, p := range s.places {
		byOrigin[s.origin(p)] = id
	}
	g := s.tiles[0].Geometry()
	for id, p := range s.places {
		for _, d := range eastward {
			peer, ok := byOrigin[s.origin(p).Add(g.NeighborOffset(d))]
			if !ok {
				continue
			}
			pipe := link.NewPipe(link.PipeConfig{
				Name:     fmt.Sprintf("t%d.%v-t%d.%v", id, d, peer, d.Opposite()),
				Capacity: s.cfg.PipeCapacity,
				Latency:  s.cfg.PipeLatency,
				Clock:    s.sched.Now,
				LevelA:   s.level(id),
				LevelB:   s.level(peer),
			})
			// Attach only fails on a running tile.
			_ = s.tiles[id].Attach(d, pipe.A())
			_ = s.tiles[peer].Attach(d.Opposite(), pipe.B())
			s.links = append(s.links, &gridLink{from: id, to: peer, dir: d, pipe: pipe})
			s.ends[endKey{id, d}] = pipe.A()
			s.ends[endKey{peer, d.Opposite()}] = pipe.B()
			s.pipes[endKey{id, d}] = pipe
			s.pipes[endKey{peer, d.Opposite()}] = pipe
		}
	}
}

// Tiles returns the grid's tiles in id order.
func (s *Simulator) Tiles() []*tile.Tile { return s.tiles }

// Links returns the number of pipes in the grid.
func (s *Simulator) Links() int { return len(s.links) }

// Now returns the current tick.
func (s *Simulator) Now() int64 { return s.sched.Now() }

func (s *Simulator) end() int64 { return s.cfg.TotalTicks + s.cfg.QuiesceTicks }

func (s *Simulator) begin() {
	s.log.Info().
		Str("config", s.cfg.Name).
		Int("tiles", len(s.tiles)).
		Int("links", len(s.links)).
		Int64("ticks", s.cfg.TotalTicks).
		Log("simulation start")
	for _, t := range s.tiles {
		t.Start()
	}
	s.sched.After(1, s.drive)
}

// drive runs once per tick: it applies due faults and moves the run
// through its phases.
func (s *Simulator) drive() {
	now := s.sched.Now()
	s.plan.DrainDue(now, s)
	if !s.quiesced && now >= s.cfg.TotalTicks {
		s.quiesce()
	}
	if now >= s.end() {
		s.finish()
		return
	}
	s.sched.After(1, s.drive)
}

func (s *Simulator) quiesce() {
	s.quiesced = true
	for _, t := range s.tiles {
		t.SetEventInterval(0)
	}
	s.log.Debug().Int64("tick", s.sched.Now()).Log("spawning stopped")
}

func (s *Simulator) finish() {
	for _, t := range s.tiles {
		t.Stop()
	}
	s.finished = true
	s.log.Info().Int64("tick", s.sched.Now()).Log("simulation end")
	if s.done != nil {
		s.done()
	}
}

// Run executes the whole simulation in virtual time.
func (s *Simulator) Run() error {
	if s.clock == nil {
		return errors.New("simulator is in real-time mode")
	}
	if s.finished {
		return errors.New("simulator already ran")
	}
	s.begin()
	s.clock.RunUntil(s.end())
	return nil
}

// RunRealtime executes the simulation on the event loop, one tick per
// Config.TickMicros, until it finishes or ctx ends.
func (s *Simulator) RunRealtime(ctx context.Context) error {
	if s.rt == nil {
		return errors.New("simulator is in virtual-time mode")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.done = cancel
	if err := s.rt.Submit(s.begin); err != nil {
		return err
	}
	err := s.rt.Run(ctx)
	if s.finished && errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

// HandleFault applies one scheduled fault; unknown targets are logged and
// skipped.
func (s *Simulator) HandleFault(f simulator.Fault) bool {
	key := endKey{f.Tile, f.Dir}
	ep, ok := s.ends[key]
	if !ok {
		s.log.Warning().Stringer("fault", f).Log("fault targets no link")
		return true
	}
	switch f.Kind {
	case simulator.FaultReset:
		s.tiles[f.Tile].ITC(f.Dir).Reset(nil)
	case simulator.FaultSever:
		s.pipes[key].Sever()
	case simulator.FaultRestore:
		s.pipes[key].Restore()
	case simulator.FaultDemote:
		ep.SetLevel(0)
	case simulator.FaultPromote:
		ep.SetLevel(s.level(f.Tile))
	}
	s.log.Info().Stringer("fault", f).Log("fault applied")
	return true
}

// CheckConsistency compares, for every link open at both ends, each
// side's cache with the sites the other side owns. It is meaningful once
// no windows are in flight.
func (s *Simulator) CheckConsistency() []Mismatch {
	var out []Mismatch
	for _, l := range s.links {
		a, b := s.tiles[l.from], s.tiles[l.to]
		back := l.dir.Opposite()
		if a.ITC(l.dir).State() != core.LinkOpen || b.ITC(back).State() != core.LinkOpen {
			continue
		}
		g := a.Geometry()
		if a.Sites().Digest(g.CacheRect(l.dir)) != b.Sites().Digest(g.VisibleRect(back)) {
			out = append(out, Mismatch{Tile: l.from, Dir: l.dir.String(), Neighbor: l.to})
		}
		if b.Sites().Digest(g.CacheRect(back)) != a.Sites().Digest(g.VisibleRect(l.dir)) {
			out = append(out, Mismatch{Tile: l.to, Dir: back.String(), Neighbor: l.from})
		}
	}
	return out
}

// CollectStats aggregates per-tile counters into SimulationStats.
func (s *Simulator) CollectStats() *SimulationStats {
	g := &GlobalStats{
		ConfigHash: computeConfigHash(s.cfg),
		Ticks:      s.sched.Now(),
		Tiles:      len(s.tiles),
		Links:      len(s.links),
	}
	stats := &SimulationStats{Global: g}
	for id, t := range s.tiles {
		ts := t.Stats()
		stats.PerTile = append(stats.PerTile, &TileStats{ID: id, Row: s.places[id].Row, Col: s.places[id].Col, Stats: ts})
		g.Spawned += ts.Spawned
		g.Executed += ts.Executed
		g.Declined += ts.Declined
		g.Aborted += ts.Aborted
		g.Skipped += ts.SkippedConflict + ts.SkippedLink + ts.SkippedNoSlot + ts.NoCircuit
		for _, ls := range ts.Links {
			g.Resets += ls.Resets
			g.LocksGranted += ls.LocksGranted
			g.LocksRefused += ls.LocksRefused
			g.PacketsShipped += ls.PacketsShipped
			g.AtomsSent += ls.AtomsSent
		}
	}
	for _, l := range s.links {
		if s.tiles[l.from].ITC(l.dir).State() == core.LinkOpen && s.tiles[l.to].ITC(l.dir.Opposite()).State() == core.LinkOpen {
			g.OpenLinks++
		}
	}
	g.ExecutionRate = percent(g.Executed, g.Spawned)
	stats.Mismatches = s.CheckConsistency()
	return stats
}

// Close unloads plugins, flushing the journal if one is open.
func (s *Simulator) Close() error {
	if s.registry == nil {
		return nil
	}
	return s.registry.Close()
}

func percent(a, b uint64) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b) * 100
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
