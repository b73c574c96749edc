package tile

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/hooks"
	"github.com/example/tile_itc/link"
	"github.com/example/tile_itc/queue"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Stats counts event window outcomes on one tile.
type Stats struct {
	Spawned         uint64               `json:"spawned"`
	Executed        uint64               `json:"executed"`
	Declined        uint64               `json:"declined"`
	Aborted         uint64               `json:"aborted"`
	NoCircuit       uint64               `json:"no_circuit"`
	SkippedConflict uint64               `json:"skipped_conflict"`
	SkippedLink     uint64               `json:"skipped_link"`
	SkippedNoSlot   uint64               `json:"skipped_no_slot"`
	MaxWaiting      int                  `json:"max_waiting"`
	Links           map[string]LinkStats `json:"links"`
}

// Tile owns a rectangle of sites, the cache ring around it and one
// T2ITC per hex neighbor. All methods must run on the scheduler's
// goroutine.
type Tile struct {
	id      int
	cfg     Config
	sched   Scheduler
	rng     *rand.Rand
	sites   *Sites
	physics Physics

	itcs       [core.DirCount]*T2ITC
	arena      windowArena
	waiting    *queue.StageQueue[EWHandle]
	answerBits [core.DirCount]queue.BlockIndex

	nextSpawn int64
	running   bool

	log     *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	broker  *hooks.PluginBroker
	stats   Stats
}

// New builds a stopped tile. A nil physics uses SwapPhysics.
func New(id int, cfg Config, sched Scheduler, physics Physics) (*Tile, error) {
	if sched == nil {
		return nil, errors.New("tile: nil scheduler")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("tile %d: %w", id, err)
	}
	if physics == nil {
		physics = SwapPhysics{}
	}
	t := &Tile{
		id:      id,
		cfg:     cfg,
		sched:   sched,
		rng:     rand.New(rand.NewPCG(cfg.Seed, uint64(id)+1)),
		sites:   NewSites(cfg.Geometry),
		physics: physics,
		arena:   newWindowArena(cfg.WindowSlots),
		log:     cfg.Logger,
		limiter: cfg.ResetLimiter,
		broker:  cfg.Broker,
	}
	if t.broker == nil {
		t.broker = hooks.NewPluginBroker()
	}
	if t.limiter == nil && len(cfg.ResetLogRate) != 0 {
		t.limiter = catrate.NewLimiter(cfg.ResetLogRate)
	}
	reg := queue.NewBlockRegistry(core.DirCount)
	for i := range t.answerBits {
		t.answerBits[i] = queue.InvalidBlockIndex
	}
	for _, d := range core.ITCDirs {
		t.itcs[d] = newT2ITC(t, d)
		idx, err := reg.Register("answer:" + d.String())
		if err != nil {
			return nil, err
		}
		t.answerBits[d] = idx
	}
	t.waiting = queue.NewStageQueue[EWHandle](
		fmt.Sprintf("tile%d/acquiring", id),
		cfg.WindowSlots,
		func(length, _ int) {
			if length > t.stats.MaxWaiting {
				t.stats.MaxWaiting = length
			}
		},
		queue.StageQueueHooks[EWHandle]{},
	)
	return t, nil
}

func (t *Tile) ID() int                 { return t.id }
func (t *Tile) Config() Config          { return t.cfg }
func (t *Tile) Geometry() core.Geometry { return t.cfg.Geometry }
func (t *Tile) Sites() *Sites           { return t.sites }
func (t *Tile) Running() bool           { return t.running }

// ITC returns the link toward d, or nil for a non-hex direction.
func (t *Tile) ITC(d core.Dir) *T2ITC {
	if !d.IsITC() {
		return nil
	}
	return t.itcs[d]
}

// Window resolves an active window handle; stale handles yield nil.
func (t *Tile) Window(h EWHandle) *EventWindow { return t.arena.get(h) }

// ActiveWindows counts occupied active window slots.
func (t *Tile) ActiveWindows() int { return t.arena.inUse() }

// Attach connects the link toward d to ch. It must precede Start.
func (t *Tile) Attach(d core.Dir, ch link.Channel) error {
	if !d.IsITC() {
		return fmt.Errorf("tile %d: %w: %v", t.id, ErrWrongDirection, d)
	}
	if t.running {
		return fmt.Errorf("tile %d: attach %v while running", t.id, d)
	}
	t.itcs[d].ch = ch
	return nil
}

// Populate fills the owned sites with random atoms of types 1..types at
// the given density.
func (t *Tile) Populate(density float64, types int) {
	if types < 1 {
		types = 1
	}
	t.sites.Fill(t.cfg.Geometry.OwnedRect(), func(core.SPoint) core.Atom {
		if t.rng.Float64() >= density {
			return core.EmptyAtom
		}
		return core.MakeAtom(uint16(1+t.rng.IntN(types)), t.rng.Uint64())
	})
}

// Start opens attached links and begins the per-tick pump.
func (t *Tile) Start() {
	if t.running {
		return
	}
	t.running = true
	for _, d := range core.ITCDirs {
		t.itcs[d].start()
	}
	if t.cfg.EventInterval > 0 {
		t.nextSpawn = t.sched.Now() + 1 + t.rng.Int64N(t.cfg.EventInterval)
	}
	t.sched.After(1, t.pump)
}

// SetEventInterval changes the spawn interval; 0 stops spawning.
func (t *Tile) SetEventInterval(interval int64) {
	if interval < 0 {
		interval = 0
	}
	t.cfg.EventInterval = interval
	if interval > 0 {
		t.nextSpawn = t.sched.Now() + 1 + t.rng.Int64N(interval)
	}
}

// Stop halts the pump and all link timers. Pending windows stay put.
func (t *Tile) Stop() { t.running = false }

func (t *Tile) pump() {
	if !t.running {
		return
	}
	for _, d := range core.ITCDirs {
		t.itcs[d].Poll(t.cfg.PollBudget)
	}
	t.runReady()
	if t.cfg.EventInterval > 0 && t.sched.Now() >= t.nextSpawn {
		t.nextSpawn = t.sched.Now() + t.cfg.EventInterval
		g := t.cfg.Geometry
		center := core.Pt(t.rng.IntN(g.Width), t.rng.IntN(g.Height))
		_, _ = t.Spawn(core.Disc{Center: center, Radius: t.cfg.EventRadius})
	}
	t.sched.After(1, t.pump)
}

// Spawn starts an event window. A window that needs no neighbor locks
// executes before Spawn returns; otherwise the returned handle stays
// valid until the window executes or is aborted.
func (t *Tile) Spawn(disc core.Disc) (EWHandle, error) {
	g := t.cfg.Geometry
	if disc.Radius < 0 || disc.Radius > g.Radius || !g.OwnedRect().Contains(disc.Center) {
		return EWHandle{}, fmt.Errorf("%w: %v r%d", ErrBadWindow, disc.Center, disc.Radius)
	}
	t.stats.Spawned++
	if t.claimConflict(disc) {
		t.stats.SkippedConflict++
		return t.skip(disc, ErrWindowConflict)
	}
	var need []core.Dir
	for _, d := range core.ITCDirs {
		itc := t.itcs[d]
		cache := disc.Touches(g.CacheRect(d))
		visible := disc.Touches(g.VisibleRect(d))
		if !cache && !visible {
			continue
		}
		switch itc.state {
		case core.LinkOpen:
			need = append(need, d)
		case core.LinkShut:
			if cache {
				t.stats.SkippedLink++
				return t.skip(disc, ErrLinkBusy)
			}
		default:
			t.stats.SkippedLink++
			return t.skip(disc, ErrLinkBusy)
		}
	}
	w, ok := t.arena.alloc()
	if !ok {
		t.stats.SkippedNoSlot++
		return t.skip(disc, ErrNoSlot)
	}
	h := w.handle
	w.state = WindowAcquiring
	w.disc = disc
	w.started = t.sched.Now()
	for _, d := range need {
		n, ok := t.itcs[d].bind(h)
		if !ok {
			t.stats.NoCircuit++
			t.abortWindow(h, ErrNoCircuit)
			return h, ErrNoCircuit
		}
		w.circuits[d] = int8(n)
	}
	if len(need) == 0 {
		t.execute(w)
		return h, nil
	}
	reasons := make([]queue.BlockIndex, len(need))
	for i, d := range need {
		reasons[i] = t.answerBits[d]
	}
	id, ok := t.waiting.Enqueue(h, t.sched.Now(), reasons...)
	if !ok {
		invariant("acquiring queue full with %d slots", t.cfg.WindowSlots)
	}
	w.entry = id
	for _, d := range need {
		itc := t.itcs[d]
		if err := itc.ring(int(w.circuits[d]), disc); err != nil {
			t.abortWindow(h, ErrLinkReset)
			itc.reset(err)
			return h, err
		}
	}
	return h, nil
}

func (t *Tile) skip(disc core.Disc, reason error) (EWHandle, error) {
	t.emitWindow(-1, disc, 0, hooks.WindowSkipped, reason)
	return EWHandle{}, reason
}

// claimConflict reports whether disc overlaps any window held here,
// active or granted to a neighbor.
func (t *Tile) claimConflict(disc core.Disc) bool {
	conflict := false
	t.arena.each(func(w *EventWindow) bool {
		if w.disc.Conflicts(disc) {
			conflict = true
			return false
		}
		return true
	})
	return conflict || t.passiveConflict(disc)
}

func (t *Tile) passiveConflict(disc core.Disc) bool {
	for _, d := range core.ITCDirs {
		itc := t.itcs[d]
		for i := range itc.claims {
			w := &itc.claims[i]
			if w.state != WindowFree && w.disc.Conflicts(disc) {
				return true
			}
		}
	}
	return false
}

// arbitrate decides a RING arriving on itc. It returns the local
// windows that must yield when the lock is granted.
func (t *Tile) arbitrate(itc *T2ITC, disc core.Disc, theirs int8) (bool, []EWHandle) {
	var losers []EWHandle
	refused := false
	t.arena.each(func(w *EventWindow) bool {
		if !w.disc.Conflicts(disc) {
			return true
		}
		if n := w.circuits[itc.dir]; w.state == WindowAcquiring && n >= 0 {
			c := &itc.active[n]
			if c.state == core.CircuitRung && c.window == w.handle && !yoinkWins(c.yoink, theirs, itc.dir) {
				losers = append(losers, w.handle)
				return true
			}
		}
		refused = true
		return false
	})
	if refused || t.passiveConflict(disc) {
		return false, nil
	}
	return true, losers
}

func (t *Tile) answered(h EWHandle, d core.Dir) {
	w := t.arena.get(h)
	if w == nil || w.state != WindowAcquiring {
		invariant("answer on %v for missing window %v", d, h)
	}
	if err := t.waiting.SetBlocked(w.entry, t.answerBits[d], false, t.sched.Now()); err != nil {
		invariant("clear answer bit: %v", err)
	}
}

// abortWindow releases every circuit of h and frees its slot. Links whose
// release packets could not be written are reset afterwards.
func (t *Tile) abortWindow(h EWHandle, reason error) {
	w := t.arena.get(h)
	if w == nil || w.passive || w.state == WindowAborting {
		return
	}
	w.state = WindowAborting
	type failure struct {
		itc *T2ITC
		err error
	}
	var failed []failure
	circuits := w.CircuitCount()
	for _, d := range core.ITCDirs {
		n := w.circuits[d]
		if n < 0 {
			continue
		}
		w.circuits[d] = -1
		if err := t.itcs[d].releaseFor(h, int(n)); err != nil {
			failed = append(failed, failure{t.itcs[d], err})
		}
	}
	if w.entry != 0 {
		t.waiting.Remove(w.entry, t.sched.Now())
	}
	outcome := hooks.WindowAborted
	switch {
	case errors.Is(reason, ErrDeclined):
		outcome = hooks.WindowDeclined
		t.stats.Declined++
	case errors.Is(reason, ErrNoCircuit):
	default:
		t.stats.Aborted++
	}
	t.emitWindow(h.Slot(), w.disc, circuits, outcome, reason)
	t.arena.release(w)
	for _, f := range failed {
		f.itc.reset(f.err)
	}
}

func (t *Tile) runReady() {
	for {
		id, h, ok := t.waiting.PeekNext()
		if !ok {
			return
		}
		t.waiting.Complete(id, t.sched.Now())
		w := t.arena.get(h)
		if w == nil {
			invariant("ready entry for stale window %v", h)
		}
		w.entry = 0
		t.execute(w)
	}
}

func (t *Tile) execute(w *EventWindow) {
	h := w.handle
	circuits := w.CircuitCount()
	for _, d := range core.ITCDirs {
		if n := w.circuits[d]; n >= 0 && !t.itcs[d].active[n].Held() {
			invariant("execute %v with %v toward %v", h, &t.itcs[d].active[n], d)
		}
	}
	w.state = WindowExecuting
	view := newWindow(t.sites, w.disc, t.rng)
	t.physics.Execute(view)
	changed := view.Changed()

	type failure struct {
		itc *T2ITC
		err error
	}
	var failed []failure
	for _, d := range core.ITCDirs {
		n := w.circuits[d]
		if n < 0 {
			continue
		}
		w.circuits[d] = -1
		itc := t.itcs[d]
		err := itc.talk(int(n), changed)
		if err == nil {
			err = itc.hangup(int(n))
		}
		if err != nil {
			failed = append(failed, failure{itc, err})
		}
	}
	t.stats.Executed++
	t.emitWindow(h.Slot(), w.disc, circuits, hooks.WindowExecuted, nil)
	t.arena.release(w)
	for _, f := range failed {
		f.itc.reset(f.err)
	}
}

func (t *Tile) emitWindow(slot int, disc core.Disc, circuits int, outcome hooks.WindowOutcome, reason error) {
	t.hookErr(t.broker.EmitWindow(&hooks.WindowContext{
		Tile:     t.id,
		Slot:     slot,
		Center:   disc.Center,
		Radius:   disc.Radius,
		Circuits: circuits,
		Outcome:  outcome,
		Reason:   reason,
		Tick:     t.sched.Now(),
	}))
}

func (t *Tile) hookErr(err error) {
	if err != nil {
		t.log.Err().Int("tile", t.id).Err(err).Log("hook failed")
	}
}

// logReset emits one warning per reset. Resets beyond the per-link
// rate of Config.ResetLimiter are not dropped but demoted to Debug.
func (t *Tile) logReset(itc *T2ITC, prev core.LinkState, cause error) {
	level := logiface.LevelWarning
	if _, ok := t.limiter.Allow(resetCategory{t.id, itc.dir}); !ok {
		level = logiface.LevelDebug
	}
	t.log.Build(level).
		Int("tile", t.id).
		Stringer("dir", itc.dir).
		Stringer("state", prev).
		Err(cause).
		Log("link reset")
}

type resetCategory struct {
	tile int
	dir  core.Dir
}

// Stats returns a snapshot of window and per-link counters.
func (t *Tile) Stats() Stats {
	s := t.stats
	s.Links = make(map[string]LinkStats, len(core.ITCDirs))
	for _, d := range core.ITCDirs {
		if t.itcs[d].Attached() {
			s.Links[d.String()] = t.itcs[d].stats
		}
	}
	return s
}
