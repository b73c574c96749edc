package tile

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/example/tile_itc/core"
	"github.com/example/tile_itc/hooks"
	catrate "github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Scheduler is the cooperative clock tiles run on. Callbacks never run
// concurrently with each other.
type Scheduler interface {
	Now() int64
	After(delay int64, fn func())
}

// Wait names a timeout bucket.
type Wait uint8

const (
	WaitImmediate Wait = iota
	WaitShortRandom
	WaitRandom
	WaitFull
	WaitLong
)

// Waits holds the tick counts behind each bucket. Random buckets draw
// uniformly from [1, value].
type Waits struct {
	Immediate   int64 `json:"immediate"`
	ShortRandom int64 `json:"short_random"`
	Random      int64 `json:"random"`
	Full        int64 `json:"full"`
	Long        int64 `json:"long"`
}

// DefaultWaits returns the stock bucket sizes.
func DefaultWaits() Waits {
	return Waits{Immediate: 1, ShortRandom: 8, Random: 32, Full: 32, Long: 128}
}

func (w Waits) delay(k Wait, rng *rand.Rand) int64 {
	switch k {
	case WaitImmediate:
		return w.Immediate
	case WaitShortRandom:
		return 1 + rng.Int64N(w.ShortRandom)
	case WaitRandom:
		return 1 + rng.Int64N(w.Random)
	case WaitFull:
		return w.Full
	default:
		return w.Long
	}
}

func (w Waits) validate() error {
	if w.Immediate < 0 {
		return fmt.Errorf("immediate wait must be non-negative, got %d", w.Immediate)
	}
	if w.ShortRandom < 1 || w.Random < 1 || w.Full < 1 || w.Long < 1 {
		return fmt.Errorf("wait buckets must be positive: %+v", w)
	}
	return nil
}

// Config parameterizes one tile.
type Config struct {
	Geometry core.Geometry
	// MinPeerLevel is the lowest peer protocol level this tile will link with.
	MinPeerLevel int
	Waits        Waits
	// EventRadius is the radius of spontaneously spawned windows.
	EventRadius int
	// EventInterval is the number of ticks between spawns; 0 disables them.
	EventInterval int64
	WindowSlots   int
	// PollBudget caps packets handled per link per tick.
	PollBudget int
	// DrainStall is how long DRAIN may wait for the peer before resetting.
	DrainStall int64
	Seed       uint64

	Logger *logiface.Logger[logiface.Event]
	Broker *hooks.PluginBroker
	// ResetLimiter throttles reset warnings; nil builds one from ResetLogRate.
	ResetLimiter *catrate.Limiter
	ResetLogRate map[time.Duration]int
}

const (
	DefaultWindowSlots = 32
	DefaultPollBudget  = 16
)

// DefaultConfig returns a small, fully populated configuration.
func DefaultConfig() Config {
	return Config{
		Geometry:      core.Geometry{Width: 32, Height: 16, Radius: 4},
		MinPeerLevel:  1,
		Waits:         DefaultWaits(),
		EventRadius:   3,
		EventInterval: 4,
		WindowSlots:   DefaultWindowSlots,
		PollBudget:    DefaultPollBudget,
		ResetLogRate:  map[time.Duration]int{time.Second: 4, time.Minute: 30},
	}
}

func (c *Config) validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if err := c.Waits.validate(); err != nil {
		return err
	}
	if c.EventRadius < 0 || c.EventRadius > c.Geometry.Radius {
		return fmt.Errorf("event radius must be within [0,%d], got %d", c.Geometry.Radius, c.EventRadius)
	}
	if c.EventInterval < 0 {
		return fmt.Errorf("event interval must be non-negative, got %d", c.EventInterval)
	}
	if c.WindowSlots <= 0 {
		c.WindowSlots = DefaultWindowSlots
	}
	if c.PollBudget <= 0 {
		c.PollBudget = DefaultPollBudget
	}
	if c.DrainStall <= 0 {
		c.DrainStall = 8 * c.Waits.Long
	}
	return nil
}
