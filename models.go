package main

import (
	"encoding/hex"
	"fmt"

	"github.com/example/tile_itc/tile"
	"golang.org/x/crypto/sha3"
)

// Simulation constants
const (
	// Grid shape
	DefaultColumns = 3
	DefaultRows    = 2

	// Tile geometry
	DefaultTileWidth  = 32
	DefaultTileHeight = 16
	DefaultRadius     = 4

	// Event generation
	DefaultEventRadius   = 3
	DefaultEventInterval = 4
	DefaultTotalTicks    = 2000
	DefaultQuiesceTicks  = 256
	DefaultDensity       = 0.3
	DefaultAtomTypes     = 4

	// Link constants
	DefaultPipeLatency   = 1
	DefaultPipeCapacity  = 64 // packets queued toward one endpoint
	DefaultProtocolLevel = 1

	// Real-time driver
	DefaultTickMicros = 1000

	// Config hash constants
	ConfigHashLength = 16 // Length of config hash in hex characters
)

// Physics names accepted in Config.Physics.
const (
	PhysicsSwap    = "swap"
	PhysicsCounter = "counter"
)

// Config describes one grid simulation.
type Config struct {
	Name string `json:"name"`

	Columns    int `json:"columns"`
	Rows       int `json:"rows"`
	TileWidth  int `json:"tile_width"`
	TileHeight int `json:"tile_height"`
	Radius     int `json:"radius"`

	EventRadius   int   `json:"event_radius"`
	EventInterval int64 `json:"event_interval"` // ticks between spawns per tile
	TotalTicks    int64 `json:"total_ticks"`
	// QuiesceTicks runs with spawning disabled after TotalTicks so that
	// every window finishes before caches are compared.
	QuiesceTicks int64 `json:"quiesce_ticks"`

	Seed      uint64  `json:"seed"`
	Density   float64 `json:"density"`
	AtomTypes int     `json:"atom_types"`
	Physics   string  `json:"physics"`

	PipeLatency   int64 `json:"pipe_latency"`
	PipeCapacity  int   `json:"pipe_capacity"`
	ProtocolLevel int   `json:"protocol_level"`
	MinPeerLevel  int   `json:"min_peer_level"`
	// LegacyTiles advertise protocol level 0 and never link up.
	LegacyTiles []int      `json:"legacy_tiles"`
	Waits       tile.Waits `json:"waits"`
	WindowSlots int        `json:"window_slots"`

	// Faults are "tick:kind:tile:dir" entries, see simulator.ParseFault.
	Faults      []string `json:"faults"`
	Plugins     []string `json:"plugins"`
	JournalPath string   `json:"journal_path"`
	LogLevel    string   `json:"log_level"`

	Realtime   bool  `json:"realtime"`
	TickMicros int64 `json:"tick_micros"`
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.LegacyTiles = append([]int(nil), c.LegacyTiles...)
	out.Faults = append([]string(nil), c.Faults...)
	out.Plugins = append([]string(nil), c.Plugins...)
	return &out
}

// TileCount is the number of tiles in the grid.
func (c *Config) TileCount() int { return c.Columns * c.Rows }

// IsLegacy reports whether tile id advertises level 0.
func (c *Config) IsLegacy(id int) bool {
	for _, l := range c.LegacyTiles {
		if l == id {
			return true
		}
	}
	return false
}

// SimulationStats is the result of one run.
type SimulationStats struct {
	Global     *GlobalStats `json:"global"`
	PerTile    []*TileStats `json:"tiles"`
	Mismatches []Mismatch   `json:"mismatches,omitempty"`
}

// GlobalStats aggregates every tile and link.
type GlobalStats struct {
	ConfigHash string `json:"config_hash"`
	Ticks      int64  `json:"ticks"`
	Tiles      int    `json:"tiles"`
	Links      int    `json:"links"`
	OpenLinks  int    `json:"open_links"`

	Spawned  uint64 `json:"spawned"`
	Executed uint64 `json:"executed"`
	Declined uint64 `json:"declined"`
	Aborted  uint64 `json:"aborted"`
	Skipped  uint64 `json:"skipped"`

	Resets         uint64 `json:"resets"`
	LocksGranted   uint64 `json:"locks_granted"`
	LocksRefused   uint64 `json:"locks_refused"`
	PacketsShipped uint64 `json:"packets_shipped"`
	AtomsSent      uint64 `json:"atoms_sent"`

	// ExecutionRate is executed windows as a percentage of spawned ones.
	ExecutionRate float64 `json:"execution_rate"`
}

// TileStats is one tile's counters and grid position.
type TileStats struct {
	ID    int        `json:"id"`
	Row   int        `json:"row"`
	Col   int        `json:"col"`
	Stats tile.Stats `json:"stats"`
}

// Mismatch is a cache that disagrees with its owner after quiescence.
type Mismatch struct {
	Tile     int    `json:"tile"`
	Dir      string `json:"dir"`
	Neighbor int    `json:"neighbor"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("tile %d cache toward %s disagrees with tile %d", m.Tile, m.Dir, m.Neighbor)
}

// computeConfigHash computes a hash of the configuration to tell runs apart.
// The hash covers the fields that affect topology and the event stream.
func computeConfigHash(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	hashInput := fmt.Sprintf("%d-%d-%d-%d-%d-%d-%d-%d-%s-%v",
		cfg.Columns,
		cfg.Rows,
		cfg.TileWidth,
		cfg.TileHeight,
		cfg.Radius,
		cfg.EventRadius,
		cfg.EventInterval,
		cfg.Seed,
		cfg.Physics,
		cfg.LegacyTiles,
	)
	hash := sha3.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])[:ConfigHashLength]
}
