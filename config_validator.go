package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/tile_itc/simulator"
	"github.com/example/tile_itc/tile"
	"github.com/sugawarayuuta/sonnet"
)

// ValidateConfig applies structural checks to Config and populates defaults where required.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if cfg.Columns <= 0 {
		cfg.Columns = DefaultColumns
	}
	if cfg.Rows <= 0 {
		cfg.Rows = DefaultRows
	}
	if cfg.TileWidth <= 0 {
		cfg.TileWidth = DefaultTileWidth
	}
	if cfg.TileHeight <= 0 {
		cfg.TileHeight = DefaultTileHeight
	}
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultRadius
	}
	if cfg.TileWidth%2 != 0 {
		return fmt.Errorf("TileWidth must be even, got %d", cfg.TileWidth)
	}
	if cfg.EventRadius < 0 || cfg.EventRadius > cfg.Radius {
		return fmt.Errorf("EventRadius must be within [0,%d], got %d", cfg.Radius, cfg.EventRadius)
	}
	if cfg.EventInterval < 0 {
		return fmt.Errorf("EventInterval must be non-negative, got %d", cfg.EventInterval)
	}
	if cfg.TotalTicks <= 0 {
		return fmt.Errorf("TotalTicks must be positive, got %d", cfg.TotalTicks)
	}
	if cfg.QuiesceTicks < 0 {
		return fmt.Errorf("QuiesceTicks must be non-negative, got %d", cfg.QuiesceTicks)
	}
	if cfg.Density < 0 || cfg.Density > 1 {
		return fmt.Errorf("Density must be within [0,1], got %.3f", cfg.Density)
	}
	if cfg.PipeLatency < 0 {
		return fmt.Errorf("PipeLatency must be non-negative, got %d", cfg.PipeLatency)
	}
	for _, id := range cfg.LegacyTiles {
		if id < 0 || id >= cfg.TileCount() {
			return fmt.Errorf("legacy tile %d outside grid of %d tiles", id, cfg.TileCount())
		}
	}
	if _, err := simulator.ParsePlan(cfg.Faults); err != nil {
		return err
	}

	if cfg.AtomTypes <= 0 {
		cfg.AtomTypes = DefaultAtomTypes
	}
	if cfg.PipeCapacity <= 0 {
		cfg.PipeCapacity = DefaultPipeCapacity
	}
	if cfg.ProtocolLevel <= 0 {
		cfg.ProtocolLevel = DefaultProtocolLevel
	}
	if cfg.MinPeerLevel <= 0 {
		cfg.MinPeerLevel = cfg.ProtocolLevel
	}
	if cfg.Waits == (tile.Waits{}) {
		cfg.Waits = tile.DefaultWaits()
	}
	if cfg.WindowSlots <= 0 {
		cfg.WindowSlots = tile.DefaultWindowSlots
	}
	switch cfg.Physics {
	case "":
		cfg.Physics = PhysicsSwap
	case PhysicsSwap, PhysicsCounter:
	default:
		return fmt.Errorf("unknown physics %q", cfg.Physics)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if cfg.TickMicros <= 0 {
		cfg.TickMicros = DefaultTickMicros
	}

	return nil
}

// LoadConfigFile decodes a JSON config. Fields missing from the file keep
// their zero value and are defaulted by ValidateConfig.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := sonnet.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if cfg.Name == "" {
		cfg.Name = path
	}
	return cfg, nil
}
