package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/tile_itc/tile"
	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigDefaults(t *testing.T) {
	cfg := &Config{TotalTicks: 10}
	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, DefaultColumns, cfg.Columns)
	assert.Equal(t, DefaultRows, cfg.Rows)
	assert.Equal(t, DefaultTileWidth, cfg.TileWidth)
	assert.Equal(t, DefaultRadius, cfg.Radius)
	assert.Equal(t, DefaultPipeCapacity, cfg.PipeCapacity)
	assert.Equal(t, DefaultProtocolLevel, cfg.MinPeerLevel)
	assert.Equal(t, tile.DefaultWaits(), cfg.Waits)
	assert.Equal(t, PhysicsSwap, cfg.Physics)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestValidateConfigRejects(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"zero ticks":     func(c *Config) { c.TotalTicks = 0 },
		"odd width":      func(c *Config) { c.TileWidth = 31 },
		"event radius":   func(c *Config) { c.EventRadius = c.Radius + 1 },
		"density":        func(c *Config) { c.Density = 1.5 },
		"legacy range":   func(c *Config) { c.LegacyTiles = []int{99} },
		"bad fault":      func(c *Config) { c.Faults = []string{"10:melt:0:E"} },
		"physics":        func(c *Config) { c.Physics = "gravity" },
		"log level":      func(c *Config) { c.LogLevel = "loud" },
		"negative quiet": func(c *Config) { c.QuiesceTicks = -1 },
	} {
		cfg := GetConfigByName("small_grid")
		mutate(cfg)
		assert.Error(t, ValidateConfig(cfg), name)
	}
	assert.Error(t, ValidateConfig(nil))
}

func TestPresetsValidateAndCopy(t *testing.T) {
	for _, preset := range GetPredefinedConfigs() {
		cfg := GetConfigByName(preset.Name)
		require.NotNil(t, cfg, preset.Name)
		require.NoError(t, ValidateConfig(cfg), preset.Name)
	}
	a := GetConfigByName("fault_storm")
	a.Faults[0] = "changed"
	assert.NotEqual(t, "changed", GetConfigByName("fault_storm").Faults[0])
	assert.Nil(t, GetConfigByName("missing"))
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"columns": 2, "rows": 2, "tile_width": 16, "tile_height": 12,
		"total_ticks": 50, "physics": "counter",
		"waits": {"immediate": 1, "short_random": 4, "random": 8, "full": 8, "long": 16},
		"faults": ["20:reset:0:E"], "legacy_tiles": [3]
	}`), 0o600))
	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, path, cfg.Name)
	assert.Equal(t, 16, cfg.TileWidth)
	assert.Equal(t, int64(16), cfg.Waits.Long)
	assert.Equal(t, []int{3}, cfg.LegacyTiles)
	assert.Equal(t, PhysicsCounter, cfg.Physics)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"columns": "three"}`), 0o600))
	_, err = LoadConfigFile(bad)
	assert.Error(t, err)
}

func TestConfigHash(t *testing.T) {
	a := GetConfigByName("small_grid")
	b := GetConfigByName("small_grid")
	assert.Len(t, computeConfigHash(a), ConfigHashLength)
	assert.Equal(t, computeConfigHash(a), computeConfigHash(b))
	b.Seed++
	assert.NotEqual(t, computeConfigHash(a), computeConfigHash(b))
	assert.Empty(t, computeConfigHash(nil))
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]logiface.Level{
		"err": logiface.LevelError, "WARNING": logiface.LevelWarning, "info": logiface.LevelInformational,
		"debug": logiface.LevelDebug, "trace": logiface.LevelTrace, "off": logiface.LevelDisabled,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, logiface.LevelWarning)
	l.Info().Log("hidden")
	l.Warning().Int("tile", 2).Log("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Equal(t, 1, strings.Count(out, `"msg"`))
}
